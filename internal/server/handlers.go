package server

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"turboflakes/internal/apierror"
	"turboflakes/internal/cache"
	"turboflakes/internal/leaderboard"
	"turboflakes/internal/model"
)

const serviceName = "turboflakes"
const serviceVersion = "1.0"
const defaultTopN = 100

// writeError maps an error to its HTTP response, using ApiError's Status
// and Body when available and falling back to 500 otherwise (§7).
func writeError(c *gin.Context, err error) {
	if apiErr, ok := err.(*apierror.ApiError); ok {
		c.JSON(apiErr.Status(), apiErr.Body())
		return
	}
	c.JSON(http.StatusInternalServerError, apierror.Internal(err.Error()).Body())
}

// metadataHandler serves GET / and GET /api/v1: package name/version, api
// path, chain network info, and cache sync info (§6).
func (s *Server) metadataHandler(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	network, _, err := s.cache.GetNetwork(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	info, err := s.cache.GetInfo(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	activeEra, _, err := s.cache.GetActiveEra(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":       serviceName,
		"version":    serviceVersion,
		"api":        "/api/v1",
		"network":    network,
		"info":       info,
		"active_era": activeEra,
	})
}

// eraResponse wraps model.Era unchanged; the era index is already part of
// model.Era's JSON shape as era_index.
type eraResponse struct {
	model.Era
}

// @Summary Get era summary
// @Tags Era
// @Produce json
// @Param era_index path int true "era index"
// @Success 200 {object} model.Era
// @Failure 404 {object} map[string][]string
// @Router /api/v1/era/{era_index} [get]
func (s *Server) eraHandler(c *gin.Context) {
	era, err := parseEraIndex(c.Param("era_index"))
	if err != nil {
		writeError(c, err)
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	e, found, err := s.cache.GetEra(ctx, era)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		writeError(c, apierror.NotFound("era "+c.Param("era_index")+" not found"))
		return
	}
	c.JSON(http.StatusOK, eraResponse{Era: e})
}

func parseEraIndex(raw string) (uint32, error) {
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apierror.BadRequest("invalid era_index " + raw)
	}
	return uint32(n), nil
}

// validatorResponse echoes the canonical stash string alongside the cached
// fields (§4.7 "inject the canonical stash string into the response").
type validatorResponse struct {
	model.Validator
}

// @Summary Get validator record
// @Tags Validator
// @Produce json
// @Param stash path string true "validator stash address"
// @Success 200 {object} model.Validator
// @Failure 404 {object} map[string][]string
// @Router /api/v1/validator/{stash} [get]
func (s *Server) validatorHandler(c *gin.Context) {
	stash := c.Param("stash")
	ctx, cancel := s.requestContext(c)
	defer cancel()

	v, found, err := s.cache.GetValidator(ctx, stash)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		writeError(c, apierror.ValidatorNotFound(stash))
		return
	}
	v.Stash = stash
	c.JSON(http.StatusOK, validatorResponse{Validator: v})
}

// @Summary Get per-era records for a validator, most-recent-era first
// @Tags Validator
// @Produce json
// @Param stash path string true "validator stash address"
// @Success 200 {array} model.ValidatorAtEra
// @Router /api/v1/validator/{stash}/eras [get]
func (s *Server) validatorErasHandler(c *gin.Context) {
	stash := c.Param("stash")
	ctx, cancel := s.requestContext(c)
	defer cancel()

	eras, err := s.cache.ValidatorEras(ctx, stash)
	if err != nil {
		writeError(c, err)
		return
	}
	sort.Slice(eras, func(i, j int) bool { return eras[i] > eras[j] })

	records := make([]model.ValidatorAtEra, 0, len(eras))
	for _, era := range eras {
		vae, found, err := s.cache.GetValidatorAtEra(ctx, era, stash)
		if err != nil {
			writeError(c, err)
			return
		}
		if found {
			records = append(records, vae)
		}
	}
	c.JSON(http.StatusOK, records)
}

// queryKind enumerates the "q" parameter for the validators-list and rank
// endpoints (§6).
type queryKind string

const (
	queryActive queryKind = "active"
	queryAll    queryKind = "all"
	queryBoard  queryKind = "board"
)

// @Summary List validators by active/all/board membership
// @Tags Validator
// @Produce json
// @Param q query string true "active|all|board"
// @Param w query string false "comma-separated weights, 10 entries"
// @Param i query string false "comma-separated min:max intervals, 10 entries"
// @Param n query int false "top-N count"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/validator [get]
func (s *Server) validatorsHandler(c *gin.Context) {
	q := queryKind(c.Query("q"))
	n, err := parseTopN(c.Query("n"))
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	activeEra, _, err := s.cache.GetActiveEra(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	switch q {
	case queryActive:
		s.respondBoard(c, ctx, activeEra, cache.BoardActive, n, "")
	case queryAll:
		s.respondBoard(c, ctx, activeEra, cache.BoardAll, n, "")
	case queryBoard:
		w, iv, err := parseWeightsAndIntervals(c)
		if err != nil {
			writeError(c, err)
			return
		}
		name := leaderboard.BoardName(w, iv)
		if err := s.leaderboard.Generate(ctx, activeEra, w, iv); err != nil {
			writeError(c, err)
			return
		}
		limitsStr, _, err := s.cache.GetLimits(ctx, activeEra, name)
		if err != nil {
			writeError(c, err)
			return
		}
		s.respondBoard(c, ctx, activeEra, name, n, limitsCSV(limitsStr))
	default:
		writeError(c, apierror.BadRequest("invalid q parameter: "+c.Query("q")))
	}
}

// respondBoard writes the top-N stashes of a board, with an optional
// meta.limits string for weighted-board queries (§6).
func (s *Server) respondBoard(c *gin.Context, ctx context.Context, era uint32, name string, n int64, limits string) {
	top, err := s.leaderboard.TopN(ctx, era, name, n)
	if err != nil {
		writeError(c, err)
		return
	}
	stashes := make([]string, len(top))
	for i, m := range top {
		stashes[i] = m.Member
	}

	body := gin.H{"validators": stashes}
	if limits != "" {
		body["meta"] = gin.H{"limits": limits}
	}
	c.JSON(http.StatusOK, body)
}

func limitsCSV(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	parts := make([]string, 0, leaderboard.NumCriteria)
	for i := 0; i < leaderboard.NumCriteria; i++ {
		idx := strconv.Itoa(i)
		parts = append(parts, m[idx+":min"]+":"+m[idx+":max"])
	}
	return strings.Join(parts, ",")
}

func parseTopN(raw string) (int64, error) {
	if raw == "" {
		return defaultTopN, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, apierror.BadRequest("invalid n parameter: " + raw)
	}
	return n, nil
}

func parseWeightsAndIntervals(c *gin.Context) (leaderboard.Weights, *leaderboard.Intervals, error) {
	w, err := leaderboard.ParseWeights(c.Query("w"))
	if err != nil {
		return leaderboard.Weights{}, nil, apierror.BadRequest(err.Error())
	}
	iv, err := leaderboard.ParseIntervals(c.Query("i"))
	if err != nil {
		return leaderboard.Weights{}, nil, apierror.BadRequest(err.Error())
	}
	return w, iv, nil
}

// rankStatus mirrors the {Ok, NotReady, NotFound} enumeration of §4.7/§6.
type rankStatus string

const (
	rankOk       rankStatus = "Ok"
	rankNotReady rankStatus = "NotReady"
	rankNotFound rankStatus = "NotFound"
)

type rankResponse struct {
	Stash     string     `json:"stash"`
	Rank      int64      `json:"rank"`
	Scores    []float64  `json:"scores"`
	Status    rankStatus `json:"status"`
	StatusMsg string     `json:"status_msg"`
}

// @Summary Get a validator's rank within a weighted board
// @Tags Validator
// @Produce json
// @Param stash path string true "validator stash address"
// @Param q query string true "must be 'board'"
// @Param w query string false "comma-separated weights, 10 entries"
// @Param i query string false "comma-separated min:max intervals, 10 entries"
// @Success 200 {object} rankResponse
// @Router /api/v1/validator/{stash}/rank [get]
func (s *Server) validatorRankHandler(c *gin.Context) {
	stash := c.Param("stash")
	if queryKind(c.Query("q")) != queryBoard {
		writeError(c, apierror.BadRequest("rank queries require q=board"))
		return
	}
	w, iv, err := parseWeightsAndIntervals(c)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	activeEra, _, err := s.cache.GetActiveEra(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	name := leaderboard.BoardName(w, iv)
	exists, err := s.cache.BoardExists(ctx, activeEra, name)
	if err != nil {
		writeError(c, err)
		return
	}
	if !exists {
		c.JSON(http.StatusOK, rankResponse{
			Stash:     stash,
			Status:    rankNotReady,
			StatusMsg: apierror.RankNotReady(stash).Error(),
		})
		return
	}

	rank, scores, found, err := s.leaderboard.Rank(ctx, activeEra, name, stash)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, rankResponse{
			Stash:  stash,
			Rank:   0,
			Scores: []float64{},
			Status: rankNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, rankResponse{
		Stash:  stash,
		Rank:   rank,
		Scores: scores,
		Status: rankOk,
	})
}
