package leaderboard

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"turboflakes/internal/apierror"
	"turboflakes/internal/bignum"
	"turboflakes/internal/cache"
	"turboflakes/internal/model"
)

// commissionScale converts parts-per-billion commission into [0,1], per §4.6
// criterion 1.
const commissionScale = 1_000_000_000

// nominatorsCap is the hard cap used as criterion 2's upper limit
// (oversubscription threshold, §3).
const nominatorsCap = 256

// Engine generates and queries weighted validator rankings (C8).
type Engine struct {
	Cache *cache.Client
}

// New builds an Engine over c.
func New(c *cache.Client) *Engine {
	return &Engine{Cache: c}
}

// limits holds the ten (min, max) normalisation bounds for one board.
type limits [NumCriteria]Interval

// fixedLimits are the criteria whose bounds never depend on observed data.
var fixedLimits = map[int]Interval{
	CriterionInclusionRate: {Min: 0, Max: 1},
	CriterionCommission:    {Min: 0, Max: commissionScale},
	CriterionNominators:    {Min: 0, Max: nominatorsCap},
	CriterionRewardStaked:  {Min: 0, Max: 1},
	CriterionActive:        {Min: 0, Max: 1},
}

// derivedBoards maps a criterion to the era-0 statistical board its
// min/max are observed from.
var derivedBoards = map[int]string{
	CriterionAvgRewardPoints: cache.BoardAvgPointsEra,
	CriterionOwnStake:        cache.BoardOwnStake,
	CriterionTotalStake:      cache.BoardTotalStake,
	CriterionJudgements:      cache.BoardJudgements,
	CriterionSubAccounts:     cache.BoardSubAccounts,
}

// deriveLimits computes the per-criterion normalisation bounds (§4.6,
// "Limits derivation"). These are always derived this way, independent of
// any caller-supplied interval filter, which is a separate exclusion rule.
func (e *Engine) deriveLimits(ctx context.Context) (limits, error) {
	var lim limits
	for i, iv := range fixedLimits {
		lim[i] = iv
	}
	for i, board := range derivedBoards {
		lo, hi, err := e.Cache.BoardMinMax(ctx, cache.GlobalEra, board)
		if err != nil {
			return limits{}, err
		}
		lim[i] = Interval{Min: lo, Max: hi}
	}
	return lim, nil
}

// norm maps v into [0,1] against [lo, hi]: 0 below lo or at zero, 1 above
// hi, linear in between.
func norm(v, lo, hi float64) float64 {
	if v == 0 || v < lo {
		return 0
	}
	if v > hi {
		return 1
	}
	if hi == lo {
		return 0
	}
	return (v - lo) / (hi - lo)
}

// rnorm is norm inverted, for lower-is-better criteria.
func rnorm(v, lo, hi float64) float64 {
	return 1 - norm(v, lo, hi)
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// criterionValues extracts the ten raw criterion values from a validator in
// fixed criterion order (§4.6's table).
func criterionValues(v model.Validator) [NumCriteria]float64 {
	return [NumCriteria]float64{
		CriterionInclusionRate:   float64(v.InclusionRate),
		CriterionCommission:      float64(v.Commission),
		CriterionNominators:      float64(v.Nominators),
		CriterionAvgRewardPoints: v.AvgRewardPoints,
		CriterionRewardStaked:    flag(v.RewardStaked),
		CriterionActive:          flag(v.Active),
		CriterionOwnStake:        decimalToFloat(v.OwnStake),
		CriterionTotalStake:      decimalToFloat(v.TotalStakeDecimal()),
		CriterionJudgements:      float64(v.Judgements),
		CriterionSubAccounts:     float64(v.SubAccounts),
	}
}

func decimalToFloat(s string) float64 {
	n := bignum.ParseOrZero(s)
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}

// inInterval reports whether value satisfies the caller-supplied interval
// for a criterion, honouring the degenerate min==max constraint used for
// boolean criteria (§4.6).
func inInterval(value float64, iv Interval) bool {
	if iv.Min == iv.Max {
		return value == iv.Min
	}
	return value >= iv.Min && value <= iv.Max
}

// scoreValidator computes the ten per-criterion scores and their sum for a
// validator, given the board's weights and normalisation limits. It is the
// caller's responsibility to have already excluded blocked/out-of-interval
// stashes.
func scoreValidator(v model.Validator, w Weights, lim limits) (scores [NumCriteria]float64, total float64) {
	values := criterionValues(v)
	for i := 0; i < NumCriteria; i++ {
		value := values[i]
		lo, hi := lim[i].Min, lim[i].Max
		if i == CriterionCommission {
			value /= commissionScale
			lo /= commissionScale
			hi /= commissionScale
		}
		var s float64
		if directions[i] == higherBetter {
			s = norm(value, lo, hi)
		} else {
			s = rnorm(value, lo, hi)
		}
		s *= float64(w[i])
		scores[i] = s
		total += s
	}
	return scores, total
}

// Generate implements the generation protocol (§4.6): refuse while syncing,
// skip if the board already exists, otherwise derive limits, score every
// non-blocked (and interval-satisfying) member of Board(activeEra, "all"),
// and cache the result.
func (e *Engine) Generate(ctx context.Context, activeEra uint32, w Weights, iv *Intervals) error {
	info, err := e.Cache.GetInfo(ctx)
	if err != nil {
		return err
	}
	if info.Syncing {
		return apierror.Syncing()
	}

	name := BoardName(w, iv)
	exists, err := e.Cache.BoardExists(ctx, activeEra, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	lim, err := e.deriveLimits(ctx)
	if err != nil {
		return err
	}
	if err := e.Cache.SetLimits(ctx, activeEra, name, limitsToFields(lim)); err != nil {
		return err
	}

	members, err := e.Cache.BoardTopN(ctx, activeEra, cache.BoardAll, 1<<20)
	if err != nil {
		return err
	}

	for _, m := range members {
		v, found, err := e.Cache.GetValidator(ctx, m.Member)
		if err != nil {
			return err
		}
		if !found || v.Blocked {
			continue
		}
		if iv != nil && !satisfiesIntervals(v, *iv) {
			continue
		}

		scores, total := scoreValidator(v, w, lim)
		if err := e.Cache.AddToBoard(ctx, activeEra, name, v.Stash, total); err != nil {
			return err
		}
		if err := e.Cache.SetScores(ctx, activeEra, name, v.Stash, scoresToCSV(scores)); err != nil {
			return err
		}
	}

	return e.Cache.IncrStat(ctx, cache.EraBoardKey(activeEra, name))
}

func satisfiesIntervals(v model.Validator, iv Intervals) bool {
	values := criterionValues(v)
	for i := 0; i < NumCriteria; i++ {
		if !inInterval(values[i], iv[i]) {
			return false
		}
	}
	return true
}

func limitsToFields(lim limits) map[string]string {
	fields := make(map[string]string, NumCriteria*2)
	for i, pair := range lim {
		idx := strconv.Itoa(i)
		fields[idx+":min"] = formatFloat(pair.Min)
		fields[idx+":max"] = formatFloat(pair.Max)
	}
	return fields
}

func scoresToCSV(scores [NumCriteria]float64) string {
	parts := make([]string, NumCriteria)
	for i, s := range scores {
		parts[i] = formatFloat(s)
	}
	return strings.Join(parts, ",")
}

// TopN returns the top-N stashes of a board by score descending. Callers
// should have already ensured the board exists (via Generate) for scored
// boards; the raw "all"/"active" boards always exist once the indexer has
// run a pass.
func (e *Engine) TopN(ctx context.Context, era uint32, name string, n int64) ([]cache.Member, error) {
	return e.Cache.BoardTopN(ctx, era, name, n)
}

// Rank returns the 1-based rank and per-criterion scores of stash within
// a board. found is false if the stash is absent from the board (§8 S5).
func (e *Engine) Rank(ctx context.Context, era uint32, name, stash string) (rank int64, scores []float64, found bool, err error) {
	rank, found, err = e.Cache.BoardRank(ctx, era, name, stash)
	if err != nil || !found {
		return rank, nil, found, err
	}
	csv, ok, err := e.Cache.GetScores(ctx, era, name, stash)
	if err != nil || !ok {
		return rank, nil, found, err
	}
	scores = parseCSV(csv)
	return rank, scores, found, nil
}

func parseCSV(csv string) []float64 {
	parts := strings.Split(csv, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, _ := strconv.ParseFloat(p, 64)
		out = append(out, f)
	}
	return out
}
