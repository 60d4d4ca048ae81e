package cache

import (
	"context"
	"strconv"

	"turboflakes/internal/model"
)

// --- network ---

func (c *Client) SetNetwork(ctx context.Context, n model.Network) error {
	return c.HSetFields(ctx, NetworkKey, map[string]string{
		"name":               n.Name,
		"token_symbol":       n.TokenSymbol,
		"token_decimals":     strconv.FormatUint(uint64(n.TokenDecimals), 10),
		"ss58_format":        strconv.FormatUint(uint64(n.SS58Format), 10),
		"substrate_node_url": n.SubstrateNodeURL,
	})
}

func (c *Client) GetNetwork(ctx context.Context) (model.Network, bool, error) {
	m, ok, err := c.HGetAllFields(ctx, NetworkKey)
	if err != nil || !ok {
		return model.Network{}, ok, err
	}
	decimals, _ := strconv.ParseUint(m["token_decimals"], 10, 32)
	ss58, _ := strconv.ParseUint(m["ss58_format"], 10, 32)
	return model.Network{
		Name:             m["name"],
		TokenSymbol:      m["token_symbol"],
		TokenDecimals:    uint32(decimals),
		SS58Format:       uint32(ss58),
		SubstrateNodeURL: m["substrate_node_url"],
	}, true, nil
}

// --- info ---

func (c *Client) SetInfo(ctx context.Context, info model.Info) error {
	return c.HSetFields(ctx, InfoKey, map[string]string{
		"syncing":             FormatBool(info.Syncing),
		"syncing_started_at":  info.SyncingStartedAt,
		"syncing_finished_at": info.SyncingFinishedAt,
		"validators":          strconv.FormatUint(uint64(info.Validators), 10),
		"nominators":          strconv.FormatUint(uint64(info.Nominators), 10),
	})
}

func (c *Client) GetInfo(ctx context.Context) (model.Info, error) {
	m, ok, err := c.HGetAllFields(ctx, InfoKey)
	if err != nil {
		return model.Info{}, err
	}
	if !ok {
		return model.Info{}, nil
	}
	validators, _ := strconv.ParseUint(m["validators"], 10, 32)
	nominators, _ := strconv.ParseUint(m["nominators"], 10, 32)
	return model.Info{
		Syncing:            ParseBool(m["syncing"]),
		SyncingStartedAt:   m["syncing_started_at"],
		SyncingFinishedAt:  m["syncing_finished_at"],
		Validators:         uint32(validators),
		Nominators:         uint32(nominators),
	}, nil
}

// SetSyncing toggles Info.syncing in place without disturbing the other
// fields, stamping started/finished at the given RFC3339 timestamp.
func (c *Client) SetSyncing(ctx context.Context, syncing bool, timestamp string) error {
	fields := map[string]string{"syncing": FormatBool(syncing)}
	if syncing {
		fields["syncing_started_at"] = timestamp
	} else {
		fields["syncing_finished_at"] = timestamp
	}
	return c.HSetFields(ctx, InfoKey, fields)
}

// IncrStat increments the generation counter for a board key.
func (c *Client) IncrStat(ctx context.Context, boardKey string) error {
	return c.HIncrByField(ctx, StatsKey, boardKey, 1)
}

// --- era ---

func (c *Client) SetActiveEra(ctx context.Context, era uint32) error {
	return c.SetString(ctx, ActiveEraKey, strconv.FormatUint(uint64(era), 10))
}

func (c *Client) GetActiveEra(ctx context.Context) (uint32, bool, error) {
	v, ok, err := c.GetString(ctx, ActiveEraKey)
	if err != nil || !ok {
		return 0, ok, err
	}
	era, parseErr := strconv.ParseUint(v, 10, 32)
	if parseErr != nil {
		return 0, false, ErrTypeMismatch
	}
	return uint32(era), true, nil
}

func (c *Client) SetEra(ctx context.Context, e model.Era) error {
	return c.HSetFields(ctx, EraKey(e.Index), map[string]string{
		"total_reward":         e.TotalReward,
		"total_stake":          e.TotalStake,
		"total_reward_points":  strconv.FormatUint(uint64(e.TotalRewardPoints), 10),
		"min_reward_points":    strconv.FormatUint(uint64(e.MinRewardPoints), 10),
		"max_reward_points":    strconv.FormatUint(uint64(e.MaxRewardPoints), 10),
		"avg_reward_points":    strconv.FormatFloat(e.AvgRewardPoints, 'f', -1, 64),
		"median_reward_points": strconv.FormatFloat(e.MedianRewardPoints, 'f', -1, 64),
		"synced_at":            e.SyncedAt,
	})
}

func (c *Client) GetEra(ctx context.Context, era uint32) (model.Era, bool, error) {
	m, ok, err := c.HGetAllFields(ctx, EraKey(era))
	if err != nil || !ok {
		return model.Era{}, ok, err
	}
	totalPoints, _ := strconv.ParseUint(m["total_reward_points"], 10, 32)
	minPoints, _ := strconv.ParseUint(m["min_reward_points"], 10, 32)
	maxPoints, _ := strconv.ParseUint(m["max_reward_points"], 10, 32)
	avg, _ := strconv.ParseFloat(m["avg_reward_points"], 64)
	median, _ := strconv.ParseFloat(m["median_reward_points"], 64)
	return model.Era{
		Index:              era,
		TotalReward:        m["total_reward"],
		TotalStake:         m["total_stake"],
		TotalRewardPoints:  uint32(totalPoints),
		MinRewardPoints:    uint32(minPoints),
		MaxRewardPoints:    uint32(maxPoints),
		AvgRewardPoints:    avg,
		MedianRewardPoints: median,
		SyncedAt:           m["synced_at"],
	}, true, nil
}

// EraSyncedAt reports whether era carries a synced_at stamp, the idempotence
// check behind eras_history(era, force).
func (c *Client) EraSyncedAt(ctx context.Context, era uint32) (string, bool, error) {
	return c.HGetField(ctx, EraKey(era), "synced_at")
}

// --- validator ---

func (c *Client) SetValidator(ctx context.Context, v model.Validator) error {
	return c.HSetFields(ctx, ValidatorKey(v.Stash), map[string]string{
		"stash":             v.Stash,
		"controller":        v.Controller,
		"name":              v.Name,
		"commission":        strconv.FormatUint(uint64(v.Commission), 10),
		"blocked":           FormatBool(v.Blocked),
		"active":            FormatBool(v.Active),
		"reward_staked":     FormatBool(v.RewardStaked),
		"own_stake":         v.OwnStake,
		"nominators":        strconv.FormatUint(uint64(v.Nominators), 10),
		"nominators_stake":  v.NominatorsStake,
		"inclusion_rate":    strconv.FormatFloat(float64(v.InclusionRate), 'f', -1, 32),
		"avg_reward_points": strconv.FormatFloat(v.AvgRewardPoints, 'f', -1, 64),
		"judgements":        strconv.FormatUint(uint64(v.Judgements), 10),
		"sub_accounts":      strconv.FormatUint(uint64(v.SubAccounts), 10),
	})
}

func (c *Client) GetValidator(ctx context.Context, stash string) (model.Validator, bool, error) {
	m, ok, err := c.HGetAllFields(ctx, ValidatorKey(stash))
	if err != nil || !ok {
		return model.Validator{}, ok, err
	}
	return validatorFromFields(stash, m), true, nil
}

func validatorFromFields(stash string, m map[string]string) model.Validator {
	commission, _ := strconv.ParseUint(m["commission"], 10, 32)
	nominators, _ := strconv.ParseUint(m["nominators"], 10, 32)
	inclusion, _ := strconv.ParseFloat(m["inclusion_rate"], 32)
	avgPoints, _ := strconv.ParseFloat(m["avg_reward_points"], 64)
	judgements, _ := strconv.ParseUint(m["judgements"], 10, 32)
	subAccounts, _ := strconv.ParseUint(m["sub_accounts"], 10, 32)
	return model.Validator{
		Stash:           stash,
		Controller:      m["controller"],
		Name:            m["name"],
		Commission:      uint32(commission),
		Blocked:         ParseBool(m["blocked"]),
		Active:          ParseBool(m["active"]),
		RewardStaked:    ParseBool(m["reward_staked"]),
		OwnStake:        m["own_stake"],
		Nominators:      uint32(nominators),
		NominatorsStake: m["nominators_stake"],
		InclusionRate:   float32(inclusion),
		AvgRewardPoints: avgPoints,
		Judgements:      uint32(judgements),
		SubAccounts:     uint32(subAccounts),
	}
}

// ResetNominatorCounters zeroes nominators/nominators_stake ahead of a
// nominators pass, leaving every other field untouched.
func (c *Client) ResetNominatorCounters(ctx context.Context, stash string) error {
	return c.HSetFields(ctx, ValidatorKey(stash), map[string]string{
		"nominators":       "0",
		"nominators_stake": "0",
	})
}

func (c *Client) SetValidatorActive(ctx context.Context, stash string, active bool) error {
	return c.HSetFields(ctx, ValidatorKey(stash), map[string]string{"active": FormatBool(active)})
}

// --- validator-at-era ---

func (c *Client) SetValidatorAtEra(ctx context.Context, v model.ValidatorAtEra) error {
	return c.HSetFields(ctx, EraValidatorKey(v.Era, v.Stash), map[string]string{
		"active":               FormatBool(v.Active),
		"reward_points":        strconv.FormatUint(uint64(v.RewardPoints), 10),
		"commission":           strconv.FormatUint(uint64(v.Commission), 10),
		"blocked":              FormatBool(v.Blocked),
		"own_stake":            v.OwnStake,
		"total_stake":          v.TotalStake,
		"others_stake":         v.OthersStake,
		"stakers":              strconv.FormatUint(uint64(v.Stakers), 10),
		"others_stake_clipped": v.OthersStakeClipped,
		"stakers_clipped":      strconv.FormatUint(uint64(v.StakersClipped), 10),
	})
}

func (c *Client) GetValidatorAtEra(ctx context.Context, era uint32, stash string) (model.ValidatorAtEra, bool, error) {
	m, ok, err := c.HGetAllFields(ctx, EraValidatorKey(era, stash))
	if err != nil || !ok {
		return model.ValidatorAtEra{}, ok, err
	}
	rewardPoints, _ := strconv.ParseUint(m["reward_points"], 10, 32)
	commission, _ := strconv.ParseUint(m["commission"], 10, 32)
	stakers, _ := strconv.ParseUint(m["stakers"], 10, 32)
	stakersClipped, _ := strconv.ParseUint(m["stakers_clipped"], 10, 32)
	return model.ValidatorAtEra{
		Era:                era,
		Stash:              stash,
		Active:             ParseBool(m["active"]),
		RewardPoints:       uint32(rewardPoints),
		Commission:         uint32(commission),
		Blocked:            ParseBool(m["blocked"]),
		OwnStake:           m["own_stake"],
		TotalStake:         m["total_stake"],
		OthersStake:        m["others_stake"],
		Stakers:            uint32(stakers),
		OthersStakeClipped: m["others_stake_clipped"],
		StakersClipped:     uint32(stakersClipped),
	}, true, nil
}

// ValidatorEras returns the era indices for which stash has a snapshot,
// by scanning *:era:{stash}:val.
func (c *Client) ValidatorEras(ctx context.Context, stash string) ([]uint32, error) {
	keys, err := c.ScanKeys(ctx, EraValidatorScanPattern(stash))
	if err != nil {
		return nil, err
	}
	eras := make([]uint32, 0, len(keys))
	for _, k := range keys {
		if era, ok := EraOfValidatorKey(k); ok {
			eras = append(eras, era)
		}
	}
	return eras, nil
}

// --- active-eras-by-validator ---

func (c *Client) AddActiveEra(ctx context.Context, stash string, era uint32, points uint32) error {
	return c.ZAddOne(ctx, ValidatorActiveErasKey(stash), float64(era), FormatActiveEraMember(era, points))
}

// ActiveErasInWindow returns the members of ValidatorActiveErasKey(stash)
// scored in [fromEra, toEra), used to derive inclusion_rate and
// avg_reward_points over the history window.
func (c *Client) ActiveErasInWindow(ctx context.Context, stash string, fromEra, toEra uint32) ([]Member, error) {
	all, err := c.TopN(ctx, ValidatorActiveErasKey(stash), 1<<20)
	if err != nil {
		return nil, err
	}
	out := make([]Member, 0, len(all))
	for _, m := range all {
		if m.Score >= float64(fromEra) && m.Score < float64(toEra) {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- boards ---

func (c *Client) AddToBoard(ctx context.Context, era uint32, name, stash string, score float64) error {
	return c.ZAddOne(ctx, EraBoardKey(era, name), score, stash)
}

func (c *Client) BoardExists(ctx context.Context, era uint32, name string) (bool, error) {
	return c.Exists(ctx, EraBoardKey(era, name))
}

func (c *Client) BoardTopN(ctx context.Context, era uint32, name string, n int64) ([]Member, error) {
	return c.TopN(ctx, EraBoardKey(era, name), n)
}

func (c *Client) BoardRank(ctx context.Context, era uint32, name, stash string) (int64, bool, error) {
	return c.Rank(ctx, EraBoardKey(era, name), stash)
}

func (c *Client) SetLimits(ctx context.Context, era uint32, name string, limits map[string]string) error {
	return c.HSetFields(ctx, LimitsKey(era, name), limits)
}

func (c *Client) GetLimits(ctx context.Context, era uint32, name string) (map[string]string, bool, error) {
	return c.HGetAllFields(ctx, LimitsKey(era, name))
}

func (c *Client) SetScores(ctx context.Context, era uint32, name, stash, csv string) error {
	return c.HSetFields(ctx, ScoresKey(era, name), map[string]string{stash: csv})
}

func (c *Client) GetScores(ctx context.Context, era uint32, name, stash string) (string, bool, error) {
	return c.HGetField(ctx, ScoresKey(era, name), stash)
}
