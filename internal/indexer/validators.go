package indexer

import (
	"context"
	"log/slog"
	"math/big"

	"turboflakes/internal/bignum"
	"turboflakes/internal/cache"
	"turboflakes/internal/chain"
	"turboflakes/internal/model"
	"turboflakes/internal/syncerror"
)

// Validators runs the validators pass (§4.4): refresh every stash present in
// Staking.Validators, resolve identity, derive inclusion_rate and
// avg_reward_points over the history window, reset nominator counters, and
// seed the statistical boards used by the leaderboard engine's limits.
func (ix *Indexer) Validators(ctx context.Context, activeEra uint32) error {
	windowStart := uint32(0)
	if activeEra > ix.HistoryDepth {
		windowStart = activeEra - ix.HistoryDepth
	}

	var count uint32
	for item := range ix.Chain.ValidatorsIter(ctx) {
		if item.Err != nil {
			return syncerror.Chain("validators iter", item.Err)
		}

		controller, bonded, err := ix.Chain.Bonded(item.Stash)
		if err != nil {
			return syncerror.Chain("bonded", err)
		}
		if !bonded {
			continue
		}

		ownStake := "0"
		if ledger, ok, lerr := ix.Chain.Ledger(controller); lerr != nil {
			return syncerror.Chain("ledger", lerr)
		} else if ok {
			ownStake = ledger.Active
		}

		payee, err := ix.Chain.Payee(item.Stash)
		if err != nil {
			return syncerror.Chain("payee", err)
		}

		rate, avgPoints, err := ix.inclusionWindowStats(ctx, item.Stash, windowStart, activeEra)
		if err != nil {
			return err
		}

		identity, _, err := ix.Chain.IdentityOf(item.Stash)
		if err != nil {
			return syncerror.Chain("identity of", err)
		}

		v := model.Validator{
			Stash:           item.Stash,
			Controller:      controller,
			Name:            identity.Display,
			Commission:      item.Prefs.Commission,
			Blocked:         item.Prefs.Blocked,
			Active:          false,
			RewardStaked:    payee == chain.RewardDestinationStaked,
			OwnStake:        ownStake,
			Nominators:      0,
			NominatorsStake: "0",
			InclusionRate:   rate,
			AvgRewardPoints: avgPoints,
			Judgements:      identity.Judgements,
			SubAccounts:     identity.SubAccounts,
		}
		if err := ix.Cache.SetValidator(ctx, v); err != nil {
			return syncerror.Cache("set validator", err)
		}

		if err := ix.Cache.AddToBoard(ctx, activeEra, cache.BoardAll, item.Stash, 0); err != nil {
			return syncerror.Cache("board all", err)
		}
		if bignum.IsPositive(ownStake) {
			if err := ix.Cache.AddToBoard(ctx, cache.GlobalEra, cache.BoardOwnStake, item.Stash, bignumFloat(ownStake)); err != nil {
				return syncerror.Cache("board own stake", err)
			}
		}
		if err := ix.Cache.AddToBoard(ctx, cache.GlobalEra, cache.BoardJudgements, item.Stash, float64(identity.Judgements)); err != nil {
			return syncerror.Cache("board judgements", err)
		}
		if err := ix.Cache.AddToBoard(ctx, cache.GlobalEra, cache.BoardSubAccounts, item.Stash, float64(identity.SubAccounts)); err != nil {
			return syncerror.Cache("board sub accounts", err)
		}

		count++
	}

	info, err := ix.Cache.GetInfo(ctx)
	if err != nil {
		return syncerror.Cache("get info", err)
	}
	info.Validators = count
	if err := ix.Cache.SetInfo(ctx, info); err != nil {
		return syncerror.Cache("set info", err)
	}
	slog.Info("indexer: validators pass complete", "count", count)
	return nil
}

// ActiveValidators runs the active-validators pass (§4.4): flag the current
// session's validator set as active and add them to Board(active_era, "active").
func (ix *Indexer) ActiveValidators(ctx context.Context, activeEra uint32) error {
	active, err := ix.Chain.SessionValidators()
	if err != nil {
		return syncerror.Chain("session validators", err)
	}
	for _, stash := range active {
		if err := ix.Cache.SetValidatorActive(ctx, stash, true); err != nil {
			return syncerror.Cache("set validator active", err)
		}
		if err := ix.Cache.AddToBoard(ctx, activeEra, cache.BoardActive, stash, 0); err != nil {
			return syncerror.Cache("board active", err)
		}
	}
	slog.Info("indexer: active validators pass complete", "count", len(active))
	return nil
}

// Nominators runs the nominators pass (§4.4): accumulate each nomination
// target's nominator count and stake. Must run after Validators, since it
// depends on the freshly reset counters.
func (ix *Indexer) Nominators(ctx context.Context) error {
	var count uint32
	for item := range ix.Chain.NominatorsIter(ctx) {
		if item.Err != nil {
			return syncerror.Chain("nominators iter", item.Err)
		}

		controller, bonded, err := ix.Chain.Bonded(item.Stash)
		if err != nil {
			return syncerror.Chain("bonded", err)
		}
		if !bonded {
			continue
		}
		ledger, ok, err := ix.Chain.Ledger(controller)
		if err != nil {
			return syncerror.Chain("ledger", err)
		}
		nominatorStake := "0"
		if ok {
			nominatorStake = ledger.Active
		}

		for _, target := range item.Targets {
			validator, found, err := ix.Cache.GetValidator(ctx, target)
			if err != nil {
				return syncerror.Cache("get validator", err)
			}
			if !found {
				continue
			}

			if err := ix.Cache.HIncrByField(ctx, cache.ValidatorKey(target), "nominators", 1); err != nil {
				return syncerror.Cache("incr nominators", err)
			}
			newStake := bignum.Add(validator.NominatorsStake, nominatorStake)
			if err := ix.Cache.HSetFields(ctx, cache.ValidatorKey(target), map[string]string{"nominators_stake": newStake}); err != nil {
				return syncerror.Cache("set nominators stake", err)
			}

			totalStake := bignum.Add(validator.OwnStake, newStake)
			if bignum.IsPositive(totalStake) {
				if err := ix.Cache.AddToBoard(ctx, cache.GlobalEra, cache.BoardTotalStake, target, bignumFloat(totalStake)); err != nil {
					return syncerror.Cache("board total stake", err)
				}
			}
		}
		count++
	}

	info, err := ix.Cache.GetInfo(ctx)
	if err != nil {
		return syncerror.Cache("get info", err)
	}
	info.Nominators = count
	if err := ix.Cache.SetInfo(ctx, info); err != nil {
		return syncerror.Cache("set info", err)
	}
	slog.Info("indexer: nominators pass complete", "count", count)
	return nil
}

// bignumFloat converts a decimal string to float64 for board scores. Sorted
// sets store scores as IEEE754 doubles, so stakes beyond 2^53 lose precision
// in ranking order only, never in the stored decimal attribute itself.
func bignumFloat(decimal string) float64 {
	n := bignum.ParseOrZero(decimal)
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}
