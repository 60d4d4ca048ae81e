package indexer

import (
	"context"
	"log/slog"
	"strconv"

	"turboflakes/internal/bignum"
	"turboflakes/internal/cache"
	"turboflakes/internal/chain"
	"turboflakes/internal/model"
	"turboflakes/internal/statistics"
	"turboflakes/internal/syncerror"
)

// SyncEra implements eras_history(era, force) (§4.3/§4.5): if force is true
// or the era has no synced_at stamp, fetch and cache the era's reward,
// stake, and per-validator points; otherwise it is a no-op, making restarts
// idempotent.
func (ix *Indexer) SyncEra(ctx context.Context, era uint32, force bool) error {
	if !force {
		_, synced, err := ix.Cache.EraSyncedAt(ctx, era)
		if err != nil {
			return syncerror.Cache("era synced at", err)
		}
		if synced {
			return nil
		}
	}

	reward, _, cerr := ix.Chain.EraValidatorReward(era)
	if cerr != nil {
		return syncerror.Chain("era validator reward", cerr)
	}
	totalStake, cerr := ix.Chain.EraTotalStake(era)
	if cerr != nil {
		return syncerror.Chain("era total stake", cerr)
	}
	rewardPoints, cerr := ix.Chain.EraRewardPoints(era)
	if cerr != nil {
		return syncerror.Chain("era reward points", cerr)
	}

	pointsValues := make([]float64, 0, len(rewardPoints.Individual))
	for _, vp := range rewardPoints.Individual {
		pointsValues = append(pointsValues, float64(vp.Points))

		prefs, perr := ix.Chain.EraValidatorPrefs(era, vp.Stash)
		if perr != nil {
			return syncerror.Chain("era validator prefs", perr)
		}
		exposure, eerr := ix.Chain.ErasStakers(era, vp.Stash)
		if eerr != nil {
			return syncerror.Chain("eras stakers", eerr)
		}
		clipped, cerr := ix.Chain.ErasStakersClipped(era, vp.Stash)
		if cerr != nil {
			return syncerror.Chain("eras stakers clipped", cerr)
		}

		vae := model.ValidatorAtEra{
			Era:                era,
			Stash:              vp.Stash,
			Active:             true,
			RewardPoints:       vp.Points,
			Commission:         prefs.Commission,
			Blocked:            prefs.Blocked,
			OwnStake:           exposure.Own,
			TotalStake:         exposure.Total,
			OthersStake:        sumExposures(exposure.Others),
			Stakers:            uint32(len(exposure.Others)),
			OthersStakeClipped: sumExposures(clipped.Others),
			StakersClipped:     uint32(len(clipped.Others)),
		}
		if err := ix.Cache.SetValidatorAtEra(ctx, vae); err != nil {
			return syncerror.Cache("set validator at era", err)
		}
		if err := ix.Cache.AddActiveEra(ctx, vp.Stash, era, vp.Points); err != nil {
			return syncerror.Cache("add active era", err)
		}
		if err := ix.Cache.AddToBoard(ctx, era, cache.BoardPoints, vp.Stash, float64(vp.Points)); err != nil {
			return syncerror.Cache("board points", err)
		}
	}

	summary := statistics.Summarize(pointsValues)
	eraRecord := model.Era{
		Index:              era,
		TotalReward:        reward,
		TotalStake:         totalStake,
		TotalRewardPoints:  rewardPoints.Total,
		MinRewardPoints:    uint32(summary.Min),
		MaxRewardPoints:    uint32(summary.Max),
		AvgRewardPoints:    summary.Mean,
		MedianRewardPoints: summary.Median,
		SyncedAt:           nowStamp(),
	}
	if err := ix.Cache.SetEra(ctx, eraRecord); err != nil {
		return syncerror.Cache("set era", err)
	}

	eraMember := strconv.FormatUint(uint64(era), 10)
	if err := ix.Cache.AddToBoard(ctx, cache.GlobalEra, cache.BoardTotalPointsEra, eraMember, float64(rewardPoints.Total)); err != nil {
		return syncerror.Cache("board total points era", err)
	}
	if err := ix.Cache.AddToBoard(ctx, cache.GlobalEra, cache.BoardMaxPointsEra, eraMember, summary.Max); err != nil {
		return syncerror.Cache("board max points era", err)
	}
	if err := ix.Cache.AddToBoard(ctx, cache.GlobalEra, cache.BoardMinPointsEra, eraMember, summary.Min); err != nil {
		return syncerror.Cache("board min points era", err)
	}
	if err := ix.Cache.AddToBoard(ctx, cache.GlobalEra, cache.BoardAvgPointsEra, eraMember, summary.Mean); err != nil {
		return syncerror.Cache("board avg points era", err)
	}

	slog.Info("indexer: era synced", "era", era, "validators", len(rewardPoints.Individual))
	return nil
}

// sumExposures adds every nominator's contribution as a decimal string,
// since individual stakes may exceed 64 bits.
func sumExposures(others []chain.IndividualExposure) string {
	total := "0"
	for _, o := range others {
		total = bignum.Add(total, o.Value)
	}
	return total
}
