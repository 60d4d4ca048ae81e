// Package indexer implements the history backfiller (C4), event-driven
// synchroniser (C5), validator/nominator indexer (C6) and era-points indexer
// (C7). The two supervised tasks are deliberately thin wrappers around a
// single ordered resync sequence (§5): validators -> active -> nominators ->
// done.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"turboflakes/internal/cache"
	"turboflakes/internal/chain"
	"turboflakes/internal/model"
	"turboflakes/internal/statistics"
	"turboflakes/internal/syncerror"
)

// DefaultBackfillConcurrency bounds the number of eras backfilled in parallel.
const DefaultBackfillConcurrency = 8

// BackfillRestartBackoff is the supervisor's back-off for the one-shot
// history backfiller (C4).
const BackfillRestartBackoff = 1 * time.Second

// SyncRestartBackoff is the supervisor's back-off for the event-driven
// synchroniser (C5).
const SyncRestartBackoff = 500 * time.Millisecond

// Indexer owns the cache and chain handles shared by every pass.
type Indexer struct {
	Cache               *cache.Client
	Chain               *chain.Adapter
	HistoryDepth        uint32
	BackfillConcurrency int
}

// New builds an Indexer. If concurrency <= 0, DefaultBackfillConcurrency is used.
func New(c *cache.Client, ch *chain.Adapter, historyDepth uint32, concurrency int) *Indexer {
	if concurrency <= 0 {
		concurrency = DefaultBackfillConcurrency
	}
	return &Indexer{Cache: c, Chain: ch, HistoryDepth: historyDepth, BackfillConcurrency: concurrency}
}

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339) }

// Backfill runs the one-shot history replay (C4): cache network metadata,
// read the active era, replay [active_era-history_depth, active_era) eras,
// then run the validators -> active -> nominators sequence once.
func (ix *Indexer) Backfill(ctx context.Context) (err error) {
	if ix.HistoryDepth == 0 {
		return syncerror.Config("history depth", errors.New("history_depth must be greater than 0"))
	}

	if serr := ix.Cache.SetSyncing(ctx, true, nowStamp()); serr != nil {
		return syncerror.Cache("set syncing", serr)
	}
	defer func() {
		if serr := ix.Cache.SetSyncing(ctx, false, nowStamp()); serr != nil && err == nil {
			err = syncerror.Cache("clear syncing", serr)
		}
	}()

	props, cerr := ix.Chain.Properties()
	if cerr != nil {
		return syncerror.Chain("properties", cerr)
	}
	if serr := ix.Cache.SetNetwork(ctx, model.Network{
		Name:             props.ChainName,
		TokenSymbol:      props.TokenSymbol,
		TokenDecimals:    props.TokenDecimals,
		SS58Format:       props.SS58Format,
		SubstrateNodeURL: "",
	}); serr != nil {
		return syncerror.Cache("set network", serr)
	}

	activeEra, cerr := ix.Chain.ActiveEra()
	if cerr != nil {
		return syncerror.Chain("active era", cerr)
	}
	if serr := ix.Cache.SetActiveEra(ctx, activeEra); serr != nil {
		return syncerror.Cache("set active era", serr)
	}

	start := uint32(0)
	if activeEra > ix.HistoryDepth {
		start = activeEra - ix.HistoryDepth
	}
	if err := ix.backfillEras(ctx, start, activeEra); err != nil {
		return err
	}

	return ix.resyncPasses(ctx, activeEra)
}

// backfillEras replays eras in [start, end) with bounded concurrency,
// force=false so already-synced eras are skipped (idempotent restart).
func (ix *Indexer) backfillEras(ctx context.Context, start, end uint32) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.BackfillConcurrency)
	for era := start; era < end; era++ {
		era := era
		g.Go(func() error {
			return ix.SyncEra(gctx, era, false)
		})
	}
	if err := g.Wait(); err != nil {
		return syncerror.Chain("backfill eras", err)
	}
	return nil
}

// ResyncEra runs the event-driven path (C5) for a single freshly-paid era:
// force=true re-sync of that era, then the validators -> active -> nominators
// sequence. Info.syncing debounce is the caller's responsibility.
func (ix *Indexer) ResyncEra(ctx context.Context, era uint32, activeEra uint32) (err error) {
	if serr := ix.Cache.SetSyncing(ctx, true, nowStamp()); serr != nil {
		return syncerror.Cache("set syncing", serr)
	}
	defer func() {
		if serr := ix.Cache.SetSyncing(ctx, false, nowStamp()); serr != nil && err == nil {
			err = syncerror.Cache("clear syncing", serr)
		}
	}()

	if serr := ix.Cache.SetActiveEra(ctx, activeEra); serr != nil {
		return syncerror.Cache("set active era", serr)
	}
	if err := ix.SyncEra(ctx, era, true); err != nil {
		return err
	}
	return ix.resyncPasses(ctx, activeEra)
}

// resyncPasses runs the canonical ordering guarantee (§5): validators ->
// active -> nominators -> done. Nominators must run last because it
// accumulates onto Validator records the validators pass just reset.
func (ix *Indexer) resyncPasses(ctx context.Context, activeEra uint32) error {
	if err := ix.Validators(ctx, activeEra); err != nil {
		return err
	}
	if err := ix.ActiveValidators(ctx, activeEra); err != nil {
		return err
	}
	if err := ix.Nominators(ctx); err != nil {
		return err
	}
	slog.Info("indexer: resync complete", "era", activeEra)
	return nil
}

// inclusionWindowStats derives inclusion_rate and avg_reward_points for stash
// over [fromEra, toEra) from ActiveErasByValidator (§4.4).
func (ix *Indexer) inclusionWindowStats(ctx context.Context, stash string, fromEra, toEra uint32) (rate float32, avg float64, err error) {
	if toEra <= fromEra {
		return 0, 0, nil
	}
	members, cerr := ix.Cache.ActiveErasInWindow(ctx, stash, fromEra, toEra)
	if cerr != nil {
		return 0, 0, syncerror.Cache("active eras in window", cerr)
	}
	window := toEra - fromEra
	rate = float32(len(members)) / float32(window)

	points := make([]float64, 0, len(members))
	for _, m := range members {
		p, ok := cache.ParseActiveEraMember(m.Member)
		if !ok {
			continue
		}
		points = append(points, float64(p))
	}
	avg = statistics.Mean(points)
	return rate, avg, nil
}
