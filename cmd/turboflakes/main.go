package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"turboflakes/internal/cache"
	"turboflakes/internal/chain"
	"turboflakes/internal/config"
	"turboflakes/internal/indexer"
	"turboflakes/internal/leaderboard"
	"turboflakes/internal/server"
	"turboflakes/internal/syncerror"
)

func setupLoggerFromEnv(cfg *config.Config) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug", "DEBUG", "trace", "TRACE":
		level = slog.LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		level = slog.LevelWarn
	case "error", "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.LogBacktrace,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	envFile := os.Getenv(config.ConfigFilenameEnv)
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLoggerFromEnv(cfg)
	slog.Info("starting turboflakes indexer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheClient := cache.NewClient(cfg)
	if err := cacheClient.WaitReady(ctx); err != nil {
		slog.Error("cache not ready", "error", err)
		os.Exit(1)
	}

	chainAdapter, err := chain.Dial(ctx, cfg.SubstrateWSURL)
	if err != nil {
		slog.Error("failed to dial chain", "error", err)
		os.Exit(1)
	}

	ix := indexer.New(cacheClient, chainAdapter, cfg.HistoryDepth, indexer.DefaultBackfillConcurrency)
	lb := leaderboard.New(cacheClient)

	httpServer := server.NewServer(cfg, cacheClient, lb)
	if err := httpServer.Start(); err != nil {
		slog.Error("failed to start HTTP server", "error", err)
		os.Exit(1)
	}

	go runBackfill(ctx, ix)
	go runResyncLoop(ctx, ix, chainAdapter)

	<-ctx.Done()
	slog.Info("shutting down gracefully")

	if err := httpServer.Stop(); err != nil {
		slog.Error("error stopping HTTP server", "error", err)
	}

	slog.Info("shutdown complete")
}

// exitIfFatal aborts the process when err is a *syncerror.SyncError whose
// Fatal() is true (§7: "Fatal only for configuration errors at startup") —
// retrying a misconfigured indexer can never succeed, so the supervisor
// back-off policy below does not apply to it.
func exitIfFatal(err error) {
	var serr *syncerror.SyncError
	if errors.As(err, &serr) && serr.Fatal() {
		slog.Error("indexer: fatal configuration error, aborting", "error", err)
		os.Exit(1)
	}
}

// runBackfill supervises the one-shot history backfiller (Task H, §5),
// restarting it on error with a fixed back-off until it succeeds or ctx
// is cancelled. A fatal (configuration-domain) error aborts immediately.
func runBackfill(ctx context.Context, ix *indexer.Indexer) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := ix.Backfill(ctx)
		if err == nil {
			slog.Info("indexer: backfill complete")
			return
		}
		exitIfFatal(err)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("indexer: backfill failed, retrying", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(indexer.BackfillRestartBackoff):
		}
	}
}

// runResyncLoop supervises the event-driven synchroniser (Task S, §5):
// subscribe to finalized blocks, resync each freshly paid era, and restart
// the subscription with a fixed back-off whenever it drops. A fatal
// (configuration-domain) error aborts immediately.
func runResyncLoop(ctx context.Context, ix *indexer.Indexer, ch *chain.Adapter) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := subscribeAndResync(ctx, ix, ch); err != nil {
			exitIfFatal(err)
			slog.Warn("indexer: resync subscription failed, restarting", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(indexer.SyncRestartBackoff):
		}
	}
}

func subscribeAndResync(ctx context.Context, ix *indexer.Indexer, ch *chain.Adapter) error {
	paid, err := ch.SubscribeFinalized(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-paid:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return syncerror.ErrSubscriptionClosed
			}
			info, err := ix.Cache.GetInfo(ctx)
			if err != nil {
				slog.Warn("indexer: info lookup failed", "error", err)
				continue
			}
			if info.Syncing {
				slog.Info("indexer: sync in progress, skipping paid era", "era", event.EraIndex)
				continue
			}
			activeEra, err := ch.ActiveEra()
			if err != nil {
				slog.Warn("indexer: active era lookup failed", "error", err)
				continue
			}
			if err := ix.ResyncEra(ctx, event.EraIndex, activeEra); err != nil {
				exitIfFatal(err)
				slog.Warn("indexer: resync era failed", "era", event.EraIndex, "error", err)
			}
		}
	}
}
