package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/credits"
	"server/internal/db"
	"server/internal/infra"
)

const staleSweepBatch = 100

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	accounts := repo.NewAccountRepository(dbpool)
	transactions := repo.NewTransactionRepository(dbpool)
	registry := credits.NewRegistry()
	allocator := credits.NewAllocator(registry, accounts, transactions, logger)

	// Run one refresh pass on startup so a worker that was down over a month
	// boundary catches up immediately.
	runRefresh(ctx, allocator, logger)

	refreshTicker := time.NewTicker(cfg.RefreshCheckInterval)
	defer refreshTicker.Stop()
	sweepTicker := time.NewTicker(cfg.StaleSweepInterval)
	defer sweepTicker.Stop()

	logger.Info().
		Dur("refresh_interval", cfg.RefreshCheckInterval).
		Dur("sweep_interval", cfg.StaleSweepInterval).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopped")
			return
		case <-refreshTicker.C:
			runRefresh(ctx, allocator, logger)
		case <-sweepTicker.C:
			if _, err := allocator.SweepStaleReservations(ctx, cfg.StaleReservationGrace, staleSweepBatch); err != nil {
				logger.Error().Err(err).Msg("stale reservation sweep failed")
			}
		}
	}
}

func runRefresh(ctx context.Context, allocator *credits.Allocator, logger infra.Logger) {
	stats, err := allocator.RefreshMonthly(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("monthly refresh failed")
		return
	}
	logger.Info().
		Int("downgraded", stats.Downgraded).
		Int("refreshed", stats.Refreshed).
		Msg("refresh pass complete")
}
