// Command lendsim runs a collateralized lending simulator. It keeps a
// ledger of loans against a two-asset market, accrues interest on a
// simulated clock, and exposes the whole thing over an HTTP API with an
// SSE event stream and Prometheus metrics.
//
// Usage:
//
//	lendsim --config config.yaml
//	lendsim --setup (interactive configuration wizard)
//	lendsim (uses CLI arguments)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solvena/lendsim/config"
	"github.com/solvena/lendsim/internal/domain"
	"github.com/solvena/lendsim/internal/engine"
	"github.com/solvena/lendsim/internal/services/scenario"
	"github.com/solvena/lendsim/internal/setup"
	"github.com/solvena/lendsim/internal/storage/events"
	"github.com/solvena/lendsim/internal/web"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		os.Args = append(os.Args[:1], "--config", "config.gen.yaml")
	}

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	market, err := domain.NewMarketSnapshot(cfg.CollateralAsset, cfg.DebtAsset,
		cfg.CollateralPrice, cfg.DebtAssetPrice, cfg.LiquidationFeePercent)
	if err != nil {
		logger.Fatal("invalid market configuration", zap.Error(err))
	}

	policy := engine.Policy{
		MaxInitialLTVPercent:        cfg.MaxInitialLTVPercent,
		WarningLTVPercent:           cfg.WarningLTVPercent,
		LiquidationThresholdPercent: cfg.LiquidationThresholdPercent,
		RepayTolerancePercent:       cfg.RepayTolerancePercent,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := engine.NewMetrics(registry)

	opts := []engine.Option{engine.WithMetrics(metrics)}

	var store *events.WALStore
	if cfg.WALDir != "" {
		store, err = events.NewWALStore(cfg.WALDir)
		if err != nil {
			logger.Fatal("failed to open event journal", zap.Error(err))
		}
		defer store.Close()
		opts = append(opts, engine.WithJournal(store))
	}

	eng := engine.NewEngine(policy, market, cfg.StartDate, logger, opts...)

	logger.Info("lending simulator starting",
		zap.String("collateral", cfg.CollateralAsset),
		zap.String("debt", cfg.DebtAsset),
		zap.String("listen", cfg.ListenAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := web.NewServer(cfg.ListenAddr, eng, store,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})

	if cfg.Scenario.Enabled {
		g.Go(func() error {
			runner, err := scenario.NewRunner(eng, scenario.Config{
				Days:              cfg.Scenario.Days,
				Seed:              cfg.Scenario.Seed,
				DriftPercent:      cfg.Scenario.DriftPercent,
				VolatilityPercent: cfg.Scenario.VolatilityPercent,
				AutoLiquidate:     cfg.Scenario.AutoLiquidate,
			}, logger)
			if err != nil {
				return err
			}

			result, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			logger.Info("scenario complete",
				zap.Int("liquidations", result.Liquidations),
				zap.String("final_price", result.FinalPrice.String()))
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("simulator stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
