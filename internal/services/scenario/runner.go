// Package scenario drives the engine through a deterministic market
// simulation: a seeded collateral price path is replayed day by day,
// optionally force-closing loans that cross their liquidation threshold.
package scenario

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solvena/lendsim/internal/engine"
	"github.com/solvena/lendsim/internal/services/pricesim"
)

const emaPeriod = 10

// Config describes a scenario run.
type Config struct {
	Days              int
	Seed              int64
	DriftPercent      decimal.Decimal
	VolatilityPercent decimal.Decimal
	AutoLiquidate     bool
}

// Result summarizes a finished scenario.
type Result struct {
	Days         int
	Liquidations int
	FinalPrice   decimal.Decimal
	PathStats    pricesim.PathStats
	Portfolio    engine.PortfolioMetrics
}

// Runner replays a generated price path against the engine.
type Runner struct {
	engine *engine.Engine
	logger *zap.Logger
	cfg    Config
}

// NewRunner creates a scenario runner.
func NewRunner(eng *engine.Engine, cfg Config, logger *zap.Logger) (*Runner, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Days <= 0 {
		return nil, errors.Errorf("scenario days must be positive, got %d", cfg.Days)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{engine: eng, logger: logger, cfg: cfg}, nil
}

// Run executes the scenario: each simulated day sets the next path price,
// liquidates eligible loans when auto-liquidation is on, then advances the
// clock by one day. Stops early when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	path, err := pricesim.Generate(pricesim.Config{
		StartPrice:        r.engine.Snapshot().CollateralPrice,
		DriftPercent:      r.cfg.DriftPercent,
		VolatilityPercent: r.cfg.VolatilityPercent,
		Days:              r.cfg.Days,
		Seed:              r.cfg.Seed,
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "generate price path")
	}

	result := Result{Days: r.cfg.Days}

	for day := 1; day <= r.cfg.Days; day++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := r.engine.SetCollateralPrice(path[day]); err != nil {
			return result, errors.Wrapf(err, "set price on day %d", day)
		}

		if r.cfg.AutoLiquidate {
			for _, loan := range r.engine.Liquidatable() {
				event, err := r.engine.Liquidate(loan.ID)
				if err != nil {
					return result, errors.Wrapf(err, "liquidate loan %s on day %d", loan.ID, day)
				}
				result.Liquidations++

				r.logger.Info("scenario liquidation",
					zap.Int("day", day),
					zap.String("loan", event.LoanID),
					zap.String("price", event.Price.String()))
			}
		}

		if err := r.engine.AdvanceTime(1); err != nil {
			return result, errors.Wrapf(err, "advance day %d", day)
		}
	}

	period := emaPeriod
	if len(path) < period {
		period = len(path)
	}
	stats, err := pricesim.Stats(path, period)
	if err != nil {
		return result, errors.Wrap(err, "path stats")
	}

	result.FinalPrice = path[len(path)-1]
	result.PathStats = stats
	result.Portfolio = r.engine.Portfolio()

	r.logger.Info("scenario finished",
		zap.Int("days", result.Days),
		zap.Int("liquidations", result.Liquidations),
		zap.String("final_price", result.FinalPrice.String()),
		zap.String("path_min", stats.Min.String()),
		zap.String("path_max", stats.Max.String()),
		zap.String("path_ema", stats.EMA.String()))

	return result, nil
}
