package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solvena/lendsim/internal/domain"
	"github.com/solvena/lendsim/internal/engine"
)

func newScenarioEngine(t *testing.T) *engine.Engine {
	t.Helper()

	market, err := domain.NewMarketSnapshot("MEME", "SOL",
		decimal.NewFromFloat(0.02), decimal.NewFromInt(3), decimal.NewFromInt(10))
	require.NoError(t, err)

	return engine.NewEngine(engine.DefaultPolicy(), market,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), zap.NewNop())
}

func TestRun_AutoLiquidatesOnSteadyDecline(t *testing.T) {
	eng := newScenarioEngine(t)

	loan, err := eng.CreateLoan(engine.CreateParams{
		CollateralAmount:    decimal.NewFromInt(150000),
		BorrowAmount:        decimal.NewFromInt(500),
		InterestRatePercent: decimal.NewFromInt(12),
		TermDays:            90,
	})
	require.NoError(t, err)

	// -3%/day with zero volatility crosses the ~0.0153846 trigger near day 9
	runner, err := NewRunner(eng, Config{
		Days:          30,
		Seed:          1,
		DriftPercent:  decimal.NewFromInt(-3),
		AutoLiquidate: true,
	}, zap.NewNop())
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, result.Liquidations)
	require.Len(t, eng.Liquidations(), 1)

	got, err := eng.Loan(loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusLiquidated, got.Status)
}

func TestRun_AdvancesClockOncePerDay(t *testing.T) {
	eng := newScenarioEngine(t)
	start := eng.Now()

	runner, err := NewRunner(eng, Config{Days: 14, Seed: 7, VolatilityPercent: decimal.NewFromInt(1)}, zap.NewNop())
	require.NoError(t, err)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 14, result.Days)
	require.Equal(t, start.Add(14*24*time.Hour), eng.Now())
	require.True(t, eng.Snapshot().CollateralPrice.Equal(result.FinalPrice))
}

func TestRun_StopsOnCancelledContext(t *testing.T) {
	eng := newScenarioEngine(t)

	runner, err := NewRunner(eng, Config{Days: 1000, Seed: 7}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRunner_Validation(t *testing.T) {
	eng := newScenarioEngine(t)

	_, err := NewRunner(nil, Config{Days: 10}, zap.NewNop())
	require.Error(t, err)

	_, err = NewRunner(eng, Config{Days: 0}, zap.NewNop())
	require.Error(t, err)
}
