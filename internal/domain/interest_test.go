package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCompoundInterest_OneDay(t *testing.T) {
	// 36.5% APR compounds at exactly 0.1% per day
	interest := CompoundInterest(decimal.NewFromInt(1000), decimal.NewFromFloat(36.5), 1)

	require.True(t, interest.Equal(decimal.NewFromInt(1)), "expected 1, got %s", interest)
}

func TestCompoundInterest_CompoundsNotSimple(t *testing.T) {
	// two days at 0.1%/day: 1000 * (1.001^2 - 1) = 2.001
	interest := CompoundInterest(decimal.NewFromInt(1000), decimal.NewFromFloat(36.5), 2)

	require.True(t, interest.Equal(decimal.NewFromFloat(2.001)), "expected 2.001, got %s", interest)
}

func TestCompoundInterest_ZeroDays(t *testing.T) {
	interest := CompoundInterest(decimal.NewFromInt(1000), decimal.NewFromFloat(36.5), 0)
	require.True(t, interest.IsZero())
}

func TestCompoundInterest_ZeroRate(t *testing.T) {
	interest := CompoundInterest(decimal.NewFromInt(1000), decimal.Zero, 365)
	require.True(t, interest.IsZero())
}

func TestCompoundInterest_ZeroPrincipal(t *testing.T) {
	interest := CompoundInterest(decimal.Zero, decimal.NewFromFloat(36.5), 365)
	require.True(t, interest.IsZero())
}

func TestDailyGrowthFactor_IdentityForNonPositiveInput(t *testing.T) {
	one := decimal.NewFromInt(1)

	require.True(t, DailyGrowthFactor(decimal.NewFromInt(12), 0).Equal(one))
	require.True(t, DailyGrowthFactor(decimal.NewFromInt(12), -3).Equal(one))
	require.True(t, DailyGrowthFactor(decimal.Zero, 10).Equal(one))
}
