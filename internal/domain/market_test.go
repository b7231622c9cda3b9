package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewMarketSnapshot_RejectsNonPositivePrices(t *testing.T) {
	_, err := NewMarketSnapshot("MEME", "SOL", decimal.Zero, decimal.NewFromInt(3), decimal.NewFromInt(10))
	require.Error(t, err)

	_, err = NewMarketSnapshot("MEME", "SOL", decimal.NewFromFloat(0.02), decimal.Zero, decimal.NewFromInt(10))
	require.Error(t, err)

	_, err = NewMarketSnapshot("MEME", "SOL", decimal.NewFromFloat(0.02), decimal.NewFromInt(3), decimal.NewFromInt(-1))
	require.Error(t, err)
}

func TestSetCollateralPrice_RejectsNonPositive(t *testing.T) {
	market := testMarket(t)

	require.Error(t, market.SetCollateralPrice(decimal.Zero))
	require.Error(t, market.SetCollateralPrice(decimal.NewFromInt(-1)))
	require.True(t, market.CollateralPrice.Equal(decimal.NewFromFloat(0.02)), "rejected update must not change the price")

	require.NoError(t, market.SetCollateralPrice(decimal.NewFromFloat(0.03)))
	require.True(t, market.CollateralPrice.Equal(decimal.NewFromFloat(0.03)))
}

func TestSetDebtAssetPrice_RejectsNonPositive(t *testing.T) {
	market := testMarket(t)

	require.Error(t, market.SetDebtAssetPrice(decimal.Zero))
	require.True(t, market.DebtAssetPrice.Equal(decimal.NewFromInt(3)))

	require.NoError(t, market.SetDebtAssetPrice(decimal.NewFromInt(4)))
	require.True(t, market.DebtAssetPrice.Equal(decimal.NewFromInt(4)))
}

func TestCrossRate_DerivedFromBothLegs(t *testing.T) {
	market := testMarket(t)

	// 0.02 / 3 collateral units per debt unit
	expected := decimal.NewFromFloat(0.02).Div(decimal.NewFromInt(3))
	require.True(t, market.CrossRate().Equal(expected))

	// changing either leg changes the derived rate, no stale cache
	require.NoError(t, market.SetCollateralPrice(decimal.NewFromFloat(0.04)))
	expected = decimal.NewFromFloat(0.04).Div(decimal.NewFromInt(3))
	require.True(t, market.CrossRate().Equal(expected))
}
