package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// MarketSnapshot holds the current reference-currency (USD) prices of the
// collateral and debt assets plus the liquidation penalty rate.
// Prices change only through the setters so callers can keep dependent
// loan figures in sync with every update.
type MarketSnapshot struct {
	CollateralAsset       string          `json:"collateral_asset"`
	DebtAsset             string          `json:"debt_asset"`
	CollateralPrice       decimal.Decimal `json:"collateral_price"`
	DebtAssetPrice        decimal.Decimal `json:"debt_asset_price"`
	LiquidationFeePercent decimal.Decimal `json:"liquidation_fee_percent"`
}

// NewMarketSnapshot creates a validated market snapshot.
func NewMarketSnapshot(collateralAsset, debtAsset string, collateralPrice, debtAssetPrice, liquidationFeePercent decimal.Decimal) (*MarketSnapshot, error) {
	if collateralPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("collateral price must be positive, got %s", collateralPrice.String())
	}
	if debtAssetPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("debt asset price must be positive, got %s", debtAssetPrice.String())
	}
	if liquidationFeePercent.IsNegative() {
		return nil, errors.Errorf("liquidation fee percent must not be negative, got %s", liquidationFeePercent.String())
	}

	return &MarketSnapshot{
		CollateralAsset:       collateralAsset,
		DebtAsset:             debtAsset,
		CollateralPrice:       collateralPrice,
		DebtAssetPrice:        debtAssetPrice,
		LiquidationFeePercent: liquidationFeePercent,
	}, nil
}

// SetCollateralPrice updates the collateral asset price.
// Non-positive prices are rejected and leave the snapshot unchanged.
func (m *MarketSnapshot) SetCollateralPrice(price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("collateral price must be positive, got %s", price.String())
	}

	m.CollateralPrice = price
	return nil
}

// SetDebtAssetPrice updates the debt asset price.
// Non-positive prices are rejected and leave the snapshot unchanged.
func (m *MarketSnapshot) SetDebtAssetPrice(price decimal.Decimal) error {
	if price.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("debt asset price must be positive, got %s", price.String())
	}

	m.DebtAssetPrice = price
	return nil
}

// CrossRate returns the price of one collateral unit denominated in the
// debt asset. Derived on every read, never stored, so it cannot drift
// from the two USD legs.
func (m *MarketSnapshot) CrossRate() decimal.Decimal {
	if m.DebtAssetPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return m.CollateralPrice.Div(m.DebtAssetPrice)
}
