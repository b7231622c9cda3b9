package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CollateralValue returns the reference-currency value of a collateral amount.
func CollateralValue(amount, price decimal.Decimal) decimal.Decimal {
	return amount.Mul(price)
}

// LoanToValue returns debt value over collateral value as a percentage.
// A zero (or negative) collateral value yields 0 so empty positions never
// propagate division errors into aggregates.
func LoanToValue(collateralValue, debtValue decimal.Decimal) decimal.Decimal {
	if collateralValue.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	return debtValue.Div(collateralValue).Mul(hundred)
}

// MaxBorrow returns the maximum debt value that keeps the loan at the
// target LTV for the given collateral.
func MaxBorrow(collateralAmount, collateralPrice, targetLTVPercent decimal.Decimal) (decimal.Decimal, error) {
	if collateralPrice.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.Errorf("collateral price must be positive, got %s", collateralPrice.String())
	}
	if targetLTVPercent.IsNegative() {
		return decimal.Zero, errors.Errorf("target LTV percent must not be negative, got %s", targetLTVPercent.String())
	}

	return collateralAmount.Mul(collateralPrice).Mul(targetLTVPercent).Div(hundred), nil
}

// LiquidationTriggerPrice solves for the collateral price at which the
// loan's LTV reaches the liquidation threshold.
func LiquidationTriggerPrice(debtValue, collateralAmount, thresholdPercent decimal.Decimal) (decimal.Decimal, error) {
	if collateralAmount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.Errorf("collateral amount must be positive, got %s", collateralAmount.String())
	}
	if thresholdPercent.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.Errorf("liquidation threshold percent must be positive, got %s", thresholdPercent.String())
	}

	return debtValue.Div(collateralAmount).Mul(hundred.Div(thresholdPercent)), nil
}

// IsLiquidatable reports whether the LTV has reached the liquidation
// threshold. The comparison is inclusive: a loan exactly at the threshold
// is liquidatable.
func IsLiquidatable(ltvPercent, thresholdPercent decimal.Decimal) bool {
	return ltvPercent.GreaterThanOrEqual(thresholdPercent)
}

// LiquidationSplit describes how seized collateral is divided on liquidation.
type LiquidationSplit struct {
	Penalty            decimal.Decimal `json:"penalty"`
	AmountToRecover    decimal.Decimal `json:"amount_to_recover"`
	CollateralSeized   decimal.Decimal `json:"collateral_seized"`
	CollateralReturned decimal.Decimal `json:"collateral_returned"`
}

// SplitLiquidation computes the liquidation outcome: total debt plus the
// penalty is recovered from collateral at the current price, clamped to the
// collateral actually available. Undercollateralized loans return zero,
// never negative, collateral to the borrower.
func SplitLiquidation(totalDebt, liquidationFeePercent, collateralPrice, collateralAvailable decimal.Decimal) (LiquidationSplit, error) {
	if collateralPrice.LessThanOrEqual(decimal.Zero) {
		return LiquidationSplit{}, errors.Errorf("collateral price must be positive, got %s", collateralPrice.String())
	}
	if liquidationFeePercent.IsNegative() {
		return LiquidationSplit{}, errors.Errorf("liquidation fee percent must not be negative, got %s", liquidationFeePercent.String())
	}
	if collateralAvailable.IsNegative() {
		return LiquidationSplit{}, errors.Errorf("collateral available must not be negative, got %s", collateralAvailable.String())
	}

	penalty := totalDebt.Mul(liquidationFeePercent).Div(hundred)
	amountToRecover := totalDebt.Add(penalty)

	seized := amountToRecover.Div(collateralPrice)
	if seized.GreaterThan(collateralAvailable) {
		seized = collateralAvailable
	}

	return LiquidationSplit{
		Penalty:            penalty,
		AmountToRecover:    amountToRecover,
		CollateralSeized:   seized,
		CollateralReturned: collateralAvailable.Sub(seized),
	}, nil
}
