package domain

import "github.com/shopspring/decimal"

var daysPerYear = decimal.NewFromInt(365)

// DailyGrowthFactor returns (1 + rate/365/100)^days, the compounding
// multiplier applied to an outstanding balance over the given number of
// whole days at the given annual percentage rate.
func DailyGrowthFactor(annualRatePercent decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 || annualRatePercent.LessThanOrEqual(decimal.Zero) {
		return decimal.NewFromInt(1)
	}

	dailyRate := annualRatePercent.Div(daysPerYear).Div(hundred)
	return decimal.NewFromInt(1).Add(dailyRate).Pow(decimal.NewFromInt(int64(days)))
}

// CompoundInterest returns the interest a principal earns over the given
// number of days at daily compounding: principal * ((1 + rate/365/100)^days - 1).
func CompoundInterest(principal, annualRatePercent decimal.Decimal, days int) decimal.Decimal {
	if principal.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}

	factor := DailyGrowthFactor(annualRatePercent, days)
	return principal.Mul(factor.Sub(decimal.NewFromInt(1)))
}
