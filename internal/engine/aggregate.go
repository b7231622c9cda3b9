package engine

import (
	"github.com/shopspring/decimal"

	"github.com/solvena/lendsim/internal/domain"
)

// PortfolioMetrics is a read-only rollup over open loans. An empty
// portfolio yields zero values, never division errors.
type PortfolioMetrics struct {
	OpenLoans            int             `json:"open_loans"`
	TotalCollateral      decimal.Decimal `json:"total_collateral"`
	TotalCollateralValue decimal.Decimal `json:"total_collateral_value"`
	TotalDebt            decimal.Decimal `json:"total_debt"`
	TotalDebtValue       decimal.Decimal `json:"total_debt_value"`
	PortfolioLTV         decimal.Decimal `json:"portfolio_ltv"`
	AtRisk               int             `json:"at_risk"`
	Liquidatable         int             `json:"liquidatable"`
}

func computePortfolio(loans []*domain.Loan, market *domain.MarketSnapshot, warningPercent decimal.Decimal) PortfolioMetrics {
	m := PortfolioMetrics{
		TotalCollateral:      decimal.Zero,
		TotalCollateralValue: decimal.Zero,
		TotalDebt:            decimal.Zero,
		TotalDebtValue:       decimal.Zero,
		PortfolioLTV:         decimal.Zero,
	}

	for _, loan := range loans {
		if !loan.IsOpen() {
			continue
		}

		m.OpenLoans++
		m.TotalCollateral = m.TotalCollateral.Add(loan.CollateralAmount)
		m.TotalDebt = m.TotalDebt.Add(loan.TotalDebt())

		if loan.CurrentLTV.GreaterThanOrEqual(warningPercent) {
			m.AtRisk++
		}
		if domain.IsLiquidatable(loan.CurrentLTV, loan.LiquidationThresholdPercent) {
			m.Liquidatable++
		}
	}

	m.TotalCollateralValue = domain.CollateralValue(m.TotalCollateral, market.CollateralPrice)
	m.TotalDebtValue = m.TotalDebt.Mul(market.DebtAssetPrice)
	m.PortfolioLTV = domain.LoanToValue(m.TotalCollateralValue, m.TotalDebtValue)

	return m
}
