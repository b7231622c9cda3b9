package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	// StatusActive loan is open and within its term.
	StatusActive LoanStatus = "active"
	// StatusMatured loan passed its maturity date but is still open:
	// interest keeps accruing and repay/liquidate still apply.
	StatusMatured LoanStatus = "matured"
	// StatusRepaid loan was fully repaid. Terminal.
	StatusRepaid LoanStatus = "repaid"
	// StatusLiquidated loan was forcibly closed. Terminal.
	StatusLiquidated LoanStatus = "liquidated"
)

const hoursPerDay = 24

// Loan is a collateralized debt position. Balances are mutated only through
// the methods below; CurrentLTV and LiquidationPrice are refreshed by the
// ledger after every mutation and price update, so between mutations they
// are "as of last update" values.
type Loan struct {
	ID                          string          `json:"id"`
	CollateralAmount            decimal.Decimal `json:"collateral_amount"`
	BorrowedAmount              decimal.Decimal `json:"borrowed_amount"`
	AccruedInterest             decimal.Decimal `json:"accrued_interest"`
	InterestRatePercent         decimal.Decimal `json:"interest_rate_percent"`
	LiquidationThresholdPercent decimal.Decimal `json:"liquidation_threshold_percent"`
	TermDays                    int             `json:"term_days"`
	CreatedAt                   time.Time       `json:"created_at"`
	MaturityDate                time.Time       `json:"maturity_date"`
	CurrentLTV                  decimal.Decimal `json:"current_ltv"`
	LiquidationPrice            decimal.Decimal `json:"liquidation_price"`
	Status                      LoanStatus      `json:"status"`
}

// NewLoan creates a validated loan opened at the given simulation time.
func NewLoan(id string, collateralAmount, borrowedAmount, interestRatePercent, liquidationThresholdPercent decimal.Decimal, termDays int, now time.Time) (*Loan, error) {
	if id == "" {
		return nil, errors.New("loan id is required")
	}
	if collateralAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("collateral amount must be positive, got %s", collateralAmount.String())
	}
	if borrowedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("borrowed amount must be positive, got %s", borrowedAmount.String())
	}
	if interestRatePercent.IsNegative() {
		return nil, errors.Errorf("interest rate percent must not be negative, got %s", interestRatePercent.String())
	}
	if liquidationThresholdPercent.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("liquidation threshold percent must be positive, got %s", liquidationThresholdPercent.String())
	}
	if termDays <= 0 {
		return nil, errors.Errorf("term days must be positive, got %d", termDays)
	}

	return &Loan{
		ID:                          id,
		CollateralAmount:            collateralAmount,
		BorrowedAmount:              borrowedAmount,
		AccruedInterest:             decimal.Zero,
		InterestRatePercent:         interestRatePercent,
		LiquidationThresholdPercent: liquidationThresholdPercent,
		TermDays:                    termDays,
		CreatedAt:                   now,
		MaturityDate:                now.Add(time.Duration(termDays) * hoursPerDay * time.Hour),
		Status:                      StatusActive,
	}, nil
}

// TotalDebt returns outstanding principal plus accrued interest.
func (l *Loan) TotalDebt() decimal.Decimal {
	return l.BorrowedAmount.Add(l.AccruedInterest)
}

// IsOpen reports whether the loan still carries debt (active or matured).
func (l *Loan) IsOpen() bool {
	return l.Status == StatusActive || l.Status == StatusMatured
}

// IsTerminal reports whether the loan reached a final state.
func (l *Loan) IsTerminal() bool {
	return l.Status == StatusRepaid || l.Status == StatusLiquidated
}

// Accrue compounds interest on the outstanding balance over the given
// number of days. The whole balance (principal plus previously accrued
// interest) grows by the daily factor, so consecutive advances compose to
// the same figure as a single advance of the summed days.
func (l *Loan) Accrue(days int) {
	if days <= 0 || !l.IsOpen() {
		return
	}

	factor := DailyGrowthFactor(l.InterestRatePercent, days)
	grown := l.TotalDebt().Mul(factor)
	l.AccruedInterest = grown.Sub(l.BorrowedAmount)
}

// ApplyPayment reduces the debt by the paid amount, interest first, then
// principal. Paying the full debt marks the loan repaid and releases the
// collateral conceptually (the amount field is left for history).
func (l *Loan) ApplyPayment(amount decimal.Decimal) error {
	if !l.IsOpen() {
		return errors.Errorf("loan %s is %s, payment not accepted", l.ID, l.Status)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("payment amount must be positive, got %s", amount.String())
	}
	if amount.GreaterThan(l.TotalDebt()) {
		return errors.Errorf("payment %s exceeds total debt %s", amount.String(), l.TotalDebt().String())
	}

	remaining := amount
	if l.AccruedInterest.IsPositive() {
		if remaining.GreaterThanOrEqual(l.AccruedInterest) {
			remaining = remaining.Sub(l.AccruedInterest)
			l.AccruedInterest = decimal.Zero
		} else {
			l.AccruedInterest = l.AccruedInterest.Sub(remaining)
			remaining = decimal.Zero
		}
	}

	l.BorrowedAmount = l.BorrowedAmount.Sub(remaining)

	if l.TotalDebt().IsZero() {
		l.Status = StatusRepaid
	}
	return nil
}

// AddCollateral locks additional collateral into the loan.
func (l *Loan) AddCollateral(amount decimal.Decimal) error {
	if !l.IsOpen() {
		return errors.Errorf("loan %s is %s, collateral not accepted", l.ID, l.Status)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return errors.Errorf("collateral amount must be positive, got %s", amount.String())
	}

	l.CollateralAmount = l.CollateralAmount.Add(amount)
	return nil
}

// RefreshRisk recomputes CurrentLTV and LiquidationPrice against the given
// market snapshot. Terminal loans keep their last figures.
func (l *Loan) RefreshRisk(market *MarketSnapshot) error {
	if !l.IsOpen() {
		return nil
	}

	debtValue := l.TotalDebt().Mul(market.DebtAssetPrice)
	collateralValue := CollateralValue(l.CollateralAmount, market.CollateralPrice)
	l.CurrentLTV = LoanToValue(collateralValue, debtValue)

	trigger, err := LiquidationTriggerPrice(debtValue, l.CollateralAmount, l.LiquidationThresholdPercent)
	if err != nil {
		return errors.Wrapf(err, "refresh risk for loan %s", l.ID)
	}
	l.LiquidationPrice = trigger

	return nil
}

// RefreshMaturity flips an active loan to matured once the virtual clock
// passes the maturity date. Maturity is advisory: it never blocks further
// loan operations.
func (l *Loan) RefreshMaturity(now time.Time) {
	if l.Status == StatusActive && !now.Before(l.MaturityDate) {
		l.Status = StatusMatured
	}
}

// DaysUntilMaturity returns whole days left before maturity relative to the
// virtual clock; negative once the loan is past due.
func (l *Loan) DaysUntilMaturity(now time.Time) int {
	return int(l.MaturityDate.Sub(now).Hours() / hoursPerDay)
}
