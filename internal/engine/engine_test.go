package engine

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solvena/lendsim/internal/domain"
)

type memJournal struct {
	events []domain.LoanEvent
}

func (j *memJournal) Append(event domain.LoanEvent) error {
	j.events = append(j.events, event)
	return nil
}

func (j *memJournal) kinds() []domain.EventKind {
	out := make([]domain.EventKind, 0, len(j.events))
	for _, e := range j.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestEngine(t *testing.T) (*Engine, *memJournal) {
	t.Helper()

	market, err := domain.NewMarketSnapshot("MEME", "SOL",
		decimal.NewFromFloat(0.02), decimal.NewFromInt(3), decimal.NewFromInt(10))
	require.NoError(t, err)

	journal := &memJournal{}
	eng := NewEngine(DefaultPolicy(), market,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		zap.NewNop(), WithJournal(journal))

	return eng, journal
}

func createTestLoan(t *testing.T, eng *Engine) *domain.Loan {
	t.Helper()

	loan, err := eng.CreateLoan(CreateParams{
		CollateralAmount:    decimal.NewFromInt(150000),
		BorrowAmount:        decimal.NewFromInt(500),
		InterestRatePercent: decimal.NewFromInt(12),
		TermDays:            30,
	})
	require.NoError(t, err)
	return loan
}

func TestCreateLoan_ComputesInitialRiskFields(t *testing.T) {
	eng, journal := newTestEngine(t)

	loan := createTestLoan(t, eng)

	require.Equal(t, domain.StatusActive, loan.Status)
	require.True(t, loan.CurrentLTV.Equal(decimal.NewFromInt(50)), "expected initial LTV 50, got %s", loan.CurrentLTV)
	require.False(t, loan.LiquidationPrice.IsZero())
	require.Equal(t, eng.Now(), loan.CreatedAt)
	require.Equal(t, []domain.EventKind{domain.EventLoanCreated}, journal.kinds())
}

func TestCreateLoan_RejectsZeroCollateral(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.CreateLoan(CreateParams{
		CollateralAmount:    decimal.Zero,
		BorrowAmount:        decimal.NewFromInt(500),
		InterestRatePercent: decimal.NewFromInt(12),
		TermDays:            30,
	})
	require.Error(t, err)
	require.Empty(t, eng.Loans())
}

func TestCreateLoan_EnforcesInitialLTVCap(t *testing.T) {
	eng, _ := newTestEngine(t)

	// 600 * 3 / (150000 * 0.02) * 100 = 60% > 50% cap
	_, err := eng.CreateLoan(CreateParams{
		CollateralAmount:    decimal.NewFromInt(150000),
		BorrowAmount:        decimal.NewFromInt(600),
		InterestRatePercent: decimal.NewFromInt(12),
		TermDays:            30,
	})
	require.Error(t, err)
	require.Empty(t, eng.Loans(), "rejected create must not leave a loan behind")
}

func TestCreateLoan_DerivesBorrowFromTargetLTV(t *testing.T) {
	eng, _ := newTestEngine(t)

	loan, err := eng.CreateLoan(CreateParams{
		CollateralAmount:    decimal.NewFromInt(150000),
		TargetLTVPercent:    decimal.NewFromInt(40),
		InterestRatePercent: decimal.NewFromInt(12),
		TermDays:            30,
	})
	require.NoError(t, err)

	// 150000 * 0.02 * 40% = $1200 => 400 debt units at $3
	require.True(t, loan.BorrowedAmount.Equal(decimal.NewFromInt(400)), "expected 400, got %s", loan.BorrowedAmount)
	require.True(t, loan.CurrentLTV.Equal(decimal.NewFromInt(40)))
}

func TestRepay_FullWhenAmountOmitted(t *testing.T) {
	eng, journal := newTestEngine(t)
	loan := createTestLoan(t, eng)

	repaid, err := eng.Repay(loan.ID, nil)
	require.NoError(t, err)

	require.Equal(t, domain.StatusRepaid, repaid.Status)
	require.True(t, repaid.TotalDebt().IsZero())
	require.Contains(t, journal.kinds(), domain.EventLoanRepaid)
}

func TestRepay_PartialRecomputesLTV(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	amount := decimal.NewFromInt(250)
	repaid, err := eng.Repay(loan.ID, &amount)
	require.NoError(t, err)

	require.True(t, repaid.BorrowedAmount.Equal(decimal.NewFromInt(250)))
	require.True(t, repaid.CurrentLTV.Equal(decimal.NewFromInt(25)), "expected LTV 25, got %s", repaid.CurrentLTV)
	require.Equal(t, domain.StatusActive, repaid.Status)
}

func TestRepay_OverpaymentWithinToleranceIsFullRepayment(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	// 0.5% over the debt, inside the 1% tolerance
	amount := decimal.NewFromFloat(502.5)
	repaid, err := eng.Repay(loan.ID, &amount)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRepaid, repaid.Status)
}

func TestRepay_OverpaymentBeyondToleranceRejected(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	amount := decimal.NewFromInt(510)
	_, err := eng.Repay(loan.ID, &amount)
	require.Error(t, err)

	got, err := eng.Loan(loan.ID)
	require.NoError(t, err)
	require.True(t, got.BorrowedAmount.Equal(decimal.NewFromInt(500)), "rejected repay must not mutate the loan")
}

func TestRepay_UnknownLoan(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Repay("nope", nil)
	require.ErrorIs(t, err, ErrLoanNotFound)
}

func TestAddCollateral_RefreshesRisk(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)
	before := loan.CurrentLTV

	updated, err := eng.AddCollateral(loan.ID, decimal.NewFromInt(50000))
	require.NoError(t, err)

	require.True(t, updated.CollateralAmount.Equal(decimal.NewFromInt(200000)))
	require.True(t, updated.CurrentLTV.LessThan(before))
}

func TestLiquidate_AppendsExactlyOneEventAndIsIdempotent(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	// drop the price past the trigger (~0.015385)
	require.NoError(t, eng.SetCollateralPrice(decimal.NewFromFloat(0.015)))
	require.Len(t, eng.Liquidatable(), 1)

	event, err := eng.Liquidate(loan.ID)
	require.NoError(t, err)
	require.Equal(t, loan.ID, event.LoanID)
	require.True(t, event.CollateralSeized.LessThanOrEqual(decimal.NewFromInt(150000)))

	// second call: no-op signalled distinctly, still exactly one event
	_, err = eng.Liquidate(loan.ID)
	require.ErrorIs(t, err, ErrNoEffect)
	require.Len(t, eng.Liquidations(), 1)

	got, err := eng.Loan(loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusLiquidated, got.Status)
}

func TestLiquidate_RepaidLoanIsNoEffect(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	_, err := eng.Repay(loan.ID, nil)
	require.NoError(t, err)

	_, err = eng.Liquidate(loan.ID)
	require.ErrorIs(t, err, ErrNoEffect)
	require.Empty(t, eng.Liquidations())
}

func TestSetCollateralPrice_RecomputesBeforeReturn(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	require.NoError(t, eng.SetCollateralPrice(decimal.NewFromFloat(0.01)))

	got, err := eng.Loan(loan.ID)
	require.NoError(t, err)
	// (500*3) / (150000*0.01) * 100 = 100%
	require.True(t, got.CurrentLTV.Equal(decimal.NewFromInt(100)), "expected LTV 100 right after update, got %s", got.CurrentLTV)
	require.Equal(t, loan.ID, got.ID)
}

func TestSetCollateralPrice_RejectedUpdateLeavesStateUntouched(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)
	before := loan.CurrentLTV

	require.Error(t, eng.SetCollateralPrice(decimal.Zero))

	require.True(t, eng.Snapshot().CollateralPrice.Equal(decimal.NewFromFloat(0.02)))
	got, err := eng.Loan(loan.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentLTV.Equal(before))
}

func TestSetDebtAssetPrice_AffectsLTV(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	require.NoError(t, eng.SetDebtAssetPrice(decimal.NewFromInt(6)))

	got, err := eng.Loan(loan.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentLTV.Equal(decimal.NewFromInt(100)), "doubling the debt asset price doubles LTV")
	_ = loan
}

func TestAdvanceTime_AccruesInterestOnOpenLoans(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	require.NoError(t, eng.AdvanceTime(10))

	got, err := eng.Loan(loan.ID)
	require.NoError(t, err)

	expected := domain.CompoundInterest(decimal.NewFromInt(500), decimal.NewFromInt(12), 10)
	require.True(t, got.AccruedInterest.Equal(expected), "expected %s accrued, got %s", expected, got.AccruedInterest)
	require.Equal(t, time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC), eng.Now())
}

func TestAdvanceTime_RejectsNonPositiveDays(t *testing.T) {
	eng, _ := newTestEngine(t)
	before := eng.Now()

	require.Error(t, eng.AdvanceTime(0))
	require.Error(t, eng.AdvanceTime(-5))
	require.Equal(t, before, eng.Now())
}

func TestAdvanceTime_MaturesPastDueLoans(t *testing.T) {
	eng, journal := newTestEngine(t)
	loan := createTestLoan(t, eng)

	require.NoError(t, eng.AdvanceTime(31))

	got, err := eng.Loan(loan.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusMatured, got.Status)
	require.Contains(t, journal.kinds(), domain.EventLoanMatured)

	// maturity is advisory: the loan can still be repaid
	_, err = eng.Repay(loan.ID, nil)
	require.NoError(t, err)
}

func TestMarginCalls_WarningBelowLiquidation(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)

	// 55% LTV: above the 50% warning, below the 65% liquidation threshold
	require.NoError(t, eng.SetCollateralPrice(decimal.NewFromFloat(0.0181818)))

	calls := eng.MarginCalls()
	require.Len(t, calls, 1)
	require.Equal(t, loan.ID, calls[0].ID)
	require.Empty(t, eng.Liquidatable())
}

func TestErrNoEffect_DistinguishableFromNotFound(t *testing.T) {
	eng, _ := newTestEngine(t)
	loan := createTestLoan(t, eng)
	_, err := eng.Repay(loan.ID, nil)
	require.NoError(t, err)

	_, errNoEffect := eng.Liquidate(loan.ID)
	_, errNotFound := eng.Liquidate("missing")

	require.True(t, errors.Is(errNoEffect, ErrNoEffect))
	require.False(t, errors.Is(errNoEffect, ErrLoanNotFound))
	require.True(t, errors.Is(errNotFound, ErrLoanNotFound))
}
