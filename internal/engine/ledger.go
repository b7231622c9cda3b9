package engine

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/solvena/lendsim/internal/domain"
)

// ErrLoanNotFound is returned for operations on unknown loan ids.
var ErrLoanNotFound = errors.New("loan not found")

// ErrNoEffect marks idempotent no-ops, e.g. liquidating a loan that is
// already terminal. Distinct from a hard failure so callers can decide how
// to surface it.
var ErrNoEffect = errors.New("operation had no effect")

// Ledger is the authoritative collection of loan records plus the
// append-only liquidation history. It owns loan identity; all risk-figure
// refreshes run through it so no reader ever observes stale LTVs after a
// price or time update.
type Ledger struct {
	loans        map[string]*domain.Loan
	order        []string
	liquidations []domain.LiquidationEvent
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		loans: make(map[string]*domain.Loan),
		order: make([]string, 0),
	}
}

// Add registers a new loan. Duplicate ids are rejected.
func (l *Ledger) Add(loan *domain.Loan) error {
	if _, exists := l.loans[loan.ID]; exists {
		return errors.Errorf("loan %s already exists", loan.ID)
	}

	l.loans[loan.ID] = loan
	l.order = append(l.order, loan.ID)
	return nil
}

// Get returns the loan with the given id.
func (l *Ledger) Get(id string) (*domain.Loan, error) {
	loan, ok := l.loans[id]
	if !ok {
		return nil, errors.Wrap(ErrLoanNotFound, id)
	}
	return loan, nil
}

// Loans returns loans in creation order, optionally filtered by status.
func (l *Ledger) Loans(statuses ...domain.LoanStatus) []*domain.Loan {
	out := make([]*domain.Loan, 0, len(l.order))
	for _, id := range l.order {
		loan := l.loans[id]
		if len(statuses) == 0 {
			out = append(out, loan)
			continue
		}
		for _, s := range statuses {
			if loan.Status == s {
				out = append(out, loan)
				break
			}
		}
	}
	return out
}

// OpenLoans returns loans that still carry debt (active or matured).
func (l *Ledger) OpenLoans() []*domain.Loan {
	out := make([]*domain.Loan, 0, len(l.order))
	for _, id := range l.order {
		if loan := l.loans[id]; loan.IsOpen() {
			out = append(out, loan)
		}
	}
	return out
}

// RefreshRisk recomputes LTV and liquidation price for every open loan
// against the given market snapshot.
func (l *Ledger) RefreshRisk(market *domain.MarketSnapshot) error {
	for _, loan := range l.OpenLoans() {
		if err := loan.RefreshRisk(market); err != nil {
			return err
		}
	}
	return nil
}

// Liquidatable returns open loans whose last-computed LTV is at or above
// their liquidation threshold. Pure filter, no mutation.
func (l *Ledger) Liquidatable() []*domain.Loan {
	out := make([]*domain.Loan, 0)
	for _, loan := range l.OpenLoans() {
		if domain.IsLiquidatable(loan.CurrentLTV, loan.LiquidationThresholdPercent) {
			out = append(out, loan)
		}
	}
	return out
}

// MarginCalls returns open loans whose LTV crossed the warning threshold,
// which sits below the liquidation threshold.
func (l *Ledger) MarginCalls(warningPercent decimal.Decimal) []*domain.Loan {
	out := make([]*domain.Loan, 0)
	for _, loan := range l.OpenLoans() {
		if loan.CurrentLTV.GreaterThanOrEqual(warningPercent) {
			out = append(out, loan)
		}
	}
	return out
}

// RecordLiquidation appends a liquidation event to the history.
func (l *Ledger) RecordLiquidation(event domain.LiquidationEvent) {
	l.liquidations = append(l.liquidations, event)
}

// Liquidations returns the liquidation history in append order.
func (l *Ledger) Liquidations() []domain.LiquidationEvent {
	out := make([]domain.LiquidationEvent, len(l.liquidations))
	copy(out, l.liquidations)
	return out
}
