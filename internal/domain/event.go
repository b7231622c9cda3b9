package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind classifies loan lifecycle events.
type EventKind string

const (
	EventLoanCreated     EventKind = "loan_created"
	EventLoanRepaid      EventKind = "loan_repaid"
	EventPartialPayment  EventKind = "partial_payment"
	EventCollateralAdded EventKind = "collateral_added"
	EventLoanLiquidated  EventKind = "loan_liquidated"
	EventLoanMatured     EventKind = "loan_matured"
	EventPriceUpdated    EventKind = "price_updated"
)

// LoanEvent is a single entry in the append-only lifecycle journal.
// Timestamp is simulation time, not wall-clock time.
type LoanEvent struct {
	Kind             EventKind       `json:"kind"`
	LoanID           string          `json:"loan_id,omitempty"`
	Timestamp        time.Time       `json:"ts"`
	Amount           decimal.Decimal `json:"amount,omitempty"`
	CollateralPrice  decimal.Decimal `json:"collateral_price,omitempty"`
	DebtAssetPrice   decimal.Decimal `json:"debt_asset_price,omitempty"`
	CurrentLTV       decimal.Decimal `json:"current_ltv,omitempty"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price,omitempty"`
}

// LoanEventRecord couples a journal event with its WAL index so readers can
// resume streaming from where they left off.
type LoanEventRecord struct {
	Index uint64    `json:"index"`
	Event LoanEvent `json:"event"`
}

// LiquidationEvent is the historical record of a forced closure.
// Append-only: never mutated after creation, exactly one per liquidated loan.
type LiquidationEvent struct {
	LoanID             string          `json:"loan_id"`
	Timestamp          time.Time       `json:"ts"`
	Price              decimal.Decimal `json:"price"`
	CollateralSeized   decimal.Decimal `json:"collateral_seized"`
	CollateralReturned decimal.Decimal `json:"collateral_returned"`
	DebtRecovered      decimal.Decimal `json:"debt_recovered"`
	Penalty            decimal.Decimal `json:"penalty"`
}
