package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solvena/lendsim/internal/domain"
)

// Journal receives lifecycle events for the append-only audit log.
// Journal failures are logged, never propagated: the in-memory ledger is
// the authoritative state.
type Journal interface {
	Append(event domain.LoanEvent) error
}

// Policy holds the platform-level risk parameters applied to every loan.
type Policy struct {
	MaxInitialLTVPercent        decimal.Decimal
	WarningLTVPercent           decimal.Decimal
	LiquidationThresholdPercent decimal.Decimal
	RepayTolerancePercent       decimal.Decimal
}

// DefaultPolicy returns the platform defaults: 50% initial cap, 50%
// warning, 65% liquidation, 1% repay drift tolerance.
func DefaultPolicy() Policy {
	return Policy{
		MaxInitialLTVPercent:        decimal.NewFromInt(50),
		WarningLTVPercent:           decimal.NewFromInt(50),
		LiquidationThresholdPercent: decimal.NewFromInt(65),
		RepayTolerancePercent:       decimal.NewFromInt(1),
	}
}

// CreateParams are the inputs to CreateLoan. Exactly one of BorrowAmount
// or TargetLTVPercent must be set; with TargetLTVPercent the borrow amount
// is derived from the collateral value at the current market price.
type CreateParams struct {
	CollateralAmount            decimal.Decimal
	BorrowAmount                decimal.Decimal
	TargetLTVPercent            decimal.Decimal
	InterestRatePercent         decimal.Decimal
	TermDays                    int
	LiquidationThresholdPercent decimal.Decimal // zero means policy default
}

// Engine is the synchronous facade over the loan ledger, market snapshot
// and simulation clock. Every command runs to completion, including the
// dependent risk recomputation, before returning control. A single mutex
// serializes commands and queries, so the engine is safe for concurrent
// use; queries return copies, never live ledger state.
type Engine struct {
	mu      sync.Mutex
	policy  Policy
	market  *domain.MarketSnapshot
	clock   *Clock
	ledger  *Ledger
	journal Journal
	metrics *Metrics
	logger  *zap.Logger
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithJournal attaches a lifecycle event journal.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine around the given market snapshot, starting
// the simulation clock at the given instant.
func NewEngine(policy Policy, market *domain.MarketSnapshot, start time.Time, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		policy: policy,
		market: market,
		clock:  NewClock(start),
		ledger: NewLedger(),
		logger: logger,
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateLoan opens a new loan at the current market price and simulation
// time. The derived initial LTV is validated against the policy cap here,
// in the engine, not in the calling layer.
func (e *Engine) CreateLoan(p CreateParams) (loan *domain.Loan, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("create_loan", err) }()

	if p.CollateralAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.Errorf("collateral amount must be positive, got %s", p.CollateralAmount.String())
	}

	borrowAmount := p.BorrowAmount
	if borrowAmount.IsZero() && p.TargetLTVPercent.IsPositive() {
		borrowValue, derr := domain.MaxBorrow(p.CollateralAmount, e.market.CollateralPrice, p.TargetLTVPercent)
		if derr != nil {
			return nil, derr
		}
		borrowAmount = borrowValue.Div(e.market.DebtAssetPrice)
	}

	threshold := p.LiquidationThresholdPercent
	if threshold.IsZero() {
		threshold = e.policy.LiquidationThresholdPercent
	}

	now := e.clock.Now()
	loan, err = domain.NewLoan(uuid.NewString(), p.CollateralAmount, borrowAmount, p.InterestRatePercent, threshold, p.TermDays, now)
	if err != nil {
		return nil, err
	}

	if err = loan.RefreshRisk(e.market); err != nil {
		return nil, err
	}
	if loan.CurrentLTV.GreaterThan(e.policy.MaxInitialLTVPercent) {
		return nil, errors.Errorf("initial LTV %s exceeds maximum %s",
			loan.CurrentLTV.StringFixed(2), e.policy.MaxInitialLTVPercent.String())
	}

	if err = e.ledger.Add(loan); err != nil {
		return nil, err
	}

	e.appendEvent(domain.LoanEvent{
		Kind:             domain.EventLoanCreated,
		LoanID:           loan.ID,
		Timestamp:        now,
		Amount:           borrowAmount,
		CollateralPrice:  e.market.CollateralPrice,
		DebtAssetPrice:   e.market.DebtAssetPrice,
		CurrentLTV:       loan.CurrentLTV,
		LiquidationPrice: loan.LiquidationPrice,
	})
	e.refreshGauges()

	e.logger.Info("loan created",
		zap.String("id", loan.ID),
		zap.String("collateral", loan.CollateralAmount.String()),
		zap.String("borrowed", loan.BorrowedAmount.String()),
		zap.String("ltv", loan.CurrentLTV.StringFixed(2)))

	return cloneLoan(loan), nil
}

// Repay pays down a loan. A nil amount means full repayment of principal
// plus accrued interest. A provided amount above the total debt is
// rejected unless it is within the policy drift tolerance, in which case
// it is treated as full repayment.
func (e *Engine) Repay(id string, amount *decimal.Decimal) (loan *domain.Loan, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("repay", err) }()

	loan, err = e.ledger.Get(id)
	if err != nil {
		return nil, err
	}
	if !loan.IsOpen() {
		return nil, errors.Errorf("loan %s is %s, repayment not accepted", id, loan.Status)
	}

	totalDebt := loan.TotalDebt()
	pay := totalDebt
	if amount != nil {
		if amount.LessThanOrEqual(decimal.Zero) {
			return nil, errors.Errorf("repay amount must be positive, got %s", amount.String())
		}
		pay = *amount
		if pay.GreaterThan(totalDebt) {
			ceiling := totalDebt.Mul(decimal.NewFromInt(1).Add(e.policy.RepayTolerancePercent.Div(decimal.NewFromInt(100))))
			if pay.GreaterThan(ceiling) {
				return nil, errors.Errorf("repay amount %s exceeds total debt %s beyond tolerance", pay.String(), totalDebt.String())
			}
			pay = totalDebt
		}
	}

	if err = loan.ApplyPayment(pay); err != nil {
		return nil, err
	}
	if err = loan.RefreshRisk(e.market); err != nil {
		return nil, err
	}

	kind := domain.EventPartialPayment
	if loan.Status == domain.StatusRepaid {
		kind = domain.EventLoanRepaid
	}
	e.appendEvent(domain.LoanEvent{
		Kind:            kind,
		LoanID:          loan.ID,
		Timestamp:       e.clock.Now(),
		Amount:          pay,
		CollateralPrice: e.market.CollateralPrice,
		DebtAssetPrice:  e.market.DebtAssetPrice,
		CurrentLTV:      loan.CurrentLTV,
	})
	e.refreshGauges()

	e.logger.Info("loan repayment",
		zap.String("id", loan.ID),
		zap.String("paid", pay.String()),
		zap.String("status", string(loan.Status)))

	return cloneLoan(loan), nil
}

// AddCollateral locks additional collateral into an open loan and refreshes
// its risk figures (both improve).
func (e *Engine) AddCollateral(id string, amount decimal.Decimal) (loan *domain.Loan, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("add_collateral", err) }()

	loan, err = e.ledger.Get(id)
	if err != nil {
		return nil, err
	}

	if err = loan.AddCollateral(amount); err != nil {
		return nil, err
	}
	if err = loan.RefreshRisk(e.market); err != nil {
		return nil, err
	}

	e.appendEvent(domain.LoanEvent{
		Kind:            domain.EventCollateralAdded,
		LoanID:          loan.ID,
		Timestamp:       e.clock.Now(),
		Amount:          amount,
		CollateralPrice: e.market.CollateralPrice,
		CurrentLTV:      loan.CurrentLTV,
	})
	e.refreshGauges()

	return cloneLoan(loan), nil
}

// Liquidate force-closes an open loan at the current collateral price,
// appending exactly one liquidation event. Liquidating an already terminal
// loan is an idempotent no-op signalled with ErrNoEffect.
func (e *Engine) Liquidate(id string) (event *domain.LiquidationEvent, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("liquidate", err) }()

	loan, err := e.ledger.Get(id)
	if err != nil {
		return nil, err
	}
	if loan.IsTerminal() {
		return nil, errors.Wrapf(ErrNoEffect, "loan %s is already %s", id, loan.Status)
	}

	totalDebtValue := loan.TotalDebt().Mul(e.market.DebtAssetPrice)
	split, err := domain.SplitLiquidation(totalDebtValue, e.market.LiquidationFeePercent, e.market.CollateralPrice, loan.CollateralAmount)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	ev := domain.LiquidationEvent{
		LoanID:             loan.ID,
		Timestamp:          now,
		Price:              e.market.CollateralPrice,
		CollateralSeized:   split.CollateralSeized,
		CollateralReturned: split.CollateralReturned,
		DebtRecovered:      totalDebtValue,
		Penalty:            split.Penalty,
	}

	loan.Status = domain.StatusLiquidated
	e.ledger.RecordLiquidation(ev)

	e.appendEvent(domain.LoanEvent{
		Kind:            domain.EventLoanLiquidated,
		LoanID:          loan.ID,
		Timestamp:       now,
		Amount:          split.CollateralSeized,
		CollateralPrice: e.market.CollateralPrice,
		CurrentLTV:      loan.CurrentLTV,
	})
	e.refreshGauges()

	e.logger.Info("loan liquidated",
		zap.String("id", loan.ID),
		zap.String("price", ev.Price.String()),
		zap.String("seized", ev.CollateralSeized.String()),
		zap.String("returned", ev.CollateralReturned.String()))

	return &ev, nil
}

// AdvanceTime moves the simulation clock forward, accrues interest on
// every open loan, flips past-due loans to matured and recomputes all risk
// figures before returning.
func (e *Engine) AdvanceTime(days int) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("advance_time", err) }()

	if err = e.clock.Advance(days); err != nil {
		return err
	}

	now := e.clock.Now()
	for _, loan := range e.ledger.OpenLoans() {
		loan.Accrue(days)

		wasActive := loan.Status == domain.StatusActive
		loan.RefreshMaturity(now)
		if wasActive && loan.Status == domain.StatusMatured {
			e.appendEvent(domain.LoanEvent{
				Kind:      domain.EventLoanMatured,
				LoanID:    loan.ID,
				Timestamp: now,
			})
			e.logger.Info("loan matured", zap.String("id", loan.ID))
		}
	}

	if err = e.ledger.RefreshRisk(e.market); err != nil {
		return err
	}
	e.refreshGauges()

	e.logger.Debug("time advanced", zap.Int("days", days), zap.Time("now", now))
	return nil
}

// SetCollateralPrice updates the collateral price and recomputes every
// open loan's risk figures before returning.
func (e *Engine) SetCollateralPrice(price decimal.Decimal) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("set_collateral_price", err) }()

	if err = e.market.SetCollateralPrice(price); err != nil {
		return err
	}
	return e.afterPriceUpdate()
}

// SetDebtAssetPrice updates the debt asset price and recomputes every open
// loan's risk figures before returning.
func (e *Engine) SetDebtAssetPrice(price decimal.Decimal) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("set_debt_asset_price", err) }()

	if err = e.market.SetDebtAssetPrice(price); err != nil {
		return err
	}
	return e.afterPriceUpdate()
}

func (e *Engine) afterPriceUpdate() error {
	if err := e.ledger.RefreshRisk(e.market); err != nil {
		return err
	}

	e.appendEvent(domain.LoanEvent{
		Kind:            domain.EventPriceUpdated,
		Timestamp:       e.clock.Now(),
		CollateralPrice: e.market.CollateralPrice,
		DebtAssetPrice:  e.market.DebtAssetPrice,
	})
	e.refreshGauges()
	return nil
}

// Loan returns a copy of a single loan by id.
func (e *Engine) Loan(id string) (*domain.Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.ledger.Get(id)
	if err != nil {
		return nil, err
	}
	return cloneLoan(loan), nil
}

// Loans lists copies of loans in creation order, optionally filtered by
// status.
func (e *Engine) Loans(statuses ...domain.LoanStatus) []*domain.Loan {
	e.mu.Lock()
	defer e.mu.Unlock()

	return cloneLoans(e.ledger.Loans(statuses...))
}

// Snapshot returns a copy of the current market snapshot.
func (e *Engine) Snapshot() domain.MarketSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	return *e.market
}

// Portfolio returns the aggregated portfolio metrics.
func (e *Engine) Portfolio() PortfolioMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.portfolio()
}

func (e *Engine) portfolio() PortfolioMetrics {
	return computePortfolio(e.ledger.Loans(), e.market, e.policy.WarningLTVPercent)
}

// MarginCalls returns open loans at or above the warning LTV threshold.
func (e *Engine) MarginCalls() []*domain.Loan {
	e.mu.Lock()
	defer e.mu.Unlock()

	return cloneLoans(e.ledger.MarginCalls(e.policy.WarningLTVPercent))
}

// Liquidatable returns open loans at or above their liquidation threshold.
func (e *Engine) Liquidatable() []*domain.Loan {
	e.mu.Lock()
	defer e.mu.Unlock()

	return cloneLoans(e.ledger.Liquidatable())
}

// Liquidations returns the liquidation event history.
func (e *Engine) Liquidations() []domain.LiquidationEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ledger.Liquidations()
}

// Now returns the current simulation time.
func (e *Engine) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.clock.Now()
}

func cloneLoan(loan *domain.Loan) *domain.Loan {
	copied := *loan
	return &copied
}

func cloneLoans(loans []*domain.Loan) []*domain.Loan {
	out := make([]*domain.Loan, len(loans))
	for i, loan := range loans {
		out[i] = cloneLoan(loan)
	}
	return out
}

func (e *Engine) appendEvent(event domain.LoanEvent) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Append(event); err != nil {
		e.logger.Warn("journal append failed", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func (e *Engine) refreshGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.setPortfolio(e.portfolio())
}
