// Package web embeds the loan engine behind an HTTP API: JSON commands and
// queries, a CSV export, prometheus metrics and an SSE stream of journal
// events.
package web

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solvena/lendsim/internal/domain"
	"github.com/solvena/lendsim/internal/engine"
)

const eventPollInterval = 2 * time.Second

type eventReader interface {
	EventsAfter(index uint64) ([]domain.LoanEventRecord, error)
}

// Server exposes engine commands and queries over HTTP plus an SSE stream
// of journal events.
type Server struct {
	addr    string
	engine  *engine.Engine
	events  eventReader
	metrics http.Handler
	logger  *zap.Logger
}

// NewServer creates a web server around the engine. events and metrics may
// be nil; the matching endpoints then report unavailability.
func NewServer(addr string, eng *engine.Engine, events eventReader, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, engine: eng, events: events, metrics: metrics, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleOverview)
	r.Get("/now", s.handleNow)
	r.Get("/market", s.handleMarket)
	r.Get("/portfolio", s.handlePortfolio)
	r.Get("/liquidations", s.handleLiquidations)

	r.Route("/loans", func(r chi.Router) {
		r.Get("/", s.handleListLoans)
		r.Post("/", s.handleCreateLoan)
		r.Get("/export.csv", s.handleExportCSV)
		r.Get("/{id}", s.handleGetLoan)
		r.Post("/{id}/repay", s.handleRepay)
		r.Post("/{id}/collateral", s.handleAddCollateral)
		r.Post("/{id}/liquidate", s.handleLiquidate)
	})

	r.Post("/time/advance", s.handleAdvanceTime)
	r.Put("/market/collateral-price", s.handleSetCollateralPrice)
	r.Put("/market/debt-price", s.handleSetDebtAssetPrice)

	r.Get("/events", s.handleListEvents)
	r.Get("/events/stream", s.handleEventStream)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

type overviewResponse struct {
	Now       time.Time               `json:"now"`
	Market    marketResponse          `json:"market"`
	Portfolio engine.PortfolioMetrics `json:"portfolio"`
}

type marketResponse struct {
	domain.MarketSnapshot
	CrossRate decimal.Decimal `json:"cross_rate"`
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	resp := overviewResponse{
		Now:       s.engine.Now(),
		Market:    s.marketResponse(),
		Portfolio: s.engine.Portfolio(),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNow(w http.ResponseWriter, r *http.Request) {
	now := s.engine.Now()

	writeJSON(w, http.StatusOK, map[string]time.Time{"now": now})
}

func (s *Server) marketResponse() marketResponse {
	snapshot := s.engine.Snapshot()
	return marketResponse{MarketSnapshot: snapshot, CrossRate: snapshot.CrossRate()}
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	resp := s.marketResponse()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	resp := s.engine.Portfolio()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	resp := s.engine.Liquidations()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.LoanStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = append(statuses, domain.LoanStatus(raw))
	}

	loans := s.engine.Loans(statuses...)

	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	loan, err := s.engine.Loan(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

type createLoanRequest struct {
	CollateralAmount            string `json:"collateral_amount"`
	BorrowAmount                string `json:"borrow_amount,omitempty"`
	TargetLTVPercent            string `json:"target_ltv_percent,omitempty"`
	InterestRatePercent         string `json:"interest_rate_percent"`
	TermDays                    int    `json:"term_days"`
	LiquidationThresholdPercent string `json:"liquidation_threshold_percent,omitempty"`
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := engine.CreateParams{TermDays: req.TermDays}
	var err error
	if params.CollateralAmount, err = parseDecimal(req.CollateralAmount, "collateral_amount"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.BorrowAmount, err = parseOptionalDecimal(req.BorrowAmount, "borrow_amount"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.TargetLTVPercent, err = parseOptionalDecimal(req.TargetLTVPercent, "target_ltv_percent"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.InterestRatePercent, err = parseDecimal(req.InterestRatePercent, "interest_rate_percent"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.LiquidationThresholdPercent, err = parseOptionalDecimal(req.LiquidationThresholdPercent, "liquidation_threshold_percent"); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := s.engine.CreateLoan(params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

type amountRequest struct {
	Amount string `json:"amount,omitempty"`
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req amountRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed, err := parseDecimal(req.Amount, "amount")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		amount = &parsed
	}

	loan, err := s.engine.Repay(id, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) handleAddCollateral(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseDecimal(req.Amount, "amount")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	loan, err := s.engine.AddCollateral(id, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := s.engine.Liquidate(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

type advanceTimeRequest struct {
	Days int `json:"days"`
}

func (s *Server) handleAdvanceTime(w http.ResponseWriter, r *http.Request) {
	var req advanceTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.engine.AdvanceTime(req.Days)
	now := s.engine.Now()

	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"now": now})
}

type priceRequest struct {
	Price string `json:"price"`
}

func (s *Server) handleSetCollateralPrice(w http.ResponseWriter, r *http.Request) {
	s.handlePriceUpdate(w, r, s.engine.SetCollateralPrice)
}

func (s *Server) handleSetDebtAssetPrice(w http.ResponseWriter, r *http.Request) {
	s.handlePriceUpdate(w, r, s.engine.SetDebtAssetPrice)
}

func (s *Server) handlePriceUpdate(w http.ResponseWriter, r *http.Request, update func(decimal.Decimal) error) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	price, err := parseDecimal(req.Price, "price")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = update(price)
	resp := s.marketResponse()

	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

var csvHeader = []string{
	"id", "status", "collateral_amount", "borrowed_amount", "accrued_interest",
	"interest_rate_percent", "term_days", "created_at", "maturity_date",
	"current_ltv", "liquidation_price",
	"liquidated_at", "liquidation_exec_price", "collateral_seized", "collateral_returned",
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	loans := s.engine.Loans()
	liquidations := s.engine.Liquidations()

	byLoan := make(map[string]domain.LiquidationEvent, len(liquidations))
	for _, ev := range liquidations {
		byLoan[ev.LoanID] = ev
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="loans.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)

	for _, loan := range loans {
		row := []string{
			loan.ID,
			string(loan.Status),
			loan.CollateralAmount.String(),
			loan.BorrowedAmount.String(),
			loan.AccruedInterest.String(),
			loan.InterestRatePercent.String(),
			strconv.Itoa(loan.TermDays),
			loan.CreatedAt.Format(time.RFC3339),
			loan.MaturityDate.Format(time.RFC3339),
			loan.CurrentLTV.String(),
			loan.LiquidationPrice.String(),
			"", "", "", "",
		}
		if ev, ok := byLoan[loan.ID]; ok {
			row[11] = ev.Timestamp.Format(time.RFC3339)
			row[12] = ev.Price.String()
			row[13] = ev.CollateralSeized.String()
			row[14] = ev.CollateralReturned.String()
		}
		_ = cw.Write(row)
	}
	cw.Flush()
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "event store not available")
		return
	}

	after := uint64(0)
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "'after' must be an unsigned integer")
			return
		}
		after = parsed
	}

	records, err := s.events.EventsAfter(after)
	if err != nil {
		s.logger.Warn("event list failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "event store not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(eventPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendEvents := func() error {
		records, err := s.events.EventsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Event)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "event: loan\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := sendEvents(); err != nil {
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		s.logger.Warn("event stream initial load failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendEvents(); err != nil {
				s.logger.Warn("event stream poll failed", zap.Error(err))
			}
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrLoanNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrNoEffect):
		writeJSON(w, http.StatusOK, map[string]string{"result": "no_effect"})
	default:
		writeJSONError(w, http.StatusBadRequest, err.Error())
	}
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, errors.Errorf("%s is required", field)
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, errors.Errorf("%s is not a valid decimal: %s", field, raw)
	}
	return value, nil
}

func parseOptionalDecimal(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(raw, field)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
