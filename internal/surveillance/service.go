// Package surveillance provides the HTTP handlers that run the smoking rule
// over submitted records and serve the alerts it raised.
package surveillance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/metrics"
	"github.com/atmx/surveillance-engine/internal/model"
	"github.com/atmx/surveillance-engine/internal/publish"
	"github.com/atmx/surveillance-engine/internal/simulate"
	"github.com/atmx/surveillance-engine/internal/smoking"
	"github.com/atmx/surveillance-engine/internal/store"
)

// Service hosts the rule engine. The engine itself is stateless; the
// service persists, publishes and broadcasts what it raises.
type Service struct {
	engine     *smoking.Engine
	engineOpts []smoking.Option
	store      store.Store
	publisher  publish.AlertPublisher
	wsHub      *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new surveillance service with rules as the default
// rule parameters. Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(rules smoking.Config, st store.Store, pub publish.AlertPublisher, hub *WSHub, opts ...smoking.Option) (*Service, error) {
	engine, err := smoking.NewEngine(rules, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{
		engine:     engine,
		engineOpts: opts,
		store:      st,
		publisher:  pub,
		wsHub:      hub,
	}, nil
}

// --- Request/Response types ---

// RuleOverrides replaces individual rule parameters for one evaluation.
type RuleOverrides struct {
	TradeInclusionFlag *bool            `json:"trade_inclusion_flag,omitempty"`
	NearThreshold      *decimal.Decimal `json:"near_threshold,omitempty"`
	FarThreshold       *decimal.Decimal `json:"far_threshold,omitempty"`
	LookupWindow       *int64           `json:"lookup_window,omitempty"` // seconds
	DepthLevel         *int             `json:"depth_level,omitempty"`
}

func (o *RuleOverrides) apply(base smoking.Config) smoking.Config {
	cfg := base
	if o.TradeInclusionFlag != nil {
		cfg.IncludeTrades = *o.TradeInclusionFlag
	}
	if o.NearThreshold != nil {
		cfg.NearThreshold = *o.NearThreshold
	}
	if o.FarThreshold != nil {
		cfg.FarThreshold = *o.FarThreshold
	}
	if o.LookupWindow != nil {
		cfg.LookupWindow = time.Duration(*o.LookupWindow) * time.Second
	}
	if o.DepthLevel != nil {
		cfg.DepthLevel = *o.DepthLevel
	}
	return cfg
}

// EvaluateRequest is the JSON body for POST /evaluate.
type EvaluateRequest struct {
	Orders      []model.Order       `json:"orders"`
	Trades      []model.Trade       `json:"trades"`
	MarketDepth []model.MarketDepth `json:"market_depth"`
	Config      *RuleOverrides      `json:"config,omitempty"`
}

// EvaluateResponse is the JSON body returned from POST /evaluate.
type EvaluateResponse struct {
	RunID       string        `json:"run_id"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
	NearEvents  int           `json:"near_events"`
	Candidates  int           `json:"candidates"`
	NewAlerts   int           `json:"new_alerts"`
	Alerts      []model.Alert `json:"alerts"`
}

// --- HTTP Handlers ---

// Evaluate handles POST /api/v1/evaluate
// Runs the rule over the submitted records and returns every alert raised.
// Alerts seen in an earlier evaluation are returned but not re-published.
func (s *Service) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	engine := s.engine
	if req.Config != nil {
		var err error
		engine, err = smoking.NewEngine(req.Config.apply(s.engine.Config()), s.engineOpts...)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	start := time.Now()
	res, err := engine.Run(ctx, smoking.Input{
		Orders: req.Orders,
		Trades: req.Trades,
		Depth:  req.MarketDepth,
	})
	metrics.EvaluationLatency.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, smoking.ErrInvalidRecord):
		metrics.EvaluationsTotal.WithLabelValues("invalid").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.EvaluationsTotal.WithLabelValues("cancelled").Inc()
		writeError(w, "evaluation cancelled", http.StatusServiceUnavailable)
		return
	case err != nil:
		metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		slog.Error("evaluation failed", "err", err)
		writeError(w, "evaluation failed", http.StatusInternalServerError)
		return
	}

	metrics.EvaluationsTotal.WithLabelValues("ok").Inc()
	metrics.NearEvents.Add(float64(res.NearEvents))
	metrics.FarCandidates.Add(float64(res.Candidates))

	inserted, err := s.store.InsertAlerts(ctx, res.Alerts)
	if err != nil {
		slog.Error("failed to store alerts", "err", err, "alerts", len(res.Alerts))
		writeError(w, "failed to store alerts", http.StatusInternalServerError)
		return
	}

	for _, a := range inserted {
		metrics.AlertsTotal.WithLabelValues(string(a.Description)).Inc()
	}

	if s.publisher != nil && len(inserted) > 0 {
		if err := s.publisher.Publish(ctx, inserted); err != nil {
			metrics.PublishFailures.Add(float64(len(inserted)))
			slog.Error("failed to publish alerts", "err", err, "alerts", len(inserted))
		}
	}

	if s.wsHub != nil {
		for _, a := range inserted {
			s.wsHub.Broadcast(a)
		}
	}

	resp := EvaluateResponse{
		RunID:       uuid.New().String(),
		EvaluatedAt: res.EvaluatedAt,
		NearEvents:  res.NearEvents,
		Candidates:  res.Candidates,
		NewAlerts:   len(inserted),
		Alerts:      res.Alerts,
	}

	slog.Info("evaluation complete",
		"run_id", resp.RunID,
		"orders", len(req.Orders),
		"trades", len(req.Trades),
		"depth_rows", len(req.MarketDepth),
		"near_events", res.NearEvents,
		"candidates", res.Candidates,
		"alerts", len(res.Alerts),
		"new_alerts", len(inserted),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ListAlerts handles GET /api/v1/alerts
// Optional filters: ?instrument=, ?market=, ?reason=, ?limit=.
// ?format=csv downloads the alerts as a CSV file.
func (s *Service) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		Instrument: q.Get("instrument"),
		Market:     q.Get("market"),
		Reason:     model.Reason(q.Get("reason")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}

	format := q.Get("format")
	if format != "" && format != "json" && format != "csv" {
		writeError(w, "format must be json or csv", http.StatusBadRequest)
		return
	}

	alerts, err := s.store.ListAlerts(r.Context(), f)
	if err != nil {
		writeError(w, "failed to list alerts", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="alerts.csv"`)
		if err := writeAlertsCSV(w, alerts); err != nil {
			slog.Error("failed to write alerts csv", "err", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

// GetAlert handles GET /api/v1/alerts/{alertID}
func (s *Service) GetAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	alert, err := s.store.GetAlert(r.Context(), alertID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "alert not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load alert", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alert)
}

// SimulateRequest is the JSON body for POST /simulate. Zero values take
// the generator defaults.
type SimulateRequest struct {
	Seed        int64     `json:"seed,omitempty"`
	Orders      *int      `json:"orders,omitempty"`
	Trades      *int      `json:"trades,omitempty"`
	Instruments []string  `json:"instruments,omitempty"`
	Market      string    `json:"market,omitempty"`
	Start       time.Time `json:"start"`
}

// Simulate handles POST /api/v1/simulate
// Returns a synthetic dataset that can be posted as is to /evaluate.
func (s *Service) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := simulate.DefaultConfig()
	cfg.Seed = req.Seed
	cfg.Start = req.Start
	if req.Orders != nil {
		cfg.Orders = *req.Orders
	}
	if req.Trades != nil {
		cfg.Trades = *req.Trades
	}
	if len(req.Instruments) > 0 {
		cfg.Instruments = req.Instruments
	}
	if req.Market != "" {
		cfg.Market = req.Market
	}
	if err := cfg.Validate(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ds := simulate.New(cfg).Generate()
	slog.Info("dataset simulated",
		"seed", cfg.Seed,
		"orders", len(ds.Orders),
		"trades", len(ds.Trades),
		"depth_rows", len(ds.MarketDepth),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ds)
}

// GetRules handles GET /api/v1/rules
// Returns the default rule parameters.
func (s *Service) GetRules(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	resp := map[string]any{
		"scenario_id":          model.ScenarioSmoking,
		"trade_inclusion_flag": cfg.IncludeTrades,
		"near_threshold":       cfg.NearThreshold,
		"far_threshold":        cfg.FarThreshold,
		"lookup_window":        int64(cfg.LookupWindow / time.Second),
		"depth_level":          cfg.DepthLevel,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
