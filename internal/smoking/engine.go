// Package smoking implements the smoking market-abuse rule: a large order
// or trade on one side of the book followed, within a short window, by a
// small opposite-side order priced into the prevailing top of book.
//
// An evaluation is a pure batch computation over already collected
// records. It keeps no state between calls and performs no I/O.
//
// Pipeline:
//   - depth index and near-side selection run concurrently
//   - each near-side event is matched and cross-checked by a bounded
//     worker pool writing into its own result slot
//   - per-event results are merged, deduplicated by alert id and ordered
//     by (near time, alert id)
package smoking

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/surveillance-engine/internal/correlation"
	"github.com/atmx/surveillance-engine/internal/depth"
	"github.com/atmx/surveillance-engine/internal/model"
)

// Config holds the rule parameters. It is immutable per engine.
type Config struct {
	// IncludeTrades lets trades qualify as near-side events.
	IncludeTrades bool

	// NearThreshold is the notional a near-side event must strictly exceed.
	NearThreshold decimal.Decimal

	// FarThreshold caps the raw quantity of a far-side order (inclusive).
	FarThreshold decimal.Decimal

	// LookupWindow is how long after the near event a far order may arrive.
	LookupWindow time.Duration

	// DepthLevel is the book level consulted, 1 = top of book.
	DepthLevel int
}

// DefaultConfig returns the production rule parameters.
func DefaultConfig() Config {
	return Config{
		IncludeTrades: true,
		NearThreshold: decimal.NewFromInt(5_000_000),
		FarThreshold:  decimal.NewFromInt(5_000_000),
		LookupWindow:  45 * time.Second,
		DepthLevel:    1,
	}
}

// Validate reports the first unusable parameter.
func (c Config) Validate() error {
	switch {
	case c.DepthLevel < 1:
		return fmt.Errorf("%w: depth_level must be >= 1, got %d", ErrInvalidConfig, c.DepthLevel)
	case c.LookupWindow < 0:
		return fmt.Errorf("%w: lookup_window must not be negative, got %s", ErrInvalidConfig, c.LookupWindow)
	case c.NearThreshold.IsNegative():
		return fmt.Errorf("%w: near_threshold must not be negative", ErrInvalidConfig)
	case c.FarThreshold.IsNegative():
		return fmt.Errorf("%w: far_threshold must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Input is the closed set of records for one evaluation.
type Input struct {
	Orders []model.Order
	Trades []model.Trade
	Depth  []model.MarketDepth
}

// Result is the outcome of one evaluation with counters for observability.
type Result struct {
	Alerts      []model.Alert
	EvaluatedAt time.Time
	NearEvents  int
	Candidates  int
	DepthKeys   int
}

// Engine evaluates the smoking rule. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	clock   Clock
	workers int
	logger  *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the clock used for alert timestamps.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithWorkers bounds the number of near-side events processed in parallel.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine for cfg.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		clock:   SystemClock{},
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's rule parameters.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate returns the alerts raised for in. An empty result is a normal
// outcome. A malformed record yields a *RecordError; a cancelled ctx
// yields ctx.Err().
func (e *Engine) Evaluate(ctx context.Context, in Input) ([]model.Alert, error) {
	res, err := e.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return res.Alerts, nil
}

// Run is Evaluate plus evaluation counters.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	at := e.clock.Now()

	// Independent preparation stages.
	var (
		idx    *depth.Index
		near   []correlation.NearEvent
		orders *correlation.OrderIndex
	)
	var prep errgroup.Group
	prep.Go(func() error {
		idx = depth.Build(in.Depth, e.cfg.DepthLevel)
		return nil
	})
	prep.Go(func() error {
		near = correlation.SelectNear(in.Orders, in.Trades, e.cfg.IncludeTrades, e.cfg.NearThreshold)
		return nil
	})
	prep.Go(func() error {
		orders = correlation.NewOrderIndex(in.Orders)
		return nil
	})
	if err := prep.Wait(); err != nil {
		return nil, err
	}

	matcher := correlation.NewMatcher(orders, e.cfg.FarThreshold, e.cfg.LookupWindow)

	buffers := make([][]model.Alert, len(near))
	counts := make([]int, len(near))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, ev := range near {
		if gctx.Err() != nil {
			break
		}
		i, ev := i, ev
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates := matcher.FarCandidates(ev)
			counts[i] = len(candidates)
			for _, far := range candidates {
				reason, q, ok := crossCheck(ev, far, idx)
				if !ok {
					continue
				}
				buffers[i] = append(buffers[i], buildAlert(ev, far, reason, q, at))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Alerts:      merge(buffers),
		EvaluatedAt: at,
		NearEvents:  len(near),
		DepthKeys:   idx.Len(),
	}
	for _, c := range counts {
		res.Candidates += c
	}

	e.logger.Debug("smoking evaluation complete",
		"orders", len(in.Orders),
		"trades", len(in.Trades),
		"depth_rows", len(in.Depth),
		"near_events", res.NearEvents,
		"candidates", res.Candidates,
		"alerts", len(res.Alerts),
	)

	return res, nil
}

// merge flattens per-event buffers, orders the result by (near time,
// alert id) and keeps the first alert for each id. Alerts sharing an id
// come from duplicated record ids; they are ordered by far time and then
// far price so the kept one does not depend on input or scheduling order.
func merge(buffers [][]model.Alert) []model.Alert {
	var all []model.Alert
	for _, buf := range buffers {
		all = append(all, buf...)
	}
	slices.SortStableFunc(all, compareAlerts)

	seen := make(map[string]struct{}, len(all))
	alerts := make([]model.Alert, 0, len(all))
	for _, a := range all {
		if _, dup := seen[a.AlertID]; dup {
			continue
		}
		seen[a.AlertID] = struct{}{}
		alerts = append(alerts, a)
	}
	return alerts
}

func compareAlerts(a, b model.Alert) int {
	if c := a.NearTime.Compare(b.NearTime); c != 0 {
		return c
	}
	if c := strings.Compare(a.AlertID, b.AlertID); c != 0 {
		return c
	}
	if c := a.FarTime.Compare(b.FarTime); c != 0 {
		return c
	}
	if c := a.FarPrice.Cmp(b.FarPrice); c != 0 {
		return c
	}
	if c := a.FarQty.Cmp(b.FarQty); c != 0 {
		return c
	}
	return a.NearNotional.Cmp(b.NearNotional)
}
