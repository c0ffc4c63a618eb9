// Package simulate generates synthetic orders, trades and market depth for
// exercising the smoking rule without a live feed. A non-zero seed makes
// the output reproducible.
package simulate

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/model"
)

// MaxRecords bounds the number of orders or trades in one dataset.
const MaxRecords = 10_000

// ErrInvalidConfig is wrapped by every Config.Validate failure.
var ErrInvalidConfig = errors.New("simulate: invalid configuration")

// Config controls the generated dataset.
type Config struct {
	Seed        int64
	Orders      int
	Trades      int
	Instruments []string
	Market      string
	Start       time.Time
	Spacing     time.Duration // gap between consecutive records
}

// DefaultConfig returns a small single-instrument dataset on LSE.
func DefaultConfig() Config {
	return Config{
		Orders:      10,
		Trades:      5,
		Instruments: []string{"XYZ"},
		Market:      "LSE",
		Spacing:     time.Second,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.Orders < 0 || c.Orders > MaxRecords:
		return fmt.Errorf("%w: orders must be between 0 and %d", ErrInvalidConfig, MaxRecords)
	case c.Trades < 0 || c.Trades > MaxRecords:
		return fmt.Errorf("%w: trades must be between 0 and %d", ErrInvalidConfig, MaxRecords)
	case len(c.Instruments) == 0:
		return fmt.Errorf("%w: at least one instrument is required", ErrInvalidConfig)
	case c.Market == "":
		return fmt.Errorf("%w: market cannot be empty", ErrInvalidConfig)
	case c.Spacing < 0:
		return fmt.Errorf("%w: spacing must not be negative", ErrInvalidConfig)
	}
	for _, instr := range c.Instruments {
		if instr == "" {
			return fmt.Errorf("%w: instrument codes cannot be empty", ErrInvalidConfig)
		}
	}
	return nil
}

// Dataset is one generated batch, shaped like an evaluation request.
type Dataset struct {
	Orders      []model.Order       `json:"orders"`
	Trades      []model.Trade       `json:"trades"`
	MarketDepth []model.MarketDepth `json:"market_depth"`
}

// weightedEvent is one entry of the order event distribution.
type weightedEvent struct {
	event  model.EventType
	weight int
}

// orderEvents mixes executed orders (near-side candidates) with resting
// new orders (far-side candidates).
var orderEvents = []weightedEvent{
	{model.EventNew, 40},
	{model.EventFilled, 30},
	{model.EventPartiallyFilled, 30},
}

// Generator produces datasets from a seeded RNG. It is not safe for
// concurrent use.
type Generator struct {
	rng *rand.Rand
	cfg Config
}

// New creates a generator. cfg must be valid.
func New(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC().Truncate(time.Second)
	}
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		cfg: cfg,
	}
}

// Generate builds orders, trades and a two-level book per instrument.
func (g *Generator) Generate() Dataset {
	ds := Dataset{
		Orders:      make([]model.Order, 0, g.cfg.Orders),
		Trades:      make([]model.Trade, 0, g.cfg.Trades),
		MarketDepth: make([]model.MarketDepth, 0, 4*len(g.cfg.Instruments)),
	}

	for i := 0; i < g.cfg.Orders; i++ {
		ds.Orders = append(ds.Orders, g.order(i))
	}
	for i := 0; i < g.cfg.Trades; i++ {
		ds.Trades = append(ds.Trades, g.trade(i))
	}
	for _, instr := range g.cfg.Instruments {
		ds.MarketDepth = append(ds.MarketDepth, g.book(instr)...)
	}
	return ds
}

func (g *Generator) order(i int) model.Order {
	ev := g.selectEvent()

	var qty, leaves decimal.Decimal
	switch ev {
	case model.EventNew:
		// Resting orders are mostly small.
		qty = g.uniform(100_000, 5_000_000).Round(0)
		leaves = qty
	case model.EventPartiallyFilled:
		qty = g.uniform(1_000_000, 10_000_000).Round(0)
		leaves = qty.Mul(g.uniform(0.1, 0.5)).Round(0)
	default:
		qty = g.uniform(1_000_000, 10_000_000).Round(0)
		leaves = decimal.Zero
	}

	return model.Order{
		OrderID:          "O" + strconv.Itoa(i),
		EventType:        ev,
		Side:             g.side(),
		BaseCcyQty:       qty,
		BaseCcyLeavesQty: leaves,
		CumulativeQty:    qty.Sub(leaves),
		Price:            g.uniform(99, 101).Round(2),
		InstrumentCode:   g.instrument(),
		MarketID:         g.cfg.Market,
		ReceivedTime:     g.cfg.Start.Add(time.Duration(i) * g.cfg.Spacing),
	}
}

func (g *Generator) trade(i int) model.Trade {
	return model.Trade{
		TradeID:        "T" + strconv.Itoa(i),
		EventType:      "TN",
		Side:           g.side(),
		BaseCcyValue:   g.uniform(1_000_000, 10_000_000).Round(0),
		Price:          g.uniform(99, 101).Round(2),
		InstrumentCode: g.instrument(),
		MarketID:       g.cfg.Market,
		ReceivedTime:   g.cfg.Start.Add(time.Duration(i) * g.cfg.Spacing),
	}
}

// book returns levels 1 and 2 on both sides around 100, one tick apart.
func (g *Generator) book(instr string) []model.MarketDepth {
	mid := decimal.NewFromInt(100)
	tick := decimal.RequireFromString("0.01")
	size := decimal.NewFromInt(1_000_000)

	var rows []model.MarketDepth
	for _, side := range []model.Side{model.Buy, model.Sell} {
		for level := 1; level <= 2; level++ {
			offset := tick.Mul(decimal.NewFromInt(int64(level)))
			price := mid.Sub(offset)
			if side == model.Sell {
				price = mid.Add(offset)
			}
			rows = append(rows, model.MarketDepth{
				InstrumentCode:  instr,
				VenueID:         g.cfg.Market,
				BookLevel:       level,
				Side:            side,
				Price:           price,
				Quantity:        size,
				BaseCcyQuantity: size,
				FeedID:          "MD1",
				MarketTimestamp: g.cfg.Start,
				ReceivedTime:    g.cfg.Start,
			})
		}
	}
	return rows
}

// selectEvent picks from orderEvents by cumulative weight.
func (g *Generator) selectEvent() model.EventType {
	total := 0
	for _, e := range orderEvents {
		total += e.weight
	}
	r := g.rng.Intn(total)
	cumulative := 0
	for _, e := range orderEvents {
		cumulative += e.weight
		if r < cumulative {
			return e.event
		}
	}
	return orderEvents[len(orderEvents)-1].event
}

func (g *Generator) side() model.Side {
	if g.rng.Intn(2) == 0 {
		return model.Buy
	}
	return model.Sell
}

func (g *Generator) instrument() string {
	return g.cfg.Instruments[g.rng.Intn(len(g.cfg.Instruments))]
}

func (g *Generator) uniform(lo, hi float64) decimal.Decimal {
	return decimal.NewFromFloat(lo + g.rng.Float64()*(hi-lo))
}
