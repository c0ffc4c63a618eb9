package simulate

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/atmx/surveillance-engine/internal/model"
)

var start = time.Date(2025, 8, 15, 9, 30, 0, 0, time.UTC)

func seeded(seed int64) Config {
	cfg := DefaultConfig()
	cfg.Seed = seed
	cfg.Start = start
	return cfg
}

func TestGenerate_SameSeedSameDataset(t *testing.T) {
	a := New(seeded(42)).Generate()
	b := New(seeded(42)).Generate()
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed should produce the same dataset")
	}

	c := New(seeded(43)).Generate()
	if reflect.DeepEqual(a.Orders, c.Orders) {
		t.Error("different seeds should produce different orders")
	}
}

func TestGenerate_RecordShapes(t *testing.T) {
	cfg := seeded(7)
	cfg.Orders = 200
	cfg.Trades = 50
	cfg.Instruments = []string{"XYZ", "ABC"}
	ds := New(cfg).Generate()

	if len(ds.Orders) != 200 || len(ds.Trades) != 50 {
		t.Fatalf("got %d orders, %d trades", len(ds.Orders), len(ds.Trades))
	}
	if len(ds.MarketDepth) != 8 {
		t.Errorf("expected 2 levels x 2 sides x 2 instruments, got %d rows", len(ds.MarketDepth))
	}

	for i, o := range ds.Orders {
		if o.ReceivedTime != start.Add(time.Duration(i)*time.Second) {
			t.Errorf("order %d: received at %s", i, o.ReceivedTime)
		}
		if o.BaseCcyLeavesQty.GreaterThan(o.BaseCcyQty) {
			t.Errorf("order %s: leaves %s > qty %s", o.OrderID, o.BaseCcyLeavesQty, o.BaseCcyQty)
		}
		if !o.CumulativeQty.Equal(o.BaseCcyQty.Sub(o.BaseCcyLeavesQty)) {
			t.Errorf("order %s: cumulative qty mismatch", o.OrderID)
		}
		switch o.EventType {
		case model.EventNew:
			if !o.BaseCcyLeavesQty.Equal(o.BaseCcyQty) {
				t.Errorf("new order %s should have nothing executed", o.OrderID)
			}
		case model.EventFilled:
			if !o.BaseCcyLeavesQty.IsZero() {
				t.Errorf("filled order %s should have no leaves", o.OrderID)
			}
		case model.EventPartiallyFilled:
		default:
			t.Errorf("order %s: unexpected event %s", o.OrderID, o.EventType)
		}
		if !o.Side.Valid() || o.MarketID != "LSE" {
			t.Errorf("order %s: bad side or market", o.OrderID)
		}
	}

	for _, instr := range cfg.Instruments {
		var bids, asks []model.MarketDepth
		for _, r := range ds.MarketDepth {
			if r.InstrumentCode != instr {
				continue
			}
			if r.Side == model.Buy {
				bids = append(bids, r)
			} else {
				asks = append(asks, r)
			}
		}
		if len(bids) != 2 || len(asks) != 2 {
			t.Fatalf("%s: got %d bids, %d asks", instr, len(bids), len(asks))
		}
		for _, b := range bids {
			for _, a := range asks {
				if !b.Price.LessThan(a.Price) {
					t.Errorf("%s: bid %s not below ask %s", instr, b.Price, a.Price)
				}
			}
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"negative orders", func(c *Config) { c.Orders = -1 }},
		{"too many trades", func(c *Config) { c.Trades = MaxRecords + 1 }},
		{"no instruments", func(c *Config) { c.Instruments = nil }},
		{"empty instrument", func(c *Config) { c.Instruments = []string{""} }},
		{"no market", func(c *Config) { c.Market = "" }},
		{"negative spacing", func(c *Config) { c.Spacing = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}
