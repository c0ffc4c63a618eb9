package correlation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/model"
)

var t0 = time.Date(2025, 8, 15, 9, 30, 0, 0, time.UTC)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func order(id string, ev model.EventType, side model.Side, qty, leaves float64, at time.Duration) model.Order {
	return model.Order{
		OrderID:          id,
		EventType:        ev,
		Side:             side,
		BaseCcyQty:       d(qty),
		BaseCcyLeavesQty: d(leaves),
		CumulativeQty:    d(qty - leaves),
		Price:            d(100),
		InstrumentCode:   "XYZ",
		MarketID:         "LSE",
		ReceivedTime:     t0.Add(at),
	}
}

// --- Near-side selection ---

func TestOrderNotional(t *testing.T) {
	tests := []struct {
		name   string
		o      model.Order
		want   float64
		wantOK bool
	}{
		{"filled uses full qty", order("O1", model.EventFilled, model.Buy, 6e6, 0, 0), 6e6, true},
		{"partial uses executed qty", order("O2", model.EventPartiallyFilled, model.Buy, 8e6, 3e6, 0), 5e6, true},
		{"new never qualifies", order("O3", model.EventNew, model.Buy, 9e6, 9e6, 0), 0, false},
		{"cancelled never qualifies", order("O4", model.EventCancelled, model.Buy, 9e6, 0, 0), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OrderNotional(tt.o)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("notional: got %s, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectNear_StrictlyAboveThreshold(t *testing.T) {
	orders := []model.Order{
		order("AT", model.EventFilled, model.Buy, 5e6, 0, 0),
		order("ABOVE", model.EventFilled, model.Buy, 5_000_001, 0, 0),
	}
	events := SelectNear(orders, nil, true, d(5e6))
	if len(events) != 1 || events[0].SourceID != "ABOVE" {
		t.Fatalf("expected only ABOVE, got %+v", events)
	}
	if events[0].Kind != SourceOrder {
		t.Errorf("kind: got %s", events[0].Kind)
	}
}

func TestSelectNear_PartialFillUsesExecutedQty(t *testing.T) {
	// 9M ordered, 5M leaves: only 4M executed, below 5M threshold.
	orders := []model.Order{order("P", model.EventPartiallyFilled, model.Sell, 9e6, 5e6, 0)}
	if got := SelectNear(orders, nil, true, d(5e6)); len(got) != 0 {
		t.Errorf("partial fill below threshold should not qualify, got %+v", got)
	}
}

func TestSelectNear_TradeInclusionFlag(t *testing.T) {
	trades := []model.Trade{{
		TradeID:        "T1",
		Side:           model.Buy,
		BaseCcyValue:   d(6e6),
		InstrumentCode: "XYZ",
		MarketID:       "LSE",
		PartyID:        "P-7",
		ReceivedTime:   t0,
	}}

	if got := SelectNear(nil, trades, false, d(5e6)); len(got) != 0 {
		t.Errorf("trades must be ignored when the flag is off, got %+v", got)
	}

	got := SelectNear(nil, trades, true, d(5e6))
	if len(got) != 1 {
		t.Fatalf("expected one trade event, got %d", len(got))
	}
	e := got[0]
	if e.Kind != SourceTrade || e.SourceID != "T1" || e.PartyID != "P-7" {
		t.Errorf("unexpected event %+v", e)
	}
	if !e.Notional.Equal(d(6e6)) {
		t.Errorf("notional: got %s", e.Notional)
	}
}

// --- Far-side matching ---

func nearBuy() NearEvent {
	return NearEvent{
		Kind:       SourceTrade,
		SourceID:   "T1",
		Side:       model.Buy,
		Instrument: "XYZ",
		MarketID:   "LSE",
		Time:       t0,
		Notional:   d(6e6),
	}
}

func ids(orders []model.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.OrderID
	}
	return out
}

func TestFarCandidates_WindowIsClosed(t *testing.T) {
	window := 45 * time.Second
	orders := []model.Order{
		order("BEFORE", model.EventNew, model.Sell, 1e6, 1e6, -time.Nanosecond),
		order("START", model.EventNew, model.Sell, 1e6, 1e6, 0),
		order("INSIDE", model.EventNew, model.Sell, 1e6, 1e6, 10*time.Second),
		order("EDGE", model.EventNew, model.Sell, 1e6, 1e6, window),
		order("BEYOND", model.EventNew, model.Sell, 1e6, 1e6, window+time.Second),
	}
	m := NewMatcher(NewOrderIndex(orders), d(5e6), window)

	got := ids(m.FarCandidates(nearBuy()))
	want := []string{"START", "INSIDE", "EDGE"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestFarCandidates_FiltersSideInstrumentMarket(t *testing.T) {
	sameSide := order("SAME_SIDE", model.EventNew, model.Buy, 1e6, 1e6, time.Second)
	otherInstr := order("OTHER_INSTR", model.EventNew, model.Sell, 1e6, 1e6, time.Second)
	otherInstr.InstrumentCode = "ABC"
	otherMarket := order("OTHER_MKT", model.EventNew, model.Sell, 1e6, 1e6, time.Second)
	otherMarket.MarketID = "XETRA"
	match := order("MATCH", model.EventNew, model.Sell, 1e6, 1e6, time.Second)

	m := NewMatcher(NewOrderIndex([]model.Order{sameSide, otherInstr, otherMarket, match}), d(5e6), 45*time.Second)
	got := ids(m.FarCandidates(nearBuy()))
	if len(got) != 1 || got[0] != "MATCH" {
		t.Errorf("got %v, want [MATCH]", got)
	}
}

func TestFarCandidates_UsesRawQtyAgainstCap(t *testing.T) {
	// Nothing executed, but the raw quantity still counts against the cap.
	atCap := order("AT_CAP", model.EventNew, model.Sell, 5e6, 5e6, time.Second)
	overCap := order("OVER_CAP", model.EventNew, model.Sell, 6e6, 6e6, time.Second)

	m := NewMatcher(NewOrderIndex([]model.Order{overCap, atCap}), d(5e6), 45*time.Second)
	got := ids(m.FarCandidates(nearBuy()))
	if len(got) != 1 || got[0] != "AT_CAP" {
		t.Errorf("got %v, want [AT_CAP]", got)
	}
}

func TestFarCandidates_UnsortedInput(t *testing.T) {
	orders := []model.Order{
		order("C", model.EventNew, model.Sell, 1e6, 1e6, 30*time.Second),
		order("A", model.EventNew, model.Sell, 1e6, 1e6, 10*time.Second),
		order("B", model.EventNew, model.Sell, 1e6, 1e6, 20*time.Second),
	}
	m := NewMatcher(NewOrderIndex(orders), d(5e6), 45*time.Second)
	got := ids(m.FarCandidates(nearBuy()))
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("got %v, want time-ordered [A B C]", got)
	}
	if orders[0].OrderID != "C" {
		t.Error("input slice must not be reordered")
	}
}

func TestFarCandidates_NoPartition(t *testing.T) {
	m := NewMatcher(NewOrderIndex(nil), d(5e6), 45*time.Second)
	if got := m.FarCandidates(nearBuy()); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
