// Package correlation pairs large near-side events with small opposite-side
// orders placed shortly after them on the same instrument and venue.
//
// Near-side events come from trades (when enabled) and from executed
// orders. Far-side candidates are looked up through an OrderIndex that
// partitions orders by (instrument, market, side) and keeps each partition
// sorted by receive time, so the window query is a binary search followed
// by a short forward scan.
package correlation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/model"
)

// SourceKind tells which record a near-side event was derived from.
type SourceKind string

const (
	SourceOrder SourceKind = "Order"
	SourceTrade SourceKind = "Trade"
)

// NearEvent is a qualifying large order or trade. It carries only the
// fields the matcher and alert builder need.
type NearEvent struct {
	Kind       SourceKind
	SourceID   string
	Side       model.Side
	Instrument string
	MarketID   string
	Time       time.Time
	Notional   decimal.Decimal
	PartyID    string
}

// OrderNotional returns the executed size of an order and whether the
// order's state allows it to be a near-side event at all. Filled orders
// count their full quantity, partial fills only the executed part.
func OrderNotional(o model.Order) (decimal.Decimal, bool) {
	switch o.EventType {
	case model.EventFilled:
		return o.BaseCcyQty, true
	case model.EventPartiallyFilled:
		return o.ExecutedQty(), true
	default:
		return decimal.Zero, false
	}
}

// SelectNear returns every trade (when includeTrades is set) and every
// filled or partially filled order whose notional strictly exceeds
// threshold. The result is unordered.
func SelectNear(orders []model.Order, trades []model.Trade, includeTrades bool, threshold decimal.Decimal) []NearEvent {
	var events []NearEvent

	if includeTrades {
		for _, t := range trades {
			if !t.BaseCcyValue.GreaterThan(threshold) {
				continue
			}
			events = append(events, NearEvent{
				Kind:       SourceTrade,
				SourceID:   t.TradeID,
				Side:       t.Side,
				Instrument: t.InstrumentCode,
				MarketID:   t.MarketID,
				Time:       t.ReceivedTime,
				Notional:   t.BaseCcyValue,
				PartyID:    t.PartyID,
			})
		}
	}

	for _, o := range orders {
		notional, ok := OrderNotional(o)
		if !ok || !notional.GreaterThan(threshold) {
			continue
		}
		events = append(events, NearEvent{
			Kind:       SourceOrder,
			SourceID:   o.OrderID,
			Side:       o.Side,
			Instrument: o.InstrumentCode,
			MarketID:   o.MarketID,
			Time:       o.ReceivedTime,
			Notional:   notional,
			PartyID:    o.PartyID,
		})
	}

	return events
}
