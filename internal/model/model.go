// Package model defines the market records consumed by the surveillance
// engine and the alerts it produces.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order, trade or depth row.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

// Valid reports whether s is Buy or Sell.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// EventType is the lifecycle state reported with an order or trade event.
type EventType string

const (
	EventNew             EventType = "New"
	EventFilled          EventType = "Filled"
	EventPartiallyFilled EventType = "PartiallyFilled"
	EventCancelled       EventType = "Cancelled"
	EventAmended         EventType = "Amended"
)

var knownEvents = map[string]EventType{
	"new":             EventNew,
	"filled":          EventFilled,
	"partiallyfilled": EventPartiallyFilled,
	"cancelled":       EventCancelled,
	"canceled":        EventCancelled,
	"amended":         EventAmended,
}

// UnmarshalText accepts the canonical spelling as well as spaced,
// underscored or differently cased variants ("Partially Filled").
// Unknown values are kept verbatim.
func (e *EventType) UnmarshalText(b []byte) error {
	raw := string(b)
	key := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(raw))
	if known, ok := knownEvents[key]; ok {
		*e = known
		return nil
	}
	*e = EventType(raw)
	return nil
}

// Order is one order lifecycle event.
// Invariant: BaseCcyLeavesQty <= BaseCcyQty and
// CumulativeQty = BaseCcyQty - BaseCcyLeavesQty.
type Order struct {
	OrderID          string          `json:"order_id"`
	EventType        EventType       `json:"event_type"`
	Side             Side            `json:"side"`
	BaseCcyQty       decimal.Decimal `json:"base_ccy_qty"`
	BaseCcyLeavesQty decimal.Decimal `json:"base_ccy_leaves_qty"`
	CumulativeQty    decimal.Decimal `json:"cumulative_qty"`
	Price            decimal.Decimal `json:"price"`
	InstrumentCode   string          `json:"instrument_code"`
	MarketID         string          `json:"market_id"`
	PartyID          string          `json:"party_id,omitempty"`
	ReceivedTime     time.Time       `json:"received_time"`
}

// ExecutedQty is the filled part of the order.
func (o Order) ExecutedQty() decimal.Decimal {
	return o.BaseCcyQty.Sub(o.BaseCcyLeavesQty)
}

// Trade is one executed trade report.
type Trade struct {
	TradeID        string          `json:"trade_id"`
	EventType      EventType       `json:"event_type"`
	Side           Side            `json:"side"`
	BaseCcyValue   decimal.Decimal `json:"base_ccy_value"`
	Price          decimal.Decimal `json:"price"`
	InstrumentCode string          `json:"instrument_code"`
	MarketID       string          `json:"market_id"`
	PartyID        string          `json:"party_id,omitempty"`
	ReceivedTime   time.Time       `json:"received_time"`
}

// MarketDepth is one price level of a venue's order book.
// BookLevel 1 is the top of book.
type MarketDepth struct {
	InstrumentCode  string          `json:"instrument_code"`
	VenueID         string          `json:"venue_id"`
	BookLevel       int             `json:"book_level"`
	Side            Side            `json:"side"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	BaseCcyQuantity decimal.Decimal `json:"base_ccy_quantity"`
	FeedID          string          `json:"feed_id,omitempty"`
	MarketTimestamp time.Time       `json:"market_timestamp"`
	ReceivedTime    time.Time       `json:"received_time"`
}

// Reason explains why an alert was raised.
type Reason string

const (
	ReasonDepthMissing  Reason = "Market depth missing"
	ReasonBuyCrossesBid Reason = "Buy price >= best bid"
	ReasonSellCrossAsk  Reason = "Sell price <= best ask"
)

// ScenarioSmoking identifies alerts raised by the smoking rule.
const ScenarioSmoking = "Smoking"

// UnknownParty is used when the near-side record carries no party.
const UnknownParty = "N/A"

// Alert is an immutable record of a (near, far) pair flagged by the rule.
// Desk and Trader are filled by downstream enrichment.
type Alert struct {
	AlertID        string              `json:"alert_id" db:"alert_id"`
	ScenarioID     string              `json:"scenario_id" db:"scenario_id"`
	AlertTimestamp time.Time           `json:"alert_timestamp" db:"alert_timestamp"`
	InstrumentID   string              `json:"instrument_id" db:"instrument_id"`
	MarketID       string              `json:"market_id" db:"market_id"`
	PartyID        string              `json:"party_id" db:"party_id"`
	Desk           string              `json:"desk,omitempty" db:"desk"`
	Trader         string              `json:"trader,omitempty" db:"trader"`
	Description    Reason              `json:"alert_description" db:"alert_description"`
	NearKind       string              `json:"near_kind" db:"near_kind"` // "Order" or "Trade"
	NearID         string              `json:"near_id" db:"near_id"`
	NearSide       Side                `json:"near_side" db:"near_side"`
	NearTime       time.Time           `json:"near_time" db:"near_time"`
	NearNotional   decimal.Decimal     `json:"near_notional" db:"near_notional"`
	FarOrderID     string              `json:"far_order_id" db:"far_order_id"`
	FarPrice       decimal.Decimal     `json:"far_price" db:"far_price"`
	FarQty         decimal.Decimal     `json:"far_qty" db:"far_qty"`
	FarTime        time.Time           `json:"far_time" db:"far_time"`
	BestBid        decimal.NullDecimal `json:"best_bid" db:"best_bid"`
	BestAsk        decimal.NullDecimal `json:"best_ask" db:"best_ask"`
}
