package smoking

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord is wrapped by every RecordError.
	ErrInvalidRecord = errors.New("smoking: invalid input record")

	// ErrInvalidConfig is returned when the rule configuration is unusable.
	ErrInvalidConfig = errors.New("smoking: invalid configuration")
)

// RecordError identifies a malformed input record. The engine never drops
// or repairs such records; cleaning them is the caller's job.
type RecordError struct {
	Kind  string // "order", "trade" or "market_depth"
	Index int    // position in the input slice
	ID    string // business id when the record has one
	Field string
}

func (e *RecordError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s[%d] %q: missing or invalid %s", ErrInvalidRecord, e.Kind, e.Index, e.ID, e.Field)
	}
	return fmt.Sprintf("%s: %s[%d]: missing or invalid %s", ErrInvalidRecord, e.Kind, e.Index, e.Field)
}

func (e *RecordError) Unwrap() error { return ErrInvalidRecord }

// validate checks every record and returns the first violation.
func validate(in Input) error {
	for i, o := range in.Orders {
		field := ""
		switch {
		case o.OrderID == "":
			field = "order_id"
		case o.InstrumentCode == "":
			field = "instrument_code"
		case o.MarketID == "":
			field = "market_id"
		case !o.Side.Valid():
			field = "side"
		case o.ReceivedTime.IsZero():
			field = "received_time"
		}
		if field != "" {
			return &RecordError{Kind: "order", Index: i, ID: o.OrderID, Field: field}
		}
	}

	for i, t := range in.Trades {
		field := ""
		switch {
		case t.TradeID == "":
			field = "trade_id"
		case t.InstrumentCode == "":
			field = "instrument_code"
		case t.MarketID == "":
			field = "market_id"
		case !t.Side.Valid():
			field = "side"
		case t.ReceivedTime.IsZero():
			field = "received_time"
		}
		if field != "" {
			return &RecordError{Kind: "trade", Index: i, ID: t.TradeID, Field: field}
		}
	}

	for i, r := range in.Depth {
		field := ""
		switch {
		case r.InstrumentCode == "":
			field = "instrument_code"
		case r.VenueID == "":
			field = "venue_id"
		case !r.Side.Valid():
			field = "side"
		case r.BookLevel < 1:
			field = "book_level"
		}
		if field != "" {
			return &RecordError{Kind: "market_depth", Index: i, Field: field}
		}
	}

	return nil
}
