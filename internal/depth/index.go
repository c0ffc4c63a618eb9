// Package depth indexes market depth rows by instrument and venue so the
// best bid and ask at one book level can be looked up in constant time.
package depth

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/model"
)

// Quote is the best bid and ask at the indexed book level. Either side may
// be absent (Valid == false) when the venue only published the other one.
type Quote struct {
	BestBid decimal.NullDecimal
	BestAsk decimal.NullDecimal
}

type key struct {
	instrument string
	venue      string
}

// Index is an immutable lookup built once per evaluation.
type Index struct {
	level  int
	quotes map[key]Quote
}

// Build partitions rows by (instrument, venue), keeping only rows at the
// given book level. Best bid is the highest Buy price, best ask the lowest
// Sell price.
func Build(rows []model.MarketDepth, level int) *Index {
	idx := &Index{
		level:  level,
		quotes: make(map[key]Quote),
	}

	for _, r := range rows {
		if r.BookLevel != level {
			continue
		}
		k := key{instrument: r.InstrumentCode, venue: r.VenueID}
		q := idx.quotes[k]

		switch r.Side {
		case model.Buy:
			if !q.BestBid.Valid || r.Price.GreaterThan(q.BestBid.Decimal) {
				q.BestBid = decimal.NewNullDecimal(r.Price)
			}
		case model.Sell:
			if !q.BestAsk.Valid || r.Price.LessThan(q.BestAsk.Decimal) {
				q.BestAsk = decimal.NewNullDecimal(r.Price)
			}
		default:
			continue
		}
		idx.quotes[k] = q
	}

	return idx
}

// Lookup returns the quote for (instrument, venue). ok is false when no
// row exists at the indexed level; that is a normal outcome, not an error.
func (i *Index) Lookup(instrument, venue string) (Quote, bool) {
	q, ok := i.quotes[key{instrument: instrument, venue: venue}]
	return q, ok
}

// Level returns the book level the index was built for.
func (i *Index) Level() int { return i.level }

// Len returns the number of (instrument, venue) partitions.
func (i *Index) Len() int { return len(i.quotes) }
