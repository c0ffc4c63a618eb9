package correlation

import (
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/model"
)

type partitionKey struct {
	instrument string
	market     string
	side       model.Side
}

// OrderIndex holds the order sequence partitioned by (instrument, market,
// side), each partition sorted by ReceivedTime. It is read-only after
// construction and safe for concurrent use.
type OrderIndex struct {
	parts map[partitionKey][]model.Order
}

// NewOrderIndex builds the index. The input slice is not modified.
func NewOrderIndex(orders []model.Order) *OrderIndex {
	parts := make(map[partitionKey][]model.Order)
	for _, o := range orders {
		k := partitionKey{instrument: o.InstrumentCode, market: o.MarketID, side: o.Side}
		parts[k] = append(parts[k], o)
	}
	for _, p := range parts {
		slices.SortStableFunc(p, func(a, b model.Order) int {
			return a.ReceivedTime.Compare(b.ReceivedTime)
		})
	}
	return &OrderIndex{parts: parts}
}

// Matcher finds far-side candidates for near-side events.
type Matcher struct {
	index        *OrderIndex
	farThreshold decimal.Decimal
	window       time.Duration
}

// NewMatcher creates a matcher over idx. Orders whose raw BaseCcyQty
// exceeds farThreshold are never candidates.
func NewMatcher(idx *OrderIndex, farThreshold decimal.Decimal, window time.Duration) *Matcher {
	return &Matcher{
		index:        idx,
		farThreshold: farThreshold,
		window:       window,
	}
}

// FarCandidates returns every order on the opposite side of e, on the same
// instrument and market, received in the closed interval
// [e.Time, e.Time+window], whose BaseCcyQty is at most the far threshold.
// The far order need not have executed, so the raw quantity is used rather
// than the executed notional.
func (m *Matcher) FarCandidates(e NearEvent) []model.Order {
	part := m.index.parts[partitionKey{
		instrument: e.Instrument,
		market:     e.MarketID,
		side:       e.Side.Opposite(),
	}]
	if len(part) == 0 {
		return nil
	}

	start := e.Time
	end := e.Time.Add(m.window)

	i := sort.Search(len(part), func(i int) bool {
		return !part[i].ReceivedTime.Before(start)
	})

	var out []model.Order
	for ; i < len(part); i++ {
		o := part[i]
		if o.ReceivedTime.After(end) {
			break
		}
		if o.BaseCcyQty.GreaterThan(m.farThreshold) {
			continue
		}
		out = append(out, o)
	}
	return out
}
