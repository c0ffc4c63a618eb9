package smoking

import (
	"time"

	"github.com/google/uuid"

	"github.com/atmx/surveillance-engine/internal/correlation"
	"github.com/atmx/surveillance-engine/internal/depth"
	"github.com/atmx/surveillance-engine/internal/model"
)

// Clock supplies the alert timestamp.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// alertNamespace scopes smoking alert ids. Changing it changes every id.
var alertNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("surveillance.smoking.alert"))

// Fingerprint derives a stable alert id from the business keys of the pair
// and the reason, so identical inputs always yield identical ids.
func Fingerprint(nearKind correlation.SourceKind, nearID, farOrderID string, reason model.Reason) string {
	name := string(nearKind) + "|" + nearID + "|" + farOrderID + "|" + string(reason)
	return uuid.NewSHA1(alertNamespace, []byte(name)).String()
}

// crossCheck classifies a (near, far) pair against the depth index.
// It returns the alert reason and true when the pair is alertable.
//
// A wholly missing depth entry alerts. A single missing side of an existing
// entry is treated as not crossable.
func crossCheck(e correlation.NearEvent, far model.Order, idx *depth.Index) (model.Reason, depth.Quote, bool) {
	q, ok := idx.Lookup(far.InstrumentCode, far.MarketID)
	if !ok {
		return model.ReasonDepthMissing, q, true
	}

	switch e.Side {
	case model.Buy:
		if q.BestBid.Valid && far.Price.GreaterThanOrEqual(q.BestBid.Decimal) {
			return model.ReasonBuyCrossesBid, q, true
		}
	case model.Sell:
		if q.BestAsk.Valid && far.Price.LessThanOrEqual(q.BestAsk.Decimal) {
			return model.ReasonSellCrossAsk, q, true
		}
	}
	return "", q, false
}

// buildAlert materializes an alert for a flagged pair. at is the
// evaluation time, not an event time.
func buildAlert(e correlation.NearEvent, far model.Order, reason model.Reason, q depth.Quote, at time.Time) model.Alert {
	party := e.PartyID
	if party == "" {
		party = model.UnknownParty
	}

	return model.Alert{
		AlertID:        Fingerprint(e.Kind, e.SourceID, far.OrderID, reason),
		ScenarioID:     model.ScenarioSmoking,
		AlertTimestamp: at,
		InstrumentID:   e.Instrument,
		MarketID:       e.MarketID,
		PartyID:        party,
		Description:    reason,
		NearKind:       string(e.Kind),
		NearID:         e.SourceID,
		NearSide:       e.Side,
		NearTime:       e.Time,
		NearNotional:   e.Notional,
		FarOrderID:     far.OrderID,
		FarPrice:       far.Price,
		FarQty:         far.BaseCcyQty,
		FarTime:        far.ReceivedTime,
		BestBid:        q.BestBid,
		BestAsk:        q.BestAsk,
	}
}
