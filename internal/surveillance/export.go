package surveillance

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/model"
)

var alertCSVHeader = []string{
	"alert_id", "scenario_id", "alert_timestamp", "instrument_id", "market_id",
	"party_id", "desk", "trader", "alert_description",
	"near_kind", "near_id", "near_side", "near_time", "near_notional",
	"far_order_id", "far_price", "far_qty", "far_time",
	"best_bid", "best_ask",
}

// writeAlertsCSV writes one header row and one row per alert. Absent
// best bid/ask are empty cells.
func writeAlertsCSV(w io.Writer, alerts []model.Alert) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(alertCSVHeader); err != nil {
		return err
	}
	for _, a := range alerts {
		row := []string{
			a.AlertID, a.ScenarioID, a.AlertTimestamp.Format(time.RFC3339Nano), a.InstrumentID, a.MarketID,
			a.PartyID, a.Desk, a.Trader, string(a.Description),
			a.NearKind, a.NearID, string(a.NearSide), a.NearTime.Format(time.RFC3339Nano), a.NearNotional.String(),
			a.FarOrderID, a.FarPrice.String(), a.FarQty.String(), a.FarTime.Format(time.RFC3339Nano),
			nullCell(a.BestBid), nullCell(a.BestAsk),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func nullCell(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
