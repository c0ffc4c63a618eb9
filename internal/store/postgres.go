package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/model"
)

// schema creates the alerts table. Money and prices are NUMERIC for exact
// decimal precision.
const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	alert_id          TEXT PRIMARY KEY,
	scenario_id       TEXT NOT NULL,
	alert_timestamp   TIMESTAMPTZ NOT NULL,
	instrument_id     TEXT NOT NULL,
	market_id         TEXT NOT NULL,
	party_id          TEXT NOT NULL,
	desk              TEXT NOT NULL DEFAULT '',
	trader            TEXT NOT NULL DEFAULT '',
	alert_description TEXT NOT NULL,
	near_kind         TEXT NOT NULL,
	near_id           TEXT NOT NULL,
	near_side         TEXT NOT NULL,
	near_time         TIMESTAMPTZ NOT NULL,
	near_notional     NUMERIC NOT NULL,
	far_order_id      TEXT NOT NULL,
	far_price         NUMERIC NOT NULL,
	far_qty           NUMERIC NOT NULL,
	far_time          TIMESTAMPTZ NOT NULL,
	best_bid          NUMERIC,
	best_ask          NUMERIC
);
CREATE INDEX IF NOT EXISTS alerts_instrument_market_idx ON alerts (instrument_id, market_id);
`

const selectAlert = `SELECT alert_id, scenario_id, alert_timestamp, instrument_id, market_id,
        party_id, desk, trader, alert_description,
        near_kind, near_id, near_side, near_time, near_notional::TEXT,
        far_order_id, far_price::TEXT, far_qty::TEXT, far_time,
        best_bid::TEXT, best_ask::TEXT
 FROM alerts`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the alerts table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) InsertAlerts(ctx context.Context, alerts []model.Alert) ([]model.Alert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert alerts: %w", err)
	}
	defer tx.Rollback(ctx)

	var inserted []model.Alert
	for _, a := range alerts {
		tag, err := tx.Exec(ctx,
			`INSERT INTO alerts (alert_id, scenario_id, alert_timestamp, instrument_id, market_id,
			                     party_id, desk, trader, alert_description,
			                     near_kind, near_id, near_side, near_time, near_notional,
			                     far_order_id, far_price, far_qty, far_time, best_bid, best_ask)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::NUMERIC,
			         $15, $16::NUMERIC, $17::NUMERIC, $18, $19::NUMERIC, $20::NUMERIC)
			 ON CONFLICT (alert_id) DO NOTHING`,
			a.AlertID, a.ScenarioID, a.AlertTimestamp, a.InstrumentID, a.MarketID,
			a.PartyID, a.Desk, a.Trader, string(a.Description),
			a.NearKind, a.NearID, string(a.NearSide), a.NearTime, a.NearNotional.String(),
			a.FarOrderID, a.FarPrice.String(), a.FarQty.String(), a.FarTime,
			nullString(a.BestBid), nullString(a.BestAsk),
		)
		if err != nil {
			return nil, fmt.Errorf("insert alert %s: %w", a.AlertID, err)
		}
		if tag.RowsAffected() == 1 {
			inserted = append(inserted, a)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit alerts: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, selectAlert+` WHERE alert_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, f Filter) ([]model.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.Instrument != "" {
		args = append(args, f.Instrument)
		where = append(where, fmt.Sprintf("instrument_id = $%d", len(args)))
	}
	if f.Market != "" {
		args = append(args, f.Market)
		where = append(where, fmt.Sprintf("market_id = $%d", len(args)))
	}
	if f.Reason != "" {
		args = append(args, string(f.Reason))
		where = append(where, fmt.Sprintf("alert_description = $%d", len(args)))
	}

	q := selectAlert
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY alert_timestamp DESC, alert_id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// scanAlert reads one alert row from pgx.Row or pgx.Rows.
func scanAlert(row pgx.Row) (*model.Alert, error) {
	var a model.Alert
	var description, nearSide, notional, farPrice, farQty string
	var bestBid, bestAsk *string

	if err := row.Scan(&a.AlertID, &a.ScenarioID, &a.AlertTimestamp, &a.InstrumentID, &a.MarketID,
		&a.PartyID, &a.Desk, &a.Trader, &description,
		&a.NearKind, &a.NearID, &nearSide, &a.NearTime, &notional,
		&a.FarOrderID, &farPrice, &farQty, &a.FarTime,
		&bestBid, &bestAsk); err != nil {
		return nil, err
	}

	a.Description = model.Reason(description)
	a.NearSide = model.Side(nearSide)
	a.NearNotional, _ = decimal.NewFromString(notional)
	a.FarPrice, _ = decimal.NewFromString(farPrice)
	a.FarQty, _ = decimal.NewFromString(farQty)
	a.BestBid = parseNull(bestBid)
	a.BestAsk = parseNull(bestAsk)

	return &a, nil
}

func nullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNull(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
