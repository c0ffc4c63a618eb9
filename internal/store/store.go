// Package store defines the persistence interface for raised alerts.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"

	"github.com/atmx/surveillance-engine/internal/model"
)

// ErrNotFound is returned when an alert id is unknown.
var ErrNotFound = errors.New("store: alert not found")

// Filter narrows ListAlerts. Zero fields match everything.
type Filter struct {
	Instrument string
	Market     string
	Reason     model.Reason
	Limit      int
}

// Store is the alert persistence interface. Alert ids are deterministic,
// so inserting an alert that already exists is a no-op rather than an
// error; re-evaluating the same records never duplicates alerts.
type Store interface {
	// InsertAlerts persists alerts and returns those that were new.
	InsertAlerts(ctx context.Context, alerts []model.Alert) ([]model.Alert, error)

	// GetAlert retrieves one alert by id.
	GetAlert(ctx context.Context, id string) (*model.Alert, error)

	// ListAlerts returns alerts matching f, newest first.
	ListAlerts(ctx context.Context, f Filter) ([]model.Alert, error)
}

func (f Filter) match(a *model.Alert) bool {
	if f.Instrument != "" && a.InstrumentID != f.Instrument {
		return false
	}
	if f.Market != "" && a.MarketID != f.Market {
		return false
	}
	if f.Reason != "" && a.Description != f.Reason {
		return false
	}
	return true
}
