package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/surveillance-engine/internal/smoking"
)

func TestParseRules_OverlaysDefaults(t *testing.T) {
	doc := []byte(`
trade_inclusion_flag: false
near_threshold: 7500000
far_threshold: "250000.50"
lookup_window: 30s
`)
	got, err := ParseRules(doc, smoking.DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IncludeTrades {
		t.Error("trade inclusion should be off")
	}
	if !got.NearThreshold.Equal(decimal.NewFromInt(7_500_000)) {
		t.Errorf("near threshold: got %s", got.NearThreshold)
	}
	if !got.FarThreshold.Equal(decimal.RequireFromString("250000.5")) {
		t.Errorf("far threshold: got %s", got.FarThreshold)
	}
	if got.LookupWindow != 30*time.Second {
		t.Errorf("window: got %s", got.LookupWindow)
	}
	if got.DepthLevel != 1 {
		t.Errorf("depth level should keep default 1, got %d", got.DepthLevel)
	}
}

func TestParseRules_LookupWindowUnits(t *testing.T) {
	tests := []struct {
		doc  string
		want time.Duration
	}{
		{"lookup_window: 45\n", 45 * time.Second},
		{"lookup_window: \"20\"\n", 20 * time.Second},
		{"lookup_window: 0\n", 0},
		{"lookup_window: 90s\n", 90 * time.Second},
		{"lookup_window: 1m30s\n", 90 * time.Second},
	}
	for _, tt := range tests {
		got, err := ParseRules([]byte(tt.doc), smoking.DefaultConfig())
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tt.doc, err)
			continue
		}
		if got.LookupWindow != tt.want {
			t.Errorf("%q: got %s, want %s", tt.doc, got.LookupWindow, tt.want)
		}
	}

	if _, err := ParseRules([]byte("lookup_window: soon\n"), smoking.DefaultConfig()); err == nil {
		t.Error("expected error for unparseable window")
	}
}

func TestParseRules_BadThreshold(t *testing.T) {
	_, err := ParseRules([]byte(`near_threshold: lots`), smoking.DefaultConfig())
	if err == nil {
		t.Fatal("expected error for non-numeric threshold")
	}
}

func TestLoad_FromEnvAndRulesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("depth_level: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "9090")
	t.Setenv("RULES_FILE", path)
	t.Setenv("WORKERS", "3")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("port: got %s", cfg.Port)
	}
	if cfg.Workers != 3 {
		t.Errorf("workers: got %d", cfg.Workers)
	}
	if cfg.Rules.DepthLevel != 2 {
		t.Errorf("depth level: got %d", cfg.Rules.DepthLevel)
	}
	if cfg.Rules.LookupWindow != 45*time.Second {
		t.Errorf("window should default to 45s, got %s", cfg.Rules.LookupWindow)
	}
}

func TestLoad_InvalidRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("depth_level: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RULES_FILE", path)

	_, err := Load()
	if !errors.Is(err, smoking.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoad_BadWorkers(t *testing.T) {
	t.Setenv("RULES_FILE", "")
	t.Setenv("WORKERS", "many")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric WORKERS")
	}
}
