// Package config loads service settings from the environment and the
// smoking rule parameters from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/surveillance-engine/internal/smoking"
)

// Config holds everything main needs to wire the service.
type Config struct {
	Port             string
	DatabaseURL      string
	RedisURL         string
	CacheTTL         time.Duration
	KafkaBrokers     string
	KafkaAlertsTopic string
	LogLevel         string
	RulesFile        string
	Workers          int
	WSOrigins        []string
	Rules            smoking.Config
}

// rulesFile mirrors the YAML layout of the rules file.
type rulesFile struct {
	TradeInclusionFlag *bool          `yaml:"trade_inclusion_flag"`
	NearThreshold      string         `yaml:"near_threshold"`
	FarThreshold       string         `yaml:"far_threshold"`
	LookupWindow       *window        `yaml:"lookup_window"`
	DepthLevel         *int           `yaml:"depth_level"`
}

// window is a lookup window written either as whole seconds (45) or as a
// duration string ("45s").
type window time.Duration

func (w *window) UnmarshalYAML(n *yaml.Node) error {
	var secs int64
	if err := n.Decode(&secs); err == nil {
		*w = window(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("lookup_window: %w", err)
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*w = window(time.Duration(secs) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("lookup_window: %w", err)
	}
	*w = window(d)
	return nil
}

// Load reads a best-effort .env, then the environment, then RULES_FILE if
// set. Missing values fall back to defaults.
func Load() (Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Config{
		Port:             getenv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		CacheTTL:         30 * time.Second,
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaAlertsTopic: getenv("KAFKA_ALERTS_TOPIC", "surveillance.alerts"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		RulesFile:        os.Getenv("RULES_FILE"),
		Rules:            smoking.DefaultConfig(),
	}

	if v := os.Getenv("WS_ALLOWED_ORIGINS"); v != "" {
		cfg.WSOrigins = strings.Split(v, ",")
	}

	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parse CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = ttl
	}

	if cfg.RulesFile != "" {
		b, err := os.ReadFile(cfg.RulesFile)
		if err != nil {
			return cfg, fmt.Errorf("read %s: %w", cfg.RulesFile, err)
		}
		rules, err := ParseRules(b, cfg.Rules)
		if err != nil {
			return cfg, err
		}
		cfg.Rules = rules
	}

	return cfg, cfg.Validate()
}

// ParseRules overlays the YAML document b onto base.
func ParseRules(b []byte, base smoking.Config) (smoking.Config, error) {
	var f rulesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return base, fmt.Errorf("parse yaml: %w", err)
	}

	out := base
	if f.TradeInclusionFlag != nil {
		out.IncludeTrades = *f.TradeInclusionFlag
	}
	if f.NearThreshold != "" {
		v, err := decimal.NewFromString(f.NearThreshold)
		if err != nil {
			return base, fmt.Errorf("near_threshold: %w", err)
		}
		out.NearThreshold = v
	}
	if f.FarThreshold != "" {
		v, err := decimal.NewFromString(f.FarThreshold)
		if err != nil {
			return base, fmt.Errorf("far_threshold: %w", err)
		}
		out.FarThreshold = v
	}
	if f.LookupWindow != nil {
		out.LookupWindow = time.Duration(*f.LookupWindow)
	}
	if f.DepthLevel != nil {
		out.DepthLevel = *f.DepthLevel
	}
	return out, nil
}

// Validate checks service settings and rule parameters.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port cannot be empty")
	}
	if c.Workers < 0 {
		return errors.New("workers must be >= 0")
	}
	if c.CacheTTL <= 0 {
		return errors.New("cache ttl must be > 0")
	}
	if c.KafkaBrokers != "" && c.KafkaAlertsTopic == "" {
		return errors.New("kafka alerts topic cannot be empty when brokers are set")
	}
	return c.Rules.Validate()
}

// NewLogger returns a JSON logger at the named level.
func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
