package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/surveillance-engine/internal/config"
	"github.com/atmx/surveillance-engine/internal/metrics"
	"github.com/atmx/surveillance-engine/internal/publish"
	"github.com/atmx/surveillance-engine/internal/smoking"
	"github.com/atmx/surveillance-engine/internal/store"
	"github.com/atmx/surveillance-engine/internal/surveillance"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(context.Background()); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (alerts will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Alert publisher ---
	var pub publish.AlertPublisher
	if cfg.KafkaBrokers != "" {
		kp, err := publish.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAlertsTopic)
		if err != nil {
			slog.Error("kafka publisher setup failed", "err", err)
			os.Exit(1)
		}
		pub = kp
	} else {
		slog.Warn("KAFKA_BROKERS not set, alerts will only be logged")
		pub = publish.NewLogPublisher(logger)
	}
	cleanup = append(cleanup, func() {
		if err := pub.Close(); err != nil {
			slog.Error("publisher close error", "err", err)
		}
	})

	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- WebSocket hub ---
	wsHub := surveillance.NewWSHub(cfg.WSOrigins...)
	go wsHub.Run()

	// --- Surveillance service ---
	svc, err := surveillance.NewService(cfg.Rules, st, pub, wsHub,
		smoking.WithWorkers(cfg.Workers),
		smoking.WithLogger(logger),
	)
	if err != nil {
		slog.Error("invalid rule parameters", "err", err)
		os.Exit(1)
	}
	slog.Info("smoking rule loaded",
		"near_threshold", cfg.Rules.NearThreshold.String(),
		"far_threshold", cfg.Rules.FarThreshold.String(),
		"lookup_window", cfg.Rules.LookupWindow,
		"depth_level", cfg.Rules.DepthLevel,
		"include_trades", cfg.Rules.IncludeTrades,
	)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"surveillance-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time alerts. Outside the timeout
		// group since connections are long-lived.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			// Rule evaluation.
			r.Post("/evaluate", svc.Evaluate)
			r.Get("/rules", svc.GetRules)
			r.Post("/simulate", svc.Simulate)

			// Alert queries.
			r.Get("/alerts", svc.ListAlerts)
			r.Get("/alerts/{alertID}", svc.GetAlert)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("surveillance-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down surveillance-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("surveillance-engine stopped")
}
