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

	"github.com/paystream/tx-engine/internal/api"
	"github.com/paystream/tx-engine/internal/config"
	"github.com/paystream/tx-engine/internal/ledger"
	"github.com/paystream/tx-engine/internal/metrics"
	"github.com/paystream/tx-engine/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// --- Initialize snapshot sink ---
	var snap sink.Sink
	var cleanup []func()

	switch {
	case cfg.SnapshotDatabaseURL != "":
		pool, err := pgxpool.New(context.Background(), cfg.SnapshotDatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		snap = sink.NewPostgresSink(pool)
		slog.Info("snapshot sink: PostgreSQL")
	case cfg.SnapshotRedisURL != "":
		opt, err := redis.ParseURL(cfg.SnapshotRedisURL)
		if err != nil {
			slog.Error("invalid SNAPSHOT_REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		snap = sink.NewRedisSink(rdb, 0)
		slog.Info("snapshot sink: Redis")
	default:
		slog.Warn("no snapshot sink configured, POST /api/v1/snapshot/export disabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Ledger engine ---
	engine := ledger.NewEngine()

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Transaction service ---
	svc := api.NewService(engine, wsHub, snap)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"tx-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time account updates.
		r.Get("/ws", wsHub.HandleWS)

		// Record ingestion.
		r.Post("/transactions", svc.SubmitTransaction)
		r.Post("/batches", svc.SubmitBatch)

		// State queries.
		r.Get("/transactions/{txID}", svc.GetTransaction)
		r.Get("/accounts", svc.ListAccounts)
		r.Get("/accounts/{clientID}", svc.GetAccount)

		// Snapshot export to the configured sink.
		r.Post("/snapshot/export", svc.ExportSnapshot)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("tx-engine listening", "port", cfg.Port)
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

	slog.Info("shutting down tx-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("tx-engine stopped")
}
