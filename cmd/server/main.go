package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idlink/internal/contact/handler"
	"idlink/internal/contact/metrics"
	"idlink/internal/contact/service"
	"idlink/internal/contact/store/memory"
	"idlink/internal/contact/store/postgres"
	"idlink/internal/platform/config"
	"idlink/internal/platform/httpserver"
	"idlink/internal/platform/logger"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the service package.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var store service.Store
	ping := func(context.Context) error { return nil }

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory contact store; data will not survive restarts")
		store = memory.New()
	} else {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		pg := postgres.New(db)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Error("apply schema", "error", err)
			os.Exit(1)
		}
		store = pg
		ping = db.PingContext
	}

	svc, err := service.New(store, log, metrics.New(prometheus.DefaultRegisterer))
	if err != nil {
		log.Error("build reconciliation service", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	handler.New(svc, log).Register(router)
	router.Get("/healthz", healthz(ping))
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting idlink", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// healthz reports liveness and, when a database is configured, that it still
// answers.
func healthz(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
