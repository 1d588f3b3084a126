// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Postal — Delivery Service
//
// Entry point for the postal backend service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Initialises the mail, conversation, and person stores
//  4. Wires the notification dispatcher (queue + optional push gateway)
//  5. Runs the periodic delivery sweep
//  6. Serves health and metrics endpoints
//  7. Handles graceful shutdown on SIGTERM/SIGINT
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/postal/internal/config"
	"github.com/bcem/postal/internal/mail"
	"github.com/bcem/postal/internal/notify"
	"github.com/bcem/postal/internal/person"
	"github.com/bcem/postal/internal/store"
	"github.com/bcem/postal/internal/sweep"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting postal delivery service")

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"sweep_interval", cfg.SweepInterval,
		"sweep_limit", cfg.SweepLimit,
		"queue", cfg.NotificationQueue,
		"push_enabled", cfg.PushEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := notify.NewQueuePublisher(rdb, cfg.NotificationQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Stores ---
	mailStore, err := store.NewMailStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise mail store", "error", err)
		os.Exit(1)
	}
	if _, err := store.NewConversationStore(ctx, pgPool); err != nil {
		slog.Error("failed to initialise conversation store", "error", err)
		os.Exit(1)
	}
	personStore, err := person.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise person store", "error", err)
		os.Exit(1)
	}

	// --- Notification Dispatcher ---
	var pusher notify.Pusher
	if cfg.PushEnabled() {
		pusher = notify.NewPushClient(ctx, notify.PushConfig{
			BaseURL:      cfg.PushGateway.BaseURL,
			TokenURL:     cfg.PushGateway.TokenURL,
			ClientID:     cfg.PushGateway.ClientID,
			ClientSecret: cfg.PushGateway.ClientSecret,
		})
	} else {
		pusher = notify.NopPusher{}
		slog.Warn("push gateway not configured, person notifications disabled")
	}

	classifier := mail.NewTemplateClassifier(personStore, mailStore)
	dispatcher := notify.NewDispatcher(publisher, pusher, notify.NewDeduper(rdb), classifier)

	// --- Delivery Sweep ---
	sweeper := sweep.New(mailStore, dispatcher, cfg.SweepLimit)
	sweeper.Start(ctx, cfg.SweepInterval)

	// --- Health + Metrics Server ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel() // Stop all background goroutines

		sweeper.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("postal service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("postal service stopped")
}
