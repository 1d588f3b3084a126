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

// Postal — Delivery Sweep Command
//
// Standalone CLI that runs a single delivery sweep pass, promoting all
// SENT mail past its scheduled arrival to DELIVERED. Intended for cron
// schedulers and operational one-offs; the long-running server performs
// the same sweep periodically.
//
// Usage:
//
//	go run ./cmd/sweep/ [--dry-run] [--limit 500] [--deliver-now <mail-id>]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/postal/internal/config"
	"github.com/bcem/postal/internal/conversation"
	"github.com/bcem/postal/internal/mail"
	"github.com/bcem/postal/internal/notify"
	"github.com/bcem/postal/internal/person"
	"github.com/bcem/postal/internal/postal"
	"github.com/bcem/postal/internal/store"
	"github.com/bcem/postal/internal/sweep"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "list arrived mail without transitioning it")
	limit := flag.Int("limit", 0, "cap the number of mail documents per pass (0 = config default)")
	deliverNow := flag.String("deliver-now", "", "force the given mail's scheduled arrival to the present before sweeping")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *limit <= 0 {
		*limit = cfg.SweepLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	mailStore, err := store.NewMailStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise mail store", "error", err)
		os.Exit(1)
	}

	if *dryRun {
		arrived, err := mailStore.ListArrived(ctx, time.Now(), *limit)
		if err != nil {
			slog.Error("failed to list arrived mail", "error", err)
			os.Exit(1)
		}
		for _, m := range arrived {
			fmt.Printf("%s\tsent=%s\tarrives=%s\n", m.ID, m.DateSent.Format(time.RFC3339), m.ScheduledToArrive.Format(time.RFC3339))
		}
		slog.Info("dry run complete", "arrived", len(arrived))
		return
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	convStore, err := store.NewConversationStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise conversation store", "error", err)
		os.Exit(1)
	}
	personStore, err := person.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise person store", "error", err)
		os.Exit(1)
	}

	classifier := mail.NewTemplateClassifier(personStore, mailStore)
	dispatcher := notify.NewDispatcher(
		notify.NewQueuePublisher(rdb, cfg.NotificationQueue),
		notify.NopPusher{},
		notify.NewDeduper(rdb),
		classifier,
	)

	if *deliverNow != "" {
		threads := conversation.NewService(convStore, mailStore)
		svc := postal.NewMailService(mailStore, personStore, threads, dispatcher, mail.NewScheduler(cfg.TransitSeed))
		if _, err := svc.DeliverNow(ctx, *deliverNow); err != nil {
			slog.Error("deliver-now failed", "mail_id", *deliverNow, "error", err)
			os.Exit(1)
		}
		slog.Info("arrival forced", "mail_id", *deliverNow)
	}

	sweeper := sweep.New(mailStore, dispatcher, *limit)
	res, err := sweeper.Run(ctx)
	if err != nil {
		slog.Error("delivery sweep failed", "error", err)
		os.Exit(1)
	}

	slog.Info("sweep finished",
		"scanned", res.Scanned,
		"delivered", res.Delivered,
		"errors", res.Errors,
	)
	if res.Errors > 0 {
		os.Exit(1)
	}
}
