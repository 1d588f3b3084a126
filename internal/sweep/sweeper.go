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

// Package sweep promotes SENT mail past its scheduled arrival to
// DELIVERED. Each document's transition is an independently guarded
// update, so overlapping or repeated sweeps degrade to no-ops rather
// than double-deliveries.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bcem/postal/internal/mail"
	"github.com/bcem/postal/internal/metrics"
	"github.com/bcem/postal/internal/notify"
)

// Store is the mail persistence the sweeper needs. Implemented by
// store.MailStore.
type Store interface {
	ListArrived(ctx context.Context, now time.Time, limit int) ([]*mail.Mail, error)
	MarkDelivered(ctx context.Context, id string, now time.Time) (bool, error)
	UpdateCorrespondents(ctx context.Context, m *mail.Mail) error
}

// Dispatcher emits delivered notifications. Implemented by
// notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, m *mail.Mail, t notify.Transition, now time.Time) bool
}

// Result summarises one sweep pass.
type Result struct {
	Scanned   int
	Delivered int
	Errors    int
}

// Sweeper runs the delivery sweep, one-shot or periodically.
type Sweeper struct {
	store      Store
	dispatcher Dispatcher
	limit      int
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a sweeper. limit caps the documents examined per pass;
// <= 0 means unbounded.
func New(store Store, dispatcher Dispatcher, limit int) *Sweeper {
	return &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		limit:      limit,
		now:        time.Now,
	}
}

// Run executes a single sweep pass. Per-mail failures are counted and
// logged but do not abort the pass.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	start := s.now()
	defer metrics.ObserveSweep(start)

	arrived, err := s.store.ListArrived(ctx, start, s.limit)
	if err != nil {
		return Result{}, err
	}

	res := Result{Scanned: len(arrived)}
	for _, m := range arrived {
		now := s.now()

		transitioned, err := s.store.MarkDelivered(ctx, m.ID, now)
		if err != nil {
			slog.Error("delivery transition failed", "mail_id", m.ID, "error", err)
			metrics.SweepErrors.Inc()
			res.Errors++
			continue
		}
		if !transitioned {
			// Another sweep got here first. Nothing to do.
			continue
		}

		m.UpdateDeliveryStatus(now)
		res.Delivered++
		metrics.MailDelivered.WithLabelValues("sweep").Inc()

		if s.dispatcher != nil && s.dispatcher.Dispatch(ctx, m, notify.TransitionDelivered, now) {
			if err := s.store.UpdateCorrespondents(ctx, m); err != nil {
				slog.Error("persisting notify markers failed", "mail_id", m.ID, "error", err)
				metrics.SweepErrors.Inc()
				res.Errors++
			}
		}
	}

	slog.Info("delivery sweep complete",
		"scanned", res.Scanned,
		"delivered", res.Delivered,
		"errors", res.Errors,
	)
	return res, nil
}

// Start runs the sweep at the given interval until Stop or ctx cancel.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.Run(loopCtx); err != nil {
					slog.Error("delivery sweep failed", "error", err)
				}
			}
		}
	}()

	slog.Info("delivery sweep started", "interval", interval)
}

// Stop cancels the periodic loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
