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

package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bcem/postal/internal/mail"
	"github.com/bcem/postal/internal/notify"
)

var sweepNow = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

// inTransit returns SENT mail whose scheduled arrival is in the past
// relative to sweepNow.
func inTransit(t *testing.T, from string, sent time.Time) *mail.Mail {
	t.Helper()
	m, err := mail.New(from, []mail.Correspondent{mail.ToPerson("bob")}, "body", sent)
	if err != nil {
		t.Fatalf("mail.New: %v", err)
	}
	if err := m.Send(sent, mail.MinTransitDays); err != nil {
		t.Fatalf("Send: %v", err)
	}
	return m
}

// --- Mock mail store ---

type mockSweepStore struct {
	mu    sync.Mutex
	mails map[string]*mail.Mail

	markErr    error
	denyMark   bool
	persistErr error
	persisted  int
}

func newMockSweepStore(mails ...*mail.Mail) *mockSweepStore {
	s := &mockSweepStore{mails: make(map[string]*mail.Mail)}
	for _, m := range mails {
		s.mails[m.ID] = m
	}
	return s
}

func (s *mockSweepStore) ListArrived(_ context.Context, now time.Time, limit int) ([]*mail.Mail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*mail.Mail
	for _, m := range s.mails {
		if m.Status != mail.StatusSent || m.ScheduledToArrive == nil || m.ScheduledToArrive.After(now) {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *mockSweepStore) MarkDelivered(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return false, s.markErr
	}
	if s.denyMark {
		return false, nil
	}
	m, ok := s.mails[id]
	if !ok || m.Status != mail.StatusSent || m.ScheduledToArrive.After(now) {
		return false, nil
	}
	m.UpdateDeliveryStatus(now)
	return true, nil
}

func (s *mockSweepStore) UpdateCorrespondents(_ context.Context, _ *mail.Mail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	s.persisted++
	return nil
}

// --- Mock dispatcher ---

type mockSweepDispatcher struct {
	mu          sync.Mutex
	transitions []notify.Transition
	mutate      bool
}

func (d *mockSweepDispatcher) Dispatch(_ context.Context, _ *mail.Mail, t notify.Transition, _ time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transitions = append(d.transitions, t)
	return d.mutate
}

// TestRun_DeliversArrivedMail promotes past-due mail and notifies.
func TestRun_DeliversArrivedMail(t *testing.T) {
	due := inTransit(t, "alice", sweepNow.AddDate(0, 0, -4))
	early := inTransit(t, "carol", sweepNow)

	store := newMockSweepStore(due, early)
	dispatcher := &mockSweepDispatcher{mutate: true}

	s := New(store, dispatcher, 0)
	s.now = func() time.Time { return sweepNow }

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Scanned != 1 || res.Delivered != 1 || res.Errors != 0 {
		t.Errorf("result = %+v, want 1 scanned, 1 delivered, 0 errors", res)
	}
	if due.Status != mail.StatusDelivered {
		t.Errorf("due mail status = %s, want delivered", due.Status)
	}
	if due.DateDelivered == nil || !due.DateDelivered.Equal(sweepNow) {
		t.Errorf("date_delivered = %v, want %v", due.DateDelivered, sweepNow)
	}
	if early.Status != mail.StatusSent {
		t.Errorf("early mail status = %s, want still sent", early.Status)
	}

	if len(dispatcher.transitions) != 1 || dispatcher.transitions[0] != notify.TransitionDelivered {
		t.Errorf("dispatched transitions = %v, want one delivered", dispatcher.transitions)
	}
	if store.persisted != 1 {
		t.Errorf("correspondent persists = %d, want 1", store.persisted)
	}
}

// TestRun_Idempotent re-runs the sweep over already-delivered mail.
func TestRun_Idempotent(t *testing.T) {
	due := inTransit(t, "alice", sweepNow.AddDate(0, 0, -4))
	store := newMockSweepStore(due)
	dispatcher := &mockSweepDispatcher{}

	s := New(store, dispatcher, 0)
	s.now = func() time.Time { return sweepNow }
	ctx := context.Background()

	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	res, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if res.Scanned != 0 || res.Delivered != 0 {
		t.Errorf("second pass = %+v, want nothing to do", res)
	}
	if len(dispatcher.transitions) != 1 {
		t.Errorf("dispatches = %d, want exactly 1 across both passes", len(dispatcher.transitions))
	}
}

// TestRun_SkipsLostGuard leaves mail alone when the guarded update
// reports no transition.
func TestRun_SkipsLostGuard(t *testing.T) {
	due := inTransit(t, "alice", sweepNow.AddDate(0, 0, -4))
	store := newMockSweepStore(due)
	dispatcher := &mockSweepDispatcher{mutate: true}

	// The listing sees the mail, but by transition time another sweep
	// has delivered it.
	store.denyMark = true

	s := New(store, dispatcher, 0)
	s.now = func() time.Time { return sweepNow }

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Delivered != 0 {
		t.Errorf("delivered = %d, want 0", res.Delivered)
	}
	if len(dispatcher.transitions) != 0 {
		t.Errorf("dispatches = %d, want 0", len(dispatcher.transitions))
	}
}

// TestRun_CountsErrors keeps going past per-mail failures.
func TestRun_CountsErrors(t *testing.T) {
	due := inTransit(t, "alice", sweepNow.AddDate(0, 0, -4))
	store := newMockSweepStore(due)
	store.markErr = errors.New("connection reset")

	s := New(store, nil, 0)
	s.now = func() time.Time { return sweepNow }

	res, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Errors != 1 || res.Delivered != 0 {
		t.Errorf("result = %+v, want 1 error and 0 delivered", res)
	}
}

// TestStartStop verifies the periodic loop shuts down cleanly.
func TestStartStop(t *testing.T) {
	s := New(newMockSweepStore(), nil, 0)
	s.now = func() time.Time { return sweepNow }

	s.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(35 * time.Millisecond)
	s.Stop()
}
