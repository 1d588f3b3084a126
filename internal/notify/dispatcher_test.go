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

package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bcem/postal/internal/mail"
)

var notifyNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// --- Mocks ---

type mockQueue struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (q *mockQueue) Publish(_ context.Context, e Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, e)
	return nil
}

type mockPusher struct {
	mu     sync.Mutex
	events []Event
}

func (p *mockPusher) Push(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// mockDedup mirrors the SETNX contract: the first sighting of a key is
// fresh, every later one is not.
type mockDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMockDedup() *mockDedup {
	return &mockDedup{seen: make(map[string]bool)}
}

func (d *mockDedup) IsNew(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

type fixedClassifier struct {
	template mail.Template
}

func (c *fixedClassifier) TemplateFor(_ context.Context, _ mail.Correspondent) (mail.Template, error) {
	return c.template, nil
}

func testMail(t *testing.T) *mail.Mail {
	t.Helper()
	m, err := mail.New("alice", []mail.Correspondent{
		mail.ToPerson("bob"),
		mail.ToEmail("x@test.com"),
	}, "body", notifyNow)
	if err != nil {
		t.Fatalf("mail.New: %v", err)
	}
	return m
}

// TestDispatch_SentFansOutToEmails routes send-time events to the queue
// and only touches email correspondents.
func TestDispatch_SentFansOutToEmails(t *testing.T) {
	queue := &mockQueue{}
	pusher := &mockPusher{}
	d := NewDispatcher(queue, pusher, newMockDedup(), &fixedClassifier{template: mail.TemplateNewRecipient})

	m := testMail(t)
	mutated := d.Dispatch(context.Background(), m, TransitionSent, notifyNow)

	if !mutated {
		t.Fatal("no correspondent markers mutated")
	}
	if len(queue.events) != 1 {
		t.Fatalf("queued events = %d, want 1", len(queue.events))
	}
	e := queue.events[0]
	if e.Email != "x@test.com" || e.Transition != TransitionSent {
		t.Errorf("event = %+v, want sent to x@test.com", e)
	}
	if e.Template != string(mail.TemplateNewRecipient) {
		t.Errorf("template = %q, want new_recipient", e.Template)
	}
	if len(pusher.events) != 0 {
		t.Errorf("pushes = %d, want 0 at send time", len(pusher.events))
	}

	for _, c := range m.Correspondents {
		switch c.Type {
		case mail.TypeToEmail:
			if !c.AttemptedToSend {
				t.Error("email correspondent not marked attempted_to_send")
			}
		default:
			if c.AttemptedToSend || c.AttemptedToNotify {
				t.Errorf("%s correspondent marked at send time", c.Type)
			}
		}
	}
}

// TestDispatch_DeliveredPushesToPersons routes delivery events to the
// push gateway for registered recipients only.
func TestDispatch_DeliveredPushesToPersons(t *testing.T) {
	queue := &mockQueue{}
	pusher := &mockPusher{}
	d := NewDispatcher(queue, pusher, newMockDedup(), nil)

	m := testMail(t)
	mutated := d.Dispatch(context.Background(), m, TransitionDelivered, notifyNow)

	if !mutated {
		t.Fatal("no correspondent markers mutated")
	}
	if len(pusher.events) != 1 || pusher.events[0].PersonID != "bob" {
		t.Fatalf("pushes = %+v, want one for bob", pusher.events)
	}
	if len(queue.events) != 0 {
		t.Errorf("queued events = %d, want 0 at delivery time", len(queue.events))
	}

	if c := m.ToPerson("bob"); c == nil || !c.AttemptedToNotify {
		t.Error("bob not marked attempted_to_notify")
	}
}

// TestDispatch_DedupSuppressesRepeats verifies a re-run transition does
// not notify the same recipient twice.
func TestDispatch_DedupSuppressesRepeats(t *testing.T) {
	queue := &mockQueue{}
	d := NewDispatcher(queue, &mockPusher{}, newMockDedup(), nil)

	m := testMail(t)
	ctx := context.Background()

	if !d.Dispatch(ctx, m, TransitionSent, notifyNow) {
		t.Fatal("first dispatch mutated nothing")
	}
	if d.Dispatch(ctx, m, TransitionSent, notifyNow) {
		t.Error("repeat dispatch reported mutations")
	}
	if len(queue.events) != 1 {
		t.Errorf("queued events = %d, want 1 across both dispatches", len(queue.events))
	}
}

// TestDispatch_QueueFailureStillMarks treats a failed enqueue as
// attempted: the dedup key is burned and the marker is set.
func TestDispatch_QueueFailureStillMarks(t *testing.T) {
	queue := &mockQueue{err: errors.New("broker down")}
	d := NewDispatcher(queue, &mockPusher{}, newMockDedup(), nil)

	m := testMail(t)
	if !d.Dispatch(context.Background(), m, TransitionSent, notifyNow) {
		t.Error("failed enqueue suppressed the attempted marker")
	}
}

// TestEventDedupKey pins the key layout shared with the filter.
func TestEventDedupKey(t *testing.T) {
	m := testMail(t)

	personEvent := NewEvent(m, TransitionDelivered, mail.ToPerson("bob"), notifyNow)
	if want := m.ID + ":delivered:bob"; personEvent.DedupKey() != want {
		t.Errorf("key = %s, want %s", personEvent.DedupKey(), want)
	}

	emailEvent := NewEvent(m, TransitionSent, mail.ToEmail("x@test.com"), notifyNow)
	if want := m.ID + ":sent:x@test.com"; emailEvent.DedupKey() != want {
		t.Errorf("key = %s, want %s", emailEvent.DedupKey(), want)
	}
}
