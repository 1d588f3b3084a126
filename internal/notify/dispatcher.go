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
	"log/slog"
	"time"

	"github.com/bcem/postal/internal/mail"
)

// Queue publishes events for the email worker fleet.
type Queue interface {
	Publish(ctx context.Context, e Event) error
}

// Pusher sends events to the push gateway for registered recipients.
type Pusher interface {
	Push(ctx context.Context, e Event) error
}

// Dedup guards against double-dispatch across repeated sweeps.
type Dedup interface {
	IsNew(ctx context.Context, key string) (bool, error)
}

// Classifier picks the outbound template for external recipients.
type Classifier interface {
	TemplateFor(ctx context.Context, c mail.Correspondent) (mail.Template, error)
}

// Dispatcher fans a mail transition out to the affected correspondents:
// external addresses are queued for outbound email at send time,
// registered recipients are pushed at delivery time. Every path is
// best-effort — failures are logged and never surface to the caller.
type Dispatcher struct {
	queue      Queue
	pusher     Pusher
	dedup      Dedup
	classifier Classifier
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(queue Queue, pusher Pusher, dedup Dedup, classifier Classifier) *Dispatcher {
	return &Dispatcher{queue: queue, pusher: pusher, dedup: dedup, classifier: classifier}
}

// Dispatch emits events for one transition of one mail and marks the
// attempted correspondents on the document. It reports whether any
// correspondent entry was mutated so the caller can persist the markers.
func (d *Dispatcher) Dispatch(ctx context.Context, m *mail.Mail, t Transition, now time.Time) bool {
	mutated := false

	for i := range m.Correspondents {
		c := &m.Correspondents[i]

		switch {
		case t == TransitionSent && c.Type == mail.TypeToEmail:
			if d.dispatchEmail(ctx, m, c, now) {
				c.AttemptedToSend = true
				mutated = true
			}
		case t == TransitionDelivered && c.Type == mail.TypeToPerson:
			if d.dispatchPush(ctx, m, c, now) {
				c.AttemptedToNotify = true
				mutated = true
			}
		}
	}

	if mutated {
		m.UpdatedAt = now
	}
	return mutated
}

func (d *Dispatcher) dispatchEmail(ctx context.Context, m *mail.Mail, c *mail.Correspondent, now time.Time) bool {
	e := NewEvent(m, TransitionSent, *c, now)

	fresh, err := d.dedup.IsNew(ctx, e.DedupKey())
	if err != nil {
		slog.Error("notification dedup check failed", "mail_id", m.ID, "email", c.Email, "error", err)
		return false
	}
	if !fresh {
		return false
	}

	if d.classifier != nil {
		tmpl, err := d.classifier.TemplateFor(ctx, *c)
		if err != nil {
			slog.Error("template classification failed", "mail_id", m.ID, "email", c.Email, "error", err)
		} else {
			e.Template = string(tmpl)
		}
	}

	if err := d.queue.Publish(ctx, e); err != nil {
		slog.Error("outbound email enqueue failed", "mail_id", m.ID, "email", c.Email, "error", err)
		// The dedup key is burned; the worker fleet's replay tooling
		// owns recovery. The send itself stands.
	}
	return true
}

func (d *Dispatcher) dispatchPush(ctx context.Context, m *mail.Mail, c *mail.Correspondent, now time.Time) bool {
	e := NewEvent(m, TransitionDelivered, *c, now)

	fresh, err := d.dedup.IsNew(ctx, e.DedupKey())
	if err != nil {
		slog.Error("notification dedup check failed", "mail_id", m.ID, "person_id", c.PersonID, "error", err)
		return false
	}
	if !fresh {
		return false
	}

	if err := d.pusher.Push(ctx, e); err != nil {
		slog.Error("push dispatch failed", "mail_id", m.ID, "person_id", c.PersonID, "error", err)
	}
	return true
}
