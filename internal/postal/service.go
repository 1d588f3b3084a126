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

// Package postal orchestrates mail lifecycle operations across the
// stores, the conversation engine, and the notification dispatcher.
// Each operation is synchronous and self-contained; notification
// dispatch happens after a successful transition and can never roll it
// back.
package postal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/postal/internal/conversation"
	"github.com/bcem/postal/internal/mail"
	"github.com/bcem/postal/internal/metrics"
	"github.com/bcem/postal/internal/notify"
)

// MailStore is the persistence the service needs for mail documents.
// Implemented by store.MailStore.
type MailStore interface {
	Insert(ctx context.Context, m *mail.Mail) error
	Get(ctx context.Context, id string) (*mail.Mail, error)
	MarkSent(ctx context.Context, m *mail.Mail) (bool, error)
	MarkDelivered(ctx context.Context, id string, now time.Time) (bool, error)
	SetScheduledToArrive(ctx context.Context, id string, t time.Time) error
	UpdateCorrespondents(ctx context.Context, m *mail.Mail) error
}

// Directory validates person references. Implemented by person.Store.
type Directory interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Threads resolves conversations lazily. Implemented by
// conversation.Service.
type Threads interface {
	FindOrCreate(ctx context.Context, m *mail.Mail) (*conversation.Conversation, error)
}

// Dispatcher emits transition notifications. Implemented by
// notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, m *mail.Mail, t notify.Transition, now time.Time) bool
}

// MailService owns the mail lifecycle.
type MailService struct {
	mails      MailStore
	directory  Directory
	threads    Threads
	dispatcher Dispatcher
	scheduler  *mail.Scheduler
	now        func() time.Time
}

// NewMailService wires the service. dispatcher may be nil (tests,
// offline tooling); notifications are then skipped.
func NewMailService(mails MailStore, directory Directory, threads Threads, dispatcher Dispatcher, scheduler *mail.Scheduler) *MailService {
	return &MailService{
		mails:      mails,
		directory:  directory,
		threads:    threads,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		now:        time.Now,
	}
}

// CreateDraft validates the participants and persists a new draft.
func (s *MailService) CreateDraft(ctx context.Context, fromPersonID string, recipients []mail.Correspondent, body string, attachment *mail.Attachment) (*mail.Mail, error) {
	if err := s.validatePerson(ctx, fromPersonID); err != nil {
		return nil, err
	}
	for _, r := range recipients {
		if r.Type != mail.TypeToPerson {
			continue
		}
		if err := s.validatePerson(ctx, r.PersonID); err != nil {
			return nil, err
		}
	}

	m, err := mail.New(fromPersonID, recipients, body, s.now())
	if err != nil {
		return nil, err
	}
	m.Attachment = attachment

	if err := s.mails.Insert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Send transitions a draft to SENT, schedules its randomized arrival,
// ensures the conversation exists, and hands sent notifications to the
// dispatcher. The persisted status guard is the final authority on
// concurrent sends.
func (s *MailService) Send(ctx context.Context, id string) (*mail.Mail, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := m.Send(now, s.scheduler.TransitDays()); err != nil {
		return nil, err
	}

	ok, err := s.mails.MarkSent(ctx, m)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a concurrent send race; the document was not a draft by
		// the time the guard ran.
		return nil, fmt.Errorf("send mail %s: %w", id, mail.ErrInvalidTransition)
	}
	metrics.MailSent.Inc()

	if _, err := s.threads.FindOrCreate(ctx, m); err != nil {
		// The conversation is derived; the next query recreates it.
		// Sending has already succeeded, so log-and-continue territory —
		// but surface it, callers may care.
		return m, fmt.Errorf("ensure conversation for mail %s: %w", id, err)
	}

	s.dispatch(ctx, m, notify.TransitionSent, now)
	return m, nil
}

// DeliverNow forces the mail's scheduled arrival to the present without
// touching its status; the next delivery check or sweep flips it.
func (s *MailService) DeliverNow(ctx context.Context, id string) (*mail.Mail, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	m.DeliverNow(now)
	if err := s.mails.SetScheduledToArrive(ctx, id, now); err != nil {
		return nil, err
	}
	return m, nil
}

// Deliver applies the delivery check to a single mail. A no-op (wrong
// state, not yet arrived, or a concurrent sweep won) returns the mail
// unchanged with transitioned == false.
func (s *MailService) Deliver(ctx context.Context, id string) (*mail.Mail, bool, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	transitioned, err := s.mails.MarkDelivered(ctx, id, now)
	if err != nil {
		return nil, false, err
	}
	if !transitioned {
		return m, false, nil
	}

	m.UpdateDeliveryStatus(now)
	metrics.MailDelivered.WithLabelValues("direct").Inc()

	s.dispatch(ctx, m, notify.TransitionDelivered, now)
	return m, true, nil
}

// MarkRead records the person's read receipt on their own correspondent
// entry. The aggregate status stays DELIVERED.
func (s *MailService) MarkRead(ctx context.Context, id, personID string) (*mail.Mail, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := m.ReadBy(personID, s.now()); err != nil {
		return nil, err
	}
	if err := s.mails.UpdateCorrespondents(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Get retrieves a mail document, mapping absence to ErrNotFound.
func (s *MailService) Get(ctx context.Context, id string) (*mail.Mail, error) {
	m, err := s.mails.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get mail %s: %w", id, err)
	}
	if m == nil {
		return nil, fmt.Errorf("mail %s: %w", id, mail.ErrNotFound)
	}
	return m, nil
}

// dispatch hands a transition to the dispatcher and persists any
// attempted-notify markers. Best-effort throughout.
func (s *MailService) dispatch(ctx context.Context, m *mail.Mail, t notify.Transition, now time.Time) {
	if s.dispatcher == nil {
		return
	}
	if s.dispatcher.Dispatch(ctx, m, t, now) {
		if err := s.mails.UpdateCorrespondents(ctx, m); err != nil {
			// Markers are advisory; the dedup filter still protects
			// against double-dispatch.
			slog.Error("persisting notify markers failed", "mail_id", m.ID, "error", err)
		}
	}
}

func (s *MailService) validatePerson(ctx context.Context, id string) error {
	ok, err := s.directory.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve person %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("person %s: %w", id, mail.ErrNotFound)
	}
	return nil
}
