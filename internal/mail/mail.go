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

// Package mail defines the mail document and its delivery state machine.
//
// A piece of mail moves DRAFT → SENT → DELIVERED. Delivery is deliberately
// delayed by a randomized transit window (3–5 days) to simulate physical
// post. Read state is tracked per recipient on the embedded correspondent
// entries; the mail-level status never advances past DELIVERED on any
// current write path (StatusRead exists so historical documents remain
// valid).
package mail

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the aggregate delivery state of a mail document.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"

	// StatusRead is a legacy aggregate value from the single-recipient
	// model. It is accepted on load but never written; read state lives
	// on each ToPerson correspondent.
	StatusRead Status = "read"
)

var (
	// ErrInvalidTransition is returned when a state-machine guard rejects
	// an operation (e.g. sending mail that is not a draft).
	ErrInvalidTransition = errors.New("invalid mail transition")

	// ErrNotFound is returned when a mail, person, or correspondent
	// cannot be resolved.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique-index insert collides
	// (duplicate conversation hash, duplicate person email).
	ErrConflict = errors.New("already exists")
)

// Mail is a single piece of post. Correspondents are embedded and owned
// by the mail; their order is fixed at creation and is significant.
type Mail struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Status Status `json:"status"`

	// Attachment is an opaque reference into the external file store.
	Attachment *Attachment `json:"attachment,omitempty"`

	DateSent          *time.Time `json:"date_sent,omitempty"`
	ScheduledToArrive *time.Time `json:"scheduled_to_arrive,omitempty"`
	DateDelivered     *time.Time `json:"date_delivered,omitempty"`

	Correspondents []Correspondent `json:"correspondents"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a draft from the given sender and recipients. A mail must
// have exactly one sender and at least one recipient; the recipient
// order is preserved as given.
func New(fromPersonID string, recipients []Correspondent, body string, now time.Time) (*Mail, error) {
	if fromPersonID == "" {
		return nil, fmt.Errorf("mail needs a sender: %w", ErrInvalidTransition)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("mail needs at least one recipient: %w", ErrInvalidTransition)
	}

	correspondents := make([]Correspondent, 0, len(recipients)+1)
	correspondents = append(correspondents, FromPerson(fromPersonID))
	for _, r := range recipients {
		switch r.Type {
		case TypeToPerson, TypeToEmail:
		default:
			return nil, fmt.Errorf("recipient %q: %w", r.Type, ErrInvalidTransition)
		}
		correspondents = append(correspondents, r)
	}

	return &Mail{
		ID:             uuid.New().String(),
		Body:           body,
		Status:         StatusDraft,
		Correspondents: correspondents,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Send transitions a draft to SENT and schedules its arrival. transitDays
// is the transit window in whole days, drawn by the caller (see
// Scheduler). Sending anything but a draft is rejected; the guard, not
// retry logic, is what makes double-send safe.
func (m *Mail) Send(now time.Time, transitDays int) error {
	if m.Status != StatusDraft {
		return fmt.Errorf("send %s mail: %w", m.Status, ErrInvalidTransition)
	}

	sent := now
	arrive := sent.AddDate(0, 0, transitDays)

	m.Status = StatusSent
	m.DateSent = &sent
	m.ScheduledToArrive = &arrive
	m.UpdatedAt = now
	return nil
}

// DeliverNow forces the scheduled arrival to the current time. The status
// is not touched; the actual flip happens through UpdateDeliveryStatus
// (or the sweep). Used administratively and in tests.
func (m *Mail) DeliverNow(now time.Time) {
	m.ScheduledToArrive = &now
	m.UpdatedAt = now
}

// UpdateDeliveryStatus applies the delivery check: SENT mail whose
// scheduled arrival has passed becomes DELIVERED. Anything else is a
// no-op — already-delivered mail keeps its original DateDelivered.
// Reports whether the mail transitioned on this call.
func (m *Mail) UpdateDeliveryStatus(now time.Time) bool {
	if m.Status != StatusSent {
		return false
	}
	if m.ScheduledToArrive == nil || m.ScheduledToArrive.After(now) {
		return false
	}

	delivered := now
	m.Status = StatusDelivered
	m.DateDelivered = &delivered
	m.UpdatedAt = now
	return true
}

// Delivered reports whether the mail has reached its recipients.
// StatusRead counts: legacy documents past DELIVERED are still delivered.
func (m *Mail) Delivered() bool {
	return m.Status == StatusDelivered || m.Status == StatusRead
}

// ReadBy marks the recipient's own correspondent entry as read. Only
// delivered mail can be read, and only by a ToPerson correspondent; the
// aggregate status is left alone.
func (m *Mail) ReadBy(personID string, now time.Time) error {
	if !m.Delivered() {
		return fmt.Errorf("read %s mail: %w", m.Status, ErrInvalidTransition)
	}

	c := m.ToPerson(personID)
	if c == nil {
		return fmt.Errorf("person %s is not a recipient: %w", personID, ErrNotFound)
	}

	c.Read(now)
	m.UpdatedAt = now
	return nil
}

// From returns the sender correspondent, or nil for a malformed document.
func (m *Mail) From() *Correspondent {
	for i := range m.Correspondents {
		if m.Correspondents[i].Type == TypeFromPerson {
			return &m.Correspondents[i]
		}
	}
	return nil
}

// ToPerson returns the ToPerson correspondent for the given person, or nil.
func (m *Mail) ToPerson(personID string) *Correspondent {
	for i := range m.Correspondents {
		c := &m.Correspondents[i]
		if c.Type == TypeToPerson && c.PersonID == personID {
			return c
		}
	}
	return nil
}

// IsFrom reports whether the given person is the sender.
func (m *Mail) IsFrom(personID string) bool {
	from := m.From()
	return from != nil && from.PersonID == personID
}

// PersonIDs returns every person id appearing across the correspondents,
// sender included, deduplicated in first-appearance order.
func (m *Mail) PersonIDs() []string {
	seen := make(map[string]bool, len(m.Correspondents))
	var ids []string
	for _, c := range m.Correspondents {
		if c.PersonID == "" || seen[c.PersonID] {
			continue
		}
		seen[c.PersonID] = true
		ids = append(ids, c.PersonID)
	}
	return ids
}

// Emails returns every external email address across the correspondents,
// deduplicated in first-appearance order.
func (m *Mail) Emails() []string {
	seen := make(map[string]bool, len(m.Correspondents))
	var emails []string
	for _, c := range m.Correspondents {
		if c.Type != TypeToEmail || seen[c.Email] {
			continue
		}
		seen[c.Email] = true
		emails = append(emails, c.Email)
	}
	return emails
}
