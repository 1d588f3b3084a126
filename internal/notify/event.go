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

// Package notify emits logical mail-transition events to the external
// notification collaborators. Dispatch is best-effort: a failed push or
// queue write is logged and never rolls back the state transition that
// produced it.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/bcem/postal/internal/mail"
)

// Transition names the mail state change an event describes.
type Transition string

const (
	TransitionSent      Transition = "sent"
	TransitionDelivered Transition = "delivered"
)

// Event is the logical notification for one recipient of one transition.
// Exactly one of PersonID / Email is set, mirroring the correspondent
// variant it was fanned out from.
type Event struct {
	ID         string     `json:"id"`
	MailID     string     `json:"mail_id"`
	Transition Transition `json:"transition"`
	PersonID   string     `json:"person_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	Template   string     `json:"template,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewEvent builds an event for a single correspondent.
func NewEvent(m *mail.Mail, t Transition, c mail.Correspondent, now time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		MailID:     m.ID,
		Transition: t,
		PersonID:   c.PersonID,
		Email:      c.Email,
		OccurredAt: now,
	}
}

// DedupKey identifies the (mail, transition, recipient) triple so a
// re-run sweep cannot notify the same recipient twice.
func (e Event) DedupKey() string {
	recipient := e.PersonID
	if recipient == "" {
		recipient = e.Email
	}
	return e.MailID + ":" + string(e.Transition) + ":" + recipient
}
