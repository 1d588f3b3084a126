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

package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/bcem/postal/internal/mail"
)

// Conversation is a derived thread: the set of all mail sharing one
// participant set. It is created lazily the first time a query needs it
// and identified by HexHash, which is unique-indexed in the store.
type Conversation struct {
	ID      string
	HexHash string

	// People and Emails are the canonical (sorted) participant sets the
	// hash was computed from.
	People []string
	Emails []string

	CreatedAt time.Time
}

// FromMail builds the conversation a mail belongs to.
func FromMail(m *mail.Mail, now time.Time) *Conversation {
	people := canonical(m.PersonIDs())
	emails := canonical(m.Emails())
	return &Conversation{
		ID:        uuid.New().String(),
		HexHash:   KeyFor(people, emails),
		People:    people,
		Emails:    emails,
		CreatedAt: now,
	}
}

// Contains reports whether a mail belongs to this conversation: its
// correspondent participant set must match the conversation's exactly,
// not as a subset or superset.
func (c *Conversation) Contains(m *mail.Mail) bool {
	people := canonical(m.PersonIDs())
	emails := canonical(m.Emails())
	if len(people) != len(c.People) || len(emails) != len(c.Emails) {
		return false
	}
	for i, p := range c.People {
		if people[i] != p {
			return false
		}
	}
	for i, e := range c.Emails {
		if emails[i] != e {
			return false
		}
	}
	return true
}

// Includes reports whether the person participates in this conversation.
func (c *Conversation) Includes(personID string) bool {
	for _, p := range c.People {
		if p == personID {
			return true
		}
	}
	return false
}
