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

package mail

import "time"

// CorrespondentType discriminates the correspondent variants.
type CorrespondentType string

const (
	TypeFromPerson CorrespondentType = "from_person"
	TypeToPerson   CorrespondentType = "to_person"
	TypeToEmail    CorrespondentType = "to_email"
)

// ReadState is the per-recipient read marker on a ToPerson correspondent.
// Empty means unread.
type ReadState string

const ReadStateRead ReadState = "read"

// Correspondent is a participant entry embedded in a mail document,
// tagged by Type. Exactly one field set is meaningful per variant:
// from_person and to_person carry PersonID, to_email carries Email.
// Each recipient mutates only its own entry.
type Correspondent struct {
	Type CorrespondentType `json:"type"`

	PersonID string `json:"person_id,omitempty"`
	Email    string `json:"email,omitempty"`

	// AttemptedToNotify records that a push notification was handed to
	// the dispatcher for this recipient (to_person only).
	AttemptedToNotify bool `json:"attempted_to_notify,omitempty"`

	// AttemptedToSend records that an outbound email was handed to the
	// dispatcher for this recipient (to_email only).
	AttemptedToSend bool `json:"attempted_to_send,omitempty"`

	Status   ReadState  `json:"status,omitempty"`
	DateRead *time.Time `json:"date_read,omitempty"`
}

// FromPerson builds the sender entry.
func FromPerson(personID string) Correspondent {
	return Correspondent{Type: TypeFromPerson, PersonID: personID}
}

// ToPerson builds a registered-recipient entry.
func ToPerson(personID string) Correspondent {
	return Correspondent{Type: TypeToPerson, PersonID: personID}
}

// ToEmail builds an external-email recipient entry.
func ToEmail(email string) Correspondent {
	return Correspondent{Type: TypeToEmail, Email: email}
}

// Read marks this correspondent as having read the mail. Independent of
// sibling correspondents; calling it again keeps the original DateRead.
func (c *Correspondent) Read(now time.Time) {
	if c.Status == ReadStateRead {
		return
	}
	c.Status = ReadStateRead
	c.DateRead = &now
}

// Unread reports whether a ToPerson correspondent has yet to read the mail.
func (c *Correspondent) Unread() bool {
	return c.Type == TypeToPerson && c.Status != ReadStateRead
}
