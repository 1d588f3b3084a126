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
	"errors"
	"fmt"
	"time"

	"github.com/bcem/postal/internal/mail"
)

// ErrNoVisibleMail is returned when a metadata request is made for a
// person who cannot see any mail in the conversation. Callers list only
// conversations with at least one visible mail.
var ErrNoVisibleMail = errors.New("no visible mail in conversation")

// Metadata is the per-person summary of a conversation.
type Metadata struct {
	People []string `json:"people"`
	Emails []string `json:"emails"`

	// UpdatedAt is the UpdatedAt of the most recently updated mail the
	// person can see; conversation lists sort descending on it.
	UpdatedAt time.Time `json:"updated_at"`

	NumUnread      int `json:"num_unread"`
	NumUndelivered int `json:"num_undelivered"`

	PersonSentMostRecentMail bool `json:"person_sent_most_recent_mail"`
}

// MetadataFor aggregates a conversation's mail into the person's summary.
// mails is the conversation's full mail set; visibility is applied here.
func MetadataFor(c *Conversation, mails []*mail.Mail, personID string) (*Metadata, error) {
	visible := VisibleTo(mails, personID)
	if len(visible) == 0 {
		return nil, fmt.Errorf("conversation %s for person %s: %w", c.HexHash, personID, ErrNoVisibleMail)
	}

	return &Metadata{
		People:                   c.People,
		Emails:                   c.Emails,
		UpdatedAt:                LastUpdated(visible),
		NumUnread:                len(UnreadFor(mails, personID)),
		NumUndelivered:           len(UndeliveredFrom(mails, personID)),
		PersonSentMostRecentMail: SentMostRecent(mails, personID),
	}, nil
}
