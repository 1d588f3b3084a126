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

	"github.com/bcem/postal/internal/mail"
)

// VisibleTo filters a conversation's mail down to what a person may see:
// delivered mail, plus the person's own mail in any state. Drafts and
// in-transit mail stay invisible to everyone but their sender.
func VisibleTo(mails []*mail.Mail, personID string) []*mail.Mail {
	var out []*mail.Mail
	for _, m := range mails {
		if m.Delivered() || m.IsFrom(personID) {
			out = append(out, m)
		}
	}
	return out
}

// UnreadFor returns delivered mail the person received but has not read.
// Mail the person sent is never unread for them.
func UnreadFor(mails []*mail.Mail, personID string) []*mail.Mail {
	var out []*mail.Mail
	for _, m := range mails {
		if !m.Delivered() {
			continue
		}
		if c := m.ToPerson(personID); c != nil && c.Unread() {
			out = append(out, m)
		}
	}
	return out
}

// UndeliveredFrom returns the person's sent mail still in transit.
func UndeliveredFrom(mails []*mail.Mail, personID string) []*mail.Mail {
	var out []*mail.Mail
	for _, m := range mails {
		if m.Status == mail.StatusSent && m.IsFrom(personID) {
			out = append(out, m)
		}
	}
	return out
}

// MostRecentReceived returns the person's most recently delivered
// incoming mail, by DateDelivered. Nil when nothing has arrived.
func MostRecentReceived(mails []*mail.Mail, personID string) *mail.Mail {
	var latest *mail.Mail
	for _, m := range mails {
		if !m.Delivered() || m.DateDelivered == nil || m.ToPerson(personID) == nil {
			continue
		}
		if latest == nil || m.DateDelivered.After(*latest.DateDelivered) {
			latest = m
		}
	}
	return latest
}

// MostRecentSent returns the person's most recently sent mail, by
// DateSent. Nil when the person has sent nothing.
func MostRecentSent(mails []*mail.Mail, personID string) *mail.Mail {
	var latest *mail.Mail
	for _, m := range mails {
		if m.DateSent == nil || !m.IsFrom(personID) {
			continue
		}
		if latest == nil || m.DateSent.After(*latest.DateSent) {
			latest = m
		}
	}
	return latest
}

// SentMostRecent reports whether the person's latest activity in the
// conversation was sending rather than receiving. Sent-only → true,
// received-only → false, neither → false; with both, the send timestamp
// must be strictly greater (received wins ties).
func SentMostRecent(mails []*mail.Mail, personID string) bool {
	sent := MostRecentSent(mails, personID)
	received := MostRecentReceived(mails, personID)

	switch {
	case sent == nil:
		return false
	case received == nil:
		return true
	default:
		return sent.DateSent.After(*received.DateDelivered)
	}
}

// LastUpdated returns the UpdatedAt of the most recently updated mail in
// the slice, or the zero time for an empty slice.
func LastUpdated(mails []*mail.Mail) time.Time {
	var latest time.Time
	for _, m := range mails {
		if m.UpdatedAt.After(latest) {
			latest = m.UpdatedAt
		}
	}
	return latest
}
