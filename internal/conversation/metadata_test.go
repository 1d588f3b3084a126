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
	"testing"
	"time"

	"github.com/bcem/postal/internal/mail"
)

// TestMetadataFor aggregates counts, recency, and participant lists.
func TestMetadataFor(t *testing.T) {
	incoming := deliveredAt(t, "bob", keyNow, keyNow.AddDate(0, 0, 3), mail.ToPerson("alice"), mail.ToEmail("x@test.com"))
	outgoing := sentAt(t, "alice", keyNow.AddDate(0, 0, 4), mail.ToPerson("bob"), mail.ToEmail("x@test.com"))

	c := FromMail(incoming, keyNow)
	mails := []*mail.Mail{incoming, outgoing}

	md, err := MetadataFor(c, mails, "alice")
	if err != nil {
		t.Fatalf("MetadataFor: %v", err)
	}

	if len(md.People) != 2 || len(md.Emails) != 1 {
		t.Errorf("participants = %v %v, want 2 people and 1 email", md.People, md.Emails)
	}
	if md.NumUnread != 1 {
		t.Errorf("num_unread = %d, want 1", md.NumUnread)
	}
	if md.NumUndelivered != 1 {
		t.Errorf("num_undelivered = %d, want 1", md.NumUndelivered)
	}
	if !md.PersonSentMostRecentMail {
		t.Error("person_sent_most_recent_mail = false, want true (send after receive)")
	}
	if want := LastUpdated(VisibleTo(mails, "alice")); !md.UpdatedAt.Equal(want) {
		t.Errorf("updated_at = %v, want %v", md.UpdatedAt, want)
	}
}

// TestMetadataFor_NoVisibleMail fails distinctly for blind viewers.
func TestMetadataFor_NoVisibleMail(t *testing.T) {
	// Bob's only mail is still in transit, so bob can see it but alice's
	// view of a thread she hasn't received from yet is empty... from the
	// other side: alice sent nothing and received nothing delivered.
	inTransit := sentAt(t, "bob", keyNow, mail.ToPerson("alice"))
	c := FromMail(inTransit, keyNow)

	_, err := MetadataFor(c, []*mail.Mail{inTransit}, "alice")
	if !errors.Is(err, ErrNoVisibleMail) {
		t.Errorf("err = %v, want ErrNoVisibleMail", err)
	}

	// The sender still gets metadata for the same thread.
	md, err := MetadataFor(c, []*mail.Mail{inTransit}, "bob")
	if err != nil {
		t.Fatalf("MetadataFor(bob): %v", err)
	}
	if md.NumUndelivered != 1 {
		t.Errorf("bob num_undelivered = %d, want 1", md.NumUndelivered)
	}
}

// TestMetadataFor_ReadReceiptMovesUpdatedAt verifies that per-recipient
// reads bump the thread's activity ordering.
func TestMetadataFor_ReadReceiptMovesUpdatedAt(t *testing.T) {
	m := deliveredAt(t, "bob", keyNow, keyNow.AddDate(0, 0, 3), mail.ToPerson("alice"))
	c := FromMail(m, keyNow)

	readAt := keyNow.AddDate(0, 0, 6).Add(time.Hour)
	if err := m.ReadBy("alice", readAt); err != nil {
		t.Fatalf("ReadBy: %v", err)
	}

	md, err := MetadataFor(c, []*mail.Mail{m}, "alice")
	if err != nil {
		t.Fatalf("MetadataFor: %v", err)
	}
	if !md.UpdatedAt.Equal(readAt) {
		t.Errorf("updated_at = %v, want read time %v", md.UpdatedAt, readAt)
	}
	if md.NumUnread != 0 {
		t.Errorf("num_unread = %d, want 0", md.NumUnread)
	}
}
