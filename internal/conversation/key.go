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

// Package conversation derives stable thread identities from mail
// participant sets and answers per-viewer queries over a thread's mail.
//
// Two mails land in the same conversation iff they share exactly the
// same participant set (people ∪ emails), regardless of who sent and who
// received, and regardless of correspondent order.
package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/bcem/postal/internal/mail"
)

// Key derives the conversation hash for a mail from its correspondents.
func Key(m *mail.Mail) string {
	return KeyFor(m.PersonIDs(), m.Emails())
}

// KeyFor hashes canonical participant sets: person ids sorted ascending,
// then emails sorted ascending. Input order and duplicates do not matter.
func KeyFor(personIDs, emails []string) string {
	people := canonical(personIDs)
	addrs := canonical(emails)

	h := sha256.New()
	h.Write([]byte(strings.Join(people, ",")))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(addrs, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

// canonical returns a sorted, deduplicated copy.
func canonical(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
