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
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bcem/postal/internal/mail"
)

// Store is the persistence the service needs for conversations.
// Implemented by store.ConversationStore.
type Store interface {
	// GetByHash returns the conversation with the given hex hash, or nil.
	GetByHash(ctx context.Context, hexHash string) (*Conversation, error)
	// InsertIfAbsent inserts unless the hex hash is already taken and
	// reports whether a row was written. A lost race is not an error.
	InsertIfAbsent(ctx context.Context, c *Conversation) (bool, error)
	// ListByPerson returns every conversation the person participates in.
	ListByPerson(ctx context.Context, personID string) ([]*Conversation, error)
}

// MailLister fetches a conversation's mail using the exact
// participant-set filter. Implemented by store.MailStore.
type MailLister interface {
	ListForConversation(ctx context.Context, c *Conversation) ([]*mail.Mail, error)
}

// Service resolves conversations lazily and answers per-viewer queries.
type Service struct {
	conversations Store
	mails         MailLister
	now           func() time.Time
}

// NewService wires the conversation engine to its stores.
func NewService(conversations Store, mails MailLister) *Service {
	return &Service{
		conversations: conversations,
		mails:         mails,
		now:           time.Now,
	}
}

// FindOrCreate resolves the conversation for a mail's participant set,
// creating it on first use. Two concurrent creators race on the unique
// hex_hash index; the loser re-fetches and both end up with the same row.
func (s *Service) FindOrCreate(ctx context.Context, m *mail.Mail) (*Conversation, error) {
	hexHash := Key(m)

	existing, err := s.conversations.GetByHash(ctx, hexHash)
	if err != nil {
		return nil, fmt.Errorf("lookup conversation %s: %w", hexHash, err)
	}
	if existing != nil {
		return existing, nil
	}

	candidate := FromMail(m, s.now())
	inserted, err := s.conversations.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("create conversation %s: %w", hexHash, err)
	}
	if inserted {
		return candidate, nil
	}

	// Lost the creation race — the conversation exists now.
	existing, err = s.conversations.GetByHash(ctx, hexHash)
	if err != nil {
		return nil, fmt.Errorf("refetch conversation %s: %w", hexHash, err)
	}
	if existing == nil {
		return nil, fmt.Errorf("conversation %s vanished after conflict: %w", hexHash, mail.ErrNotFound)
	}
	return existing, nil
}

// MailFor returns all mail in the conversation, unfiltered.
func (s *Service) MailFor(ctx context.Context, c *Conversation) ([]*mail.Mail, error) {
	mails, err := s.mails.ListForConversation(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("list mail for conversation %s: %w", c.HexHash, err)
	}
	return mails, nil
}

// VisibleMailFor returns the conversation's mail as the person sees it.
func (s *Service) VisibleMailFor(ctx context.Context, c *Conversation, personID string) ([]*mail.Mail, error) {
	mails, err := s.MailFor(ctx, c)
	if err != nil {
		return nil, err
	}
	return VisibleTo(mails, personID), nil
}

// MetadataFor computes the person's summary of the conversation.
// Returns ErrNoVisibleMail when the person sees nothing in it.
func (s *Service) MetadataFor(ctx context.Context, c *Conversation, personID string) (*Metadata, error) {
	mails, err := s.MailFor(ctx, c)
	if err != nil {
		return nil, err
	}
	return MetadataFor(c, mails, personID)
}

// Summary pairs a conversation with the viewer's metadata.
type Summary struct {
	Conversation *Conversation
	Metadata     *Metadata
}

// ListFor returns the person's conversations, newest activity first.
// Conversations where the person has no visible mail yet are skipped.
func (s *Service) ListFor(ctx context.Context, personID string) ([]Summary, error) {
	convs, err := s.conversations.ListByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("list conversations for person %s: %w", personID, err)
	}

	var summaries []Summary
	for _, c := range convs {
		md, err := s.MetadataFor(ctx, c, personID)
		if err != nil {
			if errors.Is(err, ErrNoVisibleMail) {
				continue
			}
			return nil, err
		}
		summaries = append(summaries, Summary{Conversation: c, Metadata: md})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Metadata.UpdatedAt.After(summaries[j].Metadata.UpdatedAt)
	})
	return summaries, nil
}
