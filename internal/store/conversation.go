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

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/postal/internal/conversation"
)

// ConversationStore persists derived conversation rows. The unique index
// on hex_hash is the authority for at-most-one conversation per
// participant set.
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore creates a conversation store backed by the given
// Postgres pool. It ensures the conversations table exists on creation.
func NewConversationStore(ctx context.Context, pool *pgxpool.Pool) (*ConversationStore, error) {
	s := &ConversationStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure conversation schema: %w", err)
	}
	slog.Info("conversation store initialised")
	return s, nil
}

func (s *ConversationStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			hex_hash   TEXT NOT NULL UNIQUE,
			person_ids TEXT[] NOT NULL DEFAULT '{}',
			emails     TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_people ON conversations USING GIN (person_ids);
	`)
	return err
}

// GetByHash retrieves a conversation by its hex hash, or nil when absent.
func (s *ConversationStore) GetByHash(ctx context.Context, hexHash string) (*conversation.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, hex_hash, person_ids, emails, created_at
		FROM conversations
		WHERE hex_hash = $1
	`, hexHash)
	return scanConversation(row)
}

// InsertIfAbsent inserts the conversation unless its hex hash is already
// taken, and reports whether a row was written. Losing the creation race
// is expected; the caller re-fetches.
func (s *ConversationStore) InsertIfAbsent(ctx context.Context, c *conversation.Conversation) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, hex_hash, person_ids, emails, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hex_hash) DO NOTHING
	`, c.ID, c.HexHash, c.People, c.Emails, c.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert conversation %s: %w", c.HexHash, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByPerson returns every conversation the person participates in.
func (s *ConversationStore) ListByPerson(ctx context.Context, personID string) ([]*conversation.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, hex_hash, person_ids, emails, created_at
		FROM conversations
		WHERE person_ids @> ARRAY[$1]
		ORDER BY created_at DESC
	`, personID)
	if err != nil {
		return nil, fmt.Errorf("list conversations for person %s: %w", personID, err)
	}
	defer rows.Close()

	var convs []*conversation.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// scanConversation scans a single row into a Conversation.
func scanConversation(row pgx.Row) (*conversation.Conversation, error) {
	var c conversation.Conversation
	err := row.Scan(&c.ID, &c.HexHash, &c.People, &c.Emails, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
