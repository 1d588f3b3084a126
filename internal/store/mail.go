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

// Package store provides Postgres-backed persistence for mail and
// conversation documents.
//
// The layer behaves like a document store: each mail row carries its
// ordered correspondent list as a JSONB document, with the participant
// sets denormalised into TEXT[] columns so conversation membership is an
// array-containment predicate. Writes are last-write-wins at the
// document level; state transitions go through guarded UPDATEs so a
// lost race degrades to a no-op instead of an illegal double-transition.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/postal/internal/conversation"
	"github.com/bcem/postal/internal/mail"
)

// MailStore provides CRUD and transition operations for mail documents.
type MailStore struct {
	pool *pgxpool.Pool
}

// NewMailStore creates a mail store backed by the given Postgres pool.
// It ensures the mails table exists on creation.
func NewMailStore(ctx context.Context, pool *pgxpool.Pool) (*MailStore, error) {
	s := &MailStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure mail schema: %w", err)
	}
	slog.Info("mail store initialised")
	return s, nil
}

func (s *MailStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mails (
			id                  TEXT PRIMARY KEY,
			body                TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL DEFAULT 'draft',
			attachment          JSONB,
			correspondents      JSONB NOT NULL,
			person_ids          TEXT[] NOT NULL DEFAULT '{}',
			emails              TEXT[] NOT NULL DEFAULT '{}',
			correspondent_count INT NOT NULL,
			date_sent           TIMESTAMPTZ,
			scheduled_to_arrive TIMESTAMPTZ,
			date_delivered      TIMESTAMPTZ,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_mails_people ON mails USING GIN (person_ids);
		CREATE INDEX IF NOT EXISTS idx_mails_emails ON mails USING GIN (emails);
		CREATE INDEX IF NOT EXISTS idx_mails_sweep ON mails(status, scheduled_to_arrive);
	`)
	return err
}

// Insert writes a new mail document.
func (s *MailStore) Insert(ctx context.Context, m *mail.Mail) error {
	correspondents, attachment, err := encodeDocument(m)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO mails
			(id, body, status, attachment, correspondents,
			 person_ids, emails, correspondent_count,
			 date_sent, scheduled_to_arrive, date_delivered,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, m.ID, m.Body, m.Status, attachment, correspondents,
		m.PersonIDs(), m.Emails(), len(m.Correspondents),
		m.DateSent, m.ScheduledToArrive, m.DateDelivered,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert mail %s: %w", m.ID, err)
	}
	return nil
}

// Get retrieves a mail document by id, or nil when absent.
func (s *MailStore) Get(ctx context.Context, id string) (*mail.Mail, error) {
	row := s.pool.QueryRow(ctx, selectMail+` WHERE id = $1`, id)
	return scanMail(row)
}

// Update rewrites the mutable document fields (body, attachment,
// correspondents and derived participant columns). Last write wins.
func (s *MailStore) Update(ctx context.Context, m *mail.Mail) error {
	correspondents, attachment, err := encodeDocument(m)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE mails
		SET body = $1, attachment = $2, correspondents = $3,
		    person_ids = $4, emails = $5, correspondent_count = $6,
		    updated_at = $7
		WHERE id = $8
	`, m.Body, attachment, correspondents,
		m.PersonIDs(), m.Emails(), len(m.Correspondents),
		m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("update mail %s: %w", m.ID, err)
	}
	return nil
}

// MarkSent persists a draft→sent transition. The status guard in the
// WHERE clause is the authority: a concurrent send loses here and gets
// false back, mirroring the in-memory guard.
func (s *MailStore) MarkSent(ctx context.Context, m *mail.Mail) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE mails
		SET status = $1, date_sent = $2, scheduled_to_arrive = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`, mail.StatusSent, m.DateSent, m.ScheduledToArrive, m.UpdatedAt, m.ID, mail.StatusDraft)
	if err != nil {
		return false, fmt.Errorf("mark mail %s sent: %w", m.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDelivered applies the delivery check in one guarded statement:
// only SENT mail whose scheduled arrival has passed flips. Safe to call
// repeatedly and concurrently — every call after the first is a no-op.
func (s *MailStore) MarkDelivered(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE mails
		SET status = $1, date_delivered = $2, updated_at = $2
		WHERE id = $3 AND status = $4 AND scheduled_to_arrive <= $2
	`, mail.StatusDelivered, now, id, mail.StatusSent)
	if err != nil {
		return false, fmt.Errorf("mark mail %s delivered: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetScheduledToArrive overwrites the arrival time (the deliver-now
// override). Status is intentionally untouched.
func (s *MailStore) SetScheduledToArrive(ctx context.Context, id string, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE mails
		SET scheduled_to_arrive = $1, updated_at = $1
		WHERE id = $2
	`, t, id)
	if err != nil {
		return fmt.Errorf("set mail %s arrival: %w", id, err)
	}
	return nil
}

// UpdateCorrespondents rewrites the correspondent document after a
// per-recipient mutation (read receipt, notify markers).
func (s *MailStore) UpdateCorrespondents(ctx context.Context, m *mail.Mail) error {
	correspondents, err := json.Marshal(m.Correspondents)
	if err != nil {
		return fmt.Errorf("encode correspondents for mail %s: %w", m.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE mails
		SET correspondents = $1, updated_at = $2
		WHERE id = $3
	`, correspondents, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("update correspondents for mail %s: %w", m.ID, err)
	}
	return nil
}

// ListArrived returns SENT mail whose scheduled arrival has passed —
// the delivery sweep's work list. limit <= 0 means no limit.
func (s *MailStore) ListArrived(ctx context.Context, now time.Time, limit int) ([]*mail.Mail, error) {
	q := selectMail + ` WHERE status = $1 AND scheduled_to_arrive <= $2 ORDER BY scheduled_to_arrive`
	args := []any{mail.StatusSent, now}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list arrived mail: %w", err)
	}
	defer rows.Close()
	return collectMails(rows)
}

// ListForConversation returns the mail whose participant set matches the
// conversation's exactly: containment both ways is enforced by pairing
// array containment with the correspondent count.
func (s *MailStore) ListForConversation(ctx context.Context, c *conversation.Conversation) ([]*mail.Mail, error) {
	rows, err := s.pool.Query(ctx, selectMail+`
		WHERE correspondent_count = $1
		  AND person_ids @> $2
		  AND emails @> $3
		ORDER BY created_at
	`, len(c.People)+len(c.Emails), c.People, c.Emails)
	if err != nil {
		return nil, fmt.Errorf("list mail for conversation %s: %w", c.HexHash, err)
	}
	defer rows.Close()
	return collectMails(rows)
}

// HasMailToEmail reports whether any non-draft mail has ever been
// addressed to the external address.
func (s *MailStore) HasMailToEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM mails
			WHERE emails @> ARRAY[$1] AND status <> $2
		)
	`, email, mail.StatusDraft).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("mail history for %s: %w", email, err)
	}
	return exists, nil
}

const selectMail = `
	SELECT id, body, status, attachment, correspondents,
	       date_sent, scheduled_to_arrive, date_delivered,
	       created_at, updated_at
	FROM mails`

// encodeDocument marshals the JSONB fields of a mail document.
func encodeDocument(m *mail.Mail) (correspondents, attachment []byte, err error) {
	correspondents, err = json.Marshal(m.Correspondents)
	if err != nil {
		return nil, nil, fmt.Errorf("encode correspondents for mail %s: %w", m.ID, err)
	}
	if m.Attachment != nil {
		attachment, err = json.Marshal(m.Attachment)
		if err != nil {
			return nil, nil, fmt.Errorf("encode attachment for mail %s: %w", m.ID, err)
		}
	}
	return correspondents, attachment, nil
}

// scanMail scans a single row into a mail document.
func scanMail(row pgx.Row) (*mail.Mail, error) {
	var (
		m              mail.Mail
		attachment     []byte
		correspondents []byte
	)
	err := row.Scan(
		&m.ID, &m.Body, &m.Status, &attachment, &correspondents,
		&m.DateSent, &m.ScheduledToArrive, &m.DateDelivered,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(correspondents, &m.Correspondents); err != nil {
		return nil, fmt.Errorf("decode correspondents for mail %s: %w", m.ID, err)
	}
	if len(attachment) > 0 {
		m.Attachment = &mail.Attachment{}
		if err := json.Unmarshal(attachment, m.Attachment); err != nil {
			return nil, fmt.Errorf("decode attachment for mail %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

// collectMails scans multiple rows into mail documents.
func collectMails(rows pgx.Rows) ([]*mail.Mail, error) {
	var mails []*mail.Mail
	for rows.Next() {
		m, err := scanMail(rows)
		if err != nil {
			return nil, err
		}
		mails = append(mails, m)
	}
	return mails, rows.Err()
}
