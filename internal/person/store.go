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

package person

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/postal/internal/mail"
)

// uniqueViolation is the SQLSTATE for a unique-index conflict.
const uniqueViolation = "23505"

// Store provides the person directory over Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a person store backed by the given Postgres pool.
// It ensures the people table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure person schema: %w", err)
	}
	slog.Info("person store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS people (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// Create registers a person. A duplicate email is a caller-visible
// conflict, unlike the conversation path where conflicts are recoverable.
func (s *Store) Create(ctx context.Context, p *Person) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO people (id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Email, p.Name, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("person with email %s: %w", p.Email, mail.ErrConflict)
		}
		return fmt.Errorf("create person %s: %w", p.ID, err)
	}
	return nil
}

// Get retrieves a person by id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Person, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, created_at, updated_at
		FROM people
		WHERE id = $1
	`, id)
	return scanPerson(row)
}

// GetByEmail retrieves a person by normalised email, or nil when absent.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Person, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, created_at, updated_at
		FROM people
		WHERE email = $1
	`, NormalizeEmail(email))
	return scanPerson(row)
}

// EmailRegistered reports whether the address belongs to a registered
// person. Satisfies mail.Directory.
func (s *Store) EmailRegistered(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM people WHERE email = $1)
	`, NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("directory lookup for %s: %w", email, err)
	}
	return exists, nil
}

// Exists reports whether the person id resolves.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM people WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("person lookup for %s: %w", id, err)
	}
	return exists, nil
}

func scanPerson(row pgx.Row) (*Person, error) {
	var p Person
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
