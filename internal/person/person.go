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

// Package person is the registered-user directory. The core consults it
// to validate correspondent references and to classify external email
// addresses; profile lifecycle beyond registration lives elsewhere.
package person

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Person is a registered user, referenced from mail by id.
type Person struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New builds a person with a fresh id and a normalised email.
func New(email, name string, now time.Time) *Person {
	return &Person{
		ID:        uuid.New().String(),
		Email:     NormalizeEmail(email),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeEmail canonicalises an address for identity comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
