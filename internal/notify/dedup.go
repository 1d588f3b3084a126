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

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a dispatched notification key is remembered.
	// The sweep revisits mail far more often than that, so overlapping
	// runs dedup against it; after delivery the guarded transition keeps
	// mail out of the work list anyway.
	DefaultTTL = 7 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "postal:notified:"
)

// Deduper tracks which (mail, transition, recipient) notifications have
// already been dispatched.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDeduper creates a dedup filter backed by Redis.
func NewDeduper(rdb *redis.Client) *Deduper {
	return &Deduper{rdb: rdb, ttl: DefaultTTL}
}

// IsNew returns true if the dedup key has NOT been seen before. If true,
// the key is marked as seen atomically (SETNX).
func (d *Deduper) IsNew(ctx context.Context, key string) (bool, error) {
	set, err := d.rdb.SetNX(ctx, keyPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}
