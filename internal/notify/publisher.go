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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueuePublisher hands events to the email/push worker fleet via a Redis
// list. The worker owns rendering, retries, and backoff.
type QueuePublisher struct {
	rdb       *redis.Client
	queueName string
}

// NewQueuePublisher creates a publisher targeting the named queue.
func NewQueuePublisher(rdb *redis.Client, queueName string) *QueuePublisher {
	return &QueuePublisher{rdb: rdb, queueName: queueName}
}

// envelope wraps an event for queue transport.
type envelope struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Body       Event  `json:"body"`
	EnqueuedAt string `json:"enqueued_at"`
}

// Publish pushes one event onto the queue.
func (p *QueuePublisher) Publish(ctx context.Context, e Event) error {
	msg := envelope{
		ID:         e.ID,
		Kind:       "mail." + string(e.Transition),
		Body:       e,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification event: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, payload).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published notification event",
		"event_id", e.ID,
		"mail_id", e.MailID,
		"transition", e.Transition,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *QueuePublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
