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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// PushClient posts person-directed events to the external push gateway,
// authenticated with OAuth2 client credentials.
type PushClient struct {
	client  *http.Client
	baseURL string
}

// PushConfig holds the gateway endpoint and credentials.
type PushConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewPushClient builds a gateway client. The underlying http.Client
// refreshes its token transparently.
func NewPushClient(ctx context.Context, cfg PushConfig) *PushClient {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	client := creds.Client(ctx)
	client.Timeout = 10 * time.Second

	return &PushClient{client: client, baseURL: cfg.BaseURL}
}

// Push sends one event to the gateway.
func (p *PushClient) Push(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal push event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/notifications", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// NopPusher drops person notifications. Used when no gateway is
// configured.
type NopPusher struct{}

// Push discards the event.
func (NopPusher) Push(ctx context.Context, e Event) error { return nil }
