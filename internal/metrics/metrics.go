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

// Package metrics exposes Prometheus instrumentation for the postal core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MailSent counts successful draft→sent transitions.
	MailSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postal_mail_sent_total",
		Help: "Total number of mail items sent",
	})

	// MailDelivered counts sent→delivered transitions, by origin.
	MailDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postal_mail_delivered_total",
		Help: "Total number of mail items delivered",
	}, []string{"via"}) // via: sweep, direct

	// SweepDuration observes the wall time of a full delivery sweep pass.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postal_sweep_duration_seconds",
		Help:    "Delivery sweep pass duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})

	// SweepErrors counts per-mail failures inside a sweep pass.
	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postal_sweep_errors_total",
		Help: "Total number of per-mail errors during delivery sweeps",
	})
)

// ObserveSweep records one sweep pass.
func ObserveSweep(start time.Time) {
	SweepDuration.Observe(time.Since(start).Seconds())
}
