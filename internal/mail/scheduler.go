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

package mail

import (
	"math/rand/v2"
	"time"
)

const (
	// MinTransitDays and MaxTransitDays bound the simulated postal
	// transit window, inclusive on both ends.
	MinTransitDays = 3
	MaxTransitDays = 5
)

// Scheduler draws transit delays for outgoing mail. It is seedable so
// tests get deterministic windows.
type Scheduler struct {
	rng *rand.Rand
}

// NewScheduler returns a scheduler seeded from the given value. Seed 0
// means seed from the clock; tests pass a fixed non-zero seed.
func NewScheduler(seed uint64) *Scheduler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Scheduler{rng: rand.New(rand.NewPCG(seed, seed))}
}

// TransitDays returns a uniform day count in [MinTransitDays, MaxTransitDays].
func (s *Scheduler) TransitDays() int {
	return MinTransitDays + s.rng.IntN(MaxTransitDays-MinTransitDays+1)
}
