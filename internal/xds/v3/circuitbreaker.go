// Copyright Project Helmsman Authors
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

package v3

import (
	"sync"
	"time"
)

// Circuit breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryInterval = 30 * time.Second
)

// CircuitBreaker guards resource materialization. Consecutive failures
// at or above the threshold open the breaker; after the recovery
// interval has passed since the last failure the next call is let
// through as a probe, and a success closes the breaker again.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	recovery    time.Duration
	failures    int
	lastFailure time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewCircuitBreaker returns a closed breaker. Non-positive arguments
// select the defaults.
func NewCircuitBreaker(threshold int, recovery time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if recovery <= 0 {
		recovery = DefaultRecoveryInterval
	}
	return &CircuitBreaker{
		threshold: threshold,
		recovery:  recovery,
		now:       time.Now,
	}
}

// IsOpen reports whether calls should be refused right now.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < b.threshold {
		return false
	}
	return b.now().Sub(b.lastFailure) < b.recovery
}

// RecordSuccess closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// RecordFailure counts one failure and restarts the recovery window.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
}

// Failures returns the current consecutive failure count.
func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
