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

// Package xds holds the transport-independent pieces of the control
// plane's xDS machinery: the configuration version and nonce tracker, the
// push broadcaster, and the gRPC server constructor.
package xds

import (
	"strconv"
	"sync/atomic"
)

// Tracker issues configuration versions and response nonces. Versions
// start at zero and increase by one for every accepted mutation; nonces
// are unique per server instance across all streams.
type Tracker struct {
	version atomic.Int64
	nonce   atomic.Int64
}

// NewTracker returns a tracker at version zero.
func NewTracker() *Tracker {
	return &Tracker{}
}

// BumpVersion advances the configuration version and returns it.
func (t *Tracker) BumpVersion() int64 {
	return t.version.Add(1)
}

// Version returns the current configuration version.
func (t *Tracker) Version() int64 {
	return t.version.Load()
}

// VersionInfo returns the current version in DiscoveryResponse form.
func (t *Tracker) VersionInfo() string {
	return strconv.FormatInt(t.version.Load(), 10)
}

// NextNonce returns a fresh nonce. Never reused, never empty.
func (t *Tracker) NextNonce() string {
	return strconv.FormatInt(t.nonce.Add(1), 10)
}
