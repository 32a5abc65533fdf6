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

package xds

import "sync"

// Broadcaster fans configuration-change signals out to active streams.
// Each subscriber gets a buffered channel of capacity one, so repeated
// publishes coalesce into a single pending signal and Publish never
// blocks on a slow stream.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan struct{}
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[int]chan struct{}{}}
}

// Subscribe registers a new subscriber and returns its handle and signal
// channel. The caller must Unsubscribe with the handle when done.
func (b *Broadcaster) Subscribe() (int, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	ch := make(chan struct{}, 1)
	b.subs[b.next] = ch
	return b.next, ch
}

// Unsubscribe removes a subscriber. Unknown handles are ignored.
func (b *Broadcaster) Unsubscribe(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, handle)
}

// Publish signals every subscriber that new configuration is available.
func (b *Broadcaster) Publish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending; it covers this publish too.
		}
	}
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
