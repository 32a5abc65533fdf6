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

import "sync/atomic"

// Counter issues monotonically increasing identifiers, used to tag
// stream connections in logs.
type Counter uint64

// Next returns the next identifier.
func (c *Counter) Next() uint64 {
	return atomic.AddUint64((*uint64)(c), 1)
}
