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

// Package fixture holds test helpers shared across packages.
package fixture

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

type testWriter struct {
	*testing.T
}

func (t *testWriter) Write(buf []byte) (int, error) {
	t.Logf("%s", buf)
	return len(buf), nil
}

// NewTestLogger returns a debug-level logger that writes through
// (*testing.T).Logf so output is attached to the test that produced it.
func NewTestLogger(t *testing.T) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(&testWriter{t})
	log.SetLevel(logrus.DebugLevel)
	return log
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
