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
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlternationRegex(t *testing.T) {
	assert.Equal(t, "^(GET)$", alternationRegex([]string{"GET"}))
	assert.Equal(t, "^(GET|POST|DELETE)$", alternationRegex([]string{"GET", "POST", "DELETE"}))

	re, err := regexp.Compile(alternationRegex([]string{"GET", "POST"}))
	require.NoError(t, err)
	assert.True(t, re.MatchString("GET"))
	assert.True(t, re.MatchString("POST"))
	assert.False(t, re.MatchString("GETX"))
	assert.False(t, re.MatchString("XGET"))
	assert.False(t, re.MatchString("get"))

	// Values match literally: regex metacharacters are quoted.
	re, err = regexp.Compile(alternationRegex([]string{"/api/v1.0"}))
	require.NoError(t, err)
	assert.True(t, re.MatchString("/api/v1.0"))
	assert.False(t, re.MatchString("/api/v1x0"))
}

func TestSafeRegexMatch(t *testing.T) {
	m := SafeRegexMatch("^/api/.*")
	assert.Equal(t, "^/api/.*", m.Regex)
}
