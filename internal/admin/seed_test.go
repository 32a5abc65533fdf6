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

package admin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthelmsman/helmsman/internal/store"
)

func TestApplySeedsResourcesInDependencyOrder(t *testing.T) {
	h := newHarness(t)

	// Routes appear before the cluster and filter they reference.
	err := h.manager.Apply(strings.NewReader(`
routes:
  - name: api
    path: /api
    cluster: backend
    methods: [get, post]
    prefix-rewrite: /v1
    filters: [cors]
clusters:
  - name: backend
    endpoints:
      - host: backend.local
        port: 8080
http-filters:
  - name: cors
    type: cors
`))
	require.NoError(t, err)

	route, err := h.manager.Store().GetRoute("api")
	require.NoError(t, err)
	assert.Equal(t, "backend", route.ClusterTarget)
	assert.Equal(t, []string{"GET", "POST"}, route.HTTPMethods)

	cluster, err := h.manager.Store().GetCluster("backend")
	require.NoError(t, err)
	assert.Equal(t, store.LBRoundRobin, cluster.LBPolicy, "lb policy defaults to round robin")

	assert.Equal(t, []string{"cors"}, h.manager.Store().RouteFilterNames("api"))

	// cluster, filter, route, association.
	assert.Equal(t, int64(4), h.tracker.Version())
}

func TestApplyDisabledFilter(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.Apply(strings.NewReader(`
http-filters:
  - name: limiter
    type: rate_limit
    enabled: false
    config:
      requests_per_unit: 10
      time_unit: second
`)))

	f, err := h.manager.Store().GetHTTPFilter("limiter")
	require.NoError(t, err)
	assert.False(t, f.Enabled)
}

func TestApplyEmptyInput(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.manager.Apply(strings.NewReader("")))
	assert.Equal(t, int64(0), h.tracker.Version())
}

func TestApplyRejectsInvalidResource(t *testing.T) {
	h := newHarness(t)

	err := h.manager.Apply(strings.NewReader(`
routes:
  - name: bad
    path: no-slash
    cluster: backend
clusters:
  - name: backend
    endpoints:
      - host: backend.local
        port: 8080
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `route "bad"`)
}

func TestApplyRejectsUnknownFields(t *testing.T) {
	h := newHarness(t)
	require.Error(t, h.manager.Apply(strings.NewReader("virtual-services: []\n")))
}
