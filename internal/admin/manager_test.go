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
	"testing"

	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	envoy_config_listener_v3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	envoy_config_route_v3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	resource "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	envoy_v3 "github.com/projecthelmsman/helmsman/internal/envoy/v3"
	"github.com/projecthelmsman/helmsman/internal/fixture"
	"github.com/projecthelmsman/helmsman/internal/metrics"
	"github.com/projecthelmsman/helmsman/internal/store"
	"github.com/projecthelmsman/helmsman/internal/xds"
)

type harness struct {
	manager      *Manager
	tracker      *xds.Tracker
	broadcaster  *xds.Broadcaster
	materializer *envoy_v3.Materializer
	changes      <-chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := fixture.NewTestLogger(t)
	registry := envoy_v3.NewRegistry(nil)
	s := store.New(log, store.Config{
		Limits: store.Limits{
			MaxRoutes:              1000,
			MaxClusters:            500,
			MaxEndpointsPerCluster: 50,
			MaxHTTPFilters:         50,
		},
		RejectOnCapacity: true,
		HTTPMethods:      []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
		FilterTypes: []string{
			envoy_v3.FilterTypeRateLimit, envoy_v3.FilterTypeCORS, envoy_v3.FilterTypeAuthentication,
			envoy_v3.FilterTypeHeaderManipulation, envoy_v3.FilterTypeRequestValidation,
		},
		FilterValidator: registry.Validate,
	})

	tracker := xds.NewTracker()
	broadcaster := xds.NewBroadcaster()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	_, changes := broadcaster.Subscribe()

	return &harness{
		manager:      NewManager(log, s, tracker, broadcaster, m),
		tracker:      tracker,
		broadcaster:  broadcaster,
		materializer: envoy_v3.NewMaterializer(log, s, registry, envoy_v3.DefaultSettings()),
		changes:      changes,
	}
}

func (h *harness) signaled() bool {
	select {
	case <-h.changes:
		return true
	default:
		return false
	}
}

func backendCluster() *store.Cluster {
	return &store.Cluster{
		Name:      "backend",
		Endpoints: []store.Endpoint{{Host: "backend.local", Port: 8080}},
		LBPolicy:  store.LBRoundRobin,
	}
}

func TestManagerSuccessfulMutationBumpsAndPublishes(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.AddCluster(backendCluster()))
	assert.Equal(t, int64(1), h.tracker.Version())
	assert.True(t, h.signaled())

	resources, err := h.materializer.Resources(resource.ClusterType)
	require.NoError(t, err)
	require.Len(t, resources, 1)

	var c envoy_config_cluster_v3.Cluster
	require.NoError(t, resources[0].UnmarshalTo(&c))
	assert.Equal(t, "backend", c.Name)
	assert.Equal(t, envoy_config_cluster_v3.Cluster_STRICT_DNS, c.GetType())
}

func TestManagerRejectedMutationLeavesVersionUntouched(t *testing.T) {
	h := newHarness(t)

	// Validation failure.
	err := h.manager.AddRoute(&store.Route{Name: "bad", Path: "no-slash", ClusterTarget: "backend"})
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int64(0), h.tracker.Version())
	assert.False(t, h.signaled())

	// Dependency failure.
	err = h.manager.AddRoute(&store.Route{Name: "orphan", Path: "/x", ClusterTarget: "nowhere"})
	var dep *store.DependencyError
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, int64(0), h.tracker.Version())
	assert.False(t, h.signaled())
}

func TestManagerCapacityRejectionLeavesVersionUntouched(t *testing.T) {
	log := fixture.NewTestLogger(t)
	s := store.New(log, store.Config{
		Limits:           store.Limits{MaxClusters: 1, MaxEndpointsPerCluster: 10},
		RejectOnCapacity: true,
	})
	tracker := xds.NewTracker()
	broadcaster := xds.NewBroadcaster()
	m := NewManager(log, s, tracker, broadcaster, nil)

	require.NoError(t, m.AddCluster(backendCluster()))
	require.Equal(t, int64(1), tracker.Version())

	other := backendCluster()
	other.Name = "other"
	err := m.AddCluster(other)
	var capErr *store.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, int64(1), tracker.Version(), "rejected mutations must not advance the version")
}

func TestManagerRouteFlow(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.AddCluster(backendCluster()))
	require.NoError(t, h.manager.AddRoute(&store.Route{
		Name:          "api",
		Path:          "/api",
		ClusterTarget: "backend",
		HTTPMethods:   []string{"GET", "POST"},
		PrefixRewrite: "/v1",
	}))
	assert.Equal(t, int64(2), h.tracker.Version())

	resources, err := h.materializer.Resources(resource.RouteType)
	require.NoError(t, err)
	require.Len(t, resources, 1)

	var rc envoy_config_route_v3.RouteConfiguration
	require.NoError(t, resources[0].UnmarshalTo(&rc))
	require.Len(t, rc.VirtualHosts[0].Routes, 1)
	r := rc.VirtualHosts[0].Routes[0]
	assert.Equal(t, "/api", r.Match.GetPrefix())
	assert.Equal(t, "^(GET|POST)$", r.Match.Headers[0].GetStringMatch().GetSafeRegex().Regex)
	assert.Equal(t, "/v1", r.GetRoute().PrefixRewrite)
}

func TestManagerFilterFlow(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.AddHTTPFilter(&store.HTTPFilter{
		Name:    "limit",
		Type:    envoy_v3.FilterTypeRateLimit,
		Enabled: true,
		Config:  map[string]any{"requests_per_unit": 100, "time_unit": "minute"},
	}))

	resources, err := h.materializer.Resources(resource.ListenerType)
	require.NoError(t, err)
	require.Len(t, resources, 1)

	var l envoy_config_listener_v3.Listener
	require.NoError(t, resources[0].UnmarshalTo(&l))
	assert.Equal(t, "ingress_http", l.Name)
}

func TestManagerUnsafeFilterConfigRejectedAtAdmission(t *testing.T) {
	h := newHarness(t)

	// A header value crafted to close the generated Lua string literal
	// must be caught by the strategy validator before admission.
	err := h.manager.AddHTTPFilter(&store.HTTPFilter{
		Name:    "evil",
		Type:    envoy_v3.FilterTypeHeaderManipulation,
		Enabled: true,
		Config: map[string]any{
			"request_headers_to_add": []any{
				map[string]any{"header": map[string]any{"key": "X", "value": "]] .. os.execute('x') .. [["}},
			},
		},
	})
	var verr *store.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, int64(0), h.tracker.Version())
	assert.False(t, h.signaled())
}

func TestManagerDanglingReferenceSurfacesAtMaterialization(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.AddCluster(backendCluster()))
	require.NoError(t, h.manager.AddRoute(&store.Route{Name: "api", Path: "/api", ClusterTarget: "backend"}))

	// The removal itself succeeds and is versioned.
	require.NoError(t, h.manager.RemoveCluster("backend"))
	assert.Equal(t, int64(3), h.tracker.Version())

	_, err := h.materializer.Resources(resource.RouteType)
	var dep *store.DependencyError
	require.ErrorAs(t, err, &dep)

	// Re-adding the cluster repairs route materialization.
	require.NoError(t, h.manager.AddCluster(backendCluster()))
	_, err = h.materializer.Resources(resource.RouteType)
	require.NoError(t, err)
}

func TestManagerRouteFilterAssociation(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.manager.AddCluster(backendCluster()))
	require.NoError(t, h.manager.AddRoute(&store.Route{Name: "api", Path: "/api", ClusterTarget: "backend"}))
	require.NoError(t, h.manager.AddHTTPFilter(&store.HTTPFilter{
		Name:    "cors",
		Type:    envoy_v3.FilterTypeCORS,
		Enabled: true,
	}))
	require.NoError(t, h.manager.SetRouteFilters("api", []string{"cors"}))
	assert.Equal(t, int64(4), h.tracker.Version())

	err := h.manager.RemoveHTTPFilter("cors")
	var inUse *store.InUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, int64(4), h.tracker.Version())
}
