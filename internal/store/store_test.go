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

package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthelmsman/helmsman/internal/fixture"
)

func testConfig() Config {
	return Config{
		Limits: Limits{
			MaxRoutes:              1000,
			MaxClusters:            500,
			MaxEndpointsPerCluster: 50,
			MaxHTTPFilters:         50,
		},
		RejectOnCapacity: true,
		HTTPMethods:      []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
		FilterTypes:      []string{"rate_limit", "cors", "authentication", "header_manipulation", "request_validation"},
	}
}

func testCluster(name string) *Cluster {
	return &Cluster{
		Name:      name,
		Endpoints: []Endpoint{{Host: "backend.local", Port: 8080}},
		LBPolicy:  LBRoundRobin,
	}
}

func testRoute(name, cluster string) *Route {
	return &Route{
		Name:          name,
		Path:          "/api",
		ClusterTarget: cluster,
		HTTPMethods:   []string{"GET"},
	}
}

func TestStoreRouteLifecycle(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())
	require.NoError(t, s.AddCluster(testCluster("backend")))

	r := testRoute("api", "backend")
	require.NoError(t, s.AddRoute(r))

	got, err := s.GetRoute("api")
	require.NoError(t, err)
	assert.Equal(t, "/api", got.Path)
	assert.Equal(t, []string{"GET"}, got.HTTPMethods)

	// Mutating the returned copy must not touch the stored record.
	got.Path = "/changed"
	got.HTTPMethods[0] = "DELETE"
	again, err := s.GetRoute("api")
	require.NoError(t, err)
	assert.Equal(t, "/api", again.Path)
	assert.Equal(t, []string{"GET"}, again.HTTPMethods)

	r.Path = "/api/v2"
	require.NoError(t, s.UpdateRoute(r))
	got, err = s.GetRoute("api")
	require.NoError(t, err)
	assert.Equal(t, "/api/v2", got.Path)

	require.NoError(t, s.RemoveRoute("api"))
	_, err = s.GetRoute("api")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, KindRoute, notFound.Kind)
}

func TestStoreRouteErrors(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())
	require.NoError(t, s.AddCluster(testCluster("backend")))

	t.Run("duplicate name conflicts", func(t *testing.T) {
		require.NoError(t, s.AddRoute(testRoute("dup", "backend")))
		err := s.AddRoute(testRoute("dup", "backend"))
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("unknown cluster target", func(t *testing.T) {
		err := s.AddRoute(testRoute("orphan", "nowhere"))
		var dep *DependencyError
		require.ErrorAs(t, err, &dep)
		assert.Equal(t, "nowhere", dep.Missing)
	})

	t.Run("invalid path fails validation", func(t *testing.T) {
		r := testRoute("bad", "backend")
		r.Path = "no-slash"
		var verr *ValidationError
		require.ErrorAs(t, s.AddRoute(r), &verr)
	})

	t.Run("update of missing route", func(t *testing.T) {
		err := s.UpdateRoute(testRoute("ghost", "backend"))
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("remove of missing route", func(t *testing.T) {
		var notFound *NotFoundError
		require.ErrorAs(t, s.RemoveRoute("ghost"), &notFound)
	})
}

func TestStoreMethodsNormalized(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())
	require.NoError(t, s.AddCluster(testCluster("backend")))

	r := testRoute("api", "backend")
	r.HTTPMethods = []string{"get", "Post"}
	require.NoError(t, s.AddRoute(r))

	got, err := s.GetRoute("api")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET", "POST"}, got.HTTPMethods)
}

func TestStoreClusterLifecycle(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())

	c := testCluster("backend")
	require.NoError(t, s.AddCluster(c))

	var conflict *ConflictError
	require.ErrorAs(t, s.AddCluster(testCluster("backend")), &conflict)

	c.Endpoints = append(c.Endpoints, Endpoint{Host: "10.0.0.2", Port: 9090})
	require.NoError(t, s.UpdateCluster(c))

	got, err := s.GetCluster("backend")
	require.NoError(t, err)
	assert.Len(t, got.Endpoints, 2)

	require.NoError(t, s.RemoveCluster("backend"))
	var notFound *NotFoundError
	require.ErrorAs(t, s.RemoveCluster("backend"), &notFound)
}

func TestStoreClusterValidation(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())

	tests := map[string]*Cluster{
		"no endpoints": {Name: "c1", LBPolicy: LBRoundRobin},
		"bad host": {
			Name:      "c2",
			Endpoints: []Endpoint{{Host: "-bad.local", Port: 80}},
			LBPolicy:  LBRoundRobin,
		},
		"bad port": {
			Name:      "c3",
			Endpoints: []Endpoint{{Host: "ok.local", Port: 0}},
			LBPolicy:  LBRoundRobin,
		},
	}

	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			var verr *ValidationError
			require.ErrorAs(t, s.AddCluster(c), &verr)
		})
	}

	t.Run("absent lb policy defaults to round robin", func(t *testing.T) {
		require.NoError(t, s.AddCluster(&Cluster{
			Name:      "defaulted",
			Endpoints: []Endpoint{{Host: "ok.local", Port: 80}},
		}))
		got, err := s.GetCluster("defaulted")
		require.NoError(t, err)
		assert.Equal(t, LBRoundRobin, got.LBPolicy)
	})

	t.Run("custom lb policy accepted", func(t *testing.T) {
		require.NoError(t, s.AddCluster(&Cluster{
			Name:      "custom",
			Endpoints: []Endpoint{{Host: "ok.local", Port: 80}},
			LBPolicy:  "MAGLEV",
		}))
		got, err := s.GetCluster("custom")
		require.NoError(t, err)
		assert.False(t, got.LBPolicy.Known())
	})

	t.Run("endpoint limit enforced", func(t *testing.T) {
		c := &Cluster{Name: "big", LBPolicy: LBRoundRobin}
		for i := 0; i < 51; i++ {
			c.Endpoints = append(c.Endpoints, Endpoint{Host: "ok.local", Port: 80})
		}
		var verr *ValidationError
		require.ErrorAs(t, s.AddCluster(c), &verr)
	})
}

func TestStoreRemovedClusterLeavesRouteDangling(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())
	require.NoError(t, s.AddCluster(testCluster("backend")))
	require.NoError(t, s.AddRoute(testRoute("api", "backend")))

	require.NoError(t, s.RemoveCluster("backend"))

	// The route stays; the dangling reference is the materializer's to report.
	got, err := s.GetRoute("api")
	require.NoError(t, err)
	assert.Equal(t, "backend", got.ClusterTarget)
}

func TestStoreCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxClusters = 2

	t.Run("strict mode rejects", func(t *testing.T) {
		s := New(fixture.NewTestLogger(t), cfg)
		require.NoError(t, s.AddCluster(testCluster("a")))
		require.NoError(t, s.AddCluster(testCluster("b")))

		err := s.AddCluster(testCluster("c"))
		var capErr *CapacityError
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, 2, capErr.Current)
		assert.Equal(t, 2, capErr.Limit)

		// Updates and removals still work at capacity.
		require.NoError(t, s.UpdateCluster(testCluster("a")))
		require.NoError(t, s.RemoveCluster("b"))
		require.NoError(t, s.AddCluster(testCluster("c")))
	})

	t.Run("lenient mode warns and admits", func(t *testing.T) {
		lenient := cfg
		lenient.RejectOnCapacity = false
		log, hook := test.NewNullLogger()
		s := New(log, lenient)

		require.NoError(t, s.AddCluster(testCluster("a")))
		require.NoError(t, s.AddCluster(testCluster("b")))
		require.NoError(t, s.AddCluster(testCluster("c")))

		var warned bool
		for _, e := range hook.AllEntries() {
			if e.Message == "capacity limit reached, admitting anyway" {
				warned = true
			}
		}
		assert.True(t, warned)
	})

	t.Run("capacity info", func(t *testing.T) {
		s := New(fixture.NewTestLogger(t), cfg)
		require.NoError(t, s.AddCluster(testCluster("a")))

		info := s.Capacity(KindCluster)
		assert.Equal(t, 1, info.Current)
		assert.Equal(t, 2, info.Limit)
		assert.InDelta(t, 50.0, info.Utilization, 0.001)
	})
}

func TestStoreHTTPFilters(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())

	f := &HTTPFilter{
		Name:    "global-limit",
		Type:    "rate_limit",
		Enabled: true,
		Config:  map[string]any{"requests_per_unit": 100, "time_unit": "minute"},
	}
	require.NoError(t, s.AddHTTPFilter(f))

	t.Run("unsupported type rejected", func(t *testing.T) {
		var verr *ValidationError
		require.ErrorAs(t, s.AddHTTPFilter(&HTTPFilter{Name: "waf", Type: "web_application_firewall"}), &verr)
	})

	t.Run("config validator runs at admission", func(t *testing.T) {
		cfg := testConfig()
		cfg.FilterValidator = func(f *HTTPFilter) error {
			if _, ok := f.Config["requests_per_unit"]; !ok {
				return fmt.Errorf("requests_per_unit is required")
			}
			return nil
		}
		s := New(fixture.NewTestLogger(t), cfg)

		var verr *ValidationError
		require.ErrorAs(t, s.AddHTTPFilter(&HTTPFilter{Name: "empty-limit", Type: "rate_limit", Config: map[string]any{}}), &verr)
		assert.ErrorContains(t, verr, "requests_per_unit is required")

		_, err := s.GetHTTPFilter("empty-limit")
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("config is copied on read", func(t *testing.T) {
		got, err := s.GetHTTPFilter("global-limit")
		require.NoError(t, err)
		got.Config["time_unit"] = "second"
		again, err := s.GetHTTPFilter("global-limit")
		require.NoError(t, err)
		assert.Equal(t, "minute", again.Config["time_unit"])
	})

	t.Run("nested config does not alias caller memory", func(t *testing.T) {
		nested := map[string]any{"key": "X-Trace", "value": "on"}
		headers := &HTTPFilter{
			Name:    "headers",
			Type:    "header_manipulation",
			Enabled: true,
			Config: map[string]any{
				"request_headers_to_add":     []any{map[string]any{"header": nested}},
				"response_headers_to_remove": []any{"Server"},
			},
		}
		require.NoError(t, s.AddHTTPFilter(headers))

		// Writes through the pointer the caller kept must not reach
		// the stored record.
		nested["value"] = "mutated-after-admission"
		headers.Config["response_headers_to_remove"].([]any)[0] = "X-Powered-By"

		got, err := s.GetHTTPFilter("headers")
		require.NoError(t, err)
		add := got.Config["request_headers_to_add"].([]any)[0].(map[string]any)["header"].(map[string]any)
		assert.Equal(t, "on", add["value"])
		assert.Equal(t, "Server", got.Config["response_headers_to_remove"].([]any)[0])

		// And writes into one read snapshot must not leak into the next.
		first, err := s.GetHTTPFilter("headers")
		require.NoError(t, err)
		first.Config["request_headers_to_add"].([]any)[0].(map[string]any)["header"].(map[string]any)["value"] = "leaked"
		second, err := s.GetHTTPFilter("headers")
		require.NoError(t, err)
		again := second.Config["request_headers_to_add"].([]any)[0].(map[string]any)["header"].(map[string]any)
		assert.Equal(t, "on", again["value"])
	})

	t.Run("in-use filter cannot be removed", func(t *testing.T) {
		require.NoError(t, s.AddCluster(testCluster("backend")))
		require.NoError(t, s.AddRoute(testRoute("api", "backend")))
		require.NoError(t, s.SetRouteFilters("api", []string{"global-limit"}))

		err := s.RemoveHTTPFilter("global-limit")
		var inUse *InUseError
		require.ErrorAs(t, err, &inUse)
		assert.Equal(t, "api", inUse.User)

		require.NoError(t, s.SetRouteFilters("api", nil))
		require.NoError(t, s.RemoveHTTPFilter("global-limit"))
	})
}

func TestStoreSetRouteFilters(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())
	require.NoError(t, s.AddCluster(testCluster("backend")))
	require.NoError(t, s.AddRoute(testRoute("api", "backend")))

	var notFound *NotFoundError
	require.ErrorAs(t, s.SetRouteFilters("ghost", nil), &notFound)

	var dep *DependencyError
	require.ErrorAs(t, s.SetRouteFilters("api", []string{"ghost-filter"}), &dep)

	require.NoError(t, s.AddHTTPFilter(&HTTPFilter{Name: "f1", Type: "cors", Enabled: true}))
	require.NoError(t, s.SetRouteFilters("api", []string{"f1"}))
	assert.Equal(t, []string{"f1"}, s.RouteFilterNames("api"))

	// Removing the route drops the association.
	require.NoError(t, s.RemoveRoute("api"))
	assert.Empty(t, s.RouteFilterNames("api"))
	require.NoError(t, s.RemoveHTTPFilter("f1"))
}

func TestStoreListOrdering(t *testing.T) {
	s := New(fixture.NewTestLogger(t), testConfig())
	for _, name := range []string{"zeta", "alpha", "mike"} {
		require.NoError(t, s.AddCluster(testCluster(name)))
	}

	var names []string
	for _, c := range s.ListClusters() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"alpha", "mike", "zeta"}, names)
}

func TestStoreConcurrentAdds(t *testing.T) {
	s := New(fixture.NewDiscardLogger(), testConfig())
	require.NoError(t, s.AddCluster(testCluster("backend")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := testRoute(fmt.Sprintf("route-%d", i), "backend")
			assert.NoError(t, s.AddRoute(r))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.ListRoutes(), 20)
}
