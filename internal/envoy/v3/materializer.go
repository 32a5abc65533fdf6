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
	envoy_config_route_v3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	resource "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
	"github.com/projecthelmsman/helmsman/internal/store"
)

// Materializer renders the store's current contents into Envoy v3
// resources on demand. It holds no state of its own: every call reads a
// fresh snapshot, so output always reflects the latest accepted mutation.
type Materializer struct {
	logrus.FieldLogger
	store    *store.Store
	registry *Registry
	settings Settings
}

// NewMaterializer wires a materializer to a store.
func NewMaterializer(log logrus.FieldLogger, s *store.Store, registry *Registry, settings Settings) *Materializer {
	return &Materializer{
		FieldLogger: log.WithField("component", "materializer"),
		store:       s,
		registry:    registry,
		settings:    settings,
	}
}

// Resources returns the packed resources for a type URL. Unhandled type
// URLs (endpoints are embedded in clusters, secrets are not served)
// produce an empty list, not an error.
func (m *Materializer) Resources(typeURL string) ([]*anypb.Any, error) {
	switch typeURL {
	case resource.ClusterType:
		return m.clusters()
	case resource.RouteType:
		return m.routeConfigurations()
	case resource.ListenerType:
		return m.listeners()
	default:
		return nil, nil
	}
}

func (m *Materializer) clusters() ([]*anypb.Any, error) {
	stored := m.store.ListClusters()
	out := make([]*anypb.Any, 0, len(stored))
	for _, c := range stored {
		if !c.LBPolicy.Known() {
			m.WithField("cluster", c.Name).
				WithField("lb_policy", c.LBPolicy).
				Warn("custom lb policy has no Envoy equivalent, using ROUND_ROBIN")
		}
		packed, err := protobuf.MarshalAny(Cluster(c, m.settings))
		if err != nil {
			return nil, err
		}
		out = append(out, packed)
	}
	return out, nil
}

func (m *Materializer) routeConfigurations() ([]*anypb.Any, error) {
	var routes []*envoy_config_route_v3.Route
	for _, r := range m.store.ListRoutes() {
		// Re-check the target: clusters may have been removed since
		// the route was admitted.
		if _, err := m.store.GetCluster(r.ClusterTarget); err != nil {
			return nil, &store.DependencyError{
				Kind:       store.KindRoute,
				Name:       r.Name,
				Dependency: store.KindCluster,
				Missing:    r.ClusterTarget,
			}
		}
		routes = append(routes, Route(r))
	}

	vhostFilterConfig, err := m.vhostFilterConfig()
	if err != nil {
		return nil, err
	}

	packed, err := protobuf.MarshalAny(RouteConfiguration(m.settings, routes, vhostFilterConfig))
	if err != nil {
		return nil, err
	}
	return []*anypb.Any{packed}, nil
}

// vhostFilterConfig renders per-virtual-host filter configs. The cors
// chain entry is an empty marker message, so the policy parsed from the
// first enabled cors filter rides on the virtual host instead.
func (m *Materializer) vhostFilterConfig() (map[string]*anypb.Any, error) {
	for _, f := range m.store.ListHTTPFilters() {
		if f.Type != FilterTypeCORS || !f.Enabled {
			continue
		}
		s, err := m.registry.Strategy(f.Type)
		if err != nil {
			return nil, err
		}
		if err := s.Validate(f); err != nil {
			return nil, err
		}
		policy, err := CORSPolicy(f)
		if err != nil {
			return nil, err
		}
		return map[string]*anypb.Any{filterNameCORS: policy}, nil
	}
	return nil, nil
}

func (m *Materializer) listeners() ([]*anypb.Any, error) {
	chain, err := m.registry.HTTPFilterChain(m.store.ListHTTPFilters(), m.settings.FilterOrder)
	if err != nil {
		return nil, err
	}

	listener, err := Listener(m.settings, HTTPConnectionManager(m.settings, chain))
	if err != nil {
		return nil, err
	}
	packed, err := protobuf.MarshalAny(listener)
	if err != nil {
		return nil, err
	}
	return []*anypb.Any{packed}, nil
}
