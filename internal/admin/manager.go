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

// Package admin is the mutation entry point for operator-facing
// surfaces. Every accepted store mutation bumps the configuration
// version and wakes the active xDS streams; rejected mutations leave
// both untouched.
package admin

import (
	"github.com/sirupsen/logrus"

	"github.com/projecthelmsman/helmsman/internal/metrics"
	"github.com/projecthelmsman/helmsman/internal/store"
	"github.com/projecthelmsman/helmsman/internal/xds"
)

// Manager ties the store to the xDS version tracker and broadcaster.
type Manager struct {
	logrus.FieldLogger
	store       *store.Store
	tracker     *xds.Tracker
	broadcaster *xds.Broadcaster
	metrics     *metrics.Metrics
}

// NewManager wires a manager. metrics may be nil.
func NewManager(log logrus.FieldLogger, s *store.Store, tracker *xds.Tracker, broadcaster *xds.Broadcaster, m *metrics.Metrics) *Manager {
	return &Manager{
		FieldLogger: log.WithField("component", "admin"),
		store:       s,
		tracker:     tracker,
		broadcaster: broadcaster,
		metrics:     m,
	}
}

// Store exposes the underlying store for read operations.
func (m *Manager) Store() *store.Store {
	return m.store
}

// commit finalizes a mutation: on success it advances the version,
// refreshes metrics and wakes every stream. Errors pass through with
// no side effects.
func (m *Manager) commit(err error) error {
	if err != nil {
		return err
	}
	version := m.tracker.BumpVersion()
	if m.metrics != nil {
		for _, kind := range []store.Kind{store.KindRoute, store.KindCluster, store.KindHTTPFilter} {
			m.metrics.SetCapacity(m.store.Capacity(kind))
		}
		m.metrics.SetVersion(version)
	}
	m.broadcaster.Publish()
	m.WithField("version", version).Debug("configuration updated")
	return nil
}

func (m *Manager) AddRoute(r *store.Route) error    { return m.commit(m.store.AddRoute(r)) }
func (m *Manager) UpdateRoute(r *store.Route) error { return m.commit(m.store.UpdateRoute(r)) }
func (m *Manager) RemoveRoute(name string) error    { return m.commit(m.store.RemoveRoute(name)) }

func (m *Manager) AddCluster(c *store.Cluster) error    { return m.commit(m.store.AddCluster(c)) }
func (m *Manager) UpdateCluster(c *store.Cluster) error { return m.commit(m.store.UpdateCluster(c)) }
func (m *Manager) RemoveCluster(name string) error      { return m.commit(m.store.RemoveCluster(name)) }

func (m *Manager) AddHTTPFilter(f *store.HTTPFilter) error {
	return m.commit(m.store.AddHTTPFilter(f))
}

func (m *Manager) UpdateHTTPFilter(f *store.HTTPFilter) error {
	return m.commit(m.store.UpdateHTTPFilter(f))
}

func (m *Manager) RemoveHTTPFilter(name string) error {
	return m.commit(m.store.RemoveHTTPFilter(name))
}

func (m *Manager) SetRouteFilters(route string, filters []string) error {
	return m.commit(m.store.SetRouteFilters(route, filters))
}
