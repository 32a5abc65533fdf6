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
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/projecthelmsman/helmsman/internal/validation"
)

// Limits bounds the size of each collection.
type Limits struct {
	MaxRoutes              int
	MaxClusters            int
	MaxEndpointsPerCluster int
	MaxHTTPFilters         int
}

// Config carries the store's admission policy.
type Config struct {
	Limits Limits

	// RejectOnCapacity makes a full collection reject new resources.
	// When false the store admits them and logs a warning instead.
	RejectOnCapacity bool

	// HTTPMethods is the allow-list for route method matchers.
	HTTPMethods []string

	// FilterTypes is the allow-list of HTTP filter type tags.
	FilterTypes []string

	// FilterValidator checks a filter's config document against the
	// schema for its type. Nil skips the check; the wired validator is
	// the strategy registry, so nothing with an invalid config is ever
	// admitted.
	FilterValidator func(*HTTPFilter) error
}

// Store is the in-memory configuration store. Every mutation follows the
// same sequence: validate, check capacity, check conflicts, install.
// Reads return defensive copies so callers can never alias live records.
type Store struct {
	logrus.FieldLogger
	cfg Config

	routesMu sync.RWMutex
	routes   map[string]*Route

	clustersMu sync.RWMutex
	clusters   map[string]*Cluster

	filtersMu sync.RWMutex
	filters   map[string]*HTTPFilter

	assocMu      sync.RWMutex
	routeFilters map[string][]string
}

// New returns an empty store with the given admission policy.
func New(log logrus.FieldLogger, cfg Config) *Store {
	return &Store{
		FieldLogger:  log.WithField("component", "store"),
		cfg:          cfg,
		routes:       map[string]*Route{},
		clusters:     map[string]*Cluster{},
		filters:      map[string]*HTTPFilter{},
		routeFilters: map[string][]string{},
	}
}

// checkCapacity enforces the collection limit. Returns a CapacityError
// when the collection is full and the store rejects on capacity; otherwise
// logs a warning and admits.
func (s *Store) checkCapacity(kind Kind, current, limit int) error {
	if limit <= 0 || current < limit {
		return nil
	}
	if s.cfg.RejectOnCapacity {
		return &CapacityError{Kind: kind, Current: current, Limit: limit}
	}
	s.WithField("kind", kind).
		WithField("current", current).
		WithField("limit", limit).
		Warn("capacity limit reached, admitting anyway")
	return nil
}

func (s *Store) validateRoute(r *Route) error {
	if err := validation.ResourceName("name", r.Name, validation.MaxRouteNameLength); err != nil {
		return &ValidationError{Kind: KindRoute, Name: r.Name, Err: err}
	}
	if err := validation.Path(r.Path); err != nil {
		return &ValidationError{Kind: KindRoute, Name: r.Name, Err: err}
	}
	if err := validation.ResourceName("cluster_target", r.ClusterTarget, validation.MaxClusterNameLength); err != nil {
		return &ValidationError{Kind: KindRoute, Name: r.Name, Err: err}
	}
	if r.PrefixRewrite != "" {
		if err := validation.Path(r.PrefixRewrite); err != nil {
			return &ValidationError{Kind: KindRoute, Name: r.Name, Err: err}
		}
	}
	if err := validation.HTTPMethods(r.HTTPMethods, s.cfg.HTTPMethods); err != nil {
		return &ValidationError{Kind: KindRoute, Name: r.Name, Err: err}
	}
	return nil
}

// AddRoute validates and installs a new route. The target cluster must
// already exist.
func (s *Store) AddRoute(r *Route) error {
	if err := s.validateRoute(r); err != nil {
		return err
	}

	s.clustersMu.RLock()
	_, clusterExists := s.clusters[r.ClusterTarget]
	s.clustersMu.RUnlock()
	if !clusterExists {
		return &DependencyError{Kind: KindRoute, Name: r.Name, Dependency: KindCluster, Missing: r.ClusterTarget}
	}

	s.routesMu.Lock()
	defer s.routesMu.Unlock()

	if err := s.checkCapacity(KindRoute, len(s.routes), s.cfg.Limits.MaxRoutes); err != nil {
		return err
	}
	if _, ok := s.routes[r.Name]; ok {
		return &ConflictError{Kind: KindRoute, Name: r.Name}
	}

	installed := r.clone()
	normalizeMethods(installed)
	s.routes[installed.Name] = installed
	s.WithField("route", installed.Name).Debug("route added")
	return nil
}

// UpdateRoute replaces an existing route after full validation.
func (s *Store) UpdateRoute(r *Route) error {
	if err := s.validateRoute(r); err != nil {
		return err
	}

	s.clustersMu.RLock()
	_, clusterExists := s.clusters[r.ClusterTarget]
	s.clustersMu.RUnlock()
	if !clusterExists {
		return &DependencyError{Kind: KindRoute, Name: r.Name, Dependency: KindCluster, Missing: r.ClusterTarget}
	}

	s.routesMu.Lock()
	defer s.routesMu.Unlock()

	if _, ok := s.routes[r.Name]; !ok {
		return &NotFoundError{Kind: KindRoute, Name: r.Name}
	}

	installed := r.clone()
	normalizeMethods(installed)
	s.routes[installed.Name] = installed
	s.WithField("route", installed.Name).Debug("route updated")
	return nil
}

// RemoveRoute deletes a route and its filter associations.
func (s *Store) RemoveRoute(name string) error {
	s.routesMu.Lock()
	if _, ok := s.routes[name]; !ok {
		s.routesMu.Unlock()
		return &NotFoundError{Kind: KindRoute, Name: name}
	}
	delete(s.routes, name)
	s.routesMu.Unlock()

	s.assocMu.Lock()
	delete(s.routeFilters, name)
	s.assocMu.Unlock()

	s.WithField("route", name).Debug("route removed")
	return nil
}

// GetRoute returns a copy of the named route.
func (s *Store) GetRoute(name string) (*Route, error) {
	s.routesMu.RLock()
	defer s.routesMu.RUnlock()
	r, ok := s.routes[name]
	if !ok {
		return nil, &NotFoundError{Kind: KindRoute, Name: name}
	}
	return r.clone(), nil
}

// ListRoutes returns copies of all routes sorted by name.
func (s *Store) ListRoutes() []*Route {
	s.routesMu.RLock()
	defer s.routesMu.RUnlock()
	out := make([]*Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, r.clone())
	}
	slices.SortFunc(out, func(a, b *Route) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Store) validateCluster(c *Cluster) error {
	if err := validation.ResourceName("name", c.Name, validation.MaxClusterNameLength); err != nil {
		return &ValidationError{Kind: KindCluster, Name: c.Name, Err: err}
	}
	if len(c.Endpoints) == 0 {
		return &ValidationError{Kind: KindCluster, Name: c.Name, Err: fmt.Errorf("at least one endpoint required")}
	}
	if max := s.cfg.Limits.MaxEndpointsPerCluster; max > 0 && len(c.Endpoints) > max {
		return &ValidationError{Kind: KindCluster, Name: c.Name, Err: fmt.Errorf("at most %d endpoints allowed, got %d", max, len(c.Endpoints))}
	}
	for _, ep := range c.Endpoints {
		if err := validation.Host(ep.Host); err != nil {
			return &ValidationError{Kind: KindCluster, Name: c.Name, Err: err}
		}
		if err := validation.Port(ep.Port); err != nil {
			return &ValidationError{Kind: KindCluster, Name: c.Name, Err: err}
		}
	}
	return nil
}

// AddCluster validates and installs a new cluster.
func (s *Store) AddCluster(c *Cluster) error {
	if err := s.validateCluster(c); err != nil {
		return err
	}

	s.clustersMu.Lock()
	defer s.clustersMu.Unlock()

	if err := s.checkCapacity(KindCluster, len(s.clusters), s.cfg.Limits.MaxClusters); err != nil {
		return err
	}
	if _, ok := s.clusters[c.Name]; ok {
		return &ConflictError{Kind: KindCluster, Name: c.Name}
	}

	installed := c.clone()
	defaultLBPolicy(installed)
	s.clusters[c.Name] = installed
	s.WithField("cluster", c.Name).Debug("cluster added")
	return nil
}

// UpdateCluster replaces an existing cluster after full validation.
func (s *Store) UpdateCluster(c *Cluster) error {
	if err := s.validateCluster(c); err != nil {
		return err
	}

	s.clustersMu.Lock()
	defer s.clustersMu.Unlock()

	if _, ok := s.clusters[c.Name]; !ok {
		return &NotFoundError{Kind: KindCluster, Name: c.Name}
	}
	installed := c.clone()
	defaultLBPolicy(installed)
	s.clusters[c.Name] = installed
	s.WithField("cluster", c.Name).Debug("cluster updated")
	return nil
}

// RemoveCluster deletes a cluster. Routes referencing it are left in
// place; the dangling reference surfaces when route resources are next
// materialized.
func (s *Store) RemoveCluster(name string) error {
	s.clustersMu.Lock()
	defer s.clustersMu.Unlock()

	if _, ok := s.clusters[name]; !ok {
		return &NotFoundError{Kind: KindCluster, Name: name}
	}
	delete(s.clusters, name)
	s.WithField("cluster", name).Debug("cluster removed")
	return nil
}

// GetCluster returns a copy of the named cluster.
func (s *Store) GetCluster(name string) (*Cluster, error) {
	s.clustersMu.RLock()
	defer s.clustersMu.RUnlock()
	c, ok := s.clusters[name]
	if !ok {
		return nil, &NotFoundError{Kind: KindCluster, Name: name}
	}
	return c.clone(), nil
}

// ListClusters returns copies of all clusters sorted by name.
func (s *Store) ListClusters() []*Cluster {
	s.clustersMu.RLock()
	defer s.clustersMu.RUnlock()
	out := make([]*Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		out = append(out, c.clone())
	}
	slices.SortFunc(out, func(a, b *Cluster) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Store) validateFilter(f *HTTPFilter) error {
	if err := validation.ResourceName("name", f.Name, validation.MaxFilterNameLength); err != nil {
		return &ValidationError{Kind: KindHTTPFilter, Name: f.Name, Err: err}
	}
	if !slices.Contains(s.cfg.FilterTypes, f.Type) {
		return &ValidationError{
			Kind: KindHTTPFilter,
			Name: f.Name,
			Err:  fmt.Errorf("filter type %q is not supported, allowed: %s", f.Type, strings.Join(s.cfg.FilterTypes, ", ")),
		}
	}
	if s.cfg.FilterValidator != nil {
		if err := s.cfg.FilterValidator(f); err != nil {
			return &ValidationError{Kind: KindHTTPFilter, Name: f.Name, Err: err}
		}
	}
	return nil
}

// AddHTTPFilter validates and installs a new HTTP filter.
func (s *Store) AddHTTPFilter(f *HTTPFilter) error {
	if err := s.validateFilter(f); err != nil {
		return err
	}

	s.filtersMu.Lock()
	defer s.filtersMu.Unlock()

	if err := s.checkCapacity(KindHTTPFilter, len(s.filters), s.cfg.Limits.MaxHTTPFilters); err != nil {
		return err
	}
	if _, ok := s.filters[f.Name]; ok {
		return &ConflictError{Kind: KindHTTPFilter, Name: f.Name}
	}

	s.filters[f.Name] = f.clone()
	s.WithField("filter", f.Name).WithField("type", f.Type).Debug("http filter added")
	return nil
}

// UpdateHTTPFilter replaces an existing HTTP filter after validation.
func (s *Store) UpdateHTTPFilter(f *HTTPFilter) error {
	if err := s.validateFilter(f); err != nil {
		return err
	}

	s.filtersMu.Lock()
	defer s.filtersMu.Unlock()

	if _, ok := s.filters[f.Name]; !ok {
		return &NotFoundError{Kind: KindHTTPFilter, Name: f.Name}
	}
	s.filters[f.Name] = f.clone()
	s.WithField("filter", f.Name).Debug("http filter updated")
	return nil
}

// RemoveHTTPFilter deletes a filter unless a route still references it.
func (s *Store) RemoveHTTPFilter(name string) error {
	s.assocMu.RLock()
	for route, filters := range s.routeFilters {
		if slices.Contains(filters, name) {
			s.assocMu.RUnlock()
			return &InUseError{Kind: KindHTTPFilter, Name: name, UsedBy: KindRoute, User: route}
		}
	}
	s.assocMu.RUnlock()

	s.filtersMu.Lock()
	defer s.filtersMu.Unlock()

	if _, ok := s.filters[name]; !ok {
		return &NotFoundError{Kind: KindHTTPFilter, Name: name}
	}
	delete(s.filters, name)
	s.WithField("filter", name).Debug("http filter removed")
	return nil
}

// GetHTTPFilter returns a copy of the named filter.
func (s *Store) GetHTTPFilter(name string) (*HTTPFilter, error) {
	s.filtersMu.RLock()
	defer s.filtersMu.RUnlock()
	f, ok := s.filters[name]
	if !ok {
		return nil, &NotFoundError{Kind: KindHTTPFilter, Name: name}
	}
	return f.clone(), nil
}

// ListHTTPFilters returns copies of all filters sorted by name.
func (s *Store) ListHTTPFilters() []*HTTPFilter {
	s.filtersMu.RLock()
	defer s.filtersMu.RUnlock()
	out := make([]*HTTPFilter, 0, len(s.filters))
	for _, f := range s.filters {
		out = append(out, f.clone())
	}
	slices.SortFunc(out, func(a, b *HTTPFilter) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// SetRouteFilters associates an ordered filter list with a route. The
// route and every named filter must exist. Filters are re-checked after
// the association lock is taken so a filter removed mid-flight is reported
// rather than silently attached.
func (s *Store) SetRouteFilters(routeName string, filterNames []string) error {
	s.routesMu.RLock()
	_, routeExists := s.routes[routeName]
	s.routesMu.RUnlock()
	if !routeExists {
		return &NotFoundError{Kind: KindRoute, Name: routeName}
	}

	for _, fn := range filterNames {
		s.filtersMu.RLock()
		_, ok := s.filters[fn]
		s.filtersMu.RUnlock()
		if !ok {
			return &DependencyError{Kind: KindRoute, Name: routeName, Dependency: KindHTTPFilter, Missing: fn}
		}
	}

	s.assocMu.Lock()
	defer s.assocMu.Unlock()

	for _, fn := range filterNames {
		s.filtersMu.RLock()
		_, ok := s.filters[fn]
		s.filtersMu.RUnlock()
		if !ok {
			return &ConcurrentModificationError{Kind: KindHTTPFilter, Name: fn}
		}
	}

	s.routeFilters[routeName] = slices.Clone(filterNames)
	s.WithField("route", routeName).WithField("filters", len(filterNames)).Debug("route filters set")
	return nil
}

// RouteFilterNames returns the ordered filter list associated with a
// route, or nil when none is set.
func (s *Store) RouteFilterNames(routeName string) []string {
	s.assocMu.RLock()
	defer s.assocMu.RUnlock()
	return slices.Clone(s.routeFilters[routeName])
}

// Capacity reports occupancy for one collection.
func (s *Store) Capacity(kind Kind) CapacityInfo {
	var current, limit int
	switch kind {
	case KindRoute:
		s.routesMu.RLock()
		current = len(s.routes)
		s.routesMu.RUnlock()
		limit = s.cfg.Limits.MaxRoutes
	case KindCluster:
		s.clustersMu.RLock()
		current = len(s.clusters)
		s.clustersMu.RUnlock()
		limit = s.cfg.Limits.MaxClusters
	case KindHTTPFilter:
		s.filtersMu.RLock()
		current = len(s.filters)
		s.filtersMu.RUnlock()
		limit = s.cfg.Limits.MaxHTTPFilters
	}

	info := CapacityInfo{Kind: kind, Current: current, Limit: limit}
	if limit > 0 {
		info.Utilization = float64(current) / float64(limit) * 100
	}
	return info
}

func normalizeMethods(r *Route) {
	for i, m := range r.HTTPMethods {
		r.HTTPMethods[i] = strings.ToUpper(m)
	}
}

// defaultLBPolicy fills in the system default when a cluster declares no
// load balancing policy.
func defaultLBPolicy(c *Cluster) {
	if c.LBPolicy == "" {
		c.LBPolicy = LBRoundRobin
	}
}
