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
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/projecthelmsman/helmsman/internal/store"
)

// resourceFile is the YAML shape of a resource seed file.
type resourceFile struct {
	Clusters    []clusterSpec `yaml:"clusters,omitempty"`
	Routes      []routeSpec   `yaml:"routes,omitempty"`
	HTTPFilters []filterSpec  `yaml:"http-filters,omitempty"`
}

type endpointSpec struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type clusterSpec struct {
	Name      string         `yaml:"name"`
	Endpoints []endpointSpec `yaml:"endpoints"`
	LBPolicy  string         `yaml:"lb-policy,omitempty"`
}

type routeSpec struct {
	Name          string   `yaml:"name"`
	Path          string   `yaml:"path"`
	Cluster       string   `yaml:"cluster"`
	Methods       []string `yaml:"methods,omitempty"`
	PrefixRewrite string   `yaml:"prefix-rewrite,omitempty"`
	Filters       []string `yaml:"filters,omitempty"`
}

type filterSpec struct {
	Name    string         `yaml:"name"`
	Type    string         `yaml:"type"`
	Enabled *bool          `yaml:"enabled,omitempty"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Apply reads a YAML resource seed and installs it through the manager.
// Clusters are installed first, then filters, then routes, then the
// route to filter associations, so forward references within one file
// resolve. The first rejected resource aborts the load.
func (m *Manager) Apply(in io.Reader) error {
	decoder := yaml.NewDecoder(in)
	decoder.KnownFields(true)

	var file resourceFile
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to parse resource file: %w", err)
	}

	for _, c := range file.Clusters {
		endpoints := make([]store.Endpoint, len(c.Endpoints))
		for i, e := range c.Endpoints {
			endpoints[i] = store.Endpoint{Host: e.Host, Port: e.Port}
		}
		// An absent lb-policy is defaulted by the store.
		if err := m.AddCluster(&store.Cluster{Name: c.Name, Endpoints: endpoints, LBPolicy: store.LBPolicy(c.LBPolicy)}); err != nil {
			return fmt.Errorf("cluster %q: %w", c.Name, err)
		}
	}

	for _, f := range file.HTTPFilters {
		enabled := true
		if f.Enabled != nil {
			enabled = *f.Enabled
		}
		filter := &store.HTTPFilter{Name: f.Name, Type: f.Type, Enabled: enabled, Config: f.Config}
		if err := m.AddHTTPFilter(filter); err != nil {
			return fmt.Errorf("http filter %q: %w", f.Name, err)
		}
	}

	for _, r := range file.Routes {
		route := &store.Route{
			Name:          r.Name,
			Path:          r.Path,
			ClusterTarget: r.Cluster,
			HTTPMethods:   r.Methods,
			PrefixRewrite: r.PrefixRewrite,
		}
		if err := m.AddRoute(route); err != nil {
			return fmt.Errorf("route %q: %w", r.Name, err)
		}
	}

	for _, r := range file.Routes {
		if len(r.Filters) == 0 {
			continue
		}
		if err := m.SetRouteFilters(r.Name, r.Filters); err != nil {
			return fmt.Errorf("route %q filters: %w", r.Name, err)
		}
	}

	return nil
}

// ApplyFile reads a resource seed from a file on disk.
func (m *Manager) ApplyFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open resource file: %w", err)
	}
	defer f.Close()
	return m.Apply(f)
}
