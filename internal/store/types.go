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

// Package store implements the in-memory configuration store that holds
// routes, clusters and HTTP filters, the single source of intent for the
// xDS materializer.
package store

import (
	"maps"
	"slices"
)

// Kind names a resource collection, used in typed errors and metrics.
type Kind string

const (
	KindRoute      Kind = "route"
	KindCluster    Kind = "cluster"
	KindHTTPFilter Kind = "http_filter"
)

// LBPolicy selects the load balancing algorithm for a cluster. Values
// outside the well-known set are carried verbatim and treated as custom.
type LBPolicy string

const (
	LBRoundRobin   LBPolicy = "ROUND_ROBIN"
	LBLeastRequest LBPolicy = "LEAST_REQUEST"
	LBRandom       LBPolicy = "RANDOM"
	LBRingHash     LBPolicy = "RING_HASH"
)

// Known reports whether the policy is one of the well-known variants.
func (p LBPolicy) Known() bool {
	switch p {
	case LBRoundRobin, LBLeastRequest, LBRandom, LBRingHash:
		return true
	}
	return false
}

// Endpoint is one upstream address of a cluster.
type Endpoint struct {
	Host string
	Port int
}

// Cluster is a named set of upstream endpoints plus a load balancing
// policy.
type Cluster struct {
	Name      string
	Endpoints []Endpoint
	LBPolicy  LBPolicy
}

func (c *Cluster) clone() *Cluster {
	out := *c
	out.Endpoints = slices.Clone(c.Endpoints)
	return &out
}

// Route maps a path prefix (and optionally a method list) to a target
// cluster. PrefixRewrite, when set, replaces the matched prefix before the
// request is forwarded upstream.
type Route struct {
	Name          string
	Path          string
	ClusterTarget string
	PrefixRewrite string
	HTTPMethods   []string
}

func (r *Route) clone() *Route {
	out := *r
	out.HTTPMethods = slices.Clone(r.HTTPMethods)
	return &out
}

// HTTPFilter is a named, typed filter definition. Config is a free-form
// document whose schema is owned by the filter strategy for Type.
type HTTPFilter struct {
	Name    string
	Type    string
	Enabled bool
	Config  map[string]any
}

func (f *HTTPFilter) clone() *HTTPFilter {
	out := *f
	out.Config = cloneConfig(f.Config)
	return &out
}

// cloneConfig deep-copies a config document. Configs hold nested maps
// and lists, so a shallow copy would leave stored records aliasing
// caller memory.
func cloneConfig(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneConfigValue(v)
	}
	return out
}

func cloneConfigValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneConfig(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneConfigValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	case map[string]string:
		return maps.Clone(v)
	default:
		return v
	}
}

// CapacityInfo describes collection occupancy at a point in time.
type CapacityInfo struct {
	Kind        Kind
	Current     int
	Limit       int
	Utilization float64
}
