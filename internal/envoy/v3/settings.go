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

// Package v3 materializes the store's routes, clusters and HTTP filters
// into Envoy v3 resources.
package v3

import "time"

// Settings controls the naming and defaults of generated resources.
type Settings struct {
	// RouteConfigName names the single RouteConfiguration served over
	// RDS and referenced by the listener's connection manager.
	RouteConfigName string

	// VirtualHostName names the single virtual host inside it.
	VirtualHostName string

	// Domains is the virtual host's domain match list.
	Domains []string

	ListenerName    string
	ListenerAddress string
	ListenerPort    int

	// StatPrefix is the connection manager's stat prefix.
	StatPrefix string

	// ConnectTimeout applies to every generated cluster.
	ConnectTimeout time.Duration

	// FilterOrder lists filter type tags in chain order. Filters whose
	// type is absent from the list are not emitted.
	FilterOrder []string
}

// DefaultSettings returns the stock generation settings.
func DefaultSettings() Settings {
	return Settings{
		RouteConfigName: "local_route",
		VirtualHostName: "local_service",
		Domains:         []string{"*"},
		ListenerName:    "ingress_http",
		ListenerAddress: "0.0.0.0",
		ListenerPort:    10000,
		StatPrefix:      "ingress_http",
		ConnectTimeout:  5 * time.Second,
		FilterOrder: []string{
			FilterTypeAuthentication,
			FilterTypeCORS,
			FilterTypeRateLimit,
			FilterTypeRequestValidation,
			FilterTypeHeaderManipulation,
		},
	}
}
