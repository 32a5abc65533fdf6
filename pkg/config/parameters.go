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

// Package config holds the YAML configuration file surface of the
// control plane and its conversion into the runtime types.
package config

import (
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	envoy_v3 "github.com/projecthelmsman/helmsman/internal/envoy/v3"
	"github.com/projecthelmsman/helmsman/internal/store"
)

// FilterType is the tag of a supported HTTP filter strategy.
type FilterType string

const (
	RateLimitFilter          FilterType = envoy_v3.FilterTypeRateLimit
	CORSFilter               FilterType = envoy_v3.FilterTypeCORS
	AuthenticationFilter     FilterType = envoy_v3.FilterTypeAuthentication
	HeaderManipulationFilter FilterType = envoy_v3.FilterTypeHeaderManipulation
	RequestValidationFilter  FilterType = envoy_v3.FilterTypeRequestValidation
)

// Validate the filter type tag.
func (f FilterType) Validate() error {
	switch f {
	case RateLimitFilter, CORSFilter, AuthenticationFilter, HeaderManipulationFilter, RequestValidationFilter:
		return nil
	default:
		return fmt.Errorf("invalid filter type %q", f)
	}
}

// ServerParameters hold the listen address of the xDS server.
type ServerParameters struct {
	// Address is the interface the gRPC server binds to.
	Address string `yaml:"address,omitempty"`

	// Port is the gRPC listen port.
	Port int `yaml:"port,omitempty"`
}

func (p ServerParameters) Validate() error {
	if net.ParseIP(p.Address) == nil {
		return fmt.Errorf("invalid xDS server address %q", p.Address)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("invalid xDS server port %d", p.Port)
	}
	return nil
}

// StorageParameters bound the size of the configuration store.
type StorageParameters struct {
	MaxRoutes              int `yaml:"max-routes,omitempty"`
	MaxClusters            int `yaml:"max-clusters,omitempty"`
	MaxEndpointsPerCluster int `yaml:"max-endpoints-per-cluster,omitempty"`
	MaxHTTPFilters         int `yaml:"max-http-filters,omitempty"`

	// RejectOnCapacity controls whether a full collection rejects new
	// resources or admits them with a warning.
	RejectOnCapacity bool `yaml:"reject-on-capacity,omitempty"`
}

func (p StorageParameters) Validate() error {
	for _, limit := range []struct {
		name  string
		value int
	}{
		{"storage.max-routes", p.MaxRoutes},
		{"storage.max-clusters", p.MaxClusters},
		{"storage.max-endpoints-per-cluster", p.MaxEndpointsPerCluster},
		{"storage.max-http-filters", p.MaxHTTPFilters},
	} {
		if limit.value < 1 {
			return fmt.Errorf("%s must be positive, got %d", limit.name, limit.value)
		}
	}
	return nil
}

// FilterParameters select which filter strategies are admitted and the
// order they appear in the generated filter chain.
type FilterParameters struct {
	// Types is the allow-list of filter type tags the store admits.
	Types []FilterType `yaml:"types,omitempty"`

	// Order lists filter types in chain order. Types admitted but not
	// listed here are never emitted into the chain.
	Order []FilterType `yaml:"order,omitempty"`
}

func (p FilterParameters) Validate() error {
	for _, t := range p.Types {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	for _, t := range p.Order {
		if err := t.Validate(); err != nil {
			return err
		}
		if !slices.Contains(p.Types, t) {
			return fmt.Errorf("filter order entry %q is not an admitted filter type", t)
		}
	}
	return nil
}

// EnvoyParameters control the naming and defaults of generated Envoy
// resources.
type EnvoyParameters struct {
	RouteConfigName string   `yaml:"route-config-name,omitempty"`
	VirtualHostName string   `yaml:"virtual-host-name,omitempty"`
	Domains         []string `yaml:"domains,omitempty"`

	ListenerName    string `yaml:"listener-name,omitempty"`
	ListenerAddress string `yaml:"listener-address,omitempty"`
	ListenerPort    int    `yaml:"listener-port,omitempty"`

	StatPrefix string `yaml:"stat-prefix,omitempty"`

	// ConnectTimeout applies to every generated cluster. Accepts any
	// value time.ParseDuration understands.
	ConnectTimeout string `yaml:"connect-timeout,omitempty"`
}

func (p EnvoyParameters) Validate() error {
	for _, name := range []struct{ field, value string }{
		{"envoy.route-config-name", p.RouteConfigName},
		{"envoy.virtual-host-name", p.VirtualHostName},
		{"envoy.listener-name", p.ListenerName},
		{"envoy.stat-prefix", p.StatPrefix},
	} {
		if strings.TrimSpace(name.value) == "" {
			return fmt.Errorf("%s must be defined", name.field)
		}
	}
	if len(p.Domains) == 0 {
		return fmt.Errorf("envoy.domains must contain at least one domain match")
	}
	if net.ParseIP(p.ListenerAddress) == nil {
		return fmt.Errorf("invalid envoy.listener-address %q", p.ListenerAddress)
	}
	if p.ListenerPort < 1 || p.ListenerPort > 65535 {
		return fmt.Errorf("invalid envoy.listener-port %d", p.ListenerPort)
	}
	d, err := time.ParseDuration(p.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("invalid envoy.connect-timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("envoy.connect-timeout must be positive, got %q", p.ConnectTimeout)
	}
	return nil
}

// CircuitBreakerParameters tune the xDS response circuit breaker.
type CircuitBreakerParameters struct {
	// FailureThreshold is the number of consecutive materialization
	// failures that opens the breaker.
	FailureThreshold int `yaml:"failure-threshold,omitempty"`

	// RecoveryInterval is how long the breaker stays open before a
	// probe is allowed through.
	RecoveryInterval string `yaml:"recovery-interval,omitempty"`
}

func (p CircuitBreakerParameters) Validate() error {
	if p.FailureThreshold < 1 {
		return fmt.Errorf("circuit-breaker.failure-threshold must be positive, got %d", p.FailureThreshold)
	}
	d, err := time.ParseDuration(p.RecoveryInterval)
	if err != nil {
		return fmt.Errorf("invalid circuit-breaker.recovery-interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("circuit-breaker.recovery-interval must be positive, got %q", p.RecoveryInterval)
	}
	return nil
}

// Parameters is the top level of the configuration file.
type Parameters struct {
	// Debug enables debug level logging.
	Debug bool `yaml:"debug,omitempty"`

	Server ServerParameters `yaml:"server,omitempty"`

	Storage StorageParameters `yaml:"storage,omitempty"`

	// HTTPMethods is the allow-list for route method matchers.
	HTTPMethods []string `yaml:"http-methods,omitempty"`

	Filters FilterParameters `yaml:"filters,omitempty"`

	Envoy EnvoyParameters `yaml:"envoy,omitempty"`

	CircuitBreaker CircuitBreakerParameters `yaml:"circuit-breaker,omitempty"`
}

// Validate verifies that the parameter values do not have any syntax errors.
func (p *Parameters) Validate() error {
	if err := p.Server.Validate(); err != nil {
		return err
	}

	if err := p.Storage.Validate(); err != nil {
		return err
	}

	if len(p.HTTPMethods) == 0 {
		return fmt.Errorf("http-methods must contain at least one method")
	}

	if err := p.Filters.Validate(); err != nil {
		return err
	}

	if err := p.Envoy.Validate(); err != nil {
		return err
	}

	return p.CircuitBreaker.Validate()
}

// StoreConfig converts the parameters into the store's admission policy.
func (p *Parameters) StoreConfig() store.Config {
	types := make([]string, len(p.Filters.Types))
	for i, t := range p.Filters.Types {
		types[i] = string(t)
	}
	return store.Config{
		Limits: store.Limits{
			MaxRoutes:              p.Storage.MaxRoutes,
			MaxClusters:            p.Storage.MaxClusters,
			MaxEndpointsPerCluster: p.Storage.MaxEndpointsPerCluster,
			MaxHTTPFilters:         p.Storage.MaxHTTPFilters,
		},
		RejectOnCapacity: p.Storage.RejectOnCapacity,
		HTTPMethods:      slices.Clone(p.HTTPMethods),
		FilterTypes:      types,
	}
}

// EnvoySettings converts the parameters into resource generation settings.
// Parameters must have been validated first; an unparseable connect
// timeout falls back to the stock default.
func (p *Parameters) EnvoySettings() envoy_v3.Settings {
	settings := envoy_v3.DefaultSettings()
	settings.RouteConfigName = p.Envoy.RouteConfigName
	settings.VirtualHostName = p.Envoy.VirtualHostName
	settings.Domains = slices.Clone(p.Envoy.Domains)
	settings.ListenerName = p.Envoy.ListenerName
	settings.ListenerAddress = p.Envoy.ListenerAddress
	settings.ListenerPort = p.Envoy.ListenerPort
	settings.StatPrefix = p.Envoy.StatPrefix
	if d, err := time.ParseDuration(p.Envoy.ConnectTimeout); err == nil {
		settings.ConnectTimeout = d
	}
	order := make([]string, len(p.Filters.Order))
	for i, t := range p.Filters.Order {
		order[i] = string(t)
	}
	settings.FilterOrder = order
	return settings
}

// RecoveryInterval returns the parsed circuit breaker recovery window.
func (p *Parameters) RecoveryInterval() time.Duration {
	d, err := time.ParseDuration(p.CircuitBreaker.RecoveryInterval)
	if err != nil {
		return 0
	}
	return d
}

// Defaults returns the default set of parameters.
func Defaults() Parameters {
	return Parameters{
		Debug: false,
		Server: ServerParameters{
			Address: "0.0.0.0",
			Port:    18000,
		},
		Storage: StorageParameters{
			MaxRoutes:              1000,
			MaxClusters:            500,
			MaxEndpointsPerCluster: 50,
			MaxHTTPFilters:         50,
			RejectOnCapacity:       true,
		},
		HTTPMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
		Filters: FilterParameters{
			Types: []FilterType{
				RateLimitFilter,
				CORSFilter,
				AuthenticationFilter,
				HeaderManipulationFilter,
				RequestValidationFilter,
			},
			Order: []FilterType{
				AuthenticationFilter,
				CORSFilter,
				RateLimitFilter,
				RequestValidationFilter,
				HeaderManipulationFilter,
			},
		},
		Envoy: EnvoyParameters{
			RouteConfigName: "local_route",
			VirtualHostName: "local_service",
			Domains:         []string{"*"},
			ListenerName:    "ingress_http",
			ListenerAddress: "0.0.0.0",
			ListenerPort:    10000,
			StatPrefix:      "ingress_http",
			ConnectTimeout:  "5s",
		},
		CircuitBreaker: CircuitBreakerParameters{
			FailureThreshold: 5,
			RecoveryInterval: "30s",
		},
	}
}

// Parse reads parameters from a YAML input stream. Any parameters
// not specified by the input are according to Defaults().
func Parse(in io.Reader) (*Parameters, error) {
	conf := Defaults()
	decoder := yaml.NewDecoder(in)

	decoder.KnownFields(true)

	if err := decoder.Decode(&conf); err != nil {
		// The YAML decoder will return EOF if there are
		// no YAML nodes in the results. In this case, we just
		// want to succeed and return the defaults.
		if err != io.EOF {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	}

	// Method matching is case insensitive at the API surface; keep the
	// allow-list canonical.
	for i, m := range conf.HTTPMethods {
		conf.HTTPMethods[i] = strings.ToUpper(m)
	}

	return &conf, nil
}

// ParseFile reads parameters from a YAML file on disk.
func ParseFile(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
