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
	"fmt"
	"slices"
	"strings"

	envoy_filter_http_router_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/router/v3"
	envoy_filter_network_http_connection_manager_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
	"github.com/projecthelmsman/helmsman/internal/store"
)

// Filter type tags accepted on stored HTTP filters.
const (
	FilterTypeRateLimit          = "rate_limit"
	FilterTypeCORS               = "cors"
	FilterTypeAuthentication     = "authentication"
	FilterTypeHeaderManipulation = "header_manipulation"
	FilterTypeRequestValidation  = "request_validation"
)

// Canonical Envoy filter names for the generated chain.
const (
	filterNameLocalRateLimit = "envoy.filters.http.local_ratelimit"
	filterNameCORS           = "envoy.filters.http.cors"
	filterNameJWTAuthn       = "envoy.filters.http.jwt_authn"
	filterNameLua            = "envoy.filters.http.lua"
	filterNameRBAC           = "envoy.filters.http.rbac"
	filterNameRouter         = "envoy.filters.http.router"
)

// FilterStrategy validates and converts one type of stored HTTP filter
// into its Envoy typed config.
type FilterStrategy interface {
	// FilterType returns the tag this strategy handles.
	FilterType() string

	// EnvoyFilterName returns the canonical name for the chain entry.
	EnvoyFilterName() string

	// Validate checks the filter's free-form config document.
	Validate(f *store.HTTPFilter) error

	// Convert builds the typed config. Implementations may assume
	// Validate passed.
	Convert(f *store.HTTPFilter) (*anypb.Any, error)
}

// UnsupportedFilterTypeError reports a filter whose type tag has no
// registered strategy.
type UnsupportedFilterTypeError struct {
	Type string
}

func (e *UnsupportedFilterTypeError) Error() string {
	return fmt.Sprintf("no strategy registered for filter type %q", e.Type)
}

// FilterConfigError reports an invalid filter config document.
type FilterConfigError struct {
	Filter string
	Field  string
	Reason string
}

func (e *FilterConfigError) Error() string {
	return fmt.Sprintf("http filter %q: invalid %s: %s", e.Filter, e.Field, e.Reason)
}

func configErrorf(filter, field, format string, args ...any) *FilterConfigError {
	return &FilterConfigError{Filter: filter, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Registry dispatches filters to strategies by type tag.
type Registry struct {
	strategies map[string]FilterStrategy
}

// defaultSupportedMethods is the stock HTTP method allow-list, applied
// when the deployment does not configure its own.
var defaultSupportedMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// NewRegistry returns a registry with all built-in strategies.
// supportedMethods is the deployment's HTTP method allow-list, enforced
// by the strategies whose configs name methods; nil means the stock set.
func NewRegistry(supportedMethods []string) *Registry {
	if len(supportedMethods) == 0 {
		supportedMethods = defaultSupportedMethods
	}

	r := &Registry{strategies: map[string]FilterStrategy{}}
	for _, s := range []FilterStrategy{
		&rateLimitStrategy{},
		&corsStrategy{supportedMethods: supportedMethods},
		&jwtAuthnStrategy{},
		&headerManipulationStrategy{},
		&requestValidationStrategy{supportedMethods: supportedMethods},
	} {
		r.strategies[s.FilterType()] = s
	}
	return r
}

// Strategy returns the strategy for a type tag.
func (r *Registry) Strategy(filterType string) (FilterStrategy, error) {
	s, ok := r.strategies[filterType]
	if !ok {
		return nil, &UnsupportedFilterTypeError{Type: filterType}
	}
	return s, nil
}

// SupportedTypes returns the registered type tags, sorted.
func (r *Registry) SupportedTypes() []string {
	out := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Validate checks a filter's config document against its type's schema.
// The store runs this at admission so invalid configs never reach
// materialization.
func (r *Registry) Validate(f *store.HTTPFilter) error {
	s, err := r.Strategy(f.Type)
	if err != nil {
		return err
	}
	return s.Validate(f)
}

// Convert validates and converts a single stored filter.
func (r *Registry) Convert(f *store.HTTPFilter) (*anypb.Any, error) {
	s, err := r.Strategy(f.Type)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(f); err != nil {
		return nil, err
	}
	return s.Convert(f)
}

// HTTPFilterChain assembles the connection manager's filter chain from
// the enabled stored filters. Filters are grouped by the configured type
// order, name order within a type, and the router filter always
// terminates the chain.
func (r *Registry) HTTPFilterChain(filters []*store.HTTPFilter, order []string) ([]*envoy_filter_network_http_connection_manager_v3.HttpFilter, error) {
	var chain []*envoy_filter_network_http_connection_manager_v3.HttpFilter

	for _, filterType := range order {
		for _, f := range filters {
			if f.Type != filterType || !f.Enabled {
				continue
			}
			s, err := r.Strategy(f.Type)
			if err != nil {
				return nil, err
			}
			if err := s.Validate(f); err != nil {
				return nil, err
			}
			typed, err := s.Convert(f)
			if err != nil {
				return nil, err
			}
			chain = append(chain, &envoy_filter_network_http_connection_manager_v3.HttpFilter{
				Name: s.EnvoyFilterName(),
				ConfigType: &envoy_filter_network_http_connection_manager_v3.HttpFilter_TypedConfig{
					TypedConfig: typed,
				},
			})
		}
	}

	router, err := protobuf.MarshalAny(&envoy_filter_http_router_v3.Router{})
	if err != nil {
		return nil, err
	}
	chain = append(chain, &envoy_filter_network_http_connection_manager_v3.HttpFilter{
		Name: filterNameRouter,
		ConfigType: &envoy_filter_network_http_connection_manager_v3.HttpFilter_TypedConfig{
			TypedConfig: router,
		},
	})
	return chain, nil
}

// Config document coercion helpers. Stored filter configs arrive as
// decoded JSON or YAML, so numbers may be int, int64 or float64.

func configString(cfg map[string]any, key string) (string, bool) {
	v, ok := cfg[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func configInt(cfg map[string]any, key string) (int, bool) {
	switch v := cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func configBool(cfg map[string]any, key string) (bool, bool) {
	v, ok := cfg[key].(bool)
	return v, ok
}

func configStringSlice(cfg map[string]any, key string) ([]string, bool) {
	switch v := cfg[key].(type) {
	case []string:
		return slices.Clone(v), true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// rejectUnknownKeys fails when the config document contains keys outside
// the strategy's schema. Typos in optional keys should not silently
// disable behavior.
func rejectUnknownKeys(f *store.HTTPFilter, allowed ...string) error {
	for key := range f.Config {
		if !slices.Contains(allowed, key) {
			return configErrorf(f.Name, "config", "unknown field %q, allowed: %s", key, strings.Join(allowed, ", "))
		}
	}
	return nil
}
