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
	"slices"
	"strings"

	envoy_config_rbac_v3 "github.com/envoyproxy/go-control-plane/envoy/config/rbac/v3"
	envoy_config_route_v3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	envoy_filter_http_rbac_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/rbac/v3"
	envoy_matcher_v3 "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
	"github.com/projecthelmsman/helmsman/internal/store"
	"github.com/projecthelmsman/helmsman/internal/validation"
)

// defaultAllowedMethods applies when a request_validation filter does not
// name its own method list.
var defaultAllowedMethods = []string{"GET", "POST"}

// requestValidationStrategy materializes "request_validation" filters as
// an RBAC filter with a single ALLOW policy: requests must use an allowed
// method, carry every required header, and (optionally) match one of the
// allowed paths. Everything else is denied.
type requestValidationStrategy struct {
	// supportedMethods is the deployment's HTTP method allow-list;
	// filter configs may only draw from it.
	supportedMethods []string
}

func (*requestValidationStrategy) FilterType() string      { return FilterTypeRequestValidation }
func (*requestValidationStrategy) EnvoyFilterName() string { return filterNameRBAC }

func (s *requestValidationStrategy) Validate(f *store.HTTPFilter) error {
	if err := rejectUnknownKeys(f, "allowed_methods", "required_headers", "allowed_paths"); err != nil {
		return err
	}

	if _, present := f.Config["allowed_methods"]; present {
		methods, ok := configStringSlice(f.Config, "allowed_methods")
		if !ok {
			return configErrorf(f.Name, "allowed_methods", "must be a list of strings")
		}
		if len(methods) == 0 {
			return configErrorf(f.Name, "allowed_methods", "must not be empty when set")
		}
		for _, m := range methods {
			if m == "" || m != strings.ToUpper(m) {
				return configErrorf(f.Name, "allowed_methods", "method %q must be uppercase", m)
			}
			if !slices.Contains(s.supportedMethods, m) {
				return configErrorf(f.Name, "allowed_methods", "method %q is not in the supported set %v", m, s.supportedMethods)
			}
		}
	}

	if _, present := f.Config["required_headers"]; present {
		headers, ok := configStringSlice(f.Config, "required_headers")
		if !ok {
			return configErrorf(f.Name, "required_headers", "must be a list of header names")
		}
		for _, h := range headers {
			if err := validation.HeaderName(h); err != nil {
				return configErrorf(f.Name, "required_headers", "%v", err)
			}
		}
	}

	if _, present := f.Config["allowed_paths"]; present {
		paths, ok := configStringSlice(f.Config, "allowed_paths")
		if !ok {
			return configErrorf(f.Name, "allowed_paths", "must be a list of paths")
		}
		for _, p := range paths {
			if p == "" {
				return configErrorf(f.Name, "allowed_paths", "paths must not be empty")
			}
			if !strings.HasPrefix(p, "/") {
				return configErrorf(f.Name, "allowed_paths", "path %q must start with %q", p, "/")
			}
			// Paths feed a matcher regex; parent traversal has no
			// place there.
			if strings.Contains(p, "..") {
				return configErrorf(f.Name, "allowed_paths", "path %q contains a traversal sequence", p)
			}
			if err := validation.LuaSafe("allowed_paths", p); err != nil {
				return configErrorf(f.Name, "allowed_paths", "%v", err)
			}
		}
	}
	return nil
}

func (*requestValidationStrategy) Convert(f *store.HTTPFilter) (*anypb.Any, error) {
	methods, ok := configStringSlice(f.Config, "allowed_methods")
	if !ok || len(methods) == 0 {
		methods = defaultAllowedMethods
	}
	requiredHeaders, _ := configStringSlice(f.Config, "required_headers")
	allowedPaths, _ := configStringSlice(f.Config, "allowed_paths")

	rules := []*envoy_config_rbac_v3.Permission{
		headerPermission(&envoy_config_route_v3.HeaderMatcher{
			Name: ":method",
			HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_StringMatch{
				StringMatch: &envoy_matcher_v3.StringMatcher{
					MatchPattern: &envoy_matcher_v3.StringMatcher_SafeRegex{
						SafeRegex: SafeRegexMatch(alternationRegex(methods)),
					},
				},
			},
		}),
	}
	for _, h := range requiredHeaders {
		rules = append(rules, headerPermission(&envoy_config_route_v3.HeaderMatcher{
			Name: h,
			HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_PresentMatch{
				PresentMatch: true,
			},
		}))
	}
	if len(allowedPaths) > 0 {
		rules = append(rules, headerPermission(&envoy_config_route_v3.HeaderMatcher{
			Name: ":path",
			HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_StringMatch{
				StringMatch: &envoy_matcher_v3.StringMatcher{
					MatchPattern: &envoy_matcher_v3.StringMatcher_SafeRegex{
						SafeRegex: SafeRegexMatch(alternationRegex(allowedPaths)),
					},
				},
			},
		}))
	}

	return protobuf.MarshalAny(&envoy_filter_http_rbac_v3.RBAC{
		Rules: &envoy_config_rbac_v3.RBAC{
			Action: envoy_config_rbac_v3.RBAC_ALLOW,
			Policies: map[string]*envoy_config_rbac_v3.Policy{
				"allow_valid_requests": {
					Permissions: []*envoy_config_rbac_v3.Permission{{
						Rule: &envoy_config_rbac_v3.Permission_AndRules{
							AndRules: &envoy_config_rbac_v3.Permission_Set{Rules: rules},
						},
					}},
					Principals: []*envoy_config_rbac_v3.Principal{{
						Identifier: &envoy_config_rbac_v3.Principal_Any{Any: true},
					}},
				},
			},
		},
	})
}

func headerPermission(m *envoy_config_route_v3.HeaderMatcher) *envoy_config_rbac_v3.Permission {
	return &envoy_config_rbac_v3.Permission{
		Rule: &envoy_config_rbac_v3.Permission_Header{Header: m},
	}
}
