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

	envoy_filter_http_cors_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/cors/v3"
	envoy_matcher_v3 "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
	"github.com/projecthelmsman/helmsman/internal/store"
	"github.com/projecthelmsman/helmsman/internal/validation"
)

// maxOriginLength caps CORS origin entries, matching the DNS name
// length limit.
const maxOriginLength = 253

// corsStrategy materializes "cors" filters. The chain entry is the empty
// Cors marker message; the policy itself attaches to the virtual host as
// typed per-filter config, which is where Envoy's cors filter reads it.
type corsStrategy struct {
	// supportedMethods is the deployment's HTTP method allow-list;
	// filter configs may only draw from it.
	supportedMethods []string
}

func (*corsStrategy) FilterType() string      { return FilterTypeCORS }
func (*corsStrategy) EnvoyFilterName() string { return filterNameCORS }

func (s *corsStrategy) Validate(f *store.HTTPFilter) error {
	if err := rejectUnknownKeys(f, "allowed_origins", "allowed_methods", "allowed_headers", "allow_credentials"); err != nil {
		return err
	}

	if _, present := f.Config["allowed_origins"]; present {
		origins, ok := configStringSlice(f.Config, "allowed_origins")
		if !ok {
			return configErrorf(f.Name, "allowed_origins", "must be a list of strings")
		}
		for _, o := range origins {
			if o == "" || len(o) > maxOriginLength {
				return configErrorf(f.Name, "allowed_origins", "origins must be between 1 and %d characters", maxOriginLength)
			}
			// Origins end up as matcher values in the emitted policy.
			if err := validation.LuaSafe("allowed_origins", o); err != nil {
				return configErrorf(f.Name, "allowed_origins", "%v", err)
			}
		}
	}
	if _, present := f.Config["allowed_methods"]; present {
		methods, ok := configStringSlice(f.Config, "allowed_methods")
		if !ok {
			return configErrorf(f.Name, "allowed_methods", "must be a list of strings")
		}
		for _, m := range methods {
			if !slices.Contains(s.supportedMethods, m) {
				return configErrorf(f.Name, "allowed_methods", "method %q is not in the supported set %v", m, s.supportedMethods)
			}
		}
	}
	if _, present := f.Config["allowed_headers"]; present {
		headers, ok := configStringSlice(f.Config, "allowed_headers")
		if !ok {
			return configErrorf(f.Name, "allowed_headers", "must be a list of strings")
		}
		for _, h := range headers {
			if err := validation.HeaderName(h); err != nil {
				return configErrorf(f.Name, "allowed_headers", "%v", err)
			}
		}
	}
	if _, present := f.Config["allow_credentials"]; present {
		if _, ok := configBool(f.Config, "allow_credentials"); !ok {
			return configErrorf(f.Name, "allow_credentials", "must be a boolean")
		}
	}
	return nil
}

func (*corsStrategy) Convert(*store.HTTPFilter) (*anypb.Any, error) {
	return protobuf.MarshalAny(&envoy_filter_http_cors_v3.Cors{})
}

// CORSPolicy renders the per-virtual-host policy for a cors filter.
func CORSPolicy(f *store.HTTPFilter) (*anypb.Any, error) {
	origins, ok := configStringSlice(f.Config, "allowed_origins")
	if !ok || len(origins) == 0 {
		origins = []string{"*"}
	}

	policy := &envoy_filter_http_cors_v3.CorsPolicy{}
	for _, o := range origins {
		if o == "*" {
			policy.AllowOriginStringMatch = append(policy.AllowOriginStringMatch, &envoy_matcher_v3.StringMatcher{
				MatchPattern: &envoy_matcher_v3.StringMatcher_SafeRegex{
					SafeRegex: SafeRegexMatch(".*"),
				},
			})
			continue
		}
		policy.AllowOriginStringMatch = append(policy.AllowOriginStringMatch, &envoy_matcher_v3.StringMatcher{
			MatchPattern: &envoy_matcher_v3.StringMatcher_Exact{Exact: o},
		})
	}

	if methods, ok := configStringSlice(f.Config, "allowed_methods"); ok {
		policy.AllowMethods = strings.Join(methods, ",")
	}
	if headers, ok := configStringSlice(f.Config, "allowed_headers"); ok {
		policy.AllowHeaders = strings.Join(headers, ",")
	}
	if credentials, ok := configBool(f.Config, "allow_credentials"); ok {
		policy.AllowCredentials = protobuf.Bool(credentials)
	}
	return protobuf.MarshalAny(policy)
}
