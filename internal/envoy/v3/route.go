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
	envoy_matcher_v3 "github.com/envoyproxy/go-control-plane/envoy/type/matcher/v3"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/projecthelmsman/helmsman/internal/store"
)

// RouteConfiguration builds the single route configuration served over
// RDS: one virtual host carrying every stored route.
func RouteConfiguration(settings Settings, routes []*envoy_config_route_v3.Route, vhostFilterConfig map[string]*anypb.Any) *envoy_config_route_v3.RouteConfiguration {
	return &envoy_config_route_v3.RouteConfiguration{
		Name: settings.RouteConfigName,
		VirtualHosts: []*envoy_config_route_v3.VirtualHost{{
			Name:                settings.VirtualHostName,
			Domains:             settings.Domains,
			Routes:              routes,
			TypedPerFilterConfig: vhostFilterConfig,
		}},
	}
}

// Route builds the Envoy route for a stored route: prefix path match,
// optional method matcher, cluster action with optional prefix rewrite.
func Route(r *store.Route) *envoy_config_route_v3.Route {
	match := &envoy_config_route_v3.RouteMatch{
		PathSpecifier: &envoy_config_route_v3.RouteMatch_Prefix{Prefix: r.Path},
	}
	if m := methodMatcher(r.HTTPMethods); m != nil {
		match.Headers = []*envoy_config_route_v3.HeaderMatcher{m}
	}

	return &envoy_config_route_v3.Route{
		Name:  r.Name,
		Match: match,
		Action: &envoy_config_route_v3.Route_Route{
			Route: &envoy_config_route_v3.RouteAction{
				ClusterSpecifier: &envoy_config_route_v3.RouteAction_Cluster{
					Cluster: r.ClusterTarget,
				},
				PrefixRewrite: r.PrefixRewrite,
			},
		},
	}
}

// methodMatcher renders the :method header matcher for a route. No
// methods means match any; a single method uses an exact match; several
// use an anchored alternation regex.
func methodMatcher(methods []string) *envoy_config_route_v3.HeaderMatcher {
	switch len(methods) {
	case 0:
		return nil
	case 1:
		return &envoy_config_route_v3.HeaderMatcher{
			Name: ":method",
			HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_StringMatch{
				StringMatch: &envoy_matcher_v3.StringMatcher{
					MatchPattern: &envoy_matcher_v3.StringMatcher_Exact{Exact: methods[0]},
				},
			},
		}
	default:
		return &envoy_config_route_v3.HeaderMatcher{
			Name: ":method",
			HeaderMatchSpecifier: &envoy_config_route_v3.HeaderMatcher_StringMatch{
				StringMatch: &envoy_matcher_v3.StringMatcher{
					MatchPattern: &envoy_matcher_v3.StringMatcher_SafeRegex{
						SafeRegex: SafeRegexMatch(alternationRegex(methods)),
					},
				},
			},
		}
	}
}
