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
	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_listener_v3 "github.com/envoyproxy/go-control-plane/envoy/config/listener/v3"
	envoy_filter_network_http_connection_manager_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/network/http_connection_manager/v3"
	"github.com/envoyproxy/go-control-plane/pkg/wellknown"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
)

// Listener builds the single ingress listener wrapping the HTTP
// connection manager.
func Listener(settings Settings, hcm *envoy_filter_network_http_connection_manager_v3.HttpConnectionManager) (*envoy_config_listener_v3.Listener, error) {
	typed, err := protobuf.MarshalAny(hcm)
	if err != nil {
		return nil, err
	}

	return &envoy_config_listener_v3.Listener{
		Name:    settings.ListenerName,
		Address: SocketAddress(settings.ListenerAddress, settings.ListenerPort),
		FilterChains: []*envoy_config_listener_v3.FilterChain{{
			Filters: []*envoy_config_listener_v3.Filter{{
				Name: wellknown.HTTPConnectionManager,
				ConfigType: &envoy_config_listener_v3.Filter_TypedConfig{
					TypedConfig: typed,
				},
			}},
		}},
	}, nil
}

// HTTPConnectionManager builds the connection manager: routes come from
// the route configuration over ADS, the HTTP filter chain is the
// caller's (already terminated by the router filter).
func HTTPConnectionManager(settings Settings, filters []*envoy_filter_network_http_connection_manager_v3.HttpFilter) *envoy_filter_network_http_connection_manager_v3.HttpConnectionManager {
	return &envoy_filter_network_http_connection_manager_v3.HttpConnectionManager{
		StatPrefix: settings.StatPrefix,
		RouteSpecifier: &envoy_filter_network_http_connection_manager_v3.HttpConnectionManager_Rds{
			Rds: &envoy_filter_network_http_connection_manager_v3.Rds{
				ConfigSource:    adsConfigSource(),
				RouteConfigName: settings.RouteConfigName,
			},
		},
		HttpFilters: filters,
	}
}

func adsConfigSource() *envoy_config_core_v3.ConfigSource {
	return &envoy_config_core_v3.ConfigSource{
		ResourceApiVersion: envoy_config_core_v3.ApiVersion_V3,
		ConfigSourceSpecifier: &envoy_config_core_v3.ConfigSource_Ads{
			Ads: &envoy_config_core_v3.AggregatedConfigSource{},
		},
	}
}
