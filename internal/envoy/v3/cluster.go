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
	envoy_config_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/config/cluster/v3"
	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_endpoint_v3 "github.com/envoyproxy/go-control-plane/envoy/config/endpoint/v3"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
	"github.com/projecthelmsman/helmsman/internal/store"
)

// Cluster builds the Envoy cluster for a stored cluster. Endpoints are
// resolved with strict DNS over IPv4, matching how upstream hosts are
// validated (IPs or resolvable hostnames).
func Cluster(c *store.Cluster, settings Settings) *envoy_config_cluster_v3.Cluster {
	return &envoy_config_cluster_v3.Cluster{
		Name: c.Name,
		ClusterDiscoveryType: &envoy_config_cluster_v3.Cluster_Type{
			Type: envoy_config_cluster_v3.Cluster_STRICT_DNS,
		},
		DnsLookupFamily: envoy_config_cluster_v3.Cluster_V4_ONLY,
		ConnectTimeout:  protobuf.Duration(settings.ConnectTimeout),
		LbPolicy:        lbPolicy(c.LBPolicy),
		LoadAssignment:  loadAssignment(c),
	}
}

// lbPolicy maps the stored policy onto Envoy's enum. Custom policies have
// no Envoy-side equivalent and fall back to round robin; the materializer
// logs the downgrade.
func lbPolicy(p store.LBPolicy) envoy_config_cluster_v3.Cluster_LbPolicy {
	switch p {
	case store.LBRoundRobin:
		return envoy_config_cluster_v3.Cluster_ROUND_ROBIN
	case store.LBLeastRequest:
		return envoy_config_cluster_v3.Cluster_LEAST_REQUEST
	case store.LBRandom:
		return envoy_config_cluster_v3.Cluster_RANDOM
	case store.LBRingHash:
		return envoy_config_cluster_v3.Cluster_RING_HASH
	default:
		return envoy_config_cluster_v3.Cluster_ROUND_ROBIN
	}
}

func loadAssignment(c *store.Cluster) *envoy_config_endpoint_v3.ClusterLoadAssignment {
	endpoints := make([]*envoy_config_endpoint_v3.LbEndpoint, 0, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		endpoints = append(endpoints, &envoy_config_endpoint_v3.LbEndpoint{
			HostIdentifier: &envoy_config_endpoint_v3.LbEndpoint_Endpoint{
				Endpoint: &envoy_config_endpoint_v3.Endpoint{
					Address: SocketAddress(ep.Host, ep.Port),
				},
			},
		})
	}
	return &envoy_config_endpoint_v3.ClusterLoadAssignment{
		ClusterName: c.Name,
		Endpoints: []*envoy_config_endpoint_v3.LocalityLbEndpoints{{
			LbEndpoints: endpoints,
		}},
	}
}

// SocketAddress builds a TCP socket address.
func SocketAddress(address string, port int) *envoy_config_core_v3.Address {
	return &envoy_config_core_v3.Address{
		Address: &envoy_config_core_v3.Address_SocketAddress{
			SocketAddress: &envoy_config_core_v3.SocketAddress{
				Protocol: envoy_config_core_v3.SocketAddress_TCP,
				Address:  address,
				PortSpecifier: &envoy_config_core_v3.SocketAddress_PortValue{
					PortValue: uint32(port), //nolint:gosec // validated to 1..65535
				},
			},
		},
	}
}
