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
	envoy_service_cluster_v3 "github.com/envoyproxy/go-control-plane/envoy/service/cluster/v3"
	envoy_service_discovery_v3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	envoy_service_endpoint_v3 "github.com/envoyproxy/go-control-plane/envoy/service/endpoint/v3"
	envoy_service_listener_v3 "github.com/envoyproxy/go-control-plane/envoy/service/listener/v3"
	envoy_service_route_v3 "github.com/envoyproxy/go-control-plane/envoy/service/route/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/projecthelmsman/helmsman/internal/xds"
)

// Server exposes the xDS services clients may dial. Everything flows
// over the aggregated stream; the per-type streaming endpoints exist so
// clients get UNIMPLEMENTED instead of an unknown-service error.
type Server interface {
	envoy_service_discovery_v3.AggregatedDiscoveryServiceServer
	envoy_service_cluster_v3.ClusterDiscoveryServiceServer
	envoy_service_endpoint_v3.EndpointDiscoveryServiceServer
	envoy_service_listener_v3.ListenerDiscoveryServiceServer
	envoy_service_route_v3.RouteDiscoveryServiceServer
}

type helmsmanServer struct {
	adsServer

	envoy_service_cluster_v3.UnimplementedClusterDiscoveryServiceServer
	envoy_service_endpoint_v3.UnimplementedEndpointDiscoveryServiceServer
	envoy_service_listener_v3.UnimplementedListenerDiscoveryServiceServer
	envoy_service_route_v3.UnimplementedRouteDiscoveryServiceServer
}

// NewServer builds the ADS server over a resource provider, version
// tracker, change broadcaster and circuit breaker.
func NewServer(log logrus.FieldLogger, provider ResourceProvider, tracker *xds.Tracker, broadcaster *xds.Broadcaster, breaker *CircuitBreaker) Server {
	return &helmsmanServer{
		adsServer: adsServer{
			FieldLogger: log.WithField("component", "ads"),
			provider:    provider,
			tracker:     tracker,
			broadcaster: broadcaster,
			breaker:     breaker,
		},
	}
}

// RegisterServer registers all xDS services on a gRPC server.
func RegisterServer(srv Server, g *grpc.Server) {
	envoy_service_discovery_v3.RegisterAggregatedDiscoveryServiceServer(g, srv)
	envoy_service_cluster_v3.RegisterClusterDiscoveryServiceServer(g, srv)
	envoy_service_endpoint_v3.RegisterEndpointDiscoveryServiceServer(g, srv)
	envoy_service_listener_v3.RegisterListenerDiscoveryServiceServer(g, srv)
	envoy_service_route_v3.RegisterRouteDiscoveryServiceServer(g, srv)
}
