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

package xds

import (
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// NewServer returns a gRPC server with prometheus stream metrics and
// logrus request logging wired in. Callers register the xDS services on
// the returned server before serving.
func NewServer(log *logrus.Logger, registry *prometheus.Registry, opts ...grpc.ServerOption) *grpc.Server {
	metrics := grpc_prometheus.NewServerMetrics()
	registry.MustRegister(metrics)

	entry := logrus.NewEntry(log)
	opts = append(opts,
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			metrics.StreamServerInterceptor(),
			grpc_logrus.StreamServerInterceptor(entry),
		)),
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			metrics.UnaryServerInterceptor(),
			grpc_logrus.UnaryServerInterceptor(entry),
		)),
	)
	return grpc.NewServer(opts...)
}
