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

// Package v3 implements the v3 aggregated discovery service: the
// state-of-the-world ADS stream with version/nonce bookkeeping and
// ACK/NACK handling.
package v3

import (
	"context"
	"errors"
	"io"
	"maps"
	"slices"
	"strconv"

	envoy_service_discovery_v3 "github.com/envoyproxy/go-control-plane/envoy/service/discovery/v3"
	resource "github.com/envoyproxy/go-control-plane/pkg/resource/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"

	envoy_v3 "github.com/projecthelmsman/helmsman/internal/envoy/v3"
	"github.com/projecthelmsman/helmsman/internal/store"
	"github.com/projecthelmsman/helmsman/internal/xds"
)

// ResourceProvider materializes the current configuration for a type URL.
type ResourceProvider interface {
	Resources(typeURL string) ([]*anypb.Any, error)
}

// supportedTypeURLs are the resource types served over the ADS stream.
// Endpoints ride inside clusters (strict DNS), so EDS is not served.
var supportedTypeURLs = map[string]bool{
	resource.ClusterType:  true,
	resource.RouteType:    true,
	resource.ListenerType: true,
}

// grpcStream abstracts the read/write surface of the ADS stream so the
// handler can be driven by a mock in tests.
type grpcStream interface {
	Context() context.Context
	Send(*envoy_service_discovery_v3.DiscoveryResponse) error
	Recv() (*envoy_service_discovery_v3.DiscoveryRequest, error)
}

// streamState is the per-stream protocol bookkeeping: which type URLs
// the client subscribed to, the nonce each type is awaiting, and the
// last version pushed per type.
type streamState struct {
	typesSeen   map[string]bool
	awaitingAck map[string]string
	lastSent    map[string]int64
}

func newStreamState() *streamState {
	return &streamState{
		typesSeen:   map[string]bool{},
		awaitingAck: map[string]string{},
		lastSent:    map[string]int64{},
	}
}

type adsServer struct {
	logrus.FieldLogger
	envoy_service_discovery_v3.UnimplementedAggregatedDiscoveryServiceServer

	provider    ResourceProvider
	tracker     *xds.Tracker
	broadcaster *xds.Broadcaster
	breaker     *CircuitBreaker
	connections xds.Counter
}

func (s *adsServer) StreamAggregatedResources(srv envoy_service_discovery_v3.AggregatedDiscoveryService_StreamAggregatedResourcesServer) error {
	return s.stream(srv)
}

// stream services one ADS connection. Two event sources feed the loop: a
// pump goroutine reading client requests, and the broadcaster signaling
// configuration changes.
func (s *adsServer) stream(st grpcStream) (err error) {
	log := s.WithField("connection", s.connections.Next())

	done := func(log *logrus.Entry, err error) error {
		if err == nil {
			log.Debug("stream terminated")
			return nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			log.Debug("stream terminated")
			return nil
		}
		if grpcStatus, ok := status.FromError(err); ok && grpcStatus.Code() == codes.Canceled {
			log.WithField("code", grpcStatus.Code()).Debug("stream terminated")
			return nil
		}
		log.WithError(err).Error("stream terminated")
		return err
	}

	handle, changes := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(handle)

	ctx := st.Context()
	requests := make(chan *envoy_service_discovery_v3.DiscoveryRequest)
	recvErr := make(chan error, 1)
	go func() {
		for {
			req, err := st.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	state := newStreamState()
	for {
		select {
		case <-ctx.Done():
			return done(log, nil)
		case err := <-recvErr:
			return done(log, err)
		case req := <-requests:
			if err := s.handleRequest(log, st, state, req); err != nil {
				return done(log, err)
			}
		case <-changes:
			if err := s.push(log, st, state); err != nil {
				return done(log, err)
			}
		}
	}
}

// handleRequest classifies one client request as initial, ACK, NACK or
// stale, per the state-of-the-world protocol.
func (s *adsServer) handleRequest(log *logrus.Entry, st grpcStream, state *streamState, req *envoy_service_discovery_v3.DiscoveryRequest) error {
	log = log.WithField("version_info", req.VersionInfo).
		WithField("response_nonce", req.ResponseNonce).
		WithField("type_url", req.TypeUrl)
	if req.Node != nil {
		log = log.WithField("node_id", req.Node.Id)
	}

	if !supportedTypeURLs[req.TypeUrl] {
		log.Error("unknown type URL requested")
		return status.Errorf(codes.InvalidArgument, "unknown type URL %q", req.TypeUrl)
	}

	switch {
	case req.ResponseNonce == "":
		// Initial subscription for this type URL.
		state.typesSeen[req.TypeUrl] = true
		log.Debug("stream subscription")
		return s.respond(log, st, state, req.TypeUrl)

	case state.awaitingAck[req.TypeUrl] == req.ResponseNonce:
		delete(state.awaitingAck, req.TypeUrl)
		if req.ErrorDetail != nil {
			// NACK: the client keeps its previous config; resending
			// the same rejected snapshot would only loop.
			log.WithField("code", codes.Code(req.ErrorDetail.Code)).
				WithField("message", req.ErrorDetail.Message).
				Warn("configuration rejected by client")
			return nil
		}
		log.Debug("configuration acknowledged")
		return nil

	default:
		// A response sent after this request was written, or a nonce
		// from a previous stream. Nothing to do.
		log.Debug("stale nonce, ignoring")
		return nil
	}
}

// push re-sends every subscribed type whose content is behind the
// current configuration version.
func (s *adsServer) push(log *logrus.Entry, st grpcStream, state *streamState) error {
	version := s.tracker.Version()
	for _, typeURL := range slices.Sorted(maps.Keys(state.typesSeen)) {
		if state.lastSent[typeURL] >= version {
			continue
		}
		if err := s.respond(log, st, state, typeURL); err != nil {
			return err
		}
	}
	return nil
}

// respond materializes and sends one response for a type URL.
func (s *adsServer) respond(log *logrus.Entry, st grpcStream, state *streamState, typeURL string) error {
	if s.breaker.IsOpen() {
		log.WithField("type_url", typeURL).Warn("circuit breaker open, refusing to serve configuration")
		return status.Error(codes.Unavailable, "configuration generation temporarily disabled after repeated failures")
	}

	version := s.tracker.Version()
	resources, err := s.provider.Resources(typeURL)
	if err != nil {
		s.breaker.RecordFailure()
		log.WithError(err).WithField("type_url", typeURL).Error("failed to materialize resources")
		return materializationStatus(err)
	}
	s.breaker.RecordSuccess()

	nonce := s.tracker.NextNonce()
	resp := &envoy_service_discovery_v3.DiscoveryResponse{
		VersionInfo: versionInfo(version),
		Resources:   resources,
		TypeUrl:     typeURL,
		Nonce:       nonce,
	}
	if err := st.Send(resp); err != nil {
		return err
	}

	state.awaitingAck[typeURL] = nonce
	state.lastSent[typeURL] = version
	log.WithField("type_url", typeURL).
		WithField("version_info", resp.VersionInfo).
		WithField("nonce", nonce).
		WithField("resource_count", len(resources)).
		Debug("response sent")
	return nil
}

func versionInfo(v int64) string {
	return strconv.FormatInt(v, 10)
}

// materializationStatus maps materialization failures onto gRPC codes.
func materializationStatus(err error) error {
	var (
		validationErr  *store.ValidationError
		dependencyErr  *store.DependencyError
		notFoundErr    *store.NotFoundError
		configErr      *envoy_v3.FilterConfigError
		unsupportedErr *envoy_v3.UnsupportedFilterTypeError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &configErr), errors.As(err, &unsupportedErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &dependencyErr):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.As(err, &notFoundErr):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
