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

package main

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/projecthelmsman/helmsman/internal/admin"
	envoy_v3 "github.com/projecthelmsman/helmsman/internal/envoy/v3"
	"github.com/projecthelmsman/helmsman/internal/metrics"
	"github.com/projecthelmsman/helmsman/internal/store"
	"github.com/projecthelmsman/helmsman/internal/workgroup"
	"github.com/projecthelmsman/helmsman/internal/xds"
	xds_v3 "github.com/projecthelmsman/helmsman/internal/xds/v3"
	"github.com/projecthelmsman/helmsman/pkg/config"
)

// serveContext collects the serve subcommand's flags.
type serveContext struct {
	configFile    string
	resourcesFile string
	debug         bool
	xdsAddr       string
	xdsPort       int
}

func registerServe(app *kingpin.Application) (*kingpin.CmdClause, *serveContext) {
	serve := app.Command("serve", "Serve xDS API traffic.")

	ctx := &serveContext{}
	serve.Flag("config-path", "Path to base configuration.").Short('c').PlaceHolder("/path/to/file").StringVar(&ctx.configFile)
	serve.Flag("resources-path", "Path to a resource file applied at startup.").PlaceHolder("/path/to/file").StringVar(&ctx.resourcesFile)
	serve.Flag("debug", "Enable debug logging.").Short('d').BoolVar(&ctx.debug)
	serve.Flag("xds-address", "xDS gRPC API address.").PlaceHolder("<ipaddr>").StringVar(&ctx.xdsAddr)
	serve.Flag("xds-port", "xDS gRPC API port.").PlaceHolder("<port>").IntVar(&ctx.xdsPort)

	return serve, ctx
}

// parameters loads the configuration file, if any, and overlays the
// command line flags. Flags win.
func (ctx *serveContext) parameters() (*config.Parameters, error) {
	params := config.Defaults()

	if ctx.configFile != "" {
		parsed, err := config.ParseFile(ctx.configFile)
		if err != nil {
			return nil, err
		}
		params = *parsed
	}

	if ctx.debug {
		params.Debug = true
	}
	if ctx.xdsAddr != "" {
		params.Server.Address = ctx.xdsAddr
	}
	if ctx.xdsPort != 0 {
		params.Server.Port = ctx.xdsPort
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}

func doServe(log *logrus.Logger, ctx *serveContext) error {
	params, err := ctx.parameters()
	if err != nil {
		return err
	}
	if params.Debug {
		log.SetLevel(logrus.DebugLevel)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	filterRegistry := envoy_v3.NewRegistry(params.HTTPMethods)

	storeConfig := params.StoreConfig()
	storeConfig.FilterValidator = filterRegistry.Validate
	st := store.New(log, storeConfig)
	tracker := xds.NewTracker()
	broadcaster := xds.NewBroadcaster()
	manager := admin.NewManager(log, st, tracker, broadcaster, metrics.NewMetrics(registry))

	if ctx.resourcesFile != "" {
		if err := manager.ApplyFile(ctx.resourcesFile); err != nil {
			return err
		}
	}

	materializer := envoy_v3.NewMaterializer(log, st, filterRegistry, params.EnvoySettings())
	breaker := xds_v3.NewCircuitBreaker(params.CircuitBreaker.FailureThreshold, params.RecoveryInterval())

	var g workgroup.Group

	g.Add(func(stop <-chan struct{}) error {
		log := log.WithField("context", "xds")

		addr := net.JoinHostPort(params.Server.Address, strconv.Itoa(params.Server.Port))
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}

		grpcServer := xds.NewServer(log.Logger, registry)
		xds_v3.RegisterServer(
			xds_v3.NewServer(log, materializer, tracker, broadcaster, breaker),
			grpcServer,
		)

		go func() {
			<-stop
			grpcServer.GracefulStop()
		}()

		log.WithField("address", addr).Info("started xDS server")
		defer log.Info("stopped xDS server")
		return grpcServer.Serve(l)
	})

	g.Add(func(stop <-chan struct{}) error {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(c)

		select {
		case sig := <-c:
			log.WithField("signal", sig).Info("shutting down")
		case <-stop:
		}
		return nil
	})

	return g.Run()
}
