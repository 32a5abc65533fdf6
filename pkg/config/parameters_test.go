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

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	conf, err := Parse(strings.NewReader(""))
	require.NoError(t, err)

	defaults := Defaults()
	assert.Equal(t, &defaults, conf)
	require.NoError(t, conf.Validate())
}

func TestParseOverrides(t *testing.T) {
	conf, err := Parse(strings.NewReader(`
debug: true
server:
  port: 19000
storage:
  max-routes: 10
http-methods:
  - get
  - post
envoy:
  listener-port: 8080
  connect-timeout: 250ms
circuit-breaker:
  failure-threshold: 2
  recovery-interval: 5s
`))
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.True(t, conf.Debug)
	assert.Equal(t, 19000, conf.Server.Port)
	assert.Equal(t, "0.0.0.0", conf.Server.Address, "unset fields keep their defaults")
	assert.Equal(t, 10, conf.Storage.MaxRoutes)
	assert.Equal(t, 500, conf.Storage.MaxClusters)
	assert.Equal(t, []string{"GET", "POST"}, conf.HTTPMethods, "methods are canonicalized to uppercase")
	assert.Equal(t, 8080, conf.Envoy.ListenerPort)
	assert.Equal(t, 2, conf.CircuitBreaker.FailureThreshold)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("not-a-real-field: true\n"))
	require.Error(t, err)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse(strings.NewReader("debug: [\n"))
	require.Error(t, err)
}

func TestParametersValidation(t *testing.T) {
	tests := map[string]func(*Parameters){
		"bad server address":         func(p *Parameters) { p.Server.Address = "nowhere" },
		"server port zero":           func(p *Parameters) { p.Server.Port = 0 },
		"server port out of range":   func(p *Parameters) { p.Server.Port = 70000 },
		"zero route limit":           func(p *Parameters) { p.Storage.MaxRoutes = 0 },
		"negative cluster limit":     func(p *Parameters) { p.Storage.MaxClusters = -1 },
		"no http methods":            func(p *Parameters) { p.HTTPMethods = nil },
		"unknown filter type":        func(p *Parameters) { p.Filters.Types = []FilterType{"traffic_shaping"} },
		"order not in types":         func(p *Parameters) { p.Filters.Types = []FilterType{CORSFilter} },
		"empty route config name":    func(p *Parameters) { p.Envoy.RouteConfigName = " " },
		"no domains":                 func(p *Parameters) { p.Envoy.Domains = nil },
		"bad listener address":       func(p *Parameters) { p.Envoy.ListenerAddress = "localhost" },
		"listener port out of range": func(p *Parameters) { p.Envoy.ListenerPort = 0 },
		"unparseable timeout":        func(p *Parameters) { p.Envoy.ConnectTimeout = "fast" },
		"negative timeout":           func(p *Parameters) { p.Envoy.ConnectTimeout = "-1s" },
		"zero failure threshold":     func(p *Parameters) { p.CircuitBreaker.FailureThreshold = 0 },
		"bad recovery interval":      func(p *Parameters) { p.CircuitBreaker.RecoveryInterval = "soon" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			conf := Defaults()
			mutate(&conf)
			require.Error(t, conf.Validate())
		})
	}
}

func TestStoreConfig(t *testing.T) {
	conf := Defaults()
	conf.Storage.MaxRoutes = 7
	conf.Storage.RejectOnCapacity = false
	conf.Filters.Types = []FilterType{CORSFilter, RateLimitFilter}

	sc := conf.StoreConfig()
	assert.Equal(t, 7, sc.Limits.MaxRoutes)
	assert.False(t, sc.RejectOnCapacity)
	assert.Equal(t, []string{"cors", "rate_limit"}, sc.FilterTypes)
	assert.Equal(t, conf.HTTPMethods, sc.HTTPMethods)
}

func TestEnvoySettings(t *testing.T) {
	conf := Defaults()
	conf.Envoy.ListenerPort = 9090
	conf.Envoy.ConnectTimeout = "2s"
	conf.Filters.Order = []FilterType{CORSFilter, RateLimitFilter}

	settings := conf.EnvoySettings()
	assert.Equal(t, "local_route", settings.RouteConfigName)
	assert.Equal(t, 9090, settings.ListenerPort)
	assert.Equal(t, 2*time.Second, settings.ConnectTimeout)
	assert.Equal(t, []string{"cors", "rate_limit"}, settings.FilterOrder)
}

func TestRecoveryInterval(t *testing.T) {
	conf := Defaults()
	assert.Equal(t, 30*time.Second, conf.RecoveryInterval())
}
