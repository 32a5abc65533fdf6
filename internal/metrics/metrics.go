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

// Package metrics provides Prometheus metrics for the control plane.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/projecthelmsman/helmsman/internal/store"
)

// Metric names.
const (
	ResourcesGauge   = "helmsman_store_resources"
	LimitGauge       = "helmsman_store_resource_limit"
	UtilizationGauge = "helmsman_store_utilization_percent"
	VersionGauge     = "helmsman_config_version"
)

// Metrics holds the control plane metric vectors.
type Metrics struct {
	resources   *prometheus.GaugeVec
	limit       *prometheus.GaugeVec
	utilization *prometheus.GaugeVec
	version     prometheus.Gauge
}

// NewMetrics creates and registers the metric vectors.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		resources: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: ResourcesGauge,
			Help: "Number of resources held in the store.",
		}, []string{"kind"}),
		limit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: LimitGauge,
			Help: "Configured capacity limit per resource kind.",
		}, []string{"kind"}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: UtilizationGauge,
			Help: "Store occupancy as a percentage of the capacity limit.",
		}, []string{"kind"}),
		version: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: VersionGauge,
			Help: "Current configuration version.",
		}),
	}
	registry.MustRegister(m.resources, m.limit, m.utilization, m.version)
	return m
}

// SetCapacity records store occupancy for one resource kind.
func (m *Metrics) SetCapacity(info store.CapacityInfo) {
	kind := string(info.Kind)
	m.resources.WithLabelValues(kind).Set(float64(info.Current))
	m.limit.WithLabelValues(kind).Set(float64(info.Limit))
	m.utilization.WithLabelValues(kind).Set(info.Utilization)
}

// SetVersion records the current configuration version.
func (m *Metrics) SetVersion(version int64) {
	m.version.Set(float64(version))
}
