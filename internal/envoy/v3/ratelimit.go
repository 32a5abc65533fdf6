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
	"time"

	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_filter_http_local_ratelimit_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/local_ratelimit/v3"
	envoy_type_v3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
	"github.com/projecthelmsman/helmsman/internal/store"
)

// fillIntervals maps rate limit time units to token bucket fill
// intervals.
var fillIntervals = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// maxRequestsPerUnit bounds the sustained rate a filter may configure.
const maxRequestsPerUnit = 1_000_000

// rateLimitStrategy materializes "rate_limit" filters as Envoy local
// rate limits. The token bucket holds `burst_size` tokens (default: the
// rate) and refills `requests_per_unit` tokens every time unit.
type rateLimitStrategy struct{}

func (*rateLimitStrategy) FilterType() string      { return FilterTypeRateLimit }
func (*rateLimitStrategy) EnvoyFilterName() string { return filterNameLocalRateLimit }

func (*rateLimitStrategy) Validate(f *store.HTTPFilter) error {
	if err := rejectUnknownKeys(f, "requests_per_unit", "time_unit", "burst_size"); err != nil {
		return err
	}

	rpu, ok := configInt(f.Config, "requests_per_unit")
	if !ok {
		return configErrorf(f.Name, "requests_per_unit", "must be an integer")
	}
	if rpu < 1 || rpu > maxRequestsPerUnit {
		return configErrorf(f.Name, "requests_per_unit", "must be between 1 and 1,000,000, got %d", rpu)
	}

	unit, ok := configString(f.Config, "time_unit")
	if !ok {
		return configErrorf(f.Name, "time_unit", "must be a string")
	}
	if _, ok := fillIntervals[unit]; !ok {
		return configErrorf(f.Name, "time_unit", "must be one of second, minute, hour, day; got %q", unit)
	}

	if _, present := f.Config["burst_size"]; present {
		burst, ok := configInt(f.Config, "burst_size")
		if !ok {
			return configErrorf(f.Name, "burst_size", "must be an integer")
		}
		// Burst is the bucket's peak capacity, which cannot sit below
		// the sustained refill rate.
		if burst < rpu {
			return configErrorf(f.Name, "burst_size", "must be at least requests_per_unit (%d), got %d", rpu, burst)
		}
	}
	return nil
}

func (*rateLimitStrategy) Convert(f *store.HTTPFilter) (*anypb.Any, error) {
	rpu, _ := configInt(f.Config, "requests_per_unit")
	unit, _ := configString(f.Config, "time_unit")
	burst, ok := configInt(f.Config, "burst_size")
	if !ok {
		burst = rpu
	}

	hundred := func(runtimeKey string) *envoy_config_core_v3.RuntimeFractionalPercent {
		return &envoy_config_core_v3.RuntimeFractionalPercent{
			DefaultValue: &envoy_type_v3.FractionalPercent{
				Numerator:   100,
				Denominator: envoy_type_v3.FractionalPercent_HUNDRED,
			},
			RuntimeKey: runtimeKey,
		}
	}

	return protobuf.MarshalAny(&envoy_filter_http_local_ratelimit_v3.LocalRateLimit{
		StatPrefix: "rate_limit_" + f.Name,
		TokenBucket: &envoy_type_v3.TokenBucket{
			MaxTokens:     uint32(burst),
			TokensPerFill: protobuf.UInt32(uint32(rpu)),
			FillInterval:  protobuf.Duration(fillIntervals[unit]),
		},
		FilterEnabled:  hundred("local_rate_limit_enabled"),
		FilterEnforced: hundred("local_rate_limit_enforced"),
	})
}
