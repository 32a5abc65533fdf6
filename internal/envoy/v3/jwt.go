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
	"encoding/base64"
	"fmt"

	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_config_route_v3 "github.com/envoyproxy/go-control-plane/envoy/config/route/v3"
	envoy_filter_http_jwt_authn_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/jwt_authn/v3"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
	"github.com/projecthelmsman/helmsman/internal/store"
	"github.com/projecthelmsman/helmsman/internal/validation"
)

// jwtCacheSize bounds the per-filter cache of verified tokens.
const jwtCacheSize = 1000

// jwtAuthnStrategy materializes "authentication" filters as Envoy JWT
// authentication with an inline symmetric JWKS built from the configured
// HMAC secret. Every request path requires a valid token.
type jwtAuthnStrategy struct{}

func (*jwtAuthnStrategy) FilterType() string      { return FilterTypeAuthentication }
func (*jwtAuthnStrategy) EnvoyFilterName() string { return filterNameJWTAuthn }

func (*jwtAuthnStrategy) Validate(f *store.HTTPFilter) error {
	if err := rejectUnknownKeys(f, "jwt_issuer", "jwt_secret"); err != nil {
		return err
	}

	issuer, ok := configString(f.Config, "jwt_issuer")
	if !ok {
		return configErrorf(f.Name, "jwt_issuer", "must be a string")
	}
	if err := validation.Issuer(issuer); err != nil {
		return configErrorf(f.Name, "jwt_issuer", "%v", err)
	}

	secret, ok := configString(f.Config, "jwt_secret")
	if !ok {
		return configErrorf(f.Name, "jwt_secret", "must be a string")
	}
	if err := validation.JWTSecret(secret); err != nil {
		return configErrorf(f.Name, "jwt_secret", "%v", err)
	}
	return nil
}

func (*jwtAuthnStrategy) Convert(f *store.HTTPFilter) (*anypb.Any, error) {
	issuer, _ := configString(f.Config, "jwt_issuer")
	secret, _ := configString(f.Config, "jwt_secret")

	providerName := f.Name + "_provider"
	jwks := fmt.Sprintf(`{"keys":[{"kty":"oct","k":"%s"}]}`, base64.StdEncoding.EncodeToString([]byte(secret)))

	return protobuf.MarshalAny(&envoy_filter_http_jwt_authn_v3.JwtAuthentication{
		Providers: map[string]*envoy_filter_http_jwt_authn_v3.JwtProvider{
			providerName: {
				Issuer: issuer,
				JwksSourceSpecifier: &envoy_filter_http_jwt_authn_v3.JwtProvider_LocalJwks{
					LocalJwks: &envoy_config_core_v3.DataSource{
						Specifier: &envoy_config_core_v3.DataSource_InlineString{
							InlineString: jwks,
						},
					},
				},
				JwtCacheConfig: &envoy_filter_http_jwt_authn_v3.JwtCacheConfig{
					JwtCacheSize: jwtCacheSize,
				},
			},
		},
		Rules: []*envoy_filter_http_jwt_authn_v3.RequirementRule{{
			Match: &envoy_config_route_v3.RouteMatch{
				PathSpecifier: &envoy_config_route_v3.RouteMatch_Prefix{Prefix: "/"},
			},
			RequirementType: &envoy_filter_http_jwt_authn_v3.RequirementRule_Requires{
				Requires: &envoy_filter_http_jwt_authn_v3.JwtRequirement{
					RequiresType: &envoy_filter_http_jwt_authn_v3.JwtRequirement_ProviderName{
						ProviderName: providerName,
					},
				},
			},
		}},
	})
}
