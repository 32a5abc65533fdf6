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
	"strings"

	envoy_config_core_v3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	envoy_filter_http_lua_v3 "github.com/envoyproxy/go-control-plane/envoy/extensions/filters/http/lua/v3"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/projecthelmsman/helmsman/internal/protobuf"
	"github.com/projecthelmsman/helmsman/internal/store"
	"github.com/projecthelmsman/helmsman/internal/validation"
)

// headerToAdd is one parsed entry of a *_headers_to_add list. Entries
// arrive as {"header": {"key": ..., "value": ...}} documents.
type headerToAdd struct {
	key   string
	value string
}

// configHeaderList parses a *_headers_to_add list. The second return is
// false when the document is present but not a list of header entries of
// the expected shape.
func configHeaderList(cfg map[string]any, key string) ([]headerToAdd, bool) {
	raw, ok := cfg[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]headerToAdd, 0, len(raw))
	for _, entry := range raw {
		doc, ok := entry.(map[string]any)
		if !ok {
			return nil, false
		}
		header, ok := doc["header"].(map[string]any)
		if !ok || len(doc) != 1 {
			return nil, false
		}
		k, ok := header["key"].(string)
		if !ok {
			return nil, false
		}
		v, ok := header["value"].(string)
		if !ok || len(header) != 2 {
			return nil, false
		}
		out = append(out, headerToAdd{key: k, value: v})
	}
	return out, true
}

// headerManipulationStrategy materializes "header_manipulation" filters
// as a generated Lua script that adds and removes request and response
// headers. Every name and value is embedded as a Lua long-bracket string
// literal and must pass the Lua-safety validator first.
type headerManipulationStrategy struct{}

func (*headerManipulationStrategy) FilterType() string      { return FilterTypeHeaderManipulation }
func (*headerManipulationStrategy) EnvoyFilterName() string { return filterNameLua }

func (*headerManipulationStrategy) Validate(f *store.HTTPFilter) error {
	if err := rejectUnknownKeys(f,
		"request_headers_to_add", "request_headers_to_remove",
		"response_headers_to_add", "response_headers_to_remove"); err != nil {
		return err
	}

	operations := 0
	for _, key := range []string{"request_headers_to_add", "response_headers_to_add"} {
		if _, present := f.Config[key]; !present {
			continue
		}
		headers, ok := configHeaderList(f.Config, key)
		if !ok {
			return configErrorf(f.Name, key, `must be a list of {"header": {"key": ..., "value": ...}} entries`)
		}
		for _, h := range headers {
			if err := validation.HeaderName(h.key); err != nil {
				return configErrorf(f.Name, key, "%v", err)
			}
			if err := validation.HeaderValue(h.value); err != nil {
				return configErrorf(f.Name, key, "%v", err)
			}
			if err := validation.LuaSafe(key, h.key); err != nil {
				return configErrorf(f.Name, key, "%v", err)
			}
			if err := validation.LuaSafe(key, h.value); err != nil {
				return configErrorf(f.Name, key, "%v", err)
			}
			operations++
		}
	}
	for _, key := range []string{"request_headers_to_remove", "response_headers_to_remove"} {
		if _, present := f.Config[key]; !present {
			continue
		}
		names, ok := configStringSlice(f.Config, key)
		if !ok {
			return configErrorf(f.Name, key, "must be a list of header names")
		}
		for _, name := range names {
			if err := validation.HeaderName(name); err != nil {
				return configErrorf(f.Name, key, "%v", err)
			}
			if err := validation.LuaSafe(key, name); err != nil {
				return configErrorf(f.Name, key, "%v", err)
			}
			operations++
		}
	}
	if operations == 0 {
		return configErrorf(f.Name, "config", "at least one header operation required")
	}
	return nil
}

func (*headerManipulationStrategy) Convert(f *store.HTTPFilter) (*anypb.Any, error) {
	requestAdd, _ := configHeaderList(f.Config, "request_headers_to_add")
	requestRemove, _ := configStringSlice(f.Config, "request_headers_to_remove")
	responseAdd, _ := configHeaderList(f.Config, "response_headers_to_add")
	responseRemove, _ := configStringSlice(f.Config, "response_headers_to_remove")

	var script strings.Builder
	writeHandler(&script, "envoy_on_request", "request_handle", requestAdd, requestRemove)
	writeHandler(&script, "envoy_on_response", "response_handle", responseAdd, responseRemove)

	return protobuf.MarshalAny(&envoy_filter_http_lua_v3.Lua{
		DefaultSourceCode: &envoy_config_core_v3.DataSource{
			Specifier: &envoy_config_core_v3.DataSource_InlineString{
				InlineString: script.String(),
			},
		},
	})
}

// writeHandler emits one Lua handler function. Header adds come out in
// declaration order.
func writeHandler(script *strings.Builder, function, handle string, add []headerToAdd, remove []string) {
	if len(add) == 0 && len(remove) == 0 {
		return
	}

	script.WriteString("function " + function + "(" + handle + ")\n")
	for _, h := range add {
		script.WriteString("  " + handle + ":headers():add(" + luaStringLiteral(h.key) + ", " + luaStringLiteral(h.value) + ")\n")
	}
	for _, name := range remove {
		script.WriteString("  " + handle + ":headers():remove(" + luaStringLiteral(name) + ")\n")
	}
	script.WriteString("end\n")
}

// luaStringLiteral renders s as a Lua long-bracket literal, picking the
// smallest bracket level whose closing sequence cannot occur inside the
// payload. The trailing "]" probe also catches values ending in a bracket
// that would otherwise merge with the closing sequence.
func luaStringLiteral(s string) string {
	level := 0
	for {
		closing := "]" + strings.Repeat("=", level) + "]"
		if !strings.Contains(s+"]", closing) {
			break
		}
		level++
	}
	eq := strings.Repeat("=", level)
	return "[" + eq + "[" + s + "]" + eq + "]"
}
