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

// Package validation holds the input validators applied to admin-supplied
// resources before they are admitted to the store. Every check is a pure
// function returning a *FieldError so callers can surface the offending
// field without string matching.
package validation

import (
	"fmt"
	"net"
	"strings"
)

// Maximum name lengths per resource kind.
const (
	MaxRouteNameLength   = 100
	MaxClusterNameLength = 50
	MaxFilterNameLength  = 100

	// MaxHTTPMethodsPerRoute bounds the method list accepted on a route.
	MaxHTTPMethodsPerRoute = 10

	maxHostLength        = 253
	maxHostLabelLength   = 63
	maxHeaderNameLength  = 100
	maxHeaderValueLength = 8192
	minJWTSecretLength   = 32
	maxIssuerLength      = 100
)

// FieldError reports a single invalid field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func fieldErrorf(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ResourceName checks a resource identifier: non-empty, at most maxLen
// characters, alphanumerics plus '-', '_' and '.' only.
func ResourceName(field, name string, maxLen int) error {
	if name == "" {
		return fieldErrorf(field, "must not be empty")
	}
	if len(name) > maxLen {
		return fieldErrorf(field, "must be at most %d characters, got %d", maxLen, len(name))
	}
	for _, r := range name {
		if !isNameRune(r) {
			return fieldErrorf(field, "character %q not allowed, only alphanumerics, '-', '_' and '.'", r)
		}
	}
	return nil
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.':
		return true
	}
	return false
}

// Path checks a route match prefix: non-empty, must start with '/', no
// parent traversal, no empty segments, no control characters.
func Path(path string) error {
	if path == "" {
		return fieldErrorf("path", "must not be empty")
	}
	if !strings.HasPrefix(path, "/") {
		return fieldErrorf("path", "must start with '/'")
	}
	if strings.Contains(path, "..") {
		return fieldErrorf("path", "must not contain '..'")
	}
	if strings.Contains(path, "//") {
		return fieldErrorf("path", "must not contain '//'")
	}
	for _, r := range path {
		if r < 0x20 || r == 0x7f {
			return fieldErrorf("path", "must not contain control characters")
		}
	}
	return nil
}

// Host checks an upstream endpoint host. The value must be an IP address
// or a hostname of at most 253 characters whose labels are alphanumerics
// and hyphens, with no label starting or ending in a hyphen.
func Host(host string) error {
	if host == "" {
		return fieldErrorf("host", "must not be empty")
	}
	if len(host) > maxHostLength {
		return fieldErrorf("host", "must be at most %d characters, got %d", maxHostLength, len(host))
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return fieldErrorf("host", "must not contain empty labels")
		}
		if len(label) > maxHostLabelLength {
			return fieldErrorf("host", "label %q exceeds %d characters", label, maxHostLabelLength)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fieldErrorf("host", "label %q must not start or end with '-'", label)
		}
		for _, r := range label {
			if !isHostRune(r) {
				return fieldErrorf("host", "character %q not allowed in hostname", r)
			}
		}
	}
	return nil
}

func isHostRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		return true
	}
	return false
}

// Port checks a TCP port number.
func Port(port int) error {
	if port < 1 || port > 65535 {
		return fieldErrorf("port", "must be between 1 and 65535, got %d", port)
	}
	return nil
}

// HTTPMethod checks a single method against the configured allow-list.
// Comparison is case-insensitive; callers store the upper-cased form.
func HTTPMethod(method string, allowed []string) error {
	if method == "" {
		return fieldErrorf("http_methods", "method must not be empty")
	}
	for _, m := range allowed {
		if strings.EqualFold(method, m) {
			return nil
		}
	}
	return fieldErrorf("http_methods", "method %q is not supported, allowed: %s", method, strings.Join(allowed, ", "))
}

// HTTPMethods checks a route's full method list.
func HTTPMethods(methods, allowed []string) error {
	if len(methods) > MaxHTTPMethodsPerRoute {
		return fieldErrorf("http_methods", "at most %d methods allowed, got %d", MaxHTTPMethodsPerRoute, len(methods))
	}
	for _, m := range methods {
		if err := HTTPMethod(m, allowed); err != nil {
			return err
		}
	}
	return nil
}
