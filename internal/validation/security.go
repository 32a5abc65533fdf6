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

package validation

import (
	"strings"
)

// luaDenied lists substrings that must not appear (case-insensitively) in
// any value that will be embedded into a generated Lua script. The list
// covers script/OS escapes, environment mutation, long-bracket and comment
// sequences that could terminate the surrounding literal, and
// newline-prefixed keywords that would begin a new statement.
var luaDenied = []string{
	"os.execute",
	"io.popen",
	"loadstring",
	"load(",
	"dofile",
	"loadfile",
	"debug.",
	"package.",
	"require(",
	"_g[",
	"getfenv",
	"setfenv",
	"]]",
	"[[",
	"--]]",
	"]]--",
	"/*",
	"*/",
	"\x00",
	"\\0",
	"\nend",
	"\nfunction",
	"\nlocal",
	"\nif",
	"\nfor",
	"\nwhile",
	"\nrepeat",
	"\ndo",
	"\nreturn",
}

// LuaSafe rejects values that could break out of a generated Lua string
// literal or smuggle statements into the script.
func LuaSafe(field, value string) error {
	lowered := strings.ToLower(value)
	for _, tok := range luaDenied {
		if strings.Contains(lowered, tok) {
			return fieldErrorf(field, "contains disallowed sequence %q", strings.TrimSpace(tok))
		}
	}
	control := 0
	for _, r := range value {
		if (r < 0x20 && r != '\t' && r != '\n' && r != '\r') || r == 0x7f {
			control++
		}
	}
	if control > 2 {
		return fieldErrorf(field, "contains too many control characters")
	}
	return nil
}

// HeaderName checks an HTTP header name: 1..100 characters, alphanumerics
// plus '-', '_' and '.'.
func HeaderName(name string) error {
	if name == "" {
		return fieldErrorf("header_name", "must not be empty")
	}
	if len(name) > maxHeaderNameLength {
		return fieldErrorf("header_name", "must be at most %d characters, got %d", maxHeaderNameLength, len(name))
	}
	for _, r := range name {
		if !isNameRune(r) {
			return fieldErrorf("header_name", "character %q not allowed", r)
		}
	}
	return nil
}

// HeaderValue checks an HTTP header value: up to 8192 characters, no
// control characters other than horizontal tab. Empty values are valid.
func HeaderValue(value string) error {
	if len(value) > maxHeaderValueLength {
		return fieldErrorf("header_value", "must be at most %d characters, got %d", maxHeaderValueLength, len(value))
	}
	for _, r := range value {
		if (r < 0x20 && r != '\t') || r == 0x7f {
			return fieldErrorf("header_value", "must not contain control characters")
		}
	}
	return nil
}

// JWTSecret checks an HMAC signing secret: at least 32 characters, not a
// single repeated character, and free of giveaway placeholder words.
func JWTSecret(secret string) error {
	if len(secret) < minJWTSecretLength {
		return fieldErrorf("jwt_secret", "must be at least %d characters, got %d", minJWTSecretLength, len(secret))
	}
	lowered := strings.ToLower(secret)
	for _, weak := range []string{"secret", "password"} {
		if strings.Contains(lowered, weak) {
			return fieldErrorf("jwt_secret", "must not contain the word %q", weak)
		}
	}
	if strings.Count(secret, secret[:1]) == len(secret) {
		return fieldErrorf("jwt_secret", "must not be a single repeated character")
	}
	return nil
}

// Issuer checks a JWT issuer identifier.
func Issuer(issuer string) error {
	if issuer == "" {
		return fieldErrorf("jwt_issuer", "must not be empty")
	}
	if len(issuer) > maxIssuerLength {
		return fieldErrorf("jwt_issuer", "must be at most %d characters, got %d", maxIssuerLength, len(issuer))
	}
	return nil
}
