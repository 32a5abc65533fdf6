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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecthelmsman/helmsman/pkg/config"
)

func TestServeContextDefaults(t *testing.T) {
	ctx := &serveContext{}
	params, err := ctx.parameters()
	require.NoError(t, err)

	defaults := config.Defaults()
	assert.Equal(t, &defaults, params)
}

func TestServeContextFlagsWinOverConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helmsman.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: 127.0.0.1
  port: 19000
storage:
  max-routes: 25
`), 0o600))

	ctx := &serveContext{
		configFile: path,
		debug:      true,
		xdsPort:    20000,
	}
	params, err := ctx.parameters()
	require.NoError(t, err)

	assert.True(t, params.Debug)
	assert.Equal(t, "127.0.0.1", params.Server.Address)
	assert.Equal(t, 20000, params.Server.Port, "flag overrides the file")
	assert.Equal(t, 25, params.Storage.MaxRoutes)
}

func TestServeContextMissingConfigFile(t *testing.T) {
	ctx := &serveContext{configFile: filepath.Join(t.TempDir(), "absent.yaml")}
	_, err := ctx.parameters()
	require.Error(t, err)
}

func TestServeContextInvalidOverride(t *testing.T) {
	ctx := &serveContext{xdsPort: 70000}
	_, err := ctx.parameters()
	require.Error(t, err)
}
