// Copyright 2025 Nguyen Nhat Nguyen
//
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

package service

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/replayflow/api/serde"
	"github.com/ngnhng/replayflow/sdk/config"
)

func TestOpenMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Serde = "json"
	cfg.History.Backend = "sqlite"
	cfg.History.SQLitePath = filepath.Join(t.TempDir(), "history.db")

	stack, err := OpenMemory(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, stack.Close()) })

	assert.NotNil(t, stack.Service)
	assert.NotNil(t, stack.History)
	assert.IsType(t, &serde.JsonSerde{}, stack.Serde)
	assert.NoError(t, stack.ServeTimers(t.Context()), "the in-memory service fires its own timers")
}

func TestOpenMemory_Errors(t *testing.T) {
	cfg := config.Default()
	cfg.Serde = "xml"
	_, err := OpenMemory(&cfg, nil)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.History.Backend = "nats"
	_, err = OpenMemory(&cfg, nil)
	assert.ErrorContains(t, err, "needs a connection")
}
