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

package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/replayflow/internal/service/memory"
	"github.com/ngnhng/replayflow/sdk/internal"
)

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, internal.ErrNoService)
}

func TestWorker_RegistrationErrors(t *testing.T) {
	w, err := New(Options{Service: memory.New(memory.Options{})})
	require.NoError(t, err)

	err = w.RegisterTask("charge", "v1", "not a function", TaskOptions{})
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "charge", regErr.Name)
	assert.Equal(t, "v1", regErr.Version)

	require.NoError(t, w.RegisterWorkflow("checkout", "v1", func(internal.Context) error { return nil }, WorkflowOptions{}))
	err = w.RegisterWorkflow("checkout", "v1", func(internal.Context) error { return nil }, WorkflowOptions{})
	assert.ErrorContains(t, err, "failed to register checkout@v1")
}

func TestWorker_RunNeedsRegistrations(t *testing.T) {
	w, err := New(Options{Service: memory.New(memory.Options{})})
	require.NoError(t, err)
	assert.ErrorIs(t, w.Run(context.Background()), ErrNothingRegistered)
}
