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

package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterWorkflow("order", "v1", func(Context, string) (string, error) { return "", nil },
		WorkflowRegistration{Timeout: time.Minute}))
	require.NoError(t, reg.RegisterWorkflow("order", "v2", func(Context) error { return nil }, WorkflowRegistration{}))
	require.NoError(t, reg.RegisterTask("charge", "v1", func(context.Context, int) error { return nil }, TaskRegistration{}))

	assert.Equal(t, []string{"order@v1", "order@v2"}, reg.Workflows())
	assert.Equal(t, []string{"charge@v1"}, reg.Tasks())
	assert.Equal(t, time.Minute, reg.WorkflowTimeout("order", "v1"))
	assert.Zero(t, reg.WorkflowTimeout("order", "v3"))

	_, err := reg.workflow("order", "v3")
	assert.ErrorIs(t, err, ErrWorkflowNotRegistered)
	_, err = reg.task("refund", "v1")
	assert.ErrorIs(t, err, ErrTaskNotRegistered)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	fn := func(context.Context) error { return nil }
	require.NoError(t, reg.RegisterTask("charge", "v1", fn, TaskRegistration{}))

	err := reg.RegisterTask("charge", "v1", fn, TaskRegistration{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "charge@v1 is already registered")
}

func TestRegistry_RejectsBadShapes(t *testing.T) {
	tests := []struct {
		name string
		fn   any
	}{
		{name: "nil", fn: nil},
		{name: "not a function", fn: 42},
		{name: "no context", fn: func(string) error { return nil }},
		{name: "two inputs", fn: func(context.Context, string, string) error { return nil }},
		{name: "no error", fn: func(context.Context) string { return "" }},
		{name: "variadic", fn: func(context.Context, ...string) error { return nil }},
		{name: "workflow context", fn: func(Context) error { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().RegisterTask("task", "v1", tt.fn, TaskRegistration{})
			assert.Error(t, err)
		})
	}

	err := NewRegistry().RegisterWorkflow("", "v1", func(Context) error { return nil }, WorkflowRegistration{})
	assert.Error(t, err)
}
