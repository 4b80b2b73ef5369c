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
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ngnhng/replayflow/api"
)

type (
	// TaskRegistration carries the defaults of a registered task handler.
	TaskRegistration struct {
		// DefaultTimeout bounds one attempt when the dispatch passes no timeout.
		DefaultTimeout time.Duration
	}

	// WorkflowRegistration carries the defaults of a registered workflow.
	WorkflowRegistration struct {
		// Timeout bounds the whole run. Zero means no deadline.
		Timeout time.Duration
	}

	taskEntry struct {
		name, version string
		handler       *handlerShape
		opts          TaskRegistration
	}

	workflowEntry struct {
		name, version string
		handler       *handlerShape
		opts          WorkflowRegistration
	}
)

func newInMemoryRegistry[T any]() *hashMapRegistry[T] {
	return &hashMapRegistry[T]{
		entries: make(map[string]T),
	}
}

// hashMapRegistry is a registration table keyed by name@version.
type hashMapRegistry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func (m *hashMapRegistry[T]) get(name, version string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[api.TaskKey(name, version)]
	return entry, ok
}

func (m *hashMapRegistry[T]) set(name, version string, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := api.TaskKey(name, version)
	if _, ok := m.entries[k]; ok {
		return fmt.Errorf("%s is already registered", k)
	}
	m.entries[k] = v
	return nil
}

func (m *hashMapRegistry[T]) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *hashMapRegistry[T]) keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Registry holds the workflow and task tables of one process.
type Registry struct {
	workflows *hashMapRegistry[*workflowEntry]
	tasks     *hashMapRegistry[*taskEntry]
}

func NewRegistry() *Registry {
	return &Registry{
		workflows: newInMemoryRegistry[*workflowEntry](),
		tasks:     newInMemoryRegistry[*taskEntry](),
	}
}

// RegisterWorkflow adds fn under name@version. fn must have the shape
// func(Context[, In]) ([Out,] error).
func (r *Registry) RegisterWorkflow(name, version string, fn any, opts WorkflowRegistration) error {
	if name == "" {
		return fmt.Errorf("workflow name must not be empty")
	}
	shape, err := newHandlerShape(fn, workflowContextType)
	if err != nil {
		return fmt.Errorf("workflow %s: %w", api.TaskKey(name, version), err)
	}
	return r.workflows.set(name, version, &workflowEntry{name: name, version: version, handler: shape, opts: opts})
}

// RegisterTask adds fn under name@version. fn must have the shape
// func(context.Context[, In]) ([Out,] error).
func (r *Registry) RegisterTask(name, version string, fn any, opts TaskRegistration) error {
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}
	shape, err := newHandlerShape(fn, contextType)
	if err != nil {
		return fmt.Errorf("task %s: %w", api.TaskKey(name, version), err)
	}
	return r.tasks.set(name, version, &taskEntry{name: name, version: version, handler: shape, opts: opts})
}

func (r *Registry) workflow(name, version string) (*workflowEntry, error) {
	entry, ok := r.workflows.get(name, version)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotRegistered, api.TaskKey(name, version))
	}
	return entry, nil
}

func (r *Registry) task(name, version string) (*taskEntry, error) {
	entry, ok := r.tasks.get(name, version)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotRegistered, api.TaskKey(name, version))
	}
	return entry, nil
}

// WorkflowTimeout returns the registered run timeout of a workflow, or zero.
func (r *Registry) WorkflowTimeout(name, version string) time.Duration {
	if entry, ok := r.workflows.get(name, version); ok {
		return entry.opts.Timeout
	}
	return 0
}

func (r *Registry) Workflows() []string { return r.workflows.keys() }
func (r *Registry) Tasks() []string     { return r.tasks.keys() }
