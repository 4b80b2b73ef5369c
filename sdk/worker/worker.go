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
	"log/slog"
	"time"

	"github.com/DeluxeOwl/chronicle/event"

	"github.com/ngnhng/replayflow/api/serde"
	"github.com/ngnhng/replayflow/sdk/internal"
)

type (
	// Options contains configuration for creating a new Worker.
	Options struct {
		// Service is the execution service shared with clients.
		Service internal.Service
		// EventLog stores run histories. Workers that decide the same runs
		// must share it. Defaults to an in-memory log.
		EventLog event.Log
		Serde    serde.BinarySerde
		Logger   *slog.Logger
		// TaskConcurrency caps the task handlers running at once.
		TaskConcurrency int
		// ConflictRetries bounds how often a decision is retried after
		// another worker appended to the same history.
		ConflictRetries uint
		// TaskTimeout bounds task attempts that neither the dispatch nor the
		// registration bounds. Zero leaves them unbounded.
		TaskTimeout time.Duration
	}

	// WorkflowOptions are the defaults of a registered workflow.
	WorkflowOptions struct {
		// Timeout bounds every run that does not set its own.
		Timeout time.Duration
	}

	// TaskOptions are the defaults of a registered task.
	TaskOptions struct {
		// Timeout bounds one attempt of a dispatch that passes none.
		Timeout time.Duration
	}
)

// Worker hosts workflow and task handlers for one execution service.
type Worker struct {
	opts     Options
	registry *internal.Registry
}

// New creates a worker. Register handlers before calling Run.
func New(opts Options) (*Worker, error) {
	if opts.Service == nil {
		return nil, internal.ErrNoService
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Worker{opts: opts, registry: internal.NewRegistry()}, nil
}

// RegisterWorkflow registers fn as name@version. fn has the shape
// func(workflow.Context[, In]) (Out, error).
func (w *Worker) RegisterWorkflow(name, version string, fn any, opts WorkflowOptions) error {
	err := w.registry.RegisterWorkflow(name, version, fn, internal.WorkflowRegistration{Timeout: opts.Timeout})
	if err != nil {
		return NewRegistrationError(name, version, err)
	}
	w.opts.Logger.Debug("registered workflow", "name", name, "version", version)
	return nil
}

// RegisterTask registers fn as name@version. fn has the shape
// func(context.Context[, In]) (Out, error).
func (w *Worker) RegisterTask(name, version string, fn any, opts TaskOptions) error {
	err := w.registry.RegisterTask(name, version, fn, internal.TaskRegistration{DefaultTimeout: opts.Timeout})
	if err != nil {
		return NewRegistrationError(name, version, err)
	}
	w.opts.Logger.Debug("registered task", "name", name, "version", version)
	return nil
}

// Run processes decisions and tasks until ctx is canceled or an error occurs.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.registry.Workflows()) == 0 && len(w.registry.Tasks()) == 0 {
		return ErrNothingRegistered
	}
	rt, err := internal.NewRuntime(internal.RuntimeOptions{
		Service:         w.opts.Service,
		Registry:        w.registry,
		EventLog:        w.opts.EventLog,
		Serde:           w.opts.Serde,
		Logger:          w.opts.Logger,
		TaskConcurrency: w.opts.TaskConcurrency,
		ConflictRetries: w.opts.ConflictRetries,
		TaskTimeout:     w.opts.TaskTimeout,
	})
	if err != nil {
		return err
	}
	w.opts.Logger.Info("worker started",
		"workflows", w.registry.Workflows(),
		"tasks", w.registry.Tasks(),
	)
	return rt.Run(ctx)
}
