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
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/api/serde"
)

var _ Client = (*clientImpl)(nil)

type (
	Client interface {
		// ExecuteWorkflow starts a run of name@version and returns a handle to it.
		ExecuteWorkflow(ctx context.Context, opts StartWorkflowOptions, name, version string, input any) (WorkflowRun, error)
		// GetWorkflow returns a handle to an existing run.
		GetWorkflow(runID api.RunID) WorkflowRun
	}

	ClientOptions struct {
		Service Service
		Serde   serde.BinarySerde
		Logger  *slog.Logger
	}

	StartWorkflowOptions struct {
		// ID names the run. A fresh UUIDv7 is used when empty. Starting the
		// same ID twice yields one run.
		ID api.RunID
		// Timeout bounds the run. Zero defers to the registered workflow timeout.
		Timeout time.Duration
	}

	// WorkflowRun is a handle to one run.
	WorkflowRun interface {
		ID() api.RunID
		// Get blocks until the run finishes and decodes its result into valuePtr.
		Get(ctx context.Context, valuePtr any) error
	}
)

// WorkflowRunError is the terminal failure of a run as seen by a client.
type WorkflowRunError struct {
	RunID   api.RunID
	Kind    api.FailureKind
	Message string
}

func (e *WorkflowRunError) Error() string {
	return fmt.Sprintf("run %s failed (%s): %s", e.RunID, e.Kind, e.Message)
}

type clientImpl struct {
	service Service
	serde   serde.BinarySerde
	logger  *slog.Logger
}

func NewClient(options ClientOptions) (Client, error) {
	if options.Service == nil {
		return nil, fmt.Errorf("client options must include an execution service")
	}
	s := options.Serde
	if s == nil {
		s = &serde.MsgpackSerde{}
	}
	return &clientImpl{
		service: options.Service,
		serde:   s,
		logger:  defaultLogger(options.Logger),
	}, nil
}

func (c *clientImpl) ExecuteWorkflow(ctx context.Context, opts StartWorkflowOptions, name, version string, input any) (WorkflowRun, error) {
	runID := opts.ID
	if runID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		runID = api.RunID(id.String())
	}

	payload, err := c.serde.SerializeBinary(input)
	if err != nil {
		return nil, fmt.Errorf("encode workflow input: %w", err)
	}

	err = c.service.Report(ctx, &api.Outcome{
		Kind:  api.OutcomeRunRequested,
		RunID: runID,
		Start: &api.StartRequest{
			RunID:     runID,
			Name:      name,
			Version:   version,
			Input:     payload,
			TimeoutMs: opts.Timeout.Milliseconds(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", api.TaskKey(name, version), err)
	}
	c.logger.Info("run requested", "run_id", runID, "workflow", api.TaskKey(name, version))
	return c.GetWorkflow(runID), nil
}

func (c *clientImpl) GetWorkflow(runID api.RunID) WorkflowRun {
	return &workflowRun{client: c, id: runID}
}

type workflowRun struct {
	client *clientImpl
	id     api.RunID
}

func (r *workflowRun) ID() api.RunID { return r.id }

func (r *workflowRun) Get(ctx context.Context, valuePtr any) error {
	res, err := r.client.service.AwaitResult(ctx, r.id)
	if err != nil {
		return fmt.Errorf("await run %s: %w", r.id, err)
	}
	if res.Failed() {
		return &WorkflowRunError{RunID: r.id, Kind: res.Kind, Message: res.Error}
	}
	if valuePtr == nil || len(res.Result) == 0 {
		return nil
	}
	return r.client.serde.DeserializeBinary(res.Result, valuePtr)
}
