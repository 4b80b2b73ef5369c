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

package client

import (
	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/sdk/internal"
)

// RunID names one workflow run.
type RunID = api.RunID

// Client is the interface for starting workflow runs and reading their results.
//
// Example:
//
//	c, err := client.NewClient(client.Options{Service: svc})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{}, "checkout", "v1", order)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	var receipt Receipt
//	if err := run.Get(ctx, &receipt); err != nil {
//		log.Fatal(err)
//	}
type Client = internal.Client

// Options contains configuration for creating a new Client.
type Options = internal.ClientOptions

// StartWorkflowOptions configures one run.
type StartWorkflowOptions = internal.StartWorkflowOptions

// WorkflowRun is a handle to a started run.
type WorkflowRun = internal.WorkflowRun

// NewClient creates a new Client with the provided Options.
//
// Returns an error if Options.Service is nil.
func NewClient(options Options) (Client, error) {
	return internal.NewClient(options)
}
