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

package workflow

import (
	"github.com/ngnhng/replayflow/sdk/internal"
)

// TaskOptions configures the dispatches made with a context.
//
// Example:
//
//	ctx = workflow.WithTaskOptions(ctx, workflow.TaskOptions{
//		Timeout: 15 * time.Second,
//		RetryPolicy: &workflow.RetryPolicy{
//			InitialInterval:    2 * time.Second,
//			BackoffCoefficient: 2.0,
//			MaximumInterval:    30 * time.Second,
//			MaximumAttempts:    5,
//		},
//	})
type TaskOptions = internal.TaskOptions

// RetryPolicy defines how a dispatched task is retried on failure.
//
// The wait before re-issuing after failed attempt k is
// min(InitialInterval * BackoffCoefficient^(k-1), MaximumInterval). Retries stop when:
//   - MaximumAttempts is reached
//   - the failure type is in NonRetryableErrorTypes
//   - the task returned a non-retryable error
type RetryPolicy = internal.RetryPolicy

func WithTaskOptions(ctx Context, opts TaskOptions) Context {
	return internal.WithTaskOptions(ctx, opts)
}
