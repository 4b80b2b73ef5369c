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
	"time"

	"github.com/ngnhng/replayflow/sdk/internal"
)

// Context is the workflow execution context that provides deterministic guarantees.
//
// Context extends context.Context with workflow-specific operations. All workflow
// operations must go through this context to maintain determinism during replay.
//
// Key methods:
//   - Dispatch: issue a named, versioned task
//   - NewTimer: a durable timer recorded in history
//   - Go: a new coroutine of the same run
//   - WithValue: store values in the workflow context
//
// Important: Workflow code must be deterministic. Do not:
//   - Perform I/O operations directly
//   - Generate random numbers
//   - Access current time directly
//   - Use goroutines
//
// Use tasks for all non-deterministic operations.
type Context = internal.Context

// Dispatch issues the task name@version with input once every waitFor future
// is fulfilled. If any of them fails, the returned future fails with the
// lowest-index failure and the task is never issued.
//
// A zero timeout defers to WithTaskOptions, then to the timeout the task was
// registered with.
func Dispatch(ctx Context, name, version string, input any, timeout time.Duration, waitFor ...Future) Future {
	return ctx.Dispatch(name, version, input, timeout, waitFor...)
}

// DispatchWithRetry is Dispatch under policy. Backoff waits are durable
// timers, and a task that keeps failing settles with *RetriesExhaustedError.
func DispatchWithRetry(ctx Context, policy RetryPolicy, name, version string, input any, timeout time.Duration, waitFor ...Future) Future {
	return internal.DispatchWithRetry(ctx, policy, name, version, input, timeout, waitFor...)
}

// NewTimer returns a future that is fulfilled after d.
func NewTimer(ctx Context, d time.Duration) Future {
	return ctx.NewTimer(d)
}

// Sleep parks the calling coroutine for d.
func Sleep(ctx Context, d time.Duration) error {
	return internal.Sleep(ctx, d)
}

// Go runs fn in a new coroutine of the run. Coroutines are scheduled
// cooperatively, one at a time, in creation order.
func Go(ctx Context, name string, fn func(ctx Context)) {
	ctx.Go(name, fn)
}

// Async runs fn in a new coroutine once every waitFor future has settled and
// returns a future of its result.
func Async(ctx Context, fn func(ctx Context) (any, error), waitFor ...Future) Future {
	return internal.Async(ctx, fn, waitFor...)
}

// Await parks the calling coroutine until every future has settled.
func Await(ctx Context, futures ...Future) {
	internal.Await(ctx, futures...)
}
