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

	"github.com/ngnhng/replayflow/api"
)

// Context is the handle workflow code receives. Everything that creates or
// reads a Future goes through it, so the scheduler sees every call in order.
type Context interface {
	context.Context

	// Dispatch issues the named task once every waitFor future is fulfilled.
	// A zero timeout defers to the TaskOptions in the context, then to the
	// handler's registered default.
	Dispatch(name, version string, input any, timeout time.Duration, waitFor ...Future) Future
	// NewTimer returns a future that is fulfilled after d.
	NewTimer(d time.Duration) Future
	// Go runs fn in a new coroutine of the same run.
	Go(name string, fn func(ctx Context))

	RunID() api.RunID
	WorkflowName() string
	WorkflowVersion() string
	// IsReplaying reports whether the engine is re-applying recorded history.
	IsReplaying() bool
	Logger() *slog.Logger
	WithValue(key any, value any) Context
}

var _ Context = (*workflowContext)(nil)

type workflowContext struct {
	context.Context
	exec   *executionContext
	logger *slog.Logger
}

func newWorkflowContext(exec *executionContext) *workflowContext {
	return &workflowContext{
		Context: context.Background(),
		exec:    exec,
		logger: slog.New(&replayAwareHandler{
			inner:     exec.logger.Handler(),
			replaying: func() bool { return exec.replaying },
		}).With("run_id", exec.runID, "workflow", exec.info.Name),
	}
}

func (c *workflowContext) RunID() api.RunID        { return c.exec.runID }
func (c *workflowContext) WorkflowName() string    { return c.exec.info.Name }
func (c *workflowContext) WorkflowVersion() string { return c.exec.info.Version }
func (c *workflowContext) IsReplaying() bool       { return c.exec.replaying }
func (c *workflowContext) Logger() *slog.Logger    { return c.logger }

func (c *workflowContext) WithValue(key any, value any) Context {
	return &workflowContext{
		Context: context.WithValue(c.Context, key, value),
		exec:    c.exec,
		logger:  c.logger,
	}
}

func (c *workflowContext) Dispatch(name, version string, input any, timeout time.Duration, waitFor ...Future) Future {
	opts := getTaskOptions(c)
	if timeout <= 0 {
		timeout = opts.Timeout
	}
	return c.exec.dispatch(name, version, input, timeout, opts.RetryPolicy, asFutures(waitFor))
}

func (c *workflowContext) NewTimer(d time.Duration) Future {
	return c.exec.newTimer(d)
}

func (c *workflowContext) Go(name string, fn func(ctx Context)) {
	c.exec.dispatcher.spawn(name, func() { fn(c) })
}

type taskOptionsKey struct{}

// TaskOptions configures the dispatches made with a context.
type TaskOptions struct {
	// Timeout bounds one attempt.
	Timeout     time.Duration
	RetryPolicy *RetryPolicy
}

// WithTaskOptions returns a child context whose dispatches use opts.
func WithTaskOptions(ctx Context, opts TaskOptions) Context {
	return ctx.WithValue(taskOptionsKey{}, opts)
}

func getTaskOptions(ctx Context) TaskOptions {
	val := ctx.Value(taskOptionsKey{})
	if val == nil {
		return TaskOptions{}
	}
	opts, ok := val.(TaskOptions)
	if !ok {
		panic("TaskOptions has wrong type in context.")
	}
	return opts
}

// DispatchWithRetry dispatches under policy, overriding any policy in ctx.
func DispatchWithRetry(ctx Context, policy RetryPolicy, name, version string, input any, timeout time.Duration, waitFor ...Future) Future {
	opts := getTaskOptions(ctx)
	opts.RetryPolicy = &policy
	return WithTaskOptions(ctx, opts).Dispatch(name, version, input, timeout, waitFor...)
}

// Sleep parks the calling coroutine for d.
func Sleep(ctx Context, d time.Duration) error {
	return ctx.NewTimer(d).Get(ctx, nil)
}

// Async runs fn in a new coroutine once every waitFor future has settled and
// returns a future of its result. A failed dependency fails the future
// without running fn.
func Async(ctx Context, fn func(ctx Context) (any, error), waitFor ...Future) Future {
	wc := mustWorkflowContext(ctx)
	exec := wc.exec
	deps := asFutures(waitFor)
	result := exec.newFuture()

	ctx.Go(fmt.Sprintf("async#%d", result.seq), func(ctx Context) {
		exec.dispatcher.current.waitUntil(func() bool { return allSettled(deps) }, result.seq)
		if err := firstFailure(deps); err != nil {
			exec.settle(result, nil, err)
			return
		}
		value, err := fn(ctx)
		exec.settle(result, value, err)
	})
	return result
}

// Await parks the calling coroutine until every future has settled. While
// parked it is blocked on the first future still pending.
func Await(ctx Context, futures ...Future) {
	wc := mustWorkflowContext(ctx)
	deps := asFutures(futures)
	if allSettled(deps) {
		return
	}
	current := wc.exec.dispatcher.current
	if current == nil {
		panic(ErrReadOutsideScheduler)
	}
	for f := firstPending(deps); f != nil; f = firstPending(deps) {
		current.waitUntil(f.settled, f.seq)
	}
}

func firstPending(futures []*future) *future {
	for _, f := range futures {
		if !f.settled() {
			return f
		}
	}
	return nil
}

func allSettled(futures []*future) bool {
	for _, f := range futures {
		if !f.settled() {
			return false
		}
	}
	return true
}

func mustWorkflowContext(ctx Context) *workflowContext {
	wc, ok := ctx.(*workflowContext)
	if !ok || wc == nil || wc.exec == nil {
		panic(fmt.Sprintf("unsupported workflow context %T", ctx))
	}
	return wc
}
