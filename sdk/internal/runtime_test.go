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

package internal_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DeluxeOwl/chronicle/event"
	"github.com/DeluxeOwl/chronicle/eventlog"
	"github.com/DeluxeOwl/chronicle/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/internal/historystore"
	"github.com/ngnhng/replayflow/internal/service/memory"
	"github.com/ngnhng/replayflow/sdk/internal"
)

type env struct {
	clock  *memory.FakeClock
	svc    *memory.Service
	rt     *internal.Runtime
	client internal.Client
	reg    *internal.Registry
	log    event.Log
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := memory.NewFakeClock(time.Unix(0, 0))
	svc := memory.New(memory.Options{Clock: clock, Logger: logger})
	client, err := internal.NewClient(internal.ClientOptions{Service: svc, Logger: logger})
	require.NoError(t, err)
	return &env{clock: clock, svc: svc, client: client, reg: internal.NewRegistry()}
}

func (e *env) start(t *testing.T) {
	t.Helper()
	rt, err := internal.NewRuntime(internal.RuntimeOptions{
		Service:  e.svc,
		Registry: e.reg,
		EventLog: e.log,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	e.rt = rt

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

// advanceWhenArmed waits for a timer to be armed and moves the clock past it.
func (e *env) advanceWhenArmed(t *testing.T, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return e.clock.Pending() > 0 }, 5*time.Second, time.Millisecond)
	e.clock.Advance(d)
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRuntime_RunsWorkflowToCompletion(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.reg.RegisterTask("greet", "v1", func(_ context.Context, name string) (string, error) {
		return "hello " + name, nil
	}, internal.TaskRegistration{}))
	require.NoError(t, e.reg.RegisterWorkflow("hello", "v1", func(ctx internal.Context, names []string) ([]string, error) {
		futures := make([]internal.Future, len(names))
		for i, n := range names {
			futures[i] = ctx.Dispatch("greet", "v1", n, 0)
		}
		var out []string
		err := internal.Join(ctx, futures...).Get(ctx, &out)
		return out, err
	}, internal.WorkflowRegistration{}))
	e.start(t)

	ctx := testContext(t)
	run, err := e.client.ExecuteWorkflow(ctx, internal.StartWorkflowOptions{}, "hello", "v1", []string{"ann", "bo"})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID())

	var out []string
	require.NoError(t, run.Get(ctx, &out))
	assert.Equal(t, []string{"hello ann", "hello bo"}, out)
}

func TestRuntime_RetriesWithRecordedBackoff(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	require.NoError(t, e.reg.RegisterTask("flaky", "v1", func(ctx context.Context) (int32, error) {
		calls.Add(1)
		info, ok := internal.GetTaskInfo(ctx)
		if !ok {
			return 0, errors.New("no task info")
		}
		if info.Attempt < 3 {
			return 0, errors.New("not yet")
		}
		return info.Attempt, nil
	}, internal.TaskRegistration{}))
	policy := internal.RetryPolicy{InitialInterval: 2 * time.Second, BackoffCoefficient: 2, MaximumAttempts: 5}
	require.NoError(t, e.reg.RegisterWorkflow("retry", "v1", func(ctx internal.Context) (int32, error) {
		var attempt int32
		err := internal.DispatchWithRetry(ctx, policy, "flaky", "v1", nil, 0).Get(ctx, &attempt)
		return attempt, err
	}, internal.WorkflowRegistration{}))
	e.start(t)

	ctx := testContext(t)
	run, err := e.client.ExecuteWorkflow(ctx, internal.StartWorkflowOptions{ID: "retry-1"}, "retry", "v1", nil)
	require.NoError(t, err)

	e.advanceWhenArmed(t, 2*time.Second)
	e.advanceWhenArmed(t, 4*time.Second)

	var attempt int32
	require.NoError(t, run.Get(ctx, &attempt))
	assert.Equal(t, int32(3), attempt)
	assert.Equal(t, int32(3), calls.Load())

	history, err := e.rt.History(ctx, "retry-1")
	require.NoError(t, err)
	var delays []int64
	for _, evt := range history {
		if ts, ok := evt.(*api.TimerStarted); ok && ts.Backoff {
			delays = append(delays, ts.DelayMs)
		}
	}
	assert.Equal(t, []int64{2000, 4000}, delays)
}

func TestRuntime_NonRetryableTaskFailsRun(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	require.NoError(t, e.reg.RegisterTask("strict", "v1", func(context.Context) error {
		calls.Add(1)
		return internal.NewNonRetryableError(errors.New("invalid order"))
	}, internal.TaskRegistration{}))
	require.NoError(t, e.reg.RegisterWorkflow("order", "v1", func(ctx internal.Context) error {
		return internal.DispatchWithRetry(ctx, internal.RetryPolicy{MaximumAttempts: 3}, "strict", "v1", nil, 0).Get(ctx, nil)
	}, internal.WorkflowRegistration{}))
	e.start(t)

	ctx := testContext(t)
	run, err := e.client.ExecuteWorkflow(ctx, internal.StartWorkflowOptions{}, "order", "v1", nil)
	require.NoError(t, err)

	err = run.Get(ctx, nil)
	var runErr *internal.WorkflowRunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, api.FailureWorkflow, runErr.Kind)
	assert.Contains(t, runErr.Message, "invalid order")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRuntime_TaskTimeout(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.reg.RegisterTask("hang", "v1", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, internal.TaskRegistration{DefaultTimeout: 20 * time.Millisecond}))
	require.NoError(t, e.reg.RegisterWorkflow("wait", "v1", func(ctx internal.Context) error {
		return ctx.Dispatch("hang", "v1", nil, 0).Get(ctx, nil)
	}, internal.WorkflowRegistration{}))
	e.start(t)

	ctx := testContext(t)
	run, err := e.client.ExecuteWorkflow(ctx, internal.StartWorkflowOptions{}, "wait", "v1", nil)
	require.NoError(t, err)

	var runErr *internal.WorkflowRunError
	require.ErrorAs(t, run.Get(ctx, nil), &runErr)
	assert.Contains(t, runErr.Message, "timed out")
}

func TestRuntime_WorkflowDeadline(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.reg.RegisterWorkflow("slow", "v1", func(ctx internal.Context) error {
		return internal.Sleep(ctx, time.Hour)
	}, internal.WorkflowRegistration{Timeout: time.Minute}))
	e.start(t)

	ctx := testContext(t)
	run, err := e.client.ExecuteWorkflow(ctx, internal.StartWorkflowOptions{}, "slow", "v1", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return e.clock.Pending() == 2 }, 5*time.Second, time.Millisecond)
	e.clock.Advance(time.Minute)

	var runErr *internal.WorkflowRunError
	require.ErrorAs(t, run.Get(ctx, nil), &runErr)
	assert.Equal(t, api.FailureTimeout, runErr.Kind)
	assert.Eventually(t, func() bool { return e.clock.Pending() == 0 }, 5*time.Second, time.Millisecond,
		"the sleep timer is canceled with the run")
}

func TestRuntime_SameRunIDStartsOnce(t *testing.T) {
	e := newEnv(t)
	var calls atomic.Int32
	require.NoError(t, e.reg.RegisterTask("once", "v1", func(context.Context) error {
		calls.Add(1)
		return nil
	}, internal.TaskRegistration{}))
	require.NoError(t, e.reg.RegisterWorkflow("single", "v1", func(ctx internal.Context) error {
		return ctx.Dispatch("once", "v1", nil, 0).Get(ctx, nil)
	}, internal.WorkflowRegistration{}))
	e.start(t)

	ctx := testContext(t)
	opts := internal.StartWorkflowOptions{ID: "dup"}
	first, err := e.client.ExecuteWorkflow(ctx, opts, "single", "v1", nil)
	require.NoError(t, err)
	second, err := e.client.ExecuteWorkflow(ctx, opts, "single", "v1", nil)
	require.NoError(t, err)

	require.NoError(t, first.Get(ctx, nil))
	require.NoError(t, second.Get(ctx, nil))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRuntime_UnknownWorkflowFailsRun(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.reg.RegisterWorkflow("known", "v1", func(internal.Context) error { return nil }, internal.WorkflowRegistration{}))
	e.start(t)

	ctx := testContext(t)
	run, err := e.client.ExecuteWorkflow(ctx, internal.StartWorkflowOptions{}, "unknown", "v1", nil)
	require.NoError(t, err)

	var runErr *internal.WorkflowRunError
	require.ErrorAs(t, run.Get(ctx, nil), &runErr)
	assert.Contains(t, runErr.Message, "not registered")
}

func TestNewRuntime_RequiresService(t *testing.T) {
	_, err := internal.NewRuntime(internal.RuntimeOptions{Registry: internal.NewRegistry()})
	assert.ErrorIs(t, err, internal.ErrNoService)
}

func TestRuntime_HistorySurvivesRestart(t *testing.T) {
	store, err := historystore.Open(historystore.Config{
		Backend:    historystore.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	e := newEnv(t)
	e.log = store.Log
	require.NoError(t, e.reg.RegisterTask("echo", "v1", func(_ context.Context, s string) (string, error) {
		return s, nil
	}, internal.TaskRegistration{}))
	require.NoError(t, e.reg.RegisterWorkflow("echo", "v1", func(ctx internal.Context, s string) (string, error) {
		var out string
		err := ctx.Dispatch("echo", "v1", s, 0).Get(ctx, &out)
		return out, err
	}, internal.WorkflowRegistration{}))
	e.start(t)

	ctx := testContext(t)
	run, err := e.client.ExecuteWorkflow(ctx, internal.StartWorkflowOptions{ID: "persisted"}, "echo", "v1", "ping")
	require.NoError(t, err)
	var out string
	require.NoError(t, run.Get(ctx, &out))
	assert.Equal(t, "ping", out)

	reopened, err := internal.NewRuntime(internal.RuntimeOptions{Service: e.svc, Registry: e.reg, EventLog: store.Log})
	require.NoError(t, err)
	history, err := reopened.History(ctx, "persisted")
	require.NoError(t, err)

	var names []string
	for _, evt := range history {
		names = append(names, evt.EventName())
	}
	assert.Equal(t, []string{"workflow/started", "task/scheduled", "task/completed", "workflow/completed"}, names)
}

func TestRuntime_HandleTaskInterruptedReportsNothing(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.reg.RegisterTask("block", "v1", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, internal.TaskRegistration{}))
	rt, err := internal.NewRuntime(internal.RuntimeOptions{Service: e.svc, Registry: e.reg})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err = rt.HandleTask(ctx, &api.TaskInvocation{
		ID: "run/1/1", RunID: "run", Seq: 1, Attempt: 1, Name: "block", Version: "v1",
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, e.svc.Idle(), "no outcome reported for an interrupted attempt")
}

func TestRuntime_InterruptedTaskRunsOnNextWorker(t *testing.T) {
	e := newEnv(t)
	e.log = eventlog.NewMemory()
	started := make(chan struct{}, 1)
	var calls atomic.Int32
	require.NoError(t, e.reg.RegisterTask("slow", "v1", func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "done", nil
	}, internal.TaskRegistration{}))
	require.NoError(t, e.reg.RegisterWorkflow("slow", "v1", func(ctx internal.Context) (string, error) {
		var out string
		err := ctx.Dispatch("slow", "v1", nil, 0).Get(ctx, &out)
		return out, err
	}, internal.WorkflowRegistration{}))

	first, err := internal.NewRuntime(internal.RuntimeOptions{
		Service:  e.svc,
		Registry: e.reg,
		EventLog: e.log,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- first.Run(runCtx) }()

	ctx := testContext(t)
	run, err := e.client.ExecuteWorkflow(ctx, internal.StartWorkflowOptions{ID: "interrupted"}, "slow", "v1", nil)
	require.NoError(t, err)
	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("task never started")
	}
	stop()
	require.NoError(t, <-done)

	e.start(t)
	var out string
	require.NoError(t, run.Get(ctx, &out))
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRuntime_OutcomeOfUnknownRunIsDropped(t *testing.T) {
	e := newEnv(t)
	e.log = eventlog.NewMemory()
	e.start(t)

	ctx := testContext(t)
	require.NoError(t, e.svc.Report(ctx, &api.Outcome{
		Kind: api.OutcomeSucceeded, RunID: "ghost", Seq: 1, Attempt: 1, InvocationID: "ghost/1/1",
	}))
	require.NoError(t, e.svc.WaitIdle(ctx, time.Millisecond))

	records, err := e.log.ReadEvents(ctx, "ghost", version.SelectFromBeginning).Collect()
	require.NoError(t, err)
	assert.Empty(t, records, "no history is created for a run that was never started")
}
