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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/api/serde"
)

const testRun = api.RunID("run-1")

var testSerde = &serde.MsgpackSerde{}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	data, err := testSerde.SerializeBinary(v)
	require.NoError(t, err)
	return data
}

// harness drives one run through repeated decision cycles, appending the
// commands of every cycle to the history the way the runtime does.
type harness struct {
	t       *testing.T
	sched   *Scheduler
	history []api.HistoryEvent
}

func newHarness(t *testing.T, reg *Registry, workflow string, input any, timeout time.Duration) *harness {
	t.Helper()
	sched, err := NewScheduler(SchedulerOptions{Registry: reg, Serde: testSerde, Logger: discardLogger()})
	require.NoError(t, err)
	return &harness{
		t:     t,
		sched: sched,
		history: []api.HistoryEvent{&api.WorkflowStarted{
			RunID:     testRun,
			Name:      workflow,
			Version:   "v1",
			Input:     encode(t, input),
			TimeoutMs: timeout.Milliseconds(),
		}},
	}
}

func (h *harness) decide() *Decision {
	h.t.Helper()
	d, err := h.sched.Replay(h.history)
	require.NoError(h.t, err)
	h.history = append(h.history, d.Commands...)
	return d
}

func (h *harness) record(events ...api.HistoryEvent) *harness {
	h.history = append(h.history, events...)
	return h
}

func (h *harness) complete(seq int64, attempt int32, value any) *harness {
	return h.record(&api.TaskCompleted{RunID: testRun, Seq: seq, Attempt: attempt, Result: encode(h.t, value)})
}

func (h *harness) fail(seq int64, attempt int32, msg string) *harness {
	return h.record(&api.TaskFailed{RunID: testRun, Seq: seq, Attempt: attempt, Message: msg})
}

func (h *harness) fire(seq int64, attempt int32) *harness {
	return h.record(&api.TimerFired{RunID: testRun, Seq: seq, Attempt: attempt})
}

func scheduled(t *testing.T, cmds []api.HistoryEvent) []string {
	t.Helper()
	var out []string
	for _, c := range cmds {
		switch c := c.(type) {
		case *api.TaskScheduled:
			out = append(out, fmt.Sprintf("%s#%d.%d", c.Name, c.Seq, c.Attempt))
		case *api.TimerStarted:
			out = append(out, fmt.Sprintf("timer#%d.%d/%dms", c.Seq, c.Attempt, c.DelayMs))
		case *api.WorkflowCompleted:
			out = append(out, "completed")
		case *api.WorkflowFailed:
			out = append(out, "failed:"+string(c.Kind))
		}
	}
	return out
}

func register(t *testing.T, reg *Registry, name string, fn any) {
	t.Helper()
	require.NoError(t, reg.RegisterWorkflow(name, "v1", fn, WorkflowRegistration{}))
}

// sequence dispatches each named task in turn and sums their results.
func sequence(names ...string) func(ctx Context, n int) (int, error) {
	return func(ctx Context, n int) (int, error) {
		sum := 0
		for _, name := range names {
			var out int
			if err := ctx.Dispatch(name, "v1", n, 0).Get(ctx, &out); err != nil {
				return 0, err
			}
			sum += out
		}
		return sum, nil
	}
}

func TestReplay_SequentialDispatch(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "seq", sequence("a", "b"))
	h := newHarness(t, reg, "seq", 3, 0)

	d := h.decide()
	assert.Equal(t, RunSuspended, d.State)
	assert.Equal(t, int64(1), d.SuspendedAt)
	assert.Equal(t, []string{"a#1.1"}, scheduled(t, d.Commands))

	d = h.complete(1, 1, 10).decide()
	assert.Equal(t, []string{"b#2.1"}, scheduled(t, d.Commands))

	d = h.complete(2, 1, 5).decide()
	require.Equal(t, RunCompleted, d.State)
	assert.Equal(t, []string{"completed"}, scheduled(t, d.Commands))

	var sum int
	require.NoError(t, testSerde.DeserializeBinary(d.Result, &sum))
	assert.Equal(t, 15, sum)
}

func TestReplay_FullHistoryIssuesNothingNew(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "seq", sequence("a", "b", "c"))
	h := newHarness(t, reg, "seq", 1, 0)

	h.decide()
	h.complete(1, 1, 1).decide()
	h.complete(2, 1, 2).decide()
	first := h.complete(3, 1, 3).decide()
	require.Equal(t, RunCompleted, first.State)

	again, err := h.sched.Replay(h.history)
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, again.State)
	assert.Empty(t, again.Commands)
	assert.Equal(t, first.Result, again.Result)
}

func TestReplay_ParallelDispatchIssuesInCreationOrder(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "fanout", func(ctx Context, n int) ([]int, error) {
		a := ctx.Dispatch("a", "v1", n, 0)
		b := ctx.Dispatch("b", "v1", n, 0)
		c := ctx.Dispatch("c", "v1", n, 0)
		var outs []int
		err := Join(ctx, a, b, c).Get(ctx, &outs)
		return outs, err
	})
	h := newHarness(t, reg, "fanout", 0, 0)

	d := h.decide()
	assert.Equal(t, []string{"a#1.1", "b#2.1", "c#3.1"}, scheduled(t, d.Commands))

	d = h.complete(3, 1, 30).complete(1, 1, 10).decide()
	assert.Equal(t, RunSuspended, d.State)
	assert.Empty(t, d.Commands)

	d = h.complete(2, 1, 20).decide()
	require.Equal(t, RunCompleted, d.State)
	var outs []int
	require.NoError(t, testSerde.DeserializeBinary(d.Result, &outs))
	assert.Equal(t, []int{10, 20, 30}, outs)
}

func TestReplay_JoinFailsWithLowestIndexFailure(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "join", func(ctx Context, _ int) error {
		return Join(ctx, ctx.Dispatch("a", "v1", nil, 0), ctx.Dispatch("b", "v1", nil, 0)).Get(ctx, nil)
	})
	h := newHarness(t, reg, "join", 0, 0)
	h.decide()

	d := h.fail(2, 1, "b broke").decide()
	assert.Equal(t, RunSuspended, d.State, "join waits for every input")

	d = h.fail(1, 1, "a broke").decide()
	require.Equal(t, RunFailed, d.State)
	var failure *TaskFailureError
	require.ErrorAs(t, d.Err, &failure)
	assert.Equal(t, "a@v1", failure.Task)
	assert.Equal(t, "a broke", failure.Message)
	assert.Equal(t, []string{"failed:workflow"}, scheduled(t, d.Commands))
}

func TestReplay_WaitForGatesDispatch(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "gate", func(ctx Context, _ int) (string, error) {
		a := ctx.Dispatch("a", "v1", nil, 0)
		token := Substitute(ctx, "go", a)
		b := ctx.Dispatch("b", "v1", nil, 0, token)
		var out string
		if err := Synchronize(ctx, token, b).Get(ctx, &out); err != nil {
			return "", err
		}
		return out, nil
	})
	h := newHarness(t, reg, "gate", 0, 0)

	d := h.decide()
	assert.Equal(t, []string{"a#1.1"}, scheduled(t, d.Commands))

	d = h.complete(1, 1, nil).decide()
	assert.Equal(t, []string{"b#3.1"}, scheduled(t, d.Commands))

	d = h.complete(3, 1, nil).decide()
	require.Equal(t, RunCompleted, d.State)
	var out string
	require.NoError(t, testSerde.DeserializeBinary(d.Result, &out))
	assert.Equal(t, "go", out)
}

func TestReplay_FailedDependencyNeverIssues(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "gate", func(ctx Context, _ int) error {
		a := ctx.Dispatch("a", "v1", nil, 0)
		return ctx.Dispatch("b", "v1", nil, 0, a).Get(ctx, nil)
	})
	h := newHarness(t, reg, "gate", 0, 0)
	h.decide()

	d := h.fail(1, 1, "no").decide()
	require.Equal(t, RunFailed, d.State)
	assert.NotContains(t, scheduled(t, d.Commands), "b#2.1")
	var failure *TaskFailureError
	require.ErrorAs(t, d.Err, &failure)
	assert.Equal(t, "a@v1", failure.Task)
}

func TestReplay_RetryBacksOffThenExhausts(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval:    2 * time.Second,
		BackoffCoefficient: 2,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    5,
	}
	reg := NewRegistry()
	register(t, reg, "flaky", func(ctx Context, _ int) error {
		return DispatchWithRetry(ctx, policy, "flaky", "v1", nil, 0).Get(ctx, nil)
	})
	h := newHarness(t, reg, "flaky", 0, 0)
	assert.Equal(t, []string{"flaky#1.1"}, scheduled(t, h.decide().Commands))

	wantDelays := []string{"timer#1.1/2000ms", "timer#1.2/4000ms", "timer#1.3/8000ms", "timer#1.4/16000ms"}
	for i, want := range wantDelays {
		attempt := int32(i + 1)
		d := h.fail(1, attempt, "flaked").decide()
		assert.Equal(t, []string{want}, scheduled(t, d.Commands))

		d = h.fire(1, attempt).decide()
		assert.Equal(t, []string{fmt.Sprintf("flaky#1.%d", attempt+1)}, scheduled(t, d.Commands))
	}

	d := h.fail(1, 5, "flaked").decide()
	require.Equal(t, RunFailed, d.State)
	assert.Equal(t, []string{"failed:workflow"}, scheduled(t, d.Commands), "no sixth attempt")

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, d.Err, &exhausted)
	assert.Equal(t, int32(5), exhausted.Attempts)
	assert.Contains(t, exhausted.Last.Error(), "flaked")
}

func TestReplay_RetrySucceedsOnSecondAttempt(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "flaky", func(ctx Context, _ int) (int, error) {
		var out int
		err := DispatchWithRetry(ctx, RetryPolicy{InitialInterval: time.Second}, "flaky", "v1", nil, 0).Get(ctx, &out)
		return out, err
	})
	h := newHarness(t, reg, "flaky", 0, 0)
	h.decide()
	h.fail(1, 1, "once").decide()
	h.fire(1, 1).decide()

	d := h.complete(1, 2, 7).decide()
	require.Equal(t, RunCompleted, d.State)
	var out int
	require.NoError(t, testSerde.DeserializeBinary(d.Result, &out))
	assert.Equal(t, 7, out)
}

func TestReplay_NonRetryableFailureStopsRetries(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "strict", func(ctx Context, _ int) error {
		return DispatchWithRetry(ctx, RetryPolicy{MaximumAttempts: 3}, "strict", "v1", nil, 0).Get(ctx, nil)
	})
	h := newHarness(t, reg, "strict", 0, 0)
	h.decide()

	d := h.record(&api.TaskFailed{RunID: testRun, Seq: 1, Attempt: 1, Message: "bad input", NonRetryable: true}).decide()
	require.Equal(t, RunFailed, d.State)
	var exhausted *RetriesExhaustedError
	assert.False(t, errors.As(d.Err, &exhausted))
}

func TestReplay_TaskTimeoutIsRetried(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "slow", func(ctx Context, _ int) error {
		return DispatchWithRetry(ctx, RetryPolicy{InitialInterval: time.Second, MaximumAttempts: 2}, "slow", "v1", nil, time.Second).Get(ctx, nil)
	})
	h := newHarness(t, reg, "slow", 0, 0)
	h.decide()

	d := h.record(&api.TaskTimedOut{RunID: testRun, Seq: 1, Attempt: 1, TimeoutMs: 1000}).decide()
	assert.Equal(t, []string{"timer#1.1/1000ms"}, scheduled(t, d.Commands))

	h.fire(1, 1).decide()
	d = h.record(&api.TaskTimedOut{RunID: testRun, Seq: 1, Attempt: 2, TimeoutMs: 1000}).decide()
	require.Equal(t, RunFailed, d.State)
	var timeout *TaskTimeoutError
	require.ErrorAs(t, d.Err, &timeout)
	assert.Equal(t, time.Second, timeout.Timeout)
}

func TestReplay_DetectsChangedCode(t *testing.T) {
	recorded := NewRegistry()
	register(t, recorded, "flow", sequence("a", "b", "c"))
	h := newHarness(t, recorded, "flow", 0, 0)
	h.decide()
	h.complete(1, 1, 0).decide()
	h.complete(2, 1, 0).decide()

	changed := NewRegistry()
	register(t, changed, "flow", sequence("a", "b", "d"))
	sched, err := NewScheduler(SchedulerOptions{Registry: changed, Serde: testSerde, Logger: discardLogger()})
	require.NoError(t, err)

	d, err := sched.Replay(h.history)
	require.NoError(t, err)
	require.Equal(t, RunFailed, d.State)
	assert.ErrorIs(t, d.Err, ErrNonDeterminism)

	var nd *NonDeterminismError
	require.ErrorAs(t, d.Err, &nd)
	assert.Equal(t, 5, nd.Position)
	assert.Contains(t, nd.Expected, "d@v1")
	assert.Contains(t, nd.Got, "c@v1")
	assert.Equal(t, []string{"failed:nondeterminism"}, scheduled(t, d.Commands))
}

func TestReplay_UnexpectedOutcome(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "seq", sequence("a"))
	h := newHarness(t, reg, "seq", 0, 0)
	h.decide()

	d := h.complete(9, 1, 0).decide()
	require.Equal(t, RunFailed, d.State)
	assert.ErrorIs(t, d.Err, ErrNonDeterminism)
}

func TestReplay_DuplicateOutcomeIsDoubleResolution(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "pair", func(ctx Context, _ int) error {
		a := ctx.Dispatch("a", "v1", nil, 0)
		b := ctx.Dispatch("b", "v1", nil, 0)
		return Join(ctx, a, b).Get(ctx, nil)
	})
	h := newHarness(t, reg, "pair", 0, 0)
	h.decide()

	d := h.complete(1, 1, 0).complete(1, 1, 0).decide()
	require.Equal(t, RunFailed, d.State)
	assert.ErrorIs(t, d.Err, ErrDoubleResolution)
	assert.Equal(t, []string{"failed:double_resolution"}, scheduled(t, d.Commands))
}

func TestReplay_Timer(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "nap", func(ctx Context, _ int) (string, error) {
		if err := Sleep(ctx, 5*time.Second); err != nil {
			return "", err
		}
		return "rested", nil
	})
	h := newHarness(t, reg, "nap", 0, 0)

	d := h.decide()
	assert.Equal(t, []string{"timer#1.0/5000ms"}, scheduled(t, d.Commands))

	d = h.fire(1, 0).decide()
	assert.Equal(t, RunCompleted, d.State)
}

func TestReplay_WorkflowDeadline(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "seq", sequence("a"))
	h := newHarness(t, reg, "seq", 0, time.Minute)

	d := h.decide()
	assert.Equal(t, []string{"timer#0.0/60000ms", "a#1.1"}, scheduled(t, d.Commands))

	d = h.fire(0, 0).decide()
	require.Equal(t, RunFailed, d.State)
	var timeout *WorkflowTimeoutError
	require.ErrorAs(t, d.Err, &timeout)
	assert.Equal(t, time.Minute, timeout.Timeout)
	assert.Equal(t, []string{"failed:timeout"}, scheduled(t, d.Commands))
}

func TestReplay_PanicFailsRun(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "boom", func(ctx Context, _ int) error {
		panic("boom")
	})
	h := newHarness(t, reg, "boom", 0, 0)

	d := h.decide()
	require.Equal(t, RunFailed, d.State)
	var p *PanicError
	require.ErrorAs(t, d.Err, &p)
	assert.Equal(t, "boom", p.Value)
	assert.Equal(t, []string{"failed:panic"}, scheduled(t, d.Commands))
}

func TestReplay_AsyncCoroutines(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "async", func(ctx Context, _ int) ([]int, error) {
		run := func(name string) Future {
			return Async(ctx, func(ctx Context) (any, error) {
				var first, second int
				if err := ctx.Dispatch(name, "v1", 1, 0).Get(ctx, &first); err != nil {
					return nil, err
				}
				if err := ctx.Dispatch(name, "v1", 2, 0).Get(ctx, &second); err != nil {
					return nil, err
				}
				return first + second, nil
			})
		}
		var outs []int
		err := Join(ctx, run("x"), run("y")).Get(ctx, &outs)
		return outs, err
	})
	h := newHarness(t, reg, "async", 0, 0)

	d := h.decide()
	// seq 1 and 2 are the async futures, 3 the join.
	assert.Equal(t, []string{"x#4.1", "y#5.1"}, scheduled(t, d.Commands))

	d = h.complete(5, 1, 1).decide()
	assert.Equal(t, []string{"y#6.1"}, scheduled(t, d.Commands))

	d = h.complete(4, 1, 10).decide()
	assert.Equal(t, []string{"x#7.1"}, scheduled(t, d.Commands))

	d = h.complete(6, 1, 2).complete(7, 1, 20).decide()
	require.Equal(t, RunCompleted, d.State)
	var outs []int
	require.NoError(t, testSerde.DeserializeBinary(d.Result, &outs))
	assert.Equal(t, []int{30, 3}, outs)
}

func TestReplay_TimeoutDefaults(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterTask("a", "v1", func(context.Context) error { return nil },
		TaskRegistration{DefaultTimeout: 15 * time.Second}))
	register(t, reg, "timeouts", func(ctx Context, _ int) error {
		registered := ctx.Dispatch("a", "v1", nil, 0)
		fromContext := WithTaskOptions(ctx, TaskOptions{Timeout: 3 * time.Second}).Dispatch("a", "v1", nil, 0)
		explicit := ctx.Dispatch("a", "v1", nil, time.Second)
		return Join(ctx, registered, fromContext, explicit).Get(ctx, nil)
	})
	h := newHarness(t, reg, "timeouts", 0, 0)

	d := h.decide()
	require.Len(t, d.Commands, 3)
	var timeouts []int64
	for _, c := range d.Commands {
		timeouts = append(timeouts, c.(*api.TaskScheduled).TimeoutMs)
	}
	assert.Equal(t, []int64{15000, 3000, 1000}, timeouts)
}

func TestReplay_UnknownWorkflow(t *testing.T) {
	h := newHarness(t, NewRegistry(), "missing", 0, 0)
	_, err := h.sched.Replay(h.history)
	assert.ErrorIs(t, err, ErrWorkflowNotRegistered)
}

func TestReplay_HistoryMustBeginWithStart(t *testing.T) {
	sched, err := NewScheduler(SchedulerOptions{Registry: NewRegistry()})
	require.NoError(t, err)

	_, err = sched.Replay(nil)
	assert.Error(t, err)
	_, err = sched.Replay([]api.HistoryEvent{&api.TimerFired{RunID: testRun}})
	assert.Error(t, err)
}

func TestReplay_RetryFailsTwiceThenSucceeds(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval:    2 * time.Second,
		BackoffCoefficient: 2,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    5,
	}
	reg := NewRegistry()
	register(t, reg, "flaky", func(ctx Context, _ int) (int, error) {
		var out int
		err := DispatchWithRetry(ctx, policy, "flaky", "v1", nil, 0).Get(ctx, &out)
		return out, err
	})
	h := newHarness(t, reg, "flaky", 0, 0)
	h.decide()

	var timers []string
	for attempt := int32(1); attempt <= 2; attempt++ {
		timers = append(timers, scheduled(t, h.fail(1, attempt, "flaked").decide().Commands)...)
		h.fire(1, attempt).decide()
	}
	d := h.complete(1, 3, 42).decide()

	require.Equal(t, RunCompleted, d.State)
	assert.Equal(t, []string{"timer#1.1/2000ms", "timer#1.2/4000ms"}, timers)
	var out int
	require.NoError(t, testSerde.DeserializeBinary(d.Result, &out))
	assert.Equal(t, 42, out)

	var backoffs int
	for _, evt := range h.history {
		if ts, ok := evt.(*api.TimerStarted); ok && ts.Backoff {
			backoffs++
		}
	}
	assert.Equal(t, 2, backoffs)
}

func TestReplay_SubstituteWaitsForEveryDependency(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "swap", func(ctx Context, _ int) (string, error) {
		f1 := ctx.Dispatch("a", "v1", nil, 0)
		f2 := ctx.Dispatch("b", "v1", nil, 0)
		var out string
		err := Substitute(ctx, "v", f1, f2).Get(ctx, &out)
		return out, err
	})

	for _, order := range [][2]int64{{1, 2}, {2, 1}} {
		t.Run(fmt.Sprintf("seq%d_first", order[0]), func(t *testing.T) {
			h := newHarness(t, reg, "swap", 0, 0)
			d := h.decide()
			assert.Equal(t, []string{"a#1.1", "b#2.1"}, scheduled(t, d.Commands))

			d = h.complete(order[0], 1, 0).decide()
			assert.Equal(t, RunSuspended, d.State, "value hidden until both settle")
			assert.Empty(t, d.Commands)
			assert.Equal(t, int64(3), d.SuspendedAt)

			d = h.complete(order[1], 1, 0).decide()
			require.Equal(t, RunCompleted, d.State)
			var out string
			require.NoError(t, testSerde.DeserializeBinary(d.Result, &out))
			assert.Equal(t, "v", out)
		})
	}
}

func TestReplay_SamePrefixDecidesTheSame(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "fanout", func(ctx Context, n int) (int, error) {
		a := ctx.Dispatch("a", "v1", n, 0)
		b := ctx.Dispatch("b", "v1", n, 0)
		var first int
		if err := a.Get(ctx, &first); err != nil {
			return 0, err
		}
		c := ctx.Dispatch("c", "v1", first, 0)
		Await(ctx, b, c)
		return first, nil
	})
	h := newHarness(t, reg, "fanout", 4, time.Minute)
	h.decide()
	h.complete(1, 1, 9)

	prefix := append([]api.HistoryEvent(nil), h.history...)
	first, err := h.sched.Replay(prefix)
	require.NoError(t, err)
	second, err := h.sched.Replay(prefix)
	require.NoError(t, err)

	require.Equal(t, RunSuspended, first.State)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.SuspendedAt, second.SuspendedAt)
	assert.Equal(t, first.Commands, second.Commands)
	assert.Equal(t, []string{"c#3.1"}, scheduled(t, first.Commands))
}

func TestReplay_AwaitParksOnFirstPendingFuture(t *testing.T) {
	reg := NewRegistry()
	register(t, reg, "both", func(ctx Context, _ int) error {
		a := ctx.Dispatch("a", "v1", nil, 0)
		b := ctx.Dispatch("b", "v1", nil, 0)
		Await(ctx, a, b)
		return nil
	})
	h := newHarness(t, reg, "both", 0, 0)

	d := h.decide()
	assert.Equal(t, int64(1), d.SuspendedAt)

	d = h.complete(1, 1, 0).decide()
	require.Equal(t, RunSuspended, d.State)
	assert.Equal(t, int64(2), d.SuspendedAt, "a has settled, b has not")

	d = h.complete(2, 1, 0).decide()
	assert.Equal(t, RunCompleted, d.State)
}
