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
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/api/serde"
)

type RunState int

const (
	RunRunning RunState = iota
	RunSuspended
	RunCompleted
	RunFailed
)

func (s RunState) String() string {
	switch s {
	case RunRunning:
		return "running"
	case RunSuspended:
		return "suspended"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Decision is the outcome of one decision cycle.
type Decision struct {
	State RunState
	// SuspendedAt is the seq of the future the root coroutine is parked on.
	SuspendedAt int64
	// Commands are the events produced by this cycle that history does not
	// hold yet, in issue order.
	Commands []api.HistoryEvent
	Result   []byte
	Err      error
}

type SchedulerOptions struct {
	Registry *Registry
	Serde    serde.BinarySerde
	Logger   *slog.Logger
}

// Scheduler replays run histories against registered workflow functions.
// It keeps no per-run state between calls and is safe for concurrent use.
type Scheduler struct {
	registry  *Registry
	serde     serde.BinarySerde
	converter *serde.TypeConverter
	logger    *slog.Logger
}

func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("scheduler needs a registry")
	}
	s := opts.Serde
	if s == nil {
		s = &serde.MsgpackSerde{}
	}
	return &Scheduler{
		registry:  opts.Registry,
		serde:     s,
		converter: serde.NewTypeConverter(s),
		logger:    defaultLogger(opts.Logger),
	}, nil
}

// Replay runs one decision cycle over history. history[0] must be the
// WorkflowStarted event of the run. The workflow function is started from its
// top, then every later event is applied in order, with the coroutines run to
// quiescence after each one.
func (s *Scheduler) Replay(history []api.HistoryEvent) (*Decision, error) {
	if len(history) == 0 {
		return nil, errors.New("replay: empty history")
	}
	started, ok := history[0].(*api.WorkflowStarted)
	if !ok {
		return nil, fmt.Errorf("replay: history must begin with %s, got %s",
			(*api.WorkflowStarted)(nil).EventName(), history[0].EventName())
	}
	entry, err := s.registry.workflow(started.Name, started.Version)
	if err != nil {
		return nil, err
	}

	ec := newExecutionContext(s, started)
	defer ec.dispatcher.close()

	ec.replaying = len(history) > 1
	ec.start(entry)
	ec.run()

	for pos := 1; pos < len(history) && !ec.halted(); pos++ {
		ec.replaying = pos < len(history)-1
		if err := ec.apply(pos, history[pos]); err != nil {
			ec.abort(err)
			break
		}
		ec.history = append(ec.history, history[pos])
		ec.run()
	}
	return ec.decision(), nil
}

type slotKind int

const (
	slotTask slotKind = iota
	slotTimer
	slotDeadline
)

type slotPhase int

const (
	phaseGated slotPhase = iota
	phaseIssued
	phaseRunning
	phaseBackoffIssued
	phaseBackingOff
	phaseDone
)

// slot is the history position of one logical call. Retries of a task reuse
// its slot and bump attempt.
type slot struct {
	kind   slotKind
	seq    int64
	phase  slotPhase
	future *future

	name, version string
	input         []byte
	timeout       time.Duration
	policy        *RetryPolicy
	attempt       int32
	delay         time.Duration
}

// executionContext is the state of one decision cycle. It is never shared
// across cycles and never persisted.
type executionContext struct {
	sched  *Scheduler
	runID  api.RunID
	info   *api.WorkflowStarted
	logger *slog.Logger

	history []api.HistoryEvent
	nextSeq int64
	slots   map[int64]*slot
	// issued holds commands not yet matched against history, in issue order.
	issued []api.HistoryEvent

	dispatcher *dispatcher
	root       *coroutine
	replaying  bool

	rootDone   bool
	rootResult []byte
	rootErr    error
	terminated bool

	fatal   error
	aborted error
}

func newExecutionContext(s *Scheduler, started *api.WorkflowStarted) *executionContext {
	return &executionContext{
		sched:      s,
		runID:      started.RunID,
		info:       started,
		logger:     s.logger.With("run_id", started.RunID),
		history:    []api.HistoryEvent{started},
		nextSeq:    1,
		slots:      make(map[int64]*slot),
		dispatcher: &dispatcher{},
	}
}

func (ec *executionContext) newFuture() *future {
	f := &future{
		seq:       ec.nextSeq,
		serde:     ec.sched.serde,
		converter: ec.sched.converter,
	}
	ec.nextSeq++
	return f
}

// settle resolves f and records a double resolution as fatal for the run.
func (ec *executionContext) settle(f *future, value any, err error) {
	if rerr := f.resolve(value, err); rerr != nil && ec.fatal == nil {
		ec.fatal = rerr
	}
}

func (ec *executionContext) issue(cmd api.HistoryEvent) {
	ec.issued = append(ec.issued, cmd)
}

func (ec *executionContext) start(entry *workflowEntry) {
	if ec.info.TimeoutMs > 0 {
		deadline := &slot{
			kind:  slotDeadline,
			seq:   0,
			phase: phaseIssued,
			delay: time.Duration(ec.info.TimeoutMs) * time.Millisecond,
		}
		ec.slots[0] = deadline
		ec.issue(&api.TimerStarted{RunID: ec.runID, Seq: 0, DelayMs: ec.info.TimeoutMs})
	}

	wctx := newWorkflowContext(ec)
	ec.root = ec.dispatcher.spawn("root", func() {
		result, err := entry.handler.call(wctx, ec.info.Input, ec.sched.serde)
		ec.rootDone = true
		ec.rootResult, ec.rootErr = result, err
		if err != nil {
			ec.issue(&api.WorkflowFailed{RunID: ec.runID, Kind: failureKind(err), Message: err.Error()})
			return
		}
		ec.issue(&api.WorkflowCompleted{RunID: ec.runID, Result: result})
	})
}

func (ec *executionContext) run() {
	if ec.aborted != nil {
		return
	}
	if err := ec.dispatcher.runUntilBlocked(); err != nil {
		ec.abort(err)
		return
	}
	if ec.fatal != nil {
		ec.abort(ec.fatal)
	}
}

func (ec *executionContext) abort(err error) {
	if ec.aborted == nil {
		ec.aborted = err
	}
}

func (ec *executionContext) halted() bool {
	return ec.aborted != nil || ec.terminated
}

func (ec *executionContext) decision() *Decision {
	switch {
	case ec.aborted != nil:
		err := ec.aborted
		return &Decision{
			State: RunFailed,
			Err:   err,
			Commands: []api.HistoryEvent{
				&api.WorkflowFailed{RunID: ec.runID, Kind: failureKind(err), Message: err.Error()},
			},
		}
	case ec.rootDone:
		d := &Decision{State: RunCompleted, Result: ec.rootResult, Commands: ec.issued}
		if ec.rootErr != nil {
			d.State, d.Err, d.Result = RunFailed, ec.rootErr, nil
		}
		return d
	default:
		return &Decision{State: RunSuspended, Commands: ec.issued, SuspendedAt: ec.root.blockedSeq}
	}
}

func (ec *executionContext) dispatch(name, version string, input any, timeout time.Duration, policy *RetryPolicy, waitFor []*future) Future {
	f := ec.newFuture()
	if timeout <= 0 {
		if entry, err := ec.sched.registry.task(name, version); err == nil {
			timeout = entry.opts.DefaultTimeout
		}
	}
	payload, err := ec.sched.serde.SerializeBinary(input)
	if err != nil {
		ec.settle(f, nil, fmt.Errorf("encode input of %s: %w", api.TaskKey(name, version), err))
		return f
	}

	s := &slot{
		kind:    slotTask,
		seq:     f.seq,
		phase:   phaseGated,
		future:  f,
		name:    name,
		version: version,
		input:   payload,
		timeout: timeout,
		policy:  policy,
		attempt: 1,
	}
	ec.slots[f.seq] = s

	whenAllSettled(waitFor, func() {
		if err := firstFailure(waitFor); err != nil {
			s.phase = phaseDone
			ec.settle(f, nil, err)
			return
		}
		ec.issueTask(s)
	})
	return f
}

func (ec *executionContext) issueTask(s *slot) {
	s.phase = phaseIssued
	ec.issue(&api.TaskScheduled{
		RunID:       ec.runID,
		Seq:         s.seq,
		Attempt:     s.attempt,
		Name:        s.name,
		Version:     s.version,
		Input:       s.input,
		TimeoutMs:   s.timeout.Milliseconds(),
		RetryPolicy: s.policy.toAPI(),
	})
}

func (ec *executionContext) newTimer(d time.Duration) Future {
	f := ec.newFuture()
	if d <= 0 {
		ec.settle(f, nil, nil)
		return f
	}
	ec.slots[f.seq] = &slot{kind: slotTimer, seq: f.seq, phase: phaseIssued, future: f, delay: d}
	ec.issue(&api.TimerStarted{RunID: ec.runID, Seq: f.seq, DelayMs: d.Milliseconds()})
	return f
}

// apply feeds one recorded history event into the cycle.
func (ec *executionContext) apply(pos int, e api.HistoryEvent) error {
	switch e := e.(type) {
	case *api.TaskScheduled, *api.TimerStarted, *api.WorkflowCompleted, *api.WorkflowFailed:
		return ec.match(pos, e)

	case *api.TaskCompleted:
		s, err := ec.expect(pos, e, e.Seq, e.Attempt, slotTask, phaseRunning)
		if err != nil {
			return err
		}
		s.phase = phaseDone
		return s.future.resolve(encodedValue(e.Result), nil)

	case *api.TaskFailed:
		s, err := ec.expect(pos, e, e.Seq, e.Attempt, slotTask, phaseRunning)
		if err != nil {
			return err
		}
		return ec.taskFailed(s, &TaskFailureError{
			Task:         api.TaskKey(s.name, s.version),
			Type:         e.ErrorType,
			Message:      e.Message,
			NonRetryable: e.NonRetryable,
		})

	case *api.TaskTimedOut:
		s, err := ec.expect(pos, e, e.Seq, e.Attempt, slotTask, phaseRunning)
		if err != nil {
			return err
		}
		return ec.taskFailed(s, &TaskTimeoutError{
			Task:    api.TaskKey(s.name, s.version),
			Timeout: time.Duration(e.TimeoutMs) * time.Millisecond,
		})

	case *api.TimerFired:
		return ec.timerFired(pos, e)

	case *api.WorkflowStarted:
		return &NonDeterminismError{Position: pos, Expected: "no event", Got: describe(e)}

	default:
		return fmt.Errorf("replay: unknown history event %T", e)
	}
}

// match pairs a recorded command with the oldest command the code issued.
func (ec *executionContext) match(pos int, recorded api.HistoryEvent) error {
	if len(ec.issued) == 0 {
		return &NonDeterminismError{Position: pos, Expected: "no command", Got: describe(recorded)}
	}
	head := ec.issued[0]
	if !sameCommand(head, recorded) {
		return &NonDeterminismError{Position: pos, Expected: describe(head), Got: describe(recorded)}
	}
	ec.issued = ec.issued[1:]

	switch cmd := head.(type) {
	case *api.TaskScheduled:
		ec.slots[cmd.Seq].phase = phaseRunning
	case *api.TimerStarted:
		s := ec.slots[cmd.Seq]
		if cmd.Backoff {
			s.phase = phaseBackingOff
		} else {
			s.phase = phaseRunning
		}
	case *api.WorkflowCompleted, *api.WorkflowFailed:
		ec.terminated = true
	}
	return nil
}

// expect returns the slot an outcome event refers to, checking that the slot
// is waiting for exactly that outcome.
func (ec *executionContext) expect(pos int, e api.HistoryEvent, seq int64, attempt int32, kind slotKind, phase slotPhase) (*slot, error) {
	s, ok := ec.slots[seq]
	if !ok || s.kind != kind {
		return nil, &NonDeterminismError{Position: pos, Expected: fmt.Sprintf("no call at seq %d", seq), Got: describe(e)}
	}
	if s.future != nil && s.future.settled() {
		return nil, fmt.Errorf("%w: seq %d received %s after settling", ErrDoubleResolution, seq, e.EventName())
	}
	if (kind == slotTask && s.attempt != attempt) || s.phase != phase {
		return nil, &NonDeterminismError{
			Position: pos,
			Expected: fmt.Sprintf("seq %d waiting at attempt %d", seq, s.attempt),
			Got:      describe(e),
		}
	}
	return s, nil
}

func (ec *executionContext) taskFailed(s *slot, cause error) error {
	if s.policy != nil && !s.policy.Exhausted(s.attempt) && s.policy.Retryable(cause) {
		delay := s.policy.Delay(s.attempt)
		s.phase = phaseBackoffIssued
		ec.issue(&api.TimerStarted{
			RunID:   ec.runID,
			Seq:     s.seq,
			Attempt: s.attempt,
			DelayMs: delay.Milliseconds(),
			Backoff: true,
		})
		if !ec.replaying {
			ec.logger.Debug("task attempt failed, backing off",
				"task", api.TaskKey(s.name, s.version), "seq", s.seq, "attempt", s.attempt, "delay", delay, "error", cause)
		}
		return nil
	}

	s.phase = phaseDone
	if s.policy != nil && s.policy.Exhausted(s.attempt) {
		cause = &RetriesExhaustedError{Attempts: s.attempt, Last: cause}
	}
	return s.future.resolve(nil, cause)
}

func (ec *executionContext) timerFired(pos int, e *api.TimerFired) error {
	s, ok := ec.slots[e.Seq]
	if !ok {
		return &NonDeterminismError{Position: pos, Expected: fmt.Sprintf("no timer at seq %d", e.Seq), Got: describe(e)}
	}

	switch {
	case s.kind == slotDeadline && s.phase == phaseRunning:
		s.phase = phaseDone
		return &WorkflowTimeoutError{Timeout: s.delay}
	case s.kind == slotTimer && s.phase == phaseRunning:
		s.phase = phaseDone
		return s.future.resolve(nil, nil)
	case s.kind == slotTask && s.phase == phaseBackingOff && s.attempt == e.Attempt:
		s.attempt++
		ec.issueTask(s)
		return nil
	case s.future != nil && s.future.settled():
		return fmt.Errorf("%w: seq %d received %s after settling", ErrDoubleResolution, e.Seq, e.EventName())
	default:
		return &NonDeterminismError{Position: pos, Expected: fmt.Sprintf("seq %d not waiting on a timer", e.Seq), Got: describe(e)}
	}
}

func sameCommand(issued, recorded api.HistoryEvent) bool {
	switch a := issued.(type) {
	case *api.TaskScheduled:
		b, ok := recorded.(*api.TaskScheduled)
		return ok && a.Seq == b.Seq && a.Attempt == b.Attempt && a.Name == b.Name && a.Version == b.Version
	case *api.TimerStarted:
		b, ok := recorded.(*api.TimerStarted)
		return ok && a.Seq == b.Seq && a.Attempt == b.Attempt && a.DelayMs == b.DelayMs && a.Backoff == b.Backoff
	case *api.WorkflowCompleted:
		b, ok := recorded.(*api.WorkflowCompleted)
		return ok && bytes.Equal(a.Result, b.Result)
	case *api.WorkflowFailed:
		b, ok := recorded.(*api.WorkflowFailed)
		return ok && a.Kind == b.Kind && a.Message == b.Message
	default:
		return false
	}
}

func describe(e api.HistoryEvent) string {
	switch e := e.(type) {
	case *api.TaskScheduled:
		return fmt.Sprintf("%s(seq=%d attempt=%d %s)", e.EventName(), e.Seq, e.Attempt, api.TaskKey(e.Name, e.Version))
	case *api.TaskCompleted:
		return fmt.Sprintf("%s(seq=%d attempt=%d)", e.EventName(), e.Seq, e.Attempt)
	case *api.TaskFailed:
		return fmt.Sprintf("%s(seq=%d attempt=%d)", e.EventName(), e.Seq, e.Attempt)
	case *api.TaskTimedOut:
		return fmt.Sprintf("%s(seq=%d attempt=%d)", e.EventName(), e.Seq, e.Attempt)
	case *api.TimerStarted:
		return fmt.Sprintf("%s(seq=%d attempt=%d delay=%dms)", e.EventName(), e.Seq, e.Attempt, e.DelayMs)
	case *api.TimerFired:
		return fmt.Sprintf("%s(seq=%d attempt=%d)", e.EventName(), e.Seq, e.Attempt)
	case *api.WorkflowFailed:
		return fmt.Sprintf("%s(%s)", e.EventName(), e.Kind)
	default:
		return e.EventName()
	}
}
