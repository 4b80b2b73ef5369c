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
	"log/slog"
	"sync"
	"time"

	"github.com/DeluxeOwl/chronicle"
	"github.com/DeluxeOwl/chronicle/aggregate"
	"github.com/DeluxeOwl/chronicle/event"
	"github.com/DeluxeOwl/chronicle/eventlog"
	"github.com/DeluxeOwl/chronicle/version"
	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/api/serde"
)

const (
	DefaultTaskConcurrency = 16
	// DefaultConflictRetries bounds how often a decision is recomputed after
	// another writer appended to the same history.
	DefaultConflictRetries = 5
)

type RuntimeOptions struct {
	Service  Service
	Registry *Registry
	// EventLog stores run histories. Defaults to an in-memory log.
	EventLog event.Log
	Serde    serde.BinarySerde
	Logger   *slog.Logger

	TaskConcurrency int
	ConflictRetries uint
	// TaskTimeout bounds task attempts that neither the dispatch nor the
	// registration bounds.
	TaskTimeout time.Duration
}

// Runtime connects the scheduler and the task handlers of one process to an
// execution service. The decision loop runs when workflows are registered,
// the task loop when tasks are registered.
type Runtime struct {
	service  Service
	registry *Registry
	sched    *Scheduler
	repo     *aggregate.ESRepo[api.RunID, api.HistoryEvent, *execution]
	log      event.Log
	serde    serde.BinarySerde
	logger   *slog.Logger

	taskConcurrency int
	conflictRetries uint
	taskTimeout     time.Duration

	runs runLocks
}

func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	if opts.Service == nil {
		return nil, ErrNoService
	}
	if opts.Registry == nil {
		return nil, errors.New("runtime needs a registry")
	}
	s := opts.Serde
	if s == nil {
		s = &serde.MsgpackSerde{}
	}
	logger := defaultLogger(opts.Logger)

	log := opts.EventLog
	if log == nil {
		log = eventlog.NewMemory()
	}
	repo, err := chronicle.NewEventSourcedRepository(
		log,
		newEmptyExecution,
		nil,
		aggregate.EventSerializer(s),
	)
	if err != nil {
		return nil, fmt.Errorf("create history repository: %w", err)
	}

	sched, err := NewScheduler(SchedulerOptions{Registry: opts.Registry, Serde: s, Logger: logger})
	if err != nil {
		return nil, err
	}

	concurrency := opts.TaskConcurrency
	if concurrency <= 0 {
		concurrency = DefaultTaskConcurrency
	}
	retries := opts.ConflictRetries
	if retries == 0 {
		retries = DefaultConflictRetries
	}

	return &Runtime{
		service:         opts.Service,
		registry:        opts.Registry,
		sched:           sched,
		repo:            repo,
		log:             log,
		serde:           s,
		logger:          logger,
		taskConcurrency: concurrency,
		conflictRetries: retries,
		taskTimeout:     opts.TaskTimeout,
	}, nil
}

func (r *Runtime) Run(ctx context.Context) error {
	decide := r.registry.workflows.size() > 0
	work := r.registry.tasks.size() > 0
	if !decide && !work {
		return fmt.Errorf("runtime has no registered workflows or tasks")
	}

	g, gCtx := errgroup.WithContext(ctx)
	if decide {
		g.Go(func() error {
			r.logger.Info("decision loop started", "workflows", r.registry.Workflows())
			return r.service.ConsumeOutcomes(gCtx, r.HandleOutcome)
		})
	}
	if work {
		g.Go(func() error {
			r.logger.Info("task loop started", "tasks", r.registry.Tasks())
			return r.runTaskLoop(gCtx)
		})
	}
	return g.Wait()
}

// HandleOutcome appends one feed entry to its run's history, runs a decision
// cycle and carries out the resulting commands.
func (r *Runtime) HandleOutcome(ctx context.Context, o *api.Outcome) error {
	unlock := r.runs.lock(o.RunID)
	defer unlock()

	var commands []api.HistoryEvent
	err := retry.Do(
		func() error {
			var err error
			commands, err = r.decide(ctx, o)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.conflictRetries),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var conflict *version.ConflictError
			return errors.As(err, &conflict)
		}),
	)
	if err != nil {
		r.logger.Error("decision failed", "run_id", o.RunID, "outcome", o.Kind, "error", err)
		return err
	}
	return r.execute(ctx, commands)
}

// decide loads the run, records the outcome and the commands of the new
// decision, and saves. It returns the commands to carry out. A duplicate
// outcome records nothing and returns the work still outstanding, so a crash
// between saving and submitting is repaired by redelivery.
func (r *Runtime) decide(ctx context.Context, o *api.Outcome) ([]api.HistoryEvent, error) {
	ex, created, err := r.load(ctx, o)
	if err != nil || ex == nil {
		return nil, err
	}

	if !created {
		evt, ok := ex.accept(o)
		if !ok {
			r.logger.Debug("dropping duplicate outcome", "run_id", o.RunID, "outcome", o.Kind, "seq", o.Seq, "attempt", o.Attempt)
			return r.pending(ex), nil
		}
		if err := ex.recordThat(evt); err != nil {
			return nil, err
		}
	}

	decision, err := r.sched.Replay(ex.history)
	if err != nil {
		if !errors.Is(err, ErrWorkflowNotRegistered) {
			return nil, err
		}
		decision = &Decision{
			State: RunFailed,
			Err:   err,
			Commands: []api.HistoryEvent{
				&api.WorkflowFailed{RunID: ex.id, Kind: api.FailureWorkflow, Message: err.Error()},
			},
		}
	}
	if len(decision.Commands) > 0 {
		if err := ex.recordThat(decision.Commands...); err != nil {
			return nil, err
		}
	}
	if _, _, err := r.repo.Save(ctx, ex); err != nil {
		return nil, err
	}

	switch decision.State {
	case RunCompleted:
		r.logger.Info("run completed", "run_id", ex.id)
	case RunFailed:
		r.logger.Warn("run failed", "run_id", ex.id, "error", decision.Err)
	default:
		r.logger.Debug("run suspended", "run_id", ex.id, "seq", decision.SuspendedAt, "commands", len(decision.Commands))
	}
	return decision.Commands, nil
}

// load returns the run an outcome refers to. Start requests create the run
// when it does not exist yet; a nil execution means the outcome is dropped.
func (r *Runtime) load(ctx context.Context, o *api.Outcome) (ex *execution, created bool, err error) {
	started, err := r.started(ctx, o.RunID)
	if err != nil {
		return nil, false, fmt.Errorf("load run %s: %w", o.RunID, err)
	}
	switch {
	case started:
		ex, err = r.repo.Get(ctx, o.RunID)
		if err != nil {
			return nil, false, fmt.Errorf("load run %s: %w", o.RunID, err)
		}
		return ex, false, nil
	case o.Kind == api.OutcomeRunRequested && o.Start != nil:
		req := *o.Start
		if req.TimeoutMs <= 0 {
			req.TimeoutMs = r.registry.WorkflowTimeout(req.Name, req.Version).Milliseconds()
		}
		ex, err = startExecution(&req)
		return ex, err == nil, err
	default:
		r.logger.Warn("dropping outcome of unknown run", "run_id", o.RunID, "outcome", o.Kind)
		return nil, false, nil
	}
}

// started reports whether the run has any recorded history.
func (r *Runtime) started(ctx context.Context, runID api.RunID) (bool, error) {
	for _, err := range r.log.ReadEvents(ctx, event.LogID(runID), version.SelectFromBeginning) {
		return err == nil, err
	}
	return false, nil
}

// pending rebuilds the commands of the work a run is still waiting on.
func (r *Runtime) pending(ex *execution) []api.HistoryEvent {
	if ex.terminal() {
		return ex.history[len(ex.history)-1:]
	}
	return ex.outstanding()
}

func (r *Runtime) execute(ctx context.Context, commands []api.HistoryEvent) error {
	for _, cmd := range commands {
		var err error
		switch cmd := cmd.(type) {
		case *api.TaskScheduled:
			err = r.service.Submit(ctx, invocationFor(cmd))
		case *api.TimerStarted:
			err = r.service.StartTimer(ctx, timerFor(cmd))
		case *api.WorkflowCompleted:
			err = r.service.PublishResult(ctx, &api.RunResult{RunID: cmd.RunID, Result: cmd.Result})
		case *api.WorkflowFailed:
			err = r.service.PublishResult(ctx, &api.RunResult{RunID: cmd.RunID, Kind: cmd.Kind, Error: cmd.Message})
		}
		if err != nil {
			return fmt.Errorf("execute %s: %w", describe(cmd), err)
		}
	}
	return nil
}

// History returns the recorded history of a run.
func (r *Runtime) History(ctx context.Context, runID api.RunID) ([]api.HistoryEvent, error) {
	ex, err := r.repo.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return ex.history, nil
}

// runTaskLoop hands invocations to HandleTask. An invocation whose outcome was
// not reported stays with the service and is delivered again.
func (r *Runtime) runTaskLoop(ctx context.Context) error {
	return r.service.ConsumeTasks(ctx, r.taskConcurrency, func(ctx context.Context, inv *api.TaskInvocation) error {
		if err := r.HandleTask(ctx, inv); err != nil {
			r.logger.Warn("task outcome not reported", "invocation", inv.ID, "error", err)
			return err
		}
		return nil
	})
}

// HandleTask runs one task attempt and reports its outcome. When ctx ends
// before the attempt does, nothing is reported and the interruption is
// returned so the invocation can be delivered again.
func (r *Runtime) HandleTask(ctx context.Context, inv *api.TaskInvocation) error {
	outcome := &api.Outcome{
		RunID:        inv.RunID,
		Seq:          inv.Seq,
		Attempt:      inv.Attempt,
		InvocationID: inv.ID,
	}
	logger := r.logger.With("invocation", inv.ID, "task", api.TaskKey(inv.Name, inv.Version))

	entry, err := r.registry.task(inv.Name, inv.Version)
	if err != nil {
		logger.Error("task not registered", "error", err)
		outcome.Kind = api.OutcomeFailed
		outcome.ErrorType = "TaskNotRegistered"
		outcome.Message = err.Error()
		outcome.NonRetryable = true
		return r.service.Report(ctx, outcome)
	}

	timeout := inv.Timeout()
	if timeout <= 0 {
		timeout = entry.opts.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = r.taskTimeout
	}
	payload, err := r.invoke(withTaskInfo(ctx, inv), entry, inv.Input, timeout)
	if err != nil && ctx.Err() != nil {
		logger.Info("task interrupted", "attempt", inv.Attempt, "error", err)
		return fmt.Errorf("task %s interrupted: %w", inv.ID, context.Cause(ctx))
	}

	var timeoutErr *TaskTimeoutError
	switch {
	case err == nil:
		outcome.Kind = api.OutcomeSucceeded
		outcome.Payload = payload
		logger.Debug("task succeeded", "attempt", inv.Attempt)
	case errors.As(err, &timeoutErr):
		outcome.Kind = api.OutcomeTimedOut
		outcome.Message = err.Error()
		logger.Warn("task timed out", "attempt", inv.Attempt, "timeout", timeout)
	default:
		var nonRetryable *NonRetryableError
		outcome.Kind = api.OutcomeFailed
		outcome.ErrorType = errorType(err)
		outcome.Message = err.Error()
		if errors.As(err, &nonRetryable) {
			outcome.NonRetryable = true
			outcome.ErrorType = errorType(nonRetryable.Err)
		}
		logger.Warn("task failed", "attempt", inv.Attempt, "error", err)
	}
	return r.service.Report(ctx, outcome)
}

func (r *Runtime) invoke(ctx context.Context, entry *taskEntry, input []byte, timeout time.Duration) ([]byte, error) {
	tctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		payload []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("task panicked: %v", p)}
			}
		}()
		payload, err := entry.handler.call(tctx, input, r.serde)
		done <- result{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, &TaskTimeoutError{Task: api.TaskKey(entry.name, entry.version), Timeout: timeout}
		}
		return res.payload, res.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, &TaskTimeoutError{Task: api.TaskKey(entry.name, entry.version), Timeout: timeout}
		}
		return nil, tctx.Err()
	}
}

// runLocks serializes the decisions of each run within this process.
type runLocks struct {
	mu    sync.Mutex
	locks map[api.RunID]*runLock
}

type runLock struct {
	sync.Mutex
	refs int
}

func (l *runLocks) lock(id api.RunID) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[api.RunID]*runLock)
	}
	rl, ok := l.locks[id]
	if !ok {
		rl = &runLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
