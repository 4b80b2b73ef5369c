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
	"cmp"
	"fmt"
	"slices"

	"github.com/DeluxeOwl/chronicle/aggregate"
	"github.com/DeluxeOwl/chronicle/event"

	"github.com/ngnhng/replayflow/api"
)

var _ aggregate.Root[api.RunID, api.HistoryEvent] = (*execution)(nil)

// execution is the event-sourced history of one run. Besides the ordered
// history it tracks the work that was issued but has no outcome yet, so the
// runtime can drop stale outcomes and re-submit lost work.
type execution struct {
	aggregate.Base

	id      api.RunID
	started *api.WorkflowStarted
	history []api.HistoryEvent

	tasks  []*api.TaskScheduled
	timers []*api.TimerStarted
	result *api.RunResult
}

func newEmptyExecution() *execution {
	return &execution{}
}

func (e *execution) ID() api.RunID {
	return e.id
}

func (e *execution) EventFuncs() event.FuncsFor[api.HistoryEvent] {
	return event.FuncsFor[api.HistoryEvent]{
		func() api.HistoryEvent { return new(api.WorkflowStarted) },
		func() api.HistoryEvent { return new(api.TaskScheduled) },
		func() api.HistoryEvent { return new(api.TaskCompleted) },
		func() api.HistoryEvent { return new(api.TaskFailed) },
		func() api.HistoryEvent { return new(api.TaskTimedOut) },
		func() api.HistoryEvent { return new(api.TimerStarted) },
		func() api.HistoryEvent { return new(api.TimerFired) },
		func() api.HistoryEvent { return new(api.WorkflowCompleted) },
		func() api.HistoryEvent { return new(api.WorkflowFailed) },
	}
}

func (e *execution) Apply(evt api.HistoryEvent) error {
	if e.started == nil {
		started, ok := evt.(*api.WorkflowStarted)
		if !ok {
			return fmt.Errorf("history must begin with %s, got %s", (*api.WorkflowStarted)(nil).EventName(), evt.EventName())
		}
		e.id = started.RunID
		e.started = started
		e.history = append(e.history, evt)
		return nil
	}

	switch evt := evt.(type) {
	case *api.WorkflowStarted:
		return fmt.Errorf("run %s already started", e.id)
	case *api.TaskScheduled:
		e.tasks = append(e.tasks, evt)
	case *api.TaskCompleted:
		e.completeTask(evt.Seq, evt.Attempt)
	case *api.TaskFailed:
		e.completeTask(evt.Seq, evt.Attempt)
	case *api.TaskTimedOut:
		e.completeTask(evt.Seq, evt.Attempt)
	case *api.TimerStarted:
		e.timers = append(e.timers, evt)
	case *api.TimerFired:
		e.timers = removeFirst(e.timers, func(t *api.TimerStarted) bool {
			return t.Seq == evt.Seq && t.Attempt == evt.Attempt
		})
	case *api.WorkflowCompleted:
		e.finish(&api.RunResult{RunID: e.id, Result: evt.Result})
	case *api.WorkflowFailed:
		e.finish(&api.RunResult{RunID: e.id, Kind: evt.Kind, Error: evt.Message})
	default:
		return fmt.Errorf("unexpected history event: %T", evt)
	}
	e.history = append(e.history, evt)
	return nil
}

func (e *execution) recordThat(events ...api.HistoryEvent) error {
	return aggregate.RecordEvents(e, events...)
}

func (e *execution) completeTask(seq int64, attempt int32) {
	e.tasks = removeFirst(e.tasks, func(t *api.TaskScheduled) bool {
		return t.Seq == seq && t.Attempt == attempt
	})
}

func (e *execution) finish(r *api.RunResult) {
	e.result = r
	e.tasks = nil
	e.timers = nil
}

func (e *execution) terminal() bool {
	return e.result != nil
}

// startExecution records the first event of a new run.
func startExecution(req *api.StartRequest) (*execution, error) {
	e := newEmptyExecution()
	if err := e.recordThat(&api.WorkflowStarted{
		RunID:     req.RunID,
		Name:      req.Name,
		Version:   req.Version,
		Input:     req.Input,
		TimeoutMs: req.TimeoutMs,
	}); err != nil {
		return nil, fmt.Errorf("start run %s: %w", req.RunID, err)
	}
	return e, nil
}

// accept converts an outcome into its history event. It reports false when the
// outcome refers to no outstanding work, which is the case for redelivered or
// stale outcomes.
func (e *execution) accept(o *api.Outcome) (api.HistoryEvent, bool) {
	if e.terminal() {
		return nil, false
	}
	if o.Kind == api.OutcomeTimerFired {
		for _, t := range e.timers {
			if t.Seq == o.Seq && t.Attempt == o.Attempt {
				return &api.TimerFired{RunID: e.id, Seq: o.Seq, Attempt: o.Attempt}, true
			}
		}
		return nil, false
	}

	var scheduled *api.TaskScheduled
	for _, t := range e.tasks {
		if t.Seq == o.Seq && t.Attempt == o.Attempt {
			scheduled = t
			break
		}
	}
	if scheduled == nil {
		return nil, false
	}

	switch o.Kind {
	case api.OutcomeSucceeded:
		return &api.TaskCompleted{RunID: e.id, Seq: o.Seq, Attempt: o.Attempt, Result: o.Payload}, true
	case api.OutcomeFailed:
		return &api.TaskFailed{
			RunID:        e.id,
			Seq:          o.Seq,
			Attempt:      o.Attempt,
			ErrorType:    o.ErrorType,
			Message:      o.Message,
			NonRetryable: o.NonRetryable,
		}, true
	case api.OutcomeTimedOut:
		return &api.TaskTimedOut{RunID: e.id, Seq: o.Seq, Attempt: o.Attempt, TimeoutMs: scheduled.TimeoutMs}, true
	default:
		return nil, false
	}
}

// outstanding returns the commands of every piece of work that has no
// outcome yet, ordered by seq. Work of equal seq keeps issue order with tasks
// first.
func (e *execution) outstanding() []api.HistoryEvent {
	out := make([]api.HistoryEvent, 0, len(e.tasks)+len(e.timers))
	tasks := slices.SortedStableFunc(slices.Values(e.tasks), func(a, b *api.TaskScheduled) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	timers := slices.SortedStableFunc(slices.Values(e.timers), func(a, b *api.TimerStarted) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	for len(tasks) > 0 || len(timers) > 0 {
		if len(timers) == 0 || (len(tasks) > 0 && tasks[0].Seq <= timers[0].Seq) {
			out = append(out, tasks[0])
			tasks = tasks[1:]
			continue
		}
		out = append(out, timers[0])
		timers = timers[1:]
	}
	return out
}

func invocationFor(t *api.TaskScheduled) *api.TaskInvocation {
	return &api.TaskInvocation{
		ID:        api.NewInvocationID(t.RunID, t.Seq, t.Attempt),
		RunID:     t.RunID,
		Seq:       t.Seq,
		Attempt:   t.Attempt,
		Name:      t.Name,
		Version:   t.Version,
		Input:     t.Input,
		TimeoutMs: t.TimeoutMs,
	}
}

func timerFor(t *api.TimerStarted) *api.TimerRequest {
	return &api.TimerRequest{
		ID:      api.NewTimerID(t.RunID, t.Seq, t.Attempt),
		RunID:   t.RunID,
		Seq:     t.Seq,
		Attempt: t.Attempt,
		DelayMs: t.DelayMs,
	}
}

func removeFirst[T any](items []T, match func(T) bool) []T {
	for i, item := range items {
		if match(item) {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}
