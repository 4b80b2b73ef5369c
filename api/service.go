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

package api

import "context"

type (
	// TaskHandler processes one delivered task invocation. A nil return
	// acknowledges the delivery; an error asks the service to redeliver it.
	TaskHandler func(ctx context.Context, inv *TaskInvocation) error

	// OutcomeHandler processes one entry of the event feed, with the same
	// acknowledgement rules as TaskHandler.
	OutcomeHandler func(ctx context.Context, o *Outcome) error
)

// Service is the execution service the runtime talks to. It moves task
// invocations to workers, carries outcomes and fired timers back on a single
// event feed, and keeps the final result of every run.
//
// Implementations must be idempotent: a Submit, StartTimer or Report that
// repeats an id already accepted is dropped without error.
type Service interface {
	// Submit enqueues a task invocation, keyed by inv.ID.
	Submit(ctx context.Context, inv *TaskInvocation) error
	// StartTimer arranges for an OutcomeTimerFired outcome after req.Delay,
	// keyed by req.ID.
	StartTimer(ctx context.Context, req *TimerRequest) error
	// Report appends an outcome to the event feed, keyed by o.DedupID.
	Report(ctx context.Context, o *Outcome) error

	// ConsumeTasks delivers task invocations to handle until ctx is done,
	// running up to limit handlers at once. A delivery is acknowledged when
	// its handler returns nil and redelivered when it returns an error.
	ConsumeTasks(ctx context.Context, limit int, handle TaskHandler) error
	// ConsumeOutcomes delivers the event feed to handle until ctx is done.
	// Outcomes of the same run are delivered in feed order.
	ConsumeOutcomes(ctx context.Context, handle OutcomeHandler) error

	// PublishResult stores the final result of a run.
	PublishResult(ctx context.Context, r *RunResult) error
	// AwaitResult blocks until the result of runID is published or ctx is done.
	AwaitResult(ctx context.Context, runID RunID) (*RunResult, error)
}
