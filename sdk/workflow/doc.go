// Package workflow provides the programming model for writing durable workflows.
//
// Workflows are deterministic functions that orchestrate tasks. The engine
// records every task, timer and outcome in the run's history and rebuilds the
// run by replaying that history through the same code, so a workflow
// survives process restarts without keeping state in memory.
//
// # Writing Workflows
//
// A workflow is a regular Go function that takes a workflow.Context as its first parameter:
//
//	func Checkout(ctx workflow.Context, order Order) (Receipt, error) {
//		var receipt Receipt
//		err := workflow.Dispatch(ctx, "charge", "v1", order, 30*time.Second).Get(ctx, &receipt)
//		if err != nil {
//			return Receipt{}, err
//		}
//		return receipt, nil
//	}
//
// # Determinism
//
// Workflows must be deterministic. This means:
//   - No direct I/O operations (filesystem, network, database)
//   - No random number generation
//   - No direct time/date operations (use workflow timers)
//   - No goroutines (use workflow.Go instead)
//
// Every Dispatch, NewTimer, Join, Substitute and Synchronize call takes the
// next sequence number of the run. Replay matches recorded history against
// these numbers, so the calls must happen in the same order every time. A
// run whose code diverges from its history fails with *NonDeterminismError.
//
// # Dispatching Tasks
//
// Tasks are addressed by name and version, and run on any worker that
// registered that pair:
//
//	a := workflow.Dispatch(ctx, "fetch", "v1", "left", 0)
//	b := workflow.Dispatch(ctx, "fetch", "v1", "right", 0)
//	// merge runs only after a and b are fulfilled
//	merged := workflow.Dispatch(ctx, "merge", "v1", nil, 0, a, b)
//
// # Retries
//
// DispatchWithRetry re-issues a failing task. Each backoff wait is a durable
// timer recorded in history:
//
//	policy := workflow.RetryPolicy{
//		InitialInterval:    2 * time.Second,
//		BackoffCoefficient: 2.0,
//		MaximumInterval:    time.Minute,
//		MaximumAttempts:    5,
//	}
//	err := workflow.DispatchWithRetry(ctx, policy, "charge", "v1", order, 0).Get(ctx, &receipt)
//
// Once the attempts run out the future fails with *RetriesExhaustedError.
//
// # Combinators
//
// Join collects values in input order. Substitute replaces a set of
// completions with a fixed value. Synchronize passes a value through once
// other futures are done.
//
// # Error Handling
//
// Workflows can return errors. If a workflow returns an error, the workflow
// execution fails and the error is returned to the client.
package workflow
