// Package task provides types and utilities for writing task handlers.
//
// Tasks are functions that perform non-deterministic operations such as:
//   - Database queries and updates
//   - External API calls
//   - File I/O operations
//
// # Writing Tasks
//
// A task is a regular Go function:
//
//	func Charge(ctx context.Context, order Order) (Receipt, error) {
//		return payments.Charge(ctx, order)
//	}
//
// Tasks accept context.Context as their first parameter. The context is
// canceled when the attempt's timeout expires.
//
// # Registration
//
// Tasks are registered with a worker under a name and version:
//
//	w.RegisterTask("charge", "v1", Charge, worker.TaskOptions{Timeout: 30 * time.Second})
//
// Workflows dispatch them by the same pair.
//
// # Error Handling
//
// A returned error fails the attempt. Under a retry policy the attempt may be
// retried; wrap the error with NewNonRetryableError to stop that.
package task
