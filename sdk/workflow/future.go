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
	"github.com/ngnhng/replayflow/sdk/internal"
)

// Future represents the result of an asynchronous operation in a workflow.
//
// Every future carries a sequence number assigned in creation order. The
// number is stable across replays, which is how a future finds its entry in
// the run's history.
//
// Example:
//
//	// Start tasks in parallel
//	a := workflow.Dispatch(ctx, "fetch", "v1", "a", 0)
//	b := workflow.Dispatch(ctx, "fetch", "v1", "b", 0)
//
//	var results []string
//	if err := workflow.Join(ctx, a, b).Get(ctx, &results); err != nil {
//		return err
//	}
//
// Get parks the calling coroutine until the future settles. During replay,
// settled futures return their recorded results immediately.
type Future = internal.Future

type FutureState = internal.FutureState

const (
	FuturePending   = internal.FuturePending
	FutureFulfilled = internal.FutureFulfilled
	FutureFailed    = internal.FutureFailed
)

// Join returns a future of the values of futures, in input order. It fails
// with the lowest-index failure once every input has settled.
func Join(ctx Context, futures ...Future) Future {
	return internal.Join(ctx, futures...)
}

// Substitute returns a future of value, fulfilled once every waitFor has
// settled successfully.
func Substitute(ctx Context, value any, waitFor ...Future) Future {
	return internal.Substitute(ctx, value, waitFor...)
}

// Synchronize passes value through once it and every waitFor have settled.
func Synchronize(ctx Context, value Future, waitFor ...Future) Future {
	return internal.Synchronize(ctx, value, waitFor...)
}
