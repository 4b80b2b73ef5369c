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

// Join returns a future of the values of futures, in input order. It settles
// only after every input has settled. If any input failed, it fails with the
// failure of the lowest input index.
//
// Decode the joined value with a slice pointer:
//
//	var outs []string
//	err := Join(ctx, a, b, c).Get(ctx, &outs)
func Join(ctx Context, futures ...Future) Future {
	exec := mustWorkflowContext(ctx).exec
	inputs := asFutures(futures)
	joined := exec.newFuture()

	whenAllSettled(inputs, func() {
		if err := firstFailure(inputs); err != nil {
			exec.settle(joined, nil, err)
			return
		}
		exec.settle(joined, joinedValue(inputs), nil)
	})
	return joined
}

// Substitute returns a future of value that settles once every waitFor has
// settled. The values of waitFor are never read. A failed dependency fails the
// result with the lowest-index failure.
func Substitute(ctx Context, value any, waitFor ...Future) Future {
	exec := mustWorkflowContext(ctx).exec
	deps := asFutures(waitFor)
	substituted := exec.newFuture()

	whenAllSettled(deps, func() {
		if err := firstFailure(deps); err != nil {
			exec.settle(substituted, nil, err)
			return
		}
		exec.settle(substituted, value, nil)
	})
	return substituted
}

// Synchronize passes value through unchanged once value and every waitFor
// have settled. A failure of value wins over failures of waitFor.
func Synchronize(ctx Context, value Future, waitFor ...Future) Future {
	exec := mustWorkflowContext(ctx).exec
	all := asFutures(append([]Future{value}, waitFor...))
	synced := exec.newFuture()

	whenAllSettled(all, func() {
		if err := firstFailure(all); err != nil {
			exec.settle(synced, nil, err)
			return
		}
		exec.settle(synced, all[0].value, nil)
	})
	return synced
}
