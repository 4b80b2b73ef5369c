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

package client

import (
	"errors"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/sdk/internal"
)

// WorkflowRunError is returned by WorkflowRun.Get when the run failed.
type WorkflowRunError = internal.WorkflowRunError

// FailureKind returns the failure kind of a failed run, or "" when err is
// not a run failure.
func FailureKind(err error) api.FailureKind {
	var runErr *WorkflowRunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	return ""
}
