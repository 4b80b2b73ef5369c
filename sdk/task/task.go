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

package task

import (
	"context"

	"github.com/ngnhng/replayflow/sdk/internal"
)

// Info describes the attempt a handler is running.
type Info = internal.TaskInfo

// GetInfo returns the attempt info of ctx. ok is false outside a task handler.
func GetInfo(ctx context.Context) (info Info, ok bool) {
	return internal.GetTaskInfo(ctx)
}

// NewNonRetryableError marks err so that no retry policy re-issues the task.
func NewNonRetryableError(err error) error {
	return internal.NewNonRetryableError(err)
}
