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

	"github.com/ngnhng/replayflow/api"
)

type taskInfoKey struct{}

// TaskInfo describes the attempt a task handler is running.
type TaskInfo struct {
	RunID        api.RunID
	InvocationID api.InvocationID
	Seq          int64
	Attempt      int32
	Name         string
	Version      string
}

func withTaskInfo(ctx context.Context, inv *api.TaskInvocation) context.Context {
	return context.WithValue(ctx, taskInfoKey{}, TaskInfo{
		RunID:        inv.RunID,
		InvocationID: inv.ID,
		Seq:          inv.Seq,
		Attempt:      inv.Attempt,
		Name:         inv.Name,
		Version:      inv.Version,
	})
}

// GetTaskInfo returns the attempt info carried by a task handler's context.
func GetTaskInfo(ctx context.Context) (TaskInfo, bool) {
	info, ok := ctx.Value(taskInfoKey{}).(TaskInfo)
	return info, ok
}
