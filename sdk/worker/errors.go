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

package worker

import (
	"errors"
	"fmt"

	"github.com/ngnhng/replayflow/sdk/internal"
)

var (
	// ErrWorkflowNotRegistered is returned when a workflow is not registered with the worker
	ErrWorkflowNotRegistered = internal.ErrWorkflowNotRegistered

	// ErrTaskNotRegistered is returned when a task is not registered with the worker
	ErrTaskNotRegistered = internal.ErrTaskNotRegistered

	// ErrNothingRegistered is returned by Run when the worker has neither workflows nor tasks
	ErrNothingRegistered = errors.New("worker has nothing registered")
)

// RegistrationError represents an error that occurred during function registration
type RegistrationError struct {
	Name    string
	Version string
	Cause   error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register %s@%s: %v", e.Name, e.Version, e.Cause)
}

func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// NewRegistrationError creates a new RegistrationError
func NewRegistrationError(name, version string, cause error) *RegistrationError {
	return &RegistrationError{
		Name:    name,
		Version: version,
		Cause:   cause,
	}
}
