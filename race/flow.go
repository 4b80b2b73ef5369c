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

package race

import (
	"fmt"

	"github.com/ngnhng/replayflow/sdk/workflow"
)

const WorkflowName = "race.flow"

// Result is how every horse left the race.
type Result struct {
	// Places lists the first three finishers in order.
	Places   []string `json:"places"`
	Finished []string `json:"finished,omitempty"`
	Injured  []string `json:"injured,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

// Flow is the race workflow. Every dispatch it makes runs under Policy.
type Flow struct {
	Policy workflow.RetryPolicy
}

func NewFlow(card Card) *Flow {
	return &Flow{Policy: card.RetryPolicy()}
}

// Run walks the horses to the gate, announces the race once all of them
// have arrived, runs every horse lap by lap in parallel and announces each
// result as it comes in.
func (f *Flow) Run(ctx workflow.Context, in Input) (Result, error) {
	policy := f.Policy
	ctx = workflow.WithTaskOptions(ctx, workflow.TaskOptions{RetryPolicy: &policy})
	logger := ctx.Logger()

	r := &running{ctx: ctx, nextPlace: 1}

	workflow.Dispatch(ctx, TaskSystemLog, Version,
		fmt.Sprintf("race %s: %d horses, %d laps", ctx.RunID(), len(in.Horses), in.Laps), 0)

	arrivals := make([]workflow.Future, len(in.Horses))
	for i, name := range in.Horses {
		arrivals[i] = workflow.Substitute(ctx, name, r.dispatch(TaskArriveGate, name))
	}
	ready := workflow.Join(ctx, arrivals...)
	announced := r.dispatch(TaskAnnounceRace, in, ready)

	finished := workflow.Async(ctx, func(ctx workflow.Context) (any, error) {
		var names []string
		if err := ready.Get(ctx, &names); err != nil {
			return nil, err
		}
		runs := make([]workflow.Future, len(names))
		for i, name := range names {
			runs[i] = r.runHorse(name, in.Laps)
		}
		return nil, workflow.Join(ctx, runs...).Get(ctx, nil)
	}, ready, announced)

	if err := r.dispatch(TaskAnnounceEnd, nil, finished).Get(ctx, nil); err != nil {
		logger.Error("race aborted", "error", err)
		return Result{}, err
	}
	logger.Info("race over", "places", r.result.Places)
	return r.result, nil
}

// running is the state of one run. Coroutines of a run never execute at the
// same time, so it needs no locking.
type running struct {
	ctx       workflow.Context
	nextPlace int
	result    Result
}

func (r *running) dispatch(task string, input any, waitFor ...workflow.Future) workflow.Future {
	return workflow.Dispatch(r.ctx, task, Version, input, 0, waitFor...)
}

// runHorse runs laps while the horse is OK, then announces its result.
func (r *running) runHorse(name string, laps int) workflow.Future {
	return workflow.Async(r.ctx, func(ctx workflow.Context) (any, error) {
		status := StatusOK
		for lap := 1; lap <= laps && status == StatusOK; lap++ {
			if err := r.dispatch(TaskRunLap, LapInput{Horse: name, Lap: lap}).Get(ctx, &status); err != nil {
				return nil, err
			}
			if status != StatusOK {
				break
			}
			if err := r.dispatch(TaskAnnounceLap, LapInput{Horse: name, Lap: lap}).Get(ctx, nil); err != nil {
				return nil, err
			}
		}
		return nil, r.announceResult(ctx, name, status)
	})
}

func (r *running) announceResult(ctx workflow.Context, name string, status Status) error {
	var announced workflow.Future
	switch status {
	case StatusOK:
		if r.nextPlace <= 3 {
			announced = r.dispatch(TaskAnnouncePlace, PlaceInput{Horse: name, Place: r.nextPlace})
			r.result.Places = append(r.result.Places, name)
			r.nextPlace++
		} else {
			announced = r.dispatch(TaskAnnounceFinished, name)
			r.result.Finished = append(r.result.Finished, name)
		}
	case StatusInjury:
		announced = r.dispatch(TaskAnnounceInjury, name)
		r.result.Injured = append(r.result.Injured, name)
	default:
		announced = r.dispatch(TaskAnnounceMissing, name)
		r.result.Missing = append(r.result.Missing, name)
	}
	return announced.Get(ctx, nil)
}
