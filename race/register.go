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
	"io"

	"github.com/ngnhng/replayflow/sdk/worker"
)

// Registrar is the part of a worker the race registers with.
type Registrar interface {
	RegisterWorkflow(name, version string, fn any, opts worker.WorkflowOptions) error
	RegisterTask(name, version string, fn any, opts worker.TaskOptions) error
}

// Handlers are the task implementations of a race.
type Handlers struct {
	Horses    *Horses
	Announcer *Announcer
	System    *System
}

// NewHandlers builds the default handlers, announcing to out.
func NewHandlers(card Card, instance int, out io.Writer, opts HorseOptions) Handlers {
	return Handlers{
		Horses:    NewHorses(card, opts),
		Announcer: NewAnnouncer(instance, out),
		System:    NewSystem(instance, out),
	}
}

func RegisterWorkflows(reg Registrar, card Card) error {
	return reg.RegisterWorkflow(WorkflowName, Version, NewFlow(card).Run,
		worker.WorkflowOptions{Timeout: card.WorkflowTimeout})
}

func RegisterTasks(reg Registrar, card Card, h Handlers) error {
	opts := worker.TaskOptions{Timeout: card.TaskTimeout}
	for _, entry := range []struct {
		name string
		fn   any
	}{
		{TaskArriveGate, h.Horses.ArriveGate},
		{TaskRunLap, h.Horses.RunLap},
		{TaskAnnounceRace, h.Announcer.Race},
		{TaskAnnounceLap, h.Announcer.Lap},
		{TaskAnnouncePlace, h.Announcer.Place},
		{TaskAnnounceFinished, h.Announcer.Finished},
		{TaskAnnounceInjury, h.Announcer.Injury},
		{TaskAnnounceMissing, h.Announcer.Missing},
		{TaskAnnounceEnd, h.Announcer.End},
		{TaskSystemLog, h.System.Log},
	} {
		if err := reg.RegisterTask(entry.name, Version, entry.fn, opts); err != nil {
			return fmt.Errorf("register %s: %w", entry.name, err)
		}
	}
	return nil
}
