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
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ngnhng/replayflow/sdk/workflow"
)

const (
	DefaultLaps            = 10
	DefaultGateDelayMax    = 2 * time.Second
	DefaultLapDelayMax     = 2 * time.Second
	DefaultInjuryChance    = 0.035
	DefaultTaskTimeout     = 15 * time.Second
	DefaultWorkflowTimeout = 900 * time.Second
)

// DefaultHorses is the field used when a card names none.
var DefaultHorses = []string{
	"Axlerod", "Bartholomew", "Cornelius", "Dexter", "Eustace", "Ferdinand", "George",
}

// RetryCard is the retry policy of every dispatch the race makes.
type RetryCard struct {
	InitialInterval    time.Duration `yaml:"initial_interval"`
	MaximumInterval    time.Duration `yaml:"maximum_interval"`
	BackoffCoefficient float64       `yaml:"backoff_coefficient"`
	MaximumAttempts    int32         `yaml:"maximum_attempts"`
}

// Card describes one race: the field, its length and how the simulated
// horses behave.
type Card struct {
	Horses []string `yaml:"horses"`
	Laps   int      `yaml:"laps"`

	// GateDelayMax bounds the random walk to the gate.
	GateDelayMax time.Duration `yaml:"gate_delay_max"`
	// LapDelayMax bounds a lap. An injured horse takes at most half of it.
	LapDelayMax  time.Duration `yaml:"lap_delay_max"`
	InjuryChance float64       `yaml:"injury_chance"`

	TaskTimeout     time.Duration `yaml:"task_timeout"`
	WorkflowTimeout time.Duration `yaml:"workflow_timeout"`
	Retry           RetryCard     `yaml:"retry"`
}

func DefaultCard() Card {
	return Card{
		Horses:          append([]string(nil), DefaultHorses...),
		Laps:            DefaultLaps,
		GateDelayMax:    DefaultGateDelayMax,
		LapDelayMax:     DefaultLapDelayMax,
		InjuryChance:    DefaultInjuryChance,
		TaskTimeout:     DefaultTaskTimeout,
		WorkflowTimeout: DefaultWorkflowTimeout,
		Retry: RetryCard{
			InitialInterval:    2 * time.Second,
			MaximumInterval:    30 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    5,
		},
	}
}

// ParseCard decodes a YAML card over the defaults, so a card only lists
// what it changes.
func ParseCard(data []byte) (Card, error) {
	card := DefaultCard()
	if err := yaml.Unmarshal(data, &card); err != nil {
		return Card{}, fmt.Errorf("parse race card: %w", err)
	}
	if err := card.Validate(); err != nil {
		return Card{}, err
	}
	return card, nil
}

func LoadCard(path string) (Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Card{}, fmt.Errorf("read race card: %w", err)
	}
	return ParseCard(data)
}

func (c Card) Validate() error {
	var errs []error
	if len(c.Horses) == 0 {
		errs = append(errs, errors.New("race needs at least one horse"))
	}
	seen := make(map[string]struct{}, len(c.Horses))
	for _, h := range c.Horses {
		if _, dup := seen[h]; dup {
			errs = append(errs, fmt.Errorf("horse %q entered twice", h))
		}
		seen[h] = struct{}{}
	}
	if c.Laps < 1 {
		errs = append(errs, fmt.Errorf("laps must be positive, got %d", c.Laps))
	}
	if c.InjuryChance < 0 || c.InjuryChance > 1 {
		errs = append(errs, fmt.Errorf("injury chance must be within [0, 1], got %g", c.InjuryChance))
	}
	if c.GateDelayMax < 0 || c.LapDelayMax < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.Retry.MaximumAttempts < 0 {
		errs = append(errs, errors.New("retry maximum attempts must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Card) RetryPolicy() workflow.RetryPolicy {
	return workflow.RetryPolicy{
		InitialInterval:    c.Retry.InitialInterval,
		MaximumInterval:    c.Retry.MaximumInterval,
		BackoffCoefficient: c.Retry.BackoffCoefficient,
		MaximumAttempts:    c.Retry.MaximumAttempts,
	}
}

// Input is the workflow input of the card.
func (c Card) Input() Input {
	return Input{Horses: append([]string(nil), c.Horses...), Laps: c.Laps}
}
