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
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const Version = "1.0.0"

// Task names. Every task is registered under Version.
const (
	TaskArriveGate = "horse.arriveGate"
	TaskRunLap     = "horse.runLap"

	TaskAnnounceRace     = "announcer.race"
	TaskAnnounceLap      = "announcer.lap"
	TaskAnnouncePlace    = "announcer.place"
	TaskAnnounceFinished = "announcer.finished"
	TaskAnnounceInjury   = "announcer.injury"
	TaskAnnounceMissing  = "announcer.missing"
	TaskAnnounceEnd      = "announcer.end"

	TaskSystemLog = "system.log"
)

type (
	// Input starts a race.
	Input struct {
		Horses []string `json:"horses"`
		Laps   int      `json:"laps"`
	}

	LapInput struct {
		Horse string `json:"horse"`
		Lap   int    `json:"lap"`
	}

	PlaceInput struct {
		Horse string `json:"horse"`
		Place int    `json:"place"`
	}
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type HorseOptions struct {
	// Rand drives delays and injuries. Defaults to a randomly seeded source.
	Rand   *rand.Rand
	Sleep  SleepFunc
	Logger *slog.Logger
}

// Horses simulates the field.
type Horses struct {
	gateDelayMax time.Duration
	lapDelayMax  time.Duration
	injuryChance float64

	mu     sync.Mutex
	rng    *rand.Rand
	sleep  SleepFunc
	logger *slog.Logger
}

func NewHorses(card Card, opts HorseOptions) *Horses {
	h := &Horses{
		gateDelayMax: card.GateDelayMax,
		lapDelayMax:  card.LapDelayMax,
		injuryChance: card.InjuryChance,
		rng:          opts.Rand,
		sleep:        opts.Sleep,
		logger:       opts.Logger,
	}
	if h.rng == nil {
		h.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if h.sleep == nil {
		h.sleep = sleepContext
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

func (h *Horses) delay(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return time.Duration(h.rng.Int64N(int64(limit)))
}

func (h *Horses) injured() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64() < h.injuryChance
}

// ArriveGate walks a horse to the gate.
func (h *Horses) ArriveGate(ctx context.Context, name string) error {
	d := h.delay(h.gateDelayMax)
	h.logger.Info("approaching gate", "horse", name)
	if err := h.sleep(ctx, d); err != nil {
		return err
	}
	h.logger.Info("arrived at gate", "horse", name, "after", d)
	return nil
}

// RunLap runs one lap. An injured horse pulls up early.
func (h *Horses) RunLap(ctx context.Context, in LapInput) (Status, error) {
	status, limit := StatusOK, h.lapDelayMax
	if h.injured() {
		status, limit = StatusInjury, h.lapDelayMax/2
	}
	d := h.delay(limit)
	h.logger.Info("starting lap", "horse", in.Horse, "lap", in.Lap)
	if err := h.sleep(ctx, d); err != nil {
		return StatusUnknown, err
	}
	h.logger.Info("lap run", "horse", in.Horse, "lap", in.Lap, "status", status, "after", d)
	return status, nil
}

// Announcer calls the race to out.
type Announcer struct {
	instance int
	mu       sync.Mutex
	out      io.Writer
}

func NewAnnouncer(instance int, out io.Writer) *Announcer {
	return &Announcer{instance: instance, out: out}
}

func (a *Announcer) say(format string, args ...any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := fmt.Fprintf(a.out, "ANNOUNCER %d: %s\n", a.instance, fmt.Sprintf(format, args...))
	return err
}

func (a *Announcer) Race(_ context.Context, in Input) error {
	var b strings.Builder
	b.WriteString("Running ")
	for _, name := range in.Horses {
		fmt.Fprintf(&b, "'%s' ", name)
	}
	fmt.Fprintf(&b, "for %d laps.", in.Laps)
	if err := a.say("%s", b.String()); err != nil {
		return err
	}
	return a.say("And they're off!")
}

func (a *Announcer) Lap(_ context.Context, in LapInput) error {
	return a.say("'%s' just completed lap %d.", in.Horse, in.Lap)
}

func (a *Announcer) Place(_ context.Context, in PlaceInput) error {
	return a.say("'%s' has finished the race in place %d!", in.Horse, in.Place)
}

func (a *Announcer) Finished(_ context.Context, name string) error {
	return a.say("'%s' finished the race without placing.", name)
}

func (a *Announcer) Injury(_ context.Context, name string) error {
	return a.say("'%s' is injured and leaving the field.", name)
}

func (a *Announcer) Missing(_ context.Context, name string) error {
	return a.say("What happened to '%s'?!", name)
}

func (a *Announcer) End(_ context.Context) error {
	return a.say("...and the race is over.")
}

// System writes operational messages to out.
type System struct {
	instance int
	mu       sync.Mutex
	out      io.Writer
}

func NewSystem(instance int, out io.Writer) *System {
	return &System{instance: instance, out: out}
}

func (s *System) Log(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "SYSTEM %d: %s\n", s.instance, msg)
	return err
}
