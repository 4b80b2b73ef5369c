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

// Package memory implements the execution service in process. It keeps the
// task queue, the event feed, timers and results in memory, which makes it
// the service of tests and single-process runs.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ngnhng/replayflow/api"
)

const DefaultMaxDeliveries = 5

var _ api.Service = (*Service)(nil)

type Options struct {
	Clock  Clock
	Logger *slog.Logger
	// MaxDeliveries bounds redeliveries of an entry whose handler keeps failing.
	MaxDeliveries int
}

type Service struct {
	clock         Clock
	logger        *slog.Logger
	maxDeliveries int

	tasks    *queue[*api.TaskInvocation]
	outcomes *queue[*api.Outcome]

	mu      sync.Mutex
	seen    map[string]struct{}
	timers  map[api.TimerID]func()
	results map[api.RunID]*api.RunResult
	done    map[api.RunID]chan struct{}
}

func New(opts Options) *Service {
	s := &Service{
		clock:         opts.Clock,
		logger:        opts.Logger,
		maxDeliveries: opts.MaxDeliveries,
		tasks:         newQueue[*api.TaskInvocation](),
		outcomes:      newQueue[*api.Outcome](),
		seen:          make(map[string]struct{}),
		timers:        make(map[api.TimerID]func()),
		results:       make(map[api.RunID]*api.RunResult),
		done:          make(map[api.RunID]chan struct{}),
	}
	if s.clock == nil {
		s.clock = RealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxDeliveries <= 0 {
		s.maxDeliveries = DefaultMaxDeliveries
	}
	return s
}

// firstSighting records id and reports whether it was new.
func (s *Service) firstSighting(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

func (s *Service) Submit(ctx context.Context, inv *api.TaskInvocation) error {
	if !s.firstSighting("task/" + string(inv.ID)) {
		s.logger.Debug("dropping duplicate submission", "invocation", inv.ID)
		return nil
	}
	s.tasks.push(delivery[*api.TaskInvocation]{value: inv})
	return nil
}

func (s *Service) StartTimer(ctx context.Context, req *api.TimerRequest) error {
	if !s.firstSighting("timer/" + string(req.ID)) {
		return nil
	}
	fired := &api.Outcome{
		Kind:    api.OutcomeTimerFired,
		RunID:   req.RunID,
		Seq:     req.Seq,
		Attempt: req.Attempt,
	}
	cancel := s.clock.AfterFunc(req.Delay(), func() {
		s.mu.Lock()
		delete(s.timers, req.ID)
		s.mu.Unlock()
		if err := s.Report(context.Background(), fired); err != nil {
			s.logger.Error("failed to report fired timer", "timer", req.ID, "error", err)
		}
	})

	s.mu.Lock()
	s.timers[req.ID] = cancel
	s.mu.Unlock()
	return nil
}

func (s *Service) Report(ctx context.Context, o *api.Outcome) error {
	if !s.firstSighting("outcome/" + o.DedupID()) {
		s.logger.Debug("dropping duplicate outcome", "id", o.DedupID())
		return nil
	}
	s.outcomes.push(delivery[*api.Outcome]{value: o})
	return nil
}

func (s *Service) ConsumeTasks(ctx context.Context, limit int, handle api.TaskHandler) error {
	if limit < 1 {
		limit = 1
	}
	slots := make(chan struct{}, limit)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		d, err := s.tasks.pop(ctx)
		if err != nil {
			return nil
		}
		wg.Add(1)
		go func() {
			defer func() {
				<-slots
				wg.Done()
			}()
			settle(s, s.tasks, d, handle(ctx, d.value))
		}()
	}
}

func (s *Service) ConsumeOutcomes(ctx context.Context, handle api.OutcomeHandler) error {
	return consume[*api.Outcome](ctx, s, s.outcomes, handle)
}

func consume[T any](ctx context.Context, s *Service, q *queue[T], handle func(context.Context, T) error) error {
	for {
		d, err := q.pop(ctx)
		if err != nil {
			return nil
		}
		settle(s, q, d, handle(ctx, d.value))
	}
}

// settle drops d when its handler succeeded and puts it back at the head of
// q otherwise, until maxDeliveries is reached.
func settle[T any](s *Service, q *queue[T], d delivery[T], err error) {
	defer q.release()
	if err == nil {
		return
	}
	d.attempts++
	if d.attempts >= s.maxDeliveries {
		s.logger.Error("dropping entry after repeated failures", "attempts", d.attempts, "error", err)
		return
	}
	s.logger.Warn("handler failed, redelivering", "attempt", d.attempts, "error", err)
	q.pushFront(d)
}

func (s *Service) PublishResult(ctx context.Context, r *api.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.RunID]; ok {
		return nil
	}
	s.results[r.RunID] = r
	close(s.doneLocked(r.RunID))

	for id, cancel := range s.timers {
		if strings.HasPrefix(string(id), string(r.RunID)+"/") {
			cancel()
			delete(s.timers, id)
		}
	}
	return nil
}

func (s *Service) doneLocked(runID api.RunID) chan struct{} {
	ch, ok := s.done[runID]
	if !ok {
		ch = make(chan struct{})
		s.done[runID] = ch
	}
	return ch
}

func (s *Service) AwaitResult(ctx context.Context, runID api.RunID) (*api.RunResult, error) {
	s.mu.Lock()
	ch := s.doneLocked(runID)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("await %s: %w", runID, ctx.Err())
	case <-ch:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[runID], nil
}

// Idle reports whether no task or outcome is queued or being handled.
func (s *Service) Idle() bool {
	return s.tasks.len() == 0 && s.outcomes.len() == 0
}

// WaitIdle polls until the service is idle or ctx is done.
func (s *Service) WaitIdle(ctx context.Context, poll time.Duration) error {
	t := time.NewTicker(poll)
	defer t.Stop()
	for !s.Idle() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

type delivery[T any] struct {
	value    T
	attempts int
}

// queue is an unbounded FIFO safe for many producers and consumers. An entry
// popped from it stays claimed until released.
type queue[T any] struct {
	mu      sync.Mutex
	items   []delivery[T]
	claimed int
	signal  chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{signal: make(chan struct{}, 1)}
}

func (q *queue[T]) push(d delivery[T]) {
	q.mu.Lock()
	q.items = append(q.items, d)
	q.mu.Unlock()
	q.notify()
}

func (q *queue[T]) pushFront(d delivery[T]) {
	q.mu.Lock()
	q.items = append([]delivery[T]{d}, q.items...)
	q.mu.Unlock()
	q.notify()
}

func (q *queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// len counts queued and claimed entries.
func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.claimed
}

func (q *queue[T]) release() {
	q.mu.Lock()
	q.claimed--
	q.mu.Unlock()
}

func (q *queue[T]) pop(ctx context.Context) (delivery[T], error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			d := q.items[0]
			q.items = q.items[1:]
			q.claimed++
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return d, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero delivery[T]
			return zero, ctx.Err()
		case <-q.signal:
		}
	}
}
