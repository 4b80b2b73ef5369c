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

// Package natsjs implements the execution service on NATS JetStream. Task
// invocations, outcomes and timers travel on work-queue streams and are
// deduplicated by message id; run results live in a KV bucket.
package natsjs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/api/serde"
	jetstreamx "github.com/ngnhng/replayflow/internal/infra/jetstream"
)

const (
	DefaultAckWait       = 30 * time.Second
	DefaultMaxDeliveries = 10
)

var _ api.Service = (*Service)(nil)

type Options struct {
	Topology Topology
	Serde    serde.BinarySerde
	Logger   *slog.Logger
	// Provision creates the streams and the result bucket on start.
	Provision bool
	AckWait   time.Duration
	// MaxDeliveries bounds redeliveries of a message whose handler keeps failing.
	MaxDeliveries int
	// Now is the wall clock used to schedule timers.
	Now func() time.Time
	// OnTimerFired, when set, is called after ServeTimers reports a timer.
	OnTimerFired func(*api.TimerRequest)
}

type Service struct {
	conn   *jetstreamx.Connection
	topo   Topology
	serde  serde.BinarySerde
	logger *slog.Logger

	ackWait       time.Duration
	maxDeliveries int
	now           func() time.Time
	onTimerFired  func(*api.TimerRequest)
}

func New(ctx context.Context, conn *jetstreamx.Connection, opts Options) (*Service, error) {
	if conn == nil {
		return nil, errors.New("natsjs: nil connection")
	}
	if err := opts.Topology.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		conn:          conn,
		topo:          opts.Topology,
		serde:         opts.Serde,
		logger:        opts.Logger,
		ackWait:       opts.AckWait,
		maxDeliveries: opts.MaxDeliveries,
		now:           opts.Now,
		onTimerFired:  opts.OnTimerFired,
	}
	if s.serde == nil {
		s.serde = &serde.MsgpackSerde{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ackWait <= 0 {
		s.ackWait = DefaultAckWait
	}
	if s.maxDeliveries <= 0 {
		s.maxDeliveries = DefaultMaxDeliveries
	}
	if s.now == nil {
		s.now = time.Now
	}

	if opts.Provision {
		if err := s.topo.Provision(ctx, conn); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) publish(ctx context.Context, subject, msgID string, value any, header nats.Header) error {
	data, err := s.serde.SerializeBinary(value)
	if err != nil {
		return fmt.Errorf("encode %T: %w", value, err)
	}
	_, err = s.conn.PublishMsg(ctx, &nats.Msg{Subject: subject, Data: data, Header: header}, jetstream.WithMsgID(msgID))
	return err
}

func (s *Service) Submit(ctx context.Context, inv *api.TaskInvocation) error {
	return s.publish(ctx, s.topo.TaskSubject(inv.Name), string(inv.ID), inv, nil)
}

func (s *Service) StartTimer(ctx context.Context, req *api.TimerRequest) error {
	timer := *req
	if timer.FireAt == 0 {
		timer.FireAt = s.now().Add(timer.Delay()).UnixMilli()
	}
	return s.publish(ctx, s.topo.TimerSubject(timer.RunID), string(timer.ID), &timer, nil)
}

func (s *Service) Report(ctx context.Context, o *api.Outcome) error {
	header := nats.Header{}
	header.Set(api.OutcomeKindHeader, string(o.Kind))
	return s.publish(ctx, s.topo.OutcomeSubject(o.RunID), o.DedupID(), o, header)
}

func (s *Service) ConsumeTasks(ctx context.Context, limit int, handle api.TaskHandler) error {
	return consume(ctx, s, s.topo.TasksStream(), s.topo.TaskConsumer(), s.topo.tasksFilter(), limit,
		func(ctx context.Context, inv *api.TaskInvocation) error { return handle(ctx, inv) })
}

func (s *Service) ConsumeOutcomes(ctx context.Context, handle api.OutcomeHandler) error {
	return consume(ctx, s, s.topo.OutcomesStream(), s.topo.OutcomeConsumer(), s.topo.outcomesFilter(), 1,
		func(ctx context.Context, o *api.Outcome) error { return handle(ctx, o) })
}

// consume runs a durable pull consumer until ctx is done, handling up to
// limit messages at once. A limit of one handles messages in stream order.
// Undecodable messages are terminated, failed ones are redelivered until the
// consumer's MaxDeliver is spent.
func consume[T any](ctx context.Context, s *Service, stream, durable, filter string, limit int, handle func(context.Context, *T) error) error {
	consumer, err := s.conn.EnsureConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       durable,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.ackWait,
		MaxDeliver:    s.maxDeliveries,
		MaxAckPending: max(limit, 1),
		FilterSubject: filter,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}

	settle := func(msg jetstream.Msg) {
		value := new(T)
		if err := s.serde.DeserializeBinary(msg.Data(), value); err != nil {
			s.logger.Error("could not decode message, terminating", "subject", msg.Subject(), "error", err)
			_ = msg.Term()
			return
		}
		if err := handle(ctx, value); err != nil {
			s.reject(msg, err)
			return
		}
		_ = msg.Ack()
	}

	var wg sync.WaitGroup
	slots := make(chan struct{}, max(limit, 1))
	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if limit <= 1 {
			settle(msg)
			return
		}
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			_ = msg.Nak()
			return
		}
		wg.Add(1)
		go func() {
			defer func() {
				<-slots
				wg.Done()
			}()
			settle(msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("consumer %s failed: %w", durable, err)
	}

	<-ctx.Done()
	cc.Stop()
	wg.Wait()
	s.logger.Debug("consumer stopped", "consumer", durable)
	return nil
}

// reject NAKs a message whose handler failed. On its last allowed delivery
// the message is terminated instead, so the server records why it stopped.
func (s *Service) reject(msg jetstream.Msg, cause error) {
	var delivered uint64
	if meta, err := msg.Metadata(); err == nil {
		delivered = meta.NumDelivered
	}
	if finalDelivery(delivered, s.maxDeliveries) {
		s.logger.Error("handler failed on final delivery, terminating",
			"subject", msg.Subject(), "deliveries", delivered, "error", cause)
		_ = msg.TermWithReason("max deliveries reached: " + cause.Error())
		return
	}
	s.logger.Warn("handler failed, sending NAK", "subject", msg.Subject(), "deliveries", delivered, "error", cause)
	_ = msg.Nak()
}

// finalDelivery reports whether a message delivered that many times will not
// be redelivered by a consumer allowing maxDeliver deliveries.
func finalDelivery(delivered uint64, maxDeliver int) bool {
	return maxDeliver > 0 && delivered >= uint64(maxDeliver)
}

// ServeTimers fires due timers as TimerFired outcomes until ctx is done.
// A timer that is not due yet is redelivered once it is.
func (s *Service) ServeTimers(ctx context.Context) error {
	consumer, err := s.conn.EnsureConsumer(ctx, s.topo.TimersStream(), jetstream.ConsumerConfig{
		Durable:       s.topo.TimerConsumer(),
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       s.ackWait,
		FilterSubject: s.topo.timersFilter(),
	})
	if err != nil {
		return fmt.Errorf("failed to create timer consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var timer api.TimerRequest
		if err := s.serde.DeserializeBinary(msg.Data(), &timer); err != nil {
			s.logger.Error("could not decode timer, terminating", "error", err)
			_ = msg.Term()
			return
		}

		if remaining := time.UnixMilli(timer.FireAt).Sub(s.now()); remaining > 0 {
			_ = msg.NakWithDelay(remaining)
			return
		}

		err := s.Report(ctx, &api.Outcome{
			Kind:    api.OutcomeTimerFired,
			RunID:   timer.RunID,
			Seq:     timer.Seq,
			Attempt: timer.Attempt,
		})
		if err != nil {
			s.logger.Warn("failed to report fired timer, sending NAK", "timer", timer.ID, "error", err)
			_ = msg.Nak()
			return
		}
		s.logger.Debug("timer fired", "timer", timer.ID)
		_ = msg.Ack()
		if s.onTimerFired != nil {
			s.onTimerFired(&timer)
		}
	})
	if err != nil {
		return fmt.Errorf("timer consumer failed: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	s.logger.Debug("timer service stopped")
	return nil
}

func (s *Service) PublishResult(ctx context.Context, r *api.RunResult) error {
	data, err := s.serde.SerializeBinary(r)
	if err != nil {
		return fmt.Errorf("encode run result: %w", err)
	}
	_, err = s.conn.Set(ctx, s.topo.ResultBucket(), string(r.RunID), data)
	return err
}

// Result returns the stored result of runID. ok is false while the run is
// still going.
func (s *Service) Result(ctx context.Context, runID api.RunID) (result *api.RunResult, ok bool, err error) {
	entry, err := s.conn.Get(ctx, s.topo.ResultBucket(), string(runID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	result = &api.RunResult{}
	if err := s.serde.DeserializeBinary(entry.Value(), result); err != nil {
		return nil, false, fmt.Errorf("decode run result: %w", err)
	}
	return result, true, nil
}

func (s *Service) AwaitResult(ctx context.Context, runID api.RunID) (*api.RunResult, error) {
	watcher, err := s.conn.WatchKV(ctx, s.topo.ResultBucket(), string(runID))
	if err != nil {
		return nil, fmt.Errorf("could not start KV watcher for key '%s': %w", runID, err)
	}
	defer func() { _ = watcher.Stop() }()
	s.logger.Debug("watching for run result", "run_id", runID)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case update, ok := <-watcher.Updates():
			if !ok {
				return nil, fmt.Errorf("watcher stopped without receiving a result: %w", ctx.Err())
			}
			// nil marks the end of the initial values.
			if update == nil || update.Operation() != jetstream.KeyValuePut {
				continue
			}
			var result api.RunResult
			if err := s.serde.DeserializeBinary(update.Value(), &result); err != nil {
				return nil, fmt.Errorf("decode run result: %w", err)
			}
			return &result, nil
		}
	}
}
