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

// Package service opens the execution service and history store that
// workers and clients share.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DeluxeOwl/chronicle/event"

	"github.com/ngnhng/replayflow/api/serde"
	"github.com/ngnhng/replayflow/internal/historystore"
	jetstreamx "github.com/ngnhng/replayflow/internal/infra/jetstream"
	"github.com/ngnhng/replayflow/internal/service/memory"
	"github.com/ngnhng/replayflow/internal/service/natsjs"
	"github.com/ngnhng/replayflow/sdk/config"
	"github.com/ngnhng/replayflow/sdk/internal"
)

// Service is the execution service interface workers and clients talk to.
type Service = internal.Service

// Stack is an opened execution service together with its history log.
type Stack struct {
	Service Service
	History event.Log
	Serde   serde.BinarySerde

	nats  *natsjs.Service
	conn  *jetstreamx.Connection
	store *historystore.Store
}

// Close releases the history store and the NATS connection, if any.
func (s *Stack) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.conn != nil {
		s.conn.Close()
	}
	return errors.Join(errs...)
}

// ServeTimers runs the timer consumer of a NATS stack until ctx is done.
// The in-memory service fires its own timers, so it returns immediately.
func (s *Stack) ServeTimers(ctx context.Context) error {
	if s.nats == nil {
		return nil
	}
	return s.nats.ServeTimers(ctx)
}

// OpenMemory returns a single-process stack. Workers and clients must share
// the returned value.
func OpenMemory(cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	sd, err := serde.ForFormat(cfg.Serde)
	if err != nil {
		return nil, err
	}
	store, err := historystore.Open(historystore.Config{
		Backend:    historystore.Backend(cfg.History.Backend),
		SQLitePath: cfg.History.SQLitePath,
		PebbleDir:  cfg.History.PebbleDir,
	})
	if err != nil {
		return nil, err
	}
	return &Stack{
		Service: memory.New(memory.Options{Logger: logger}),
		History: store.Log,
		Serde:   sd,
		store:   store,
	}, nil
}

// OpenNATS connects to the JetStream server described by cfg, provisions the
// namespace's streams and opens the configured history backend.
func OpenNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sd, err := serde.ForFormat(cfg.Serde)
	if err != nil {
		return nil, err
	}
	conn, err := jetstreamx.Connect(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	topo := natsjs.Topology{Namespace: cfg.Namespace}
	provisionCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.RequestTimeout)
	defer cancel()
	svc, err := natsjs.New(provisionCtx, conn, natsjs.Options{
		Topology:  topo,
		Serde:     sd,
		Logger:    logger,
		Provision: true,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	store, err := historystore.Open(historystore.Config{
		Backend:       historystore.Backend(cfg.History.Backend),
		SQLitePath:    cfg.History.SQLitePath,
		PebbleDir:     cfg.History.PebbleDir,
		Conn:          conn,
		StreamName:    topo.HistoryStream(),
		SubjectPrefix: topo.HistorySubjectPrefix(),
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Stack{
		Service: svc,
		History: store.Log,
		Serde:   sd,
		nats:    svc,
		conn:    conn,
		store:   store,
	}, nil
}
