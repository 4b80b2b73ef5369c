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

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/replayflow/api"
	"github.com/ngnhng/replayflow/api/serde"
	jetstreamx "github.com/ngnhng/replayflow/internal/infra/jetstream"
	"github.com/ngnhng/replayflow/internal/server/config"
	httphandler "github.com/ngnhng/replayflow/internal/server/handler/http"
	"github.com/ngnhng/replayflow/internal/server/metrics"
	"github.com/ngnhng/replayflow/internal/service/natsjs"
)

// Manager owns the shared JetStream topology of a namespace. It provisions
// the streams, runs the timer service and serves health, metrics and run
// lookups over HTTP.
type Manager struct {
	conn       *jetstreamx.Connection
	service    *natsjs.Service
	httpServer *httphandler.Server
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	sd, err := serde.ForFormat(cfg.Serde)
	if err != nil {
		return nil, err
	}

	conn, err := jetstreamx.Connect(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if !conn.IsConnected() {
		conn.Close()
		return nil, errors.New("cannot connect to NATS instance")
	}

	m := &Manager{
		conn:    conn,
		metrics: metrics.New("replayflow"),
		logger:  logger,
	}

	provisionCtx, cancel := context.WithTimeout(ctx, cfg.Timeouts.RequestTimeout)
	defer cancel()
	m.service, err = natsjs.New(provisionCtx, conn, natsjs.Options{
		Topology:      natsjs.Topology{Namespace: cfg.Namespace},
		Serde:         sd,
		Logger:        logger,
		Provision:     true,
		AckWait:       cfg.Timers.AckWait,
		MaxDeliveries: cfg.Timers.MaxDeliveries,
		OnTimerFired: func(*api.TimerRequest) {
			m.metrics.TimersFired.Inc()
		},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to provision namespace %q: %w", cfg.Namespace, err)
	}

	m.httpServer = httphandler.NewServer(httphandler.ServerOptions{
		Addr:            cfg.Addr(),
		Health:          httphandler.NewHealthHandler(map[string]httphandler.Probe{"nats": conn}),
		Runs:            httphandler.NewRunHandler(m.service, m.metrics, logger),
		Metrics:         m.metrics,
		Logger:          logger,
		ShutdownTimeout: cfg.Timeouts.ShutdownTimeout,
	})
	return m, nil
}

func (m *Manager) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		m.logger.Info("starting timer service")
		return m.service.ServeTimers(gCtx)
	})

	m.logger.Info("manager is running", "components", 2)

	err := g.Wait()

	m.logger.Info("initiating graceful shutdown")
	m.Shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("manager stopped with error", "error", err)
		return err
	}

	m.logger.Info("manager shutdown complete")
	return nil
}

// Shutdown closes the NATS connection, which drains its subscriptions.
func (m *Manager) Shutdown() {
	if m.conn != nil {
		m.logger.Info("closing NATS connection")
		m.conn.Close()
	}
}
