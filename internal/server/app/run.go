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
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/ngnhng/replayflow/internal/server/config"
	"github.com/ngnhng/replayflow/internal/server/logger"
)

type Options struct {
	NATSHost  string
	NATSPort  string
	Namespace string
	HTTPPort  string
}

// Run loads the configuration, applies CLI overrides and runs the manager
// until SIGINT or SIGTERM.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// CLI flags override the environment.
	if opts.NATSHost != "" {
		cfg.NATS.Host = opts.NATSHost
	}
	if opts.NATSPort != "" {
		cfg.NATS.Port = opts.NATSPort
	}
	if opts.NATSHost != "" || opts.NATSPort != "" {
		cfg.NATS.URL = fmt.Sprintf("nats://%s:%s", cfg.NATS.Host, cfg.NATS.Port)
	}
	if opts.Namespace != "" {
		cfg.Namespace = opts.Namespace
	}
	if opts.HTTPPort != "" {
		cfg.Server.Port = opts.HTTPPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lg, err := logger.NewLogger(ctx, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(lg.Slogger)
	defer func() {
		if err := lg.Shutdown(context.Background()); err != nil {
			slog.Error("failed to shut down logger provider", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := NewManager(ctx, cfg, lg.Slogger)
	if err != nil {
		return err
	}

	lg.Slogger.Info("manager starting",
		"service", cfg.ServiceName(),
		"version", cfg.GetVersion(),
		"namespace", cfg.Namespace,
		"nats", cfg.Endpoint(),
	)
	return mgr.Run(ctx)
}
