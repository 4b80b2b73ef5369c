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

package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ngnhng/replayflow/internal/server/metrics"
)

type Server struct {
	server  *http.Server
	logger  *slog.Logger
	timeout time.Duration
}

type ServerOptions struct {
	Addr    string
	Health  *HealthHandler
	Runs    *RunHandler
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// ShutdownTimeout bounds the graceful shutdown once ctx is done.
	ShutdownTimeout time.Duration
}

func NewServer(opts ServerOptions) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", opts.Health.Health)
	mux.HandleFunc("GET /readyz", opts.Health.Ready)
	mux.HandleFunc("GET /api/runs/{id}", opts.Runs.Get)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           corsMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger:  logger,
		timeout: opts.ShutdownTimeout,
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
