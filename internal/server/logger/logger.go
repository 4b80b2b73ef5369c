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

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/ngnhng/replayflow/internal/server/types"
)

const (
	ExporterNone     = "none"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

type Logger struct {
	Slogger *slog.Logger
	*sdklog.LoggerProvider
}

// Shutdown flushes the OTel provider, if one was built.
func (l *Logger) Shutdown(ctx context.Context) error {
	if l.LoggerProvider == nil {
		return nil
	}
	return l.LoggerProvider.Shutdown(ctx)
}

// LoggerOptions is what the server config exposes to the logger.
type LoggerOptions interface {
	ServiceName() string
	GetVersion() string
	ModeField() types.Mode
	LogLevel() slog.Level
	LogFormat() string
	Writer() io.Writer
	SampleRate() float64
	OTELExporter() string
	OTELEndpoint() string
	ExtraFields() map[string]string
}

func NewLogger(ctx context.Context, opts LoggerOptions) (*Logger, error) {
	out := opts.Writer()
	if out == nil {
		return nil, fmt.Errorf("no log writer")
	}
	handlers := make([]slog.Handler, 0, 2)
	var provider *sdklog.LoggerProvider

	if opts.ModeField() == types.ModeDebug {
		handlers = append(handlers, NewDebugHandler(out, opts.LogLevel()))
	} else {
		hopts := &slog.HandlerOptions{Level: opts.LogLevel()}
		if strings.EqualFold(opts.LogFormat(), "text") {
			handlers = append(handlers, slog.NewTextHandler(out, hopts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(out, hopts))
		}
	}

	exporter, err := newExporter(ctx, opts.OTELExporter(), opts.OTELEndpoint())
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(opts.ServiceName()),
				semconv.ServiceVersion(opts.GetVersion()),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("build log resource: %w", err)
		}
		provider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
			sdklog.WithResource(res),
		)
		handlers = append(handlers, otelslog.NewHandler(opts.ServiceName(), otelslog.WithLoggerProvider(provider)))
	}

	var handler slog.Handler = &MultiHandler{handlers: handlers}
	if rate := opts.SampleRate(); rate < 1 {
		handler = &sampleHandler{inner: handler, rate: rate}
	}

	l := slog.New(handler)
	for k, v := range opts.ExtraFields() {
		l = l.With(k, v)
	}
	return &Logger{Slogger: l, LoggerProvider: provider}, nil
}

func newExporter(ctx context.Context, kind, endpoint string) (sdklog.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", ExporterNone:
		return nil, nil
	case ExporterOTLPHTTP:
		var opts []otlploghttp.Option
		switch {
		case strings.Contains(endpoint, "://"):
			opts = append(opts, otlploghttp.WithEndpointURL(endpoint))
		case endpoint != "":
			opts = append(opts, otlploghttp.WithEndpoint(endpoint))
		}
		return otlploghttp.New(ctx, opts...)
	case ExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		switch {
		case strings.Contains(endpoint, "://"):
			opts = append(opts, otlploggrpc.WithEndpointURL(endpoint))
		case endpoint != "":
			opts = append(opts, otlploggrpc.WithEndpoint(endpoint))
		}
		return otlploggrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown log exporter %q", kind)
	}
}

// sampleHandler drops a share of records below warning level.
type sampleHandler struct {
	inner slog.Handler
	rate  float64
}

func (h *sampleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *sampleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < slog.LevelWarn && rand.Float64() >= h.rate {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *sampleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sampleHandler{inner: h.inner.WithAttrs(attrs), rate: h.rate}
}

func (h *sampleHandler) WithGroup(name string) slog.Handler {
	return &sampleHandler{inner: h.inner.WithGroup(name), rate: h.rate}
}
