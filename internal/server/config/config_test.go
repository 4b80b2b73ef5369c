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

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/replayflow/internal/server/types"
)

func validConfig() *Config {
	return &Config{
		Service: "test-service",
		Version: "v1.0.0",
		Mode:    types.ModeDebug,
		NATS: NATSConfig{
			Host:          "localhost",
			Port:          "4222",
			URL:           "nats://localhost:4222",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
			DrainTimeout:  30 * time.Second,
			PingInterval:  2 * time.Minute,
			MaxPingsOut:   2,
			ClientName:    "test-client",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: "8080",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing service name", mutate: func(c *Config) { c.Service = "" }, errMsg: "service name is required"},
		{name: "missing version", mutate: func(c *Config) { c.Version = "" }, errMsg: "version is required"},
		{name: "missing NATS host", mutate: func(c *Config) { c.NATS.Host = "" }, errMsg: "NATS host is required"},
		{name: "missing NATS port", mutate: func(c *Config) { c.NATS.Port = "" }, errMsg: "NATS port is required"},
		{name: "invalid NATS port", mutate: func(c *Config) { c.NATS.Port = "invalid" }, errMsg: "invalid NATS port"},
		{name: "missing NATS URL", mutate: func(c *Config) { c.NATS.URL = "" }, errMsg: "NATS URL is required"},
		{name: "invalid NATS max reconnects", mutate: func(c *Config) { c.NATS.MaxReconnects = -2 }, errMsg: "NATS max reconnects must be >= -1"},
		{name: "invalid NATS reconnect wait", mutate: func(c *Config) { c.NATS.ReconnectWait = 0 }, errMsg: "NATS reconnect wait must be positive"},
		{name: "invalid NATS drain timeout", mutate: func(c *Config) { c.NATS.DrainTimeout = 0 }, errMsg: "NATS drain timeout must be positive"},
		{name: "missing server host", mutate: func(c *Config) { c.Server.Host = "" }, errMsg: "server host is required"},
		{name: "missing server port", mutate: func(c *Config) { c.Server.Port = "" }, errMsg: "server port is required"},
		{name: "invalid server port", mutate: func(c *Config) { c.Server.Port = "not-a-number" }, errMsg: "invalid server port"},
		{name: "negative timer deliveries", mutate: func(c *Config) { c.Timers.MaxDeliveries = -1 }, errMsg: "timer max deliveries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("APP_NAME", "race-server")
	t.Setenv("MODE", "release")
	t.Setenv("NAMESPACE", "staging")
	t.Setenv("NATS_HOST", "nats.internal")
	t.Setenv("NATS_PORT", "4333")
	t.Setenv("TIMERS_MAX_DELIVERIES", "3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_OTEL_EXPORTER", "otlp-grpc")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "race-server", cfg.ServiceName())
	assert.Equal(t, types.ModeRelease, cfg.Mode)
	assert.Equal(t, "staging", cfg.Namespace)
	assert.Equal(t, "nats://nats.internal:4333", cfg.Endpoint())
	assert.Equal(t, 3, cfg.Timers.MaxDeliveries)
	assert.Equal(t, DefaultTimerAckWait, cfg.Timers.AckWait)
	assert.Equal(t, "otlp-grpc", cfg.OTELExporter())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestLoadConfig_RejectsUnknownMode(t *testing.T) {
	t.Setenv("MODE", "chatty")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestConfig_ServiceName(t *testing.T) {
	cfg := &Config{Service: "test-service"}
	assert.Equal(t, "test-service", cfg.ServiceName())
}

func TestConfig_GetVersion(t *testing.T) {
	cfg := &Config{Version: "v1.2.3"}
	assert.Equal(t, "v1.2.3", cfg.GetVersion())
}

func TestLoggerConfig_ParseExtraFields(t *testing.T) {
	lc := &LoggerConfig{ExtraFieldsRaw: "region=eu, team = racing ,broken,=x"}
	assert.Equal(t, map[string]string{"region": "eu", "team": "racing"}, lc.ParseExtraFields())
}

func TestLoggerConfig_ParseSampleRate(t *testing.T) {
	assert.Equal(t, 0.0, (&LoggerConfig{SampleRate: -1}).ParseSampleRate())
	assert.Equal(t, 1.0, (&LoggerConfig{SampleRate: 7}).ParseSampleRate())
	assert.Equal(t, 0.5, (&LoggerConfig{SampleRate: 0.5}).ParseSampleRate())
}

func TestLoggerConfig_ParseLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, (&LoggerConfig{Level: "TRACE"}).ParseLevel())
	assert.Equal(t, slog.LevelWarn, (&LoggerConfig{Level: " warn "}).ParseLevel())
	assert.Equal(t, slog.LevelInfo, (&LoggerConfig{Level: "loud"}).ParseLevel())
}

func TestConfig_WriterOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "race.log")
	cfg := &Config{Logger: LoggerConfig{Output: "file:" + path + ",bogus,file:" + path}}

	w := cfg.Writer()
	_, err := w.Write([]byte("lap 1\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "lap 1\n", string(data), "duplicate outputs are opened once")
}

func TestConfig_WriterFallsBackToStdout(t *testing.T) {
	cfg := &Config{Logger: LoggerConfig{Output: "file"}}
	assert.Equal(t, os.Stdout, cfg.Writer())
}
