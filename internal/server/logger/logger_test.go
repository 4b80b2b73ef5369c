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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngnhng/replayflow/internal/server/types"
)

type stubOptions struct {
	mode     types.Mode
	level    slog.Level
	format   string
	out      io.Writer
	exporter string
	fields   map[string]string
}

func (o stubOptions) ServiceName() string            { return "replayflow-test" }
func (o stubOptions) GetVersion() string             { return "v0.0.0" }
func (o stubOptions) ModeField() types.Mode          { return o.mode }
func (o stubOptions) LogLevel() slog.Level           { return o.level }
func (o stubOptions) LogFormat() string              { return o.format }
func (o stubOptions) Writer() io.Writer              { return o.out }
func (o stubOptions) SampleRate() float64            { return 1 }
func (o stubOptions) OTELExporter() string           { return o.exporter }
func (o stubOptions) OTELEndpoint() string           { return "" }
func (o stubOptions) ExtraFields() map[string]string { return o.fields }

func TestDebugHandler_WritesAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewDebugHandler(&buf, slog.LevelDebug)).
		With("run_id", "r-1").
		WithGroup("task")

	l.Info("dispatched", "seq", 3)

	line := buf.String()
	assert.Contains(t, line, "dispatched")
	assert.Contains(t, line, `run_id="r-1"`)
	assert.Contains(t, line, "task.seq=3")
}

func TestDebugHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewDebugHandler(&buf, slog.LevelWarn))

	l.Info("quiet")
	assert.Empty(t, buf.String())

	l.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestMultiHandler_FansOut(t *testing.T) {
	var a, b bytes.Buffer
	l := slog.New(NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	))

	l.Info("lap finished")

	assert.Contains(t, a.String(), "lap finished")
	assert.Empty(t, b.String())
}

func TestNewLogger_ReleaseWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	lg, err := NewLogger(context.Background(), stubOptions{
		mode:   types.ModeRelease,
		level:  slog.LevelInfo,
		out:    &buf,
		fields: map[string]string{"region": "eu"},
	})
	require.NoError(t, err)
	assert.Nil(t, lg.LoggerProvider)

	lg.Slogger.Info("timer fired", "timer", "r/t1/1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "timer fired", rec["msg"])
	assert.Equal(t, "eu", rec["region"])
	assert.NoError(t, lg.Shutdown(context.Background()))
}

func TestNewLogger_UnknownExporter(t *testing.T) {
	_, err := NewLogger(context.Background(), stubOptions{
		mode:     types.ModeDebug,
		out:      io.Discard,
		exporter: "carrier-pigeon",
	})
	assert.Error(t, err)
}
