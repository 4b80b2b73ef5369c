package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/ngnhng/replayflow/internal/server/types"
)

// LevelTrace sits below debug and is only emitted by the debug handler.
const LevelTrace = slog.Level(-8)

type LoggerConfig struct {
	Level          string      `env:"LEVEL"         envDefault:"info"`   // trace|debug|info|warn|error
	Format         string      `env:"FORMAT"        envDefault:"auto"`   // auto|json|text
	Output         string      `env:"OUTPUT"        envDefault:"stdout"` // comma list of stdout, stderr, file, file:<path>
	FilePath       string      `env:"FILE_PATH"`
	FileMode       os.FileMode `env:"FILE_MODE"     envDefault:"0644"`
	SampleRate     float64     `env:"SAMPLE_RATE"   envDefault:"1"`
	ExtraFieldsRaw string      `env:"FIELDS"` // key1=val1,key2=val2
	OTELExporter   string      `env:"OTEL_EXPORTER" envDefault:"none"` // none|otlp-http|otlp-grpc
	OTELEndpoint   string      `env:"OTEL_ENDPOINT"`

	mu    sync.Mutex
	files map[string]*os.File
}

// Writer fans log lines out to every configured output. Outputs that cannot
// be opened are reported on the default logger and skipped.
func (c *Config) Writer() io.Writer {
	writers := c.Logger.writers()
	switch len(writers) {
	case 0:
		return os.Stdout
	case 1:
		return writers[0]
	default:
		return io.MultiWriter(writers...)
	}
}

func (lc *LoggerConfig) writers() []io.Writer {
	var (
		out  []io.Writer
		seen = map[string]bool{}
	)
	for _, entry := range strings.Split(lc.Output, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" || seen[entry] {
			continue
		}
		seen[entry] = true

		w, err := lc.open(entry)
		if err != nil {
			slog.Warn("skipping log output", "entry", entry, "error", err)
			continue
		}
		out = append(out, w)
	}
	return out
}

func (lc *LoggerConfig) open(entry string) (io.Writer, error) {
	name, path, _ := strings.Cut(entry, ":")
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if path == "" {
			path = lc.FilePath
		}
		if path == "" {
			return nil, fmt.Errorf("no path given and LOG_FILE_PATH is empty")
		}
		return lc.file(path)
	default:
		return nil, fmt.Errorf("unknown output %q", name)
	}
}

func (lc *LoggerConfig) file(path string) (*os.File, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if f, ok := lc.files[path]; ok {
		return f, nil
	}
	mode := lc.FileMode
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, mode)
	if err != nil {
		return nil, err
	}
	if lc.files == nil {
		lc.files = map[string]*os.File{}
	}
	lc.files[path] = f
	return f, nil
}

// ParseExtraFields reads FIELDS as comma separated key=value pairs. Malformed
// pairs and empty keys are dropped.
func (lc *LoggerConfig) ParseExtraFields() map[string]string {
	res := make(map[string]string)
	if lc == nil {
		return res
	}
	for _, pair := range strings.Split(lc.ExtraFieldsRaw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if ok && k != "" {
			res[k] = strings.TrimSpace(v)
		}
	}
	return res
}

func (lc *LoggerConfig) ParseSampleRate() float64 {
	if lc == nil {
		return 1
	}
	return min(max(lc.SampleRate, 0), 1)
}

// ParseLevel maps LEVEL onto slog levels, falling back to info.
func (lc *LoggerConfig) ParseLevel() slog.Level {
	if lc == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logger.LoggerOptions
func (c *Config) LogLevel() slog.Level           { return c.Logger.ParseLevel() }
func (c *Config) LogFormat() string              { return c.Logger.Format }
func (c *Config) SampleRate() float64            { return c.Logger.ParseSampleRate() }
func (c *Config) OTELExporter() string           { return c.Logger.OTELExporter }
func (c *Config) OTELEndpoint() string           { return c.Logger.OTELEndpoint }
func (c *Config) ExtraFields() map[string]string { return c.Logger.ParseExtraFields() }
func (c *Config) ModeField() types.Mode          { return c.Mode }
