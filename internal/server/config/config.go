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
	"errors"
	"fmt"
	"strconv"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/ngnhng/replayflow/internal/server/types"
)

// Config holds the complete application configuration
type Config struct {
	Service   string        `json:"service_name" env:"APP_NAME"    envDefault:"replayflow"`
	Version   string        `json:"version"      env:"VERSION"     envDefault:"v0.1.0"`
	Mode      types.Mode    `json:"mode"         env:"MODE"        envDefault:"debug"`
	Namespace string        `json:"namespace"    env:"NAMESPACE"`
	Serde     string        `json:"serde"        env:"SERDE"       envDefault:"msgpack"`
	NATS      NATSConfig    `json:"nats"         envPrefix:"NATS_"`
	Server    ServerConfig  `json:"server"       envPrefix:"SERVER_"`
	Timeouts  TimeoutConfig `json:"timeouts"     envPrefix:"TIMEOUTS_"`
	Timers    TimerConfig   `json:"timers"       envPrefix:"TIMERS_"`
	Logger    LoggerConfig  `json:"logger"       envPrefix:"LOG_"`
}

type ServerConfig struct {
	Host string `json:"host" env:"HOST" envDefault:"localhost"`
	Port string `json:"port" env:"PORT" envDefault:"8080"`
}

// TimeoutConfig holds timeout-related configuration
type TimeoutConfig struct {
	RequestTimeout  time.Duration `json:"request_timeout"  env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// TimerConfig tunes the timer consumer.
type TimerConfig struct {
	AckWait       time.Duration `json:"ack_wait"       env:"ACK_WAIT"`
	MaxDeliveries int           `json:"max_deliveries" env:"MAX_DELIVERIES"`
}

func LoadConfig() (*Config, error) {
	cfg := Config{
		NATS: defaultNATS(),
		Timeouts: TimeoutConfig{
			RequestTimeout:  DefaultRequestTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Timers: TimerConfig{
			AckWait:       DefaultTimerAckWait,
			MaxDeliveries: DefaultTimerMaxDeliveries,
		},
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	cfg.NATS.resolveURL()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Service == "":
		return errors.New("service name is required")
	case c.Version == "":
		return errors.New("version is required")
	case c.NATS.Host == "":
		return errors.New("NATS host is required")
	case c.NATS.Port == "":
		return errors.New("NATS port is required")
	case !isPort(c.NATS.Port):
		return fmt.Errorf("invalid NATS port %q", c.NATS.Port)
	case c.NATS.URL == "":
		return errors.New("NATS URL is required")
	case c.NATS.MaxReconnects < -1:
		return errors.New("NATS max reconnects must be >= -1")
	case c.NATS.ReconnectWait <= 0:
		return errors.New("NATS reconnect wait must be positive")
	case c.NATS.DrainTimeout <= 0:
		return errors.New("NATS drain timeout must be positive")
	case c.Server.Host == "":
		return errors.New("server host is required")
	case c.Server.Port == "":
		return errors.New("server port is required")
	case !isPort(c.Server.Port):
		return fmt.Errorf("invalid server port %q", c.Server.Port)
	case c.Timers.MaxDeliveries < 0:
		return errors.New("timer max deliveries must not be negative")
	}
	return nil
}

func isPort(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0 && n <= 65535
}

func (c *Config) ServiceName() string {
	return c.Service
}

func (c *Config) GetVersion() string {
	return c.Version
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
