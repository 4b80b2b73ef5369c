package config

import (
	"fmt"
	"time"
)

const (
	DefaultNATSHost = "localhost"
	DefaultNATSPort = "4222"

	DefaultRequestTimeout  = 10 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultTimerAckWait       = 30 * time.Second
	DefaultTimerMaxDeliveries = 10
)

// NATSConfig describes the server's JetStream connection. URL wins over
// Host and Port when both are set.
type NATSConfig struct {
	URL           string        `json:"url"             env:"URL"`
	Host          string        `json:"host"            env:"HOST"`
	Port          string        `json:"port"            env:"PORT"`
	MaxReconnects int           `json:"max_reconnects"  env:"MAX_RECONNECTS"` // -1 retries forever
	ReconnectWait time.Duration `json:"reconnect_wait"  env:"RECONNECT_WAIT"`
	DrainTimeout  time.Duration `json:"drain_timeout"   env:"DRAIN_TIMEOUT"`
	PingInterval  time.Duration `json:"ping_interval"   env:"PING_INTERVAL"`
	MaxPingsOut   int           `json:"max_pings_out"   env:"MAX_PINGS_OUT"`
	ClientName    string        `json:"client_name"     env:"CLIENT_NAME"`
}

func defaultNATS() NATSConfig {
	return NATSConfig{
		Host:          DefaultNATSHost,
		Port:          DefaultNATSPort,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		DrainTimeout:  30 * time.Second,
		PingInterval:  2 * time.Minute,
		MaxPingsOut:   2,
		ClientName:    "replayflow-server",
	}
}

func (n *NATSConfig) resolveURL() {
	if n.URL == "" {
		n.URL = fmt.Sprintf("nats://%s:%s", n.Host, n.Port)
	}
}

// jetstream.Config
func (c *Config) Endpoint() string                 { return c.NATS.URL }
func (c *Config) NATSMaxReconnects() int           { return c.NATS.MaxReconnects }
func (c *Config) NATSReconnectWait() time.Duration { return c.NATS.ReconnectWait }
func (c *Config) NATSDrainTimeout() time.Duration  { return c.NATS.DrainTimeout }
func (c *Config) NATSPingInterval() time.Duration  { return c.NATS.PingInterval }
func (c *Config) NATSMaxPingsOut() int             { return c.NATS.MaxPingsOut }
func (c *Config) NATSClientName() string           { return c.NATS.ClientName }
