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

package jetstreamx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Connection is a NATS connection with its JetStream context. The Ensure
// helpers are idempotent so every process can provision the topology it
// needs on startup.
type Connection struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// Config is what Connect needs to know about the deployment.
type Config interface {
	Endpoint() string
	NATSMaxReconnects() int
	NATSReconnectWait() time.Duration
	NATSDrainTimeout() time.Duration
	NATSPingInterval() time.Duration
	NATSMaxPingsOut() int
	// NATSClientName may be empty.
	NATSClientName() string
}

func Connect(cfg Config, logger *slog.Logger) (*Connection, error) {
	if cfg == nil {
		return nil, errors.New("jetstreamx: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.NATSClientName()
	if name == "" {
		name = "replayflow"
	}
	logger = logger.With("nats_client", name)

	nc, err := nats.Connect(cfg.Endpoint(),
		nats.Name(name),
		nats.MaxReconnects(cfg.NATSMaxReconnects()),
		nats.ReconnectWait(cfg.NATSReconnectWait()),
		nats.DrainTimeout(cfg.NATSDrainTimeout()),
		nats.PingInterval(cfg.NATSPingInterval()),
		nats.MaxPingsOutstanding(cfg.NATSMaxPingsOut()),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.Endpoint(), err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return &Connection{nc: nc, js: js, logger: logger}, nil
}

// Close drains pending work and closes the connection. It is safe to call
// more than once.
func (c *Connection) Close() {
	if c.nc == nil || c.nc.IsClosed() {
		return
	}
	if err := c.nc.Drain(); err != nil {
		c.logger.Warn("nats drain", "error", err)
		c.nc.Close()
	}
}

func (c *Connection) JetStream() jetstream.JetStream {
	return c.js
}

func (c *Connection) IsConnected() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// EnsureKV creates the bucket or brings an existing one up to cfg.
func (c *Connection) EnsureKV(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := c.js.CreateOrUpdateKeyValue(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensure kv %s: %w", cfg.Bucket, err)
	}
	return kv, nil
}

// EnsureStream creates the stream or updates an existing one. The retention
// policy of an existing stream is kept since JetStream refuses to change it.
func (c *Connection) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	stream, err := c.js.Stream(ctx, cfg.Name)
	switch {
	case errors.Is(err, jetstream.ErrStreamNotFound):
		stream, err = c.js.CreateStream(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		return stream, nil
	case err != nil:
		return nil, fmt.Errorf("look up stream %s: %w", cfg.Name, err)
	}

	cfg.Retention = stream.CachedInfo().Config.Retention
	stream, err = c.js.UpdateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("update stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// EnsureConsumer returns the durable consumer named in cfg, creating it on
// first use.
func (c *Connection) EnsureConsumer(ctx context.Context, streamName string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, streamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("ensure consumer %s on %s: %w", cfg.Durable, streamName, err)
	}
	return consumer, nil
}

// PublishMsg publishes and waits for the stream's acknowledgement.
func (c *Connection) PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	ack, err := c.js.PublishMsg(ctx, msg, opts...)
	if err != nil {
		return nil, fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}
	return ack, nil
}

func (c *Connection) bucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	kv, err := c.js.KeyValue(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", name, err)
	}
	return kv, nil
}

// WatchKV watches key (or a wildcard pattern) in bucket. The caller stops
// the returned watcher.
func (c *Connection) WatchKV(ctx context.Context, bucket, key string, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	kv, err := c.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	w, err := kv.Watch(ctx, key, opts...)
	if err != nil {
		return nil, fmt.Errorf("watch %s/%s: %w", bucket, key, err)
	}
	return w, nil
}

// Set puts value under key and returns the new revision.
func (c *Connection) Set(ctx context.Context, bucket, key string, value []byte) (uint64, error) {
	kv, err := c.bucket(ctx, bucket)
	if err != nil {
		return 0, err
	}
	rev, err := kv.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return rev, nil
}

// Get reads key from bucket. A missing key yields jetstream.ErrKeyNotFound.
func (c *Connection) Get(ctx context.Context, bucket, key string) (jetstream.KeyValueEntry, error) {
	kv, err := c.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return kv.Get(ctx, key)
}
