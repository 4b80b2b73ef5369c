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

// Command replayflow-server provisions the JetStream topology of a namespace
// and runs its timer service.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	serverapp "github.com/ngnhng/replayflow/internal/server/app"
)

type cli struct {
	Host      string `help:"NATS server host." env:"NATS_HOST"`
	Port      string `help:"NATS server port." env:"NATS_PORT"`
	Namespace string `help:"Namespace prefix of streams, subjects and buckets." env:"NAMESPACE"`
	HTTPPort  string `name:"http-port" help:"HTTP port for health, metrics and run lookups." env:"SERVER_PORT"`
}

func (c *cli) Run(ctx context.Context) error {
	return serverapp.Run(ctx, serverapp.Options{
		NATSHost:  c.Host,
		NATSPort:  c.Port,
		Namespace: c.Namespace,
		HTTPPort:  c.HTTPPort,
	})
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("replayflow-server"),
		kong.Description("Provision a replayflow namespace and serve its timers."),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
	)
	if err := kctx.Run(); err != nil {
		slog.Error("manager exited with error", "error", err)
		os.Exit(1)
	}
}
