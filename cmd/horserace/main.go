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

// Command horserace runs the horse race workflow, either in one process on
// the in-memory service or split into workers and starters over NATS.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/replayflow/internal/server/logger"
	"github.com/ngnhng/replayflow/race"
	"github.com/ngnhng/replayflow/sdk/client"
	"github.com/ngnhng/replayflow/sdk/config"
	"github.com/ngnhng/replayflow/sdk/service"
	"github.com/ngnhng/replayflow/sdk/worker"
)

type globals struct {
	Card     string `help:"Race card YAML. Defaults apply to anything it leaves out." type:"existingfile"`
	Instance int    `help:"Instance number printed by announcers." default:"1"`
	Verbose  bool   `short:"v" help:"Log at debug level."`
}

type cli struct {
	globals

	Run    runCmd    `cmd:"" default:"withargs" help:"Run a whole race in this process."`
	Worker workerCmd `cmd:"" help:"Serve race workflows and tasks from NATS."`
	Start  startCmd  `cmd:"" help:"Start a race on NATS and wait for the result."`
}

type runCmd struct {
	NATS bool `name:"nats" help:"Use the NATS service from the environment instead of the in-memory one."`
}

type workerCmd struct{}

type startCmd struct {
	ID string `help:"Run ID. Starting the same ID twice yields one race."`
}

// session is what every command needs: the parsed card, a logger and the
// service configuration.
type session struct {
	card   race.Card
	logger *slog.Logger
	cfg    *config.Config
	g      *globals
}

func newSession(g *globals) (*session, error) {
	card := race.DefaultCard()
	if g.Card != "" {
		var err error
		if card, err = race.LoadCard(g.Card); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if g.Verbose {
		level = slog.LevelDebug
	}
	return &session{
		card:   card,
		logger: slog.New(logger.NewDebugHandler(os.Stderr, level)),
		cfg:    cfg,
		g:      g,
	}, nil
}

func (s *session) open(ctx context.Context, nats bool) (*service.Stack, error) {
	if nats {
		return service.OpenNATS(ctx, s.cfg, s.logger)
	}
	return service.OpenMemory(s.cfg, s.logger)
}

func (s *session) newWorker(stack *service.Stack) (*worker.Worker, error) {
	w, err := worker.New(worker.Options{
		Service:         stack.Service,
		EventLog:        stack.History,
		Serde:           stack.Serde,
		Logger:          s.logger,
		TaskConcurrency: s.cfg.Worker.TaskConcurrency,
		ConflictRetries: s.cfg.Worker.ConflictRetries,
		TaskTimeout:     s.cfg.Timeouts.Task,
	})
	if err != nil {
		return nil, err
	}
	if err := race.RegisterWorkflows(w, s.card); err != nil {
		return nil, err
	}
	handlers := race.NewHandlers(s.card, s.g.Instance, os.Stdout, race.HorseOptions{Logger: s.logger})
	if err := race.RegisterTasks(w, s.card, handlers); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *session) race(ctx context.Context, stack *service.Stack, id string) (race.Result, error) {
	c, err := client.NewClient(client.Options{Service: stack.Service, Serde: stack.Serde, Logger: s.logger})
	if err != nil {
		return race.Result{}, err
	}
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{ID: client.RunID(id)},
		race.WorkflowName, race.Version, s.card.Input())
	if err != nil {
		return race.Result{}, err
	}
	s.logger.Info("race started", "run_id", run.ID())

	var res race.Result
	if err := run.Get(ctx, &res); err != nil {
		return race.Result{}, err
	}
	return res, nil
}

func (c *runCmd) Run(ctx context.Context, g *globals) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	stack, err := s.open(ctx, c.NATS)
	if err != nil {
		return err
	}
	defer stack.Close()

	w, err := s.newWorker(stack)
	if err != nil {
		return err
	}

	workerCtx, stop := context.WithCancel(ctx)
	defer stop()
	eg, egCtx := errgroup.WithContext(workerCtx)
	eg.Go(func() error { return w.Run(egCtx) })
	eg.Go(func() error { return stack.ServeTimers(egCtx) })

	res, raceErr := s.race(egCtx, stack, "")
	stop()
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if raceErr != nil {
		return raceErr
	}
	printResult(res)
	return nil
}

func (c *workerCmd) Run(ctx context.Context, g *globals) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	stack, err := s.open(ctx, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	w, err := s.newWorker(stack)
	if err != nil {
		return err
	}
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *startCmd) Run(ctx context.Context, g *globals) error {
	s, err := newSession(g)
	if err != nil {
		return err
	}
	stack, err := s.open(ctx, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	res, err := s.race(ctx, stack, c.ID)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res race.Result) {
	for i, name := range res.Places {
		fmt.Printf("%d. %s\n", i+1, name)
	}
	if len(res.Finished) > 0 {
		fmt.Printf("finished: %s\n", strings.Join(res.Finished, ", "))
	}
	if len(res.Injured) > 0 {
		fmt.Printf("injured: %s\n", strings.Join(res.Injured, ", "))
	}
	if len(res.Missing) > 0 {
		fmt.Printf("missing: %s\n", strings.Join(res.Missing, ", "))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("horserace"),
		kong.Description("A horse race run as a durable workflow."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(&c.globals),
	)
	if err := kctx.Run(); err != nil {
		slog.Error("horserace failed", "error", err)
		stop()
		os.Exit(1)
	}
}
