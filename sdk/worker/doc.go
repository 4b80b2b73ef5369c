// Package worker provides the runtime that decides workflow runs and executes
// tasks.
//
// A worker talks to one execution service. Clients that start runs must share
// that service, and workers that decide the same runs must share a history
// log.
//
// # Creating a Worker
//
//	stack, err := service.OpenNATS(ctx, cfg, slog.Default())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer stack.Close()
//
//	w, err := worker.New(worker.Options{
//		Service:  stack.Service,
//		EventLog: stack.History,
//		Serde:    stack.Serde,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Registering Workflows and Tasks
//
// Handlers are registered under a name and a version. A workflow takes a
// workflow.Context, a task takes a context.Context, and both take at most one
// input:
//
//	err = w.RegisterWorkflow("checkout", "v1", Checkout, worker.WorkflowOptions{Timeout: time.Hour})
//	err = w.RegisterTask("charge", "v1", Charge, worker.TaskOptions{Timeout: 30 * time.Second})
//
// # Running the Worker
//
//	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
//		log.Fatal(err)
//	}
//
// The worker runs until ctx is canceled or an error occurs. A worker with only
// tasks registered never decides runs, and one with only workflows never
// executes tasks, so the two can be scaled apart.
package worker
