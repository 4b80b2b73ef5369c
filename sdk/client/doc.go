// Package client provides the client for starting workflow runs.
//
// # Creating a Client
//
// A client talks to the same execution service as the workers:
//
//	svc, err := service.ConnectNATS(ctx, cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	c, err := client.NewClient(client.Options{Service: svc, Logger: logger})
//
// # Executing Workflows
//
// ExecuteWorkflow starts a run of a registered workflow, addressed by name
// and version. Starting the same run ID twice yields a single run:
//
//	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{ID: "order-42"}, "checkout", "v1", order)
//
// # Workflow Results
//
// WorkflowRun.Get blocks until the run finishes. A failed run returns
// *WorkflowRunError, whose Kind tells a workflow error apart from a timeout
// or an engine failure such as nondeterminism.
package client
