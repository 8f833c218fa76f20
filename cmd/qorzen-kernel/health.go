package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qorzen/kernel/internal/kernel"
	"github.com/qorzen/kernel/internal/manager"
)

// probe constructs a throwaway orchestrator, starts it, runs fn against
// the live supervisor, and always shuts down before returning — used by
// health, status, and "manager status" so each command sees real,
// freshly-reported state rather than a file it has to trust.
func probe(fn func(orch *kernel.Orchestrator)) {
	boot := kernel.DefaultBootConfig()
	orch, err := kernel.New(boot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init failed:", err)
		os.Exit(exitInitError)
	}

	if err := orch.Start(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "init failed:", err)
		os.Exit(exitInitError)
	}

	fn(orch)

	if err := orch.Shutdown(time.Now().Add(orch.ShutdownTimeout())); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown failed:", err)
		os.Exit(exitShutdownTimeout)
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Start every manager, report overall health, shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			probe(func(orch *kernel.Orchestrator) {
				degraded := false
				for _, name := range orch.Supervisor.Names() {
					report, _ := orch.Supervisor.Status(name)
					if report.State != manager.Running {
						degraded = true
					}
				}
				if degraded {
					fmt.Println("degraded")
				} else {
					fmt.Println("healthy")
				}
			})
			return nil
		},
	}
}
