package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/qorzen/kernel/internal/kernel"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Construct and initialize every manager once, then shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			boot := kernel.DefaultBootConfig()
			orch, err := kernel.New(boot)
			if err != nil {
				fmt.Fprintln(os.Stderr, "init failed:", err)
				os.Exit(exitInitError)
			}

			ctx, cancel := context.WithTimeout(context.Background(), orch.ShutdownTimeout())
			defer cancel()
			if err := orch.Start(ctx); err != nil {
				fmt.Fprintln(os.Stderr, "init failed:", err)
				os.Exit(exitInitError)
			}

			if err := orch.Shutdown(time.Now().Add(orch.ShutdownTimeout())); err != nil {
				fmt.Fprintln(os.Stderr, "shutdown after init check failed:", err)
				os.Exit(exitShutdownTimeout)
			}

			fmt.Println("init ok:", orch.Supervisor.Names())
			return nil
		},
	}
}
