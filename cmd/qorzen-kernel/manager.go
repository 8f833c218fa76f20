package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qorzen/kernel/internal/kernel"
)

func newManagerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manager",
		Short: "Inspect registered managers",
	}
	cmd.AddCommand(newManagerListCmd(), newManagerStatusCmd())
	return cmd
}

func newManagerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered manager name, in dependency registration order",
		RunE: func(cmd *cobra.Command, args []string) error {
			boot := kernel.DefaultBootConfig()
			orch, err := kernel.New(boot)
			if err != nil {
				fmt.Fprintln(os.Stderr, "init failed:", err)
				os.Exit(exitInitError)
			}
			for _, name := range orch.Supervisor.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newManagerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name>",
		Short: "Start every manager and report one manager's health, shut down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			probe(func(orch *kernel.Orchestrator) {
				report, ok := orch.Supervisor.Status(name)
				if !ok {
					fmt.Fprintln(os.Stderr, "unknown manager:", name)
					os.Exit(exitInitError)
				}
				fmt.Printf("name=%s state=%s degraded=%v message=%q\n",
					report.Name, report.State, report.Degraded, report.Message)
			})
			return nil
		},
	}
}
