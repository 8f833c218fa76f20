package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qorzen/kernel/internal/kernel"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Start every manager, print each one's state, shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			probe(func(orch *kernel.Orchestrator) {
				for _, name := range orch.Supervisor.Names() {
					report, _ := orch.Supervisor.Status(name)
					fmt.Printf("%-12s %s\n", name, report.State)
				}
			})
			return nil
		},
	}
}
