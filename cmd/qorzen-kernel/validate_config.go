package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qorzen/kernel/internal/kernel"
)

func newValidateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate_config",
		Short: "Load bootstrap configuration from the environment and report validity",
		RunE: func(cmd *cobra.Command, args []string) error {
			boot, err := kernel.LoadBootConfig()
			if err != nil {
				fmt.Fprintln(os.Stderr, "config invalid:", err)
				os.Exit(exitConfigInvalid)
			}

			if boot.EventQueueCapacity <= 0 || boot.EventWorkerCount <= 0 {
				fmt.Fprintln(os.Stderr, "config invalid: event bus sizing must be positive")
				os.Exit(exitConfigInvalid)
			}
			if boot.ShutdownTimeoutSeconds <= 0 {
				fmt.Fprintln(os.Stderr, "config invalid: shutdown timeout must be positive")
				os.Exit(exitConfigInvalid)
			}

			fmt.Printf("config ok: platform=%s data_dir=%s plugin_roots=%s\n",
				boot.PlatformName, boot.DataDir, boot.PluginRoots)
			return nil
		},
	}
}
