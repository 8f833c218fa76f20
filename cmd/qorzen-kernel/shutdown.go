package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qorzen/kernel/internal/kernel"
)

func newShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Signal a running kernel instance (started via run) to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			boot := kernel.DefaultBootConfig()
			raw, err := os.ReadFile(pidFilePath(boot))
			if err != nil {
				fmt.Fprintln(os.Stderr, "no running kernel found:", err)
				os.Exit(exitInitError)
			}

			pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
			if err != nil {
				fmt.Fprintln(os.Stderr, "corrupt pid file:", err)
				os.Exit(exitInitError)
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				fmt.Fprintln(os.Stderr, "process not found:", err)
				os.Exit(exitInitError)
			}

			if err := proc.Signal(syscall.SIGTERM); err != nil {
				fmt.Fprintln(os.Stderr, "signal failed:", err)
				os.Exit(exitInitError)
			}

			fmt.Println("shutdown signal sent to pid", pid)
			return nil
		},
	}
}
