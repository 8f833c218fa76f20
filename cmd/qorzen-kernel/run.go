package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qorzen/kernel/internal/kernel"
)

func pidFilePath(boot *kernel.BootConfig) string {
	return filepath.Join(boot.DataDir, "kernel.pid")
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the kernel and block until a shutdown signal arrives",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := os.MkdirAll(boot.DataDir, 0o755); err == nil {
				_ = os.WriteFile(pidFilePath(boot), []byte(strconv.Itoa(os.Getpid())), 0o644)
			}
			defer os.Remove(pidFilePath(boot))

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			orch.Log.Info("kernel running")
			<-sigCh
			orch.Log.Info("shutdown signal received")

			if err := orch.Shutdown(time.Now().Add(orch.ShutdownTimeout())); err != nil {
				fmt.Fprintln(os.Stderr, "shutdown failed:", err)
				os.Exit(exitShutdownTimeout)
			}

			fmt.Println("shutdown complete")
			os.Exit(exitOK)
			return nil
		},
	}
}
