// Command qorzen-kernel is the embeddable kernel's CLI boundary: init, run,
// shutdown, validate_config, health, status, and manager list|status,
// exiting 0 on clean shutdown, 1 on init error, 2 on config validation
// error, 3 on shutdown timeout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitOK = 0
	exitInitError = 1
	exitConfigInvalid = 2
	exitShutdownTimeout = 3
)

func main() {
	root := &cobra.Command{
		Use:   "qorzen-kernel",
		Short: "Embeddable application kernel control CLI",
	}

	root.AddCommand(
		newInitCmd(),
		newRunCmd(),
		newShutdownCmd(),
		newValidateConfigCmd(),
		newHealthCmd(),
		newStatusCmd(),
		newManagerCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInitError)
	}
}
