// Command devserver runs the API handler over plain HTTP with a local
// SQLite conversation store.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "devserver",
		Short:        "Local server for the delinquency map API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
