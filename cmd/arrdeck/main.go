// arrdeck is a headless daemon that aggregates self-hosted media services
// behind one registry and drives a quiet-hours-aware notification pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:          "arrdeck",
		Short:        "Media service aggregation daemon",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
