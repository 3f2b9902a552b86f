package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ha1tch/qconsole/pkg/backend"
	"github.com/ha1tch/qconsole/pkg/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and the linked backend drivers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			fmt.Fprintf(cmd.OutOrStdout(), "drivers: %v\n", backend.Drivers())
		},
	}
}
