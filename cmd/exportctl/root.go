package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ligustah/exportctl/internal/config"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "exportctl",
		Short: "Run asynchronous report exports against the Power BI REST API",
		Long: `exportctl submits report exports, polls them to completion and downloads
the resulting artifacts, running many exports in parallel to measure
service throughput.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return withCode(ExitInvalidArgs, fmt.Errorf("%w\nRun '%s --help' for usage", err, cmd.CommandPath()))
	})

	root.AddCommand(RunCmd(), HostsCmd())
	return root
}

// HostsCmd lists the known deployment targets.
func HostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List deployment targets and their API hosts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CLUSTER\tHOST")
			for _, name := range config.Clusters() {
				fmt.Fprintf(tw, "%s\t%s\n", name, config.Hosts[name])
			}
			return tw.Flush()
		},
	}
}
