package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scenarr/scenarr/internal/monitor"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Resubmit releases the torrent client failed to accept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cadence := monitor.CadenceShort
			if long {
				cadence = monitor.CadenceLong
			}
			return ctx.withApp(nil, func(a *app) error {
				report, err := a.retrier.Run(cmd.Context(), cadence)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resubmitted %d, failed %d, skipped %d, gave up on %d\n",
					report.Resubmitted, report.Failed, report.Skipped, report.Exhausted)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&long, "all", false, "Retry the whole backlog instead of one short batch")
	return cmd
}

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run one monitor pass against the torrent client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(nil, func(a *app) error {
				report, err := a.monitor.Poll(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checked %d, missing %d, completed %d, failed %d, resumed %d, paused %d, stalled %d\n",
					report.Checked, report.Missing, report.Completed, report.Failed, report.Resumed, report.Paused, report.Stalled)
				return nil
			})
		},
	}
}

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Search every active subscription once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(nil, func(a *app) error {
				return a.discovery.Run(cmd.Context())
			})
		},
	}
}
