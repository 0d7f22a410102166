package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scenarr/scenarr/internal/db"
	"github.com/scenarr/scenarr/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the download queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := queue.ListOptions{Limit: limit}
			for _, s := range statuses {
				opts.Statuses = append(opts.Statuses, db.QueueStatus(strings.TrimSpace(s)))
			}
			return ctx.withApp(nil, func(a *app) error {
				items, total, err := a.queue.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderQueueTable(items, time.Now()))
				if int64(len(items)) < total {
					fmt.Fprintf(out, "%d of %d items shown\n", len(items), total)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Only show items in these statuses")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of items")
	return cmd
}

func renderQueueTable(items []db.QueueItem, now time.Time) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		progress := strconv.FormatFloat(item.Progress*100, 'f', 1, 64) + "%"
		lastError := item.LastError
		if len(lastError) > 40 {
			lastError = lastError[:37] + "..."
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(item.ID), 10),
			string(item.Status),
			item.Title,
			item.Quality,
			humanize.IBytes(uint64(max(item.Size, 0))),
			progress,
			strconv.Itoa(item.Attempts),
			humanize.RelTime(item.AddedAt, now, "ago", "from now"),
			lastError,
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Title", "Quality", "Size", "Progress", "Attempts", "Added", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	)
}
