package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scenarr/scenarr/internal/indexer"
	"github.com/scenarr/scenarr/internal/jobs"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Run one-off indexer searches",
	}
	searchCmd.AddCommand(newSearchSceneCommand(ctx))
	return searchCmd
}

func newSearchSceneCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "scene <scene-id>",
		Short: "Search the indexers for one scene and queue the best release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(nil, func(a *app) error {
				result, err := a.pipeline.SearchScene(cmd.Context(), args[0], dryRun)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderSceneResult(result, dryRun))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the selection without queueing it")
	return cmd
}

func renderSceneResult(result jobs.SceneResult, dryRun bool) string {
	outcome := result.Outcome
	out := fmt.Sprintf("Scene: %s (%s)\n", outcome.Scene.Title, outcome.Scene.ID)
	out += fmt.Sprintf("Releases: %d found, %d matched\n", outcome.Raw, outcome.Validated)
	for _, e := range outcome.IndexerErrors {
		out += fmt.Sprintf("Indexer error: %v\n", e)
	}

	if len(outcome.Ranked) > 0 {
		rows := make([][]string, 0, len(outcome.Ranked))
		for i, r := range outcome.Ranked {
			rows = append(rows, releaseRow(i+1, r))
		}
		out += renderTable(
			[]string{"#", "Title", "Indexer", "Quality", "Source", "Size", "Seeders"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
		) + "\n"
	}

	switch {
	case outcome.Selected == nil:
		out += "No release satisfies the quality profile\n"
	case dryRun:
		out += fmt.Sprintf("Would queue: %s\n", outcome.Selected.Release.Title)
	case result.Item != nil && result.Reason == "":
		out += fmt.Sprintf("Queued as #%d\n", result.Item.ID)
	}
	if result.Reason != "" {
		out += fmt.Sprintf("Not queued: %s\n", result.Reason)
	}
	return out
}

func releaseRow(rank int, r indexer.Release) []string {
	return []string{
		strconv.Itoa(rank),
		r.Title,
		r.Indexer,
		r.Quality,
		r.Source,
		humanize.IBytes(uint64(max(r.Size, 0))),
		strconv.Itoa(r.Seeders),
	}
}
