package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/user/alttext-service/internal/entity"
)

func newBulkCommand(ctx *commandContext) *cobra.Command {
	var (
		scope  string
		force  bool
		dryRun bool
		resume string
	)

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Generate alt text for stored images chunk by chunk",
		Long: "Starts a bulk job and drives it to completion one chunk at a time.\n" +
			"With --resume an existing job (shared through Redis) is continued instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var parsed entity.BulkScope
			if scope != "" {
				s, err := entity.ParseBulkScope(scope)
				if err != nil {
					return err
				}
				parsed = s
			}

			return ctx.withApp(cmd.Context(), appOptions{}, func(a *app) error {
				out := cmd.OutOrStdout()
				var (
					progress entity.JobProgress
					err      error
				)
				if resume != "" {
					progress, err = a.bulk.GetProgress(cmd.Context(), resume)
				} else {
					progress, err = a.bulk.StartJob(cmd.Context(), parsed, force, dryRun)
				}
				if err != nil {
					return err
				}

				if progress.DryRun {
					printPreview(out, progress)
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Job %s: %d candidate images\n", progress.JobID, progress.Total)
				for !progress.Complete {
					if err := cmd.Context().Err(); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Interrupted; resume with --resume %s\n", progress.JobID)
						return err
					}
					progress, err = a.bulk.ProcessNextChunk(cmd.Context(), progress.JobID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "  %d/%d (%d%%), %d errors\n", progress.Processed, progress.Total, progress.Percent, progress.Errors)
				}
				printProgress(out, progress)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "Candidate scope: all, attachedOnly or attachedProducts (defaults to BULK_SCOPE)")
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate alt text that is already set")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview the first changes without writing anything")
	cmd.Flags().StringVar(&resume, "resume", "", "Continue an existing job by id")
	return cmd
}

func printProgress(w io.Writer, p entity.JobProgress) {
	fmt.Fprint(w, renderTable(
		[]column{{header: "Job"}, {header: "Total", right: true}, {header: "Processed", right: true}, {header: "Errors", right: true}, {header: "Complete"}},
		[][]string{{p.JobID, strconv.Itoa(p.Total), strconv.Itoa(p.Processed), strconv.Itoa(p.Errors), strconv.FormatBool(p.Complete)}},
	))
}

func printPreview(w io.Writer, p entity.JobProgress) {
	if len(p.Preview) == 0 {
		fmt.Fprintln(w, "No candidate images")
		return
	}
	rows := make([][]string, 0, len(p.Preview))
	for _, item := range p.Preview {
		rows = append(rows, []string{item.ImageID, item.OldAlt, item.NewAlt})
	}
	fmt.Fprintf(w, "Dry run: showing %d of %d candidates\n", len(p.Preview), p.Total)
	fmt.Fprint(w, renderTable(
		[]column{{header: "Image"}, {header: "Current alt", maxWidth: 40}, {header: "Proposed alt", maxWidth: 60}},
		rows,
	))
}
