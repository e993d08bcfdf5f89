package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <documentId>",
		Short: "Run the document save cycle for one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), appOptions{}, func(a *app) error {
				summary, err := a.documents.ProcessDocumentSave(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if summary.Deduplicated {
					fmt.Fprintf(cmd.OutOrStdout(), "Document %s was processed within the last minute; skipped\n", summary.DocumentID)
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{{header: "Document"}, {header: "Images", right: true}, {header: "Updated", right: true}, {header: "Skipped", right: true}, {header: "Errors", right: true}},
					[][]string{{
						summary.DocumentID,
						strconv.Itoa(summary.Images),
						strconv.Itoa(summary.Updated),
						strconv.Itoa(summary.Skipped),
						strconv.Itoa(summary.Errors),
					}},
				))
				return nil
			})
		},
	}
}
