package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/alttext-service/internal/entity"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect and manage the alt text change log",
	}
	logsCmd.AddCommand(newLogsListCommand(ctx))
	logsCmd.AddCommand(newLogsRevertCommand(ctx))
	logsCmd.AddCommand(newLogsPruneCommand(ctx))
	return logsCmd
}

func newLogsListCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List change log entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), appOptions{}, func(a *app) error {
				entries, err := a.changelog.List(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No change log entries")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(logColumns(), buildLogRows(entries)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Entries to skip")
	return cmd
}

func newLogsRevertCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "revert <id>",
		Short: "Restore the alt text recorded before a change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid log entry id %q", args[0])
			}
			return ctx.withApp(cmd.Context(), appOptions{}, func(a *app) error {
				entry, err := a.changelog.Revert(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reverted entry %d on image %s (new entry %d)\n", id, entity.Deref(entry.ImageID), entry.ID)
				return nil
			})
		},
	}
}

func newLogsPruneCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), appOptions{}, func(a *app) error {
				deleted, err := a.changelog.Prune(cmd.Context(), days)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", deleted)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (defaults to LOG_RETENTION_DAYS)")
	return cmd
}

func logColumns() []column {
	return []column{
		{header: "ID", right: true},
		{header: "Time"},
		{header: "Image"},
		{header: "Source"},
		{header: "Status"},
		{header: "Severity"},
		{header: "Old", maxWidth: 30},
		{header: "New", maxWidth: 40},
		{header: "Message", maxWidth: 40},
	}
}

func buildLogRows(entries []*entity.ChangeLogEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.Local().Format(time.DateTime),
			entity.Deref(e.ImageID),
			string(e.Source),
			string(e.Status),
			string(e.Severity),
			entity.Deref(e.OldAltText),
			entity.Deref(e.NewAltText),
			entity.Deref(e.Message),
		})
	}
	return rows
}
