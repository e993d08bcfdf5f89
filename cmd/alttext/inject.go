package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newInjectCommand(ctx *commandContext) *cobra.Command {
	var altsOnly bool

	cmd := &cobra.Command{
		Use:   "inject [file]",
		Short: "Inject alt text into an HTML document (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), appOptions{}, func(a *app) error {
				out := cmd.OutOrStdout()
				if altsOnly {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(a.renderer.ResolveAlts(cmd.Context(), doc))
				}
				_, err := io.WriteString(out, a.renderer.InjectIntoBuffer(cmd.Context(), doc))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&altsOnly, "alts", false, "Print the source url to alt text map instead of the injected document")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(raw), nil
}
