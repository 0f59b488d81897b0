package commands

import (
	"github.com/spf13/cobra"
)

func reportCmd(opts *globalOptions) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Render the report for a run",
		Long: `Report renders a run into a reviewable document: per-journey scenario
verdicts, quarantined scenarios, fixes with their outcomes, open
blockers and specification coverage gaps.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			g, err := opts.gateway(ctx, false)
			if err != nil {
				return err
			}
			defer g.Shutdown(ctx)

			return writeReport(ctx, g, args[0], format, output)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Report format (markdown, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")

	return cmd
}
