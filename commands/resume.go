package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func resumeCmd(opts *globalOptions) *cobra.Command {
	var (
		review bool
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume an interrupted run from its last checkpoint",
		Long: `Resume picks a run up at the stage its last checkpoint recorded.
Completed work is not repeated: journeys already executed keep their
verdicts, and a blocked run re-enters the fix stage to try again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, err := opts.gateway(ctx, false)
			if err != nil {
				return err
			}
			defer g.Shutdown(context.Background())

			runID := args[0]
			if err := g.Service.Resume(ctx, runID); err != nil {
				return err
			}
			fmt.Printf("Run %s resumed\n", runID)

			return settleRun(ctx, g, runID, review, format, output)
		},
	}

	cmd.Flags().BoolVar(&review, "review", false, "Prompt for pending fix decisions on the terminal")
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Report format (markdown, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")

	return cmd
}
