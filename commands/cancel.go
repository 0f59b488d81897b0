package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func cancelCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a run",
		Long: `Cancel stops a run. A run executing in this process drains its
in-flight scenarios and checkpoints before settling; a run that only
exists on disk is marked cancelled directly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			g, err := opts.gateway(ctx, false)
			if err != nil {
				return err
			}
			defer g.Shutdown(ctx)

			if err := g.Service.Cancel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Run %s cancelled\n", args[0])
			return nil
		},
	}
}
