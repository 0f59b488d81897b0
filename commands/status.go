package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/uatgate/orchestrator"
)

func statusCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the current stage and scenario counts for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			g, err := opts.gateway(ctx, false)
			if err != nil {
				return err
			}
			defer g.Shutdown(ctx)

			st, err := g.Service.Status(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				data, err := json.MarshalIndent(st, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Print(formatStatus(st))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")

	return cmd
}

func formatStatus(st *orchestrator.RunStatus) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run:       %s\n", st.RunID)
	fmt.Fprintf(&b, "Project:   %s\n", st.Project)
	fmt.Fprintf(&b, "Stage:     %s\n", st.Stage)
	if st.SpecVersion != "" {
		fmt.Fprintf(&b, "Spec:      %.12s\n", st.SpecVersion)
	}
	fmt.Fprintf(&b, "Journeys:  %d\n", st.JourneysTotal)
	fmt.Fprintf(&b, "Scenarios: %d passing / %d failing / %d skipped (of %d)\n",
		st.ScenariosPassing, st.ScenariosFailing, st.ScenariosSkipped, st.ScenariosTotal)
	if st.Deselected > 0 {
		fmt.Fprintf(&b, "Deselected: %d\n", st.Deselected)
	}
	if st.FlakyCount > 0 {
		fmt.Fprintf(&b, "Quarantined: %d\n", st.FlakyCount)
	}
	fmt.Fprintf(&b, "Critical pass rate: %.0f%%\n", st.CriticalPassRate*100)
	if st.FailureReason != "" {
		fmt.Fprintf(&b, "Failure:   %s\n", st.FailureReason)
	}

	if len(st.Blockers) > 0 {
		b.WriteString("\nBlockers:\n")
		for _, blk := range st.Blockers {
			state := "open"
			if !blk.Open() {
				state = "resolved"
			}
			fmt.Fprintf(&b, "  %s [%s, %s] %s\n", blk.ID, blk.Category, state, blk.Reason)
		}
	}

	if len(st.PendingFixes) > 0 {
		b.WriteString("\nPending fixes:\n")
		for _, fix := range st.PendingFixes {
			fmt.Fprintf(&b, "  %s [%s, confidence %.2f] %s\n", fix.ID, fix.Signature, fix.Confidence, fix.Proposal)
		}
		b.WriteString("\nSettle them with --review on run or resume, or over the serve API.\n")
	}

	return b.String()
}
