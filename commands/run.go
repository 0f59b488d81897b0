package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/uatgate/export"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/orchestrator"
)

func runCmd(opts *globalOptions) *cobra.Command {
	var (
		project string
		changed []string
		review  bool
		format  string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "run [spec]",
		Short: "Trigger a run against a specification",
		Long: `Run extracts journeys from the specification, generates test artifacts,
executes every selected scenario across the configured adapters and
reports the outcome. The run checkpoints at each stage, so it can be
resumed after an interruption.

The spec argument overrides paths.spec from the config. With --changed
the run is selective: only critical scenarios and scenarios whose
dependency map entries match a changed path execute.

Examples:
  uatgate run docs/product-spec.md
  uatgate run --changed src/checkout/cart.ts
  uatgate run --review              # decide pending fixes interactively
  uatgate run -f json -o report.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, err := opts.gateway(ctx, false)
			if err != nil {
				return err
			}
			defer g.Shutdown(context.Background())

			printBanner()

			rc := orchestrator.RunConfig{Project: project, ChangeSet: changed}
			if len(args) > 0 {
				rc.SpecPath = args[0]
			}

			runID, err := g.Service.Trigger(ctx, rc)
			if err != nil {
				return err
			}
			fmt.Printf("Run %s started\n", runID)

			return settleRun(ctx, g, runID, review, format, output)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project the run is scoped to (defaults to config)")
	cmd.Flags().StringSliceVar(&changed, "changed", nil, "Changed paths for a selective run")
	cmd.Flags().BoolVar(&review, "review", false, "Prompt for pending fix decisions on the terminal")
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Report format (markdown, json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")

	return cmd
}

// settleRun waits for the run to settle, optionally walks the operator
// through pending fixes, and renders the report. An interrupt cancels the
// run and still reports whatever state it drained to.
func settleRun(ctx context.Context, g *Gateway, runID string, review bool, format, output string) error {
	stage, runErr := g.Service.Wait(ctx, runID)

	switch {
	case ctx.Err() != nil:
		fmt.Println("\nInterrupted, cancelling run")
		drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := g.Service.Cancel(drainCtx, runID); err != nil {
			g.Logger.Warn("cancel interrupted run", "run", runID, "error", err)
		}
		stage, _ = g.Service.Wait(drainCtx, runID)
		runErr = fmt.Errorf("run %s cancelled", runID)
		ctx = drainCtx

	case review:
		if err := reviewFixes(ctx, g, runID); err != nil {
			return err
		}
		stage, runErr = g.Service.Wait(ctx, runID)
	}

	fmt.Printf("\nRun %s settled: %s\n", runID, stage)

	if err := writeReport(ctx, g, runID, format, output); err != nil {
		if runErr == nil {
			return err
		}
		g.Logger.Warn("render report", "run", runID, "error", err)
	}
	return runErr
}

// reviewFixes prompts for every fix awaiting review until none remain. A
// decision can release a blocked run, so the pending set is re-read after
// each round.
func reviewFixes(ctx context.Context, g *Gateway, runID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		st, err := g.Service.Status(ctx, runID)
		if err != nil {
			return err
		}
		if len(st.PendingFixes) == 0 {
			return nil
		}

		for _, fix := range st.PendingFixes {
			accept, answered := promptFix(scanner, fix)
			if !answered {
				// EOF on stdin: leave the remaining fixes pending.
				return nil
			}
			if err := g.Service.Confirm(ctx, fix.ID, accept); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}
}

func promptFix(scanner *bufio.Scanner, fix model.Fix) (accept, answered bool) {
	fmt.Printf("\nFix %s (%s, confidence %.2f)\n", fix.ID, fix.Signature, fix.Confidence)
	fmt.Printf("  scenario: %s\n", fix.ScenarioID)
	fmt.Printf("  %s\n", fix.Proposal)

	for {
		fmt.Print("Accept this fix? [y/n]: ")
		if !scanner.Scan() {
			return false, false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true, true
		case "n", "no":
			return false, true
		}
	}
}

// writeReport renders the run report to stdout or a file.
func writeReport(ctx context.Context, g *Gateway, runID, format, output string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	rep, err := g.Service.Report(ctx, runID)
	if err != nil {
		return err
	}
	data, err := rep.Render(f)
	if err != nil {
		return err
	}

	if output == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Printf("Report written to %s\n", output)
	return nil
}
