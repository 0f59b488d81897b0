package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/uatgate/orchestrator"
	"github.com/c360studio/uatgate/selector"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	var (
		roots  []string
		review bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch code roots and run affected scenarios on change",
		Long: `Watch monitors the configured code roots and triggers a selective run
for every debounced batch of changes. Critical scenarios always execute;
the rest run only when the dependency map ties them to a changed path.

Stop with Ctrl+C. An in-flight run drains before the process exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, err := opts.gateway(ctx, true)
			if err != nil {
				return err
			}
			defer g.Shutdown(context.Background())

			watchRoots := roots
			if len(watchRoots) == 0 {
				watchRoots = g.Config.Watch.Roots
			}
			if len(watchRoots) == 0 {
				watchRoots = []string{"."}
			}

			w, err := selector.NewWatcher(selector.WatcherConfig{
				Roots:    watchRoots,
				Debounce: g.Config.Watch.GetDebounce(),
				Logger:   g.Logger,
			})
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer w.Stop()

			printBanner()
			fmt.Printf("Watching %s\n", strings.Join(watchRoots, ", "))

			watchLoop(ctx, g, w, review)
			fmt.Println("\nWatch stopped")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&roots, "root", nil, "Code roots to watch (defaults to watch.roots from config)")
	cmd.Flags().BoolVar(&review, "review", false, "Prompt for pending fix decisions after each run")

	return cmd
}

// watchLoop drives one selective run per change batch. A blocked run stays
// active, so the next batch re-joins it instead of starting a new one.
func watchLoop(ctx context.Context, g *Gateway, w *selector.Watcher, review bool) {
	var lastRun string
	for batch := range w.Batches() {
		if ctx.Err() != nil {
			return
		}

		fmt.Printf("\n%d change(s) detected\n", len(batch))
		runID, err := g.Service.Trigger(ctx, orchestrator.RunConfig{ChangeSet: batch})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if runID == lastRun {
			fmt.Printf("Run %s is still open; resolve its blockers or cancel it\n", runID)
			continue
		}
		lastRun = runID

		stage, runErr := g.Service.Wait(ctx, runID)
		if ctx.Err() != nil {
			return
		}
		if review && runErr != nil {
			if err := reviewFixes(ctx, g, runID); err == nil {
				stage, runErr = g.Service.Wait(ctx, runID)
			}
		}

		if runErr != nil {
			fmt.Printf("Run %s settled: %s (%v)\n", runID, stage, runErr)
			continue
		}
		fmt.Printf("Run %s settled: %s\n", runID, stage)
	}
}
