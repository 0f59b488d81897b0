package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/uatgate/orchestrator"
	"github.com/c360studio/uatgate/selector"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway as a long-lived service",
		Long: `Serve keeps the gateway resident: runs are triggered over HTTP, card
events are published to NATS, and prometheus metrics are exposed. When
watch roots are configured the change watcher drives selective runs too.

Endpoints:
  GET  /healthz              liveness
  GET  /metrics              prometheus metrics
  POST /runs                 trigger a run
  GET  /runs                 list runs
  GET  /runs/{id}            run status
  GET  /runs/{id}/report     run report (?format=markdown|json)
  POST /runs/{id}/cancel     cancel a run
  POST /fixes/{id}/confirm   settle a pending fix`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, err := opts.gateway(ctx, true)
			if err != nil {
				return err
			}
			defer g.Shutdown(context.Background())

			printBanner()

			srv := &http.Server{
				Addr:              httpAddr,
				Handler:           newAPI(g).routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				g.Logger.Info("http server listening", "addr", httpAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			if len(g.Config.Watch.Roots) > 0 {
				w, err := selector.NewWatcher(selector.WatcherConfig{
					Roots:    g.Config.Watch.Roots,
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
				go serveWatch(ctx, g, w)
			}

			fmt.Printf("Gateway ready on %s\n", httpAddr)

			select {
			case <-ctx.Done():
				g.Logger.Info("received shutdown signal")
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				g.Logger.Error("http server shutdown", "error", err)
			}

			fmt.Fprintln(os.Stderr, "Gateway stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP listen address")

	return cmd
}

// serveWatch runs selective runs off the change feed in serve mode. Pending
// fixes are settled over the API, so runs are never prompted for here.
func serveWatch(ctx context.Context, g *Gateway, w *selector.Watcher) {
	for batch := range w.Batches() {
		if ctx.Err() != nil {
			return
		}

		runID, err := g.Service.Trigger(ctx, orchestrator.RunConfig{ChangeSet: batch})
		if err != nil {
			g.Logger.Error("trigger selective run", "error", err)
			continue
		}

		stage, err := g.Service.Wait(ctx, runID)
		if err != nil {
			g.Logger.Warn("selective run settled", "run", runID, "stage", stage, "error", err)
			continue
		}
		g.Logger.Info("selective run settled", "run", runID, "stage", stage)
	}
}
