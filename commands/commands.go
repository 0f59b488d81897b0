// Package commands implements the uatgate CLI. Each subcommand boots the
// gateway from the shared configuration, drives the orchestration service,
// and renders the outcome for the terminal.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "uatgate"
)

// Root builds the uatgate command tree.
func Root() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "uatgate",
		Short: "UAT gateway",
		Long: `Uatgate turns a product specification into executable user acceptance
tests and keeps them green.

It provides:
- Journey extraction from markdown, HTML, AsciiDoc, RST and PDF specs
- Generated test artifacts with seed data and mock fixtures
- Multi-adapter execution (browser, API contract, accessibility, visual)
- Automatic repair of stale selectors, drifted contracts and broken fixtures

Runs checkpoint at every stage, so an interrupted run resumes where it
stopped.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Gateway state directory (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		runCmd(opts),
		resumeCmd(opts),
		statusCmd(opts),
		reportCmd(opts),
		cancelCmd(opts),
		watchCmd(opts),
		serveCmd(opts),
		versionCmd(),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║             Uatgate v" + Version + "                    ║")
	fmt.Println("║      User Acceptance Test Gateway             ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}
