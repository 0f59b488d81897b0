// Package main provides a command-line linter for specification documents.
// It parses each document, extracts journeys through the rule table, and
// dry-runs artifact generation, so coverage gaps and steps no template binds
// surface before a gateway run ever executes.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c360studio/uatgate/extractor"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/source/parser"
)

func main() {
	rulesPath := flag.String("rules", "", "Extraction rules file; empty uses the built-in table")
	verbose := flag.Bool("v", false, "List every journey and scenario")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: speclint [-rules rules.yaml] [-v] <spec>...")
		os.Exit(2)
	}

	log.Printf("Uatgate Spec Linter")

	var rules *extractor.RuleSet
	if *rulesPath != "" {
		loaded, err := extractor.LoadRules(*rulesPath)
		if err != nil {
			log.Fatalf("Failed to load rules: %v", err)
		}
		rules = loaded
		log.Printf("  Rules: %s", *rulesPath)
	}

	failed := false
	for _, path := range flag.Args() {
		rep, err := lintFile(path, rules)
		if err != nil {
			log.Printf("%s: %v", path, err)
			failed = true
			continue
		}
		printReport(path, rep, *verbose)
		if rep.failed() {
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
	log.Printf("Lint complete!")
}

// report is the lint outcome for one document.
type report struct {
	journeys []model.Journey
	// scenariosByJourney holds the generation-checked scenarios in journey
	// order, unbindable ones marked skipped with a diagnostic.
	scenariosByJourney map[string][]model.Scenario
	gaps               []extractor.CoverageGap

	scenarioCount   int
	unbound         int
	criticalUnbound int
}

// failed reports whether the document would block a gateway run: nothing
// extracted at all, or a critical journey with a step no template binds.
func (r *report) failed() bool {
	return len(r.journeys) == 0 || r.criticalUnbound > 0
}

// lintFile runs a document through extraction and a generation dry-run.
func lintFile(path string, rules *extractor.RuleSet) (*report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	doc, err := parser.DefaultRegistry.Parse(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	res, err := extractor.New(rules, logger).Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	rep := &report{
		journeys:           res.Journeys,
		scenariosByJourney: make(map[string][]model.Scenario, len(res.Journeys)),
		gaps:               res.Gaps,
	}

	gen := generator.New(nil, logger)
	for _, jny := range res.Journeys {
		var scs []model.Scenario
		for _, sc := range res.Scenarios {
			if sc.JourneyID == jny.ID {
				scs = append(scs, sc)
			}
		}
		out, err := gen.Generate(jny, scs)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", jny.Name, err)
		}
		rep.scenariosByJourney[jny.ID] = out.Scenarios
		rep.scenarioCount += len(out.Scenarios)
		rep.unbound += out.Skipped
		if jny.Priority == model.PriorityCritical {
			rep.criticalUnbound += out.Skipped
		}
	}

	return rep, nil
}

func printReport(path string, rep *report, verbose bool) {
	log.Printf("%s: %d journeys, %d scenarios, %d gaps, %d unbound",
		path, len(rep.journeys), rep.scenarioCount, len(rep.gaps), rep.unbound)

	if len(rep.journeys) == 0 {
		log.Printf("  no journeys extracted; the document describes no user flows the rule table recognizes")
	}

	for _, jny := range rep.journeys {
		if verbose {
			log.Printf("  journey %q (%s)", jny.Name, jny.Priority)
		}
		for _, sc := range rep.scenariosByJourney[jny.ID] {
			switch {
			case sc.Status == model.ScenarioSkipped:
				log.Printf("  journey %q: scenario %q unbound: %s", jny.Name, sc.Name, sc.Diagnostic)
			case verbose:
				log.Printf("    scenario %q (%d steps)", sc.Name, len(sc.Steps))
			}
		}
	}

	for _, gap := range rep.gaps {
		section := gap.Section
		if section == "" {
			section = "(preamble)"
		}
		log.Printf("  gap in %s: %s", section, gap.Reason)
	}

	if rep.criticalUnbound > 0 {
		log.Printf("  %d unbound scenario(s) in critical journeys would block the run", rep.criticalUnbound)
	}
}
