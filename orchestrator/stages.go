package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/uatgate/autofix"
	"github.com/c360studio/uatgate/events"
	"github.com/c360studio/uatgate/executor"
	"github.com/c360studio/uatgate/extractor"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/selector"
	"github.com/c360studio/uatgate/source/parser"
	"github.com/c360studio/uatgate/uaterr"
	"github.com/c360studio/uatgate/verdict"
)

// extractStage parses the specification document and derives journeys.
// Unreadable or unparsable documents are fatal; a document that yields zero
// journeys is only a coverage warning.
func (s *Service) extractStage(ctx context.Context, p *pipeline) (model.Stage, error) {
	specPath := p.run.SpecPath
	data, err := os.ReadFile(specPath)
	if err != nil {
		return "", &uaterr.ExtractionFailure{SpecPath: specPath, Reason: "read specification", Err: err}
	}

	doc, err := parser.DefaultRegistry.Parse(filepath.Base(specPath), data)
	if err != nil {
		return "", &uaterr.ExtractionFailure{SpecPath: specPath, Reason: "parse specification", Err: err}
	}

	var rules *extractor.RuleSet
	if s.cfg.Paths.Rules != "" {
		rules, err = extractor.LoadRules(s.cfg.Paths.Rules)
		if err != nil {
			return "", &uaterr.ExtractionFailure{SpecPath: specPath, Reason: "load extraction rules", Err: err}
		}
	}

	res, err := extractor.New(rules, s.logger).Extract(doc)
	if err != nil {
		return "", &uaterr.ExtractionFailure{SpecPath: specPath, Reason: "derive journeys", Err: err}
	}

	p.mu.Lock()
	p.state.DocumentID = doc.ID
	p.state.SpecVersion = doc.Version
	p.state.Journeys = res.Journeys
	p.state.Scenarios = res.Scenarios
	p.state.Gaps = res.Gaps
	p.run.SpecVersion = doc.Version
	p.mu.Unlock()

	for _, jny := range res.Journeys {
		s.emitter.JourneyCreated(ctx, events.JourneyCreatedEvent{
			RunID:         p.run.ID,
			JourneyID:     jny.ID,
			Name:          jny.Name,
			Priority:      string(jny.Priority),
			ScenarioCount: len(jny.ScenarioIDs),
			DocumentID:    doc.ID,
		})
	}

	s.logger.Info("journeys extracted",
		"run", p.run.ID,
		"document", doc.ID,
		"journeys", len(res.Journeys),
		"scenarios", len(res.Scenarios),
		"gaps", len(res.Gaps))
	return model.StageGenerating, nil
}

// generateStage renders executable artifacts and fixtures for every journey.
// A scenario the template library cannot bind is kept as skipped; when it is
// critical, a blocker is raised so the run can never reach ready_for_review
// around it.
func (s *Service) generateStage(ctx context.Context, p *pipeline) (model.Stage, error) {
	existing, err := s.store.ListBlockers(ctx, p.run.ID)
	if err != nil {
		return "", fmt.Errorf("list blockers: %w", err)
	}
	raised := make(map[string]bool)
	for _, b := range existing {
		for _, id := range b.ScenarioIDs {
			raised[id] = true
		}
	}

	gen := generator.New(nil, s.logger)
	var files, skipped int

	p.mu.Lock()
	journeys := make([]model.Journey, len(p.state.Journeys))
	copy(journeys, p.state.Journeys)
	p.mu.Unlock()

	for _, jny := range journeys {
		p.mu.Lock()
		scs := p.state.scenariosOf(jny.ID)
		p.mu.Unlock()

		out, err := gen.Generate(jny, scs)
		if err != nil {
			return "", fmt.Errorf("generate artifacts for journey %s: %w", jny.ID, err)
		}
		if err := s.artifacts.WriteAll(out.Files); err != nil {
			return "", fmt.Errorf("write artifacts for journey %s: %w", jny.ID, err)
		}
		files += len(out.Files)
		skipped += out.Skipped

		p.mu.Lock()
		for _, sc := range out.Scenarios {
			p.state.putScenario(sc)
		}
		p.mu.Unlock()

		for _, sc := range out.Scenarios {
			if sc.Status != model.ScenarioSkipped || sc.Priority != model.PriorityCritical || raised[sc.ID] {
				continue
			}
			blocker := model.Blocker{
				ID:          model.NewBlockerID(),
				RunID:       p.run.ID,
				Category:    model.BlockerConfig,
				ScenarioIDs: []string{sc.ID},
				Reason:      "critical scenario cannot be generated: " + sc.Diagnostic,
				CreatedAt:   time.Now().UTC(),
			}
			if err := s.store.SaveBlocker(ctx, blocker); err != nil {
				return "", fmt.Errorf("save blocker for scenario %s: %w", sc.ID, err)
			}
			raised[sc.ID] = true
			s.emitter.BugCreated(ctx, events.BugCreatedEvent{
				RunID:       p.run.ID,
				BlockerID:   blocker.ID,
				ScenarioIDs: blocker.ScenarioIDs,
				Category:    string(blocker.Category),
				Reason:      blocker.Reason,
			})
			s.logger.Warn("generation blocker raised",
				"run", p.run.ID,
				"scenario", sc.ID,
				"reason", sc.Diagnostic)
		}
	}

	s.logger.Info("artifacts generated",
		"run", p.run.ID,
		"files", files,
		"unbindable", skipped)
	return model.StageSelecting, nil
}

// selectStage applies the dependency map to the change set and builds the
// execution backlog. An empty change set is a full run.
func (s *Service) selectStage(ctx context.Context, p *pipeline) (model.Stage, error) {
	p.mu.Lock()
	scenarios := make([]model.Scenario, len(p.state.Scenarios))
	copy(scenarios, p.state.Scenarios)
	changed := p.run.ChangeSet
	p.mu.Unlock()

	var sel selector.Selection
	if len(changed) == 0 {
		sel.Scenarios = scenarios
	} else {
		depmap, err := selector.LoadDepMap(s.cfg.Paths.DependencyMap)
		if err != nil {
			return "", fmt.Errorf("load dependency map: %w", err)
		}
		sel = selector.New(depmap, s.logger).Select(changed, scenarios)
	}

	selected := make(map[string]bool, len(sel.Scenarios))
	for _, sc := range sel.Scenarios {
		if !sc.Status.IsTerminal() {
			selected[sc.ID] = true
		}
	}

	p.mu.Lock()
	p.state.Deselected = sel.SkippedIDs
	p.state.PendingJourneys = nil
	for _, jny := range p.state.Journeys {
		for _, scID := range jny.ScenarioIDs {
			if selected[scID] {
				p.state.PendingJourneys = append(p.state.PendingJourneys, jny.ID)
				break
			}
		}
	}
	batches := len(p.state.PendingJourneys)
	p.mu.Unlock()

	s.logger.Info("scenarios selected",
		"run", p.run.ID,
		"selected", len(selected),
		"deselected", len(sel.SkippedIDs),
		"batches", batches)
	return model.StageExecuting, nil
}

// executeStage runs the backlog one journey batch at a time. A batch leaves
// the backlog only after its checkpoint is durable; cancellation stops
// dispatch between batches and leaves the in-flight batch listed.
func (s *Service) executeStage(ctx context.Context, p *pipeline) (model.Stage, error) {
	for {
		if ctx.Err() != nil {
			return model.StageCancelled, nil
		}

		p.mu.Lock()
		if len(p.state.PendingJourneys) == 0 {
			p.mu.Unlock()
			break
		}
		journeyID := p.state.PendingJourneys[0]
		p.mu.Unlock()

		if err := s.executeJourney(ctx, p, journeyID); err != nil {
			return "", err
		}
		if ctx.Err() != nil {
			return model.StageCancelled, nil
		}

		p.mu.Lock()
		p.state.popJourney(journeyID)
		p.mu.Unlock()

		if err := s.checkpoint(ctx, p); err != nil {
			return "", err
		}
		s.emitProgress(ctx, p)
	}
	return model.StageFixing, nil
}

// executeJourney drives one journey's scenarios through every adapter and
// commits each decided verdict as results drain.
func (s *Service) executeJourney(ctx context.Context, p *pipeline, journeyID string) error {
	p.mu.Lock()
	scs := p.state.runnable(journeyID)
	p.mu.Unlock()

	units := executor.UnitsFor(scs, s.adapters)
	if len(units) == 0 {
		s.logger.Info("journey has no runnable scenarios", "run", p.run.ID, "journey", journeyID)
		return nil
	}

	env, cleanup, err := s.envFor(journeyID)
	if err != nil {
		return err
	}
	defer cleanup()

	perScenario := make(map[string]int)
	for _, u := range units {
		perScenario[u.Scenario.ID]++
	}
	p.mu.Lock()
	for _, sc := range scs {
		if n := perScenario[sc.ID]; n > 0 {
			p.processor.Track(sc, n)
			sc.Status = model.ScenarioRunning
		}
	}
	p.mu.Unlock()

	s.logger.Info("executing journey batch",
		"run", p.run.ID,
		"journey", journeyID,
		"scenarios", len(perScenario),
		"units", len(units))

	for res := range p.exec.Run(ctx, env, units) {
		s.observeResult(res)
		if v, decided := p.processor.Record(res); decided {
			s.commitVerdict(ctx, p, v)
		}
	}
	return nil
}

// commitVerdict settles one scenario: state updated, flaky record persisted,
// result event emitted.
func (s *Service) commitVerdict(ctx context.Context, p *pipeline, v verdict.Verdict) {
	p.mu.Lock()
	if sc := p.state.scenario(v.ScenarioID); sc != nil {
		sc.Status = v.Status
	}
	p.state.putVerdict(v)
	p.mu.Unlock()

	s.metrics.ScenarioDecided(string(v.Status))
	if rec, ok := p.detector.Record(v.ScenarioID); ok {
		if err := s.store.SaveFlaky(ctx, rec); err != nil {
			s.logger.Warn("persist flaky record", "scenario", v.ScenarioID, "error", err)
		}
	}

	s.emitter.ScenarioResult(ctx, events.ScenarioResultEvent{
		RunID:        p.run.ID,
		ScenarioID:   v.ScenarioID,
		JourneyID:    v.JourneyID,
		Status:       string(v.Status),
		AdvisoryPass: v.AdvisoryPass,
		Quarantined:  v.Quarantined,
		FlakyScore:   v.FlakyScore,
		Failures:     diagnosticMessages(v.Diagnostics),
	})

	s.logger.Debug("scenario decided",
		"run", p.run.ID,
		"scenario", v.ScenarioID,
		"status", v.Status,
		"quarantined", v.Quarantined)
}

func diagnosticMessages(diags []model.Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, d.Message)
	}
	return out
}

// fixStage attempts remediation for every hard-failed scenario, then scores
// the run. The per-scenario attempt budget spans resumes: fixes already
// persisted for this run count against it.
func (s *Service) fixStage(ctx context.Context, p *pipeline) (model.Stage, error) {
	stored, err := s.store.ListFixes(ctx, p.run.ID)
	if err != nil {
		return "", fmt.Errorf("list fixes: %w", err)
	}
	prior := make(map[string]int)
	for _, f := range stored {
		prior[f.ScenarioID]++
	}

	maxAttempts := s.cfg.Fix.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}

	p.mu.Lock()
	failed := p.state.failedVerdicts()
	p.mu.Unlock()

	for _, v := range failed {
		if ctx.Err() != nil {
			return model.StageCancelled, nil
		}

		for p.engine.Attempts(v.ScenarioID)+prior[v.ScenarioID] < maxAttempts {
			f := s.failureFor(p, v)
			if f == nil {
				break
			}

			d, derr := p.engine.Attempt(ctx, p.run.ID, f)
			if d == nil && derr == nil {
				break
			}
			if d == nil {
				return "", fmt.Errorf("fix attempt for scenario %s: %w", v.ScenarioID, derr)
			}

			final, cerr := s.commitDecision(ctx, p, d, derr)
			if cerr != nil {
				return "", cerr
			}
			if final {
				break
			}
			// Rolled back: the budget decides whether to try again.
		}
	}

	return s.evaluate(ctx, p)
}

// failureFor assembles the classification input for one failed verdict.
// Copies keep the engine from aliasing pipeline state.
func (s *Service) failureFor(p *pipeline, v verdict.Verdict) *autofix.Failure {
	p.mu.Lock()
	defer p.mu.Unlock()

	scPtr := p.state.scenario(v.ScenarioID)
	jnyPtr := p.state.journey(v.JourneyID)
	if scPtr == nil || jnyPtr == nil {
		return nil
	}
	sc := *scPtr
	jny := *jnyPtr

	f := &autofix.Failure{
		Scenario: &sc,
		Journey:  &jny,
		Siblings: p.state.scenariosOf(v.JourneyID),
		Verdict:  v,
	}
	if rec, ok := p.detector.Record(v.ScenarioID); ok {
		f.History = rec.Window
	}
	return f
}

// commitDecision persists one fix decision and its side effects. It reports
// final=false only for a rolled-back verification, where the attempt budget
// may allow another try.
func (s *Service) commitDecision(ctx context.Context, p *pipeline, d *autofix.Decision, derr error) (bool, error) {
	if err := s.store.SaveFix(ctx, d.Fix); err != nil {
		return false, fmt.Errorf("save fix %s: %w", d.Fix.ID, err)
	}

	s.emitter.FixApplied(ctx, events.FixAppliedEvent{
		RunID:      p.run.ID,
		FixID:      d.Fix.ID,
		ScenarioID: d.Fix.ScenarioID,
		Signature:  d.Fix.Signature,
		Confidence: d.Fix.Confidence,
		State:      string(d.Fix.State),
		Verified:   d.Fix.Verified,
	})

	final := true
	switch {
	case d.Blocker != nil:
		if err := s.store.SaveBlocker(ctx, *d.Blocker); err != nil {
			return false, fmt.Errorf("save blocker %s: %w", d.Blocker.ID, err)
		}
		s.emitter.BugCreated(ctx, events.BugCreatedEvent{
			RunID:       p.run.ID,
			BlockerID:   d.Blocker.ID,
			FixID:       d.Blocker.FixID,
			ScenarioIDs: d.Blocker.ScenarioIDs,
			Category:    string(d.Blocker.Category),
			Reason:      d.Blocker.Reason,
		})
		s.metrics.FixResolved(string(d.Fix.State))
		s.logger.Warn("fix escalated to blocker",
			"run", p.run.ID,
			"fix", d.Fix.ID,
			"blocker", d.Blocker.ID,
			"category", d.Blocker.Category)

	case d.Scenario != nil:
		// Verified: the re-run verdict replaces the failed one.
		p.mu.Lock()
		p.state.putScenario(*d.Scenario)
		p.mu.Unlock()
		if nv := p.takeVerifyVerdict(); nv != nil {
			s.commitVerdict(ctx, p, *nv)
		}
		s.metrics.FixResolved(string(d.Fix.State))
		s.logger.Info("fix verified",
			"run", p.run.ID,
			"fix", d.Fix.ID,
			"scenario", d.Fix.ScenarioID,
			"signature", d.Fix.Signature)

	case derr != nil:
		// Rolled back. The verification re-run observed the patched
		// artifacts, so its verdict is discarded with them.
		p.takeVerifyVerdict()
		s.metrics.FixResolved(string(d.Fix.State))
		var vf *uaterr.FixVerificationFailed
		if errors.As(derr, &vf) {
			final = false
			s.logger.Warn("fix rolled back",
				"run", p.run.ID,
				"fix", d.Fix.ID,
				"scenario", vf.ScenarioID,
				"reason", vf.Reason)
		} else {
			s.logger.Error("fix verification errored",
				"run", p.run.ID,
				"fix", d.Fix.ID,
				"error", derr)
		}

	default:
		// Applied, awaiting human review. The scenario stays failed until
		// the fix is confirmed.
		s.logger.Info("fix awaiting review",
			"run", p.run.ID,
			"fix", d.Fix.ID,
			"scenario", d.Fix.ScenarioID,
			"confidence", d.Fix.Confidence)
	}

	if err := s.checkpoint(ctx, p); err != nil {
		return false, err
	}
	return final, nil
}

// evaluate scores the run: ready_for_review requires a 100% critical pass
// rate (quarantined criticals excluded from the denominator) and zero open
// blockers. Anything else parks the run as blocked.
func (s *Service) evaluate(ctx context.Context, p *pipeline) (model.Stage, error) {
	p.mu.Lock()
	summary := verdict.Summarize(p.state.Verdicts)
	p.mu.Unlock()

	blockers, err := s.store.ListBlockers(ctx, p.run.ID)
	if err != nil {
		return "", fmt.Errorf("list blockers: %w", err)
	}
	var open []string
	for _, b := range blockers {
		if b.Open() {
			open = append(open, b.ID)
		}
	}

	s.metrics.SetQuarantined(summary.Quarantined)

	rate := summary.CriticalPassRate()
	if rate >= 1 && len(open) == 0 {
		s.logger.Info("run ready for review",
			"run", p.run.ID,
			"passed", summary.Passed,
			"failed", summary.Failed,
			"quarantined", summary.Quarantined)
		return model.StageReadyForReview, nil
	}

	s.logger.Warn("run blocked",
		"run", p.run.ID,
		"critical_pass_rate", rate,
		"open_blockers", len(open),
		"error", &uaterr.BlockerUnresolved{RunID: p.run.ID, BlockerIDs: open})
	return model.StageBlocked, nil
}
