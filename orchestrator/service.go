// Package orchestrator drives the UAT pipeline: journeys are extracted from
// the specification, artifacts generated, scenarios selected against the
// change set and executed, failures auto-fixed, and the run scored for
// review readiness. Progress is checkpointed at every stage boundary, after
// every execution batch, and after every fix decision, so an interrupted run
// resumes at its exact stage without re-executing completed work.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/artifact"
	"github.com/c360studio/uatgate/autofix"
	"github.com/c360studio/uatgate/config"
	"github.com/c360studio/uatgate/events"
	"github.com/c360studio/uatgate/executor"
	"github.com/c360studio/uatgate/export"
	"github.com/c360studio/uatgate/metrics"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/storage"
	"github.com/c360studio/uatgate/uaterr"
	"github.com/c360studio/uatgate/verdict"
)

// RunConfig parameterizes one triggered run.
type RunConfig struct {
	// Project scopes trigger idempotency; empty falls back to the
	// configured project.
	Project string

	// SpecPath overrides the configured specification document.
	SpecPath string

	// ChangeSet lists changed paths for a selective run. Empty means a
	// full run: every scenario executes.
	ChangeSet []string
}

// RunStatus is a point-in-time view of one run.
type RunStatus struct {
	RunID       string      `json:"run_id"`
	Project     string      `json:"project"`
	Stage       model.Stage `json:"stage"`
	SpecVersion string      `json:"spec_version,omitempty"`

	JourneysTotal    int `json:"journeys_total"`
	ScenariosTotal   int `json:"scenarios_total"`
	ScenariosPassing int `json:"scenarios_passing"`
	ScenariosFailing int `json:"scenarios_failing"`
	ScenariosSkipped int `json:"scenarios_skipped"`
	Deselected       int `json:"deselected,omitempty"`
	FlakyCount       int `json:"flaky_count"`

	CriticalPassRate float64 `json:"critical_pass_rate"`

	Blockers     []model.Blocker `json:"blockers,omitempty"`
	PendingFixes []model.Fix     `json:"pending_fixes,omitempty"`

	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Service owns run lifecycles. One Service instance drives any number of
// concurrent runs, each on its own pipeline goroutine.
type Service struct {
	cfg       *config.Config
	store     storage.Store
	artifacts *artifact.Store
	adapters  []adapter.Adapter
	emitter   *events.Emitter
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu   sync.Mutex
	runs map[string]*pipeline
}

// NewService creates the orchestration service. The emitter and metrics may
// be nil; both degrade to no-ops.
func NewService(cfg *config.Config, store storage.Store, artifacts *artifact.Store, adapters []adapter.Adapter, emitter *events.Emitter, met *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		artifacts: artifacts,
		adapters:  adapters,
		emitter:   emitter,
		metrics:   met,
		logger:    logger,
		runs:      make(map[string]*pipeline),
	}
}

// Trigger starts a run for the project. Triggering while the project already
// has an active run is a no-op that returns the active run's ID.
func (s *Service) Trigger(ctx context.Context, rc RunConfig) (string, error) {
	project := rc.Project
	if project == "" {
		project = s.cfg.Project
	}
	specPath := rc.SpecPath
	if specPath == "" {
		specPath = s.cfg.Paths.Spec
	}
	if specPath == "" {
		return "", fmt.Errorf("no specification document configured for project %s", project)
	}

	if active, err := s.store.ActiveRun(ctx, project); err == nil {
		s.logger.Info("project already has an active run",
			"project", project,
			"run", active.ID,
			"stage", active.Stage)
		return active.ID, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("query active run: %w", err)
	}

	run := &model.Run{
		ID:        model.NewRunID(),
		Project:   project,
		SpecPath:  specPath,
		Stage:     model.StageExtracting,
		ChangeSet: rc.ChangeSet,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	p := s.newPipeline(ctx, run, &runState{})
	s.start(p)
	s.logger.Info("run triggered",
		"run", run.ID,
		"project", project,
		"spec", specPath,
		"changed_paths", len(rc.ChangeSet))
	return run.ID, nil
}

// Resume restarts an interrupted run from its latest checkpoint. The
// pipeline re-enters the checkpointed stage with the checkpointed state;
// completed batches are not re-executed. A blocked run re-enters the fixing
// stage so externally resolved blockers are re-evaluated.
func (s *Service) Resume(ctx context.Context, runID string) error {
	s.mu.Lock()
	_, running := s.runs[runID]
	s.mu.Unlock()
	if running {
		return fmt.Errorf("run %s is already in progress", runID)
	}

	run, err := s.store.LoadRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if !run.Active() {
		return fmt.Errorf("run %s is already %s", runID, run.Stage)
	}

	state := &runState{}
	cp, err := s.store.Resume(ctx, runID)
	switch {
	case errors.Is(err, storage.ErrNoCheckpoint):
		run.Stage = model.StageExtracting
	case err != nil:
		var corrupt *uaterr.StateCorruption
		if errors.As(err, &corrupt) {
			run.Stage = model.StageFailed
			run.FailureReason = corrupt.Error()
			if serr := s.store.SaveRun(ctx, run); serr != nil {
				s.logger.Error("mark corrupted run failed", "run", runID, "error", serr)
			}
			s.metrics.RunCompleted(string(model.StageFailed))
		}
		return fmt.Errorf("resume run %s: %w", runID, err)
	default:
		if uerr := json.Unmarshal(cp.State, state); uerr != nil {
			return fmt.Errorf("resume run %s: decode checkpoint %d: %w", runID, cp.Sequence, uerr)
		}
		run.Stage = cp.Stage
		if run.Stage == model.StageBlocked {
			run.Stage = model.StageFixing
		}
		s.logger.Info("resuming run from checkpoint",
			"run", runID,
			"stage", run.Stage,
			"sequence", cp.Sequence)
	}

	p := s.newPipeline(ctx, run, state)
	s.start(p)
	return nil
}

// snapshot returns the run record and a copy of its pipeline state, from
// the in-process pipeline when one is live, otherwise from the run's latest
// checkpoint. A run that never checkpointed yields an empty state.
func (s *Service) snapshot(ctx context.Context, runID string) (model.Run, *runState, error) {
	s.mu.Lock()
	p := s.runs[runID]
	s.mu.Unlock()

	if p != nil {
		p.mu.Lock()
		run := *p.run
		state := p.state.clone()
		p.mu.Unlock()
		return run, state, nil
	}

	loaded, err := s.store.LoadRun(ctx, runID)
	if err != nil {
		return model.Run{}, nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	state := &runState{}
	cp, err := s.store.Resume(ctx, runID)
	switch {
	case errors.Is(err, storage.ErrNoCheckpoint):
	case err != nil:
		return model.Run{}, nil, fmt.Errorf("read checkpoint for run %s: %w", runID, err)
	default:
		if uerr := json.Unmarshal(cp.State, state); uerr != nil {
			return model.Run{}, nil, fmt.Errorf("decode checkpoint %d for run %s: %w", cp.Sequence, runID, uerr)
		}
	}
	return *loaded, state, nil
}

// Status reports the run's current stage and scorecard. Runs not held by
// this process are reconstructed from their run record and latest
// checkpoint.
func (s *Service) Status(ctx context.Context, runID string) (*RunStatus, error) {
	run, state, err := s.snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}
	summary := verdict.Summarize(state.Verdicts)

	blockers, err := s.store.ListBlockers(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list blockers for run %s: %w", runID, err)
	}

	fixes, err := s.store.ListFixes(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list fixes for run %s: %w", runID, err)
	}
	var pending []model.Fix
	for _, f := range fixes {
		if f.State == model.FixPendingReview {
			pending = append(pending, f)
		}
	}

	return &RunStatus{
		RunID:            run.ID,
		Project:          run.Project,
		Stage:            run.Stage,
		SpecVersion:      state.SpecVersion,
		JourneysTotal:    len(state.Journeys),
		ScenariosTotal:   len(state.Scenarios),
		ScenariosPassing: summary.Passed,
		ScenariosFailing: summary.Failed,
		ScenariosSkipped: summary.Skipped,
		Deselected:       len(state.Deselected),
		FlakyCount:       summary.Quarantined,
		CriticalPassRate: summary.CriticalPassRate(),
		Blockers:         blockers,
		PendingFixes:     pending,
		FailureReason:    run.FailureReason,
		CreatedAt:        run.CreatedAt,
		UpdatedAt:        run.UpdatedAt,
	}, nil
}

// Report assembles the run's full report: journeys with scenario rows,
// fixes, blockers, and coverage gaps.
func (s *Service) Report(ctx context.Context, runID string) (*export.Report, error) {
	run, state, err := s.snapshot(ctx, runID)
	if err != nil {
		return nil, err
	}

	blockers, err := s.store.ListBlockers(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list blockers for run %s: %w", runID, err)
	}
	fixes, err := s.store.ListFixes(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list fixes for run %s: %w", runID, err)
	}

	return export.NewReport(export.Materials{
		Run:        &run,
		Journeys:   state.Journeys,
		Scenarios:  state.Scenarios,
		Verdicts:   state.Verdicts,
		Deselected: state.Deselected,
		Gaps:       state.Gaps,
		Fixes:      fixes,
		Blockers:   blockers,
	}), nil
}

// Confirm settles a pending-review fix. Accepting triggers verification;
// rejecting rolls the artifacts back and raises a blocker. A blocked run is
// re-evaluated once the decision lands, so an accepted fix that turns the
// last failing critical green releases the run to ready_for_review.
func (s *Service) Confirm(ctx context.Context, fixID string, accept bool) error {
	p := s.pipelineForFix(fixID)
	if p == nil {
		return fmt.Errorf("fix %s is not awaiting review", fixID)
	}

	d, derr := p.engine.Confirm(ctx, fixID, accept)
	if d == nil {
		return derr
	}
	if _, err := s.commitDecision(ctx, p, d, derr); err != nil {
		return err
	}

	p.mu.Lock()
	parked := p.parked && p.run.Stage == model.StageBlocked
	p.mu.Unlock()
	if parked {
		next, err := s.evaluate(ctx, p)
		if err != nil {
			return err
		}
		if next != model.StageBlocked {
			if err := s.transition(ctx, p, next); err != nil {
				return err
			}
			p.mu.Lock()
			p.parked = false
			p.mu.Unlock()
			s.metrics.RunCompleted(string(next))
			s.logger.Info("pipeline finished", "run", p.run.ID, "stage", next)
		}
	}
	return derr
}

// Cancel stops a run. An executing pipeline stops dispatching, drains its
// in-flight scenarios, and checkpoints before the stage settles to
// cancelled.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	s.mu.Lock()
	p := s.runs[runID]
	s.mu.Unlock()

	if p == nil {
		run, err := s.store.LoadRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("load run %s: %w", runID, err)
		}
		if !run.Active() {
			return fmt.Errorf("run %s is already %s", runID, run.Stage)
		}
		run.Stage = model.StageCancelled
		if err := s.store.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("save run %s: %w", runID, err)
		}
		s.metrics.RunCompleted(string(model.StageCancelled))
		s.logger.Info("run cancelled", "run", runID)
		return nil
	}

	p.mu.Lock()
	stage := p.run.Stage
	parked := p.parked
	p.mu.Unlock()

	if stage.IsTerminal() {
		return fmt.Errorf("run %s is already %s", runID, stage)
	}
	if parked {
		if err := s.transition(ctx, p, model.StageCancelled); err != nil {
			return err
		}
		s.metrics.RunCompleted(string(model.StageCancelled))
		s.logger.Info("run cancelled", "run", runID)
		return nil
	}

	p.cancel()
	s.logger.Info("run cancellation requested", "run", runID)
	return nil
}

// Wait blocks until the run's pipeline settles, then reports the final
// stage. A blocked run yields a BlockerUnresolved error; a failed run yields
// its failure reason.
func (s *Service) Wait(ctx context.Context, runID string) (model.Stage, error) {
	s.mu.Lock()
	p := s.runs[runID]
	s.mu.Unlock()

	if p == nil {
		run, err := s.store.LoadRun(ctx, runID)
		if err != nil {
			return "", fmt.Errorf("load run %s: %w", runID, err)
		}
		return run.Stage, s.stageOutcome(ctx, run)
	}

	select {
	case <-ctx.Done():
		return p.stage(), ctx.Err()
	case <-p.done:
	}

	p.mu.Lock()
	run := *p.run
	p.mu.Unlock()
	return run.Stage, s.stageOutcome(ctx, &run)
}

// stageOutcome converts a settled stage into the error the caller should
// see.
func (s *Service) stageOutcome(ctx context.Context, run *model.Run) error {
	switch run.Stage {
	case model.StageBlocked:
		blockers, err := s.store.ListBlockers(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("list blockers for run %s: %w", run.ID, err)
		}
		var open []string
		for _, b := range blockers {
			if b.Open() {
				open = append(open, b.ID)
			}
		}
		if len(open) == 0 {
			return fmt.Errorf("run %s is blocked: critical scenarios are failing", run.ID)
		}
		return &uaterr.BlockerUnresolved{RunID: run.ID, BlockerIDs: open}
	case model.StageFailed:
		if run.FailureReason != "" {
			return errors.New(run.FailureReason)
		}
		return fmt.Errorf("run %s failed", run.ID)
	}
	return nil
}

// newPipeline assembles the per-run machinery: a fresh processor and
// executor, a flaky detector primed from persisted records, and a fix engine
// verifying through live re-execution.
func (s *Service) newPipeline(ctx context.Context, run *model.Run, state *runState) *pipeline {
	detector := verdict.NewDetector(s.cfg.Flaky)
	if recs, err := s.store.LoadFlaky(ctx); err != nil {
		s.logger.Warn("load flaky records", "error", err)
	} else {
		detector.Load(recs)
	}

	p := &pipeline{
		run:       run,
		state:     state,
		detector:  detector,
		processor: verdict.NewProcessor(s.cfg.AdvisoryCapabilities, detector, s.logger),
		exec:      executor.New(executor.OptionsFrom(s.cfg.Execution), s.logger),
		done:      make(chan struct{}),
	}
	p.engine = autofix.NewEngine(s.cfg.Thresholds, s.cfg.Fix, s.artifacts, &scenarioVerifier{svc: s, p: p}, s.logger)
	return p
}

func (s *Service) start(p *pipeline) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	s.mu.Lock()
	s.runs[p.run.ID] = p
	s.mu.Unlock()
	go s.runPipeline(ctx, p)
}

// pipelineForFix finds the in-process pipeline holding the pending fix.
func (s *Service) pipelineForFix(fixID string) *pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.runs {
		for _, f := range p.engine.Fixes() {
			if f.ID == fixID && f.State == model.FixPendingReview {
				return p
			}
		}
	}
	return nil
}
