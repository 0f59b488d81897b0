package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/adapter/virtual"
	"github.com/c360studio/uatgate/autofix"
	"github.com/c360studio/uatgate/events"
	"github.com/c360studio/uatgate/executor"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/uaterr"
	"github.com/c360studio/uatgate/verdict"
)

// pipeline is the in-process half of one run: the run record, the
// checkpointed state, and the per-run machinery rebuilt on every start or
// resume.
type pipeline struct {
	mu    sync.Mutex
	run   *model.Run
	state *runState

	// parked is set when the pipeline goroutine exits at blocked; Confirm
	// and Cancel then finalize the run directly.
	parked bool

	// verifyVerdict is the decision of the most recent fix verification
	// re-run, consumed when the fix decision commits.
	verifyVerdict *verdict.Verdict

	processor *verdict.Processor
	detector  *verdict.Detector
	engine    *autofix.Engine
	exec      *executor.Executor

	cancel context.CancelFunc
	done   chan struct{}
}

func (p *pipeline) stage() model.Stage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run.Stage
}

func (p *pipeline) takeVerifyVerdict() *verdict.Verdict {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.verifyVerdict
	p.verifyVerdict = nil
	return v
}

// runPipeline walks the run through its stages until it settles. Each stage
// function returns the stage to enter next; the transition persists the run
// record and a checkpoint before the next stage starts.
func (s *Service) runPipeline(ctx context.Context, p *pipeline) {
	defer close(p.done)

	s.logger.Info("pipeline started",
		"run", p.run.ID,
		"project", p.run.Project,
		"stage", p.stage())

	for {
		stage := p.stage()
		switch {
		case stage.IsTerminal():
			s.finish(ctx, p, stage)
			return
		case stage == model.StageBlocked:
			s.park(ctx, p)
			return
		}

		if ctx.Err() != nil {
			if err := s.transition(ctx, p, model.StageCancelled); err != nil {
				s.logger.Error("finalize cancelled run", "run", p.run.ID, "error", err)
				return
			}
			continue
		}

		var next model.Stage
		var err error
		started := time.Now()
		switch stage {
		case model.StageExtracting:
			next, err = s.extractStage(ctx, p)
		case model.StageGenerating:
			next, err = s.generateStage(ctx, p)
		case model.StageSelecting:
			next, err = s.selectStage(ctx, p)
		case model.StageExecuting:
			next, err = s.executeStage(ctx, p)
		case model.StageFixing:
			next, err = s.fixStage(ctx, p)
		default:
			s.fail(ctx, p, fmt.Errorf("pipeline reached unknown stage %q", stage))
			return
		}
		if err != nil {
			s.fail(ctx, p, err)
			return
		}
		s.metrics.StageCompleted(string(stage), time.Since(started))

		if err := s.transition(ctx, p, next); err != nil {
			s.fail(ctx, p, err)
			return
		}
	}
}

// transition advances the run to the next stage and makes the boundary
// durable: run record first, then a checkpoint carrying the full state.
func (s *Service) transition(ctx context.Context, p *pipeline, to model.Stage) error {
	p.mu.Lock()
	from := p.run.Stage
	if from != to {
		if !from.CanTransitionTo(to) {
			s.logger.Error("invalid stage transition",
				"run", p.run.ID,
				"from", from,
				"to", to)
		}
		p.run.Stage = to
	}
	if err := s.store.SaveRun(ctx, p.run); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("save run %s: %w", p.run.ID, err)
	}
	p.mu.Unlock()

	if err := s.checkpoint(ctx, p); err != nil {
		return err
	}
	s.emitProgress(ctx, p)
	s.logger.Info("stage transition", "run", p.run.ID, "from", from, "to", to)
	return nil
}

// checkpoint writes the pipeline state under the run's current stage. The
// store guarantees durability before return.
func (s *Service) checkpoint(ctx context.Context, p *pipeline) error {
	p.mu.Lock()
	data, err := json.Marshal(p.state)
	stage := p.run.Stage
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal state for run %s: %w", p.run.ID, err)
	}

	seq, err := s.store.Checkpoint(ctx, p.run.ID, stage, data)
	if err != nil {
		return fmt.Errorf("checkpoint run %s at %s: %w", p.run.ID, stage, err)
	}
	s.logger.Debug("checkpoint written", "run", p.run.ID, "stage", stage, "sequence", seq)
	return nil
}

// fail settles the run as failed, persisting the reason in both the run
// record and a final checkpoint.
func (s *Service) fail(ctx context.Context, p *pipeline, err error) {
	s.logger.Error("pipeline failed",
		"run", p.run.ID,
		"stage", p.stage(),
		"fatal", uaterr.IsFatal(err),
		"error", err)

	p.mu.Lock()
	p.run.Stage = model.StageFailed
	p.run.FailureReason = err.Error()
	p.state.FailureReason = err.Error()
	if serr := s.store.SaveRun(ctx, p.run); serr != nil {
		s.logger.Error("save failed run", "run", p.run.ID, "error", serr)
	}
	p.mu.Unlock()

	if cerr := s.checkpoint(ctx, p); cerr != nil {
		s.logger.Error("checkpoint failed run", "run", p.run.ID, "error", cerr)
	}
	s.metrics.RunCompleted(string(model.StageFailed))
	s.emitProgress(ctx, p)
}

func (s *Service) finish(ctx context.Context, p *pipeline, stage model.Stage) {
	s.metrics.RunCompleted(string(stage))
	s.emitProgress(ctx, p)
	s.logger.Info("pipeline finished", "run", p.run.ID, "stage", stage)
}

// park leaves a blocked run resident so Confirm and Cancel can still reach
// its engine. The pipeline goroutine exits; a later resume re-enters fixing.
func (s *Service) park(ctx context.Context, p *pipeline) {
	p.mu.Lock()
	p.parked = true
	p.mu.Unlock()
	s.emitProgress(ctx, p)
	s.logger.Warn("pipeline blocked awaiting action", "run", p.run.ID)
}

func (s *Service) emitProgress(ctx context.Context, p *pipeline) {
	p.mu.Lock()
	stage := p.run.Stage
	total := len(p.state.Scenarios) - len(p.state.Deselected)
	done := len(p.state.Verdicts)
	runID := p.run.ID
	p.mu.Unlock()

	s.emitter.Progress(ctx, events.ProgressEvent{
		RunID:          runID,
		Stage:          string(stage),
		Percent:        progressPercent(stage, done, total),
		ScenariosTotal: total,
		ScenariosDone:  done,
	})
}

func progressPercent(stage model.Stage, done, total int) float64 {
	switch stage {
	case model.StageExtracting:
		return 5
	case model.StageGenerating:
		return 15
	case model.StageSelecting:
		return 30
	case model.StageExecuting:
		if total <= 0 {
			return 40
		}
		return 40 + 45*float64(done)/float64(total)
	case model.StageFixing:
		return 90
	default:
		return 100
	}
}

// envFor builds the execution environment for one journey's batch: fixtures
// loaded from the artifact tree and a virtualized dependency service started
// on a loopback port. The returned cleanup stops the service.
func (s *Service) envFor(journeyID string) (*adapter.Env, func(), error) {
	var routes *generator.RouteSet
	routesRel := filepath.Join("fixtures", journeyID, "routes.yaml")
	if s.artifacts.Exists(routesRel) {
		rs, err := generator.LoadRoutes(s.artifacts.Path(routesRel))
		if err != nil {
			return nil, nil, fmt.Errorf("journey %s: %w", journeyID, err)
		}
		routes = rs
	}

	seed := map[string]string{}
	seedRel := filepath.Join("fixtures", journeyID, "seed.yaml")
	if s.artifacts.Exists(seedRel) {
		m, err := generator.LoadSeed(s.artifacts.Path(seedRel))
		if err != nil {
			return nil, nil, fmt.Errorf("journey %s: %w", journeyID, err)
		}
		seed = m
	}

	srv := virtual.NewServer(routes, s.logger)
	if err := srv.Start(); err != nil {
		return nil, nil, &uaterr.AdapterUnavailable{
			Adapter: "virtual",
			Reason:  "start virtualized dependency service",
			Err:     err,
		}
	}

	env := &adapter.Env{
		BaseURL:     srv.BaseURL(),
		DataDir:     s.artifacts.Root(),
		BaselineDir: s.cfg.Paths.Baselines,
		Seed:        seed,
		Routes:      routes,
		Vars:        credentialVars(),
	}
	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Close(shutdownCtx); err != nil {
			s.logger.Warn("shut down virtualized service", "journey", journeyID, "error", err)
		}
	}
	return env, cleanup, nil
}

// credentialVars sources adapter credentials from the process environment.
// Credentials never live in the config file.
func credentialVars() map[string]string {
	vars := map[string]string{}
	for key, envVar := range map[string]string{
		"api_token":  "UATGATE_API_TOKEN",
		"basic_user": "UATGATE_BASIC_USER",
		"basic_pass": "UATGATE_BASIC_PASS",
	} {
		if v := os.Getenv(envVar); v != "" {
			vars[key] = v
		}
	}
	return vars
}

// observeResult feeds per-unit metrics.
func (s *Service) observeResult(res executor.Result) {
	s.metrics.AdapterResult(res.Adapter, resultVerdictLabel(res))
	for i := 1; i < res.Attempts; i++ {
		s.metrics.Retry()
	}
}

func resultVerdictLabel(res executor.Result) string {
	switch {
	case res.Skipped:
		return "skipped"
	case res.Err != nil:
		var timeout *uaterr.ExecutionTimeout
		if errors.As(res.Err, &timeout) {
			return "timeout"
		}
		return "error"
	case res.Tool != nil:
		return string(res.Tool.RawVerdict)
	}
	return "unknown"
}

// scenarioVerifier re-executes a single scenario through the live adapter
// set. The autofix engine uses it to settle applied fixes.
type scenarioVerifier struct {
	svc *Service
	p   *pipeline
}

func (v *scenarioVerifier) Verify(ctx context.Context, sc *model.Scenario) (bool, error) {
	return v.svc.verifyScenario(ctx, v.p, sc)
}

func (s *Service) verifyScenario(ctx context.Context, p *pipeline, sc *model.Scenario) (bool, error) {
	re := *sc
	units := executor.UnitsFor([]*model.Scenario{&re}, s.adapters)
	if len(units) == 0 {
		return false, fmt.Errorf("no runnable units for scenario %s", sc.ID)
	}

	env, cleanup, err := s.envFor(sc.JourneyID)
	if err != nil {
		return false, err
	}
	defer cleanup()

	p.processor.Track(&re, len(units))
	var decided *verdict.Verdict
	for res := range p.exec.Run(ctx, env, units) {
		s.observeResult(res)
		if v, ok := p.processor.Record(res); ok {
			vv := v
			decided = &vv
		}
	}
	if decided == nil {
		return false, fmt.Errorf("scenario %s produced no verdict on re-run", sc.ID)
	}

	p.mu.Lock()
	p.verifyVerdict = decided
	p.mu.Unlock()

	if rec, ok := p.detector.Record(sc.ID); ok {
		if err := s.store.SaveFlaky(ctx, rec); err != nil {
			s.logger.Warn("persist flaky record", "scenario", sc.ID, "error", err)
		}
	}
	return decided.Status == model.ScenarioPassed, nil
}
