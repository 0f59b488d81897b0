package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/adapter/apicheck"
	"github.com/c360studio/uatgate/adapter/browser"
	"github.com/c360studio/uatgate/adapter/virtual"
	"github.com/c360studio/uatgate/artifact"
	"github.com/c360studio/uatgate/config"
	"github.com/c360studio/uatgate/extractor"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/source"
	"github.com/c360studio/uatgate/source/parser"
	"github.com/c360studio/uatgate/storage"
	"github.com/c360studio/uatgate/uaterr"
	"github.com/c360studio/uatgate/verdict"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const specFileName = "webshop.md"

// webshopSpec drives the full pipeline: two flow journeys, the first marked
// critical via frontmatter. The steps only touch generated fixture pages, so
// a clean run passes with no product deployment behind it.
const webshopSpec = `---
title: Webshop
critical:
  - Checkout
---

# Webshop

## Checkout Flow

1. Navigate to the cart page
2. Click the place order button -> Order placed
3. Verify the order confirmation banner

## Browse Catalog Flow

1. Navigate to the catalog page
2. Click the category filter -> Filtered results
`

const singleJourneySpec = `---
critical:
  - Checkout
---

# Webshop

## Checkout Flow

1. Navigate to the cart page
2. Click the place order button -> Order placed
3. Verify the order confirmation banner
`

// unbindableSpec has a critical journey whose second step uses a verb no
// template binds, so generation must skip the scenario and raise a blocker.
const unbindableSpec = `---
critical:
  - Checkout
---

# Webshop

## Checkout Flow

1. Navigate to the cart page
2. Frobnicate the order widget

## Browse Catalog Flow

1. Navigate to the catalog page
2. Click the category filter -> Filtered results
`

type fixture struct {
	svc       *Service
	store     storage.Store
	artifacts *artifact.Store
	cfg       *config.Config
}

func newFixture(t *testing.T, spec string, adapters ...adapter.Adapter) *fixture {
	t.Helper()
	root := t.TempDir()

	specPath := filepath.Join(root, specFileName)
	require.NoError(t, os.WriteFile(specPath, []byte(spec), 0o644))

	cfg := config.DefaultConfig()
	cfg.Project = "webshop"
	cfg.Paths.Spec = specPath
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.Artifacts = filepath.Join(root, "artifacts")
	cfg.Paths.Baselines = filepath.Join(root, "baselines")
	cfg.Paths.DependencyMap = filepath.Join(root, "depmap.yaml")
	cfg.Execution.MaxRetries = 0
	cfg.Execution.ScenarioTimeout = "10s"

	store, err := storage.NewFileStore(filepath.Join(root, "state"))
	require.NoError(t, err)

	artifacts := artifact.NewStore(cfg.Paths.Artifacts, testLogger())
	svc := NewService(cfg, store, artifacts, adapters, nil, nil, testLogger())
	return &fixture{svc: svc, store: store, artifacts: artifacts, cfg: cfg}
}

// materialize runs extraction and generation the same way the pipeline does,
// so tests can learn the deterministic journey and scenario IDs and stage
// checkpoints or fixture edits against them.
func materialize(t *testing.T, fx *fixture, spec string) (*source.Document, *extractor.Result) {
	t.Helper()

	doc, err := parser.DefaultRegistry.Parse(specFileName, []byte(spec))
	require.NoError(t, err)

	res, err := extractor.New(nil, testLogger()).Extract(doc)
	require.NoError(t, err)

	gen := generator.New(nil, testLogger())
	for _, jny := range res.Journeys {
		var scs []model.Scenario
		for _, sc := range res.Scenarios {
			if sc.JourneyID == jny.ID {
				scs = append(scs, sc)
			}
		}
		out, err := gen.Generate(jny, scs)
		require.NoError(t, err)
		require.NoError(t, fx.artifacts.WriteAll(out.Files))
		for _, sc := range out.Scenarios {
			for i := range res.Scenarios {
				if res.Scenarios[i].ID == sc.ID {
					res.Scenarios[i] = sc
				}
			}
		}
	}
	return doc, res
}

func journeyNamed(t *testing.T, res *extractor.Result, name string) model.Journey {
	t.Helper()
	for _, jny := range res.Journeys {
		if jny.Name == name {
			return jny
		}
	}
	t.Fatalf("no journey named %q", name)
	return model.Journey{}
}

func scenarioOf(t *testing.T, res *extractor.Result, journeyID string) model.Scenario {
	t.Helper()
	for _, sc := range res.Scenarios {
		if sc.JourneyID == journeyID {
			return sc
		}
	}
	t.Fatalf("no scenario for journey %s", journeyID)
	return model.Scenario{}
}

func seedRun(t *testing.T, fx *fixture, run *model.Run, state *runState) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, fx.store.CreateRun(ctx, run))
	data, err := json.Marshal(state)
	require.NoError(t, err)
	_, err = fx.store.Checkpoint(ctx, run.ID, run.Stage, data)
	require.NoError(t, err)
}

// countingAdapter records which scenarios reach Execute before delegating,
// so resume tests can prove completed batches never re-run.
type countingAdapter struct {
	inner adapter.Adapter

	mu       sync.Mutex
	executed []string
}

func (c *countingAdapter) Name() string                   { return c.inner.Name() }
func (c *countingAdapter) Capability() adapter.Capability { return c.inner.Capability() }

func (c *countingAdapter) Execute(ctx context.Context, sc *model.Scenario, env *adapter.Env) (*model.ToolResult, error) {
	c.mu.Lock()
	c.executed = append(c.executed, sc.ID)
	c.mu.Unlock()
	return c.inner.Execute(ctx, sc, env)
}

func (c *countingAdapter) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.executed...)
}

// slowAdapter holds every unit until the context is cancelled, keeping a run
// inside the executing stage for cancellation tests.
type slowAdapter struct{}

func (slowAdapter) Name() string                   { return "slow" }
func (slowAdapter) Capability() adapter.Capability { return adapter.CapabilityBrowser }

func (slowAdapter) Execute(ctx context.Context, sc *model.Scenario, _ *adapter.Env) (*model.ToolResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
	}
	return &model.ToolResult{
		ScenarioID: sc.ID,
		Adapter:    "slow",
		Capability: string(adapter.CapabilityBrowser),
		RawVerdict: model.VerdictPass,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func TestTrigger_FullPipelineReachesReadyForReview(t *testing.T) {
	fx := newFixture(t, webshopSpec, browser.New(testLogger()), virtual.New(testLogger()))
	ctx := context.Background()

	runID, err := fx.svc.Trigger(ctx, RunConfig{})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	stage, err := fx.svc.Wait(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageReadyForReview, stage)

	st, err := fx.svc.Status(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.JourneysTotal)
	assert.Equal(t, 2, st.ScenariosTotal)
	assert.Equal(t, 2, st.ScenariosPassing)
	assert.Equal(t, 0, st.ScenariosFailing)
	assert.Equal(t, 1.0, st.CriticalPassRate)
	assert.Empty(t, st.Blockers)
	assert.Empty(t, st.PendingFixes)

	run, err := fx.store.LoadRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageReadyForReview, run.Stage)
	assert.NotEmpty(t, run.SpecVersion)
	assert.False(t, run.Active())

	history, err := fx.store.History(ctx, runID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(history), 4)

	harnesses, err := filepath.Glob(filepath.Join(fx.cfg.Paths.Artifacts, "artifacts", "*", "harness_test.go"))
	require.NoError(t, err)
	assert.Len(t, harnesses, 2)

	// A fresh service over the same store reconstructs status from the
	// last checkpoint alone.
	offline := NewService(fx.cfg, fx.store, fx.artifacts, nil, nil, nil, testLogger())
	st2, err := offline.Status(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageReadyForReview, st2.Stage)
	assert.Equal(t, 2, st2.ScenariosPassing)

	report, err := offline.Report(ctx, runID)
	require.NoError(t, err)
	require.Len(t, report.Journeys, 2)
	md := report.Markdown()
	assert.Contains(t, md, "### Checkout Flow (critical)")
	assert.Contains(t, md, "ready_for_review")
}

func TestTrigger_ActiveRunIsReturned(t *testing.T) {
	fx := newFixture(t, webshopSpec)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, fx.store.CreateRun(ctx, &model.Run{
		ID:        "run-active0001",
		Project:   "webshop",
		SpecPath:  fx.cfg.Paths.Spec,
		Stage:     model.StageExecuting,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	runID, err := fx.svc.Trigger(ctx, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, "run-active0001", runID)

	runs, err := fx.store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestTrigger_NoSpecConfigured(t *testing.T) {
	fx := newFixture(t, webshopSpec)
	fx.cfg.Paths.Spec = ""

	_, err := fx.svc.Trigger(context.Background(), RunConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no specification document")
}

func TestRun_UnbindableCriticalScenarioBlocks(t *testing.T) {
	fx := newFixture(t, unbindableSpec, browser.New(testLogger()), virtual.New(testLogger()))
	ctx := context.Background()

	runID, err := fx.svc.Trigger(ctx, RunConfig{})
	require.NoError(t, err)

	stage, err := fx.svc.Wait(ctx, runID)
	assert.Equal(t, model.StageBlocked, stage)
	require.Error(t, err)

	var uerr *uaterr.BlockerUnresolved
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, runID, uerr.RunID)
	require.Len(t, uerr.BlockerIDs, 1)

	blockers, err := fx.store.ListBlockers(ctx, runID)
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.Equal(t, uerr.BlockerIDs[0], blockers[0].ID)
	assert.Equal(t, model.BlockerConfig, blockers[0].Category)
	assert.Contains(t, blockers[0].Reason, "frobnicate")
	assert.Len(t, blockers[0].ScenarioIDs, 1)

	// The catalog journey still executed; only the blocker holds the run.
	st, err := fx.svc.Status(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageBlocked, st.Stage)
	assert.Equal(t, 1, st.ScenariosPassing)
	require.Len(t, st.Blockers, 1)

	run, err := fx.store.LoadRun(ctx, runID)
	require.NoError(t, err)
	assert.True(t, run.Active(), "blocked runs stay active awaiting action")

	// A parked run can still be cancelled.
	require.NoError(t, fx.svc.Cancel(ctx, runID))
	run, err = fx.store.LoadRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageCancelled, run.Stage)
}

func TestResume_SkipsCompletedBatches(t *testing.T) {
	counting := &countingAdapter{inner: browser.New(testLogger())}
	fx := newFixture(t, webshopSpec, counting, virtual.New(testLogger()))
	ctx := context.Background()

	doc, res := materialize(t, fx, webshopSpec)
	checkout := journeyNamed(t, res, "Checkout Flow")
	catalog := journeyNamed(t, res, "Browse Catalog Flow")
	done := scenarioOf(t, res, checkout.ID)
	todo := scenarioOf(t, res, catalog.ID)

	scenarios := make([]model.Scenario, len(res.Scenarios))
	copy(scenarios, res.Scenarios)
	for i := range scenarios {
		if scenarios[i].ID == done.ID {
			scenarios[i].Status = model.ScenarioPassed
		}
	}

	now := time.Now().UTC()
	run := &model.Run{
		ID:          "run-resume0001",
		Project:     "webshop",
		SpecPath:    fx.cfg.Paths.Spec,
		SpecVersion: doc.Version,
		Stage:       model.StageExecuting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	seedRun(t, fx, run, &runState{
		DocumentID:      doc.ID,
		SpecVersion:     doc.Version,
		Journeys:        res.Journeys,
		Scenarios:       scenarios,
		PendingJourneys: []string{catalog.ID},
		Verdicts: []verdict.Verdict{{
			ScenarioID: done.ID,
			JourneyID:  checkout.ID,
			Priority:   done.Priority,
			Status:     model.ScenarioPassed,
		}},
	})

	require.NoError(t, fx.svc.Resume(ctx, run.ID))

	stage, err := fx.svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageReadyForReview, stage)

	seen := counting.seen()
	assert.Contains(t, seen, todo.ID)
	assert.NotContains(t, seen, done.ID, "completed batch must not re-execute")

	st, err := fx.svc.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.ScenariosPassing)
}

func TestResume_FinishedRun(t *testing.T) {
	fx := newFixture(t, webshopSpec)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, fx.store.CreateRun(ctx, &model.Run{
		ID:        "run-done000001",
		Project:   "webshop",
		SpecPath:  fx.cfg.Paths.Spec,
		Stage:     model.StageReadyForReview,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	err := fx.svc.Resume(ctx, "run-done000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already")
}

func TestResume_UnknownRun(t *testing.T) {
	fx := newFixture(t, webshopSpec)

	err := fx.svc.Resume(context.Background(), "run-missing001")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCancel_ActiveRun(t *testing.T) {
	fx := newFixture(t, webshopSpec, slowAdapter{})
	ctx := context.Background()

	runID, err := fx.svc.Trigger(ctx, RunConfig{})
	require.NoError(t, err)
	require.NoError(t, fx.svc.Cancel(ctx, runID))

	stage, err := fx.svc.Wait(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageCancelled, stage)

	run, err := fx.store.LoadRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageCancelled, run.Stage)

	err = fx.svc.Cancel(ctx, runID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already")
}

func TestConfirm_UnknownFix(t *testing.T) {
	fx := newFixture(t, webshopSpec)

	err := fx.svc.Confirm(context.Background(), "fix-missing001", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not awaiting review")
}

func TestResume_AutoFixRestoresFixtureRoutes(t *testing.T) {
	fx := newFixture(t, singleJourneySpec, browser.New(testLogger()), virtual.New(testLogger()))
	ctx := context.Background()

	doc, res := materialize(t, fx, singleJourneySpec)
	jny := res.Journeys[0]
	sc := scenarioOf(t, res, jny.ID)

	// Wipe the route table after generation: the first navigate step now
	// lands on an undeclared route and fails hard.
	routesRel := filepath.Join("fixtures", jny.ID, "routes.yaml")
	require.NoError(t, fx.artifacts.Write(routesRel, []byte("routes: []\n")))

	now := time.Now().UTC()
	run := &model.Run{
		ID:          "run-autofix001",
		Project:     "webshop",
		SpecPath:    fx.cfg.Paths.Spec,
		SpecVersion: doc.Version,
		Stage:       model.StageExecuting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	seedRun(t, fx, run, &runState{
		DocumentID:      doc.ID,
		SpecVersion:     doc.Version,
		Journeys:        res.Journeys,
		Scenarios:       res.Scenarios,
		PendingJourneys: []string{jny.ID},
	})

	require.NoError(t, fx.svc.Resume(ctx, run.ID))

	stage, err := fx.svc.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageReadyForReview, stage)

	fixes, err := fx.store.ListFixes(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, "missing-fixture", fixes[0].Signature)
	assert.Equal(t, sc.ID, fixes[0].ScenarioID)
	assert.Equal(t, model.FixVerified, fixes[0].State)
	assert.True(t, fixes[0].Applied)
	assert.True(t, fixes[0].Verified)

	blockers, err := fx.store.ListBlockers(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, blockers)

	rs, err := generator.LoadRoutes(fx.artifacts.Path(routesRel))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rs.Routes), 2, "route table regenerated")

	st, err := fx.svc.Status(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ScenariosPassing)
	assert.Equal(t, 0, st.ScenariosFailing)
}

func TestRun_ContractDriftAwaitsReview(t *testing.T) {
	fx := newFixture(t, singleJourneySpec,
		browser.New(testLogger()), virtual.New(testLogger()), apicheck.New(testLogger()))
	ctx := context.Background()

	_, res := materialize(t, fx, singleJourneySpec)
	jny := res.Journeys[0]

	// Declare a contract the fixture service no longer honors: the index
	// route serves 200, the contract demands 201.
	drift := apicheck.ContractSet{Contracts: []apicheck.Contract{{
		Route:  "/",
		Method: "GET",
		Status: 201,
	}}}
	data, err := yaml.Marshal(drift)
	require.NoError(t, err)
	contractsRel := filepath.Join("fixtures", jny.ID, "contracts.yaml")
	require.NoError(t, fx.artifacts.Write(contractsRel, data))

	runID, err := fx.svc.Trigger(ctx, RunConfig{})
	require.NoError(t, err)

	stage, err := fx.svc.Wait(ctx, runID)
	assert.Equal(t, model.StageBlocked, stage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")

	fixes, err := fx.store.ListFixes(ctx, runID)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, "contract-drift", fixes[0].Signature)
	assert.Equal(t, model.FixPendingReview, fixes[0].State)
	assert.True(t, fixes[0].Applied)
	assert.False(t, fixes[0].Verified)

	blockers, err := fx.store.ListBlockers(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, blockers, "a fix awaiting review is not a blocker")

	st, err := fx.svc.Status(ctx, runID)
	require.NoError(t, err)
	require.Len(t, st.PendingFixes, 1)

	// Accepting the fix verifies it against the realigned contract and
	// revives the parked run.
	require.NoError(t, fx.svc.Confirm(ctx, fixes[0].ID, true))

	run, err := fx.store.LoadRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageReadyForReview, run.Stage)

	fixes, err = fx.store.ListFixes(ctx, runID)
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.Equal(t, model.FixVerified, fixes[0].State)
	assert.True(t, fixes[0].Verified)

	raw, err := fx.artifacts.Read(contractsRel)
	require.NoError(t, err)
	var realigned apicheck.ContractSet
	require.NoError(t, yaml.Unmarshal(raw, &realigned))
	require.NotEmpty(t, realigned.Contracts)
	for _, c := range realigned.Contracts {
		if c.Route == "/" {
			assert.Equal(t, 200, c.Status)
		}
	}

	st, err = fx.svc.Status(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.StageReadyForReview, st.Stage)
	assert.Equal(t, 1, st.ScenariosPassing)
}
