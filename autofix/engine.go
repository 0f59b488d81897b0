// Package autofix classifies failed scenarios against a library of
// known-fixable failure signatures and drives each fix through its
// lifecycle: propose, gate on confidence, apply under the scenario's
// artifact lock with a pre-fix snapshot, verify by re-running just that
// scenario, and roll back when verification fails.
package autofix

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/uatgate/artifact"
	"github.com/c360studio/uatgate/config"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/uaterr"
)

// Verifier re-runs exactly one scenario and reports whether it passed.
type Verifier interface {
	Verify(ctx context.Context, sc *model.Scenario) (bool, error)
}

// Decision is the outcome of one fix attempt or review confirmation.
type Decision struct {
	Fix model.Fix

	// Blocker is set on the ticket path and on reviewer rejection.
	Blocker *model.Blocker

	// Scenario is set once the fix verified: the scenario as verified,
	// including any step changes the fix made. The caller commits it into
	// run state.
	Scenario *model.Scenario
}

type pendingFix struct {
	fix      model.Fix
	scenario *model.Scenario
	snapshot string
	unlock   func()
}

// Engine applies the confidence policy to classified failures.
type Engine struct {
	thresholds  config.ThresholdsConfig
	maxAttempts int
	store       *artifact.Store
	verifier    Verifier
	logger      *slog.Logger
	signatures  []Signature
	cls         *classifier

	mu              sync.Mutex
	attempts        map[string]int
	pending         map[string]*pendingFix
	pendingScenario map[string]string
	fixes           []model.Fix
	index           map[string]int
}

// NewEngine creates the fix engine. Zero thresholds default to the 0.9
// auto-apply and 0.7 review gates; a non-positive attempt budget defaults
// to 2 per scenario per run.
func NewEngine(thresholds config.ThresholdsConfig, fix config.FixConfig, store *artifact.Store, verifier Verifier, logger *slog.Logger) *Engine {
	if thresholds.AutoApply <= 0 {
		thresholds.AutoApply = 0.9
	}
	if thresholds.Review <= 0 {
		thresholds.Review = 0.7
	}
	maxAttempts := fix.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		thresholds:      thresholds,
		maxAttempts:     maxAttempts,
		store:           store,
		verifier:        verifier,
		logger:          logger,
		signatures:      Library(),
		cls:             &classifier{store: store, gen: generator.New(nil, logger)},
		attempts:        make(map[string]int),
		pending:         make(map[string]*pendingFix),
		pendingScenario: make(map[string]string),
		index:           make(map[string]int),
	}
}

// Attempt classifies one failed scenario and, when a signature matches,
// carries the fix as far as the confidence policy allows. A nil decision
// with a nil error means nothing was attempted: no signature matched, the
// attempt budget is spent, or a fix for the scenario already awaits review.
func (e *Engine) Attempt(ctx context.Context, runID string, f *Failure) (*Decision, error) {
	sc := f.Scenario

	e.mu.Lock()
	if fixID, busy := e.pendingScenario[sc.ID]; busy {
		e.mu.Unlock()
		e.logger.Info("fix already awaiting review",
			"scenario", sc.ID,
			"fix", fixID)
		return nil, nil
	}
	attempt := e.attempts[sc.ID] + 1
	e.mu.Unlock()

	if attempt > e.maxAttempts {
		e.logger.Info("fix attempt budget exhausted",
			"scenario", sc.ID,
			"max_attempts", e.maxAttempts)
		return nil, nil
	}

	var sig *Signature
	var prop *Proposal
	for i := range e.signatures {
		if p, ok := e.signatures[i].match(e.cls, ctx, f); ok {
			sig = &e.signatures[i]
			prop = p
			break
		}
	}
	if sig == nil {
		e.logger.Debug("failure matches no fix signature", "scenario", sc.ID)
		return nil, nil
	}

	e.mu.Lock()
	e.attempts[sc.ID] = attempt
	e.mu.Unlock()

	fix := model.Fix{
		ID:         uuid.New().String(),
		RunID:      runID,
		ScenarioID: sc.ID,
		Signature:  sig.Name,
		Proposal:   prop.Summary,
		Confidence: prop.Confidence,
		State:      model.FixDetected,
		Attempt:    attempt,
		CreatedAt:  time.Now().UTC(),
	}
	e.advance(&fix, model.FixProposed)
	e.logger.Info("failure classified",
		"scenario", sc.ID,
		"signature", sig.Name,
		"confidence", prop.Confidence,
		"attempt", attempt)

	// Below the review gate nothing is ever written; the failure becomes a
	// ticket with a blocker in the signature's category.
	if prop.Confidence < e.thresholds.Review {
		e.advance(&fix, model.FixTicketCreated)
		e.resolve(&fix)
		e.record(fix)
		blocker := newBlocker(runID, sig.Category, sc.ID, fix.ID, prop.Summary)
		return &Decision{Fix: fix, Blocker: &blocker}, nil
	}

	unlock := e.store.Lock(sc.ID)

	paths := make([]string, 0, len(prop.Files))
	for p := range prop.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ref, err := e.store.Snapshot(sc.ID, paths)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("snapshot before fix: %w", err)
	}
	fix.SnapshotRef = ref

	if err := e.store.WriteAll(prop.Files); err != nil {
		unlock()
		return nil, fmt.Errorf("apply fix: %w", err)
	}
	fix.Applied = true

	scAfter := prop.Scenario
	if scAfter == nil {
		scAfter = sc
	}
	pf := &pendingFix{fix: fix, scenario: scAfter, snapshot: ref, unlock: unlock}

	if prop.Confidence >= e.thresholds.AutoApply {
		e.advance(&pf.fix, model.FixAutoApplied)
		e.record(pf.fix)
		return e.verify(ctx, pf)
	}

	e.advance(&pf.fix, model.FixPendingReview)
	e.record(pf.fix)
	e.mu.Lock()
	e.pending[pf.fix.ID] = pf
	e.pendingScenario[sc.ID] = pf.fix.ID
	e.mu.Unlock()
	e.logger.Info("fix applied, awaiting review",
		"fix", pf.fix.ID,
		"scenario", sc.ID,
		"confidence", pf.fix.Confidence)
	return &Decision{Fix: pf.fix}, nil
}

// Confirm resolves a pending-review fix. Accepting verifies it; rejecting
// rolls the artifacts back and raises a blocker for the decision.
func (e *Engine) Confirm(ctx context.Context, fixID string, accept bool) (*Decision, error) {
	e.mu.Lock()
	pf, ok := e.pending[fixID]
	if ok {
		delete(e.pending, fixID)
		delete(e.pendingScenario, pf.fix.ScenarioID)
	}
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fix %s is not awaiting review", fixID)
	}

	if !accept {
		e.rollback(pf)
		blocker := newBlocker(pf.fix.RunID, model.BlockerConfig, pf.fix.ScenarioID, pf.fix.ID,
			"fix rejected by reviewer: "+pf.fix.Proposal)
		e.logger.Info("fix rejected", "fix", pf.fix.ID, "scenario", pf.fix.ScenarioID)
		return &Decision{Fix: pf.fix, Blocker: &blocker}, nil
	}
	return e.verify(ctx, pf)
}

// verify re-runs the failing scenario and settles the fix: verified on a
// pass, rolled back to the pre-fix snapshot on anything else.
func (e *Engine) verify(ctx context.Context, pf *pendingFix) (*Decision, error) {
	e.advance(&pf.fix, model.FixVerifying)
	e.record(pf.fix)

	passed, err := e.verifier.Verify(ctx, pf.scenario)
	if err != nil {
		e.rollback(pf)
		return &Decision{Fix: pf.fix}, fmt.Errorf("verify fix %s: %w", pf.fix.ID, err)
	}
	if !passed {
		e.rollback(pf)
		return &Decision{Fix: pf.fix}, &uaterr.FixVerificationFailed{
			FixID:      pf.fix.ID,
			ScenarioID: pf.fix.ScenarioID,
			Reason:     "scenario still failing after fix",
		}
	}

	e.advance(&pf.fix, model.FixVerified)
	pf.fix.Verified = true
	e.resolve(&pf.fix)
	e.record(pf.fix)
	pf.unlock()
	e.logger.Info("fix verified",
		"fix", pf.fix.ID,
		"scenario", pf.fix.ScenarioID,
		"signature", pf.fix.Signature)
	return &Decision{Fix: pf.fix, Scenario: pf.scenario}, nil
}

func (e *Engine) rollback(pf *pendingFix) {
	if err := e.store.Restore(pf.snapshot); err != nil {
		e.logger.Error("snapshot restore failed",
			"fix", pf.fix.ID,
			"ref", pf.snapshot,
			"error", err)
	}
	e.advance(&pf.fix, model.FixRolledBack)
	e.resolve(&pf.fix)
	e.record(pf.fix)
	pf.unlock()
}

// Fixes returns every fix record the engine produced this run, oldest
// first. Records are updated in place as fixes move through their states.
func (e *Engine) Fixes() []model.Fix {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Fix, len(e.fixes))
	copy(out, e.fixes)
	return out
}

// Attempts reports how many fix attempts the scenario has consumed.
func (e *Engine) Attempts(scenarioID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[scenarioID]
}

func (e *Engine) advance(fix *model.Fix, to model.FixState) {
	if !fix.State.CanTransitionTo(to) {
		e.logger.Error("invalid fix transition",
			"fix", fix.ID,
			"from", fix.State,
			"to", to)
	}
	fix.State = to
}

func (e *Engine) resolve(fix *model.Fix) {
	now := time.Now().UTC()
	fix.ResolvedAt = &now
}

func (e *Engine) record(fix model.Fix) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[fix.ID]; ok {
		e.fixes[i] = fix
		return
	}
	e.index[fix.ID] = len(e.fixes)
	e.fixes = append(e.fixes, fix)
}

func newBlocker(runID string, category model.BlockerCategory, scenarioID, fixID, reason string) model.Blocker {
	return model.Blocker{
		ID:          uuid.New().String(),
		RunID:       runID,
		Category:    category,
		ScenarioIDs: []string{scenarioID},
		Reason:      reason,
		FixID:       fixID,
		CreatedAt:   time.Now().UTC(),
	}
}
