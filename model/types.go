// Package model defines the UAT gateway data model: journeys extracted from a
// specification, the scenarios generated from them, per-adapter tool results,
// flaky history, auto-fix records, blockers, and the checkpointed run state
// that ties a pipeline execution together.
package model

import (
	"encoding/json"
	"time"
)

// Journey is a named, prioritized end-to-end user flow extracted from a
// specification. A journey is immutable once extracted for a given spec
// version; re-extraction under a new spec version produces new journey values
// rather than mutating existing ones.
type Journey struct {
	// ID is deterministic, derived from the spec reference and normalized name
	ID string `json:"id"`

	// Name is the human-readable journey name
	Name string `json:"name"`

	// Priority is the importance tier; critical journeys gate review readiness
	Priority Priority `json:"priority"`

	// ScenarioIDs lists the journey's scenarios in step order
	ScenarioIDs []string `json:"scenario_ids"`

	// SpecRef points at the source document section this journey came from
	SpecRef SpecRef `json:"spec_ref"`

	// SpecVersion is the version of the specification the journey was extracted from
	SpecVersion string `json:"spec_version"`

	// CreatedAt is when the journey was extracted
	CreatedAt time.Time `json:"created_at"`
}

// SpecRef identifies the document and section a journey was extracted from.
type SpecRef struct {
	// DocumentID is the content-derived ID of the parsed specification document
	DocumentID string `json:"document_id"`

	// Section is the heading or list item the journey was matched against
	Section string `json:"section"`
}

// Step is one action in a scenario: perform Action on Target and expect Expect.
type Step struct {
	// Action names the interaction: navigate, click, fill, submit, assert
	Action string `json:"action"`

	// Target is the element, route, or endpoint the action applies to
	Target string `json:"target"`

	// Expect describes the outcome that must hold after the action
	Expect string `json:"expect,omitempty"`
}

// Scenario is one concrete, executable test case derived from a journey step
// sequence.
type Scenario struct {
	// ID is deterministic, derived from the journey ID and step sequence
	ID string `json:"id"`

	// JourneyID is the parent journey
	JourneyID string `json:"journey_id"`

	// Name is a short human-readable label
	Name string `json:"name"`

	// Priority is inherited from the parent journey
	Priority Priority `json:"priority"`

	// Steps is the ordered action sequence
	Steps []Step `json:"steps"`

	// ArtifactRef is the relative path of the generated test artifact
	ArtifactRef string `json:"artifact_ref,omitempty"`

	// FixtureRefs lists generated fixture files (seed data, mock responses)
	FixtureRefs []string `json:"fixture_refs,omitempty"`

	// SetupID names a prerequisite scenario that must pass before this one runs
	SetupID string `json:"setup_id,omitempty"`

	// Status is the current execution state
	Status ScenarioStatus `json:"status"`

	// Diagnostic explains a skipped or failed status
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Diagnostic is one structured finding attached to a tool result.
type Diagnostic struct {
	// Code identifies the finding kind: stale-selector, diff-exceeded,
	// a11y-violation, contract-mismatch, timeout, connection-refused, ...
	Code string `json:"code"`

	// Message is the human-readable detail
	Message string `json:"message"`

	// Selector is the failing element selector, when applicable
	Selector string `json:"selector,omitempty"`

	// Region is the failing diff region, when applicable
	Region string `json:"region,omitempty"`

	// Violation is the accessibility rule violated, when applicable
	Violation string `json:"violation,omitempty"`

	// Severity grades the finding: blocking findings fail the scenario,
	// advisory ones attach without failing it
	Severity string `json:"severity,omitempty"`
}

// ToolResult is the outcome of one adapter invocation for one scenario.
// Several tool results may attach to a single scenario, one per adapter.
type ToolResult struct {
	// ScenarioID is the scenario this result belongs to
	ScenarioID string `json:"scenario_id"`

	// Adapter is the reporting adapter's name
	Adapter string `json:"adapter"`

	// Capability is the verification capability the adapter implements
	Capability string `json:"capability"`

	// RawVerdict is the adapter's own verdict before aggregation
	RawVerdict RawVerdict `json:"raw_verdict"`

	// Diagnostics carries structured findings backing the verdict
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// Artifacts lists evidence files the adapter produced (screenshots, logs)
	Artifacts []string `json:"artifacts,omitempty"`

	// Attempt is the 1-based execution attempt that produced this result
	Attempt int `json:"attempt"`

	// Duration is how long the invocation took
	Duration time.Duration `json:"duration"`

	// Timestamp is when the invocation completed
	Timestamp time.Time `json:"timestamp"`
}

// RunCheckpoint is an immutable, sequenced snapshot of pipeline state
// sufficient to resume a run. Checkpoints are append-only: a superseded
// checkpoint is retained for audit until external retention prunes it.
type RunCheckpoint struct {
	// RunID is the run this checkpoint belongs to
	RunID string `json:"run_id"`

	// Stage is the pipeline stage that was just committed
	Stage Stage `json:"stage"`

	// Sequence is monotonic per run; resume reads the highest sequence
	Sequence uint64 `json:"sequence"`

	// State is the opaque serialized stage state; it round-trips exactly
	State json.RawMessage `json:"state"`

	// Checksum is the hex sha256 of State, verified on resume
	Checksum string `json:"checksum"`

	// CreatedAt is when the checkpoint was written
	CreatedAt time.Time `json:"created_at"`
}

// FlakyRecord tracks outcome variance for one scenario across recent runs.
type FlakyRecord struct {
	// ScenarioID is the scenario being tracked
	ScenarioID string `json:"scenario_id"`

	// Window holds the last N outcomes, oldest first
	Window []Outcome `json:"window"`

	// Score is the position-weighted inconsistency rate over the window
	Score float64 `json:"score"`

	// Quarantined marks scenarios excluded from the critical pass-rate
	// denominator; they continue to run and report
	Quarantined bool `json:"quarantined"`

	// CalmStreak counts consecutive updates with the score below threshold,
	// used to lift quarantine after a sustained calm period
	CalmStreak int `json:"calm_streak"`

	// UpdatedAt is when the record last changed
	UpdatedAt time.Time `json:"updated_at"`
}

// Fix records one auto-remediation attempt for a failing scenario. A fix is
// immutable once verified; a failed re-verification spawns a new fix record
// rather than mutating the old one.
type Fix struct {
	// ID is the unique fix identifier
	ID string `json:"id"`

	// RunID is the run the fix was attempted in
	RunID string `json:"run_id"`

	// ScenarioID is the failing scenario the fix targets
	ScenarioID string `json:"scenario_id"`

	// Signature is the failure classification the fix was derived from
	Signature string `json:"signature"`

	// Proposal describes the concrete change
	Proposal string `json:"proposal"`

	// Confidence estimates how likely the fix is correct and safe, 0.0-1.0
	Confidence float64 `json:"confidence"`

	// State is the fix lifecycle state
	State FixState `json:"state"`

	// Applied is true once artifacts were modified
	Applied bool `json:"applied"`

	// Verified is true once re-verification passed
	Verified bool `json:"verified"`

	// SnapshotRef names the pre-fix artifact snapshot used for rollback
	SnapshotRef string `json:"snapshot_ref,omitempty"`

	// Attempt is the 1-based fix attempt number for this scenario in this run
	Attempt int `json:"attempt"`

	// CreatedAt is when the failure was classified
	CreatedAt time.Time `json:"created_at"`

	// ResolvedAt is when the fix reached a terminal state
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Blocker is an unresolved external dependency preventing test completion.
// The run cannot reach ready_for_review while any blocker is open.
type Blocker struct {
	// ID is the unique blocker identifier
	ID string `json:"id"`

	// RunID is the run the blocker was raised in
	RunID string `json:"run_id"`

	// Category classifies the blocking dependency
	Category BlockerCategory `json:"category"`

	// ScenarioIDs lists the affected scenarios
	ScenarioIDs []string `json:"scenario_ids"`

	// Reason is the human-readable explanation
	Reason string `json:"reason"`

	// FixID references the fix attempt that raised this blocker, if any
	FixID string `json:"fix_id,omitempty"`

	// Resolution records how the blocker was cleared; empty while open
	Resolution BlockerResolution `json:"resolution,omitempty"`

	// CreatedAt is when the blocker was raised
	CreatedAt time.Time `json:"created_at"`

	// ResolvedAt is when the blocker was resolved; nil while open
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Open returns true while the blocker has not been resolved.
func (b *Blocker) Open() bool {
	return b.ResolvedAt == nil
}

// Run is the persistent record of one pipeline execution.
type Run struct {
	// ID is the unique run identifier
	ID string `json:"id"`

	// Project identifies the product under test; trigger idempotency is scoped
	// to the project
	Project string `json:"project"`

	// SpecPath is the specification document the run was triggered against
	SpecPath string `json:"spec_path"`

	// SpecVersion is the content-derived version of the parsed specification
	SpecVersion string `json:"spec_version"`

	// Stage is the current pipeline stage
	Stage Stage `json:"stage"`

	// ChangeSet lists changed paths for selective runs; empty means full run
	ChangeSet []string `json:"change_set,omitempty"`

	// FailureReason records why a run reached the failed stage
	FailureReason string `json:"failure_reason,omitempty"`

	// CreatedAt is when the run was triggered
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the run record last changed
	UpdatedAt time.Time `json:"updated_at"`
}

// Active returns true while the run occupies a non-terminal stage.
func (r *Run) Active() bool {
	return !r.Stage.IsTerminal()
}
