package model

// Stage represents the pipeline stage a run is currently in.
type Stage string

const (
	// StageExtracting indicates journeys are being extracted from the specification.
	StageExtracting Stage = "extracting"
	// StageGenerating indicates scenarios and artifacts are being generated.
	StageGenerating Stage = "generating"
	// StageSelecting indicates the scenario subset for this run is being computed.
	StageSelecting Stage = "selecting"
	// StageExecuting indicates scenario execution batches are in flight.
	StageExecuting Stage = "executing"
	// StageFixing indicates the auto-fix loop is classifying and remediating failures.
	StageFixing Stage = "fixing"
	// StageReadyForReview indicates every critical scenario passes and no blockers remain.
	StageReadyForReview Stage = "ready_for_review"
	// StageBlocked indicates unresolved blockers prevent review readiness.
	StageBlocked Stage = "blocked"
	// StageFailed indicates a fatal error halted the run.
	StageFailed Stage = "failed"
	// StageCancelled indicates the run was cancelled before completion.
	StageCancelled Stage = "cancelled"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsValid returns true if the stage is a recognized pipeline stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageExtracting, StageGenerating, StageSelecting, StageExecuting,
		StageFixing, StageReadyForReview, StageBlocked, StageFailed, StageCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further stage transitions are possible.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageReadyForReview, StageFailed, StageCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the stage can transition to the target stage.
func (s Stage) CanTransitionTo(target Stage) bool {
	switch s {
	case StageExtracting:
		return target == StageGenerating || target == StageFailed || target == StageCancelled
	case StageGenerating:
		return target == StageSelecting || target == StageFailed || target == StageCancelled
	case StageSelecting:
		return target == StageExecuting || target == StageFailed || target == StageCancelled
	case StageExecuting:
		// executing → fixing (failures found) or straight to a readiness verdict
		return target == StageFixing || target == StageReadyForReview ||
			target == StageBlocked || target == StageFailed || target == StageCancelled
	case StageFixing:
		// fixing → executing (verification batches) or a readiness verdict
		return target == StageExecuting || target == StageReadyForReview ||
			target == StageBlocked || target == StageFailed || target == StageCancelled
	case StageBlocked:
		// blocked → fixing (blocker resolved, remediation resumes) or ready once clear
		return target == StageFixing || target == StageReadyForReview || target == StageCancelled
	case StageReadyForReview, StageFailed, StageCancelled:
		return false // Terminal stages
	default:
		return false
	}
}

// ScenarioStatus represents the execution state of a single scenario.
type ScenarioStatus string

const (
	// ScenarioPending indicates the scenario has not yet been dispatched.
	ScenarioPending ScenarioStatus = "pending"
	// ScenarioRunning indicates the scenario is executing against adapters.
	ScenarioRunning ScenarioStatus = "running"
	// ScenarioPassed indicates all non-advisory adapters passed.
	ScenarioPassed ScenarioStatus = "passed"
	// ScenarioFailed indicates at least one non-advisory adapter failed.
	ScenarioFailed ScenarioStatus = "failed"
	// ScenarioFlaky indicates the flaky detector reclassified an inconsistent scenario.
	ScenarioFlaky ScenarioStatus = "flaky"
	// ScenarioQuarantined indicates the flaky score exceeded the quarantine threshold.
	ScenarioQuarantined ScenarioStatus = "quarantined"
	// ScenarioSkipped indicates the scenario was excluded, typically after a
	// generation failure, with a diagnostic explaining why.
	ScenarioSkipped ScenarioStatus = "skipped"
)

// String returns the string representation of the scenario status.
func (s ScenarioStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a recognized scenario status.
func (s ScenarioStatus) IsValid() bool {
	switch s {
	case ScenarioPending, ScenarioRunning, ScenarioPassed, ScenarioFailed,
		ScenarioFlaky, ScenarioQuarantined, ScenarioSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the scenario has reached a per-attempt verdict.
// Failed is not listed because a bounded auto-fix retry may re-run it.
func (s ScenarioStatus) IsTerminal() bool {
	switch s {
	case ScenarioPassed, ScenarioSkipped:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target status.
// Transitions form a total order per run attempt: pending → running →
// {passed, failed, flaky, skipped}. Failed may re-enter running only through an
// auto-fix verification retry, which the engine bounds per scenario per run.
func (s ScenarioStatus) CanTransitionTo(target ScenarioStatus) bool {
	switch s {
	case ScenarioPending:
		// pending → skipped covers generation failures that never dispatch
		return target == ScenarioRunning || target == ScenarioSkipped
	case ScenarioRunning:
		return target == ScenarioPassed || target == ScenarioFailed ||
			target == ScenarioFlaky || target == ScenarioSkipped
	case ScenarioFailed:
		// auto-fix retry only
		return target == ScenarioRunning
	case ScenarioFlaky:
		return target == ScenarioQuarantined || target == ScenarioRunning
	case ScenarioQuarantined:
		// quarantined scenarios keep executing and reporting
		return target == ScenarioRunning
	case ScenarioPassed, ScenarioSkipped:
		return false // Terminal per run attempt
	default:
		return false
	}
}

// Priority represents the importance tier of a journey.
type Priority string

const (
	// PriorityCritical marks journeys whose failure must never be hidden from review.
	PriorityCritical Priority = "critical"
	// PriorityHigh marks journeys covering primary user flows.
	PriorityHigh Priority = "high"
	// PriorityMedium marks journeys covering secondary flows.
	PriorityMedium Priority = "medium"
	// PriorityLow marks journeys covering edge or cosmetic flows.
	PriorityLow Priority = "low"
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// IsValid returns true if the priority is a recognized tier.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns a sortable rank, lower meaning more important.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// FixState represents the lifecycle state of an auto-fix attempt.
type FixState string

const (
	// FixDetected indicates a failure has been matched against the signature library.
	FixDetected FixState = "detected"
	// FixProposed indicates a concrete change has been drafted and scored.
	FixProposed FixState = "proposed"
	// FixAutoApplied indicates the change was applied without human involvement.
	FixAutoApplied FixState = "auto_applied"
	// FixPendingReview indicates the change is applied but awaits human confirmation.
	FixPendingReview FixState = "pending_review"
	// FixTicketCreated indicates confidence was too low to touch artifacts; a
	// blocker was raised instead.
	FixTicketCreated FixState = "ticket_created"
	// FixVerifying indicates the failing scenario is being re-run to confirm the fix.
	FixVerifying FixState = "verifying"
	// FixVerified indicates re-verification passed. Verified fixes are immutable.
	FixVerified FixState = "verified"
	// FixRolledBack indicates verification failed or review was rejected and the
	// pre-fix snapshot was restored.
	FixRolledBack FixState = "rolled_back"
)

// String returns the string representation of the fix state.
func (s FixState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized fix state.
func (s FixState) IsValid() bool {
	switch s {
	case FixDetected, FixProposed, FixAutoApplied, FixPendingReview,
		FixTicketCreated, FixVerifying, FixVerified, FixRolledBack:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the fix record can no longer change state.
func (s FixState) IsTerminal() bool {
	switch s {
	case FixTicketCreated, FixVerified, FixRolledBack:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the fix state can transition to the target state.
func (s FixState) CanTransitionTo(target FixState) bool {
	switch s {
	case FixDetected:
		return target == FixProposed
	case FixProposed:
		return target == FixAutoApplied || target == FixPendingReview || target == FixTicketCreated
	case FixAutoApplied:
		return target == FixVerifying
	case FixPendingReview:
		// human accept → verifying; human reject → rolled_back
		return target == FixVerifying || target == FixRolledBack
	case FixVerifying:
		return target == FixVerified || target == FixRolledBack
	case FixTicketCreated, FixVerified, FixRolledBack:
		return false // Terminal states
	default:
		return false
	}
}

// BlockerCategory classifies the external dependency a blocker represents.
type BlockerCategory string

const (
	// BlockerCredential indicates a missing or expired credential.
	BlockerCredential BlockerCategory = "credential"
	// BlockerConfig indicates a configuration value is missing or needs a decision.
	BlockerConfig BlockerCategory = "config"
	// BlockerResource indicates a required resource (fixture, baseline) is absent.
	BlockerResource BlockerCategory = "resource"
	// BlockerServiceUnavailable indicates a dependent service could not be reached.
	BlockerServiceUnavailable BlockerCategory = "service-unavailable"
)

// IsValid returns true if the category is recognized.
func (c BlockerCategory) IsValid() bool {
	switch c {
	case BlockerCredential, BlockerConfig, BlockerResource, BlockerServiceUnavailable:
		return true
	default:
		return false
	}
}

// BlockerResolution records how a blocker was cleared.
type BlockerResolution string

const (
	// ResolutionProvideValue indicates the missing value was supplied.
	ResolutionProvideValue BlockerResolution = "provide-value"
	// ResolutionSkip indicates the affected scenarios were skipped by decision.
	ResolutionSkip BlockerResolution = "skip"
	// ResolutionMock indicates the dependency was replaced with a virtualized mock.
	ResolutionMock BlockerResolution = "mock"
)

// IsValid returns true if the resolution is recognized.
func (r BlockerResolution) IsValid() bool {
	switch r {
	case ResolutionProvideValue, ResolutionSkip, ResolutionMock:
		return true
	default:
		return false
	}
}

// RawVerdict is the verdict an individual adapter reports for one invocation.
type RawVerdict string

const (
	// VerdictPass indicates the adapter's checks succeeded.
	VerdictPass RawVerdict = "pass"
	// VerdictFail indicates a hard assertion or comparison failure.
	VerdictFail RawVerdict = "fail"
	// VerdictError indicates the adapter itself could not complete.
	VerdictError RawVerdict = "error"
	// VerdictAdvisory indicates findings below the blocking severity threshold.
	VerdictAdvisory RawVerdict = "advisory"
)

// IsValid returns true if the verdict is recognized.
func (v RawVerdict) IsValid() bool {
	switch v {
	case VerdictPass, VerdictFail, VerdictError, VerdictAdvisory:
		return true
	default:
		return false
	}
}

// Outcome is a single pass/fail fact in a scenario's rolling flaky window.
type Outcome string

const (
	// OutcomePass records a passing run.
	OutcomePass Outcome = "pass"
	// OutcomeFail records a failing run.
	OutcomeFail Outcome = "fail"
)
