// Package uaterr defines the pipeline error taxonomy. Each error type maps to
// a distinct recovery policy: fatal errors halt the run, scenario-local errors
// mark a single scenario, transient errors are retried, and isolation errors
// let the rest of the work continue.
package uaterr

import (
	"errors"
	"fmt"
	"time"
)

// ExtractionFailure indicates the specification could not be parsed at all.
// Fatal: the run is checkpointed with the failure reason and halted. A spec
// that parses but yields zero journeys is a coverage warning, not this error.
type ExtractionFailure struct {
	SpecPath string
	Reason   string
	Err      error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("extraction failure for %s: %s", e.SpecPath, e.Reason)
}

// Unwrap returns the underlying parse error.
func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// GenerationInvalid indicates a journey step could not be bound to any
// template. Scenario-local: the scenario is marked skipped with a diagnostic
// and kept in its journey; generation continues for other scenarios.
type GenerationInvalid struct {
	JourneyID string
	StepIndex int
	Step      string
	Reason    string
}

func (e *GenerationInvalid) Error() string {
	return fmt.Sprintf("generation invalid for journey %s step %d (%s): %s",
		e.JourneyID, e.StepIndex, e.Step, e.Reason)
}

// ExecutionTimeout indicates a scenario × adapter unit exceeded its deadline.
// Transient: retried with exponential backoff up to the configured ceiling.
// If every attempt times out identically the scenario fails, it is not flaky.
type ExecutionTimeout struct {
	ScenarioID string
	Adapter    string
	Timeout    time.Duration
	Attempt    int
}

func (e *ExecutionTimeout) Error() string {
	return fmt.Sprintf("execution timeout: scenario %s on %s after %s (attempt %d)",
		e.ScenarioID, e.Adapter, e.Timeout, e.Attempt)
}

// AdapterUnavailable indicates one adapter could not run at all. Isolated: the
// diagnostic is recorded and remaining adapters continue for the scenario.
type AdapterUnavailable struct {
	Adapter string
	Reason  string
	Err     error
}

func (e *AdapterUnavailable) Error() string {
	return fmt.Sprintf("adapter %s unavailable: %s", e.Adapter, e.Reason)
}

// Unwrap returns the underlying adapter error.
func (e *AdapterUnavailable) Unwrap() error {
	return e.Err
}

// FixVerificationFailed indicates an applied fix did not make its scenario
// pass. The pre-fix snapshot is restored and a new fix attempt may be spawned;
// the failed fix record is preserved for audit.
type FixVerificationFailed struct {
	FixID      string
	ScenarioID string
	Reason     string
}

func (e *FixVerificationFailed) Error() string {
	return fmt.Sprintf("fix %s verification failed for scenario %s: %s",
		e.FixID, e.ScenarioID, e.Reason)
}

// StateCorruption indicates persisted run state failed decoding or its
// integrity check. Fatal: resume aborts and the run must restart from scratch.
// Corrupt checkpoints are never guess-repaired.
type StateCorruption struct {
	RunID    string
	Sequence uint64
	Reason   string
}

func (e *StateCorruption) Error() string {
	return fmt.Sprintf("state corruption in run %s at checkpoint %d: %s",
		e.RunID, e.Sequence, e.Reason)
}

// BlockerUnresolved indicates open blockers prevent the run from reaching
// ready_for_review. The pipeline continues for unaffected scenarios.
type BlockerUnresolved struct {
	RunID      string
	BlockerIDs []string
}

func (e *BlockerUnresolved) Error() string {
	return fmt.Sprintf("run %s has %d unresolved blockers", e.RunID, len(e.BlockerIDs))
}

// IsFatal reports whether the error must halt the run rather than be handled
// locally.
func IsFatal(err error) bool {
	var ef *ExtractionFailure
	var sc *StateCorruption
	return errors.As(err, &ef) || errors.As(err, &sc)
}
