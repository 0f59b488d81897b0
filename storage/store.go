// Package storage persists runs, checkpoints, and detector state for the UAT
// gateway. Checkpoints are an append-only sequenced log per run: resume reads
// the highest sequence, and a checkpoint that fails decoding or its integrity
// check aborts with StateCorruption rather than being guess-repaired.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/uaterr"
)

// Store is the persistence contract the control loop depends on. Two
// implementations exist: JetStream KV for service mode and a file store for
// single-process runs.
type Store interface {
	// Checkpoint appends a sequenced state snapshot for the run and returns
	// the sequence it was committed at. The write is durable before return.
	Checkpoint(ctx context.Context, runID string, stage model.Stage, state json.RawMessage) (uint64, error)

	// Resume returns the run's checkpoint with the highest sequence, or
	// ErrNoCheckpoint when none exists.
	Resume(ctx context.Context, runID string) (*model.RunCheckpoint, error)

	// History returns every checkpoint for the run ordered by sequence.
	History(ctx context.Context, runID string) ([]model.RunCheckpoint, error)

	// CreateRun registers a new run; ErrRunExists when the ID is taken.
	CreateRun(ctx context.Context, run *model.Run) error

	// LoadRun fetches a run by ID, or ErrNotFound.
	LoadRun(ctx context.Context, runID string) (*model.Run, error)

	// SaveRun persists updated run state.
	SaveRun(ctx context.Context, run *model.Run) error

	// ListRuns returns all known runs.
	ListRuns(ctx context.Context) ([]*model.Run, error)

	// ActiveRun returns the project's most recent non-terminal run, or
	// ErrNotFound. Trigger idempotency builds on it.
	ActiveRun(ctx context.Context, project string) (*model.Run, error)

	// SaveFlaky upserts one scenario's flaky record. Records are keyed by
	// scenario, not run: outcome windows span runs.
	SaveFlaky(ctx context.Context, rec model.FlakyRecord) error

	// LoadFlaky returns every flaky record.
	LoadFlaky(ctx context.Context) ([]model.FlakyRecord, error)

	// SaveFix upserts a fix record under its run.
	SaveFix(ctx context.Context, fix model.Fix) error

	// ListFixes returns the run's fix records.
	ListFixes(ctx context.Context, runID string) ([]model.Fix, error)

	// SaveBlocker upserts a blocker record under its run.
	SaveBlocker(ctx context.Context, blocker model.Blocker) error

	// ListBlockers returns the run's blocker records.
	ListBlockers(ctx context.Context, runID string) ([]model.Blocker, error)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// checksum computes the integrity hash stored alongside checkpoint state.
func checksum(state []byte) string {
	sum := sha256.Sum256(state)
	return hex.EncodeToString(sum[:])
}

// newCheckpoint builds a sequenced checkpoint with its integrity checksum.
func newCheckpoint(runID string, stage model.Stage, seq uint64, state json.RawMessage) model.RunCheckpoint {
	return model.RunCheckpoint{
		RunID:     runID,
		Stage:     stage,
		Sequence:  seq,
		State:     state,
		Checksum:  checksum(state),
		CreatedAt: time.Now().UTC(),
	}
}

// verifyCheckpoint validates the stored checksum against the state payload.
func verifyCheckpoint(cp *model.RunCheckpoint) error {
	if checksum(cp.State) != cp.Checksum {
		return &uaterr.StateCorruption{
			RunID:    cp.RunID,
			Sequence: cp.Sequence,
			Reason:   "checkpoint checksum mismatch",
		}
	}
	return nil
}

// decodeCheckpoint unmarshals a stored checkpoint and verifies integrity.
// Any failure is StateCorruption: a checkpoint that cannot be trusted must
// never be repaired into a plausible one.
func decodeCheckpoint(runID string, seq uint64, data []byte) (*model.RunCheckpoint, error) {
	var cp model.RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, &uaterr.StateCorruption{
			RunID:    runID,
			Sequence: seq,
			Reason:   "checkpoint decode failed: " + err.Error(),
		}
	}
	if err := verifyCheckpoint(&cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// latestActive picks the most recently created non-terminal run for the
// project, or nil.
func latestActive(runs []*model.Run, project string) *model.Run {
	var latest *model.Run
	for _, r := range runs {
		if r.Project != project || !r.Active() {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest
}
