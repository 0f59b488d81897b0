package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/uaterr"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestFileStore_CheckpointSequencing(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	seq, err := store.Checkpoint(ctx, "run-1", model.StageExtracting, json.RawMessage(`{"journeys":0}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	seq, err = store.Checkpoint(ctx, "run-1", model.StageGenerating, json.RawMessage(`{"journeys":3}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	// Runs sequence independently.
	seq, err = store.Checkpoint(ctx, "run-2", model.StageExtracting, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
}

func TestFileStore_ResumeReturnsLatest(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_, err := store.Checkpoint(ctx, "run-1", model.StageExtracting, json.RawMessage(`{"step":"first"}`))
	require.NoError(t, err)
	_, err = store.Checkpoint(ctx, "run-1", model.StageExecuting, json.RawMessage(`{"step":"second"}`))
	require.NoError(t, err)

	cp, err := store.Resume(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", cp.RunID)
	assert.Equal(t, uint64(2), cp.Sequence)
	assert.Equal(t, model.StageExecuting, cp.Stage)
	assert.JSONEq(t, `{"step":"second"}`, string(cp.State))
}

func TestFileStore_ResumeNoCheckpoint(t *testing.T) {
	store := newTestFileStore(t)

	_, err := store.Resume(context.Background(), "run-missing")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestFileStore_HistoryOrdered(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	stages := []model.Stage{model.StageExtracting, model.StageGenerating, model.StageSelecting}
	for _, stage := range stages {
		_, err := store.Checkpoint(ctx, "run-1", stage, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	history, err := store.History(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, cp := range history {
		assert.Equal(t, uint64(i+1), cp.Sequence)
		assert.Equal(t, stages[i], cp.Stage)
	}
}

func TestFileStore_CorruptCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_, err := store.Checkpoint(ctx, "run-1", model.StageExecuting, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	// Flip a byte of the stored state without touching the checksum.
	path := filepath.Join(store.checkpointDir("run-1"), seqFileName(1))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `{"a":1}`, `{"a":2}`, 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, err = store.Resume(ctx, "run-1")
	var sc *uaterr.StateCorruption
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "run-1", sc.RunID)
	assert.Equal(t, uint64(1), sc.Sequence)

	_, err = store.History(ctx, "run-1")
	assert.ErrorAs(t, err, &sc)
}

func TestFileStore_RunRegistry(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	run := &model.Run{
		ID:       "run-1",
		Project:  "shop",
		SpecPath: "specs/checkout.md",
		Stage:    model.StageExtracting,
	}
	require.NoError(t, store.CreateRun(ctx, run))
	assert.False(t, run.CreatedAt.IsZero())

	err := store.CreateRun(ctx, &model.Run{ID: "run-1", Project: "shop"})
	assert.ErrorIs(t, err, ErrRunExists)

	loaded, err := store.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "shop", loaded.Project)
	assert.Equal(t, model.StageExtracting, loaded.Stage)

	_, err = store.LoadRun(ctx, "run-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	loaded.Stage = model.StageExecuting
	before := loaded.UpdatedAt
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.SaveRun(ctx, loaded))

	again, err := store.LoadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageExecuting, again.Stage)
	assert.True(t, again.UpdatedAt.After(before))

	require.NoError(t, store.CreateRun(ctx, &model.Run{ID: "run-2", Project: "billing"}))
	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestFileStore_ActiveRun(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	_, err := store.ActiveRun(ctx, "shop")
	assert.ErrorIs(t, err, ErrNotFound)

	done := &model.Run{ID: "run-done", Project: "shop", Stage: model.StageReadyForReview}
	require.NoError(t, store.CreateRun(ctx, done))

	// A terminal run is not active.
	_, err = store.ActiveRun(ctx, "shop")
	assert.ErrorIs(t, err, ErrNotFound)

	active := &model.Run{ID: "run-active", Project: "shop", Stage: model.StageExecuting}
	require.NoError(t, store.CreateRun(ctx, active))

	got, err := store.ActiveRun(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, "run-active", got.ID)

	// Active runs of other projects do not match.
	_, err = store.ActiveRun(ctx, "billing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_FlakyRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	records, err := store.LoadFlaky(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	rec := model.FlakyRecord{
		ScenarioID: "scn-1",
		Window:     []model.Outcome{model.OutcomePass, model.OutcomeFail},
		Score:      0.5,
	}
	require.NoError(t, store.SaveFlaky(ctx, rec))

	rec.Window = append(rec.Window, model.OutcomePass)
	rec.Quarantined = true
	require.NoError(t, store.SaveFlaky(ctx, rec))

	records, err = store.LoadFlaky(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Quarantined)
	assert.Len(t, records[0].Window, 3)
}

func TestFileStore_FixesSortedByCreation(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	later := model.Fix{ID: "fix-b", RunID: "run-1", ScenarioID: "scn-1", Signature: "stale-selector", State: model.FixVerified, CreatedAt: base.Add(time.Minute)}
	earlier := model.Fix{ID: "fix-a", RunID: "run-1", ScenarioID: "scn-1", Signature: "stale-selector", State: model.FixRolledBack, CreatedAt: base}

	// Saved out of order; listing sorts by creation time.
	require.NoError(t, store.SaveFix(ctx, later))
	require.NoError(t, store.SaveFix(ctx, earlier))

	fixes, err := store.ListFixes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, fixes, 2)
	assert.Equal(t, "fix-a", fixes[0].ID)
	assert.Equal(t, "fix-b", fixes[1].ID)

	// Fixes of other runs are invisible.
	fixes, err = store.ListFixes(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, fixes)

	// Saving an existing fix updates it in place.
	later.Verified = true
	require.NoError(t, store.SaveFix(ctx, later))
	fixes, err = store.ListFixes(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, fixes, 2)
	assert.True(t, fixes[1].Verified)
}

func TestFileStore_Blockers(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	blocker := model.Blocker{
		ID:          "blk-1",
		RunID:       "run-1",
		Category:    model.BlockerCredential,
		ScenarioIDs: []string{"scn-1"},
		Reason:      "gateway returned status 401",
		CreatedAt:   base,
	}
	require.NoError(t, store.SaveBlocker(ctx, blocker))

	blockers, err := store.ListBlockers(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.True(t, blockers[0].Open())

	resolved := base.Add(time.Hour)
	blocker.Resolution = model.ResolutionProvideValue
	blocker.ResolvedAt = &resolved
	require.NoError(t, store.SaveBlocker(ctx, blocker))

	blockers, err = store.ListBlockers(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.False(t, blockers[0].Open())

	blockers, err = store.ListBlockers(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, blockers)
}
