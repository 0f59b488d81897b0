package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/c360studio/uatgate/model"
)

// Bucket names for each record type.
const (
	BucketRuns        = "uat_runs"
	BucketCheckpoints = "uat_checkpoints"
	BucketFlaky       = "uat_flaky"
	BucketFixes       = "uat_fixes"
	BucketBlockers    = "uat_blockers"
)

// KVStore persists gateway state in NATS JetStream KV buckets. Checkpoint
// writes use create-only semantics so an existing sequence is never
// overwritten, and a write is durable once the server acks it.
type KVStore struct {
	runs        jetstream.KeyValue
	checkpoints jetstream.KeyValue
	flaky       jetstream.KeyValue
	fixes       jetstream.KeyValue
	blockers    jetstream.KeyValue
}

// NewKVStore creates a KVStore, creating the buckets if they don't exist.
func NewKVStore(ctx context.Context, js jetstream.JetStream) (*KVStore, error) {
	runs, err := getOrCreateBucket(ctx, js, BucketRuns, "uatgate run registry", 5)
	if err != nil {
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	checkpoints, err := getOrCreateBucket(ctx, js, BucketCheckpoints, "uatgate checkpoint log", 1)
	if err != nil {
		return nil, fmt.Errorf("create checkpoints bucket: %w", err)
	}
	flaky, err := getOrCreateBucket(ctx, js, BucketFlaky, "uatgate flaky records", 1)
	if err != nil {
		return nil, fmt.Errorf("create flaky bucket: %w", err)
	}
	fixes, err := getOrCreateBucket(ctx, js, BucketFixes, "uatgate fix records", 1)
	if err != nil {
		return nil, fmt.Errorf("create fixes bucket: %w", err)
	}
	blockers, err := getOrCreateBucket(ctx, js, BucketBlockers, "uatgate blocker records", 1)
	if err != nil {
		return nil, fmt.Errorf("create blockers bucket: %w", err)
	}

	return &KVStore{
		runs:        runs,
		checkpoints: checkpoints,
		flaky:       flaky,
		fixes:       fixes,
		blockers:    blockers,
	}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name, description string, history uint8) (jetstream.KeyValue, error) {
	var kv jetstream.KeyValue
	// Retry transient failures (network issues, temporary KV unavailability)
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		kv, err = js.KeyValue(ctx, name)
		if err == nil {
			return nil
		}
		// Bucket doesn't exist, create it
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      name,
			Description: description,
			History:     history,
		})
		return err
	})
	return kv, err
}

// putRetried upserts one key, retrying transient KV failures.
func putRetried(ctx context.Context, kv jetstream.KeyValue, key string, data []byte) error {
	return retry.Do(ctx, retry.DefaultConfig(), func() error {
		_, err := kv.Put(ctx, key, data)
		return err
	})
}

// checkpointKey builds the per-run sequence key. The zero-padded sequence
// makes lexicographic key order equal numeric order.
func checkpointKey(runID string, seq uint64) string {
	return fmt.Sprintf("%s.%020d", runID, seq)
}

func parseSequence(runID, key string) (uint64, bool) {
	raw := strings.TrimPrefix(key, runID+".")
	if raw == key {
		return 0, false
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// checkpointKeys returns the run's checkpoint keys sorted ascending.
func (s *KVStore) checkpointKeys(ctx context.Context, runID string) ([]string, error) {
	keys, err := s.checkpoints.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoint keys: %w", err)
	}

	var mine []string
	for _, key := range keys {
		if _, ok := parseSequence(runID, key); ok {
			mine = append(mine, key)
		}
	}
	sort.Strings(mine)
	return mine, nil
}

// Checkpoint appends a sequenced snapshot. The create-only write enforces
// append-only: if another writer claimed the sequence, the write moves to the
// next one rather than overwriting.
func (s *KVStore) Checkpoint(ctx context.Context, runID string, stage model.Stage, state json.RawMessage) (uint64, error) {
	keys, err := s.checkpointKeys(ctx, runID)
	if err != nil {
		return 0, err
	}
	seq := uint64(1)
	if len(keys) > 0 {
		last, _ := parseSequence(runID, keys[len(keys)-1])
		seq = last + 1
	}

	for {
		cp := newCheckpoint(runID, stage, seq, state)
		data, err := json.Marshal(cp)
		if err != nil {
			return 0, fmt.Errorf("marshal checkpoint: %w", err)
		}
		_, err = s.checkpoints.Create(ctx, checkpointKey(runID, seq), data)
		if err == nil {
			return seq, nil
		}
		if errors.Is(err, jetstream.ErrKeyExists) {
			seq++
			continue
		}
		return 0, fmt.Errorf("store checkpoint: %w", err)
	}
}

// Resume returns the checkpoint with the highest sequence.
func (s *KVStore) Resume(ctx context.Context, runID string) (*model.RunCheckpoint, error) {
	keys, err := s.checkpointKeys(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNoCheckpoint
	}

	key := keys[len(keys)-1]
	seq, _ := parseSequence(runID, key)
	entry, err := s.checkpoints.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", key, err)
	}
	return decodeCheckpoint(runID, seq, entry.Value())
}

// History returns every checkpoint for the run ordered by sequence.
func (s *KVStore) History(ctx context.Context, runID string) ([]model.RunCheckpoint, error) {
	keys, err := s.checkpointKeys(ctx, runID)
	if err != nil {
		return nil, err
	}

	history := make([]model.RunCheckpoint, 0, len(keys))
	for _, key := range keys {
		seq, _ := parseSequence(runID, key)
		entry, err := s.checkpoints.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get checkpoint %s: %w", key, err)
		}
		cp, err := decodeCheckpoint(runID, seq, entry.Value())
		if err != nil {
			return nil, err
		}
		history = append(history, *cp)
	}
	return history, nil
}

// CreateRun registers a new run.
func (s *KVStore) CreateRun(ctx context.Context, run *model.Run) error {
	now := nowUTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if _, err := s.runs.Create(ctx, run.ID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrRunExists
		}
		return fmt.Errorf("store run: %w", err)
	}
	return nil
}

// LoadRun retrieves a run by ID.
func (s *KVStore) LoadRun(ctx context.Context, runID string) (*model.Run, error) {
	entry, err := s.runs.Get(ctx, runID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	var run model.Run
	if err := json.Unmarshal(entry.Value(), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// SaveRun persists updated run state.
func (s *KVStore) SaveRun(ctx context.Context, run *model.Run) error {
	run.UpdatedAt = nowUTC()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := putRetried(ctx, s.runs, run.ID, data); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListRuns returns all known runs.
func (s *KVStore) ListRuns(ctx context.Context) ([]*model.Run, error) {
	keys, err := s.runs.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run keys: %w", err)
	}

	runs := make([]*model.Run, 0, len(keys))
	for _, key := range keys {
		entry, err := s.runs.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var run model.Run
		if err := json.Unmarshal(entry.Value(), &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// ActiveRun returns the project's most recent non-terminal run.
func (s *KVStore) ActiveRun(ctx context.Context, project string) (*model.Run, error) {
	runs, err := s.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if run := latestActive(runs, project); run != nil {
		return run, nil
	}
	return nil, ErrNotFound
}

// SaveFlaky upserts one scenario's flaky record.
func (s *KVStore) SaveFlaky(ctx context.Context, rec model.FlakyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal flaky record: %w", err)
	}
	if err := putRetried(ctx, s.flaky, rec.ScenarioID, data); err != nil {
		return fmt.Errorf("store flaky record: %w", err)
	}
	return nil
}

// LoadFlaky returns every flaky record.
func (s *KVStore) LoadFlaky(ctx context.Context) ([]model.FlakyRecord, error) {
	keys, err := s.flaky.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list flaky keys: %w", err)
	}

	records := make([]model.FlakyRecord, 0, len(keys))
	for _, key := range keys {
		entry, err := s.flaky.Get(ctx, key)
		if err != nil {
			continue
		}
		var rec model.FlakyRecord
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveFix upserts a fix record under its run.
func (s *KVStore) SaveFix(ctx context.Context, fix model.Fix) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("marshal fix: %w", err)
	}
	if err := putRetried(ctx, s.fixes, fix.RunID+"."+fix.ID, data); err != nil {
		return fmt.Errorf("store fix: %w", err)
	}
	return nil
}

// ListFixes returns the run's fix records, oldest first.
func (s *KVStore) ListFixes(ctx context.Context, runID string) ([]model.Fix, error) {
	keys, err := s.fixes.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list fix keys: %w", err)
	}

	fixes := make([]model.Fix, 0)
	for _, key := range keys {
		if !strings.HasPrefix(key, runID+".") {
			continue
		}
		entry, err := s.fixes.Get(ctx, key)
		if err != nil {
			continue
		}
		var fix model.Fix
		if err := json.Unmarshal(entry.Value(), &fix); err != nil {
			continue
		}
		fixes = append(fixes, fix)
	}
	sort.Slice(fixes, func(i, j int) bool {
		if fixes[i].CreatedAt.Equal(fixes[j].CreatedAt) {
			return fixes[i].ID < fixes[j].ID
		}
		return fixes[i].CreatedAt.Before(fixes[j].CreatedAt)
	})
	return fixes, nil
}

// SaveBlocker upserts a blocker record under its run.
func (s *KVStore) SaveBlocker(ctx context.Context, blocker model.Blocker) error {
	data, err := json.Marshal(blocker)
	if err != nil {
		return fmt.Errorf("marshal blocker: %w", err)
	}
	if err := putRetried(ctx, s.blockers, blocker.RunID+"."+blocker.ID, data); err != nil {
		return fmt.Errorf("store blocker: %w", err)
	}
	return nil
}

// ListBlockers returns the run's blocker records, oldest first.
func (s *KVStore) ListBlockers(ctx context.Context, runID string) ([]model.Blocker, error) {
	keys, err := s.blockers.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list blocker keys: %w", err)
	}

	blockers := make([]model.Blocker, 0)
	for _, key := range keys {
		if !strings.HasPrefix(key, runID+".") {
			continue
		}
		entry, err := s.blockers.Get(ctx, key)
		if err != nil {
			continue
		}
		var b model.Blocker
		if err := json.Unmarshal(entry.Value(), &b); err != nil {
			continue
		}
		blockers = append(blockers, b)
	}
	sort.Slice(blockers, func(i, j int) bool {
		if blockers[i].CreatedAt.Equal(blockers[j].CreatedAt) {
			return blockers[i].ID < blockers[j].ID
		}
		return blockers[i].CreatedAt.Before(blockers[j].CreatedAt)
	})
	return blockers, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}
