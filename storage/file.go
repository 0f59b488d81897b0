package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/c360studio/uatgate/model"
)

// FileStore persists gateway state under a directory, for single-process
// runs without a NATS server. Writes go through a temp file, fsync, rename,
// and directory fsync, so a checkpoint is durable before its sequence is
// reported committed. Append-only sequencing is guarded by the store mutex;
// the file layout assumes one process owns the directory.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a file store rooted at the given directory.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.root, "runs", runID)
}

func (s *FileStore) checkpointDir(runID string) string {
	return filepath.Join(s.runDir(runID), "checkpoints")
}

func seqFileName(seq uint64) string {
	return fmt.Sprintf("%020d.json", seq)
}

// listSequences returns the checkpoint sequences present in dir, ascending.
func listSequences(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	seqs := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// Checkpoint appends a sequenced snapshot and fsyncs it before returning.
func (s *FileStore) Checkpoint(ctx context.Context, runID string, stage model.Stage, state json.RawMessage) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.checkpointDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create checkpoint dir: %w", err)
	}
	seqs, err := listSequences(dir)
	if err != nil {
		return 0, err
	}
	seq := uint64(1)
	if n := len(seqs); n > 0 {
		seq = seqs[n-1] + 1
	}

	cp := newCheckpoint(runID, stage, seq, state)
	data, err := json.Marshal(cp)
	if err != nil {
		return 0, fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := writeFileSync(filepath.Join(dir, seqFileName(seq)), data); err != nil {
		return 0, fmt.Errorf("store checkpoint: %w", err)
	}
	return seq, nil
}

// Resume returns the checkpoint with the highest sequence.
func (s *FileStore) Resume(ctx context.Context, runID string) (*model.RunCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.checkpointDir(runID)
	seqs, err := listSequences(dir)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return nil, ErrNoCheckpoint
	}

	seq := seqs[len(seqs)-1]
	data, err := os.ReadFile(filepath.Join(dir, seqFileName(seq)))
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %d: %w", seq, err)
	}
	return decodeCheckpoint(runID, seq, data)
}

// History returns every checkpoint for the run ordered by sequence.
func (s *FileStore) History(ctx context.Context, runID string) ([]model.RunCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.checkpointDir(runID)
	seqs, err := listSequences(dir)
	if err != nil {
		return nil, err
	}

	history := make([]model.RunCheckpoint, 0, len(seqs))
	for _, seq := range seqs {
		data, err := os.ReadFile(filepath.Join(dir, seqFileName(seq)))
		if err != nil {
			return nil, fmt.Errorf("read checkpoint %d: %w", seq, err)
		}
		cp, err := decodeCheckpoint(runID, seq, data)
		if err != nil {
			return nil, err
		}
		history = append(history, *cp)
	}
	return history, nil
}

// CreateRun registers a new run.
func (s *FileStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.runDir(run.ID), "run.json")
	if _, err := os.Stat(path); err == nil {
		return ErrRunExists
	}
	if err := os.MkdirAll(s.runDir(run.ID), 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	now := nowUTC()
	run.CreatedAt = now
	run.UpdatedAt = now

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := writeFileSync(path, data); err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	return nil
}

// LoadRun retrieves a run by ID.
func (s *FileStore) LoadRun(ctx context.Context, runID string) (*model.Run, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), "run.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read run: %w", err)
	}

	var run model.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// SaveRun persists updated run state.
func (s *FileStore) SaveRun(ctx context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.UpdatedAt = nowUTC()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := writeFileSync(filepath.Join(s.runDir(run.ID), "run.json"), data); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// ListRuns returns all known runs.
func (s *FileStore) ListRuns(ctx context.Context) ([]*model.Run, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "runs"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}

	runs := make([]*model.Run, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		run, err := s.LoadRun(ctx, entry.Name())
		if err != nil {
			continue // Skip entries that fail to load
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// ActiveRun returns the project's most recent non-terminal run.
func (s *FileStore) ActiveRun(ctx context.Context, project string) (*model.Run, error) {
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
func (s *FileStore) SaveFlaky(ctx context.Context, rec model.FlakyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, "flaky")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create flaky dir: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal flaky record: %w", err)
	}
	if err := writeFileSync(filepath.Join(dir, rec.ScenarioID+".json"), data); err != nil {
		return fmt.Errorf("store flaky record: %w", err)
	}
	return nil
}

// LoadFlaky returns every flaky record.
func (s *FileStore) LoadFlaky(ctx context.Context) ([]model.FlakyRecord, error) {
	dir := filepath.Join(s.root, "flaky")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list flaky records: %w", err)
	}

	records := make([]model.FlakyRecord, 0, len(entries))
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec model.FlakyRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveFix upserts a fix record under its run.
func (s *FileStore) SaveFix(ctx context.Context, fix model.Fix) error {
	return s.saveRunRecord(fix.RunID, "fixes", fix.ID, fix)
}

// ListFixes returns the run's fix records, oldest first.
func (s *FileStore) ListFixes(ctx context.Context, runID string) ([]model.Fix, error) {
	var fixes []model.Fix
	err := loadRunRecords(filepath.Join(s.runDir(runID), "fixes"), func(data []byte) {
		var fix model.Fix
		if json.Unmarshal(data, &fix) == nil {
			fixes = append(fixes, fix)
		}
	})
	if err != nil {
		return nil, err
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
func (s *FileStore) SaveBlocker(ctx context.Context, blocker model.Blocker) error {
	return s.saveRunRecord(blocker.RunID, "blockers", blocker.ID, blocker)
}

// ListBlockers returns the run's blocker records, oldest first.
func (s *FileStore) ListBlockers(ctx context.Context, runID string) ([]model.Blocker, error) {
	var blockers []model.Blocker
	err := loadRunRecords(filepath.Join(s.runDir(runID), "blockers"), func(data []byte) {
		var b model.Blocker
		if json.Unmarshal(data, &b) == nil {
			blockers = append(blockers, b)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(blockers, func(i, j int) bool {
		if blockers[i].CreatedAt.Equal(blockers[j].CreatedAt) {
			return blockers[i].ID < blockers[j].ID
		}
		return blockers[i].CreatedAt.Before(blockers[j].CreatedAt)
	})
	return blockers, nil
}

// saveRunRecord writes one JSON record under runs/<runID>/<kind>/<id>.json.
func (s *FileStore) saveRunRecord(runID, kind, id string, record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.runDir(runID), kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s dir: %w", kind, err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", kind, err)
	}
	if err := writeFileSync(filepath.Join(dir, id+".json"), data); err != nil {
		return fmt.Errorf("store %s record: %w", kind, err)
	}
	return nil
}

// loadRunRecords feeds each record file in dir to the collector. A missing
// directory yields no records.
func loadRunRecords(dir string, collect func(data []byte)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("list records: %w", err)
	}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		collect(data)
	}
	return nil
}

// writeFileSync writes data durably: temp file in the destination directory,
// fsync, rename, fsync of the directory. A crash mid-write leaves either the
// old content or the new, never a torn file.
func writeFileSync(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".uatgate-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}

	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
