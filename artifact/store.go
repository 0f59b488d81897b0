// Package artifact persists generated artifacts and fixtures under the data
// directory. Writes are atomic and fsynced, and the store hands the fix
// engine versioned snapshots with rollback plus a per-scenario exclusive
// lock, so at most one fix is ever in flight per scenario.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store reads and writes data-dir-relative files.
type Store struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at the data directory.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:   root,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Root returns the data directory the store is rooted at.
func (s *Store) Root() string {
	return s.root
}

// Path resolves a data-dir-relative path to an absolute one.
func (s *Store) Path(rel string) string {
	return filepath.Join(s.root, rel)
}

// Read returns the content of a data-dir-relative file.
func (s *Store) Read(rel string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(rel))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether a data-dir-relative file is present.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.Path(rel))
	return err == nil
}

// Write persists one file: temp file in the target directory, fsync, rename,
// fsync of the directory. The file is never observable half-written.
func (s *Store) Write(rel string, data []byte) error {
	path := s.Path(rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".uatgate-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write artifact %s: %w", rel, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync artifact %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close artifact %s: %w", rel, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod artifact %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename artifact %s: %w", rel, err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("sync artifact dir for %s: %w", rel, err)
	}
	return nil
}

// WriteAll persists a set of files in sorted path order.
func (s *Store) WriteAll(files map[string][]byte) error {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := s.Write(p, files[p]); err != nil {
			return err
		}
	}
	return nil
}

// Lock acquires the scenario's exclusive artifact lock and returns the
// release function. The fix engine holds it across apply and verify.
func (s *Store) Lock(scenarioID string) func() {
	s.mu.Lock()
	m, ok := s.locks[scenarioID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[scenarioID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// snapshotManifest records what a snapshot captured. Files absent at
// snapshot time are recorded so Restore can remove anything a fix created.
type snapshotManifest struct {
	ScenarioID string          `json:"scenario_id"`
	Files      []snapshotEntry `json:"files"`
	CreatedAt  time.Time       `json:"created_at"`
}

type snapshotEntry struct {
	Path    string `json:"path"`
	Present bool   `json:"present"`
}

// Snapshot copies the named files into a fresh versioned snapshot and
// returns its reference.
func (s *Store) Snapshot(scenarioID string, rels []string) (string, error) {
	ref := filepath.Join("snapshots", scenarioID, uuid.New().String())
	manifest := snapshotManifest{ScenarioID: scenarioID, CreatedAt: time.Now().UTC()}

	seen := make(map[string]bool, len(rels))
	for _, rel := range rels {
		if rel == "" || seen[rel] {
			continue
		}
		seen[rel] = true

		data, err := s.Read(rel)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				manifest.Files = append(manifest.Files, snapshotEntry{Path: rel})
				continue
			}
			return "", err
		}
		if err := s.Write(filepath.Join(ref, "files", rel), data); err != nil {
			return "", err
		}
		manifest.Files = append(manifest.Files, snapshotEntry{Path: rel, Present: true})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot manifest: %w", err)
	}
	if err := s.Write(filepath.Join(ref, "manifest.json"), data); err != nil {
		return "", err
	}

	s.logger.Debug("artifact snapshot created",
		"scenario", scenarioID,
		"ref", ref,
		"files", len(manifest.Files))
	return ref, nil
}

// Restore rewrites every file in the snapshot's manifest to its snapshotted
// content, removing files the manifest records as absent.
func (s *Store) Restore(ref string) error {
	data, err := s.Read(filepath.Join(ref, "manifest.json"))
	if err != nil {
		return fmt.Errorf("read snapshot manifest: %w", err)
	}
	var manifest snapshotManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("decode snapshot manifest: %w", err)
	}

	for _, entry := range manifest.Files {
		if !entry.Present {
			if err := os.Remove(s.Path(entry.Path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove created artifact %s: %w", entry.Path, err)
			}
			continue
		}
		content, err := s.Read(filepath.Join(ref, "files", entry.Path))
		if err != nil {
			return err
		}
		if err := s.Write(entry.Path, content); err != nil {
			return err
		}
	}

	s.logger.Info("artifacts restored from snapshot",
		"scenario", manifest.ScenarioID,
		"ref", ref)
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
