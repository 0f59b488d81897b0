// Package selector computes the scenario subset a change set requires. The
// dependency map binds scenarios to the code path globs they exercise;
// critical scenarios are selected unconditionally, and scenarios the map
// cannot vouch for are selected conservatively.
package selector

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/uatgate/model"
)

// DepMap binds scenarios to the code paths they exercise, in doublestar glob
// syntax. A journey entry covers every scenario of the journey that has no
// entry of its own. Scenarios absent from both maps have unknown impact.
type DepMap struct {
	// Scenarios maps scenario ID to code path globs
	Scenarios map[string][]string `yaml:"scenarios"`

	// Journeys maps journey ID to code path globs
	Journeys map[string][]string `yaml:"journeys"`
}

// LoadDepMap reads a dependency map file. A missing file is not an error: it
// yields an empty map, under which every scenario is selected.
func LoadDepMap(path string) (*DepMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &DepMap{}, nil
		}
		return nil, fmt.Errorf("read dependency map: %w", err)
	}

	var m DepMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse dependency map %s: %w", path, err)
	}
	return &m, nil
}

// globsFor resolves the scenario's dependency globs. The scenario's own entry
// wins over its journey's.
func (m *DepMap) globsFor(sc model.Scenario) ([]string, bool) {
	if m == nil {
		return nil, false
	}
	if globs, ok := m.Scenarios[sc.ID]; ok {
		return globs, true
	}
	if globs, ok := m.Journeys[sc.JourneyID]; ok {
		return globs, true
	}
	return nil, false
}

// Selection is the outcome of one impact computation.
type Selection struct {
	// Scenarios are the selected scenarios, in input order
	Scenarios []model.Scenario

	// SkippedIDs are the scenarios whose mapped dependencies do not
	// intersect the change set
	SkippedIDs []string
}

// Selector applies the dependency map to change sets.
type Selector struct {
	depmap *DepMap
	logger *slog.Logger
}

// New creates a selector. A nil map behaves as an empty one.
func New(depmap *DepMap, logger *slog.Logger) *Selector {
	if depmap == nil {
		depmap = &DepMap{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{depmap: depmap, logger: logger}
}

// Select returns the scenarios the change set requires. Critical scenarios
// are always selected regardless of the change set, so the result never
// shrinks below the full critical set. Non-critical scenarios are selected
// when a mapped glob matches a changed path, or when no mapping exists to
// prove them unaffected. An entry with no globs declares the scenario
// independent of the watched code.
func (s *Selector) Select(changed []string, scenarios []model.Scenario) Selection {
	var sel Selection
	for _, sc := range scenarios {
		if sc.Priority == model.PriorityCritical {
			sel.Scenarios = append(sel.Scenarios, sc)
			continue
		}

		globs, mapped := s.depmap.globsFor(sc)
		if !mapped {
			s.logger.Debug("scenario has no dependency mapping, selecting",
				"scenario", sc.ID)
			sel.Scenarios = append(sel.Scenarios, sc)
			continue
		}
		if s.affected(sc.ID, globs, changed) {
			sel.Scenarios = append(sel.Scenarios, sc)
			continue
		}
		sel.SkippedIDs = append(sel.SkippedIDs, sc.ID)
	}

	s.logger.Info("scenario selection computed",
		"changed", len(changed),
		"selected", len(sel.Scenarios),
		"skipped", len(sel.SkippedIDs))
	return sel
}

// affected reports whether any mapped glob matches any changed path. A glob
// that does not parse cannot prove safety, so it selects the scenario.
func (s *Selector) affected(scenarioID string, globs, changed []string) bool {
	for _, glob := range globs {
		pattern := filepath.ToSlash(glob)
		for _, path := range changed {
			ok, err := doublestar.Match(pattern, filepath.ToSlash(path))
			if err != nil {
				s.logger.Warn("bad dependency glob, selecting scenario",
					"scenario", scenarioID,
					"glob", glob,
					"error", err)
				return true
			}
			if ok {
				return true
			}
		}
	}
	return false
}
