package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/uatgate/model"
)

func TestDefaultRules(t *testing.T) {
	rs := DefaultRules()
	require.Len(t, rs.Rules, 4)

	assert.Len(t, rs.headingRules(), 2)
	assert.Len(t, rs.itemRules(), 2)

	names := make([]string, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"flow-section", "acceptance-criteria", "user-story", "capability"}, names)
}

func TestDefaultRules_Matching(t *testing.T) {
	rs := DefaultRules()
	byName := make(map[string]Rule, len(rs.Rules))
	for _, r := range rs.Rules {
		byName[r.Name] = r
	}

	tests := []struct {
		rule    string
		text    string
		matches bool
	}{
		{"flow-section", "Checkout Flow", true},
		{"flow-section", "User Journeys", true},
		{"flow-section", "Returns use case", true},
		{"flow-section", "Overview", false},
		{"acceptance-criteria", "Acceptance Criteria", true},
		{"acceptance-criteria", "Business Rules", true},
		{"acceptance-criteria", "Architecture", false},
		{"user-story", "As a customer, I want to track my order so that I know when it arrives", true},
		{"user-story", "As an admin, I need to export reports", true},
		{"user-story", "The system shall persist orders", false},
		{"capability", "Guests can check out without an account", true},
		{"capability", "Admins must approve returns", true},
		{"capability", "Orders are archived monthly", false},
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.text, func(t *testing.T) {
			rule := byName[tt.rule]
			assert.Equal(t, tt.matches, rule.Match(tt.text))
		})
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: runbook
    applies: heading
    pattern: "(?i)runbook"
    template: flow
    priority: low
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rs, err := LoadRules(path)
	require.NoError(t, err)

	// File rules come first so they shadow the defaults
	require.Len(t, rs.Rules, 5)
	assert.Equal(t, "runbook", rs.Rules[0].Name)
	assert.Equal(t, model.PriorityLow, rs.Rules[0].Priority)
	assert.True(t, rs.Rules[0].Match("Deployment Runbook"))
	assert.Equal(t, "flow-section", rs.Rules[1].Name)
}

func TestLoadRules_InvalidPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: broken
    applies: heading
    pattern: "(["
    template: flow
    priority: low
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile pattern")
}

func TestLoadRules_UnknownTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: odd
    applies: heading
    pattern: "x"
    template: magic
    priority: low
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}

func TestLoadRules_InvalidApplies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: odd
    applies: paragraph
    pattern: "x"
    template: flow
    priority: low
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadRules(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applies")
}

func TestLoadRules_MissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRules_CustomRuleDrivesExtraction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `rules:
  - name: smoke-list
    applies: heading
    pattern: "(?i)smoke tests"
    template: checklist
    priority: high
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rs, err := LoadRules(path)
	require.NoError(t, err)

	body := `## Smoke Tests

- The home page loads
- The search box returns results
`
	result, err := New(rs, nil).Extract(testDoc(t, body))
	require.NoError(t, err)

	require.Len(t, result.Journeys, 1)
	assert.Equal(t, model.PriorityHigh, result.Journeys[0].Priority)
	assert.Len(t, result.Scenarios, 2)
}
