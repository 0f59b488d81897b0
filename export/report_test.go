package export_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/uatgate/export"
	"github.com/c360studio/uatgate/extractor"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/verdict"
)

func sampleMaterials() export.Materials {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	resolved := now.Add(10 * time.Minute)

	return export.Materials{
		Run: &model.Run{
			ID:          "run-report0001",
			Project:     "webshop",
			SpecVersion: "abcdef0123456789",
			Stage:       model.StageBlocked,
			CreatedAt:   now,
			UpdatedAt:   now.Add(time.Hour),
		},
		Journeys: []model.Journey{
			{
				ID:          "jny-aaaaaaaaaaaa",
				Name:        "Checkout Flow",
				Priority:    model.PriorityCritical,
				ScenarioIDs: []string{"scn-111111111111", "scn-222222222222"},
			},
			{
				ID:          "jny-bbbbbbbbbbbb",
				Name:        "Browse Catalog",
				Priority:    model.PriorityHigh,
				ScenarioIDs: []string{"scn-333333333333"},
			},
		},
		Scenarios: []model.Scenario{
			{ID: "scn-111111111111", JourneyID: "jny-aaaaaaaaaaaa", Name: "Checkout Flow", Priority: model.PriorityCritical, Status: model.ScenarioFailed},
			{ID: "scn-222222222222", JourneyID: "jny-aaaaaaaaaaaa", Name: "Apply Coupon", Priority: model.PriorityCritical, Status: model.ScenarioSkipped, Diagnostic: `no template binds action "frobnicate"`},
			{ID: "scn-333333333333", JourneyID: "jny-bbbbbbbbbbbb", Name: "Browse Catalog", Priority: model.PriorityHigh, Status: model.ScenarioPassed},
		},
		Verdicts: []verdict.Verdict{
			{
				ScenarioID:  "scn-111111111111",
				JourneyID:   "jny-aaaaaaaaaaaa",
				Priority:    model.PriorityCritical,
				Status:      model.ScenarioFailed,
				Diagnostics: []model.Diagnostic{{Code: "stale-selector", Message: "selector [data-uat=\"place-order\"] not found"}},
			},
			{
				ScenarioID:   "scn-333333333333",
				JourneyID:    "jny-bbbbbbbbbbbb",
				Priority:     model.PriorityHigh,
				Status:       model.ScenarioPassed,
				AdvisoryPass: true,
				Advisories:   []model.Diagnostic{{Code: "a11y-violation", Message: "image missing alt text"}},
				Quarantined:  true,
				FlakyScore:   0.42,
			},
		},
		Deselected: []string{},
		Gaps: []extractor.CoverageGap{
			{DocumentID: "doc.webshop.abc", Section: "Pricing Rules", Reason: "no extraction rule matched"},
		},
		Fixes: []model.Fix{
			{ID: "fix-000000000001", ScenarioID: "scn-111111111111", Signature: "stale-selector", State: model.FixRolledBack, Confidence: 0.78},
		},
		Blockers: []model.Blocker{
			{ID: "blk-000000000001", Category: model.BlockerConfig, Reason: "critical scenario cannot be generated", ScenarioIDs: []string{"scn-222222222222"}},
			{ID: "blk-000000000002", Category: model.BlockerCredential, Reason: "staging API token expired", ResolvedAt: &resolved, Resolution: "token rotated"},
		},
	}
}

func TestNewReport_AssemblesRows(t *testing.T) {
	r := export.NewReport(sampleMaterials())

	assert.Equal(t, "run-report0001", r.RunID)
	assert.Equal(t, "blocked", r.Stage)

	assert.Equal(t, 2, r.Summary.Journeys)
	assert.Equal(t, 3, r.Summary.Scenarios)
	assert.Equal(t, 1, r.Summary.Passed)
	assert.Equal(t, 1, r.Summary.Failed)
	assert.Equal(t, 1, r.Summary.Quarantined)
	assert.Equal(t, 1, r.Summary.AdvisoryPasses)
	assert.Equal(t, 1, r.Summary.OpenBlockers)
	assert.Equal(t, 0.0, r.Summary.CriticalPassRate)

	require.Len(t, r.Journeys, 2)
	checkout := r.Journeys[0]
	require.Len(t, checkout.Scenarios, 2)
	assert.Equal(t, "failed", checkout.Scenarios[0].Status)
	require.NotEmpty(t, checkout.Scenarios[0].Failures)
	assert.Contains(t, checkout.Scenarios[0].Failures[0], "place-order")

	// The generation-skipped scenario has no verdict; its stored status and
	// diagnostic carry the row.
	skipped := checkout.Scenarios[1]
	assert.Equal(t, "skipped", skipped.Status)
	assert.Contains(t, skipped.Note, "frobnicate")

	catalog := r.Journeys[1]
	require.Len(t, catalog.Scenarios, 1)
	assert.True(t, catalog.Scenarios[0].Quarantined)
	assert.InDelta(t, 0.42, catalog.Scenarios[0].FlakyScore, 1e-9)
}

func TestReport_Markdown(t *testing.T) {
	r := export.NewReport(sampleMaterials())
	md := r.Markdown()

	assert.True(t, strings.HasPrefix(md, "# UAT report: run-report0001"))
	assert.Contains(t, md, "## Summary")
	assert.Contains(t, md, "### Checkout Flow (critical)")
	assert.Contains(t, md, "| Apply Coupon | skipped |")
	assert.Contains(t, md, "## Quarantine")
	assert.Contains(t, md, "Browse Catalog (score 0.42)")
	assert.Contains(t, md, "## Fixes")
	assert.Contains(t, md, "stale-selector")
	assert.Contains(t, md, "## Blockers")
	assert.Contains(t, md, "| blk-000000000002 | credential | resolved |")
	assert.Contains(t, md, "## Coverage gaps")
	assert.Contains(t, md, "- Pricing Rules: no extraction rule matched")
	assert.Contains(t, md, "- Spec version: abcdef012345")

	// Cell content must not break table structure.
	assert.NotContains(t, md, "%!")
}

func TestReport_JSON(t *testing.T) {
	r := export.NewReport(sampleMaterials())

	data, err := r.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-report0001", decoded["run_id"])
	assert.Contains(t, decoded, "summary")
	assert.Contains(t, decoded, "journeys")
	assert.Contains(t, decoded, "coverage_gaps")
}

func TestReport_Render(t *testing.T) {
	r := export.NewReport(sampleMaterials())

	md, err := r.Render(export.FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, string(md), "## Summary")

	js, err := r.Render(export.FormatJSON)
	require.NoError(t, err)
	assert.True(t, json.Valid(js))

	_, err = r.Render(export.Format("xml"))
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    export.Format
		wantErr bool
	}{
		{in: "markdown", want: export.FormatMarkdown},
		{in: "md", want: export.FormatMarkdown},
		{in: ".md", want: export.FormatMarkdown},
		{in: "Markdown", want: export.FormatMarkdown},
		{in: "json", want: export.FormatJSON},
		{in: ".JSON", want: export.FormatJSON},
		{in: "xml", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := export.ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetFormatInfo(t *testing.T) {
	info, ok := export.GetFormatInfo(export.FormatMarkdown)
	require.True(t, ok)
	assert.Equal(t, ".md", info.Extension)
	assert.Equal(t, "text/markdown; charset=utf-8", info.MIMEType)

	_, ok = export.GetFormatInfo(export.Format("turtle"))
	assert.False(t, ok)
}
