// Package export renders a run's terminal state into report documents.
package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/uatgate/extractor"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/verdict"
)

// Format specifies the report output format.
type Format string

const (
	// FormatMarkdown produces a markdown (.md) report.
	FormatMarkdown Format = "markdown"

	// FormatJSON produces a JSON (.json) report.
	FormatJSON Format = "json"
)

// Materials are the persisted pieces a report is assembled from.
type Materials struct {
	Run        *model.Run
	Journeys   []model.Journey
	Scenarios  []model.Scenario
	Verdicts   []verdict.Verdict
	Deselected []string
	Gaps       []extractor.CoverageGap
	Fixes      []model.Fix
	Blockers   []model.Blocker
}

// Report is the assembled view of one run.
type Report struct {
	RunID         string    `json:"run_id"`
	Project       string    `json:"project"`
	Stage         string    `json:"stage"`
	SpecVersion   string    `json:"spec_version,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	GeneratedAt   time.Time `json:"generated_at"`

	Summary  Summary                 `json:"summary"`
	Journeys []JourneyReport         `json:"journeys"`
	Fixes    []model.Fix             `json:"fixes,omitempty"`
	Blockers []model.Blocker         `json:"blockers,omitempty"`
	Gaps     []extractor.CoverageGap `json:"coverage_gaps,omitempty"`
}

// Summary is the report's headline numbers.
type Summary struct {
	Journeys         int     `json:"journeys"`
	Scenarios        int     `json:"scenarios"`
	Passed           int     `json:"passed"`
	Failed           int     `json:"failed"`
	Skipped          int     `json:"skipped"`
	Deselected       int     `json:"deselected"`
	AdvisoryPasses   int     `json:"advisory_passes"`
	Quarantined      int     `json:"quarantined"`
	CriticalPassRate float64 `json:"critical_pass_rate"`
	OpenBlockers     int     `json:"open_blockers"`
}

// JourneyReport is one journey with its scenario rows.
type JourneyReport struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Priority  string           `json:"priority"`
	Scenarios []ScenarioReport `json:"scenarios"`
}

// ScenarioReport is one scenario row: the scenario joined with its verdict.
type ScenarioReport struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Priority     string   `json:"priority"`
	Status       string   `json:"status"`
	Deselected   bool     `json:"deselected,omitempty"`
	AdvisoryPass bool     `json:"advisory_pass,omitempty"`
	Quarantined  bool     `json:"quarantined,omitempty"`
	FlakyScore   float64  `json:"flaky_score,omitempty"`
	Failures     []string `json:"failures,omitempty"`
	Advisories   []string `json:"advisories,omitempty"`

	// Note carries the generation diagnostic for scenarios that never ran.
	Note string `json:"note,omitempty"`
}

// NewReport assembles a report. Scenario rows follow journey order; a
// scenario without a verdict reports its stored status, which is how
// deselected and generation-skipped scenarios surface.
func NewReport(m Materials) *Report {
	verdicts := make(map[string]verdict.Verdict, len(m.Verdicts))
	for _, v := range m.Verdicts {
		verdicts[v.ScenarioID] = v
	}
	scenarios := make(map[string]model.Scenario, len(m.Scenarios))
	for _, sc := range m.Scenarios {
		scenarios[sc.ID] = sc
	}
	deselected := make(map[string]bool, len(m.Deselected))
	for _, id := range m.Deselected {
		deselected[id] = true
	}

	journeys := make([]JourneyReport, 0, len(m.Journeys))
	for _, jny := range m.Journeys {
		jr := JourneyReport{
			ID:       jny.ID,
			Name:     jny.Name,
			Priority: string(jny.Priority),
		}
		for _, scID := range jny.ScenarioIDs {
			sc, ok := scenarios[scID]
			if !ok {
				continue
			}
			row := ScenarioReport{
				ID:         sc.ID,
				Name:       sc.Name,
				Priority:   string(sc.Priority),
				Status:     string(sc.Status),
				Deselected: deselected[sc.ID],
			}
			if sc.Status == model.ScenarioSkipped && sc.Diagnostic != "" {
				row.Note = sc.Diagnostic
			}
			if v, ok := verdicts[sc.ID]; ok {
				row.Status = string(v.Status)
				row.AdvisoryPass = v.AdvisoryPass
				row.Quarantined = v.Quarantined
				row.FlakyScore = v.FlakyScore
				row.Failures = messages(v.Diagnostics)
				row.Advisories = messages(v.Advisories)
			}
			jr.Scenarios = append(jr.Scenarios, row)
		}
		journeys = append(journeys, jr)
	}

	open := 0
	for _, b := range m.Blockers {
		if b.Open() {
			open++
		}
	}

	s := verdict.Summarize(m.Verdicts)
	report := &Report{
		RunID:         m.Run.ID,
		Project:       m.Run.Project,
		Stage:         string(m.Run.Stage),
		SpecVersion:   m.Run.SpecVersion,
		FailureReason: m.Run.FailureReason,
		CreatedAt:     m.Run.CreatedAt,
		UpdatedAt:     m.Run.UpdatedAt,
		GeneratedAt:   time.Now().UTC(),
		Summary: Summary{
			Journeys:         len(m.Journeys),
			Scenarios:        len(m.Scenarios),
			Passed:           s.Passed,
			Failed:           s.Failed,
			Skipped:          s.Skipped,
			Deselected:       len(m.Deselected),
			AdvisoryPasses:   s.AdvisoryPasses,
			Quarantined:      s.Quarantined,
			CriticalPassRate: s.CriticalPassRate(),
			OpenBlockers:     open,
		},
		Journeys: journeys,
		Fixes:    m.Fixes,
		Blockers: m.Blockers,
		Gaps:     m.Gaps,
	}
	return report
}

// Render serializes the report in the requested format.
func (r *Report) Render(format Format) ([]byte, error) {
	switch format {
	case FormatMarkdown:
		return []byte(r.Markdown()), nil
	case FormatJSON:
		return r.JSON()
	}
	return nil, fmt.Errorf("unsupported report format %q", format)
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

// Markdown renders the report as a markdown document.
func (r *Report) Markdown() string {
	w := &markdownWriter{}

	w.WriteHeading(1, fmt.Sprintf("UAT report: %s", r.RunID))
	w.WriteLine("- Project: %s", r.Project)
	w.WriteLine("- Stage: %s", r.Stage)
	if r.SpecVersion != "" {
		w.WriteLine("- Spec version: %s", shortVersion(r.SpecVersion))
	}
	w.WriteLine("- Generated: %s", r.GeneratedAt.Format(time.RFC3339))
	if r.FailureReason != "" {
		w.WriteLine("- Failure: %s", r.FailureReason)
	}
	w.WriteBlank()

	w.WriteHeading(2, "Summary")
	w.WriteTable(
		[]string{"Scenarios", "Passed", "Failed", "Skipped", "Deselected", "Quarantined", "Critical pass rate"},
		[][]string{{
			strconv.Itoa(r.Summary.Scenarios),
			strconv.Itoa(r.Summary.Passed),
			strconv.Itoa(r.Summary.Failed),
			strconv.Itoa(r.Summary.Skipped),
			strconv.Itoa(r.Summary.Deselected),
			strconv.Itoa(r.Summary.Quarantined),
			fmt.Sprintf("%.0f%%", r.Summary.CriticalPassRate*100),
		}},
	)

	w.WriteHeading(2, "Journeys")
	for _, jr := range r.Journeys {
		w.WriteHeading(3, fmt.Sprintf("%s (%s)", jr.Name, jr.Priority))
		rows := make([][]string, 0, len(jr.Scenarios))
		for _, sc := range jr.Scenarios {
			rows = append(rows, []string{sc.Name, sc.Status, scenarioNotes(sc)})
		}
		w.WriteTable([]string{"Scenario", "Status", "Notes"}, rows)
	}

	if quarantined := r.quarantinedRows(); len(quarantined) > 0 {
		w.WriteHeading(2, "Quarantine")
		w.WriteLine("Quarantined scenarios keep executing but are excluded from the critical pass rate.")
		w.WriteBlank()
		for _, sc := range quarantined {
			w.WriteLine("- %s (score %.2f)", sc.Name, sc.FlakyScore)
		}
		w.WriteBlank()
	}

	if len(r.Fixes) > 0 {
		w.WriteHeading(2, "Fixes")
		rows := make([][]string, 0, len(r.Fixes))
		for _, f := range r.Fixes {
			rows = append(rows, []string{
				f.ID, f.ScenarioID, f.Signature, string(f.State),
				fmt.Sprintf("%.2f", f.Confidence),
			})
		}
		w.WriteTable([]string{"Fix", "Scenario", "Signature", "State", "Confidence"}, rows)
	}

	if len(r.Blockers) > 0 {
		w.WriteHeading(2, "Blockers")
		rows := make([][]string, 0, len(r.Blockers))
		for _, b := range r.Blockers {
			state := "open"
			if !b.Open() {
				state = "resolved"
			}
			rows = append(rows, []string{b.ID, string(b.Category), state, b.Reason})
		}
		w.WriteTable([]string{"Blocker", "Category", "State", "Reason"}, rows)
	}

	if len(r.Gaps) > 0 {
		w.WriteHeading(2, "Coverage gaps")
		for _, g := range r.Gaps {
			section := g.Section
			if section == "" {
				section = "preamble"
			}
			w.WriteLine("- %s: %s", section, g.Reason)
		}
		w.WriteBlank()
	}

	return w.String()
}

func (r *Report) quarantinedRows() []ScenarioReport {
	var out []ScenarioReport
	for _, jr := range r.Journeys {
		for _, sc := range jr.Scenarios {
			if sc.Quarantined {
				out = append(out, sc)
			}
		}
	}
	return out
}

func scenarioNotes(sc ScenarioReport) string {
	var notes []string
	if sc.Deselected {
		notes = append(notes, "deselected")
	}
	if sc.AdvisoryPass {
		notes = append(notes, fmt.Sprintf("%d advisory finding(s)", len(sc.Advisories)))
	}
	if sc.Quarantined {
		notes = append(notes, fmt.Sprintf("quarantined (score %.2f)", sc.FlakyScore))
	}
	if len(sc.Failures) > 0 {
		notes = append(notes, sc.Failures[0])
	}
	if sc.Note != "" {
		notes = append(notes, sc.Note)
	}
	return strings.Join(notes, "; ")
}

func messages(diags []model.Diagnostic) []string {
	if len(diags) == 0 {
		return nil
	}
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Message)
	}
	return out
}

func shortVersion(v string) string {
	if len(v) > 12 {
		return v[:12]
	}
	return v
}
