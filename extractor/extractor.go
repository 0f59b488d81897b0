// Package extractor derives user journeys and scenario step sequences from
// parsed specification documents.
//
// Extraction is rule-driven and deterministic: the same document always
// produces the same journey set, byte for byte. Sections the rule table
// cannot place are reported as coverage gaps rather than dropped.
package extractor

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/source"
	"github.com/c360studio/uatgate/uaterr"
)

// criticalKeywordsRe forces critical priority on journeys touching
// authentication, payment, or destructive data paths.
var criticalKeywordsRe = regexp.MustCompile(`(?i)\b(auth\w*|log[ -]?in|sign[ -]?(?:in|up)|password|credential\w*|payment\w*|billing|credit card|refund\w*|data[ -]loss|delete\w*|irreversib\w*)\b`)

// setupNameRe marks a scenario as its journey's setup step sequence.
var setupNameRe = regexp.MustCompile(`(?i)^(setup|precondition|prerequisite)`)

// CoverageGap is a spec section the rule table could not turn into journeys.
type CoverageGap struct {
	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`

	// Section is the heading of the unmatched section, empty for preamble.
	Section string `json:"section"`

	// Reason explains why nothing was derived.
	Reason string `json:"reason"`
}

// Result is the outcome of extracting one document.
type Result struct {
	// Journeys in document order.
	Journeys []model.Journey

	// Scenarios for all journeys, grouped by journey in derivation order,
	// each with steps populated and status pending.
	Scenarios []model.Scenario

	// Gaps lists sections that produced nothing.
	Gaps []CoverageGap
}

// Extractor turns specification documents into journeys.
type Extractor struct {
	rules  *RuleSet
	logger *slog.Logger
}

// New creates an extractor. A nil rules table uses the built-in defaults.
func New(rules *RuleSet, logger *slog.Logger) *Extractor {
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{rules: rules, logger: logger}
}

// journeyBuilder accumulates a journey and its scenarios during extraction.
type journeyBuilder struct {
	journey   model.Journey
	scenarios []model.Scenario
}

// addScenario appends a scenario with a deterministic position-derived ID.
func (jb *journeyBuilder) addScenario(name string, steps []model.Step) *model.Scenario {
	sc := model.Scenario{
		ID:        model.ScenarioID(jb.journey.ID, len(jb.scenarios)),
		JourneyID: jb.journey.ID,
		Name:      name,
		Steps:     steps,
		Status:    model.ScenarioPending,
	}
	jb.scenarios = append(jb.scenarios, sc)
	return &jb.scenarios[len(jb.scenarios)-1]
}

// extraction carries the per-document state for one Extract call.
type extraction struct {
	doc      *source.Document
	builders []*journeyBuilder
	byKey    map[string]*journeyBuilder
	produced []bool // parallel to doc.Sections
	claimed  []bool // a rule claimed the section even if nothing came of it
	gaps     []CoverageGap
}

// gap records a coverage gap during the section walk.
func (ex *extraction) gap(section, reason string) {
	ex.gaps = append(ex.gaps, CoverageGap{
		DocumentID: ex.doc.ID,
		Section:    section,
		Reason:     reason,
	})
}

// Extract derives journeys, scenarios, and coverage gaps from a document.
// A document with no extractable content at all is a coverage warning, not an
// error; only an unusable document fails.
func (e *Extractor) Extract(doc *source.Document) (*Result, error) {
	if doc == nil {
		return nil, &uaterr.ExtractionFailure{Reason: "no document"}
	}
	if strings.TrimSpace(doc.Body) == "" {
		return nil, &uaterr.ExtractionFailure{SpecPath: doc.Filename, Reason: "document is empty"}
	}

	ex := &extraction{
		doc:      doc,
		byKey:    make(map[string]*journeyBuilder),
		produced: make([]bool, len(doc.Sections)),
		claimed:  make([]bool, len(doc.Sections)),
	}

	for i := range doc.Sections {
		e.extractSection(ex, i)
	}

	e.applyCriticalOverrides(ex)

	result := e.finalize(ex)

	if len(result.Journeys) == 0 {
		e.logger.Warn("no journeys extracted from document",
			"document", doc.ID,
			"gaps", len(result.Gaps))
	} else {
		e.logger.Debug("extraction complete",
			"document", doc.ID,
			"journeys", len(result.Journeys),
			"scenarios", len(result.Scenarios),
			"gaps", len(result.Gaps))
	}

	return result, nil
}

// extractSection applies the rule table to one section.
func (e *Extractor) extractSection(ex *extraction, idx int) {
	sec := &ex.doc.Sections[idx]

	// Dedicated scenario headings attach to the nearest ancestor section
	if name := scenarioHeadingName(sec.Heading); name != "" {
		e.extractScenarioHeading(ex, idx, name)
		return
	}

	// Heading rules claim the whole section
	if sec.Heading != "" {
		for _, rule := range e.rules.headingRules() {
			if rule.Match(sec.Heading) {
				e.applyHeadingRule(ex, idx, rule)
				return
			}
		}
	}

	// Item rules claim individual list items
	for _, item := range sec.Items {
		for _, rule := range e.rules.itemRules() {
			if rule.Match(item) {
				if e.applyItemRule(ex, idx, rule, item) {
					ex.produced[idx] = true
				}
				break
			}
		}
	}

	// Inline Given/When/Then runs stand on their own
	if blocks := extractGWT(sec.Content); len(blocks) > 0 {
		jb := ex.ensureJourney(sec.Heading, headingOr(sec.Heading, ex.doc), model.PriorityMedium)
		for bi, b := range blocks {
			jb.addScenario(blockName(sec.Heading, bi, len(blocks)), b.steps())
		}
		ex.produced[idx] = true
	}
}

// extractScenarioHeading handles a "Scenario: name" section: its GWT blocks
// (or list items) become a scenario on the parent section's journey.
func (e *Extractor) extractScenarioHeading(ex *extraction, idx int, name string) {
	sec := &ex.doc.Sections[idx]
	ex.claimed[idx] = true

	var steps []model.Step
	if blocks := extractGWT(sec.Content); len(blocks) > 0 {
		steps = blocks[0].steps()
	} else if len(sec.Items) > 0 {
		for _, item := range sec.Items {
			steps = append(steps, parseStep(item))
		}
	}

	if len(steps) == 0 {
		ex.gap(sec.Heading, "scenario declares no steps")
		return
	}

	parentIdx, parentHeading := ex.parentOf(idx)
	jb := ex.ensureJourney(parentHeading, parentHeading, model.PriorityMedium)
	jb.addScenario(name, steps)
	ex.produced[idx] = true
	if parentIdx >= 0 {
		ex.produced[parentIdx] = true
	}
}

// applyHeadingRule derives content from a section claimed by a heading rule.
func (e *Extractor) applyHeadingRule(ex *extraction, idx int, rule Rule) {
	sec := &ex.doc.Sections[idx]
	ex.claimed[idx] = true
	jb := ex.ensureJourney(sec.Heading, sec.Heading, rule.Priority)

	switch rule.Template {
	case TemplateFlow:
		if len(sec.Items) > 0 {
			steps := make([]model.Step, 0, len(sec.Items))
			for _, item := range sec.Items {
				steps = append(steps, parseStep(item))
			}
			jb.addScenario(sec.Heading, steps)
			ex.produced[idx] = true
		}
		// No items yet: child scenario sections may still fill the journey

	case TemplateChecklist:
		for _, item := range sec.Items {
			jb.addScenario(item, []model.Step{{Action: "verify", Target: item, Expect: item}})
		}
		if len(sec.Items) > 0 {
			ex.produced[idx] = true
		}

	case TemplateUserStory:
		for _, item := range sec.Items {
			e.applyItemRule(ex, idx, rule, item)
		}
	}

	// A flow section can also carry GWT blocks alongside or instead of items
	if blocks := extractGWT(sec.Content); len(blocks) > 0 {
		for bi, b := range blocks {
			jb.addScenario(blockName(sec.Heading, bi, len(blocks)), b.steps())
		}
		ex.produced[idx] = true
	}
}

// applyItemRule derives a journey from a single story-shaped list item.
// Reports whether the item yielded a scenario.
func (e *Extractor) applyItemRule(ex *extraction, idx int, rule Rule, item string) bool {
	sec := &ex.doc.Sections[idx]

	want, outcome, ok := parseStory(item)
	if !ok {
		want, ok = parseCapability(item)
	}
	if !ok || want == "" {
		return false
	}

	jb := ex.ensureJourney(sec.Heading, want, rule.Priority)
	jb.addScenario(want, []model.Step{{Action: "perform", Target: want, Expect: outcome}})
	ex.produced[idx] = true
	return true
}

// ensureJourney returns the builder for (section, name), creating it on first
// use. The journey ID is content-derived so repeated extraction of the same
// document yields identical IDs.
func (ex *extraction) ensureJourney(section, name string, priority model.Priority) *journeyBuilder {
	key := section + "\x00" + model.NormalizeName(name)
	if jb, ok := ex.byKey[key]; ok {
		return jb
	}

	jb := &journeyBuilder{
		journey: model.Journey{
			ID:       model.JourneyID(ex.doc.ID, section, name),
			Name:     name,
			Priority: priority,
			SpecRef: model.SpecRef{
				DocumentID: ex.doc.ID,
				Section:    section,
			},
			SpecVersion: ex.doc.Version,
		},
	}
	ex.byKey[key] = jb
	ex.builders = append(ex.builders, jb)
	return jb
}

// parentOf finds the nearest preceding section with a smaller heading level,
// skipping other scenario headings. Returns index -1 with a fallback heading
// when the scenario has no ancestor.
func (ex *extraction) parentOf(idx int) (int, string) {
	level := ex.doc.Sections[idx].Level
	for i := idx - 1; i >= 0; i-- {
		sec := &ex.doc.Sections[i]
		if sec.Heading == "" || scenarioHeadingName(sec.Heading) != "" {
			continue
		}
		if sec.Level < level {
			return i, sec.Heading
		}
	}
	return -1, headingOr("", ex.doc)
}

// applyCriticalOverrides upgrades journeys matched by explicit critical
// markers or by the risk keyword set. Explicit markers and keyword hits only
// ever raise priority, never lower it.
func (e *Extractor) applyCriticalOverrides(ex *extraction) {
	markers := ex.doc.CriticalMarkers()

	for _, jb := range ex.builders {
		if jb.journey.Priority == model.PriorityCritical {
			continue
		}

		text := jb.searchText()

		for _, marker := range markers {
			if marker != "" && strings.Contains(strings.ToLower(text), strings.ToLower(marker)) {
				jb.journey.Priority = model.PriorityCritical
				break
			}
		}
		if jb.journey.Priority != model.PriorityCritical && criticalKeywordsRe.MatchString(text) {
			jb.journey.Priority = model.PriorityCritical
		}
	}
}

// searchText flattens a journey's identifying text for marker and keyword
// matching.
func (jb *journeyBuilder) searchText() string {
	var sb strings.Builder
	sb.WriteString(jb.journey.Name)
	sb.WriteString(" ")
	sb.WriteString(jb.journey.SpecRef.Section)
	for _, sc := range jb.scenarios {
		sb.WriteString(" ")
		sb.WriteString(sc.Name)
		for _, st := range sc.Steps {
			sb.WriteString(" ")
			sb.WriteString(st.Target)
		}
	}
	return sb.String()
}

// finalize assembles the result: links setup scenarios, copies priorities,
// fills journey scenario lists, and reports gaps for anything unproduced.
func (e *Extractor) finalize(ex *extraction) *Result {
	result := &Result{Gaps: ex.gaps}

	for _, jb := range ex.builders {
		if len(jb.scenarios) == 0 {
			result.Gaps = append(result.Gaps, CoverageGap{
				DocumentID: ex.doc.ID,
				Section:    jb.journey.SpecRef.Section,
				Reason:     "no scenarios could be derived",
			})
			continue
		}

		// First setup-named scenario anchors the rest of the journey
		setupID := ""
		for i := range jb.scenarios {
			if setupNameRe.MatchString(jb.scenarios[i].Name) {
				setupID = jb.scenarios[i].ID
				break
			}
		}

		for i := range jb.scenarios {
			sc := &jb.scenarios[i]
			sc.Priority = jb.journey.Priority
			if setupID != "" && sc.ID != setupID {
				sc.SetupID = setupID
			}
			jb.journey.ScenarioIDs = append(jb.journey.ScenarioIDs, sc.ID)
		}

		result.Journeys = append(result.Journeys, jb.journey)
		result.Scenarios = append(result.Scenarios, jb.scenarios...)
	}

	for i := range ex.doc.Sections {
		if ex.produced[i] || ex.claimed[i] {
			continue
		}
		sec := &ex.doc.Sections[i]
		if gap, reason := sectionGap(sec); gap {
			result.Gaps = append(result.Gaps, CoverageGap{
				DocumentID: ex.doc.ID,
				Section:    sec.Heading,
				Reason:     reason,
			})
		}
	}

	return result
}

// sectionGap decides whether an unproduced section must be reported and why.
// Sections that are only a heading with no content are not gaps.
func sectionGap(sec *source.Section) (bool, string) {
	if len(sec.Items) > 0 {
		return true, "no extraction rule matched its list items"
	}

	prose := sec.Content
	if sec.Heading != "" {
		if idx := strings.Index(prose, "\n"); idx >= 0 {
			prose = prose[idx+1:]
		} else {
			prose = ""
		}
	}
	if strings.TrimSpace(prose) != "" {
		return true, "no actionable content"
	}
	return false, ""
}

// headingOr falls back to the document title, then a generic name, when a
// section has no heading of its own.
func headingOr(heading string, doc *source.Document) string {
	if heading != "" {
		return heading
	}
	if doc.Title != "" {
		return doc.Title
	}
	return "document"
}

// blockName labels an inline GWT scenario, numbering only when a section
// carries more than one.
func blockName(heading string, index, total int) string {
	base := heading
	if base == "" {
		base = "scenario"
	}
	if total == 1 {
		return base
	}
	return fmt.Sprintf("%s %d", base, index+1)
}
