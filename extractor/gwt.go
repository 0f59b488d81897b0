package extractor

import (
	"regexp"
	"strings"

	"github.com/c360studio/uatgate/model"
)

// BDD-style scenario patterns. Spec authors write these either as dedicated
// "Scenario:" headings or as bold GIVEN/WHEN/THEN runs inside a section.
var (
	scenarioHeadingRe = regexp.MustCompile(`(?i)^scenario:\s*(.+)$`)

	givenWhenThenRe = regexp.MustCompile(`(?is)(?:\*\*GIVEN\*\*|\*Given\*|Given:)\s*(.+?)(?:\*\*WHEN\*\*|\*When\*|When:)\s*(.+?)(?:\*\*THEN\*\*|\*Then\*|Then:)\s*(.+?)(?:\n\n|$)`)

	givenRe = regexp.MustCompile(`(?i)\*\*GIVEN\*\*\s+(.+)`)
	whenRe  = regexp.MustCompile(`(?i)\*\*WHEN\*\*\s+(.+)`)
	thenRe  = regexp.MustCompile(`(?i)\*\*THEN\*\*\s+(.+)`)
)

// gwtBlock is one extracted Given/When/Then triple.
type gwtBlock struct {
	Name  string
	Given string
	When  string
	Then  string
}

// scenarioHeadingName returns the scenario name when the heading declares a
// BDD scenario, or "" otherwise.
func scenarioHeadingName(heading string) string {
	if m := scenarioHeadingRe.FindStringSubmatch(strings.TrimSpace(heading)); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// extractGWT pulls every Given/When/Then run out of a section body. Blocks
// are returned in document order; incomplete runs fall back to individual
// marker matching so a missing THEN still yields a usable block.
func extractGWT(content string) []gwtBlock {
	var blocks []gwtBlock

	matches := givenWhenThenRe.FindAllStringSubmatch(content, -1)
	for _, m := range matches {
		blocks = append(blocks, gwtBlock{
			Given: cleanClause(m[1]),
			When:  cleanClause(m[2]),
			Then:  cleanClause(m[3]),
		})
	}
	if len(blocks) > 0 {
		return blocks
	}

	// No complete triple; try individual markers
	var b gwtBlock
	if m := givenRe.FindStringSubmatch(content); len(m) > 1 {
		b.Given = cleanClause(m[1])
	}
	if m := whenRe.FindStringSubmatch(content); len(m) > 1 {
		b.When = cleanClause(m[1])
	}
	if m := thenRe.FindStringSubmatch(content); len(m) > 1 {
		b.Then = cleanClause(m[1])
	}
	if b.Given == "" && b.When == "" && b.Then == "" {
		return nil
	}
	return []gwtBlock{b}
}

// steps converts a GWT block into scenario steps.
func (b gwtBlock) steps() []model.Step {
	var steps []model.Step
	if b.Given != "" {
		steps = append(steps, model.Step{Action: "given", Target: b.Given})
	}
	if b.When != "" {
		steps = append(steps, model.Step{Action: "when", Target: b.When})
	}
	if b.Then != "" {
		steps = append(steps, model.Step{Action: "then", Target: b.Then, Expect: b.Then})
	}
	return steps
}

// cleanClause normalizes a Given/When/Then clause: strips residual bold
// markers, folds newlines, and collapses space runs.
func cleanClause(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "**")
	s = strings.TrimSuffix(s, "*")
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}
