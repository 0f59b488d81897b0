package extractor

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/uatgate/model"
)

// Template names the derivation strategy a rule applies to matched content.
type Template string

const (
	// TemplateFlow treats a section's list items as the sequential steps of
	// a single walkthrough scenario.
	TemplateFlow Template = "flow"

	// TemplateChecklist turns each list item into its own verification
	// scenario.
	TemplateChecklist Template = "checklist"

	// TemplateUserStory derives one journey per story item, with the
	// want-clause as the action and the so-that clause as the expectation.
	TemplateUserStory Template = "user-story"
)

// Applies selects what part of a section a rule's pattern runs against.
type Applies string

const (
	// AppliesHeading matches the rule against section headings.
	AppliesHeading Applies = "heading"

	// AppliesItem matches the rule against individual list items.
	AppliesItem Applies = "item"
)

// Rule maps specification content to a journey template. Rules are evaluated
// in declared order; the first match wins.
type Rule struct {
	// Name identifies the rule in coverage gap reports.
	Name string `yaml:"name"`

	// Applies selects heading or item matching.
	Applies Applies `yaml:"applies"`

	// Pattern is the regular expression the rule matches with.
	Pattern string `yaml:"pattern"`

	// Template is the derivation strategy for matched content.
	Template Template `yaml:"template"`

	// Priority is the inferred priority for derived journeys.
	Priority model.Priority `yaml:"priority"`

	re *regexp.Regexp
}

// Match reports whether the rule's pattern matches the given text.
func (r *Rule) Match(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// RuleSet is an ordered rule table.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// rulesFile is the YAML shape of an on-disk rule table.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// compile validates and compiles every rule pattern.
func (rs *RuleSet) compile() error {
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if r.Applies != AppliesHeading && r.Applies != AppliesItem {
			return fmt.Errorf("rule %s: applies must be %q or %q", r.Name, AppliesHeading, AppliesItem)
		}
		switch r.Template {
		case TemplateFlow, TemplateChecklist, TemplateUserStory:
		default:
			return fmt.Errorf("rule %s: unknown template %q", r.Name, r.Template)
		}
		if !r.Priority.IsValid() {
			return fmt.Errorf("rule %s: invalid priority %q", r.Name, r.Priority)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("rule %s: compile pattern: %w", r.Name, err)
		}
		r.re = re
	}
	return nil
}

// headingRules returns the rules that apply to headings, in order.
func (rs *RuleSet) headingRules() []Rule {
	var out []Rule
	for _, r := range rs.Rules {
		if r.Applies == AppliesHeading {
			out = append(out, r)
		}
	}
	return out
}

// itemRules returns the rules that apply to list items, in order.
func (rs *RuleSet) itemRules() []Rule {
	var out []Rule
	for _, r := range rs.Rules {
		if r.Applies == AppliesItem {
			out = append(out, r)
		}
	}
	return out
}

// DefaultRules returns the built-in rule table. Project rule files extend it;
// file rules run first so they can shadow these.
func DefaultRules() *RuleSet {
	rs := &RuleSet{Rules: []Rule{
		{
			Name:     "flow-section",
			Applies:  AppliesHeading,
			Pattern:  `(?i)\b(flow|journey|walkthrough|use case)s?\b`,
			Template: TemplateFlow,
			Priority: model.PriorityHigh,
		},
		{
			Name:     "acceptance-criteria",
			Applies:  AppliesHeading,
			Pattern:  `(?i)\b(acceptance criteria|requirements|rules)\b`,
			Template: TemplateChecklist,
			Priority: model.PriorityMedium,
		},
		{
			Name:     "user-story",
			Applies:  AppliesItem,
			Pattern:  `(?i)^as an? .+?, i (?:want|need|can|should be able to) .+`,
			Template: TemplateUserStory,
			Priority: model.PriorityMedium,
		},
		{
			Name:     "capability",
			Applies:  AppliesItem,
			Pattern:  `(?i)^(users?|customers?|members?|guests?|admins?|visitors?) (?:can|may|must|should) .+`,
			Template: TemplateUserStory,
			Priority: model.PriorityMedium,
		},
	}}

	// Built-ins are static; a compile failure here is a programming error
	if err := rs.compile(); err != nil {
		panic(fmt.Sprintf("default rules: %v", err))
	}
	return rs
}

// LoadRules reads a rule table from a YAML file and prepends it to the
// built-in defaults.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	rs := &RuleSet{Rules: append(file.Rules, DefaultRules().Rules...)}
	if err := rs.compile(); err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rs, nil
}
