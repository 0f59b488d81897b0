// Package a11y scans served pages for accessibility violations: missing
// alternative text, unlabeled form controls, empty interactive elements,
// heading order jumps, and a missing document language.
package a11y

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
)

// Level is a conformance level: checks above the configured level are
// skipped.
type Level string

const (
	LevelA  Level = "A"
	LevelAA Level = "AA"
)

// Violation is one finding on a page.
type Violation struct {
	// Rule identifies the failed check.
	Rule string

	// Level is the conformance level the rule belongs to.
	Level Level

	// Element describes the offending node.
	Element string

	// Message is the human-readable detail.
	Message string

	// Blocking marks violations that fail the scenario; the rest attach as
	// advisory findings.
	Blocking bool
}

// Options configure the scan.
type Options struct {
	// Level is the conformance level to enforce; default AA.
	Level Level

	// AdvisoryRules lists rule names demoted to advisory regardless of
	// their default severity.
	AdvisoryRules []string
}

func (o *Options) withDefaults() Options {
	out := Options{Level: LevelAA}
	if o != nil {
		out = *o
	}
	if out.Level == "" {
		out.Level = LevelAA
	}
	return out
}

// Adapter scans the scenario's entry page.
type Adapter struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// New creates the accessibility adapter.
func New(opts *Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		opts:   opts.withDefaults(),
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "a11y" }

// Capability implements adapter.Adapter.
func (a *Adapter) Capability() adapter.Capability { return adapter.CapabilityAccessibility }

// Execute scans the page the scenario starts on. Blocking violations fail
// the scenario; advisory ones attach without failing it.
func (a *Adapter) Execute(ctx context.Context, sc *model.Scenario, env *adapter.Env) (*model.ToolResult, error) {
	if env == nil || env.BaseURL == "" {
		return nil, errors.New("no execution environment base URL")
	}

	start := time.Now()
	doc, err := a.fetch(ctx, env.BaseURL, entryRoute(sc))
	if err != nil {
		return nil, err
	}

	violations := Scan(doc, a.opts)

	result := &model.ToolResult{
		ScenarioID: sc.ID,
		Adapter:    a.Name(),
		Capability: string(adapter.CapabilityAccessibility),
		RawVerdict: model.VerdictPass,
	}

	advisoryOnly := true
	for _, v := range violations {
		severity := "advisory"
		if v.Blocking {
			severity = "blocking"
			advisoryOnly = false
		}
		result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
			Code:      "a11y-violation",
			Message:   v.Message,
			Selector:  v.Element,
			Violation: v.Rule,
			Severity:  severity,
		})
	}

	switch {
	case len(violations) == 0:
	case advisoryOnly:
		result.RawVerdict = model.VerdictAdvisory
	default:
		result.RawVerdict = model.VerdictFail
	}

	result.Duration = time.Since(start)
	result.Timestamp = time.Now().UTC()
	return result, nil
}

func (a *Adapter) fetch(ctx context.Context, base, route string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+route, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", route, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return html.Parse(strings.NewReader(string(body)))
}

func entryRoute(sc *model.Scenario) string {
	for _, step := range sc.Steps {
		if step.Action == "navigate" {
			return generator.RouteFor(step.Target)
		}
	}
	return "/"
}

// Scan runs every rule at or below the configured level against the parse
// tree, in a fixed rule order.
func Scan(doc *html.Node, opts Options) []Violation {
	opts = opts.withDefaults()
	s := &scanner{opts: opts, labeled: make(map[string]bool)}
	s.collectLabels(doc)
	s.walk(doc, 0)
	s.checkLang(doc)

	advisory := make(map[string]bool, len(opts.AdvisoryRules))
	for _, r := range opts.AdvisoryRules {
		advisory[r] = true
	}
	for i := range s.violations {
		if advisory[s.violations[i].Rule] {
			s.violations[i].Blocking = false
		}
	}
	return s.violations
}

type scanner struct {
	opts       Options
	labeled    map[string]bool // input ids with a matching label[for]
	lastHeader int
	violations []Violation
}

func (s *scanner) add(v Violation) {
	if v.Level == LevelAA && s.opts.Level == LevelA {
		return
	}
	s.violations = append(s.violations, v)
}

// collectLabels gathers label[for] targets ahead of input checks.
func (s *scanner) collectLabels(n *html.Node) {
	if n.Type == html.ElementNode && n.Data == "label" {
		if id := attr(n, "for"); id != "" {
			s.labeled[id] = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.collectLabels(c)
	}
}

func (s *scanner) walk(n *html.Node, depth int) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "img":
			if _, ok := findAttr(n, "alt"); !ok {
				s.add(Violation{
					Rule:     "img-alt",
					Level:    LevelA,
					Element:  describe(n),
					Message:  "image has no alt attribute",
					Blocking: true,
				})
			}

		case "input":
			s.checkInput(n)

		case "button":
			if text(n) == "" && attr(n, "aria-label") == "" {
				s.add(Violation{
					Rule:     "button-name",
					Level:    LevelA,
					Element:  describe(n),
					Message:  "button has no accessible name",
					Blocking: true,
				})
			}

		case "a":
			if attr(n, "href") != "" && text(n) == "" && attr(n, "aria-label") == "" {
				s.add(Violation{
					Rule:     "link-name",
					Level:    LevelA,
					Element:  describe(n),
					Message:  "link has no accessible name",
					Blocking: true,
				})
			}

		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(n.Data[1] - '0')
			if s.lastHeader > 0 && level > s.lastHeader+1 {
				s.add(Violation{
					Rule:    "heading-order",
					Level:   LevelAA,
					Element: describe(n),
					Message: fmt.Sprintf("heading level jumps from h%d to h%d", s.lastHeader, level),
				})
			}
			s.lastHeader = level
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.walk(c, depth+1)
	}
}

func (s *scanner) checkInput(n *html.Node) {
	switch attr(n, "type") {
	case "hidden", "submit", "button", "image":
		return
	}
	if attr(n, "aria-label") != "" || attr(n, "aria-labelledby") != "" {
		return
	}
	if id := attr(n, "id"); id != "" && s.labeled[id] {
		return
	}
	s.add(Violation{
		Rule:     "input-label",
		Level:    LevelA,
		Element:  describe(n),
		Message:  "form control has no associated label",
		Blocking: true,
	})
}

func (s *scanner) checkLang(doc *html.Node) {
	root := findElement(doc, "html")
	if root == nil {
		return
	}
	if attr(root, "lang") == "" {
		s.add(Violation{
			Rule:     "document-lang",
			Level:    LevelA,
			Element:  "<html>",
			Message:  "document has no lang attribute",
			Blocking: true,
		})
	}
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func findAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// text returns the element's flattened text content.
func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// describe renders a short locator for a violating element.
func describe(n *html.Node) string {
	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(n.Data)
	if id := attr(n, "id"); id != "" {
		fmt.Fprintf(&sb, " id=%q", id)
	} else if uat := attr(n, "data-uat"); uat != "" {
		fmt.Fprintf(&sb, " data-uat=%q", uat)
	}
	sb.WriteString(">")
	return sb.String()
}
