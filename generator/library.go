package generator

import (
	"strconv"
	"strings"
	"text/template"

	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/uaterr"
)

// LibraryVersion identifies the built-in step template library. It appears in
// every artifact header: bumping it after a template change makes regenerated
// artifacts visibly differ even when the journey did not.
const LibraryVersion = "v1"

// actionLines maps each canonical step action to the Go statement rendered
// into the artifact. Every template receives a stepContext.
var actionLines = map[string]string{
	"navigate": `must(t, page.Navigate(ctx, {{q .Route}}))`,
	"click":    `must(t, page.Click(ctx, {{q .Selector}}))`,
	"fill":     `must(t, page.Fill(ctx, {{q .Selector}}, seed[{{q .SeedKey}}]))`,
	"select":   `must(t, page.Select(ctx, {{q .Selector}}, seed[{{q .SeedKey}}]))`,
	"submit":   `must(t, page.Submit(ctx, {{q .Selector}}))`,
	"add":      `must(t, page.Click(ctx, {{q .Selector}}))`,
	"remove":   `must(t, page.Click(ctx, {{q .Selector}}))`,
	"pay":      `must(t, page.Click(ctx, {{q .Selector}}))`,
	"download": `must(t, page.Click(ctx, {{q .Selector}}))`,
	"sign":     `must(t, page.Click(ctx, {{q .Selector}}))`,
	"upload":   `must(t, page.Fill(ctx, {{q .Selector}}, seed[{{q .SeedKey}}]))`,
	"search":   `must(t, page.Fill(ctx, {{q .Selector}}, seed[{{q .SeedKey}}]))`,
	"wait":     `must(t, page.Assert(ctx, generator.ElementPresent({{q .Selector}})))`,
	"scroll":   `must(t, page.Assert(ctx, generator.ElementPresent({{q .Selector}})))`,
	"verify":   `must(t, page.Assert(ctx, generator.TextVisible({{q .ExpectText}})))`,
	"given":    `must(t, page.Navigate(ctx, "/")) // GIVEN {{.Target}}`,
	"when":     `must(t, page.Click(ctx, {{q .Selector}})) // WHEN {{.Target}}`,
	"then":     `must(t, page.Assert(ctx, generator.TextVisible({{q .ExpectText}}))) // THEN {{.Target}}`,
	"perform":  `must(t, page.Click(ctx, {{q .Selector}})) // {{.Target}}`,
}

var tmplFuncs = template.FuncMap{
	"q": strconv.Quote,
}

// stepContext is the data one action line template renders with.
type stepContext struct {
	Index    int
	Action   string
	Target   string
	Expect   string
	Selector string
	Route    string
	SeedKey  string

	// ExpectText is Expect when set, Target otherwise.
	ExpectText string
}

// Library is a compiled, versioned step template set.
type Library struct {
	version string
	actions map[string]*template.Template
}

// DefaultLibrary returns the built-in library.
func DefaultLibrary() *Library {
	l := &Library{
		version: LibraryVersion,
		actions: make(map[string]*template.Template, len(actionLines)),
	}
	for action, src := range actionLines {
		l.actions[action] = template.Must(template.New(action).Funcs(tmplFuncs).Parse(src))
	}
	return l
}

// Version returns the library version string.
func (l *Library) Version() string {
	return l.version
}

// Binds reports whether the library has a template for the action.
func (l *Library) Binds(action string) bool {
	_, ok := l.actions[action]
	return ok
}

// Bind renders the artifact line for one step. A step whose action has no
// template returns GenerationInvalid.
func (l *Library) Bind(journeyID string, index int, step model.Step) (string, error) {
	tmpl, ok := l.actions[step.Action]
	if !ok {
		return "", &uaterr.GenerationInvalid{
			JourneyID: journeyID,
			StepIndex: index,
			Step:      step.Action + " " + step.Target,
			Reason:    "no template binds action " + strconv.Quote(step.Action),
		}
	}

	sc := stepContext{
		Index:      index,
		Action:     step.Action,
		Target:     step.Target,
		Expect:     step.Expect,
		Selector:   SelectorFor(step.Target),
		Route:      RouteFor(step.Target),
		SeedKey:    slugify(step.Target),
		ExpectText: step.Expect,
	}
	if sc.ExpectText == "" {
		sc.ExpectText = step.Target
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, sc); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Slug exposes the shared slug convention: seed keys, data-uat attributes,
// and fixture routes all derive from it.
func Slug(target string) string {
	return slugify(target)
}

// SelectorFor derives the data-uat attribute selector convention shared by
// artifacts, fixture pages, and the page driver.
func SelectorFor(target string) string {
	return `[data-uat="` + slugify(target) + `"]`
}

// RouteFor derives the fixture route a navigation target maps to.
func RouteFor(target string) string {
	s := slugify(target)
	if s == "" {
		return "/"
	}
	return "/" + s
}

// slugify lowercases the target and reduces it to hyphen-separated
// alphanumeric runs. Leading filler words are dropped so "Navigate to the
// cart page" and "the cart page" slug identically.
func slugify(s string) string {
	var sb strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.Trim(sb.String(), "-")
	for _, filler := range []string{"into-the-", "onto-the-", "in-the-", "on-the-", "to-the-", "for-the-", "into-", "onto-", "in-", "on-", "to-", "for-", "the-", "a-", "an-"} {
		if strings.HasPrefix(out, filler) && len(out) > len(filler) {
			out = out[len(filler):]
			break
		}
	}
	return out
}
