package autofix

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/uatgate/adapter/apicheck"
	"github.com/c360studio/uatgate/artifact"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/verdict"
)

// Failure is everything a signature can inspect when classifying a failed
// scenario: the scenario itself, its journey and generated siblings, the
// decided verdict, and the scenario's recent outcome window.
type Failure struct {
	Scenario *model.Scenario
	Journey  *model.Journey
	Siblings []model.Scenario
	Verdict  verdict.Verdict
	History  []model.Outcome
}

// Proposal is a concrete, not-yet-applied change. Files maps data-dir
// relative paths to full replacement content; Scenario is an updated copy
// when the fix changes steps.
type Proposal struct {
	Summary    string
	Confidence float64
	Files      map[string][]byte
	Scenario   *model.Scenario
}

// Signature is one known-fixable failure pattern. Category names the blocker
// category raised when confidence is too low to touch artifacts.
type Signature struct {
	Name     string
	Category model.BlockerCategory
	match    func(c *classifier, ctx context.Context, f *Failure) (*Proposal, bool)
}

// Library returns the built-in signatures in match order. The first match
// wins, so the more specific patterns come first: a 401 is an expired
// credential before it is contract drift.
func Library() []Signature {
	return []Signature{
		{Name: "stale-selector", Category: model.BlockerConfig, match: (*classifier).matchStaleSelector},
		{Name: "expired-credential", Category: model.BlockerCredential, match: (*classifier).matchExpiredCredential},
		{Name: "contract-drift", Category: model.BlockerConfig, match: (*classifier).matchContractDrift},
		{Name: "missing-fixture", Category: model.BlockerResource, match: (*classifier).matchMissingFixture},
		{Name: "timing-race", Category: model.BlockerResource, match: (*classifier).matchTimingRace},
	}
}

// classifier gives matchers read access to artifacts and the generator used
// for fixture regeneration.
type classifier struct {
	store *artifact.Store
	gen   *generator.Generator
}

// matchStaleSelector proposes replacing a selector the page no longer
// serves with the closest data-uat slug the fixture pages do serve. The
// artifact's selector literal is rewritten through the Go parse tree and the
// scenario's step targets are renamed to match.
func (c *classifier) matchStaleSelector(ctx context.Context, f *Failure) (*Proposal, bool) {
	stale := ""
	for _, d := range f.Verdict.Diagnostics {
		if d.Code == "stale-selector" && d.Selector != "" {
			stale = d.Selector
			break
		}
	}
	if stale == "" {
		return nil, false
	}
	staleSlug := slugOf(stale)
	if staleSlug == "" {
		return nil, false
	}

	best, sim := closestSlug(staleSlug, c.fixtureSlugs(f.Scenario))
	if best == "" {
		return nil, false
	}

	newTarget := strings.ReplaceAll(best, "-", " ")
	newSel := generator.SelectorFor(newTarget)

	p := &Proposal{
		Summary:    fmt.Sprintf("replace selector %s with %s", stale, newSel),
		Confidence: selectorConfidence(sim),
		Files:      make(map[string][]byte),
	}

	if f.Scenario.ArtifactRef != "" {
		if src, err := c.store.Read(f.Scenario.ArtifactRef); err == nil {
			patched, n, rerr := rewriteSelector(ctx, src, stale, newSel)
			if rerr == nil && n > 0 {
				p.Files[f.Scenario.ArtifactRef] = patched
			}
		}
	}
	// Without the literal in the artifact the fix is a step rename only;
	// that is not confident enough to skip review.
	if len(p.Files) == 0 && p.Confidence > 0.78 {
		p.Confidence = 0.78
	}

	upd := copyScenario(f.Scenario)
	changed := false
	for i := range upd.Steps {
		if generator.Slug(upd.Steps[i].Target) == staleSlug {
			upd.Steps[i].Target = newTarget
			changed = true
		}
	}
	if changed {
		p.Scenario = upd
	}
	if !changed && len(p.Files) == 0 {
		return nil, false
	}
	return p, true
}

// matchExpiredCredential catches authenticated contract checks bounced with
// 401 or 403. No automatic change exists for a dead credential: the
// signature always routes to a ticket.
func (c *classifier) matchExpiredCredential(ctx context.Context, f *Failure) (*Proposal, bool) {
	for _, d := range f.Verdict.Diagnostics {
		if d.Code != "contract-violation" || d.Violation != "status" {
			continue
		}
		if strings.Contains(d.Message, "status 401,") || strings.Contains(d.Message, "status 403,") {
			return &Proposal{
				Summary:    "credential rejected: " + d.Message,
				Confidence: 0.3,
			}, true
		}
	}
	return nil, false
}

// matchContractDrift realigns declared contracts with the fixture route
// table when a response's status or content type no longer matches what the
// contract expects. The route table is what the virtualization adapter
// serves, so it is the source of truth.
func (c *classifier) matchContractDrift(ctx context.Context, f *Failure) (*Proposal, bool) {
	drifted := false
	for _, d := range f.Verdict.Diagnostics {
		if d.Code == "contract-violation" && (d.Violation == "status" || d.Violation == "content-type") {
			drifted = true
			break
		}
	}
	if !drifted {
		return nil, false
	}

	contractsRel := filepath.Join("fixtures", f.Scenario.JourneyID, "contracts.yaml")
	data, err := c.store.Read(contractsRel)
	if err != nil {
		return nil, false
	}
	var cs apicheck.ContractSet
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return nil, false
	}

	routes := c.fixtureRoutes(f.Scenario)
	if routes == nil {
		return nil, false
	}

	updated := false
	for i := range cs.Contracts {
		route, ok := routes[routeKey(cs.Contracts[i].Method, cs.Contracts[i].Route)]
		if !ok {
			continue
		}
		contract := &cs.Contracts[i]
		wantStatus := contract.Status
		if wantStatus == 0 {
			wantStatus = 200
		}
		served := route.Status
		if served == 0 {
			served = 200
		}
		if wantStatus != served {
			contract.Status = served
			updated = true
		}
		if contract.ContentType != "" && baseType(contract.ContentType) != baseType(route.ContentType) {
			contract.ContentType = route.ContentType
			updated = true
		}
	}
	if !updated {
		return nil, false
	}

	out, err := yaml.Marshal(cs)
	if err != nil {
		return nil, false
	}
	return &Proposal{
		Summary:    "realign contracts with the fixture route table",
		Confidence: 0.84,
		Files:      map[string][]byte{contractsRel: out},
	}, true
}

// matchMissingFixture regenerates the journey's route table when the
// virtualization preflight reported a broken fixture or a navigation target
// has no fixture page at all.
func (c *classifier) matchMissingFixture(ctx context.Context, f *Failure) (*Proposal, bool) {
	reason := ""
	for _, d := range f.Verdict.Diagnostics {
		if d.Code == "fixture-unhealthy" {
			reason = d.Message
			break
		}
	}

	routesRel := fixtureRef(f.Scenario, "routes.yaml")
	if routesRel == "" {
		routesRel = filepath.Join("fixtures", f.Scenario.JourneyID, "routes.yaml")
	}

	if reason == "" {
		data, err := c.store.Read(routesRel)
		if err != nil {
			reason = "fixture route table missing"
		} else if rs, perr := generator.ParseRoutes(data); perr == nil {
			declared := make(map[string]bool, len(rs.Routes))
			for _, r := range rs.Routes {
				declared[r.Route] = true
			}
			for _, step := range f.Scenario.Steps {
				if step.Action != "navigate" {
					continue
				}
				if route := generator.RouteFor(step.Target); !declared[route] {
					reason = fmt.Sprintf("no fixture serves %s", route)
					break
				}
			}
		}
	}
	if reason == "" {
		return nil, false
	}
	if f.Journey == nil || len(f.Siblings) == 0 {
		return nil, false
	}

	out, err := c.gen.Generate(*f.Journey, f.Siblings)
	if err != nil {
		return nil, false
	}
	data, ok := out.Files[filepath.Join("fixtures", f.Journey.ID, "routes.yaml")]
	if !ok {
		return nil, false
	}
	return &Proposal{
		Summary:    "regenerate fixture route table: " + reason,
		Confidence: 0.92,
		Files:      map[string][]byte{routesRel: data},
	}, true
}

// matchTimingRace handles timeouts that do not reproduce on every run by
// inserting an explicit wait ahead of the scenario's first assertion. The
// artifact and route table are regenerated so the waited-for region exists.
func (c *classifier) matchTimingRace(ctx context.Context, f *Failure) (*Proposal, bool) {
	timedOut := false
	for _, d := range f.Verdict.Diagnostics {
		if d.Code == "timeout" {
			timedOut = true
			break
		}
	}
	if !timedOut || !sawPass(f.History) {
		return nil, false
	}

	insertAt, waitTarget := -1, ""
	for i, step := range f.Scenario.Steps {
		if step.Action == "verify" || step.Action == "then" {
			insertAt = i
			waitTarget = step.Target
			break
		}
	}
	if insertAt < 0 {
		return nil, false
	}
	if insertAt > 0 && f.Scenario.Steps[insertAt-1].Action == "wait" {
		// a previous fix already added the wait
		return nil, false
	}
	if f.Journey == nil || len(f.Siblings) == 0 || f.Scenario.ArtifactRef == "" {
		return nil, false
	}

	upd := copyScenario(f.Scenario)
	steps := make([]model.Step, 0, len(upd.Steps)+1)
	steps = append(steps, upd.Steps[:insertAt]...)
	steps = append(steps, model.Step{Action: "wait", Target: waitTarget})
	steps = append(steps, upd.Steps[insertAt:]...)
	upd.Steps = steps

	siblings := make([]model.Scenario, len(f.Siblings))
	copy(siblings, f.Siblings)
	for i := range siblings {
		if siblings[i].ID == upd.ID {
			siblings[i] = *upd
		}
	}
	out, err := c.gen.Generate(*f.Journey, siblings)
	if err != nil {
		return nil, false
	}
	artifactData, ok := out.Files[f.Scenario.ArtifactRef]
	if !ok {
		return nil, false
	}
	routesRel := filepath.Join("fixtures", f.Journey.ID, "routes.yaml")
	routesData, ok := out.Files[routesRel]
	if !ok {
		return nil, false
	}

	return &Proposal{
		Summary:    fmt.Sprintf("insert wait for %q ahead of the assertion", waitTarget),
		Confidence: 0.75,
		Files: map[string][]byte{
			f.Scenario.ArtifactRef: artifactData,
			routesRel:              routesData,
		},
		Scenario: upd,
	}, true
}

// fixtureSlugs collects every data-uat slug the scenario's fixture pages
// serve, sorted for deterministic candidate order.
func (c *classifier) fixtureSlugs(sc *model.Scenario) []string {
	rel := fixtureRef(sc, "routes.yaml")
	if rel == "" {
		return nil
	}
	data, err := c.store.Read(rel)
	if err != nil {
		return nil
	}
	rs, err := generator.ParseRoutes(data)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var slugs []string
	for _, route := range rs.Routes {
		doc, perr := html.Parse(strings.NewReader(route.Body))
		if perr != nil {
			continue
		}
		collectUATSlugs(doc, seen, &slugs)
	}
	sort.Strings(slugs)
	return slugs
}

// fixtureRoutes indexes the scenario's fixture routes by method and path.
func (c *classifier) fixtureRoutes(sc *model.Scenario) map[string]generator.Route {
	rel := fixtureRef(sc, "routes.yaml")
	if rel == "" {
		return nil
	}
	data, err := c.store.Read(rel)
	if err != nil {
		return nil
	}
	rs, err := generator.ParseRoutes(data)
	if err != nil {
		return nil
	}
	routes := make(map[string]generator.Route, len(rs.Routes))
	for _, r := range rs.Routes {
		routes[routeKey(r.Method, r.Route)] = r
	}
	return routes
}

func collectUATSlugs(n *html.Node, seen map[string]bool, out *[]string) {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "data-uat" && a.Val != "" && !seen[a.Val] {
				seen[a.Val] = true
				*out = append(*out, a.Val)
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectUATSlugs(child, seen, out)
	}
}

// closestSlug scores candidates by how many of the stale slug's hyphen
// tokens they contain. An exact duplicate aborts classification: if the
// fixture already serves the stale selector, the drift is elsewhere.
func closestSlug(stale string, candidates []string) (string, float64) {
	staleTokens := strings.Split(stale, "-")
	best, bestSim := "", 0.0
	for _, cand := range candidates {
		if cand == stale {
			return "", 0
		}
		if sim := tokenContainment(staleTokens, strings.Split(cand, "-")); sim > bestSim {
			best, bestSim = cand, sim
		}
	}
	return best, bestSim
}

func tokenContainment(want, have []string) float64 {
	if len(want) == 0 {
		return 0
	}
	haveSet := make(map[string]bool, len(have))
	for _, t := range have {
		haveSet[t] = true
	}
	hits := 0
	for _, t := range want {
		if haveSet[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

func selectorConfidence(sim float64) float64 {
	switch {
	case sim >= 1:
		return 0.95
	case sim >= 0.5:
		return 0.78
	default:
		return 0.45
	}
}

// slugOf extracts the slug from a [data-uat="..."] selector.
func slugOf(selector string) string {
	const prefix = `[data-uat="`
	if !strings.HasPrefix(selector, prefix) || !strings.HasSuffix(selector, `"]`) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(selector, prefix), `"]`)
}

func fixtureRef(sc *model.Scenario, name string) string {
	for _, ref := range sc.FixtureRefs {
		if filepath.Base(ref) == name {
			return ref
		}
	}
	return ""
}

func routeKey(method, route string) string {
	if method == "" {
		method = "GET"
	}
	return strings.ToUpper(method) + " " + route
}

func baseType(contentType string) string {
	return strings.TrimSpace(strings.Split(contentType, ";")[0])
}

func sawPass(history []model.Outcome) bool {
	for _, o := range history {
		if o == model.OutcomePass {
			return true
		}
	}
	return false
}

func copyScenario(sc *model.Scenario) *model.Scenario {
	upd := *sc
	upd.Steps = make([]model.Step, len(sc.Steps))
	copy(upd.Steps, sc.Steps)
	upd.FixtureRefs = append([]string(nil), sc.FixtureRefs...)
	return &upd
}
