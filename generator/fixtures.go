package generator

import (
	"fmt"
	"html"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/uatgate/model"
)

// Route is one canned response the virtualization adapter serves.
type Route struct {
	Route       string `yaml:"route"`
	Method      string `yaml:"method"`
	Status      int    `yaml:"status"`
	ContentType string `yaml:"content_type"`
	Body        string `yaml:"body"`
	LatencyMS   int    `yaml:"latency_ms,omitempty"`
}

// RouteSet is the parsed shape of a routes.yaml fixture.
type RouteSet struct {
	Routes []Route `yaml:"routes"`
}

// seedFile is the parsed shape of a seed.yaml fixture.
type seedFile struct {
	Seed map[string]string `yaml:"seed"`
}

// ParseRoutes decodes a routes.yaml fixture.
func ParseRoutes(data []byte) (*RouteSet, error) {
	var rs RouteSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse routes fixture: %w", err)
	}
	return &rs, nil
}

// LoadRoutes reads and decodes a routes.yaml fixture from disk.
func LoadRoutes(path string) (*RouteSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes fixture: %w", err)
	}
	return ParseRoutes(data)
}

// LoadSeed reads a seed.yaml fixture. An empty path yields an empty seed.
func LoadSeed(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed fixture: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse seed fixture: %w", err)
	}
	if sf.Seed == nil {
		sf.Seed = map[string]string{}
	}
	return sf.Seed, nil
}

// seedValue picks a deterministic sample value for an input target.
func seedValue(target string) string {
	lower := strings.ToLower(target)
	switch {
	case strings.Contains(lower, "email"):
		return "uat@example.test"
	case strings.Contains(lower, "password"):
		return "uat-Passw0rd!"
	case strings.Contains(lower, "card"):
		return "4242424242424242"
	case strings.Contains(lower, "phone"):
		return "+15550100000"
	case strings.Contains(lower, "address"):
		return "1 Example Way"
	case strings.Contains(lower, "name"):
		return "UAT Tester"
	case strings.Contains(lower, "search"):
		return "uat query"
	default:
		return "uat-" + slugify(target)
	}
}

// buildSeed collects one seed entry per distinct input target across the
// journey's scenarios.
func buildSeed(scenarios []model.Scenario) map[string]string {
	seed := make(map[string]string)
	for _, sc := range scenarios {
		for _, step := range sc.Steps {
			switch step.Action {
			case "fill", "select", "upload", "search":
				key := slugify(step.Target)
				if key != "" {
					seed[key] = seedValue(step.Target)
				}
			}
		}
	}
	return seed
}

// renderSeed writes the seed fixture with sorted keys.
func renderSeed(journey model.Journey, seed map[string]string) []byte {
	keys := make([]string, 0, len(seed))
	for k := range seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Seed data for journey %s (%s), generated by uatgate.\n", journey.Name, journey.ID)
	if len(keys) == 0 {
		sb.WriteString("seed: {}\n")
		return []byte(sb.String())
	}

	sb.WriteString("seed:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %s: %s\n", k, strconv.Quote(seed[k]))
	}
	return []byte(sb.String())
}

// pageElements is everything a fixture page must carry so the journey's
// steps can execute against it.
type pageElements struct {
	buttons []string // click/submit/when targets
	inputs  []string // fill/select targets
	regions []string // wait/scroll targets
	texts   []string // verify/then expectations
}

// buildRoutes derives the mock route table: an index page plus one page per
// navigation target, each carrying every element the journey interacts with.
func buildRoutes(journey model.Journey, scenarios []model.Scenario) []Route {
	elems := collectElements(scenarios)

	routeSet := map[string]bool{"/": true}
	for _, sc := range scenarios {
		for _, step := range sc.Steps {
			if step.Action == "navigate" {
				routeSet[RouteFor(step.Target)] = true
			}
		}
	}

	paths := make([]string, 0, len(routeSet))
	for p := range routeSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	routes := make([]Route, 0, len(paths))
	for _, p := range paths {
		title := journey.Name
		if p != "/" {
			title = strings.ReplaceAll(strings.TrimPrefix(p, "/"), "-", " ")
		}
		routes = append(routes, Route{
			Route:       p,
			Method:      "GET",
			Status:      200,
			ContentType: "text/html; charset=utf-8",
			Body:        fixturePage(title, elems),
		})
	}
	return routes
}

// collectElements gathers the distinct interactive elements and expected
// texts across all scenarios, sorted for stable output.
func collectElements(scenarios []model.Scenario) pageElements {
	buttons := make(map[string]string)
	inputs := make(map[string]string)
	regions := make(map[string]string)
	texts := make(map[string]bool)

	for _, sc := range scenarios {
		for _, step := range sc.Steps {
			key := slugify(step.Target)
			switch step.Action {
			case "click", "submit", "add", "remove", "pay", "download", "sign", "when", "perform":
				if key != "" {
					buttons[key] = step.Target
				}
			case "fill", "select", "upload", "search":
				if key != "" {
					inputs[key] = step.Target
				}
			case "wait", "scroll":
				if key != "" {
					regions[key] = step.Target
				}
			case "verify", "then":
				if t := expectText(step); t != "" {
					texts[t] = true
				}
			}
			if step.Action != "verify" && step.Action != "then" && step.Expect != "" {
				texts[step.Expect] = true
			}
		}
	}

	var elems pageElements
	elems.buttons = sortedKeys(buttons)
	elems.inputs = sortedKeys(inputs)
	elems.regions = sortedKeys(regions)
	for t := range texts {
		elems.texts = append(elems.texts, t)
	}
	sort.Strings(elems.texts)
	return elems
}

func expectText(step model.Step) string {
	if step.Expect != "" {
		return step.Expect
	}
	return step.Target
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// fixturePage renders the stand-in HTML page a journey executes against. The
// markup satisfies the accessibility scan: lang attribute, labeled inputs,
// non-empty buttons.
func fixturePage(title string, elems pageElements) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head><meta charset=\"utf-8\"><title>")
	sb.WriteString(html.EscapeString(title))
	sb.WriteString("</title></head>\n")
	sb.WriteString("<body>\n<main>\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", html.EscapeString(title))

	for _, key := range elems.buttons {
		fmt.Fprintf(&sb, "<button type=\"button\" data-uat=%q>%s</button>\n",
			key, html.EscapeString(labelFor(key)))
	}
	for _, key := range elems.inputs {
		fmt.Fprintf(&sb, "<label for=%q>%s</label>\n", key, html.EscapeString(labelFor(key)))
		fmt.Fprintf(&sb, "<input id=%q name=%q data-uat=%q>\n", key, key, key)
	}
	for _, key := range elems.regions {
		fmt.Fprintf(&sb, "<div data-uat=%q>%s</div>\n", key, html.EscapeString(labelFor(key)))
	}
	for _, text := range elems.texts {
		fmt.Fprintf(&sb, "<p>%s</p>\n", html.EscapeString(text))
	}

	sb.WriteString("</main>\n</body>\n</html>\n")
	return sb.String()
}

// labelFor turns a slug back into display text.
func labelFor(key string) string {
	return strings.ReplaceAll(key, "-", " ")
}

// renderRoutes writes the route fixture, bodies as literal block scalars so
// no HTML escaping is needed.
func renderRoutes(routes []Route) []byte {
	var sb strings.Builder
	sb.WriteString("# Mock routes served by the virtualization adapter, generated by uatgate.\n")
	if len(routes) == 0 {
		sb.WriteString("routes: []\n")
		return []byte(sb.String())
	}

	sb.WriteString("routes:\n")
	for _, r := range routes {
		fmt.Fprintf(&sb, "  - route: %s\n", r.Route)
		fmt.Fprintf(&sb, "    method: %s\n", r.Method)
		fmt.Fprintf(&sb, "    status: %d\n", r.Status)
		fmt.Fprintf(&sb, "    content_type: %s\n", r.ContentType)
		if r.LatencyMS > 0 {
			fmt.Fprintf(&sb, "    latency_ms: %d\n", r.LatencyMS)
		}
		sb.WriteString("    body: |\n")
		for _, line := range strings.Split(strings.TrimRight(r.Body, "\n"), "\n") {
			sb.WriteString("      ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return []byte(sb.String())
}
