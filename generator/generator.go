package generator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/uaterr"
)

// artifactSrc renders one scenario into a build-tagged Go test file. The tag
// keeps artifacts out of ordinary builds; the executor interprets scenario
// steps directly and treats the artifact as the reviewable record.
const artifactSrc = `//go:build uatartifact

// Code generated by uatgate (template library {{.LibraryVersion}}). DO NOT EDIT.
//
// Journey:  {{.JourneyName}} ({{.JourneyID}})
// Scenario: {{.ScenarioName}} ({{.ScenarioID}})
// Spec:     {{.DocumentID}} @ {{.SpecVersion}}

package uat

import (
	"context"
	"testing"
{{- if .UsesGenerator}}

	"github.com/c360studio/uatgate/generator"
{{- end}}
)

func Test{{.TestName}}(t *testing.T) {
	ctx := context.Background()
	page, seed := harnessPage(t)
{{- if not .UsesSeed}}
	_ = seed
{{- end}}

{{range .Lines}}	{{.}}
{{end -}}
}
`

// harnessSrc is written once per journey directory and wires artifacts to the
// served fixture environment.
const harnessSrc = `//go:build uatartifact

// Code generated by uatgate (template library {{.LibraryVersion}}). DO NOT EDIT.

package uat

import (
	"os"
	"testing"

	"github.com/c360studio/uatgate/generator"
)

func harnessPage(t *testing.T) (generator.Page, map[string]string) {
	t.Helper()
	base := os.Getenv("UATGATE_BASE_URL")
	if base == "" {
		t.Skip("UATGATE_BASE_URL not set; run artifacts through the uatgate executor")
	}
	seed, err := generator.LoadSeed(os.Getenv("UATGATE_SEED"))
	if err != nil {
		t.Fatal(err)
	}
	return generator.NewHTTPPage(base), seed
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
`

var (
	artifactTmpl = template.Must(template.New("artifact").Parse(artifactSrc))
	harnessTmpl  = template.Must(template.New("harness").Parse(harnessSrc))
)

// Generator renders journeys into artifacts and fixtures.
type Generator struct {
	lib    *Library
	logger *slog.Logger
}

// New creates a generator. A nil library uses the built-in default.
func New(lib *Library, logger *slog.Logger) *Generator {
	if lib == nil {
		lib = DefaultLibrary()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{lib: lib, logger: logger}
}

// Output is the result of generating one journey.
type Output struct {
	// Scenarios are updated copies: artifact and fixture refs set, unbindable
	// scenarios marked skipped with a diagnostic.
	Scenarios []model.Scenario

	// Files maps data-dir-relative paths to rendered content.
	Files map[string][]byte

	// Skipped counts scenarios that could not be generated.
	Skipped int
}

// artifactData is the artifact template context.
type artifactData struct {
	LibraryVersion string
	JourneyID      string
	JourneyName    string
	ScenarioID     string
	ScenarioName   string
	DocumentID     string
	SpecVersion    string
	TestName       string
	Lines          []string
	UsesSeed       bool
	UsesGenerator  bool
}

// Generate renders the artifacts and fixtures for one journey. Scenarios with
// steps no template binds are marked skipped and kept; only an internal
// rendering failure returns an error.
func (g *Generator) Generate(journey model.Journey, scenarios []model.Scenario) (*Output, error) {
	out := &Output{Files: make(map[string][]byte)}

	seedPath := filepath.Join("fixtures", journey.ID, "seed.yaml")
	routesPath := filepath.Join("fixtures", journey.ID, "routes.yaml")
	out.Files[seedPath] = renderSeed(journey, buildSeed(scenarios))
	out.Files[routesPath] = renderRoutes(buildRoutes(journey, scenarios))

	harness, err := renderTemplate(harnessTmpl, artifactData{LibraryVersion: g.lib.Version()})
	if err != nil {
		return nil, fmt.Errorf("render harness for %s: %w", journey.ID, err)
	}
	out.Files[filepath.Join("artifacts", journey.ID, "harness_test.go")] = harness

	for _, sc := range scenarios {
		if sc.JourneyID != journey.ID {
			return nil, fmt.Errorf("scenario %s belongs to %s, not %s", sc.ID, sc.JourneyID, journey.ID)
		}

		var lines []string
		var bindErr error
		if len(sc.Steps) == 0 {
			bindErr = &uaterr.GenerationInvalid{
				JourneyID: journey.ID,
				Step:      sc.Name,
				Reason:    "scenario has no steps",
			}
		} else {
			lines, bindErr = g.bindSteps(journey.ID, sc.Steps)
		}
		if bindErr != nil {
			var gi *uaterr.GenerationInvalid
			if !errors.As(bindErr, &gi) {
				return nil, fmt.Errorf("render scenario %s: %w", sc.ID, bindErr)
			}
			sc.Status = model.ScenarioSkipped
			sc.Diagnostic = bindErr.Error()
			out.Skipped++
			out.Scenarios = append(out.Scenarios, sc)
			g.logger.Warn("scenario skipped: step binds no template",
				"journey", journey.ID,
				"scenario", sc.ID,
				"step", gi.StepIndex)
			continue
		}

		data := artifactData{
			LibraryVersion: g.lib.Version(),
			JourneyID:      journey.ID,
			JourneyName:    journey.Name,
			ScenarioID:     sc.ID,
			ScenarioName:   sc.Name,
			DocumentID:     journey.SpecRef.DocumentID,
			SpecVersion:    journey.SpecVersion,
			TestName:       testName(sc),
			Lines:          lines,
		}
		for _, line := range lines {
			if strings.Contains(line, "seed[") {
				data.UsesSeed = true
			}
			if strings.Contains(line, "generator.") {
				data.UsesGenerator = true
			}
		}
		rendered, err := renderTemplate(artifactTmpl, data)
		if err != nil {
			return nil, fmt.Errorf("render scenario %s: %w", sc.ID, err)
		}

		artifactPath := filepath.Join("artifacts", journey.ID, artifactFileName(sc.ID))
		out.Files[artifactPath] = rendered

		sc.ArtifactRef = artifactPath
		sc.FixtureRefs = []string{seedPath, routesPath}
		out.Scenarios = append(out.Scenarios, sc)
	}

	g.logger.Debug("generation complete",
		"journey", journey.ID,
		"scenarios", len(out.Scenarios),
		"skipped", out.Skipped,
		"files", len(out.Files))

	return out, nil
}

// bindSteps renders every step line, failing on the first unbindable step.
func (g *Generator) bindSteps(journeyID string, steps []model.Step) ([]string, error) {
	lines := make([]string, 0, len(steps))
	for i, step := range steps {
		line, err := g.lib.Bind(journeyID, i, step)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Write persists every rendered file below root, creating directories as
// needed. Paths are written in sorted order so repeated runs touch files in
// the same sequence.
func (o *Output) Write(root string) error {
	paths := make([]string, 0, len(o.Files))
	for p := range o.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
		if err := os.WriteFile(full, o.Files[p], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	return nil
}

func renderTemplate(tmpl *template.Template, data artifactData) ([]byte, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// artifactFileName turns a scenario ID into its artifact file name.
func artifactFileName(scenarioID string) string {
	return strings.ReplaceAll(scenarioID, "-", "_") + "_test.go"
}

// testName derives the Go test function name from the scenario, suffixed with
// the ID hash so same-named scenarios in one journey stay distinct.
func testName(sc model.Scenario) string {
	var sb strings.Builder
	upper := true
	for _, r := range sc.Name {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			if upper {
				sb.WriteString(strings.ToUpper(string(r)))
				upper = false
			} else {
				sb.WriteRune(r)
			}
		default:
			upper = true
		}
	}
	name := sb.String()
	if name == "" {
		name = "Scenario"
	}
	return name + "_" + strings.TrimPrefix(sc.ID, "scn-")
}
