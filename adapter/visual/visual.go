// Package visual implements visual regression against stored PNG baselines.
//
// Captures are deterministic layout sketches rendered from the served page
// markup: each element becomes a colored block whose position, indent, and
// width follow document structure. A sketch is not a screenshot, but any
// structural or textual change to the page moves pixels, which is what the
// baseline comparison needs. Swapping in a real browser capture keeps the
// comparison, masking, and artifact logic unchanged.
package visual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
)

// Viewport is one capture size.
type Viewport struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// Mask excludes a known-dynamic rectangle from comparison.
type Mask struct {
	Viewport string `yaml:"viewport"`
	X        int    `yaml:"x"`
	Y        int    `yaml:"y"`
	W        int    `yaml:"w"`
	H        int    `yaml:"h"`
}

// Options configure the adapter.
type Options struct {
	// Tolerance is the fraction of unmasked pixels allowed to differ.
	Tolerance float64

	// Viewports to capture; defaults to desktop and mobile.
	Viewports []Viewport

	// Masks for known-dynamic regions.
	Masks []Mask
}

func (o *Options) withDefaults() Options {
	out := Options{Tolerance: 0.01}
	if o != nil {
		out = *o
	}
	if out.Tolerance <= 0 {
		out.Tolerance = 0.01
	}
	if len(out.Viewports) == 0 {
		out.Viewports = []Viewport{
			{Name: "desktop", Width: 1280, Height: 800},
			{Name: "mobile", Width: 375, Height: 667},
		}
	}
	return out
}

// Adapter compares page captures against per-viewport baselines.
type Adapter struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// New creates the visual adapter.
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
func (a *Adapter) Name() string { return "visual" }

// Capability implements adapter.Adapter.
func (a *Adapter) Capability() adapter.Capability { return adapter.CapabilityVisual }

// Execute captures the scenario's entry page per viewport and compares
// against the stored baselines. A missing baseline is established from the
// current capture and reported as an advisory finding, never a failure.
func (a *Adapter) Execute(ctx context.Context, sc *model.Scenario, env *adapter.Env) (*model.ToolResult, error) {
	if env == nil || env.BaseURL == "" {
		return nil, errors.New("no execution environment base URL")
	}

	start := time.Now()
	result := &model.ToolResult{
		ScenarioID: sc.ID,
		Adapter:    a.Name(),
		Capability: string(adapter.CapabilityVisual),
		RawVerdict: model.VerdictPass,
	}

	doc, err := a.fetch(ctx, env.BaseURL, entryRoute(sc))
	if err != nil {
		return nil, err
	}

	baselineRoot := env.BaselineDir
	if baselineRoot == "" {
		baselineRoot = filepath.Join(env.DataDir, "baselines")
	}

	created := 0
	for _, vp := range a.opts.Viewports {
		current := sketch(doc, vp.Width, vp.Height)
		baselinePath := filepath.Join(baselineRoot, sc.ID, vp.Name+".png")

		baseline, err := loadPNG(baselinePath)
		if os.IsNotExist(err) {
			if err := savePNG(baselinePath, current); err != nil {
				return nil, fmt.Errorf("save baseline %s: %w", vp.Name, err)
			}
			created++
			result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
				Code:     "baseline-created",
				Message:  fmt.Sprintf("baseline established for viewport %s", vp.Name),
				Region:   vp.Name,
				Severity: "advisory",
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load baseline %s: %w", vp.Name, err)
		}

		cmp := compare(baseline, current, masksFor(a.opts.Masks, vp.Name))
		if cmp.ratio <= a.opts.Tolerance {
			continue
		}

		diffPath := filepath.Join(env.DataDir, "artifacts", "visual", sc.ID, vp.Name+"-diff.png")
		if err := savePNG(diffPath, cmp.diff); err != nil {
			return nil, fmt.Errorf("write diff artifact %s: %w", vp.Name, err)
		}

		result.RawVerdict = model.VerdictFail
		result.Artifacts = append(result.Artifacts, diffPath)
		result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
			Code:    "diff-exceeded",
			Message: fmt.Sprintf("viewport %s differs by %.2f%% (tolerance %.2f%%)", vp.Name, cmp.ratio*100, a.opts.Tolerance*100),
			Region:  vp.Name,
		})
	}

	if result.RawVerdict == model.VerdictPass && created > 0 {
		result.RawVerdict = model.VerdictAdvisory
	}

	result.Duration = time.Since(start)
	result.Timestamp = time.Now().UTC()
	return result, nil
}

// fetch loads and parses the page markup.
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

// entryRoute picks the page the scenario starts on.
func entryRoute(sc *model.Scenario) string {
	for _, step := range sc.Steps {
		if step.Action == "navigate" {
			return generator.RouteFor(step.Target)
		}
	}
	return "/"
}

func masksFor(masks []Mask, viewport string) []Mask {
	var out []Mask
	for _, m := range masks {
		if m.Viewport == "" || m.Viewport == viewport {
			out = append(out, m)
		}
	}
	return out
}
