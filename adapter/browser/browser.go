// Package browser executes scenario steps functionally against a
// generator.Page driver. The default driver walks the served fixture
// environment over HTTP; substituting a real browser driver changes nothing
// above this package.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
)

// PageFactory builds the page driver for one execution. Tests substitute a
// fake; the default dials Env.BaseURL.
type PageFactory func(env *adapter.Env) generator.Page

// Adapter interprets scenario steps against a page.
type Adapter struct {
	newPage PageFactory
	logger  *slog.Logger
}

// New creates the browser adapter with the HTTP fixture driver.
func New(logger *slog.Logger) *Adapter {
	return NewWithFactory(func(env *adapter.Env) generator.Page {
		return generator.NewHTTPPage(env.BaseURL)
	}, logger)
}

// NewWithFactory creates the adapter with a custom page driver factory.
func NewWithFactory(factory PageFactory, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{newPage: factory, logger: logger}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "browser" }

// Capability implements adapter.Adapter.
func (a *Adapter) Capability() adapter.Capability { return adapter.CapabilityBrowser }

// Execute walks the scenario's steps in order. The first failing step fails
// the scenario; remaining steps are not attempted. Transport-level failures
// return an error so the executor can record the adapter as unavailable.
func (a *Adapter) Execute(ctx context.Context, sc *model.Scenario, env *adapter.Env) (*model.ToolResult, error) {
	if env == nil || env.BaseURL == "" {
		return nil, errors.New("no execution environment base URL")
	}

	start := time.Now()
	page := a.newPage(env)
	loaded := false

	result := &model.ToolResult{
		ScenarioID: sc.ID,
		Adapter:    a.Name(),
		Capability: string(adapter.CapabilityBrowser),
		RawVerdict: model.VerdictPass,
	}

	for i, step := range sc.Steps {
		err := a.runStep(ctx, page, env, step, &loaded)
		if err == nil {
			continue
		}

		var uerr *url.Error
		if errors.As(err, &uerr) {
			return nil, fmt.Errorf("step %d (%s %s): %w", i, step.Action, step.Target, err)
		}

		result.RawVerdict = model.VerdictFail
		result.Diagnostics = append(result.Diagnostics, diagnose(i, step, err))
		a.logger.Debug("step failed",
			"scenario", sc.ID,
			"step", i,
			"action", step.Action,
			"error", err)
		break
	}

	result.Duration = time.Since(start)
	result.Timestamp = time.Now().UTC()
	return result, nil
}

// runStep executes one step. The loaded flag tracks whether a page has been
// navigated yet; steps that need a page trigger a load of the index route.
func (a *Adapter) runStep(ctx context.Context, page generator.Page, env *adapter.Env, step model.Step, loaded *bool) error {
	ensure := func() error {
		if *loaded {
			return nil
		}
		if err := page.Navigate(ctx, "/"); err != nil {
			return err
		}
		*loaded = true
		return nil
	}

	switch step.Action {
	case "navigate":
		if err := page.Navigate(ctx, generator.RouteFor(step.Target)); err != nil {
			return err
		}
		*loaded = true

	case "given":
		if err := ensure(); err != nil {
			return err
		}

	case "click", "add", "remove", "pay", "download", "sign", "when", "perform":
		if err := ensure(); err != nil {
			return err
		}
		if err := page.Click(ctx, generator.SelectorFor(step.Target)); err != nil {
			return err
		}

	case "fill", "upload", "search":
		if err := ensure(); err != nil {
			return err
		}
		sel := generator.SelectorFor(step.Target)
		if err := page.Fill(ctx, sel, env.SeedValue(generator.Slug(step.Target))); err != nil {
			return err
		}

	case "select":
		if err := ensure(); err != nil {
			return err
		}
		if err := page.Select(ctx, generator.SelectorFor(step.Target), env.SeedValue(generator.Slug(step.Target))); err != nil {
			return err
		}

	case "submit":
		if err := ensure(); err != nil {
			return err
		}
		if err := page.Submit(ctx, generator.SelectorFor(step.Target)); err != nil {
			return err
		}

	case "wait", "scroll":
		if err := ensure(); err != nil {
			return err
		}
		if err := page.Assert(ctx, generator.ElementPresent(generator.SelectorFor(step.Target))); err != nil {
			return err
		}

	case "verify", "then":
		if err := ensure(); err != nil {
			return err
		}
		text := step.Expect
		if text == "" {
			text = step.Target
		}
		if err := page.Assert(ctx, generator.TextVisible(text)); err != nil {
			return err
		}

	default:
		return fmt.Errorf("no interpretation for action %q", step.Action)
	}

	// Steps with an expectation check it regardless of the action
	if step.Expect != "" && step.Action != "verify" && step.Action != "then" {
		if err := ensure(); err != nil {
			return err
		}
		if err := page.Assert(ctx, generator.TextVisible(step.Expect)); err != nil {
			return &expectError{err}
		}
	}

	return nil
}

// expectError marks a failure of a step's trailing expectation, as opposed
// to the step's own interaction failing.
type expectError struct{ err error }

func (e *expectError) Error() string { return e.err.Error() }
func (e *expectError) Unwrap() error { return e.err }

// diagnose classifies a step failure into a structured diagnostic.
func diagnose(index int, step model.Step, err error) model.Diagnostic {
	d := model.Diagnostic{
		Code:    "step-failed",
		Message: fmt.Sprintf("step %d (%s %s): %v", index, step.Action, step.Target, err),
	}

	if errors.Is(err, generator.ErrAssertion) {
		var ee *expectError
		switch {
		case step.Action == "verify", step.Action == "then", errors.As(err, &ee):
			d.Code = "assertion-failed"
		default:
			d.Code = "stale-selector"
			d.Selector = generator.SelectorFor(step.Target)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		d.Code = "timeout"
	}
	return d
}
