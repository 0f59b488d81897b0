// Package executor schedules scenario × adapter units on a bounded worker
// pool and streams terminal unit results to the result processor. The pool
// never aggregates verdicts itself.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/config"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/uaterr"
)

// Unit is one scenario executed by one adapter.
type Unit struct {
	Scenario *model.Scenario
	Adapter  adapter.Adapter
}

// Result is the terminal outcome of one unit.
type Result struct {
	ScenarioID string
	JourneyID  string
	Adapter    string
	Capability string

	// Tool is the adapter's result; nil when Err is set or the unit was
	// skipped.
	Tool *model.ToolResult

	// Err is set when the unit could not produce a result: an exhausted
	// timeout (uaterr.ExecutionTimeout) or an adapter-level failure
	// (uaterr.AdapterUnavailable).
	Err error

	// Skipped marks units never executed because their setup scenario did
	// not pass.
	Skipped    bool
	SkipReason string

	// Attempts is how many executions the unit consumed.
	Attempts int
}

// Options bound the pool.
type Options struct {
	// Workers bounds parallel units; default 4.
	Workers int

	// ScenarioTimeout is the per-attempt deadline; default 2m.
	ScenarioTimeout time.Duration

	// MaxRetries bounds retries after the first attempt; default 3. Only
	// timeouts are retried.
	MaxRetries int

	// InitialBackoff is the first retry delay; default 15s.
	InitialBackoff time.Duration

	// MaxBackoff caps the retry delay; default 2m.
	MaxBackoff time.Duration
}

// OptionsFrom maps the execution config section onto pool options.
func OptionsFrom(cfg config.ExecutionConfig) Options {
	return Options{
		Workers:         cfg.WorkerConcurrency,
		ScenarioTimeout: cfg.GetScenarioTimeout(),
		MaxRetries:      cfg.MaxRetries,
		InitialBackoff:  cfg.GetInitialBackoff(),
		MaxBackoff:      cfg.GetMaxBackoff(),
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.ScenarioTimeout <= 0 {
		o.ScenarioTimeout = 2 * time.Minute
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 15 * time.Second
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// Executor runs units on a bounded pool.
type Executor struct {
	opts   Options
	logger *slog.Logger

	inFlight atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
}

// New creates an executor.
func New(opts Options, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{opts: opts.withDefaults(), logger: logger}
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	InFlight int64
	Executed int64
	Failed   int64
}

// Stats returns the current pool counters.
func (e *Executor) Stats() Stats {
	return Stats{
		InFlight: e.inFlight.Load(),
		Executed: e.executed.Load(),
		Failed:   e.failed.Load(),
	}
}

// UnitsFor builds the scenario × adapter cross product, excluding scenarios
// already in a terminal status. Quarantined scenarios stay in: they keep
// executing and reporting.
func UnitsFor(scenarios []*model.Scenario, adapters []adapter.Adapter) []Unit {
	var units []Unit
	for _, sc := range scenarios {
		if sc.Status.IsTerminal() {
			continue
		}
		for _, a := range adapters {
			units = append(units, Unit{Scenario: sc, Adapter: a})
		}
	}
	return units
}

// group tracks the units of one scenario so setup gating can dispatch or
// skip dependents when the whole scenario completes.
type group struct {
	id        string
	journeyID string
	setupID   string
	units     []Unit
	remaining int
	passed    bool
}

// unitDone is the pool-internal completion record. Aborted units were
// cancelled before starting and produce no caller-visible result.
type unitDone struct {
	result  Result
	aborted bool
}

// Run dispatches the units and returns a channel of terminal results, closed
// once every dispatched unit has completed. Within a journey, units of a
// scenario with a SetupID are held until the setup scenario's units all pass;
// a failed setup skips its dependents. Cancelling the context stops
// dispatching new units while in-flight units finish under their own
// deadline. The caller must drain the channel.
func (e *Executor) Run(ctx context.Context, env *adapter.Env, units []Unit) <-chan Result {
	out := make(chan Result)

	go func() {
		defer close(out)

		retries := NewRetryManager(e.opts.InitialBackoff, e.opts.MaxBackoff)
		sem := make(chan struct{}, e.opts.Workers)
		done := make(chan unitDone)
		var wg sync.WaitGroup

		groups, order := buildGroups(units)
		dependents := make(map[string][]*group)

		dispatch := func(g *group) {
			for _, u := range g.units {
				wg.Add(1)
				go e.runUnit(ctx, env, u, retries, sem, &wg, done)
			}
		}

		expect := 0
		for _, g := range order {
			setup := groups[g.setupID]
			if g.setupID == "" || setup == nil || setup.journeyID != g.journeyID {
				expect += len(g.units)
				dispatch(g)
				continue
			}
			dependents[g.setupID] = append(dependents[g.setupID], g)
		}

		// completeGroup dispatches or skips the finished group's dependents.
		// Skips cascade: a skipped dependent completes immediately as not
		// passed. Cancellation leaves dependents undispatched.
		var completeGroup func(g *group)
		completeGroup = func(g *group) {
			for _, dep := range dependents[g.id] {
				if ctx.Err() != nil {
					continue
				}
				if g.passed {
					expect += len(dep.units)
					dispatch(dep)
					continue
				}
				for _, u := range dep.units {
					out <- Result{
						ScenarioID: u.Scenario.ID,
						JourneyID:  u.Scenario.JourneyID,
						Adapter:    u.Adapter.Name(),
						Capability: string(u.Adapter.Capability()),
						Skipped:    true,
						SkipReason: fmt.Sprintf("setup scenario %s did not pass", g.id),
					}
				}
				dep.passed = false
				completeGroup(dep)
			}
		}

		for expect > 0 {
			d := <-done
			expect--

			g := groups[d.result.ScenarioID]
			g.remaining--

			if d.aborted {
				g.passed = false
			} else {
				if !unitPassed(d.result) {
					g.passed = false
				}
				out <- d.result
			}

			if g.remaining == 0 {
				completeGroup(g)
			}
		}
		wg.Wait()
	}()

	return out
}

// buildGroups indexes units by scenario, preserving first-seen order. Setup
// cycles are broken by clearing the edge that closes the loop.
func buildGroups(units []Unit) (map[string]*group, []*group) {
	groups := make(map[string]*group)
	var order []*group
	for _, u := range units {
		g, ok := groups[u.Scenario.ID]
		if !ok {
			g = &group{
				id:        u.Scenario.ID,
				journeyID: u.Scenario.JourneyID,
				setupID:   u.Scenario.SetupID,
				passed:    true,
			}
			groups[u.Scenario.ID] = g
			order = append(order, g)
		}
		g.units = append(g.units, u)
		g.remaining++
	}

	for _, g := range order {
		seen := map[string]bool{g.id: true}
		for cur := groups[g.setupID]; cur != nil; cur = groups[cur.setupID] {
			if seen[cur.id] {
				g.setupID = ""
				break
			}
			seen[cur.id] = true
		}
	}
	return groups, order
}

// unitPassed reports whether the unit's outcome keeps its scenario eligible
// as a setup prerequisite.
func unitPassed(r Result) bool {
	if r.Err != nil || r.Tool == nil {
		return false
	}
	return r.Tool.RawVerdict == model.VerdictPass || r.Tool.RawVerdict == model.VerdictAdvisory
}

// runUnit acquires a pool slot and executes one unit to a terminal outcome.
// Units cancelled before acquiring a slot abort without a result.
func (e *Executor) runUnit(ctx context.Context, env *adapter.Env, u Unit, retries *RetryManager, sem chan struct{}, wg *sync.WaitGroup, done chan<- unitDone) {
	defer wg.Done()

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		done <- unitDone{aborted: true, result: Result{ScenarioID: u.Scenario.ID}}
		return
	}
	if ctx.Err() != nil {
		done <- unitDone{aborted: true, result: Result{ScenarioID: u.Scenario.ID}}
		return
	}

	e.inFlight.Add(1)
	result := e.execute(ctx, env, u, retries)
	e.inFlight.Add(-1)

	e.executed.Add(1)
	if !unitPassed(result) {
		e.failed.Add(1)
	}
	done <- unitDone{result: result}
}

// execute runs the unit with timeout retries. Each attempt gets a fresh
// deadline detached from run cancellation so an in-flight attempt always
// reaches its own terminal state. Adapter-level failures are not retried;
// the remaining adapters for the scenario run independently.
func (e *Executor) execute(ctx context.Context, env *adapter.Env, u Unit, retries *RetryManager) Result {
	name := u.Adapter.Name()
	result := Result{
		ScenarioID: u.Scenario.ID,
		JourneyID:  u.Scenario.JourneyID,
		Adapter:    name,
		Capability: string(u.Adapter.Capability()),
	}

	for {
		attempt := retries.Record(u.Scenario.ID, name)
		result.Attempts = attempt

		unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.ScenarioTimeout)
		tool, err := u.Adapter.Execute(unitCtx, u.Scenario, env)
		timedOut := err != nil && (errors.Is(err, context.DeadlineExceeded) || unitCtx.Err() != nil)
		cancel()

		if err == nil {
			tool.Attempt = attempt
			result.Tool = tool
			return result
		}

		if !timedOut {
			result.Err = &uaterr.AdapterUnavailable{Adapter: name, Reason: err.Error(), Err: err}
			return result
		}

		result.Err = &uaterr.ExecutionTimeout{
			ScenarioID: u.Scenario.ID,
			Adapter:    name,
			Timeout:    e.opts.ScenarioTimeout,
			Attempt:    attempt,
		}
		if attempt > e.opts.MaxRetries {
			return result
		}

		backoff := retries.Backoff(u.Scenario.ID, name)
		e.logger.Debug("unit timed out, retrying",
			"scenario", u.Scenario.ID,
			"adapter", name,
			"attempt", attempt,
			"backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return result
		}
	}
}
