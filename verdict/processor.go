// Package verdict aggregates per-adapter tool results into scenario
// verdicts and tracks outcome variance for flaky quarantine. Aggregates are
// mutated only here, under per-scenario locks; the executor pool never
// touches them.
package verdict

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360studio/uatgate/executor"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/uaterr"
)

// Verdict is the aggregated outcome of one scenario once all its units have
// reported.
type Verdict struct {
	ScenarioID string
	JourneyID  string
	Priority   model.Priority

	// Status is the aggregate: passed, failed, or skipped. Quarantine is
	// reported separately so a quarantined scenario still shows its outcome.
	Status model.ScenarioStatus

	// AdvisoryPass marks a pass where one or more advisory-capability
	// adapters failed; their findings attach as advisories.
	AdvisoryPass bool

	// Advisories carries findings that did not fail the scenario.
	Advisories []model.Diagnostic

	// Diagnostics carries the findings behind a failure.
	Diagnostics []model.Diagnostic

	// Quarantined is set when the flaky detector has the scenario
	// quarantined after this observation.
	Quarantined bool

	// FlakyScore is the detector's score after this observation.
	FlakyScore float64
}

// Failed reports whether the scenario hard-failed.
func (v *Verdict) Failed() bool {
	return v.Status == model.ScenarioFailed
}

type aggregate struct {
	mu       sync.Mutex
	scenario *model.Scenario
	expected int
	results  []executor.Result
	decided  bool
	verdict  Verdict
}

// Processor aggregates unit results per scenario.
type Processor struct {
	advisory map[string]bool
	detector *Detector
	logger   *slog.Logger

	mu         sync.Mutex
	aggregates map[string]*aggregate
}

// NewProcessor creates a processor. Capabilities listed in
// advisoryCapabilities fail scenarios only advisorily; detector may be nil
// when flaky tracking is not wanted.
func NewProcessor(advisoryCapabilities []string, detector *Detector, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	advisory := make(map[string]bool, len(advisoryCapabilities))
	for _, c := range advisoryCapabilities {
		advisory[c] = true
	}
	return &Processor{
		advisory:   advisory,
		detector:   detector,
		logger:     logger,
		aggregates: make(map[string]*aggregate),
	}
}

// Track registers a scenario and how many unit results to expect for it.
// Tracking again resets the aggregate, which is how fix verification re-runs
// start a fresh decision.
func (p *Processor) Track(sc *model.Scenario, expectedUnits int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.aggregates[sc.ID] = &aggregate{scenario: sc, expected: expectedUnits}
}

// Record folds one unit result into its scenario's aggregate. When the last
// expected unit reports, the scenario is decided and the verdict returned
// with done=true.
func (p *Processor) Record(res executor.Result) (Verdict, bool) {
	p.mu.Lock()
	agg, ok := p.aggregates[res.ScenarioID]
	p.mu.Unlock()
	if !ok {
		p.logger.Warn("result for untracked scenario", "scenario", res.ScenarioID, "adapter", res.Adapter)
		return Verdict{}, false
	}

	agg.mu.Lock()
	defer agg.mu.Unlock()

	if agg.decided {
		p.logger.Warn("result after scenario decided", "scenario", res.ScenarioID, "adapter", res.Adapter)
		return agg.verdict, false
	}

	agg.results = append(agg.results, res)
	if len(agg.results) < agg.expected {
		return Verdict{}, false
	}

	agg.verdict = p.decide(agg)
	agg.decided = true
	return agg.verdict, true
}

// decide computes the scenario verdict from its complete unit results.
// Called with the aggregate lock held.
func (p *Processor) decide(agg *aggregate) Verdict {
	v := Verdict{
		ScenarioID: agg.scenario.ID,
		JourneyID:  agg.scenario.JourneyID,
		Priority:   agg.scenario.Priority,
		Status:     model.ScenarioPassed,
	}

	var hardFailed, advisoryFailed, anyVerdict bool
	for _, res := range agg.results {
		if res.Skipped {
			v.Status = model.ScenarioSkipped
			v.Diagnostics = append(v.Diagnostics, model.Diagnostic{
				Code:    "setup-failed",
				Message: res.SkipReason,
			})
			return v
		}

		if res.Err != nil {
			diag := model.Diagnostic{Code: "adapter-unavailable", Message: res.Err.Error(), Severity: "advisory"}
			if timeoutErr(res.Err) {
				diag = model.Diagnostic{Code: "timeout", Message: res.Err.Error(), Severity: "blocking"}
			}
			if p.advisory[res.Capability] {
				advisoryFailed = true
				diag.Severity = "advisory"
				v.Advisories = append(v.Advisories, diag)
				continue
			}
			if diag.Code == "timeout" {
				hardFailed = true
				v.Diagnostics = append(v.Diagnostics, diag)
				continue
			}
			// Unavailable adapters are isolated: the other adapters'
			// verdicts decide the scenario.
			v.Advisories = append(v.Advisories, diag)
			continue
		}

		anyVerdict = true
		switch res.Tool.RawVerdict {
		case model.VerdictPass:
		case model.VerdictAdvisory:
			v.Advisories = append(v.Advisories, res.Tool.Diagnostics...)
		case model.VerdictFail, model.VerdictError:
			if p.advisory[res.Capability] {
				advisoryFailed = true
				v.Advisories = append(v.Advisories, res.Tool.Diagnostics...)
				continue
			}
			hardFailed = true
			v.Diagnostics = append(v.Diagnostics, res.Tool.Diagnostics...)
			if len(res.Tool.Diagnostics) == 0 {
				v.Diagnostics = append(v.Diagnostics, model.Diagnostic{
					Code:    "adapter-failed",
					Message: fmt.Sprintf("adapter %s reported %s", res.Adapter, res.Tool.RawVerdict),
				})
			}
		}
	}

	switch {
	case hardFailed:
		v.Status = model.ScenarioFailed
	case !anyVerdict:
		v.Status = model.ScenarioFailed
		v.Diagnostics = append(v.Diagnostics, model.Diagnostic{
			Code:    "adapter-unavailable",
			Message: "no adapter produced a verdict",
		})
	case advisoryFailed:
		v.AdvisoryPass = true
	}

	if p.detector != nil && v.Status != model.ScenarioSkipped {
		outcome := model.OutcomePass
		if v.Status == model.ScenarioFailed {
			outcome = model.OutcomeFail
		}
		rec := p.detector.Observe(agg.scenario.ID, outcome)
		v.Quarantined = rec.Quarantined
		v.FlakyScore = rec.Score
	}
	return v
}

// Verdicts returns all decided verdicts ordered by scenario ID.
func (p *Processor) Verdicts() []Verdict {
	p.mu.Lock()
	aggs := make([]*aggregate, 0, len(p.aggregates))
	for _, agg := range p.aggregates {
		aggs = append(aggs, agg)
	}
	p.mu.Unlock()

	var out []Verdict
	for _, agg := range aggs {
		agg.mu.Lock()
		if agg.decided {
			out = append(out, agg.verdict)
		}
		agg.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScenarioID < out[j].ScenarioID })
	return out
}

// Summary aggregates decided verdicts into run-level counts. Quarantined
// scenarios are excluded from the critical pass-rate denominator but still
// counted in their outcome column.
type Summary struct {
	Total          int
	Passed         int
	Failed         int
	Skipped        int
	Quarantined    int
	AdvisoryPasses int

	CriticalTotal       int
	CriticalPassed      int
	CriticalQuarantined int
}

// CriticalPassRate is passed criticals over non-quarantined criticals. With
// no countable criticals the rate is vacuously 1.
func (s Summary) CriticalPassRate() float64 {
	denom := s.CriticalTotal - s.CriticalQuarantined
	if denom <= 0 {
		return 1
	}
	return float64(s.CriticalPassed) / float64(denom)
}

// Summary computes counts over all decided verdicts.
func (p *Processor) Summary() Summary {
	return Summarize(p.Verdicts())
}

// Summarize computes counts over an arbitrary verdict slice, such as one
// restored from a checkpoint.
func Summarize(verdicts []Verdict) Summary {
	var s Summary
	for _, v := range verdicts {
		s.Total++
		switch v.Status {
		case model.ScenarioPassed:
			s.Passed++
		case model.ScenarioFailed:
			s.Failed++
		case model.ScenarioSkipped:
			s.Skipped++
		}
		if v.AdvisoryPass {
			s.AdvisoryPasses++
		}
		if v.Quarantined {
			s.Quarantined++
		}
		if v.Priority == model.PriorityCritical {
			s.CriticalTotal++
			if v.Quarantined {
				s.CriticalQuarantined++
				continue
			}
			if v.Status == model.ScenarioPassed {
				s.CriticalPassed++
			}
		}
	}
	return s
}

func timeoutErr(err error) bool {
	var t *uaterr.ExecutionTimeout
	return errors.As(err, &t)
}
