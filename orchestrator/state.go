package orchestrator

import (
	"github.com/c360studio/uatgate/extractor"
	"github.com/c360studio/uatgate/model"
	"github.com/c360studio/uatgate/verdict"
)

// runState is the pipeline state captured in every checkpoint. A resumed
// pipeline rebuilds its entire working set from one of these, so every field
// must round-trip through JSON exactly.
type runState struct {
	// DocumentID and SpecVersion identify the parsed specification.
	DocumentID  string `json:"document_id,omitempty"`
	SpecVersion string `json:"spec_version,omitempty"`

	Journeys  []model.Journey         `json:"journeys,omitempty"`
	Scenarios []model.Scenario        `json:"scenarios,omitempty"`
	Gaps      []extractor.CoverageGap `json:"gaps,omitempty"`

	// Deselected lists scenario IDs the change set proved unaffected.
	Deselected []string `json:"deselected,omitempty"`

	// PendingJourneys is the execution backlog. Each journey is one batch;
	// a batch leaves the list only after its checkpoint is durable, so a
	// resumed run re-executes at most the batch that was in flight.
	PendingJourneys []string `json:"pending_journeys,omitempty"`

	// Verdicts holds the decided outcome per executed scenario. A verified
	// fix replaces the scenario's entry.
	Verdicts []verdict.Verdict `json:"verdicts,omitempty"`

	// FailureReason mirrors the run record for failed pipelines.
	FailureReason string `json:"failure_reason,omitempty"`
}

func (st *runState) journey(id string) *model.Journey {
	for i := range st.Journeys {
		if st.Journeys[i].ID == id {
			return &st.Journeys[i]
		}
	}
	return nil
}

func (st *runState) scenario(id string) *model.Scenario {
	for i := range st.Scenarios {
		if st.Scenarios[i].ID == id {
			return &st.Scenarios[i]
		}
	}
	return nil
}

// scenariosOf returns value copies of the journey's scenarios, in document
// order.
func (st *runState) scenariosOf(journeyID string) []model.Scenario {
	var out []model.Scenario
	for _, sc := range st.Scenarios {
		if sc.JourneyID == journeyID {
			out = append(out, sc)
		}
	}
	return out
}

// runnable returns pointers to the journey's scenarios that are selected for
// execution. Terminal scenarios are filtered later by the unit builder.
func (st *runState) runnable(journeyID string) []*model.Scenario {
	deselected := make(map[string]bool, len(st.Deselected))
	for _, id := range st.Deselected {
		deselected[id] = true
	}

	var out []*model.Scenario
	for i := range st.Scenarios {
		sc := &st.Scenarios[i]
		if sc.JourneyID == journeyID && !deselected[sc.ID] {
			out = append(out, sc)
		}
	}
	return out
}

// putScenario replaces the stored scenario with the same ID.
func (st *runState) putScenario(sc model.Scenario) {
	for i := range st.Scenarios {
		if st.Scenarios[i].ID == sc.ID {
			st.Scenarios[i] = sc
			return
		}
	}
	st.Scenarios = append(st.Scenarios, sc)
}

// putVerdict records a decided verdict, replacing any earlier decision for
// the same scenario. Fix verification re-runs overwrite the failed entry.
func (st *runState) putVerdict(v verdict.Verdict) {
	for i := range st.Verdicts {
		if st.Verdicts[i].ScenarioID == v.ScenarioID {
			st.Verdicts[i] = v
			return
		}
	}
	st.Verdicts = append(st.Verdicts, v)
}

func (st *runState) failedVerdicts() []verdict.Verdict {
	var out []verdict.Verdict
	for _, v := range st.Verdicts {
		if v.Failed() {
			out = append(out, v)
		}
	}
	return out
}

func (st *runState) popJourney(journeyID string) {
	for i, id := range st.PendingJourneys {
		if id == journeyID {
			st.PendingJourneys = append(st.PendingJourneys[:i], st.PendingJourneys[i+1:]...)
			return
		}
	}
}

// clone copies the state so readers can leave the pipeline's lock behind.
// Elements are copied by value; the pipeline replaces elements rather than
// mutating their nested slices.
func (st *runState) clone() *runState {
	cp := *st
	cp.Journeys = append([]model.Journey(nil), st.Journeys...)
	cp.Scenarios = append([]model.Scenario(nil), st.Scenarios...)
	cp.Gaps = append([]extractor.CoverageGap(nil), st.Gaps...)
	cp.Deselected = append([]string(nil), st.Deselected...)
	cp.PendingJourneys = append([]string(nil), st.PendingJourneys...)
	cp.Verdicts = append([]verdict.Verdict(nil), st.Verdicts...)
	return &cp
}
