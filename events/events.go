// Package events defines the gateway's outbound NATS subjects and payloads.
//
// Card events under "uat.events.*" feed the review board; live events under
// "uat.live.*" feed progress displays. Both are fire and forget: the pipeline
// never waits on, or fails because of, an event publish.
package events

import (
	"github.com/c360studio/semstreams/natsclient"
)

// JourneyCreatedEvent is published when extraction derives a journey.
type JourneyCreatedEvent struct {
	RunID         string `json:"run_id"`
	JourneyID     string `json:"journey_id"`
	Name          string `json:"name"`
	Priority      string `json:"priority"`
	ScenarioCount int    `json:"scenario_count"`
	DocumentID    string `json:"document_id,omitempty"`
}

// ScenarioResultEvent is published when a scenario's verdict is decided.
type ScenarioResultEvent struct {
	RunID      string `json:"run_id"`
	ScenarioID string `json:"scenario_id"`
	JourneyID  string `json:"journey_id"`
	Status     string `json:"status"`

	// AdvisoryPass marks a pass with advisory-capability findings attached.
	AdvisoryPass bool `json:"advisory_pass,omitempty"`

	Quarantined bool    `json:"quarantined,omitempty"`
	FlakyScore  float64 `json:"flaky_score,omitempty"`

	// Failures carries the diagnostic messages behind a failed status.
	Failures []string `json:"failures,omitempty"`
}

// BugCreatedEvent is published when a blocker is raised: a low-confidence
// fix ticket, a rejected fix, or an unresolved external dependency.
type BugCreatedEvent struct {
	RunID       string   `json:"run_id"`
	BlockerID   string   `json:"blocker_id"`
	FixID       string   `json:"fix_id,omitempty"`
	ScenarioIDs []string `json:"scenario_ids,omitempty"`
	Category    string   `json:"category"`
	Reason      string   `json:"reason"`
}

// FixAppliedEvent is published when a fix reaches a terminal state.
type FixAppliedEvent struct {
	RunID      string  `json:"run_id"`
	FixID      string  `json:"fix_id"`
	ScenarioID string  `json:"scenario_id"`
	Signature  string  `json:"signature"`
	Confidence float64 `json:"confidence"`
	State      string  `json:"state"`
	Verified   bool    `json:"verified,omitempty"`
}

// ProgressEvent is published on stage transitions and batch completions.
type ProgressEvent struct {
	RunID          string  `json:"run_id"`
	Stage          string  `json:"stage"`
	Percent        float64 `json:"percent"`
	ScenariosTotal int     `json:"scenarios_total,omitempty"`
	ScenariosDone  int     `json:"scenarios_done,omitempty"`

	// CurrentScenario is the scenario in flight, when one is.
	CurrentScenario string `json:"current_scenario,omitempty"`
}

// Typed subject definitions for gateway events.
// These provide compile-time type safety for NATS publish/subscribe operations.
var (
	// Card events, stream-backed.
	JourneyCreated = natsclient.NewSubject[JourneyCreatedEvent](
		"uat.events.journey.created")
	ScenarioResult = natsclient.NewSubject[ScenarioResultEvent](
		"uat.events.scenario.result")
	BugCreated = natsclient.NewSubject[BugCreatedEvent](
		"uat.events.bug.created")
	FixApplied = natsclient.NewSubject[FixAppliedEvent](
		"uat.events.fix.applied")

	// Live events, ephemeral.
	Progress = natsclient.NewSubject[ProgressEvent](
		"uat.live.progress")
)
