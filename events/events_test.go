package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semstreams/message"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPayloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload message.Payload
		wantErr string
	}{
		{
			name:    "journey created valid",
			payload: &JourneyCreatedPayload{JourneyCreatedEvent{RunID: "run-1", JourneyID: "jny-1", Name: "Checkout"}},
		},
		{
			name:    "journey created missing run",
			payload: &JourneyCreatedPayload{JourneyCreatedEvent{JourneyID: "jny-1"}},
			wantErr: "run ID is required",
		},
		{
			name:    "scenario result valid",
			payload: &ScenarioResultPayload{ScenarioResultEvent{RunID: "run-1", ScenarioID: "scn-1", Status: "passed"}},
		},
		{
			name:    "scenario result missing status",
			payload: &ScenarioResultPayload{ScenarioResultEvent{RunID: "run-1", ScenarioID: "scn-1"}},
			wantErr: "status is required",
		},
		{
			name:    "bug created missing blocker",
			payload: &BugCreatedPayload{BugCreatedEvent{RunID: "run-1"}},
			wantErr: "blocker ID is required",
		},
		{
			name:    "fix applied valid",
			payload: &FixAppliedPayload{FixAppliedEvent{RunID: "run-1", FixID: "fix-1"}},
		},
		{
			name:    "progress missing stage",
			payload: &ProgressPayload{ProgressEvent{RunID: "run-1"}},
			wantErr: "stage is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestScenarioResultWireFormat(t *testing.T) {
	payload := &ScenarioResultPayload{ScenarioResultEvent{
		RunID:      "run-1",
		ScenarioID: "scn-1",
		JourneyID:  "jny-1",
		Status:     "failed",
		Failures:   []string{"selector checkout-button not found"},
	}}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	// Wire format must match the plain event: no wrapper nesting.
	var event ScenarioResultEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, payload.ScenarioResultEvent, event)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "run_id")
	assert.Contains(t, raw, "scenario_id")
}

func TestProgressSchema(t *testing.T) {
	p := &ProgressPayload{}
	schema := p.Schema()
	assert.Equal(t, "uat", schema.Domain)
	assert.Equal(t, "progress", schema.Category)
	assert.Equal(t, "v1", schema.Version)
}

func TestTypedSubjectPatterns(t *testing.T) {
	assert.Equal(t, "uat.events.journey.created", JourneyCreated.Pattern)
	assert.Equal(t, "uat.events.scenario.result", ScenarioResult.Pattern)
	assert.Equal(t, "uat.events.bug.created", BugCreated.Pattern)
	assert.Equal(t, "uat.events.fix.applied", FixApplied.Pattern)
	assert.Equal(t, "uat.live.progress", Progress.Pattern)
}

func TestEmitterWithoutClient(t *testing.T) {
	ctx := context.Background()

	// A disabled emitter drops everything without panicking.
	e := NewEmitter(nil, testLogger())
	e.JourneyCreated(ctx, JourneyCreatedEvent{RunID: "run-1", JourneyID: "jny-1"})
	e.ScenarioResult(ctx, ScenarioResultEvent{RunID: "run-1", ScenarioID: "scn-1", Status: "passed"})
	e.BugCreated(ctx, BugCreatedEvent{RunID: "run-1", BlockerID: "blk-1"})
	e.FixApplied(ctx, FixAppliedEvent{RunID: "run-1", FixID: "fix-1"})
	e.Progress(ctx, ProgressEvent{RunID: "run-1", Stage: "executing"})

	// So does a nil emitter.
	var none *Emitter
	none.Progress(ctx, ProgressEvent{RunID: "run-1", Stage: "executing"})
}
