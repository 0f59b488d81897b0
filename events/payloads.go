package events

import (
	"encoding/json"
	"errors"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	registrations := []*component.PayloadRegistration{
		{
			Domain:      "uat",
			Category:    "journey-created",
			Version:     "v1",
			Description: "Journey derived from a specification document",
			Factory:     func() any { return &JourneyCreatedPayload{} },
		},
		{
			Domain:      "uat",
			Category:    "scenario-result",
			Version:     "v1",
			Description: "Aggregated verdict for one executed scenario",
			Factory:     func() any { return &ScenarioResultPayload{} },
		},
		{
			Domain:      "uat",
			Category:    "bug-created",
			Version:     "v1",
			Description: "Blocker raised during a run",
			Factory:     func() any { return &BugCreatedPayload{} },
		},
		{
			Domain:      "uat",
			Category:    "fix-applied",
			Version:     "v1",
			Description: "Auto-fix reaching a terminal state",
			Factory:     func() any { return &FixAppliedPayload{} },
		},
		{
			Domain:      "uat",
			Category:    "progress",
			Version:     "v1",
			Description: "Live run progress",
			Factory:     func() any { return &ProgressPayload{} },
		},
	}
	for _, reg := range registrations {
		if err := component.RegisterPayload(reg); err != nil {
			panic("failed to register " + reg.Category + " payload: " + err.Error())
		}
	}
}

// JourneyCreatedPayload wraps JourneyCreatedEvent and satisfies
// message.Payload. The JSON wire format is identical to the event so
// subscribers on the raw subject receive the expected field names.
type JourneyCreatedPayload struct {
	JourneyCreatedEvent
}

// Schema implements message.Payload.
func (p *JourneyCreatedPayload) Schema() message.Type {
	return message.Type{Domain: "uat", Category: "journey-created", Version: "v1"}
}

// Validate implements message.Payload.
func (p *JourneyCreatedPayload) Validate() error {
	if p.RunID == "" {
		return errors.New("run ID is required")
	}
	if p.JourneyID == "" {
		return errors.New("journey ID is required")
	}
	return nil
}

// MarshalJSON marshals using the embedded event's fields, not the wrapper's.
func (p *JourneyCreatedPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.JourneyCreatedEvent)
}

// UnmarshalJSON unmarshals directly into the embedded event.
func (p *JourneyCreatedPayload) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.JourneyCreatedEvent)
}

// ScenarioResultPayload wraps ScenarioResultEvent and satisfies message.Payload.
type ScenarioResultPayload struct {
	ScenarioResultEvent
}

// Schema implements message.Payload.
func (p *ScenarioResultPayload) Schema() message.Type {
	return message.Type{Domain: "uat", Category: "scenario-result", Version: "v1"}
}

// Validate implements message.Payload.
func (p *ScenarioResultPayload) Validate() error {
	if p.RunID == "" {
		return errors.New("run ID is required")
	}
	if p.ScenarioID == "" {
		return errors.New("scenario ID is required")
	}
	if p.Status == "" {
		return errors.New("status is required")
	}
	return nil
}

// MarshalJSON marshals using the embedded event's fields.
func (p *ScenarioResultPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ScenarioResultEvent)
}

// UnmarshalJSON unmarshals directly into the embedded event.
func (p *ScenarioResultPayload) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.ScenarioResultEvent)
}

// BugCreatedPayload wraps BugCreatedEvent and satisfies message.Payload.
type BugCreatedPayload struct {
	BugCreatedEvent
}

// Schema implements message.Payload.
func (p *BugCreatedPayload) Schema() message.Type {
	return message.Type{Domain: "uat", Category: "bug-created", Version: "v1"}
}

// Validate implements message.Payload.
func (p *BugCreatedPayload) Validate() error {
	if p.RunID == "" {
		return errors.New("run ID is required")
	}
	if p.BlockerID == "" {
		return errors.New("blocker ID is required")
	}
	return nil
}

// MarshalJSON marshals using the embedded event's fields.
func (p *BugCreatedPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.BugCreatedEvent)
}

// UnmarshalJSON unmarshals directly into the embedded event.
func (p *BugCreatedPayload) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.BugCreatedEvent)
}

// FixAppliedPayload wraps FixAppliedEvent and satisfies message.Payload.
type FixAppliedPayload struct {
	FixAppliedEvent
}

// Schema implements message.Payload.
func (p *FixAppliedPayload) Schema() message.Type {
	return message.Type{Domain: "uat", Category: "fix-applied", Version: "v1"}
}

// Validate implements message.Payload.
func (p *FixAppliedPayload) Validate() error {
	if p.RunID == "" {
		return errors.New("run ID is required")
	}
	if p.FixID == "" {
		return errors.New("fix ID is required")
	}
	return nil
}

// MarshalJSON marshals using the embedded event's fields.
func (p *FixAppliedPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.FixAppliedEvent)
}

// UnmarshalJSON unmarshals directly into the embedded event.
func (p *FixAppliedPayload) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.FixAppliedEvent)
}

// ProgressPayload wraps ProgressEvent and satisfies message.Payload.
type ProgressPayload struct {
	ProgressEvent
}

// Schema implements message.Payload.
func (p *ProgressPayload) Schema() message.Type {
	return message.Type{Domain: "uat", Category: "progress", Version: "v1"}
}

// Validate implements message.Payload.
func (p *ProgressPayload) Validate() error {
	if p.RunID == "" {
		return errors.New("run ID is required")
	}
	if p.Stage == "" {
		return errors.New("stage is required")
	}
	return nil
}

// MarshalJSON marshals using the embedded event's fields.
func (p *ProgressPayload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ProgressEvent)
}

// UnmarshalJSON unmarshals directly into the embedded event.
func (p *ProgressPayload) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &p.ProgressEvent)
}
