package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"
)

// Emitter publishes gateway events. A nil Emitter, or one built without a
// NATS client, drops everything silently; publish failures are logged and
// never surface to the caller.
type Emitter struct {
	nc     *natsclient.Client
	logger *slog.Logger
}

// NewEmitter creates an emitter. A nil client disables publishing.
func NewEmitter(nc *natsclient.Client, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{nc: nc, logger: logger}
}

// JourneyCreated emits a journey card event.
func (e *Emitter) JourneyCreated(ctx context.Context, ev JourneyCreatedEvent) {
	e.emit(ctx, JourneyCreated.Pattern, &JourneyCreatedPayload{JourneyCreatedEvent: ev}, true)
}

// ScenarioResult emits a scenario verdict card event.
func (e *Emitter) ScenarioResult(ctx context.Context, ev ScenarioResultEvent) {
	e.emit(ctx, ScenarioResult.Pattern, &ScenarioResultPayload{ScenarioResultEvent: ev}, true)
}

// BugCreated emits a blocker card event.
func (e *Emitter) BugCreated(ctx context.Context, ev BugCreatedEvent) {
	e.emit(ctx, BugCreated.Pattern, &BugCreatedPayload{BugCreatedEvent: ev}, true)
}

// FixApplied emits a fix card event.
func (e *Emitter) FixApplied(ctx context.Context, ev FixAppliedEvent) {
	e.emit(ctx, FixApplied.Pattern, &FixAppliedPayload{FixAppliedEvent: ev}, true)
}

// Progress emits a live progress event.
func (e *Emitter) Progress(ctx context.Context, ev ProgressEvent) {
	e.emit(ctx, Progress.Pattern, &ProgressPayload{ProgressEvent: ev}, false)
}

func (e *Emitter) emit(ctx context.Context, subject string, payload message.Payload, durable bool) {
	if e == nil || e.nc == nil {
		return
	}
	if err := payload.Validate(); err != nil {
		e.logger.Warn("dropping invalid event", "subject", subject, "error", err)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Warn("marshal event failed", "subject", subject, "error", err)
		return
	}

	if durable {
		err = e.nc.PublishToStream(ctx, subject, data)
	} else {
		err = e.nc.Publish(ctx, subject, data)
	}
	if err != nil {
		e.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}
