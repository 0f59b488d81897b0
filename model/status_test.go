package model

import (
	"testing"
	"time"
)

func TestScenarioStatus_IsValid(t *testing.T) {
	tests := []struct {
		status ScenarioStatus
		want   bool
	}{
		{ScenarioPending, true},
		{ScenarioRunning, true},
		{ScenarioPassed, true},
		{ScenarioFailed, true},
		{ScenarioFlaky, true},
		{ScenarioQuarantined, true},
		{ScenarioSkipped, true},
		{ScenarioStatus("unknown"), false},
		{ScenarioStatus(""), false},
	}

	for _, tt := range tests {
		name := string(tt.status)
		if name == "" {
			name = "empty_status"
		}
		t.Run(name, func(t *testing.T) {
			if got := tt.status.IsValid(); got != tt.want {
				t.Errorf("ScenarioStatus(%q).IsValid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestScenarioStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from ScenarioStatus
		to   ScenarioStatus
		want bool
	}{
		// From pending
		{ScenarioPending, ScenarioRunning, true},
		{ScenarioPending, ScenarioSkipped, true},
		{ScenarioPending, ScenarioPassed, false},
		{ScenarioPending, ScenarioFailed, false},

		// From running
		{ScenarioRunning, ScenarioPassed, true},
		{ScenarioRunning, ScenarioFailed, true},
		{ScenarioRunning, ScenarioFlaky, true},
		{ScenarioRunning, ScenarioSkipped, true},
		{ScenarioRunning, ScenarioPending, false},
		{ScenarioRunning, ScenarioQuarantined, false},

		// Failed re-enters running only via auto-fix retry
		{ScenarioFailed, ScenarioRunning, true},
		{ScenarioFailed, ScenarioPassed, false},
		{ScenarioFailed, ScenarioSkipped, false},

		// Flaky can be quarantined or re-run
		{ScenarioFlaky, ScenarioQuarantined, true},
		{ScenarioFlaky, ScenarioRunning, true},
		{ScenarioFlaky, ScenarioPassed, false},

		// Quarantined scenarios keep executing
		{ScenarioQuarantined, ScenarioRunning, true},
		{ScenarioQuarantined, ScenarioPassed, false},

		// Terminal states
		{ScenarioPassed, ScenarioRunning, false},
		{ScenarioPassed, ScenarioFailed, false},
		{ScenarioSkipped, ScenarioRunning, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "_to_" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%q → %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStage_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Stage
		to   Stage
		want bool
	}{
		{StageExtracting, StageGenerating, true},
		{StageExtracting, StageFailed, true},
		{StageExtracting, StageExecuting, false},

		{StageGenerating, StageSelecting, true},
		{StageGenerating, StageExtracting, false},

		{StageSelecting, StageExecuting, true},
		{StageSelecting, StageFixing, false},

		{StageExecuting, StageFixing, true},
		{StageExecuting, StageReadyForReview, true},
		{StageExecuting, StageBlocked, true},
		{StageExecuting, StageSelecting, false},

		{StageFixing, StageExecuting, true},
		{StageFixing, StageReadyForReview, true},
		{StageFixing, StageBlocked, true},

		{StageBlocked, StageFixing, true},
		{StageBlocked, StageReadyForReview, true},
		{StageBlocked, StageFailed, false},

		// Terminal stages
		{StageReadyForReview, StageExecuting, false},
		{StageFailed, StageExtracting, false},
		{StageCancelled, StageExecuting, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "_to_" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%q → %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStage_IsTerminal(t *testing.T) {
	terminal := []Stage{StageReadyForReview, StageFailed, StageCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("Stage(%q).IsTerminal() = false, want true", s)
		}
	}

	active := []Stage{StageExtracting, StageGenerating, StageSelecting, StageExecuting, StageFixing, StageBlocked}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("Stage(%q).IsTerminal() = true, want false", s)
		}
	}
}

func TestFixState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from FixState
		to   FixState
		want bool
	}{
		{FixDetected, FixProposed, true},
		{FixDetected, FixVerifying, false},

		{FixProposed, FixAutoApplied, true},
		{FixProposed, FixPendingReview, true},
		{FixProposed, FixTicketCreated, true},
		{FixProposed, FixVerified, false},

		{FixAutoApplied, FixVerifying, true},
		{FixAutoApplied, FixVerified, false},

		// Human accept moves to verifying, reject rolls back
		{FixPendingReview, FixVerifying, true},
		{FixPendingReview, FixRolledBack, true},
		{FixPendingReview, FixVerified, false},

		{FixVerifying, FixVerified, true},
		{FixVerifying, FixRolledBack, true},

		// Terminal states
		{FixVerified, FixRolledBack, false},
		{FixRolledBack, FixVerifying, false},
		{FixTicketCreated, FixProposed, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "_to_" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%q → %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestPriority_Rank(t *testing.T) {
	if PriorityCritical.Rank() >= PriorityHigh.Rank() {
		t.Error("critical must rank before high")
	}
	if PriorityHigh.Rank() >= PriorityMedium.Rank() {
		t.Error("high must rank before medium")
	}
	if PriorityMedium.Rank() >= PriorityLow.Rank() {
		t.Error("medium must rank before low")
	}
}

func TestBlocker_Open(t *testing.T) {
	b := &Blocker{ID: "blk-1", Category: BlockerCredential}
	if !b.Open() {
		t.Error("blocker without ResolvedAt should be open")
	}

	now := time.Now()
	b.ResolvedAt = &now
	b.Resolution = ResolutionProvideValue
	if b.Open() {
		t.Error("resolved blocker should not be open")
	}
}
