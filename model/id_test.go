package model

import (
	"strings"
	"testing"
)

func TestJourneyID_Deterministic(t *testing.T) {
	a := JourneyID("doc-abc123", "Checkout", "Guest checkout flow")
	b := JourneyID("doc-abc123", "Checkout", "Guest checkout flow")
	if a != b {
		t.Errorf("identical inputs produced different IDs: %q vs %q", a, b)
	}

	// Cosmetic whitespace differences must not change identity
	d := JourneyID("doc-abc123", "Checkout", "GUEST   checkout\tflow")
	if a != d {
		t.Errorf("normalized names should match: %q vs %q", a, d)
	}

	e := JourneyID("doc-other", "Checkout", "Guest checkout flow")
	if a == e {
		t.Error("different documents must produce different journey IDs")
	}
}

func TestScenarioID_Deterministic(t *testing.T) {
	jny := JourneyID("doc-abc123", "Login", "User login")

	first := ScenarioID(jny, 0)
	again := ScenarioID(jny, 0)
	if first != again {
		t.Errorf("identical inputs produced different IDs: %q vs %q", first, again)
	}

	second := ScenarioID(jny, 1)
	if first == second {
		t.Error("different step indexes must produce different scenario IDs")
	}

	if !strings.HasPrefix(first, "scn-") {
		t.Errorf("scenario ID %q missing scn- prefix", first)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Guest Checkout", "guest-checkout"},
		{"  spaced   out  ", "spaced-out"},
		{"Tabs\tand\nnewlines", "tabs-and-newlines"},
		{"already-hyphenated", "already-hyphenated"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewRunID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := NewRunID()
		if !strings.HasPrefix(id, "run-") {
			t.Fatalf("run ID %q missing run- prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate run ID generated: %q", id)
		}
		seen[id] = true
	}
}
