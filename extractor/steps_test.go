package extractor

import (
	"testing"

	"github.com/c360studio/uatgate/model"
)

func TestParseStep(t *testing.T) {
	tests := []struct {
		name string
		item string
		want model.Step
	}{
		{
			name: "navigate",
			item: "Navigate to the checkout page",
			want: model.Step{Action: "navigate", Target: "to the checkout page"},
		},
		{
			name: "arrow expectation",
			item: "Click the place order button -> the confirmation page loads",
			want: model.Step{Action: "click", Target: "the place order button", Expect: "the confirmation page loads"},
		},
		{
			name: "then expectation",
			item: "Enter the card number, then the field shows masked digits",
			want: model.Step{Action: "fill", Target: "the card number", Expect: "the field shows masked digits"},
		},
		{
			name: "verify synonym",
			item: "See the order confirmation",
			want: model.Step{Action: "verify", Target: "the order confirmation"},
		},
		{
			name: "select synonym",
			item: "Choose express shipping",
			want: model.Step{Action: "select", Target: "express shipping"},
		},
		{
			name: "unknown verb kept verbatim",
			item: "Frobnicate the widget",
			want: model.Step{Action: "frobnicate", Target: "the widget"},
		},
		{
			name: "empty item",
			item: "   ",
			want: model.Step{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseStep(tt.item)
			if got != tt.want {
				t.Errorf("parseStep(%q) = %+v, want %+v", tt.item, got, tt.want)
			}
		})
	}
}

func TestSplitVerb(t *testing.T) {
	tests := []struct {
		text   string
		action string
		target string
	}{
		{"Go to the cart", "navigate", "to the cart"},
		{"Press the back button", "click", "the back button"},
		{"Sign in with a saved account", "sign", "in with a saved account"},
		{"Wait for the spinner to disappear", "wait", "for the spinner to disappear"},
		{"Upload a profile photo", "upload", "a profile photo"},
	}

	for _, tt := range tests {
		action, target := splitVerb(tt.text)
		if action != tt.action || target != tt.target {
			t.Errorf("splitVerb(%q) = (%q, %q), want (%q, %q)",
				tt.text, action, target, tt.action, tt.target)
		}
	}
}

func TestParseStory(t *testing.T) {
	tests := []struct {
		name    string
		item    string
		want    string
		outcome string
		ok      bool
	}{
		{
			name:    "full story",
			item:    "As a customer, I want to track my order so that I know when it arrives",
			want:    "track my order",
			outcome: "I know when it arrives",
			ok:      true,
		},
		{
			name: "no so-that clause",
			item: "As an admin, I need to export reports",
			want: "export reports",
			ok:   true,
		},
		{
			name:    "comma so variant",
			item:    "As a guest, I should be able to check out, so checkout stays fast",
			want:    "check out",
			outcome: "checkout stays fast",
			ok:      true,
		},
		{
			name: "not a story",
			item: "The system shall persist orders",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, outcome, ok := parseStory(tt.item)
			if ok != tt.ok {
				t.Fatalf("parseStory(%q) ok = %v, want %v", tt.item, ok, tt.ok)
			}
			if want != tt.want || outcome != tt.outcome {
				t.Errorf("parseStory(%q) = (%q, %q), want (%q, %q)",
					tt.item, want, outcome, tt.want, tt.outcome)
			}
		})
	}
}

func TestParseCapability(t *testing.T) {
	tests := []struct {
		item string
		want string
		ok   bool
	}{
		{"Guests can check out without an account", "check out without an account", true},
		{"Admins must approve bulk deletions", "approve bulk deletions", true},
		{"Users should receive a receipt by email", "receive a receipt by email", true},
		{"Orders are archived monthly", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		want, ok := parseCapability(tt.item)
		if want != tt.want || ok != tt.ok {
			t.Errorf("parseCapability(%q) = (%q, %v), want (%q, %v)",
				tt.item, want, ok, tt.want, tt.ok)
		}
	}
}
