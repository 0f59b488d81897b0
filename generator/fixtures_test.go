package generator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c360studio/uatgate/model"
)

func TestSeedValue(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"the email field", "uat@example.test"},
		{"the password field", "uat-Passw0rd!"},
		{"the card number", "4242424242424242"},
		{"the shipping address", "1 Example Way"},
		{"the coupon code", "uat-coupon-code"},
	}

	for _, tt := range tests {
		if got := seedValue(tt.target); got != tt.want {
			t.Errorf("seedValue(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestRenderSeed_SortedAndQuoted(t *testing.T) {
	jny := model.Journey{ID: "jny-0123456789ab", Name: "Checkout"}
	out := string(renderSeed(jny, map[string]string{
		"email-field": "uat@example.test",
		"card-number": "4242424242424242",
	}))

	cardIdx := strings.Index(out, "card-number")
	emailIdx := strings.Index(out, "email-field")
	if cardIdx < 0 || emailIdx < 0 || cardIdx > emailIdx {
		t.Fatalf("expected sorted keys, got:\n%s", out)
	}
	if !strings.Contains(out, `card-number: "4242424242424242"`) {
		t.Errorf("values not quoted:\n%s", out)
	}
}

func TestRenderSeed_Empty(t *testing.T) {
	out := string(renderSeed(model.Journey{ID: "jny-x", Name: "X"}, nil))
	if !strings.Contains(out, "seed: {}") {
		t.Errorf("expected empty seed marker, got:\n%s", out)
	}
}

func TestLoadSeed_RoundTrip(t *testing.T) {
	jny := model.Journey{ID: "jny-0123456789ab", Name: "Checkout"}
	seed := map[string]string{
		"email-field": "uat@example.test",
		"full-name":   "UAT Tester",
	}

	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, renderSeed(jny, seed), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadSeed(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["email-field"] != "uat@example.test" || got["full-name"] != "UAT Tester" {
		t.Errorf("round trip mismatch: %v", got)
	}
}

func TestLoadSeed_EmptyPath(t *testing.T) {
	got, err := LoadSeed("")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty seed, got %v", got)
	}
}

func TestBuildRoutes_RoundTrip(t *testing.T) {
	jny := model.Journey{ID: "jny-0123456789ab", Name: "Checkout Flow"}
	scenarios := []model.Scenario{{
		ID:        "scn-aaaaaaaaaaaa",
		JourneyID: jny.ID,
		Name:      "Checkout Flow",
		Steps: []model.Step{
			{Action: "navigate", Target: "to the cart page"},
			{Action: "fill", Target: "the email field"},
			{Action: "click", Target: "the place order button"},
			{Action: "verify", Expect: "the order number is shown"},
		},
	}}

	routes := buildRoutes(jny, scenarios)
	if len(routes) != 2 {
		t.Fatalf("expected index + cart routes, got %d", len(routes))
	}
	if routes[0].Route != "/" || routes[1].Route != "/cart-page" {
		t.Fatalf("unexpected route order: %s, %s", routes[0].Route, routes[1].Route)
	}

	body := routes[0].Body
	for _, want := range []string{
		`data-uat="place-order-button"`,
		`data-uat="email-field"`,
		`<label for="email-field">`,
		"<p>the order number is shown</p>",
		`lang="en"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q:\n%s", want, body)
		}
	}

	parsed, err := ParseRoutes(renderRoutes(routes))
	if err != nil {
		t.Fatalf("rendered routes do not parse back: %v", err)
	}
	if len(parsed.Routes) != 2 {
		t.Fatalf("round trip lost routes: %d", len(parsed.Routes))
	}
	if parsed.Routes[1].Method != "GET" || parsed.Routes[1].Status != 200 {
		t.Errorf("route fields lost: %+v", parsed.Routes[1])
	}
	if strings.TrimRight(parsed.Routes[0].Body, "\n") != strings.TrimRight(routes[0].Body, "\n") {
		t.Errorf("body changed across round trip")
	}
}

func TestRenderRoutes_Empty(t *testing.T) {
	out := string(renderRoutes(nil))
	if !strings.Contains(out, "routes: []") {
		t.Errorf("expected empty routes marker, got:\n%s", out)
	}

	parsed, err := ParseRoutes([]byte(out))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Routes) != 0 {
		t.Errorf("expected no routes, got %d", len(parsed.Routes))
	}
}
