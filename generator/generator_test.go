package generator

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/uatgate/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func checkoutJourney() (model.Journey, []model.Scenario) {
	jny := model.Journey{
		ID:       "jny-0123456789ab",
		Name:     "Checkout Flow",
		Priority: model.PriorityHigh,
		SpecRef: model.SpecRef{
			DocumentID: "doc.checkout.abcdef012345",
			Section:    "Checkout Flow",
		},
		SpecVersion: "a3f8",
	}
	sc := model.Scenario{
		ID:        model.ScenarioID(jny.ID, 0),
		JourneyID: jny.ID,
		Name:      "Checkout Flow",
		Priority:  model.PriorityHigh,
		Status:    model.ScenarioPending,
		Steps: []model.Step{
			{Action: "navigate", Target: "to the cart page"},
			{Action: "fill", Target: "the email field"},
			{Action: "click", Target: "the place order button"},
			{Action: "verify", Target: "the confirmation page", Expect: "the order number is shown"},
		},
	}
	return jny, []model.Scenario{sc}
}

func TestGenerate_Artifact(t *testing.T) {
	jny, scenarios := checkoutJourney()
	out, err := New(nil, testLogger()).Generate(jny, scenarios)
	require.NoError(t, err)
	require.Len(t, out.Scenarios, 1)
	assert.Zero(t, out.Skipped)

	sc := out.Scenarios[0]
	wantArtifact := filepath.Join("artifacts", jny.ID, strings.ReplaceAll(sc.ID, "-", "_")+"_test.go")
	assert.Equal(t, wantArtifact, sc.ArtifactRef)
	require.Contains(t, out.Files, wantArtifact)

	content := string(out.Files[wantArtifact])
	assert.Contains(t, content, "//go:build uatartifact")
	assert.Contains(t, content, "template library v1")
	assert.Contains(t, content, "Journey:  Checkout Flow (jny-0123456789ab)")
	assert.Contains(t, content, "Spec:     doc.checkout.abcdef012345 @ a3f8")
	assert.Contains(t, content, `page.Navigate(ctx, "/cart-page")`)
	assert.Contains(t, content, `page.Fill(ctx, "[data-uat=\"email-field\"]", seed["email-field"])`)
	assert.Contains(t, content, `page.Click(ctx, "[data-uat=\"place-order-button\"]")`)
	assert.Contains(t, content, `generator.TextVisible("the order number is shown")`)
	assert.Contains(t, content, "func TestCheckoutFlow_")

	require.Len(t, sc.FixtureRefs, 2)
	assert.Equal(t, filepath.Join("fixtures", jny.ID, "seed.yaml"), sc.FixtureRefs[0])
	assert.Equal(t, filepath.Join("fixtures", jny.ID, "routes.yaml"), sc.FixtureRefs[1])

	seed := string(out.Files[sc.FixtureRefs[0]])
	assert.Contains(t, seed, `email-field: "uat@example.test"`)

	routes := string(out.Files[sc.FixtureRefs[1]])
	assert.Contains(t, routes, "- route: /")
	assert.Contains(t, routes, "- route: /cart-page")
	assert.Contains(t, routes, `data-uat="place-order-button"`)

	harness := string(out.Files[filepath.Join("artifacts", jny.ID, "harness_test.go")])
	assert.Contains(t, harness, "func harnessPage")
	assert.Contains(t, harness, "func must")
}

func TestGenerate_Deterministic(t *testing.T) {
	jny, scenarios := checkoutJourney()

	first, err := New(nil, testLogger()).Generate(jny, scenarios)
	require.NoError(t, err)
	second, err := New(nil, testLogger()).Generate(jny, scenarios)
	require.NoError(t, err)

	require.Equal(t, len(first.Files), len(second.Files))
	for path, content := range first.Files {
		assert.Equal(t, string(content), string(second.Files[path]), path)
	}
}

func TestGenerate_UnbindableStepSkipsScenario(t *testing.T) {
	jny, scenarios := checkoutJourney()
	broken := model.Scenario{
		ID:        model.ScenarioID(jny.ID, 1),
		JourneyID: jny.ID,
		Name:      "frobnicate the widget",
		Status:    model.ScenarioPending,
		Steps: []model.Step{
			{Action: "frobnicate", Target: "the widget"},
		},
	}
	scenarios = append(scenarios, broken)

	out, err := New(nil, testLogger()).Generate(jny, scenarios)
	require.NoError(t, err)
	require.Len(t, out.Scenarios, 2)
	assert.Equal(t, 1, out.Skipped)

	skipped := out.Scenarios[1]
	assert.Equal(t, model.ScenarioSkipped, skipped.Status)
	assert.Contains(t, skipped.Diagnostic, "frobnicate")
	assert.Empty(t, skipped.ArtifactRef)

	// The healthy scenario still generated
	assert.Equal(t, model.ScenarioPending, out.Scenarios[0].Status)
	assert.NotEmpty(t, out.Scenarios[0].ArtifactRef)
}

func TestGenerate_JourneyMismatch(t *testing.T) {
	jny, scenarios := checkoutJourney()
	scenarios[0].JourneyID = "jny-feedfacecafe"

	_, err := New(nil, testLogger()).Generate(jny, scenarios)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "belongs to")
}

func TestOutput_Write(t *testing.T) {
	jny, scenarios := checkoutJourney()
	out, err := New(nil, testLogger()).Generate(jny, scenarios)
	require.NoError(t, err)

	root := t.TempDir()
	require.NoError(t, out.Write(root))

	artifact := filepath.Join(root, out.Scenarios[0].ArtifactRef)
	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	assert.Equal(t, out.Files[out.Scenarios[0].ArtifactRef], data)

	_, err = os.Stat(filepath.Join(root, "fixtures", jny.ID, "routes.yaml"))
	require.NoError(t, err)
}

func TestLibrary_Bind(t *testing.T) {
	lib := DefaultLibrary()
	assert.Equal(t, "v1", lib.Version())
	assert.True(t, lib.Binds("navigate"))
	assert.False(t, lib.Binds("frobnicate"))

	line, err := lib.Bind("jny-x", 0, model.Step{Action: "then", Target: "a receipt is emailed"})
	require.NoError(t, err)
	assert.Contains(t, line, `generator.TextVisible("a receipt is emailed")`)
	assert.Contains(t, line, "// THEN a receipt is emailed")
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"to the cart page", "cart-page"},
		{"the place order button", "place-order-button"},
		{"The Email Field!", "email-field"},
		{"in the email field", "email-field"},
		{"on the checkout button", "checkout-button"},
		{"for running shoes", "running-shoes"},
		{"an order", "order"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in), tt.in)
	}
}
