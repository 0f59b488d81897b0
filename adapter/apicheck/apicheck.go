// Package apicheck validates API responses against declared contracts:
// status code, content type, and required fields in JSON bodies.
package apicheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/model"
)

// Contract declares the expected shape of one endpoint response.
type Contract struct {
	// Route is the request path.
	Route string `yaml:"route"`

	// Method defaults to GET.
	Method string `yaml:"method,omitempty"`

	// Status is the expected response code; default 200.
	Status int `yaml:"status,omitempty"`

	// ContentType is matched against the response media type when set.
	ContentType string `yaml:"content_type,omitempty"`

	// RequiredFields lists dotted paths that must be present in a JSON
	// response body.
	RequiredFields []string `yaml:"required_fields,omitempty"`

	// Auth selects request authentication: "", "bearer", or "basic".
	Auth string `yaml:"auth,omitempty"`
}

// ContractSet is the contracts.yaml document.
type ContractSet struct {
	Contracts []Contract `yaml:"contracts"`
}

// LoadContracts reads a contract file. A missing file is not an error; it
// returns an empty set so callers can fall back to route derivation.
func LoadContracts(path string) (*ContractSet, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ContractSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contracts: %w", err)
	}
	var set ContractSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse contracts %s: %w", path, err)
	}
	return &set, nil
}

// Adapter checks scenario endpoints against their contracts.
type Adapter struct {
	client *http.Client
	logger *slog.Logger
}

// New creates the contract adapter.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "apicheck" }

// Capability implements adapter.Adapter.
func (a *Adapter) Capability() adapter.Capability { return adapter.CapabilityAPIContract }

// Execute loads the journey's contract file when present, otherwise derives
// contracts from the fixture routes, then checks each one. Any contract
// violation fails the scenario.
func (a *Adapter) Execute(ctx context.Context, sc *model.Scenario, env *adapter.Env) (*model.ToolResult, error) {
	if env == nil || env.BaseURL == "" {
		return nil, errors.New("no execution environment base URL")
	}

	start := time.Now()
	contracts, err := a.contractsFor(sc, env)
	if err != nil {
		return nil, err
	}

	result := &model.ToolResult{
		ScenarioID: sc.ID,
		Adapter:    a.Name(),
		Capability: string(adapter.CapabilityAPIContract),
		RawVerdict: model.VerdictPass,
	}

	if len(contracts) == 0 {
		result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
			Code:     "no-contracts",
			Message:  "no contracts declared or derivable for scenario",
			Severity: "advisory",
		})
		result.RawVerdict = model.VerdictAdvisory
		result.Duration = time.Since(start)
		result.Timestamp = time.Now().UTC()
		return result, nil
	}

	for _, c := range contracts {
		findings, err := a.check(ctx, env, c)
		if err != nil {
			return nil, fmt.Errorf("contract %s %s: %w", methodOf(c), c.Route, err)
		}
		if len(findings) > 0 {
			result.RawVerdict = model.VerdictFail
			result.Diagnostics = append(result.Diagnostics, findings...)
		}
	}

	result.Duration = time.Since(start)
	result.Timestamp = time.Now().UTC()
	return result, nil
}

// contractsFor prefers an explicit contract file under the journey's
// fixture directory and falls back to the fixture route table.
func (a *Adapter) contractsFor(sc *model.Scenario, env *adapter.Env) ([]Contract, error) {
	if env.DataDir != "" {
		path := filepath.Join(env.DataDir, "fixtures", sc.JourneyID, "contracts.yaml")
		set, err := LoadContracts(path)
		if err != nil {
			return nil, err
		}
		if len(set.Contracts) > 0 {
			return set.Contracts, nil
		}
	}
	if env.Routes == nil {
		return nil, nil
	}
	contracts := make([]Contract, 0, len(env.Routes.Routes))
	for _, r := range env.Routes.Routes {
		contracts = append(contracts, Contract{
			Route:       r.Route,
			Method:      r.Method,
			Status:      r.Status,
			ContentType: r.ContentType,
		})
	}
	return contracts, nil
}

func (a *Adapter) check(ctx context.Context, env *adapter.Env, c Contract) ([]model.Diagnostic, error) {
	req, err := http.NewRequestWithContext(ctx, methodOf(c), strings.TrimRight(env.BaseURL, "/")+c.Route, nil)
	if err != nil {
		return nil, err
	}
	switch c.Auth {
	case "bearer":
		if token := env.Vars["api_token"]; token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case "basic":
		req.SetBasicAuth(env.Vars["basic_user"], env.Vars["basic_pass"])
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var findings []model.Diagnostic
	wantStatus := c.Status
	if wantStatus == 0 {
		wantStatus = http.StatusOK
	}
	if resp.StatusCode != wantStatus {
		findings = append(findings, model.Diagnostic{
			Code:      "contract-violation",
			Message:   fmt.Sprintf("%s %s: status %d, want %d", methodOf(c), c.Route, resp.StatusCode, wantStatus),
			Violation: "status",
			Severity:  "blocking",
		})
	}
	if c.ContentType != "" {
		got, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
		if err != nil || got != c.ContentType {
			findings = append(findings, model.Diagnostic{
				Code:      "contract-violation",
				Message:   fmt.Sprintf("%s %s: content type %q, want %q", methodOf(c), c.Route, resp.Header.Get("Content-Type"), c.ContentType),
				Violation: "content-type",
				Severity:  "blocking",
			})
		}
	}
	if len(c.RequiredFields) > 0 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		findings = append(findings, checkFields(c, body)...)
	}
	return findings, nil
}

// checkFields verifies each dotted path resolves in the JSON body.
func checkFields(c Contract, body []byte) []model.Diagnostic {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return []model.Diagnostic{{
			Code:      "contract-violation",
			Message:   fmt.Sprintf("%s %s: body is not valid JSON: %v", methodOf(c), c.Route, err),
			Violation: "body",
			Severity:  "blocking",
		}}
	}
	var findings []model.Diagnostic
	for _, field := range c.RequiredFields {
		if !hasField(doc, strings.Split(field, ".")) {
			findings = append(findings, model.Diagnostic{
				Code:      "contract-violation",
				Message:   fmt.Sprintf("%s %s: missing required field %q", methodOf(c), c.Route, field),
				Violation: "required-field",
				Severity:  "blocking",
			})
		}
	}
	return findings
}

// hasField walks one dotted path segment at a time. A path into an array
// checks the first element, which is enough for list-shaped fixtures.
func hasField(doc any, path []string) bool {
	if len(path) == 0 {
		return true
	}
	switch v := doc.(type) {
	case map[string]any:
		child, ok := v[path[0]]
		if !ok {
			return false
		}
		return hasField(child, path[1:])
	case []any:
		if len(v) == 0 {
			return false
		}
		return hasField(v[0], path)
	default:
		return false
	}
}

func methodOf(c Contract) string {
	if c.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(c.Method)
}
