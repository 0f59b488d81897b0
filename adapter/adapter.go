// Package adapter defines the verification tool contract and the registry
// the executor selects tools from. Each adapter implements one capability;
// the executor depends only on this contract, never on a concrete tool.
package adapter

import (
	"context"
	"errors"
	"sync"

	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
)

// ErrNotRegistered indicates no adapter provides the requested name.
var ErrNotRegistered = errors.New("adapter not registered")

// Capability names a verification capability.
type Capability string

const (
	// CapabilityBrowser is functional execution of scenario steps.
	CapabilityBrowser Capability = "browser"

	// CapabilityVisual is visual regression against stored baselines.
	CapabilityVisual Capability = "visual"

	// CapabilityAccessibility is an accessibility conformance scan.
	CapabilityAccessibility Capability = "accessibility"

	// CapabilityAPIContract validates live responses against contracts.
	CapabilityAPIContract Capability = "api-contract"

	// CapabilityVirtualization serves canned dependencies for a run.
	CapabilityVirtualization Capability = "virtualization"
)

// Env is the execution environment one scenario runs in. The virtualization
// layer provides BaseURL; fixtures are loaded once per journey.
type Env struct {
	// BaseURL is the served fixture environment root.
	BaseURL string

	// DataDir is the absolute data directory artifacts are written under.
	DataDir string

	// BaselineDir is where visual baselines live; empty falls back to
	// DataDir/baselines.
	BaselineDir string

	// Seed holds the journey's seed data, keyed by input slug.
	Seed map[string]string

	// Routes is the journey's parsed mock route fixture.
	Routes *generator.RouteSet

	// Vars carries credential material for API checks (api_token,
	// basic_user, basic_pass).
	Vars map[string]string
}

// SeedValue returns the seed entry for a key, empty when absent.
func (e *Env) SeedValue(key string) string {
	if e == nil || e.Seed == nil {
		return ""
	}
	return e.Seed[key]
}

// Adapter is one verification tool.
type Adapter interface {
	// Name identifies the adapter instance.
	Name() string

	// Capability reports the capability the adapter implements.
	Capability() Capability

	// Execute runs the adapter against one scenario. Step and comparison
	// failures are reported in the ToolResult verdict; an error return means
	// the adapter itself could not run.
	Execute(ctx context.Context, sc *model.Scenario, env *Env) (*model.ToolResult, error)
}

// Registry holds the configured adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter, replacing any previous adapter with the same name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; !exists {
		r.order = append(r.order, a.Name())
	}
	r.adapters[a.Name()] = a
}

// Get returns the named adapter.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, ErrNotRegistered
	}
	return a, nil
}

// List returns the registered adapters in registration order.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// ByCapability returns the registered adapters implementing the capability,
// in registration order.
func (r *Registry) ByCapability(c Capability) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, name := range r.order {
		if a := r.adapters[name]; a.Capability() == c {
			out = append(out, a)
		}
	}
	return out
}
