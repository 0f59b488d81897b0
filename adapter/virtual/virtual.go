// Package virtual stands up an in-process HTTP server from a fixture route
// table so scenarios run against deterministic responses instead of a live
// backend.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/uatgate/adapter"
	"github.com/c360studio/uatgate/generator"
	"github.com/c360studio/uatgate/model"
)

// Server serves a fixture route table on an ephemeral port.
type Server struct {
	routes *generator.RouteSet
	logger *slog.Logger

	mu   sync.Mutex
	srv  *http.Server
	addr string
}

// NewServer creates an unstarted server for the route table.
func NewServer(routes *generator.RouteSet, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{routes: routes, logger: logger}
}

// Start binds an ephemeral port and begins serving. It is an error to start
// a server twice.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("bind virtual server: %w", err)
	}

	mux := http.NewServeMux()
	for _, r := range routesOf(s.routes) {
		mux.Handle(patternFor(r), handlerFor(r))
	}

	s.srv = &http.Server{Handler: mux}
	s.addr = ln.Addr().String()
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("virtual server stopped", "error", err)
		}
	}()

	s.logger.Debug("virtual server listening", "addr", s.addr, "routes", len(routesOf(s.routes)))
	return nil
}

// BaseURL returns the server's address, empty before Start.
func (s *Server) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == "" {
		return ""
	}
	return "http://" + s.addr
}

// Close shuts the server down, letting in-flight requests finish.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.addr = ""
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func routesOf(rs *generator.RouteSet) []generator.Route {
	if rs == nil {
		return nil
	}
	return rs.Routes
}

// patternFor builds a method-qualified mux pattern. The root route uses the
// exact-match form so it does not swallow unknown paths.
func patternFor(r generator.Route) string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	path := r.Route
	if path == "/" {
		path = "/{$}"
	}
	return strings.ToUpper(method) + " " + path
}

func handlerFor(r generator.Route) http.Handler {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	contentType := r.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	latency := time.Duration(r.LatencyMS) * time.Millisecond
	body := []byte(r.Body)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-req.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
}

// Adapter probes every fixture route and reports unhealthy ones. It runs as
// a preflight so scenario failures can be told apart from broken fixtures.
type Adapter struct {
	client *http.Client
	logger *slog.Logger
}

// New creates the virtualization adapter.
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
func (a *Adapter) Name() string { return "virtual" }

// Capability implements adapter.Adapter.
func (a *Adapter) Capability() adapter.Capability { return adapter.CapabilityVirtualization }

// Execute requests each route in the environment's table and checks the
// declared status and content type come back.
func (a *Adapter) Execute(ctx context.Context, sc *model.Scenario, env *adapter.Env) (*model.ToolResult, error) {
	if env == nil || env.BaseURL == "" {
		return nil, errors.New("no execution environment base URL")
	}

	start := time.Now()
	result := &model.ToolResult{
		ScenarioID: sc.ID,
		Adapter:    a.Name(),
		Capability: string(adapter.CapabilityVirtualization),
		RawVerdict: model.VerdictPass,
	}

	routes := routesOf(env.Routes)
	if len(routes) == 0 {
		result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
			Code:     "no-fixtures",
			Message:  "no fixture routes declared for scenario",
			Severity: "advisory",
		})
		result.RawVerdict = model.VerdictAdvisory
		result.Duration = time.Since(start)
		result.Timestamp = time.Now().UTC()
		return result, nil
	}

	for _, r := range routes {
		if diag := a.probe(ctx, env.BaseURL, r); diag != nil {
			result.RawVerdict = model.VerdictFail
			result.Diagnostics = append(result.Diagnostics, *diag)
		}
	}

	result.Duration = time.Since(start)
	result.Timestamp = time.Now().UTC()
	return result, nil
}

func (a *Adapter) probe(ctx context.Context, base string, r generator.Route) *model.Diagnostic {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), strings.TrimRight(base, "/")+r.Route, nil)
	if err != nil {
		return &model.Diagnostic{
			Code:     "fixture-unhealthy",
			Message:  fmt.Sprintf("%s %s: %v", method, r.Route, err),
			Severity: "blocking",
		}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return &model.Diagnostic{
			Code:     "fixture-unhealthy",
			Message:  fmt.Sprintf("%s %s: %v", method, r.Route, err),
			Severity: "blocking",
		}
	}
	defer resp.Body.Close()

	wantStatus := r.Status
	if wantStatus == 0 {
		wantStatus = http.StatusOK
	}
	if resp.StatusCode != wantStatus {
		return &model.Diagnostic{
			Code:     "fixture-unhealthy",
			Message:  fmt.Sprintf("%s %s: status %d, want %d", method, r.Route, resp.StatusCode, wantStatus),
			Severity: "blocking",
		}
	}
	return nil
}
