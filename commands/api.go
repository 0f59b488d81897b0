package commands

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/c360studio/uatgate/export"
	"github.com/c360studio/uatgate/orchestrator"
	"github.com/c360studio/uatgate/storage"
)

// api serves the gateway's HTTP surface in serve mode.
type api struct {
	g *Gateway
}

func newAPI(g *Gateway) *api {
	return &api{g: g}
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.Handle("GET /metrics", a.g.Metrics.Handler())
	mux.HandleFunc("POST /runs", a.handleTrigger)
	mux.HandleFunc("GET /runs", a.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", a.handleStatus)
	mux.HandleFunc("GET /runs/{id}/report", a.handleReport)
	mux.HandleFunc("POST /runs/{id}/cancel", a.handleCancel)
	mux.HandleFunc("POST /fixes/{id}/confirm", a.handleConfirm)
	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTrigger starts a run. Triggering while the project already has an
// active run returns the active run's ID, same as the service contract.
func (a *api) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Project   string   `json:"project"`
		SpecPath  string   `json:"spec_path"`
		ChangeSet []string `json:"change_set"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	runID, err := a.g.Service.Trigger(r.Context(), orchestrator.RunConfig{
		Project:   req.Project,
		SpecPath:  req.SpecPath,
		ChangeSet: req.ChangeSet,
	})
	if err != nil {
		a.g.Logger.Error("trigger run", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	a.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (a *api) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := a.g.store.ListRuns(r.Context())
	if err != nil {
		a.g.Logger.Error("list runs", "error", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	a.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.g.Service.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		a.g.Logger.Error("run status", "error", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, http.StatusOK, st)
}

func (a *api) handleReport(w http.ResponseWriter, r *http.Request) {
	format := export.FormatMarkdown
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := export.ParseFormat(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}

	rep, err := a.g.Service.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		a.g.Logger.Error("run report", "error", err)
		http.Error(w, "Failed to build report", http.StatusInternalServerError)
		return
	}

	data, err := rep.Render(format)
	if err != nil {
		a.g.Logger.Error("render report", "error", err)
		http.Error(w, "Failed to render report", http.StatusInternalServerError)
		return
	}

	info, _ := export.GetFormatInfo(format)
	w.Header().Set("Content-Type", info.MIMEType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		a.g.Logger.Warn("write report response", "error", err)
	}
}

func (a *api) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if err := a.g.Service.Cancel(r.Context(), runID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "stage": "cancelling"})
}

func (a *api) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Accept *bool `json:"accept"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	accept := true
	if req.Accept != nil {
		accept = *req.Accept
	}

	fixID := r.PathValue("id")
	if err := a.g.Service.Confirm(r.Context(), fixID, accept); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	outcome := "accepted"
	if !accept {
		outcome = "rejected"
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"fix_id": fixID, "outcome": outcome})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.g.Logger.Warn("write response", "error", err)
	}
}
