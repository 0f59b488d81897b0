package commands

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/uatgate/config"
	"github.com/c360studio/uatgate/model"
)

// webshopSpec drives a full run over the API: two flow journeys, the first
// critical. The steps only touch generated fixture pages, so the run settles
// green with no product deployment behind it.
const webshopSpec = `---
title: Webshop
critical:
  - Checkout
---

# Webshop

## Checkout Flow

1. Navigate to the cart page
2. Click the place order button -> Order placed
3. Verify the order confirmation banner

## Browse Catalog Flow

1. Navigate to the catalog page
2. Click the category filter -> Filtered results
`

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	root := t.TempDir()

	specPath := filepath.Join(root, "webshop.md")
	require.NoError(t, os.WriteFile(specPath, []byte(webshopSpec), 0o644))

	cfg := config.DefaultConfig()
	cfg.Project = "webshop"
	cfg.Paths.Spec = specPath
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.Artifacts = filepath.Join(root, "artifacts")
	cfg.Paths.Baselines = filepath.Join(root, "baselines")
	cfg.Paths.DependencyMap = filepath.Join(root, "depmap.yaml")
	cfg.Execution.MaxRetries = 0
	cfg.Execution.ScenarioTimeout = "10s"

	g, err := openGateway(context.Background(), cfg, testLogger(), false)
	require.NoError(t, err)
	t.Cleanup(func() { g.Shutdown(context.Background()) })
	return g
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil && resp.StatusCode < http.StatusBadRequest {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, into any) int {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	resp, err := http.Post(url, "application/json", rd)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil && resp.StatusCode < http.StatusBadRequest {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestAPI_Health(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(newAPI(g).routes())
	defer srv.Close()

	var body map[string]string
	code := getJSON(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestAPI_RunLifecycle(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(newAPI(g).routes())
	defer srv.Close()

	// An empty trigger body runs the configured spec.
	var started map[string]string
	code := postJSON(t, srv.URL+"/runs", "", &started)
	require.Equal(t, http.StatusAccepted, code)
	runID := started["run_id"]
	require.NotEmpty(t, runID)

	stage, err := g.Service.Wait(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, model.StageReadyForReview, stage)

	var st struct {
		RunID            string `json:"run_id"`
		Stage            string `json:"stage"`
		JourneysTotal    int    `json:"journeys_total"`
		ScenariosTotal   int    `json:"scenarios_total"`
		ScenariosPassing int    `json:"scenarios_passing"`
	}
	code = getJSON(t, srv.URL+"/runs/"+runID, &st)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, runID, st.RunID)
	assert.Equal(t, "ready_for_review", st.Stage)
	assert.Equal(t, 2, st.JourneysTotal)
	assert.Equal(t, 2, st.ScenariosTotal)
	assert.Equal(t, 2, st.ScenariosPassing)

	var list struct {
		Runs []model.Run `json:"runs"`
	}
	code = getJSON(t, srv.URL+"/runs", &list)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, runID, list.Runs[0].ID)

	resp, err := http.Get(srv.URL + "/runs/" + runID + "/report")
	require.NoError(t, err)
	md, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(md), "# UAT report: "+runID))

	var rep map[string]any
	resp, err = http.Get(srv.URL + "/runs/" + runID + "/report?format=json")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, runID, rep["run_id"])

	code = getJSON(t, srv.URL+"/runs/"+runID+"/report?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// The run already settled, so cancelling conflicts.
	code = postJSON(t, srv.URL+"/runs/"+runID+"/cancel", "", nil)
	assert.Equal(t, http.StatusConflict, code)

	code = postJSON(t, srv.URL+"/fixes/fix-missing0001/confirm", `{"accept": false}`, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestAPI_StatusNotFound(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(newAPI(g).routes())
	defer srv.Close()

	code := getJSON(t, srv.URL+"/runs/run-missing00001", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code = getJSON(t, srv.URL+"/runs/run-missing00001/report", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAPI_TriggerBody(t *testing.T) {
	g := newTestGateway(t)
	srv := httptest.NewServer(newAPI(g).routes())
	defer srv.Close()

	specPath := g.Config.Paths.Spec
	g.Config.Paths.Spec = ""

	resp, err := http.Post(srv.URL+"/runs", "application/json", nil)
	require.NoError(t, err)
	msg, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(msg), "no specification document")

	// The spec path from the request body fills the gap.
	var started map[string]string
	code := postJSON(t, srv.URL+"/runs", `{"spec_path": `+strconv.Quote(specPath)+`}`, &started)
	require.Equal(t, http.StatusAccepted, code)
	require.NotEmpty(t, started["run_id"])

	_, err = g.Service.Wait(context.Background(), started["run_id"])
	assert.NoError(t, err)
}
