package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detectops/contentgov/analytics"
	"github.com/detectops/contentgov/governance"
	"github.com/detectops/contentgov/storage"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := storage.NewMemoryStore()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := governance.NewEngine(store, governance.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	aggregator := analytics.NewAggregator(store)
	handler := NewHandler(engine, aggregator, "system", nil)

	mux := http.NewServeMux()
	handler.RegisterHTTPHandlers("/api", mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createTestItem(t *testing.T, srv *httptest.Server, id string) {
	t.Helper()
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/items", map[string]any{
		"id":           id,
		"content_type": "correlation",
		"name":         "Impossible Travel",
		"actor":        "alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateAndGetItem(t *testing.T) {
	srv := testServer(t)

	resp, created := doJSON(t, srv, http.MethodPost, "/api/items", map[string]any{
		"id":           "corr-1",
		"content_type": "correlation",
		"name":         "Impossible Travel",
		"severity":     "high",
		"content_data": map[string]any{"query": "geo.delta > threshold"},
		"actor":        "alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "corr-1", created["id"])
	assert.Equal(t, float64(1), created["version"])
	assert.Equal(t, "draft", created["status"])
	assert.Equal(t, "requirement", created["ddlc_phase"])

	resp, got := doJSON(t, srv, http.MethodGet, "/api/items/corr-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Impossible Travel", got["name"])
}

func TestGetItem_NotFound(t *testing.T) {
	srv := testServer(t)

	resp, body := doJSON(t, srv, http.MethodGet, "/api/items/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "missing")
}

func TestCreateItem_Invalid(t *testing.T) {
	srv := testServer(t)

	resp, body := doJSON(t, srv, http.MethodPost, "/api/items", map[string]any{
		"content_type": "widget",
		"name":         "Bad Type",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "content_type")
}

func TestCreateItem_DuplicateConflict(t *testing.T) {
	srv := testServer(t)
	createTestItem(t, srv, "corr-1")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/items", map[string]any{
		"id":           "corr-1",
		"content_type": "correlation",
		"name":         "Duplicate",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

// The full promotion path over HTTP: branch, pull request, review, merge.
func TestBranchReviewMergeOverHTTP(t *testing.T) {
	srv := testServer(t)
	createTestItem(t, srv, "corr-1")

	resp, branch := doJSON(t, srv, http.MethodPost, "/api/items/corr-1/branch", map[string]any{
		"branch_name": "tune-threshold",
		"actor":       "alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	branchID, _ := branch["id"].(string)
	require.NotEmpty(t, branchID)
	require.NotEqual(t, "corr-1", branchID)

	base := "/api/items/" + branchID

	resp, withPR := doJSON(t, srv, http.MethodPost, base+"/pull-request", map[string]any{
		"description": "Raise threshold",
		"actor":       "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	git := withPR["git_info"].(map[string]any)
	assert.Equal(t, float64(1), git["pull_request"])
	assert.Equal(t, "pending", git["review_status"])

	// Merge before approval must fail with 412 Precondition Failed.
	resp, _ = doJSON(t, srv, http.MethodPost, base+"/merge", map[string]any{"actor": "alice"})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, base+"/review", map[string]any{
		"status": "approved",
		"actor":  "bob",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, merged := doJSON(t, srv, http.MethodPost, base+"/merge", map[string]any{"actor": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "published", merged["status"])
	git = merged["git_info"].(map[string]any)
	assert.Equal(t, "main", git["branch"])
	assert.Equal(t, "merged", git["merge_status"])
}

func TestReview_InvalidStatus(t *testing.T) {
	srv := testServer(t)
	createTestItem(t, srv, "corr-1")

	resp, _ := doJSON(t, srv, http.MethodPost, "/api/items/corr-1/review", map[string]any{
		"status": "pending",
		"actor":  "bob",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdvancePhaseOverHTTP(t *testing.T) {
	srv := testServer(t)
	createTestItem(t, srv, "corr-1")

	want := []string{"design", "development", "testing", "deployed", "monitoring"}
	for _, phase := range want {
		resp, got := doJSON(t, srv, http.MethodPost, "/api/items/corr-1/advance-phase", map[string]any{"actor": "alice"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, phase, got["ddlc_phase"])
	}

	// Terminal advance stays monitoring and still returns 200.
	resp, got := doJSON(t, srv, http.MethodPost, "/api/items/corr-1/advance-phase", map[string]any{"actor": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "monitoring", got["ddlc_phase"])
}

func TestForkOverHTTP(t *testing.T) {
	srv := testServer(t)
	createTestItem(t, srv, "corr-1")

	resp, fork := doJSON(t, srv, http.MethodPost, "/api/items/corr-1/fork", map[string]any{"actor": "carol"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "corr-1", fork["original_id"])
	assert.Equal(t, float64(1), fork["version"])

	resp, source := doJSON(t, srv, http.MethodGet, "/api/items/corr-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	forks, ok := source["forks"].([]any)
	require.True(t, ok)
	assert.Len(t, forks, 1)
}

func TestDependenciesOverHTTP(t *testing.T) {
	srv := testServer(t)
	createTestItem(t, srv, "corr-1")
	createTestItem(t, srv, "corr-2")

	resp, got := doJSON(t, srv, http.MethodPost, "/api/items/corr-1/dependencies", map[string]any{
		"depends_on": "corr-2",
		"actor":      "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	deps := got["dependencies"].([]any)
	assert.Contains(t, deps, "corr-2")

	// The reverse edge is a cycle and must be rejected with 409.
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/items/corr-2/dependencies", map[string]any{
		"depends_on": "corr-1",
		"actor":      "alice",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// A self-dependency is the degenerate cycle and conflicts too.
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/items/corr-1/dependencies", map[string]any{
		"depends_on": "corr-1",
		"actor":      "alice",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// DELETE takes the actor as a query parameter and records it.
	resp, got = doJSON(t, srv, http.MethodDelete, "/api/items/corr-1/dependencies/corr-2?actor=carol", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, got["dependencies"])
	collab := got["collaboration"].(map[string]any)
	assert.Equal(t, "carol", collab["last_modified_by"])
}

func TestTestResultsOverHTTP(t *testing.T) {
	srv := testServer(t)
	createTestItem(t, srv, "corr-1")

	resp, got := doJSON(t, srv, http.MethodPost, "/api/items/corr-1/test-results", map[string]any{
		"total": 5, "passed": 5, "failed": 0, "actor": "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "validated", got["test_status"])
}

func TestListItems_FilterQuery(t *testing.T) {
	srv := testServer(t)
	createTestItem(t, srv, "corr-1")
	createTestItem(t, srv, "corr-2")
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/items", map[string]any{
		"id":           "pb-1",
		"content_type": "playbook",
		"name":         "Containment",
		"actor":        "alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, srv, http.MethodGet, "/api/items?content_type=playbook", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp, body = doJSON(t, srv, http.MethodGet, "/api/items", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total"])
}

func TestAnalyticsEndpoint(t *testing.T) {
	srv := testServer(t)
	for i := 0; i < 3; i++ {
		createTestItem(t, srv, fmt.Sprintf("corr-%d", i))
	}
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/items/corr-0/advance-phase", map[string]any{"actor": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, report := doJSON(t, srv, http.MethodGet, "/api/analytics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dist := report["phase_distribution"].(map[string]any)
	assert.Equal(t, float64(2), dist["requirement"])
	assert.Equal(t, float64(1), dist["design"])

	completion := report["completion_rate"].(map[string]any)
	assert.Equal(t, float64(3), completion["total_packages"])

	transitions := report["recent_transitions"].([]any)
	require.Len(t, transitions, 1)
}

func TestHealthz(t *testing.T) {
	srv := testServer(t)
	resp, body := doJSON(t, srv, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestMalformedBody(t *testing.T) {
	srv := testServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/items", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActorDefaulting(t *testing.T) {
	srv := testServer(t)

	// No actor in the body: the configured default applies.
	resp, created := doJSON(t, srv, http.MethodPost, "/api/items", map[string]any{
		"id":           "corr-1",
		"content_type": "correlation",
		"name":         "Beaconing Detection",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	collab := created["collaboration"].(map[string]any)
	assert.Equal(t, "system", collab["last_modified_by"])
}
