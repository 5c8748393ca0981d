// Package httpapi exposes the governance engine over HTTP: one JSON
// endpoint per engine operation, an analytics read endpoint, health, and
// Prometheus metrics. The engine itself is transport-agnostic; this
// package is the service wrapper around it.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/detectops/contentgov/analytics"
	"github.com/detectops/contentgov/content"
	"github.com/detectops/contentgov/governance"
	"github.com/detectops/contentgov/storage"
)

// maxRequestBodySize limits request bodies to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler provides HTTP endpoints for governance operations.
type Handler struct {
	engine     *governance.Engine
	aggregator *analytics.Aggregator
	logger     *slog.Logger

	// defaultActor is used when a request omits the actor field.
	defaultActor string
}

// NewHandler creates an HTTP handler over the given engine and
// aggregator.
func NewHandler(engine *governance.Engine, aggregator *analytics.Aggregator, defaultActor string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:       engine,
		aggregator:   aggregator,
		logger:       logger,
		defaultActor: defaultActor,
	}
}

// log returns the logger, defaulting to slog.Default if nil.
func (h *Handler) log() *slog.Logger {
	if h.logger == nil {
		return slog.Default()
	}
	return h.logger
}

// RegisterHTTPHandlers registers the governance API endpoints.
// The prefix should be "" or "/api" (without trailing slash).
func (h *Handler) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	prefix = strings.TrimSuffix(prefix, "/")

	mux.HandleFunc("POST "+prefix+"/items", h.instrument("create_item", h.handleCreateItem))
	mux.HandleFunc("GET "+prefix+"/items", h.instrument("list_items", h.handleListItems))
	mux.HandleFunc("GET "+prefix+"/items/{id}", h.instrument("get_item", h.handleGetItem))

	mux.HandleFunc("POST "+prefix+"/items/{id}/branch", h.instrument("create_branch", h.handleCreateBranch))
	mux.HandleFunc("POST "+prefix+"/items/{id}/pull-request", h.instrument("create_pull_request", h.handleCreatePullRequest))
	mux.HandleFunc("POST "+prefix+"/items/{id}/review", h.instrument("review", h.handleReview))
	mux.HandleFunc("POST "+prefix+"/items/{id}/merge", h.instrument("merge", h.handleMerge))
	mux.HandleFunc("POST "+prefix+"/items/{id}/fork", h.instrument("fork", h.handleFork))
	mux.HandleFunc("POST "+prefix+"/items/{id}/advance-phase", h.instrument("advance_phase", h.handleAdvancePhase))
	mux.HandleFunc("POST "+prefix+"/items/{id}/test-results", h.instrument("record_test_results", h.handleTestResults))

	mux.HandleFunc("POST "+prefix+"/items/{id}/dependencies", h.instrument("add_dependency", h.handleAddDependency))
	mux.HandleFunc("DELETE "+prefix+"/items/{id}/dependencies/{dep}", h.instrument("remove_dependency", h.handleRemoveDependency))

	mux.HandleFunc("GET "+prefix+"/analytics", h.instrument("analytics", h.handleAnalytics))
	mux.HandleFunc("GET "+prefix+"/healthz", h.handleHealthz)
}

// actor resolves the acting user for a request.
func (h *Handler) actor(requested string) string {
	if requested != "" {
		return requested
	}
	return h.defaultActor
}

// decode reads a JSON request body into dst, enforcing the size cap.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse body: %w", err)
	}
	return nil
}

// CreateItemRequest is the request body for POST /items.
type CreateItemRequest struct {
	ID           string          `json:"id,omitempty"`
	ContentType  string          `json:"content_type"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	Severity     string          `json:"severity,omitempty"`
	ContentData  json.RawMessage `json:"content_data,omitempty"`
	Requirements json.RawMessage `json:"requirements,omitempty"`
	Actor        string          `json:"actor,omitempty"`
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.engine.CreateItem(r.Context(), h.actor(req.Actor), governance.NewItemParams{
		ID:           req.ID,
		ContentType:  content.ContentType(req.ContentType),
		Name:         req.Name,
		Description:  req.Description,
		Category:     req.Category,
		Severity:     req.Severity,
		ContentData:  req.ContentData,
		Requirements: req.Requirements,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.Filter{
		ContentType: content.ContentType(q.Get("content_type")),
		Status:      content.Status(q.Get("status")),
		Phase:       content.Phase(q.Get("phase")),
	}

	items, err := h.engine.ListItems(r.Context(), filter)
	if err != nil {
		h.log().Error("Failed to list items", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "item id required")
		return
	}

	item, err := h.engine.GetItem(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// BranchRequest is the request body for POST /items/{id}/branch.
type BranchRequest struct {
	BranchName string `json:"branch_name"`
	Actor      string `json:"actor,omitempty"`
}

func (h *Handler) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req BranchRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.engine.CreateBranch(r.Context(), id, req.BranchName, h.actor(req.Actor))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, item)
}

// PullRequestRequest is the request body for POST /items/{id}/pull-request.
type PullRequestRequest struct {
	TargetBranch string `json:"target_branch"`
	Description  string `json:"description,omitempty"`
	Actor        string `json:"actor,omitempty"`
}

func (h *Handler) handleCreatePullRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req PullRequestRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TargetBranch == "" {
		req.TargetBranch = governance.MainBranch
	}

	item, err := h.engine.CreatePullRequest(r.Context(), id, req.TargetBranch, req.Description, h.actor(req.Actor))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// ReviewRequest is the request body for POST /items/{id}/review.
type ReviewRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
	Actor   string `json:"actor,omitempty"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req ReviewRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.engine.ReviewContent(r.Context(), id, content.ReviewStatus(req.Status), req.Comment, h.actor(req.Actor))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// ActorRequest is the request body for operations that only need an actor.
type ActorRequest struct {
	Actor string `json:"actor,omitempty"`
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req ActorRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.engine.MergeContent(r.Context(), id, h.actor(req.Actor))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleFork(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req ActorRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.engine.ForkContent(r.Context(), id, h.actor(req.Actor))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleAdvancePhase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req ActorRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.engine.AdvancePhase(r.Context(), id, h.actor(req.Actor))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// TestResultsRequest is the request body for POST /items/{id}/test-results.
type TestResultsRequest struct {
	Total  int    `json:"total"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
	Actor  string `json:"actor,omitempty"`
}

func (h *Handler) handleTestResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req TestResultsRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.engine.RecordTestResults(r.Context(), id, h.actor(req.Actor), req.Total, req.Passed, req.Failed)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// DependencyRequest is the request body for POST /items/{id}/dependencies.
type DependencyRequest struct {
	DependsOn string `json:"depends_on"`
	Actor     string `json:"actor,omitempty"`
}

func (h *Handler) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req DependencyRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DependsOn == "" {
		h.writeError(w, http.StatusBadRequest, "depends_on is required")
		return
	}

	if err := h.engine.AddDependency(r.Context(), id, req.DependsOn, h.actor(req.Actor)); err != nil {
		h.writeEngineError(w, err)
		return
	}

	item, err := h.engine.GetItem(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dep := r.PathValue("dep")

	// DELETE carries no body; the actor arrives as a query parameter.
	actor := h.actor(r.URL.Query().Get("actor"))

	if err := h.engine.RemoveDependency(r.Context(), id, dep, actor); err != nil {
		h.writeEngineError(w, err)
		return
	}

	item, err := h.engine.GetItem(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.aggregator.Report(r.Context())
	if err != nil {
		h.log().Error("Failed to compute analytics", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to compute analytics")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeEngineError maps engine errors to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var vErr *content.ValidationError

	switch {
	case errors.Is(err, governance.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, governance.ErrPreconditionFailed):
		h.writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, governance.ErrCycleDetected),
		errors.Is(err, storage.ErrAlreadyExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, governance.ErrInvalidTransition):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &vErr),
		errors.Is(err, governance.ErrBranchNameRequired),
		errors.Is(err, governance.ErrActorRequired):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log().Error("Operation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log().Warn("Failed to write JSON response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
