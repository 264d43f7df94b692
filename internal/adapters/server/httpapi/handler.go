// Package httpapi provides the REST HTTP adapter mounted under
// `/api/v1`.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/evanschultz/rz/internal/app"
	"github.com/evanschultz/rz/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter.
type Handler struct {
	svc *app.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs the REST adapter over the task service.
func NewHandler(svc *app.Service) *Handler {
	return &Handler{svc: svc}
}

// createTaskRequest is the POST /tasks payload.
type createTaskRequest struct {
	Text       string   `json:"text"`
	Resistance *int     `json:"resistance,omitempty"`
	Level      string   `json:"level,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	ParentID   string   `json:"parent_id,omitempty"`
}

// splitTaskRequest is the POST /tasks/{id}/split payload.
type splitTaskRequest struct {
	Lines        []string `json:"lines"`
	Mode         string   `json:"mode,omitempty"`
	InheritNotes bool     `json:"inherit_notes,omitempty"`
}

// ServeHTTP routes one versioned API request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)
	switch {
	case path == "tasks":
		switch r.Method {
		case http.MethodGet:
			h.handleListTasks(w, r)
		case http.MethodPost:
			h.handleCreateTask(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case path == "stats/today":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		stats, err := h.svc.TodayStats(r.Context())
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case strings.HasPrefix(path, "stats/"):
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		day := strings.TrimPrefix(path, "stats/")
		stats, err := h.svc.DayStats(r.Context(), day)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	case path == "snapshot":
		switch r.Method {
		case http.MethodGet:
			h.handleExportSnapshot(w, r)
		case http.MethodPost:
			h.handleImportSnapshot(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case path == "settings":
		switch r.Method {
		case http.MethodGet:
			settings, err := h.svc.Settings(r.Context())
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, settings)
		case http.MethodPost:
			h.handleUpdateSettings(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	default:
		taskID, action, ok := resolveTaskRoute(path)
		if !ok {
			writeJSONError(w, http.StatusNotFound, APIError{
				Code:    "not_found",
				Message: "endpoint not found",
			})
			return
		}
		h.handleTaskRoute(w, r, taskID, action)
	}
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []domain.Task
		err   error
	)
	switch strings.TrimSpace(r.URL.Query().Get("view")) {
	case "", "visible":
		tasks, err = h.svc.VisibleTasks(r.Context())
	case "all":
		tasks, err = h.svc.ListTasks(r.Context())
	default:
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "view must be visible or all",
		})
		return
	}
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	task, err := h.svc.CreateTask(r.Context(), app.CreateTaskInput{
		Text:       req.Text,
		Resistance: req.Resistance,
		Level:      domain.Level(req.Level),
		Notes:      req.Notes,
		Tags:       req.Tags,
		ParentID:   req.ParentID,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// handleTaskRoute serves GET /tasks/{id} and POST /tasks/{id}/{action}.
func (h *Handler) handleTaskRoute(w http.ResponseWriter, r *http.Request, taskID, action string) {
	if action == "" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		task, err := h.svc.GetTask(r.Context(), taskID)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}

	var (
		task domain.Task
		err  error
	)
	switch action {
	case "mark":
		task, err = h.svc.Mark(r.Context(), taskID)
	case "unmark":
		task, err = h.svc.Unmark(r.Context(), taskID)
	case "reenter":
		task, err = h.svc.Reenter(r.Context(), taskID)
	case "complete":
		task, err = h.svc.Complete(r.Context(), taskID)
	case "archive":
		task, err = h.svc.Archive(r.Context(), taskID)
	case "collapse":
		task, err = h.svc.ToggleCollapse(r.Context(), taskID)
	case "unlink":
		task, err = h.svc.UnlinkChildren(r.Context(), taskID)
	case "start-timer":
		task, err = h.svc.StartTimer(r.Context(), taskID)
	case "stop-timer":
		task, err = h.svc.StopTimer(r.Context(), taskID)
	case "split":
		h.handleSplitTask(w, r, taskID)
		return
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "unknown task action " + action,
		})
		return
	}
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	// Stale ids are tolerated in-process but surface as 404 over HTTP.
	if task.ID == "" {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "task not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleSplitTask(w http.ResponseWriter, r *http.Request, taskID string) {
	var req splitTaskRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	result, err := h.svc.Split(r.Context(), app.SplitInput{
		TaskID:       taskID,
		Lines:        req.Lines,
		Mode:         domain.SplitMode(req.Mode),
		InheritNotes: req.InheritNotes,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	if result.Parent.ID == "" {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "task not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := decodeJSONBody(r.Context(), w, r, &settings); err != nil {
		writeErrorFrom(w, err)
		return
	}
	saved, err := h.svc.UpdateSettings(r.Context(), settings)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.ExportSnapshot(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap app.Snapshot
	if err := decodeJSONBody(r.Context(), w, r, &snap); err != nil {
		writeErrorFrom(w, err)
		return
	}
	if err := h.svc.ImportSnapshot(r.Context(), snap); err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": true})
}

// resolveTaskRoute parses `tasks/{id}` and `tasks/{id}/{action}`.
func resolveTaskRoute(path string) (taskID, action string, ok bool) {
	const prefix = "tasks/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	taskID = strings.TrimSpace(parts[0])
	if taskID == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		action = strings.TrimSpace(parts[1])
		if action == "" || strings.Contains(action, "/") {
			return "", "", false
		}
	}
	return taskID, action, true
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps service errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, app.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, app.ErrImportInvalid),
		errors.Is(err, domain.ErrEmptyText),
		errors.Is(err, domain.ErrEmptySplit),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidLevel),
		errors.Is(err, domain.ErrInvalidResistance),
		errors.Is(err, domain.ErrInvalidSplitMode),
		errors.Is(err, domain.ErrInvalidDirection):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow`
// headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict
// shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(domain.ErrInvalidID, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", domain.ErrInvalidID)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
