package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"hark/apps/backend/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RetryResponse tells the caller which workflow got a new run task.
type RetryResponse struct {
	JobID      string `json:"job_id"`
	WorkflowID string `json:"workflow_id"`
	Retries    int    `json:"retries"`
}

// List serves GET /jobs/failed, optionally filtered with ?workflow_id=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflowID := r.URL.Query().Get("workflow_id")

	jobs, err := h.service.List(ctx, workflowID)
	if err != nil {
		h.fail(ctx, w, "failed to list jobs", err)
		return
	}
	if jobs == nil {
		jobs = []Job{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": jobs,
		"meta": map[string]interface{}{"count": len(jobs), "workflow_id": workflowID},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	job, err := h.service.Retry(ctx, id)
	if err != nil {
		h.fail(ctx, w, "failed to retry job", err)
		return
	}
	h.writeData(ctx, w, http.StatusAccepted, RetryResponse{JobID: job.ID, WorkflowID: job.WorkflowID, Retries: job.Retries})
}

func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Dismiss(r.Context(), r.PathValue("id")); err != nil {
		h.fail(r.Context(), w, "failed to dismiss job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		h.writeError(ctx, w, "NOT_FOUND", "Job not found", http.StatusNotFound)
	case errors.Is(err, ErrPublishTimeout):
		slog.WarnContext(ctx, msg, "error", err)
		h.writeError(ctx, w, "QUEUE_UNAVAILABLE", "Run queue did not accept the task in time", http.StatusServiceUnavailable)
	default:
		slog.ErrorContext(ctx, msg, "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeData(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": data}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
