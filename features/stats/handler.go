package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"hark/apps/backend/internal/middleware"
)

type WorkflowRepo interface {
	Count(ctx context.Context) (int, error)
}

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

type RecordIndex interface {
	CountRecords(ctx context.Context) (int, error)
}

type Handler struct {
	workflowRepo WorkflowRepo
	jobRepo      JobRepo
	index        RecordIndex
}

// NewHandler builds the stats handler. A nil index reports zero records,
// which is the case when no Weaviate sink is deployed.
func NewHandler(w WorkflowRepo, j JobRepo, idx RecordIndex) *Handler {
	return &Handler{workflowRepo: w, jobRepo: j, index: idx}
}

type StatsResponse struct {
	Workflows  int `json:"workflows"`
	Records    int `json:"records"`
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	wCount, err := h.workflowRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count workflows", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count workflows", http.StatusInternalServerError)
		return
	}

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	var rCount int
	if h.index != nil {
		rCount, err = h.index.CountRecords(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count records", "error", err, "correlationId", correlationID)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count records", http.StatusInternalServerError)
			return
		}
	}

	resp := StatsResponse{
		Workflows:  wCount,
		Records:    rCount,
		FailedJobs: jCount,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
