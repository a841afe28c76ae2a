package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"hark/apps/backend/internal/middleware"
	"hark/apps/backend/internal/pipeline"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type request struct {
	Name            string `json:"name"`
	Config          Config `json:"config"`
	IntervalSeconds int    `json:"interval_seconds"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	wf := &Workflow{Name: req.Name, Config: req.Config, IntervalSeconds: req.IntervalSeconds}
	if err := h.service.Create(r.Context(), wf); err != nil {
		h.fail(r.Context(), w, "failed to create workflow", err)
		return
	}
	h.writeData(r.Context(), w, http.StatusCreated, wf)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wfs, err := h.service.List(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to list workflows", err)
		return
	}
	if wfs == nil {
		wfs = []Workflow{}
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"data": wfs,
		"meta": map[string]int{"count": len(wfs)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	wf, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(r.Context(), w, "failed to get workflow", err)
		return
	}
	h.writeData(r.Context(), w, http.StatusOK, wf)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	wf := &Workflow{ID: r.PathValue("id"), Name: req.Name, Config: req.Config, IntervalSeconds: req.IntervalSeconds}
	if err := h.service.Update(r.Context(), wf); err != nil {
		h.fail(r.Context(), w, "failed to update workflow", err)
		return
	}
	h.writeData(r.Context(), w, http.StatusOK, wf)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.fail(r.Context(), w, "failed to delete workflow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	task, err := h.service.Trigger(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(r.Context(), w, "failed to trigger workflow", err)
		return
	}
	h.writeData(r.Context(), w, http.StatusAccepted, task)
}

func (h *Handler) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := h.service.Checkpoint(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(r.Context(), w, "failed to read checkpoint", err)
		return
	}
	h.writeData(r.Context(), w, http.StatusOK, cp)
}

func (h *Handler) ResetCheckpoint(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetCheckpoint(r.Context(), r.PathValue("id")); err != nil {
		h.fail(r.Context(), w, "failed to reset checkpoint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps service errors onto the API error envelope.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.writeError(ctx, w, "NOT_FOUND", "Workflow not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrConfiguration):
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
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
