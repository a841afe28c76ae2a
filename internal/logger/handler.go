package logger

import (
	"context"
	"log/slog"

	"hark/apps/backend/internal/middleware"
)

// ContextHandler copies request-scoped ids from the context onto each record.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(middleware.CorrelationKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if id := middleware.GetWorkflowID(ctx); id != "" {
		r.AddAttrs(slog.String("workflow_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
