package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"hark/apps/backend/features/job"
	"hark/apps/backend/features/workflow"
	"hark/apps/backend/internal/middleware"
	"hark/apps/backend/internal/processor"
)

const DefaultPassTimeout = 10 * time.Minute

// RunConsumer executes the run tasks published on the workflow.run topic.
// Messages are always acknowledged: a failed pass is recorded as a failed job
// and the next scheduled run picks up from the last committed checkpoint.
type RunConsumer struct {
	processor Processor
	jobs      FailedJobs
	timeout   time.Duration
}

func NewRunConsumer(p Processor, jobs FailedJobs, timeout time.Duration) *RunConsumer {
	if timeout <= 0 {
		timeout = DefaultPassTimeout
	}
	return &RunConsumer{processor: p, jobs: jobs, timeout: timeout}
}

func (h *RunConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task workflow.RunTask
	if err := json.Unmarshal(m.Body, &task); err != nil || task.WorkflowID == "" {
		// Poison Pill: don't retry
		slog.Error("poison pill: invalid run task", "error", err, "body", string(m.Body))
		return nil
	}

	correlationID := task.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	ctx := middleware.WithCorrelationID(context.Background(), correlationID)
	ctx = middleware.WithWorkflowID(ctx, task.WorkflowID)
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	report, err := h.processor.Process(ctx, task.WorkflowID)
	switch {
	case errors.Is(err, processor.ErrPassInProgress):
		slog.InfoContext(ctx, "pass already running, dropping task")
		return nil
	case errors.Is(err, workflow.ErrNotFound):
		slog.WarnContext(ctx, "run task for deleted workflow, dropping")
		return nil
	case err != nil:
		h.recordFailure(ctx, task, m.Body, err)
		return nil
	}

	if report.Skipped {
		return nil
	}
	slog.InfoContext(ctx, "run task completed",
		"fetched", report.Fetched,
		"delivered", report.Delivered(),
		"lag", time.Since(task.ScheduledAt),
	)
	return nil
}

func (h *RunConsumer) recordFailure(ctx context.Context, task workflow.RunTask, body []byte, cause error) {
	slog.ErrorContext(ctx, "workflow pass failed", "error", cause)
	failed := &job.Job{
		WorkflowID: task.WorkflowID,
		Handler:    job.HandlerWorkflowRun,
		Payload:    body,
		Error:      cause.Error(),
	}
	if err := h.jobs.Save(context.WithoutCancel(ctx), failed); err != nil {
		slog.ErrorContext(ctx, "failed to save failed job", "error", err)
	}
}
