package worker

import (
	"context"

	"hark/apps/backend/features/job"
	"hark/apps/backend/internal/processor"
)

// Processor runs one pass for a stored workflow.
type Processor interface {
	Process(ctx context.Context, workflowID string) (*processor.Report, error)
}

// FailedJobs records passes that did not complete.
type FailedJobs interface {
	Save(ctx context.Context, j *job.Job) error
}
