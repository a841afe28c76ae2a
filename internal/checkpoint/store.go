package checkpoint

import (
	"context"
	"errors"

	"hark/apps/backend/internal/pipeline"
)

var ErrUnknownWorkflow = errors.New("checkpoint: unknown workflow")

// Store persists one checkpoint per workflow. Get returns nil when nothing has
// been stored yet. Put overwrites the whole blob. An empty workflow id is a
// stateless pass: Get returns nil and Put and Delete do nothing.
type Store interface {
	Get(ctx context.Context, workflowID string) (pipeline.Checkpoint, error)
	Put(ctx context.Context, workflowID string, cp pipeline.Checkpoint) error
	Delete(ctx context.Context, workflowID string) error
}
