package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hark/apps/backend/internal/config"
)

const DefaultPublishTimeout = 5 * time.Second

var ErrPublishTimeout = errors.New("timeout waiting for NSQ publish")

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	logger *slog.Logger

	// PublishTimeout bounds a retry's publish; zero means DefaultPublishTimeout.
	PublishTimeout time.Duration
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, pub: pub, logger: logger}
}

// List returns failed passes; an empty workflowID lists all of them.
func (s *Service) List(ctx context.Context, workflowID string) ([]Job, error) {
	return s.repo.List(ctx, workflowID)
}

// Retry re-enqueues the failed run and drops the job. The returned job is
// the one that was re-enqueued.
func (s *Service) Retry(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	timeout := s.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}

	// nsq.Producer.Publish blocks without a context
	done := make(chan error, 1)
	go func() {
		done <- s.pub.Publish(config.TopicWorkflowRun, job.Payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-time.After(timeout):
		return nil, ErrPublishTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.logger.InfoContext(ctx, "failed job retried", "id", id, "workflow_id", job.WorkflowID, "retries", job.Retries)
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return job, nil
}

// Dismiss drops a failed pass without running it again.
func (s *Service) Dismiss(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "failed job dismissed", "id", id, "workflow_id", job.WorkflowID)
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
