package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"hark/apps/backend/internal/checkpoint"
	"hark/apps/backend/internal/config"
	"hark/apps/backend/internal/middleware"
	"hark/apps/backend/internal/pipeline"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo        Repository
	checkpoints checkpoint.Store
	pub         EventPublisher
	now         func() time.Time
}

func NewService(repo Repository, checkpoints checkpoint.Store, pub EventPublisher) *Service {
	return &Service{repo: repo, checkpoints: checkpoints, pub: pub, now: time.Now}
}

func (s *Service) Create(ctx context.Context, w *Workflow) error {
	if _, err := w.Validate(); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return err
	}
	slog.InfoContext(ctx, "workflow created", "workflow_id", w.ID, "name", w.Name)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Workflow, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Workflow, error) {
	return s.repo.List(ctx)
}

// Update replaces the workflow's name, config and interval. The checkpoint is
// kept, so a changed source config resumes where the old one stopped.
func (s *Service) Update(ctx context.Context, w *Workflow) error {
	if _, err := w.Validate(); err != nil {
		return err
	}
	return s.repo.Update(ctx, w)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Trigger enqueues a pass for the workflow.
func (s *Service) Trigger(ctx context.Context, id string) (*RunTask, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	task := &RunTask{
		WorkflowID:    id,
		CorrelationID: middleware.GetCorrelationID(ctx),
		ScheduledAt:   s.now().UTC(),
	}
	body, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	if err := s.pub.Publish(config.TopicWorkflowRun, body); err != nil {
		return nil, fmt.Errorf("failed to enqueue run: %w", err)
	}
	slog.InfoContext(ctx, "workflow run enqueued", "workflow_id", id)
	return task, nil
}

func (s *Service) Checkpoint(ctx context.Context, id string) (pipeline.Checkpoint, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	cp, err := s.checkpoints.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		cp = pipeline.Checkpoint{}
	}
	return cp, nil
}

// ResetCheckpoint drops the stored state; the next pass starts from the
// configured lookback window.
func (s *Service) ResetCheckpoint(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if err := s.checkpoints.Delete(ctx, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "checkpoint reset", "workflow_id", id)
	return nil
}
