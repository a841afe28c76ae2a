package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hark/apps/backend/features/workflow"
	"hark/apps/backend/internal/config"
	"hark/apps/backend/internal/lock"
	"hark/apps/backend/internal/middleware"
)

const tickLockKey = "scheduler:tick"

type DueLister interface {
	ListDue(ctx context.Context, now time.Time) ([]workflow.Workflow, error)
	MarkScheduled(ctx context.Context, id string, at time.Time) error
}

type Publisher interface {
	Publish(topic string, body []byte) error
}

// Scheduler turns workflow intervals into run tasks on the queue. Workflows
// with a zero interval are only run when triggered.
type Scheduler struct {
	repo     DueLister
	pub      Publisher
	locker   lock.Locker
	interval time.Duration
	now      func() time.Time
}

// New builds a scheduler. With a locker, only one instance enqueues per tick.
func New(repo DueLister, pub Publisher, locker lock.Locker, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{repo: repo, pub: pub, locker: locker, interval: interval, now: time.Now}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				slog.ErrorContext(ctx, "scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick enqueues every due workflow and returns how many were enqueued. A
// workflow whose publish fails stays due and is retried on the next tick.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, tickLockKey, s.interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() { _ = release(context.WithoutCancel(ctx)) }()
	}

	now := s.now().UTC()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due workflows: %w", err)
	}

	enqueued := 0
	for _, w := range due {
		task := workflow.RunTask{
			WorkflowID:    w.ID,
			CorrelationID: uuid.New().String(),
			ScheduledAt:   now,
		}
		tctx := middleware.WithWorkflowID(middleware.WithCorrelationID(ctx, task.CorrelationID), w.ID)

		body, err := json.Marshal(task)
		if err != nil {
			return enqueued, err
		}
		if err := s.pub.Publish(config.TopicWorkflowRun, body); err != nil {
			slog.ErrorContext(tctx, "failed to enqueue scheduled run", "error", err)
			continue
		}
		if err := s.repo.MarkScheduled(ctx, w.ID, now); err != nil {
			slog.ErrorContext(tctx, "failed to mark workflow scheduled", "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		slog.InfoContext(ctx, "scheduled workflow runs", "count", enqueued)
	}
	return enqueued, nil
}
