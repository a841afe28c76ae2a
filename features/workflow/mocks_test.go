package workflow_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"hark/apps/backend/features/workflow"
	"hark/apps/backend/internal/pipeline"
)

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Create(ctx context.Context, w *workflow.Workflow) error {
	args := m.Called(ctx, w)
	if args.Error(0) == nil {
		w.ID = "wf-1"
	}
	return args.Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*workflow.Workflow), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context) ([]workflow.Workflow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]workflow.Workflow), args.Error(1)
}

func (m *MockRepo) Update(ctx context.Context, w *workflow.Workflow) error {
	return m.Called(ctx, w).Error(0)
}

func (m *MockRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockRepo) ListDue(ctx context.Context, now time.Time) ([]workflow.Workflow, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]workflow.Workflow), args.Error(1)
}

func (m *MockRepo) MarkScheduled(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, id string) (pipeline.Checkpoint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pipeline.Checkpoint), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, id string, cp pipeline.Checkpoint) error {
	return m.Called(ctx, id, cp).Error(0)
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockPublisher struct {
	Topic string
	Body  []byte
	Err   error
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	m.Topic, m.Body = topic, body
	return m.Err
}
