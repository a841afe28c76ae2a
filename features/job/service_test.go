package job_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hark/apps/backend/features/job"
	"hark/apps/backend/internal/config"
)

func TestService_Retry(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := job.NewService(repo, pub, slog.Default())
	payload := []byte(`{"workflow_id":"wf-1"}`)

	repo.On("Get", mock.Anything, "1").Return(&job.Job{ID: "1", WorkflowID: "wf-1", Payload: payload}, nil)
	pub.On("Publish", config.TopicWorkflowRun, mock.MatchedBy(func(b []byte) bool { return string(b) == string(payload) })).Return(nil).Once()
	repo.On("Delete", mock.Anything, "1").Return(nil).Once()

	j, err := svc.Retry(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", j.WorkflowID)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestService_Retry_PublishFailureKeepsJob(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := job.NewService(repo, pub, nil)

	repo.On("Get", mock.Anything, "1").Return(&job.Job{ID: "1"}, nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nsqd down"))

	_, err := svc.Retry(context.Background(), "1")
	assert.Error(t, err)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestService_Retry_ContextCancelled(t *testing.T) {
	repo := new(MockRepo)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	pub := &blockingPublisher{block: block}
	svc := job.NewService(repo, pub, nil)

	repo.On("Get", mock.Anything, "1").Return(&job.Job{ID: "1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Retry(ctx, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingPublisher struct {
	block chan struct{}
}

func (p *blockingPublisher) Publish(string, []byte) error {
	<-p.block
	return nil
}

func TestService_ListAndCount(t *testing.T) {
	repo := new(MockRepo)
	svc := job.NewService(repo, nil, nil)

	repo.On("List", mock.Anything, "").Return([]job.Job{{ID: "1"}, {ID: "2"}}, nil)
	repo.On("Count", mock.Anything).Return(2, nil)

	jobs, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	count, err := svc.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestService_Retry_PublishTimeout(t *testing.T) {
	repo := new(MockRepo)
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	svc := job.NewService(repo, &blockingPublisher{block: block}, nil)
	svc.PublishTimeout = 10 * time.Millisecond

	repo.On("Get", mock.Anything, "1").Return(&job.Job{ID: "1"}, nil)

	_, err := svc.Retry(context.Background(), "1")
	assert.ErrorIs(t, err, job.ErrPublishTimeout)
	repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
