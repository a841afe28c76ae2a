package checkpoint

import (
	"context"

	"github.com/patrickmn/go-cache"

	"hark/apps/backend/internal/pipeline"
)

// MemoryStore keeps checkpoints in process. Values are copied on the way in
// and out so callers never share maps with the store.
type MemoryStore struct {
	c *cache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: cache.New(cache.NoExpiration, 0)}
}

func (s *MemoryStore) Get(_ context.Context, workflowID string) (pipeline.Checkpoint, error) {
	if workflowID == "" {
		return nil, nil
	}
	v, ok := s.c.Get(workflowID)
	if !ok {
		return nil, nil
	}
	return v.(pipeline.Checkpoint).Clone(), nil
}

func (s *MemoryStore) Put(_ context.Context, workflowID string, cp pipeline.Checkpoint) error {
	if workflowID == "" {
		return nil
	}
	s.c.Set(workflowID, cp.Clone(), cache.NoExpiration)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, workflowID string) error {
	s.c.Delete(workflowID)
	return nil
}
