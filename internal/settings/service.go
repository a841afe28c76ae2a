package settings

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultEmbeddingModel = "gemini-embedding-001"

	cacheKey = "settings"
	cacheTTL = 30 * time.Second
)

type Settings struct {
	ID             int    `json:"-"`
	GeminiAPIKey   string `json:"gemini_api_key"`
	GeminiModel    string `json:"gemini_model"`
	EmbeddingModel string `json:"embedding_model"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

// Service reads settings through a short-lived cache. Analyzers consult it on
// every model call.
type Service struct {
	repo  Repository
	cache *cache.Cache
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, cache: cache.New(cacheTTL, 2*cacheTTL)}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	if v, ok := s.cache.Get(cacheKey); ok {
		cp := *v.(*Settings)
		return &cp, nil
	}
	set, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if set.GeminiModel == "" {
		set.GeminiModel = DefaultGeminiModel
	}
	if set.EmbeddingModel == "" {
		set.EmbeddingModel = DefaultEmbeddingModel
	}
	cp := *set
	s.cache.SetDefault(cacheKey, &cp)
	return set, nil
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	defer s.cache.Delete(cacheKey)
	return s.repo.Update(ctx, set)
}
