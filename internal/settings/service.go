package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Settings are the knobs that may change while the server runs.
type Settings struct {
	ID         int    `json:"-"`
	ChatModel  string `json:"chat_model"`
	SearchTopK int    `json:"search_top_k"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo     Repository
	defaults Settings
}

// NewService fills unset stored values from defaults, which normally come from the environment.
func NewService(repo Repository, defaults Settings) *Service {
	return &Service{repo: repo, defaults: defaults}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	set, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := *set
	if out.ChatModel == "" {
		out.ChatModel = s.defaults.ChatModel
	}
	if out.SearchTopK <= 0 {
		out.SearchTopK = s.defaults.SearchTopK
	}
	return &out, nil
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	if set.SearchTopK < 1 {
		return fmt.Errorf("%w: search_top_k must be at least 1", ErrInvalidSettings)
	}
	return s.repo.Update(ctx, set)
}

// MemoryRepo keeps settings for the lifetime of the process.
type MemoryRepo struct {
	mu  sync.RWMutex
	cur Settings
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{cur: Settings{ID: 1}}
}

func (r *MemoryRepo) Get(ctx context.Context) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.cur
	return &s, nil
}

func (r *MemoryRepo) Update(ctx context.Context, s *Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = *s
	r.cur.ID = 1
	return nil
}
