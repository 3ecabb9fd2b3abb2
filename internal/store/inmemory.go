package store

import (
	"context"
	"sync"
	"time"

	"github.com/BTreeMap/NoaBot/internal/models"
)

// InMemoryStore keeps records in process memory. Used in tests and with MEMORY_DSN=memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]*models.UserRecord
	scene *models.SceneState
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*models.UserRecord)}
}

func (s *InMemoryStore) GetUser(ctx context.Context, chatID string) (*models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) PutUser(ctx context.Context, rec *models.UserRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.users[rec.ChatID]; ok {
		current = existing.Version
	}
	if rec.Version != current {
		return ErrVersionConflict
	}
	rec.Version++
	rec.UpdatedAt = time.Now().UTC()
	s.users[rec.ChatID] = rec.Clone()
	return nil
}

func (s *InMemoryStore) GetScene(ctx context.Context) (*models.SceneState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scene == nil {
		return nil, ErrNotFound
	}
	sc := *s.scene
	return &sc, nil
}

func (s *InMemoryStore) PutScene(ctx context.Context, sc models.SceneState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene = &sc
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// Len returns the number of stored users.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
