package store

import (
	"context"
	"sync"

	"eligibility/internal/orgpolicy/models"
	"eligibility/pkg/platform/sentinel"
)

// MemoryStore is an in-memory ConfigurationStore for unit tests.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[int64]*models.Configuration
	// Loads counts backing reads so cache tests can assert coalescing.
	loads int
}

func NewMemory() *MemoryStore {
	return &MemoryStore{configs: make(map[int64]*models.Configuration)}
}

func (s *MemoryStore) Put(cfg *models.Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.OrganizationID] = cfg
}

func (s *MemoryStore) Get(ctx context.Context, organizationID int64) (*models.Configuration, error) {
	s.mu.Lock()
	s.loads++
	cfg, ok := s.configs[organizationID]
	s.mu.Unlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *MemoryStore) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads
}
