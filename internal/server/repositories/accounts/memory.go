package accounts

import (
	"context"
	"sync"
)

type MemoryRepository struct {
	mu      sync.RWMutex
	allowed map[string]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{allowed: map[string]bool{}}
}

func (r *MemoryRepository) GrantUpload(_ context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed[accountID] = true
	return nil
}

func (r *MemoryRepository) CanUpload(_ context.Context, accountID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allowed[accountID], nil
}
