package database

import (
	"context"
	"sync"
)

type memoryTemplateRepository struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryRepository() TemplateRepository {
	return &memoryTemplateRepository{values: make(map[string]string)}
}

func (r *memoryTemplateRepository) Get(_ context.Context, key, def string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.values[key]; ok {
		return v, nil
	}
	return def, nil
}

func (r *memoryTemplateRepository) Set(_ context.Context, key, value string) error {
	r.mu.Lock()
	r.values[key] = value
	r.mu.Unlock()
	return nil
}
