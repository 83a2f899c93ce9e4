package store

import (
	"context"
	"sync"

	"Argus/internal/models"
)

// MemoryJobStore is an in-memory JobStore used by the "memory" storage
// driver and by tests. Records are copied on the way in and out so callers
// never share mutable state with the store.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]models.Job)}
}

// Create stores a copy of the job record.
func (s *MemoryJobStore) Create(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetByID returns a copy of the stored job, or nil when unknown.
func (s *MemoryJobStore) GetByID(ctx context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	out := copyJob(&job)
	return &out, nil
}

// Update overwrites the stored record.
func (s *MemoryJobStore) Update(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func copyJob(job *models.Job) models.Job {
	out := *job
	if job.Result != nil {
		result := *job.Result
		out.Result = &result
	}
	return out
}

// MemoryConfigStore is an in-memory ConfigStore counterpart.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]models.AgentConfig
}

// NewMemoryConfigStore creates an empty MemoryConfigStore.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{configs: make(map[string]models.AgentConfig)}
}

// Get returns the stored configuration for scope, or nil when none exists.
func (s *MemoryConfigStore) Get(ctx context.Context, scope string) (*models.AgentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[scope]
	if !ok {
		return nil, nil
	}
	out := cfg
	return &out, nil
}

// Put overwrites the configuration for scope.
func (s *MemoryConfigStore) Put(ctx context.Context, scope string, cfg *models.AgentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[scope] = *cfg
	return nil
}
