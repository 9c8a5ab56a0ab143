package job

import (
	"context"
	"slices"
	"sync"
)

// DefaultRetention is how many jobs a MemoryRepository keeps by default.
const DefaultRetention = 200

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps jobs in memory. Jobs do not survive a restart.
// Once more than the retention limit are stored, the oldest finished jobs are
// evicted; jobs still queued or running are never evicted.
type MemoryRepository struct {
	retention int

	mu         sync.RWMutex
	jobs       map[string]*Job
	byArtifact map[string]string
}

// MemoryOption configures a MemoryRepository.
type MemoryOption func(*MemoryRepository)

// WithRetention bounds the number of stored jobs. Zero or less keeps every job.
func WithRetention(n int) MemoryOption {
	return func(r *MemoryRepository) {
		r.retention = n
	}
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	r := &MemoryRepository{
		retention:  DefaultRetention,
		jobs:       make(map[string]*Job),
		byArtifact: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Save stores a copy of job.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	c := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.jobs[c.ID]; ok && old.ArtifactID != "" && old.ArtifactID != c.ArtifactID {
		delete(r.byArtifact, old.ArtifactID)
	}
	r.jobs[c.ID] = c
	if c.ArtifactID != "" {
		r.byArtifact[c.ArtifactID] = c.ID
	}
	r.evictLocked()
	return nil
}

// FindByID returns a copy of the job with id.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns copies of all jobs, newest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	result := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, job.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *Job) int { return -compareAge(a, b) })
	return result, nil
}

// FindByArtifact returns a copy of the job that produced the artifact.
func (r *MemoryRepository) FindByArtifact(_ context.Context, artifactID string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byArtifact[artifactID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return r.jobs[id].Clone(), nil
}

// Len returns the number of stored jobs.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// evictLocked drops the oldest finished jobs beyond the retention limit.
// Stored jobs are private copies, so their fields are read without locking.
func (r *MemoryRepository) evictLocked() {
	excess := len(r.jobs) - r.retention
	if r.retention <= 0 || excess <= 0 {
		return
	}

	var finished []*Job
	for _, job := range r.jobs {
		if len(validTransitions[job.Status]) == 0 {
			finished = append(finished, job)
		}
	}
	slices.SortFunc(finished, compareAge)

	for _, job := range finished[:min(excess, len(finished))] {
		delete(r.jobs, job.ID)
		if job.ArtifactID != "" {
			delete(r.byArtifact, job.ArtifactID)
		}
	}
}

// compareAge orders jobs oldest first, breaking ties by ID.
func compareAge(a, b *Job) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
