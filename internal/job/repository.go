package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by ID.
var ErrJobNotFound = errors.New("job not found")

// Repository stores jobs. Implementations return copies, so callers never
// share a *Job with the store.
type Repository interface {
	// Save inserts or replaces a job.
	Save(ctx context.Context, job *Job) error

	// FindByID returns ErrJobNotFound for unknown IDs.
	FindByID(ctx context.Context, id string) (*Job, error)

	// List returns all jobs, newest first.
	List(ctx context.Context) ([]*Job, error)

	// FindByArtifact returns the job that produced an artifact, or ErrJobNotFound.
	FindByArtifact(ctx context.Context, artifactID string) (*Job, error)
}
