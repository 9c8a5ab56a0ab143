// Package job tracks encode requests submitted over HTTP: the Job aggregate
// with its state machine, an in-memory repository and the service that runs
// jobs in the background.
package job

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/stillcast/internal/media"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job was accepted and has not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being encoded.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the video is available as an artifact.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the encode or its publication failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled by a client.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the encode exceeded its time limit.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one encode request.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100). It never decreases.
	Progress int
	// Error contains the failure message of a FAILED job.
	Error string
	// AudioName and ImageName are the uploaded file names.
	AudioName string
	ImageName string
	// Resolution is the output frame size, e.g. "1920x1080".
	Resolution string
	// Layout is where the image lands in the frame, if it could be probed.
	Layout *media.Layout
	// AudioDuration is the probed audio length in seconds, zero if unknown.
	AudioDuration float64
	// ArtifactID and ArtifactURL locate the encoded video.
	ArtifactID  string
	ArtifactURL string
	// PushToS3 indicates whether to publish the result to S3.
	PushToS3 bool
	// VideoURL is the S3 URL if PushToS3 was true.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when encoding started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID("job-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, j.Status, status)
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the artifact and transitions the job to COMPLETED.
func (j *Job) Complete(artifactID, artifactURL string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.ArtifactID = artifactID
	j.ArtifactURL = artifactURL
	j.Progress = 100
	return nil
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT state.
func (j *Job) Timeout() error {
	return j.TransitionTo(StatusTimedOut)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress raises the progress percentage, clamped to 0-100.
// Lower values than the current one are ignored.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress = max(0, min(progress, 100))
	if progress <= j.Progress {
		return
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// Describe records probed metadata of the inputs.
func (j *Job) Describe(layout *media.Layout, audioDuration float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Layout = layout
	j.AudioDuration = audioDuration
	j.UpdatedAt = time.Now()
}

// SetVideoURL records the public S3 URL.
func (j *Job) SetVideoURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// SetArtifact records the artifact produced by the job.
func (j *Job) SetArtifact(artifactID, artifactURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ArtifactID = artifactID
	j.ArtifactURL = artifactURL
	j.UpdatedAt = time.Now()
}

// ClearArtifact forgets the artifact after it was revoked.
func (j *Job) ClearArtifact() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ArtifactID = ""
	j.ArtifactURL = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(validTransitions[j.Status]) == 0
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var layout *media.Layout
	if j.Layout != nil {
		l := *j.Layout
		layout = &l
	}

	return &Job{
		ID:            j.ID,
		Status:        j.Status,
		Progress:      j.Progress,
		Error:         j.Error,
		AudioName:     j.AudioName,
		ImageName:     j.ImageName,
		Resolution:    j.Resolution,
		Layout:        layout,
		AudioDuration: j.AudioDuration,
		ArtifactID:    j.ArtifactID,
		ArtifactURL:   j.ArtifactURL,
		PushToS3:      j.PushToS3,
		VideoURL:      j.VideoURL,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}
