package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maauso/stillcast/internal/artifact"
	"github.com/maauso/stillcast/internal/encode"
	"github.com/maauso/stillcast/internal/media"
	"github.com/maauso/stillcast/internal/progress"
	"github.com/maauso/stillcast/internal/session"
)

// ErrJobNotActive is returned when cancelling a job that is not running.
var ErrJobNotActive = errors.New("job is not active")

// Encoder runs encodes one at a time.
type Encoder interface {
	StartEncode(ctx context.Context, audio, image encode.Source, onProgress func(float64)) (*artifact.Artifact, error)
	Cancel()
	Active() bool
}

// Publisher publishes artifacts to object storage.
type Publisher interface {
	Publish(ctx context.Context, artifactID string) (string, error)
}

// SubmitInput contains the input of an encode job.
type SubmitInput struct {
	Audio encode.Source
	Image encode.Source
	// PushToS3 indicates whether to publish the video to S3.
	PushToS3 bool
}

// EncodeService accepts encode jobs and runs them in the background.
// At most one job runs at a time.
type EncodeService struct {
	repo       Repository
	encoder    Encoder
	publisher  Publisher
	prober     media.Prober
	resolution media.Resolution
	logger     *slog.Logger

	mu       sync.Mutex
	activeID string
	wg       sync.WaitGroup
}

// ServiceOption configures an EncodeService.
type ServiceOption func(*EncodeService)

// WithPublisher enables PushToS3.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *EncodeService) {
		s.publisher = p
	}
}

// WithProber enables probing of input metadata for job details.
func WithProber(p media.Prober) ServiceOption {
	return func(s *EncodeService) {
		s.prober = p
	}
}

// WithResolution sets the resolution reported on jobs and used for the layout.
func WithResolution(r media.Resolution) ServiceOption {
	return func(s *EncodeService) {
		s.resolution = r
	}
}

// NewEncodeService creates a new EncodeService.
func NewEncodeService(repo Repository, encoder Encoder, logger *slog.Logger, opts ...ServiceOption) *EncodeService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &EncodeService{
		repo:       repo,
		encoder:    encoder,
		resolution: media.DefaultResolution,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a job and starts it in the background. The job outlives ctx.
// Returns session.ErrOperationAlreadyInProgress while another job runs.
func (s *EncodeService) Submit(ctx context.Context, in SubmitInput) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" || s.encoder.Active() {
		return nil, session.ErrOperationAlreadyInProgress
	}

	job := New()
	job.AudioName = in.Audio.Name
	job.ImageName = in.Image.Name
	job.Resolution = s.resolution.String()
	job.PushToS3 = in.PushToS3

	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	s.logger.Info("job accepted",
		slog.String("job_id", job.ID),
		slog.String("audio", in.Audio.Name),
		slog.String("image", in.Image.Name),
		slog.Bool("push_to_s3", in.PushToS3),
	)

	s.activeID = job.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Process(context.WithoutCancel(ctx), job, in)
	}()

	return job.Clone(), nil
}

// Process runs job to a terminal state. Submit calls it in the background.
func (s *EncodeService) Process(ctx context.Context, job *Job, in SubmitInput) {
	defer s.release(job.ID)
	logger := s.logger.With(slog.String("job_id", job.ID))

	if err := job.Start(); err != nil {
		logger.Error("failed to start job", slog.String("error", err.Error()))
		return
	}
	s.save(ctx, job, logger)

	s.describe(ctx, job, in, logger)

	art, err := s.encoder.StartEncode(ctx, in.Audio, in.Image, func(p float64) {
		// 100 belongs to Complete.
		job.UpdateProgress(int(min(p, progress.MaxRunning)))
		s.save(ctx, job, logger)
	})
	if err != nil {
		s.finishWithError(ctx, job, err, logger)
		return
	}

	if in.PushToS3 {
		// The local artifact stays reachable through the job if publishing fails.
		job.SetArtifact(art.ID, art.URL)
		s.save(ctx, job, logger)
		if err := s.publish(ctx, job, art.ID); err != nil {
			logger.Error("failed to publish video", slog.String("error", err.Error()))
			_ = job.Fail(err.Error())
			s.save(ctx, job, logger)
			return
		}
	}

	if err := job.Complete(art.ID, art.URL); err != nil {
		logger.Error("failed to complete job", slog.String("error", err.Error()))
	}
	s.save(ctx, job, logger)
	logger.Info("job completed", slog.String("artifact_id", art.ID))
}

// Cancel requests cancellation of a running job.
func (s *EncodeService) Cancel(ctx context.Context, jobID string) error {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobNotActive, jobID, job.GetStatus())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID != jobID {
		return fmt.Errorf("%w: %s", ErrJobNotActive, jobID)
	}
	s.encoder.Cancel()
	s.logger.Info("job cancellation requested", slog.String("job_id", jobID))
	return nil
}

// Get retrieves a job by ID.
func (s *EncodeService) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all jobs, newest first.
func (s *EncodeService) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// ForgetArtifact clears the artifact reference of the job that produced it.
func (s *EncodeService) ForgetArtifact(ctx context.Context, artifactID string) {
	job, err := s.repo.FindByArtifact(ctx, artifactID)
	if err != nil {
		return
	}
	job.ClearArtifact()
	s.save(ctx, job, s.logger)
}

// Wait blocks until every background job has finished.
func (s *EncodeService) Wait() {
	s.wg.Wait()
}

func (s *EncodeService) release(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == jobID {
		s.activeID = ""
	}
}

func (s *EncodeService) finishWithError(ctx context.Context, job *Job, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		_ = job.Timeout()
		logger.Warn("job timed out")
	case errors.Is(err, encode.ErrOperationCancelled):
		_ = job.Cancel()
		logger.Info("job cancelled")
	default:
		_ = job.Fail(err.Error())
		logger.Error("job failed", slog.String("error", err.Error()))
	}
	s.save(ctx, job, logger)
}

// describe probes the inputs for job details. Failures only lose the details.
func (s *EncodeService) describe(ctx context.Context, job *Job, in SubmitInput, logger *slog.Logger) {
	if s.prober == nil {
		return
	}

	var layout *media.Layout
	if w, h, err := s.prober.ImageDimensions(ctx, in.Image.Data); err != nil {
		logger.Debug("could not probe image", slog.String("error", err.Error()))
	} else if l, err := media.CalculateScaledDimensions(w, h, s.resolution); err == nil {
		layout = &l
	}

	duration, err := s.prober.AudioDuration(ctx, in.Audio.Data)
	if err != nil {
		logger.Debug("could not probe audio", slog.String("error", err.Error()))
	}

	job.Describe(layout, duration)
	s.save(ctx, job, logger)
}

func (s *EncodeService) publish(ctx context.Context, job *Job, artifactID string) error {
	if s.publisher == nil {
		return errors.New("publish video: S3 is not configured")
	}
	url, err := s.publisher.Publish(ctx, artifactID)
	if err != nil {
		return fmt.Errorf("publish video: %w", err)
	}
	job.SetVideoURL(url)
	return nil
}

func (s *EncodeService) save(ctx context.Context, job *Job, logger *slog.Logger) {
	if err := s.repo.Save(ctx, job); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
	}
}
