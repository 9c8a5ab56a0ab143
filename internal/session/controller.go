// Package session runs one encode at a time on behalf of a caller and turns
// its output into a downloadable artifact.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/stillcast/internal/artifact"
	"github.com/maauso/stillcast/internal/encode"
	"github.com/maauso/stillcast/internal/metrics"
	"github.com/maauso/stillcast/internal/progress"
)

// ErrOperationAlreadyInProgress is returned by StartEncode while another encode runs.
var ErrOperationAlreadyInProgress = errors.New("operation already in progress")

// DefaultTimeout bounds a single encode.
const DefaultTimeout = 30 * time.Minute

// Encoder runs a single encode.
type Encoder interface {
	Run(ctx context.Context, in encode.Input, onProgress func(float64), token *encode.Token) ([]byte, error)
}

// Artifacts stores encode output.
type Artifacts interface {
	Create(ctx context.Context, data []byte, contentType string) (*artifact.Artifact, error)
}

// Controller serializes encodes and owns the cancellation token of the
// current one.
type Controller struct {
	encoder   Encoder
	artifacts Artifacts
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu    sync.Mutex
	token *encode.Token
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout bounds each encode. When it elapses the token is cancelled and a
// running command is killed. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records session outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController creates a Controller.
func NewController(encoder Encoder, artifacts Artifacts, opts ...Option) *Controller {
	c := &Controller{
		encoder:   encoder,
		artifacts: artifacts,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartEncode combines audio and image into an MP4 artifact. It blocks until
// the encode ends. onProgress may be nil; it receives 100 only once the
// artifact is stored.
func (c *Controller) StartEncode(ctx context.Context, audio, image encode.Source, onProgress func(float64)) (*artifact.Artifact, error) {
	token, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer c.release(token)

	c.metrics.SessionStarted()
	defer c.metrics.SessionEnded()

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	stop := context.AfterFunc(runCtx, token.Cancel)
	defer stop()

	if onProgress == nil {
		onProgress = func(float64) {}
	}
	running := func(p float64) {
		if p < progress.Complete {
			onProgress(p)
		}
	}

	start := time.Now()
	data, err := c.encoder.Run(runCtx, encode.Input{Audio: audio, Image: image}, running, token)
	if err != nil {
		outcome := metrics.OutcomeFailed
		if errors.Is(err, encode.ErrOperationCancelled) {
			outcome = metrics.OutcomeCancelled
			c.logger.Info("encode cancelled", slog.String("reason", err.Error()))
		} else {
			c.logger.Error("encode failed", slog.String("error", err.Error()))
		}
		c.metrics.EncodeFinished(outcome, time.Since(start))
		return nil, err
	}

	// The run is complete; cancellation from here on has no effect.
	a, err := c.artifacts.Create(context.WithoutCancel(ctx), data, artifact.ContentTypeMP4)
	if err != nil {
		c.metrics.EncodeFinished(metrics.OutcomeFailed, time.Since(start))
		return nil, fmt.Errorf("create artifact: %w", err)
	}

	c.metrics.EncodeFinished(metrics.OutcomeSuccess, time.Since(start))
	onProgress(progress.Complete)
	c.logger.Info("encode completed",
		slog.String("artifact_id", a.ID),
		slog.Int64("size", a.Size),
		slog.Duration("elapsed", time.Since(start)),
	)
	return a, nil
}

// Cancel requests cancellation of the running encode. It is a no-op when idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != nil {
		token.Cancel()
	}
}

// Active reports whether an encode is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token != nil
}

func (c *Controller) acquire() (*encode.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil {
		return nil, ErrOperationAlreadyInProgress
	}
	c.token = encode.NewToken()
	return c.token, nil
}

func (c *Controller) release(token *encode.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = nil
	}
}
