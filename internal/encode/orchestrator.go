package encode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/maauso/stillcast/internal/engine"
	"github.com/maauso/stillcast/internal/media"
	"github.com/maauso/stillcast/internal/metrics"
	"github.com/maauso/stillcast/internal/progress"
)

// cleanupTimeout bounds the deletion of virtual files after a run.
const cleanupTimeout = 30 * time.Second

// EngineProvider hands out a ready engine.
type EngineProvider interface {
	EnsureReady(ctx context.Context) (engine.Engine, error)
}

// Orchestrator runs encodes on an engine obtained from an EngineProvider.
// It does not serialize runs; callers ensure one run at a time per engine.
type Orchestrator struct {
	engines EngineProvider
	options media.EncodeOptions
	verify  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEncodeOptions sets resolution and background of the output.
func WithEncodeOptions(opts media.EncodeOptions) Option {
	return func(o *Orchestrator) {
		o.options = opts
	}
}

// WithVerify enables fast-start verification of the output.
func WithVerify(verify bool) Option {
	return func(o *Orchestrator) {
		o.verify = verify
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records cleanup failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(engines EngineProvider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engines: engines,
		options: media.EncodeOptions{Resolution: media.DefaultResolution},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run encodes in and returns the MP4 bytes.
//
// The token is consulted at fixed checkpoints: after the engine is ready,
// after staging, and before and after the command runs. A cancelled token or
// ended ctx at a checkpoint yields ErrOperationCancelled. A running command is
// only interrupted by ctx. All staged virtual files are deleted on every
// return path once the engine was obtained.
//
// onProgress, if not nil, receives non-decreasing values below 100 while the
// command runs and then 100 exactly once on success.
func (o *Orchestrator) Run(ctx context.Context, in Input, onProgress func(float64), token *Token) ([]byte, error) {
	if token == nil {
		token = NewToken()
	}
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	data, err := o.run(ctx, in, onProgress, token)
	if err != nil {
		return nil, err
	}

	onProgress(progress.Complete)
	return data, nil
}

func (o *Orchestrator) run(ctx context.Context, in Input, onProgress func(float64), token *Token) ([]byte, error) {
	eng, err := o.engines.EnsureReady(ctx)
	if err != nil {
		if errors.Is(err, engine.ErrInitializationFailed) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: waiting for engine: %w", ErrOperationCancelled, context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: %w", ErrEngineInitializationFailed, err)
	}

	audio, image := StagedFiles(in)
	logger := o.logger.With(
		slog.String("audio", audio.Name),
		slog.String("image", image.Name),
	)
	defer o.cleanup(ctx, eng, logger, audio.Name, image.Name, OutputName)

	if err := checkpoint(ctx, token, "engine ready"); err != nil {
		return nil, err
	}

	for _, f := range []VirtualFile{audio, image} {
		if err := eng.WriteFile(ctx, f.Name, f.Data); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: staging %s: %w", ErrOperationCancelled, f.Name, context.Cause(ctx))
			}
			return nil, fmt.Errorf("%w: write %s: %w", ErrEngineIOFailed, f.Name, err)
		}
	}
	if err := checkpoint(ctx, token, "inputs staged"); err != nil {
		return nil, err
	}

	tracker := progress.NewTracker()
	unsubscribe := eng.OnLog(func(line string) {
		if pct, ok := tracker.Observe(line); ok {
			onProgress(pct)
		}
	})
	defer unsubscribe()

	if err := checkpoint(ctx, token, "before exec"); err != nil {
		return nil, err
	}

	args := media.StillImageArgs(audio.Name, image.Name, OutputName, o.options)
	start := time.Now()
	logger.Info("encoding", slog.String("resolution", o.options.Resolution.String()))

	if err := eng.Exec(ctx, args); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: exec: %w", ErrOperationCancelled, context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: %w", ErrEngineExecutionFailed, err)
	}
	unsubscribe()

	logger.Info("encode finished",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("media_seconds", tracker.Total()),
	)

	if err := checkpoint(ctx, token, "after exec"); err != nil {
		return nil, err
	}

	data, err := eng.ReadFile(ctx, OutputName)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: reading output: %w", ErrOperationCancelled, context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrEngineIOFailed, OutputName, err)
	}

	if o.verify {
		if err := media.VerifyFastStart(data); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEngineExecutionFailed, err)
		}
	}
	return data, nil
}

// checkpoint fails when the run was cancelled through token or ctx.
func checkpoint(ctx context.Context, token *Token, stage string) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w at %s: %w", ErrOperationCancelled, stage, context.Cause(ctx))
	}
	if token.Cancelled() {
		return fmt.Errorf("%w at %s", ErrOperationCancelled, stage)
	}
	return nil
}

// cleanup deletes the virtual files of a run. It runs even when ctx is done
// and never returns an error; the run's own outcome takes precedence.
func (o *Orchestrator) cleanup(ctx context.Context, eng engine.Engine, logger *slog.Logger, names ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, name := range names {
		err := eng.DeleteFile(ctx, name)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		o.metrics.CleanupFailed()
		logger.Warn("failed to delete virtual file",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}
}
