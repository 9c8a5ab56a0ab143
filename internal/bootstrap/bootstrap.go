// Package bootstrap provides dependency initialization for stillcast.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/maauso/stillcast/internal/artifact"
	"github.com/maauso/stillcast/internal/config"
	"github.com/maauso/stillcast/internal/encode"
	"github.com/maauso/stillcast/internal/engine"
	"github.com/maauso/stillcast/internal/job"
	"github.com/maauso/stillcast/internal/media"
	"github.com/maauso/stillcast/internal/metrics"
	"github.com/maauso/stillcast/internal/session"
	"github.com/maauso/stillcast/internal/storage"
)

// Core is the encode pipeline shared by the HTTP server and the CLI.
type Core struct {
	Metrics    *metrics.Metrics
	Engine     *engine.Manager
	Artifacts  *artifact.Registry
	Controller *session.Controller
}

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	*Core
	Jobs     *job.EncodeService
	Gatherer prometheus.Gatherer
}

// NewCore wires the engine, orchestrator, artifact registry and controller.
// reg may be nil to skip metric registration.
func NewCore(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Core, error) {
	m := metrics.NewMetrics(reg)

	command, err := engine.ParseCommand(cfg.FFmpegCommand)
	if err != nil {
		return nil, err
	}
	ffmpeg, err := engine.NewFFmpeg(command,
		engine.WithWorkDir(cfg.EngineDir()),
		engine.WithResourceFloor(cfg.MinFreeDisk.Bytes(), cfg.MinFreeMemory.Bytes()),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	manager := engine.NewManager(ffmpeg, logger,
		engine.WithLoadTimeout(cfg.EngineLoadTimeout),
		engine.WithMetrics(m),
	)

	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	registry := artifact.NewRegistry(store,
		artifact.WithTTL(cfg.ArtifactTTL),
		artifact.WithLogger(logger),
		artifact.WithMetrics(m),
	)

	orchestrator := encode.NewOrchestrator(manager,
		encode.WithEncodeOptions(cfg.EncodeOptions()),
		encode.WithVerify(cfg.VerifyOutput),
		encode.WithLogger(logger),
		encode.WithMetrics(m),
	)
	controller := session.NewController(orchestrator, registry,
		session.WithTimeout(cfg.EncodeTimeout),
		session.WithLogger(logger),
		session.WithMetrics(m),
	)

	return &Core{
		Metrics:    m,
		Engine:     manager,
		Artifacts:  registry,
		Controller: controller,
	}, nil
}

// NewDependencies creates and initializes all dependencies for the HTTP server.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	core, err := NewCore(ctx, cfg, logger, reg)
	if err != nil {
		return nil, err
	}

	opts := []job.ServiceOption{
		job.WithProber(media.NewFFprobe(cfg.FFprobePath)),
		job.WithResolution(cfg.EncodeOptions().Resolution),
	}
	if cfg.S3Enabled() {
		opts = append(opts, job.WithPublisher(core.Artifacts))
	}
	jobs := job.NewEncodeService(job.NewMemoryRepository(job.WithRetention(cfg.JobRetention)), core.Controller, logger, opts...)

	return &Dependencies{
		Core:     core,
		Jobs:     jobs,
		Gatherer: reg,
	}, nil
}

// Close revokes retained artifacts and releases the engine.
func (c *Core) Close(ctx context.Context) error {
	return errors.Join(
		c.Artifacts.Close(ctx),
		c.Engine.Close(),
	)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.ArtifactDir(), s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.ArtifactDir())
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("dir", localStore.Dir()),
	)
	return localStore, nil
}
