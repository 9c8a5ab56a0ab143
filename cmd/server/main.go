// Package main provides the entry point for the stillcast HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/stillcast/internal/bootstrap"
	"github.com/maauso/stillcast/internal/config"
	"github.com/maauso/stillcast/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting stillcast",
		slog.Int("port", cfg.Port),
		slog.String("log_format", cfg.LogFormat),
		slog.String("log_level", cfg.LogLevel),
		slog.String("temp_dir", cfg.TempDir),
		slog.String("ffmpeg_command", cfg.FFmpegCommand),
		slog.String("resolution", cfg.Resolution),
		slog.Duration("encode_timeout", cfg.EncodeTimeout),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	// Load the engine in the background so the first job does not pay for it.
	// A failure here is retried by the first job.
	go func() {
		if _, err := deps.Engine.EnsureReady(ctx); err != nil {
			logger.Warn("engine warm-up failed", slog.String("error", err.Error()))
		}
	}()

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go deps.Artifacts.RunJanitor(janitorCtx, time.Minute)

	handlers := server.NewHandlers(deps.Jobs, deps.Artifacts, deps.Engine, logger,
		server.WithLimits(server.Limits{
			MaxAudioSize: int64(cfg.MaxAudioSize.Bytes()),
			MaxImageSize: int64(cfg.MaxImageSize.Bytes()),
		}),
	)
	routerCfg := server.DefaultConfig()
	routerCfg.RateLimitPerMinute = cfg.RateLimitPerMinute
	routerCfg.Gatherer = deps.Gatherer
	router := server.NewRouter(handlers, logger, routerCfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute, // Large base64 uploads
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown failed: %w", err))
	}

	// A running encode is cancelled cooperatively and allowed to clean up.
	deps.Controller.Cancel()
	deps.Jobs.Wait()
	stopJanitor()

	if err := deps.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("release resources: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("server stopped gracefully")
	return nil
}
