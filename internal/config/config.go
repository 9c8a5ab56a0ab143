// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/stillcast/internal/engine"
	"github.com/maauso/stillcast/internal/media"
)

// Static errors for configuration validation.
var (
	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("config: timeouts must be positive")
	// ErrInvalidSizeLimit is returned when an input size limit is zero.
	ErrInvalidSizeLimit = errors.New("config: input size limits must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port               int `env:"PORT, default=8080" json:"port"`
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE, default=30" json:"rate_limit_per_minute"`

	// Storage settings
	TempDir      string        `env:"TEMP_DIR, default=/tmp/stillcast" json:"temp_dir"`
	ArtifactTTL  time.Duration `env:"ARTIFACT_TTL, default=1h" json:"artifact_ttl"`
	JobRetention int           `env:"JOB_RETENTION, default=200" json:"job_retention"`

	// Engine settings
	FFmpegCommand     string            `env:"FFMPEG_COMMAND, default=ffmpeg" json:"ffmpeg_command"`
	FFprobePath       string            `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	EngineLoadTimeout time.Duration     `env:"ENGINE_LOAD_TIMEOUT, default=2m" json:"engine_load_timeout"`
	MinFreeDisk       datasize.ByteSize `env:"MIN_FREE_DISK, default=512MB" json:"min_free_disk"`
	MinFreeMemory     datasize.ByteSize `env:"MIN_FREE_MEMORY, default=256MB" json:"min_free_memory"`

	// Encode settings
	Resolution      string            `env:"RESOLUTION, default=1080p" json:"resolution"`
	BackgroundColor string            `env:"BACKGROUND_COLOR, default=black" json:"background_color"`
	EncodeTimeout   time.Duration     `env:"ENCODE_TIMEOUT, default=30m" json:"encode_timeout"`
	VerifyOutput    bool              `env:"VERIFY_OUTPUT, default=true" json:"verify_output"`
	MaxAudioSize    datasize.ByteSize `env:"MAX_AUDIO_SIZE, default=100MB" json:"max_audio_size"`
	MaxImageSize    datasize.ByteSize `env:"MAX_IMAGE_SIZE, default=20MB" json:"max_image_size"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(context.Background(), envconfig.OsLookuper())
}

// LoadFrom reads configuration from the given lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *Config) Validate() error {
	if c.EncodeTimeout <= 0 || c.EngineLoadTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxAudioSize == 0 || c.MaxImageSize == 0 {
		return ErrInvalidSizeLimit
	}
	if _, err := media.ParseResolution(c.Resolution); err != nil {
		return fmt.Errorf("config: RESOLUTION: %w", err)
	}
	if _, err := media.ParseColor(c.BackgroundColor); err != nil {
		return fmt.Errorf("config: BACKGROUND_COLOR: %w", err)
	}
	if _, err := engine.ParseCommand(c.FFmpegCommand); err != nil {
		return fmt.Errorf("config: FFMPEG_COMMAND: %w", err)
	}
	return nil
}

// EncodeOptions returns the encode options described by the configuration.
// Call Validate first; invalid values fall back to defaults.
func (c *Config) EncodeOptions() media.EncodeOptions {
	res, err := media.ParseResolution(c.Resolution)
	if err != nil {
		res = media.DefaultResolution
	}
	color, err := media.ParseColor(c.BackgroundColor)
	if err != nil {
		color = ""
	}
	return media.EncodeOptions{Resolution: res, Background: color}
}

// EngineDir is the engine's workspace under TempDir.
func (c *Config) EngineDir() string {
	return c.TempDir + "/engine"
}

// ArtifactDir is the artifact store under TempDir.
func (c *Config) ArtifactDir() string {
	return c.TempDir + "/artifacts"
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, FFmpegCommand: %s, Resolution: %s, EncodeTimeout: %s, MaxAudioSize: %s, MaxImageSize: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.FFmpegCommand,
		c.Resolution,
		c.EncodeTimeout,
		c.MaxAudioSize.HumanReadable(),
		c.MaxImageSize.HumanReadable(),
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
