package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/stillcast/internal/config"
)

// commandContext carries state shared by subcommands.
type commandContext struct {
	ffmpegFlag   string
	logLevelFlag string

	cfg    *config.Config
	logger *slog.Logger
}

// load reads the environment configuration and applies persistent flags.
func (c *commandContext) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("ffmpeg") {
		cfg.FFmpegCommand = c.ffmpegFlag
	}
	if _, set := os.LookupEnv("LOG_LEVEL"); !set || cmd.Flags().Changed("log-level") {
		cfg.LogLevel = c.logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = cfg.NewLoggerTo(cmd.ErrOrStderr())
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "stillcast",
		Short:         "Turn an audio file and a still image into an MP4",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.load(cmd); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.ffmpegFlag, "ffmpeg", "ffmpeg", "ffmpeg command, e.g. \"nice -n 10 ffmpeg\" (env FFMPEG_COMMAND)")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "warn", "Log level: debug, info, warn or error (env LOG_LEVEL)")

	rootCmd.AddCommand(newEncodeCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))

	return rootCmd
}
