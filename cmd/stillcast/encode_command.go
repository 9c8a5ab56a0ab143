package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/maauso/stillcast/internal/bootstrap"
	"github.com/maauso/stillcast/internal/encode"
	"github.com/maauso/stillcast/internal/media"
)

type encodeOptions struct {
	audio      string
	image      string
	output     string
	resolution string
	background string
	verify     bool
	force      bool
}

func newEncodeCommand(ctx *commandContext) *cobra.Command {
	opts := &encodeOptions{}

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode an audio file and a still image into an MP4",
		Example: `  stillcast encode --audio episode.mp3 --image cover.png -o episode.mp4
  stillcast encode --audio talk.wav --image slide.jpg -o talk.mp4 --resolution 720p --background "#202020"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("resolution") {
				ctx.cfg.Resolution = opts.resolution
			}
			if cmd.Flags().Changed("background") {
				ctx.cfg.BackgroundColor = opts.background
			}
			if cmd.Flags().Changed("verify") {
				ctx.cfg.VerifyOutput = opts.verify
			}
			if err := ctx.cfg.Validate(); err != nil {
				return err
			}
			return runEncode(cmd, ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.audio, "audio", "", "Audio file (mp3, wav, flac, aac, ogg, m4a)")
	cmd.Flags().StringVar(&opts.image, "image", "", "Image file (jpg, png, webp)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output MP4 path")
	cmd.Flags().StringVar(&opts.resolution, "resolution", "1080p", "Output resolution: 1080p, 720p or 480p (env RESOLUTION)")
	cmd.Flags().StringVar(&opts.background, "background", "black", "Letterbox color, a name or #rrggbb (env BACKGROUND_COLOR)")
	cmd.Flags().BoolVar(&opts.verify, "verify", true, "Check the output is a fast-start MP4 (env VERIFY_OUTPUT)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Overwrite the output file if it exists")
	_ = cmd.MarkFlagRequired("audio")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runEncode(cmd *cobra.Command, cc *commandContext, opts *encodeOptions) error {
	cfg, logger := cc.cfg, cc.logger
	out := cmd.OutOrStdout()

	if !opts.force {
		if _, err := os.Stat(opts.output); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", opts.output)
		}
	}

	audio, err := readInput(opts.audio, int64(cfg.MaxAudioSize.Bytes()), media.ValidateAudio)
	if err != nil {
		return err
	}
	image, err := readInput(opts.image, int64(cfg.MaxImageSize.Bytes()), media.ValidateImage)
	if err != nil {
		return err
	}

	// The first interrupt asks the encode to stop at its next checkpoint.
	// The second kills the running command.
	runCtx, abort := context.WithCancel(cmd.Context())
	defer abort()

	core, err := bootstrap.NewCore(runCtx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(context.WithoutCancel(runCtx)); err != nil {
			logger.Warn("failed to release resources", slog.String("error", err.Error()))
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-runCtx.Done():
			return
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "\ncancelling, press Ctrl-C again to abort")
		core.Controller.Cancel()
		select {
		case <-sigCh:
			abort()
		case <-runCtx.Done():
		}
	}()

	reporter := newProgressReporter(cmd.ErrOrStderr(), logger)
	art, err := core.Controller.StartEncode(runCtx, audio, image, reporter.Update)
	reporter.Done(err == nil)
	if err != nil {
		if errors.Is(err, encode.ErrOperationCancelled) {
			return fmt.Errorf("encode cancelled: %w", context.Canceled)
		}
		return err
	}

	_, rc, err := core.Artifacts.Open(runCtx, art.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	if err := writeFileAtomic(opts.output, rc); err != nil {
		return err
	}

	fmt.Fprintf(out, "wrote %s (%s)\n", opts.output, humanize.IBytes(uint64(art.Size)))
	return nil
}

// readInput reads path and validates it with check.
func readInput(path string, maxSize int64, check func(name string, data []byte, maxSize int64) error) (encode.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return encode.Source{}, err
	}
	if info.Size() > maxSize {
		return encode.Source{}, fmt.Errorf("%s: %w: %s, maximum size: %s",
			path, media.ErrFileTooLarge, humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(maxSize)))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return encode.Source{}, err
	}
	name := filepath.Base(path)
	if err := check(name, data, maxSize); err != nil {
		return encode.Source{}, fmt.Errorf("%s: %w", path, err)
	}
	return encode.Source{Name: name, Data: data}, nil
}

// writeFileAtomic writes r to a temporary file next to path and renames it into place.
func writeFileAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { // #nosec G302 - regular media file
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
