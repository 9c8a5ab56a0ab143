package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrFFprobeExecution is returned when the ffprobe command fails.
var ErrFFprobeExecution = errors.New("ffprobe execution failed")

// Compile-time check that FFprobe implements Prober.
var _ Prober = (*FFprobe)(nil)

// FFprobe implements Prober with the ffprobe CLI, feeding data through stdin.
type FFprobe struct {
	// path is the ffprobe binary. Defaults to "ffprobe".
	path string
}

// NewFFprobe creates a new FFprobe.
// If path is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobe(path string) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{path: path}
}

// ImageDimensions returns the width and height of the first video stream.
func (p *FFprobe) ImageDimensions(ctx context.Context, data []byte) (int, int, error) {
	out, err := p.run(ctx, data,
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
	)
	if err != nil {
		return 0, 0, err
	}

	// Some demuxers print one line per frame; the first is enough.
	line, _, _ := strings.Cut(out, "\n")
	ws, hs, ok := strings.Cut(strings.TrimSpace(line), "x")
	if !ok {
		return 0, 0, fmt.Errorf("parse dimensions %q: unexpected format", out)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("parse width: %w", err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("parse height: %w", err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, w, h)
	}
	return w, h, nil
}

// AudioDuration returns the container duration in seconds.
func (p *FFprobe) AudioDuration(ctx context.Context, data []byte) (float64, error) {
	out, err := p.run(ctx, data,
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
	)
	if err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}

func (p *FFprobe) run(ctx context.Context, data []byte, args ...string) (string, error) {
	argv := append([]string{"-v", "error"}, args...)
	argv = append(argv, "-i", "pipe:0")

	// #nosec G204 - path is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.path, argv...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
