package media

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Static errors for encode arguments.
var (
	// ErrInvalidDimensions is returned when the provided dimensions are not positive.
	ErrInvalidDimensions = errors.New("invalid dimensions: width and height must be positive")
	// ErrUnknownResolution is returned for a resolution preset that does not exist.
	ErrUnknownResolution = errors.New("unknown resolution")
	// ErrInvalidColor is returned for a background color ffmpeg would not accept.
	ErrInvalidColor = errors.New("invalid background color")
)

// AudioBitrate is the fixed AAC bitrate of every encode.
const AudioBitrate = "192k"

// Resolution is an output frame size.
type Resolution struct {
	Name   string
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Output resolution presets.
var (
	Resolution1080p = Resolution{Name: "1080p", Width: 1920, Height: 1080}
	Resolution720p  = Resolution{Name: "720p", Width: 1280, Height: 720}
	Resolution480p  = Resolution{Name: "480p", Width: 854, Height: 480}
)

// DefaultResolution is used when none is configured.
var DefaultResolution = Resolution1080p

var resolutions = map[string]Resolution{
	Resolution1080p.Name: Resolution1080p,
	Resolution720p.Name:  Resolution720p,
	Resolution480p.Name:  Resolution480p,
}

// ParseResolution returns the preset named s, e.g. "720p".
func ParseResolution(s string) (Resolution, error) {
	r, ok := resolutions[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %q (use 1080p, 720p or 480p)", ErrUnknownResolution, s)
	}
	return r, nil
}

var (
	hexColorRe   = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	namedColorRe = regexp.MustCompile(`^[a-zA-Z]+$`)
)

// ParseColor converts "#rrggbb" or a color name to ffmpeg color syntax.
func ParseColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case hexColorRe.MatchString(s):
		return "0x" + strings.ToLower(s[1:]), nil
	case namedColorRe.MatchString(s):
		return strings.ToLower(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
}

// EncodeOptions are the tunable parts of the encode command.
type EncodeOptions struct {
	Resolution Resolution
	// Background is the pad color in ffmpeg syntax. Empty means black.
	Background string
}

// ScaleFilter returns the filter that fits a frame inside w x h preserving its
// aspect ratio and pads the rest with color, centered.
func ScaleFilter(w, h int, color string) string {
	if color == "" {
		color = "black"
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:%s", w, h, w, h, color)
}

// StillImageArgs builds the ffmpeg arguments that loop image as a still frame,
// mux it with audio and write a fast-start H.264/AAC MP4 to output.
// The run ends with the shorter stream, which for a looped image is the audio.
func StillImageArgs(audio, image, output string, opts EncodeOptions) []string {
	res := opts.Resolution
	if res.Width <= 0 || res.Height <= 0 {
		res = DefaultResolution
	}
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-loop", "1",
		"-i", image,
		"-i", audio,
		"-c:v", "libx264",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-b:a", AudioBitrate,
		"-pix_fmt", "yuv420p",
		"-vf", ScaleFilter(res.Width, res.Height, opts.Background),
		"-shortest",
		"-movflags", "+faststart",
		output,
	}
}
