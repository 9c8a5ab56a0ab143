// Package media holds the media knowledge of the encode pipeline: the ffmpeg
// argument list, output resolutions, letterbox layout, input validation,
// metadata probing and output verification.
package media

import "context"

// Prober reads metadata from in-memory media.
type Prober interface {
	// ImageDimensions returns the pixel size of an encoded image.
	ImageDimensions(ctx context.Context, data []byte) (width, height int, err error)

	// AudioDuration returns the duration in seconds of an encoded audio stream.
	AudioDuration(ctx context.Context, data []byte) (float64, error)
}
