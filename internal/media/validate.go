package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

// Default input size limits.
const (
	DefaultMaxAudioSize = 100 * 1024 * 1024
	DefaultMaxImageSize = 20 * 1024 * 1024
)

// Static errors for input validation.
var (
	// ErrUnsupportedFormat is returned when neither the name nor the content matches an accepted format.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrFileTooLarge is returned when an input exceeds its size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile is returned for zero-length inputs.
	ErrEmptyFile = errors.New("file is empty")
)

var (
	audioExtensions = []string{"mp3", "wav", "flac", "aac", "ogg", "m4a"}
	imageExtensions = []string{"jpg", "jpeg", "png", "webp"}

	audioMIMETypes = []string{
		"audio/mpeg",
		"audio/wav",
		"audio/flac",
		"audio/aac",
		"audio/ogg",
		"audio/mp4",
		"audio/x-m4a",
	}
	imageMIMETypes = []string{
		"image/jpeg",
		"image/png",
		"image/webp",
	}
)

// ValidateAudio checks that an audio input is an accepted format and within maxSize bytes.
// The format is accepted when either the file name or the sniffed content matches.
func ValidateAudio(name string, data []byte, maxSize int64) error {
	return validate(name, data, maxSize, audioExtensions, audioMIMETypes,
		"invalid audio format, accepted: MP3, WAV, FLAC, AAC, OGG, M4A")
}

// ValidateImage checks that an image input is an accepted format and within maxSize bytes.
func ValidateImage(name string, data []byte, maxSize int64) error {
	return validate(name, data, maxSize, imageExtensions, imageMIMETypes,
		"invalid image format, accepted: JPG, PNG, WebP")
}

func validate(name string, data []byte, maxSize int64, exts, mimes []string, formatMsg string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}
	if !hasExtension(name, exts) && !sniffMatches(data, mimes) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, formatMsg)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return fmt.Errorf("%w: %s, maximum size: %s",
			ErrFileTooLarge, humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(maxSize)))
	}
	return nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func sniffMatches(data []byte, mimes []string) bool {
	mt := mimetype.Detect(data)
	for _, m := range mimes {
		if mt.Is(m) {
			return true
		}
	}
	return false
}

// DetectContentType returns the sniffed MIME type of data.
func DetectContentType(data []byte) string {
	return mimetype.Detect(data).String()
}
