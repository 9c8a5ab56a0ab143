// Package encode drives an engine through one still-image encode: staging the
// inputs, running the command, reading the output and cleaning up.
package encode

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/maauso/stillcast/internal/engine"
)

// Errors returned by Orchestrator.Run. Match them with errors.Is.
var (
	// ErrEngineInitializationFailed means the engine could not be loaded. A later run retries the load.
	ErrEngineInitializationFailed = engine.ErrInitializationFailed
	// ErrOperationCancelled means the run stopped at a checkpoint or its context ended.
	ErrOperationCancelled = errors.New("operation cancelled")
	// ErrEngineExecutionFailed means the encode command ran and reported failure.
	ErrEngineExecutionFailed = errors.New("engine execution failed")
	// ErrEngineIOFailed means a virtual file could not be written or read.
	ErrEngineIOFailed = errors.New("engine i/o failed")
)

// Default extensions for inputs whose name has none usable.
const (
	DefaultAudioExt = "mp3"
	DefaultImageExt = "jpg"
)

// OutputName is the virtual file the engine writes the video to.
const OutputName = "output.mp4"

// Token carries a cancellation request into a run. Once cancelled it stays cancelled.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns a token that is not cancelled.
func NewToken() *Token {
	return &Token{}
}

// Cancel requests cancellation. It is safe to call more than once.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Source is a caller-supplied file: its original name and content.
type Source struct {
	Name string
	Data []byte
}

// Input is the pair of files combined by one run.
type Input struct {
	Audio Source
	Image Source
}

// VirtualFile is a named buffer in the engine namespace.
type VirtualFile struct {
	Name string
	Data []byte
}

// AudioFile returns the virtual file that stages src as audio input.
func AudioFile(src Source) VirtualFile {
	return VirtualFile{Name: "input." + Extension(src.Name, DefaultAudioExt), Data: src.Data}
}

// ImageFile returns the virtual file that stages src as image input.
func ImageFile(src Source) VirtualFile {
	return VirtualFile{Name: "input." + Extension(src.Name, DefaultImageExt), Data: src.Data}
}

// StagedFiles returns the virtual files for in. When both inputs would share
// a name, the audio is staged as "input-audio.<ext>" so neither overwrites the
// other.
func StagedFiles(in Input) (audio, image VirtualFile) {
	audio = AudioFile(in.Audio)
	image = ImageFile(in.Image)
	if audio.Name == image.Name {
		audio.Name = "input-audio." + Extension(in.Audio.Name, DefaultAudioExt)
	}
	return audio, image
}

// Extension returns the lower-cased extension of name, or def when the name
// has no extension or it is not 1 to 5 ASCII letters and digits.
func Extension(name, def string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if len(ext) == 0 || len(ext) > 5 {
		return def
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return def
		}
	}
	return ext
}
