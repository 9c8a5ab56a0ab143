package engine

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeFFmpegScript = `#!/bin/sh
for a in "$@"; do
  case "$a" in
    -version) echo "ffmpeg version 6.1-test"; exit 0;;
    fail.mp4) echo "Invalid data found when processing input" >&2; exit 1;;
    slow.mp4) exec sleep 10;;
  esac
done
printf '  Duration: 00:00:10.00, start: 0.000000\n' >&2
printf 'frame=1 time=00:00:05.00 bitrate=1\rframe=2 time=00:00:10.00 bitrate=1\n' >&2
last=""
for a in "$@"; do last="$a"; done
printf 'encoded' > "$last"
`

// newScriptEngine returns an unloaded engine backed by a shell script that
// mimics ffmpeg's log output.
func newScriptEngine(t *testing.T, opts ...Option) *FFmpeg {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine not supported on windows")
	}

	binDir := t.TempDir()
	bin := filepath.Join(binDir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(fakeFFmpegScript), 0o700)) // #nosec G306 - test executable

	opts = append([]Option{WithWorkDir(filepath.Join(t.TempDir(), "work"))}, opts...)
	f, err := NewFFmpeg([]string{bin}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestNewFFmpeg_RequiresCommand(t *testing.T) {
	_, err := NewFFmpeg(nil)
	assert.ErrorIs(t, err, ErrCommandRequired)
}

func TestFFmpeg_OperationsBeforeLoad(t *testing.T) {
	f, err := NewFFmpeg([]string{"ffmpeg"}, WithWorkDir(t.TempDir()))
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, f.WriteFile(ctx, "input.mp3", []byte("x")), ErrNotLoaded)
	_, err = f.ReadFile(ctx, "input.mp3")
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, f.DeleteFile(ctx, "input.mp3"), ErrNotLoaded)
	assert.ErrorIs(t, f.Exec(ctx, []string{"-version"}), ErrNotLoaded)
}

func TestFFmpeg_LoadMissingBinary(t *testing.T) {
	f, err := NewFFmpeg([]string{"definitely-not-an-ffmpeg-binary"}, WithWorkDir(t.TempDir()))
	require.NoError(t, err)

	err = f.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve")
}

func TestFFmpeg_FileRoundTrip(t *testing.T) {
	f := newScriptEngine(t)
	ctx := context.Background()
	require.NoError(t, f.Load(ctx))
	require.NoError(t, f.Load(ctx))

	require.NoError(t, f.WriteFile(ctx, "input.mp3", []byte("audio")))
	assert.FileExists(t, filepath.Join(f.WorkDir(), "input.mp3"))

	data, err := f.ReadFile(ctx, "input.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)

	require.NoError(t, f.DeleteFile(ctx, "input.mp3"))
	err = f.DeleteFile(ctx, "input.mp3")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFFmpeg_RejectsPathNames(t *testing.T) {
	f := newScriptEngine(t)
	ctx := context.Background()
	require.NoError(t, f.Load(ctx))

	for _, name := range []string{"", ".", "..", "../escape.mp3", "dir/input.mp3", "/etc/passwd"} {
		assert.ErrorIs(t, f.WriteFile(ctx, name, []byte("x")), ErrInvalidName, name)
	}
}

func TestFFmpeg_WorkspaceLock(t *testing.T) {
	first := newScriptEngine(t)
	require.NoError(t, first.Load(context.Background()))

	second, err := NewFFmpeg(first.command, WithWorkDir(first.WorkDir()))
	require.NoError(t, err)

	err = second.Load(context.Background())
	assert.ErrorIs(t, err, ErrWorkspaceLocked)

	require.NoError(t, first.Close())
	require.NoError(t, second.Load(context.Background()))
	require.NoError(t, second.Close())
}

func TestFFmpeg_ExecStreamsLogs(t *testing.T) {
	f := newScriptEngine(t)
	ctx := context.Background()
	require.NoError(t, f.Load(ctx))

	var mu sync.Mutex
	var lines []string
	unsubscribe := f.OnLog(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	})

	require.NoError(t, f.Exec(ctx, []string{"-i", "input.mp3", "output.mp4"}))
	unsubscribe()
	assert.Equal(t, 0, f.Subscribers())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"  Duration: 00:00:10.00, start: 0.000000",
		"frame=1 time=00:00:05.00 bitrate=1",
		"frame=2 time=00:00:10.00 bitrate=1",
	}, lines)

	data, err := f.ReadFile(ctx, "output.mp4")
	require.NoError(t, err)
	assert.Equal(t, []byte("encoded"), data)
}

func TestFFmpeg_ExecFailure(t *testing.T) {
	f := newScriptEngine(t)
	ctx := context.Background()
	require.NoError(t, f.Load(ctx))

	err := f.Exec(ctx, []string{"fail.mp4"})

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, []string{"fail.mp4"}, execErr.Args)
	assert.Contains(t, execErr.Log, "Invalid data found when processing input")
}

func TestFFmpeg_ExecCancelled(t *testing.T) {
	f := newScriptEngine(t)
	require.NoError(t, f.Load(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := f.Exec(ctx, []string{"slow.mp4"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFFmpeg_ExecResourceFloor(t *testing.T) {
	f := newScriptEngine(t, WithResourceFloor(math.MaxUint64, 0))
	ctx := context.Background()
	require.NoError(t, f.Load(ctx))

	err := f.Exec(ctx, []string{"output.mp4"})
	assert.ErrorIs(t, err, ErrInsufficientResources)
}
