package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/afero"
)

// logTailLines is how many log lines an ExecError carries.
const logTailLines = 50

// Compile-time check that FFmpeg implements Engine.
var _ Engine = (*FFmpeg)(nil)

// FFmpeg implements Engine with the ffmpeg CLI. Its namespace is a private
// working directory; commands run with that directory as their cwd so
// arguments refer to virtual files by bare name.
type FFmpeg struct {
	command       []string
	workDir       string
	minFreeDisk   uint64
	minFreeMemory uint64
	logger        *slog.Logger

	mu     sync.Mutex
	loaded bool
	binary string
	fs     afero.Fs
	lock   *flock.Flock

	subs subscribers
}

// Option configures an FFmpeg engine.
type Option func(*FFmpeg)

// WithWorkDir sets the directory backing the engine namespace.
func WithWorkDir(dir string) Option {
	return func(f *FFmpeg) {
		f.workDir = dir
	}
}

// WithResourceFloor rejects Exec when free disk in the workspace or available
// memory drop below the given byte counts. Zero disables a check.
func WithResourceFloor(freeDisk, freeMemory uint64) Option {
	return func(f *FFmpeg) {
		f.minFreeDisk = freeDisk
		f.minFreeMemory = freeMemory
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFFmpeg creates an FFmpeg engine. command is the binary followed by any
// leading arguments, see ParseCommand. The engine is unusable until Load.
func NewFFmpeg(command []string, opts ...Option) (*FFmpeg, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, ErrCommandRequired
	}
	f := &FFmpeg{
		command: append([]string(nil), command...),
		workDir: filepath.Join(os.TempDir(), "stillcast", "engine"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// WorkDir returns the directory backing the namespace.
func (f *FFmpeg) WorkDir() string {
	return f.workDir
}

// Binary returns the resolved binary path, or "" before Load.
func (f *FFmpeg) Binary() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.binary
}

// Load resolves and probes the binary, then claims the workspace.
func (f *FFmpeg) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loaded {
		return nil
	}

	binary, err := exec.LookPath(f.command[0])
	if err != nil {
		return fmt.Errorf("resolve %s: %w", f.command[0], err)
	}

	args := append(append([]string(nil), f.command[1:]...), "-hide_banner", "-version")
	// #nosec G204 - binary comes from application configuration
	out, err := exec.CommandContext(ctx, binary, args...).CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("probe %s cancelled: %w", binary, ctx.Err())
		}
		return fmt.Errorf("probe %s: %w: %s", binary, err, strings.TrimSpace(string(out)))
	}

	if err := os.MkdirAll(f.workDir, 0o750); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	lock := flock.New(filepath.Clean(f.workDir) + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workspace: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrWorkspaceLocked, f.workDir)
	}

	f.binary = binary
	f.lock = lock
	f.fs = afero.NewBasePathFs(afero.NewOsFs(), f.workDir)
	f.loaded = true

	version, _, _ := strings.Cut(string(out), "\n")
	f.logger.Info("engine loaded",
		slog.String("binary", binary),
		slog.String("version", strings.TrimSpace(version)),
		slog.String("work_dir", f.workDir),
	)
	return nil
}

// Close releases the workspace lock. The engine must not be used afterwards.
func (f *FFmpeg) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lock == nil {
		return nil
	}
	if err := f.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock workspace: %w", err)
	}
	f.lock = nil
	return nil
}

func (f *FFmpeg) filesystem(name string) (afero.Fs, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		return nil, ErrNotLoaded
	}
	return f.fs, nil
}

// WriteFile stores data in the namespace.
func (f *FFmpeg) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	fs, err := f.filesystem(name)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, name, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the content of a namespace file.
func (f *FFmpeg) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	fs, err := f.filesystem(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(fs, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// DeleteFile removes a namespace file. A missing file yields an error
// matching fs.ErrNotExist.
func (f *FFmpeg) DeleteFile(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	fs, err := f.filesystem(name)
	if err != nil {
		return err
	}
	if err := fs.Remove(name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// OnLog subscribes fn to every log line of subsequent runs.
func (f *FFmpeg) OnLog(fn func(line string)) func() {
	return f.subs.add(fn)
}

// Exec runs ffmpeg inside the workspace and streams its stderr to subscribers.
// Cancelling ctx kills the process.
func (f *FFmpeg) Exec(ctx context.Context, args []string) error {
	f.mu.Lock()
	loaded, binary := f.loaded, f.binary
	f.mu.Unlock()
	if !loaded {
		return ErrNotLoaded
	}

	if err := f.checkResources(ctx); err != nil {
		return err
	}

	argv := append(append([]string(nil), f.command[1:]...), args...)
	// #nosec G204 - binary comes from configuration, args are built internally
	cmd := exec.CommandContext(ctx, binary, argv...)
	cmd.Dir = f.workDir
	cmd.Stdout = io.Discard

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("pipe stderr: %w", err)
	}

	f.logger.Debug("engine exec",
		slog.String("binary", binary),
		slog.String("args", strings.Join(argv, " ")),
	)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	tail := newRingBuffer(logTailLines)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLogLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tail.add(line)
		f.subs.dispatch(line)
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warn("engine log scan stopped", slog.String("error", err.Error()))
		_, _ = io.Copy(io.Discard, stderr)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &ExecError{
			Args: args,
			Log:  tail.all(),
			Err:  err,
		}
	}
	return nil
}

// checkResources verifies the host has enough headroom to start a run.
// Probe failures are logged and do not block the run.
func (f *FFmpeg) checkResources(ctx context.Context) error {
	if f.minFreeDisk > 0 {
		usage, err := disk.UsageWithContext(ctx, f.workDir)
		if err != nil {
			f.logger.Warn("could not read disk usage", slog.String("path", f.workDir), slog.String("error", err.Error()))
		} else if usage.Free < f.minFreeDisk {
			return fmt.Errorf("%w: %s free disk, need %s",
				ErrInsufficientResources, humanize.IBytes(usage.Free), humanize.IBytes(f.minFreeDisk))
		}
	}
	if f.minFreeMemory > 0 {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			f.logger.Warn("could not read memory usage", slog.String("error", err.Error()))
		} else if vm.Available < f.minFreeMemory {
			return fmt.Errorf("%w: %s available memory, need %s",
				ErrInsufficientResources, humanize.IBytes(vm.Available), humanize.IBytes(f.minFreeMemory))
		}
	}
	return nil
}

// Subscribers returns the number of active log subscribers.
func (f *FFmpeg) Subscribers() int {
	return f.subs.len()
}
