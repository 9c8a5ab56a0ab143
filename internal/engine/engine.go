// Package engine provides the encoding engine capability used by the encode
// pipeline and the lifecycle manager that owns a single reusable instance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Static errors for engine operations.
var (
	// ErrInitializationFailed is returned to every caller waiting on a failed load.
	ErrInitializationFailed = errors.New("engine initialization failed")
	// ErrNotLoaded is returned when a file or exec operation precedes Load.
	ErrNotLoaded = errors.New("engine not loaded")
	// ErrCommandRequired is returned when no engine command is configured.
	ErrCommandRequired = errors.New("engine command is required")
	// ErrInvalidName is returned for virtual file names that are not a single path element.
	ErrInvalidName = errors.New("invalid virtual file name")
	// ErrWorkspaceLocked is returned when another process holds the workspace.
	ErrWorkspaceLocked = errors.New("engine workspace is locked by another process")
	// ErrInsufficientResources is returned when the host lacks disk or memory headroom.
	ErrInsufficientResources = errors.New("insufficient system resources")
)

// Engine is the capability set the encode pipeline depends on.
// File names address the engine's private namespace, never the host filesystem.
type Engine interface {
	// Load prepares the engine. It is idempotent once it has succeeded.
	Load(ctx context.Context) error

	// WriteFile places data into the namespace under name.
	WriteFile(ctx context.Context, name string, data []byte) error

	// Exec runs the engine with args and blocks until it finishes. Every log
	// line produced by the run has been delivered to subscribers when Exec returns.
	Exec(ctx context.Context, args []string) error

	// ReadFile returns the content stored under name.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// DeleteFile removes name from the namespace.
	DeleteFile(ctx context.Context, name string) error

	// OnLog subscribes fn to log lines until the returned func is called.
	OnLog(fn func(line string)) (unsubscribe func())
}

// ExecError represents a failed engine run, including the tail of its log.
type ExecError struct {
	Args []string
	Log  []string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nlog: %s", e.Err, e.Args, strings.Join(e.Log, "\n"))
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// State is the lifecycle state of a managed engine.
type State int32

const (
	// StateUnloaded means no load has succeeded and none is running.
	StateUnloaded State = iota
	// StateLoading means a load is in flight.
	StateLoading
	// StateLoaded means the engine is ready. It is never left.
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "UNLOADED"
	case StateLoading:
		return "LOADING"
	case StateLoaded:
		return "LOADED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
