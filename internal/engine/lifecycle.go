package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/maauso/stillcast/internal/metrics"
)

// DefaultLoadTimeout bounds a single load attempt.
const DefaultLoadTimeout = 2 * time.Minute

const loadKey = "load"

// Manager owns an engine and guarantees it is loaded at most once, no matter
// how many callers ask for it concurrently. A failed load leaves the manager
// unloaded so the next caller retries.
type Manager struct {
	engine      Engine
	logger      *slog.Logger
	metrics     *metrics.Metrics
	loadTimeout time.Duration

	state atomic.Int32
	loads atomic.Int64
	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLoadTimeout bounds each load attempt. Zero disables the bound.
func WithLoadTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.loadTimeout = d
	}
}

// WithMetrics records load attempts.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a manager for eng in the unloaded state.
func NewManager(eng Engine, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		engine:      eng,
		logger:      logger,
		loadTimeout: DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Loads returns how many load attempts have started.
func (m *Manager) Loads() int64 {
	return m.loads.Load()
}

// EnsureReady returns the engine, loading it first if needed. Concurrent
// callers share one load attempt. A caller whose ctx ends stops waiting with
// the context error; the shared load keeps running for the others.
func (m *Manager) EnsureReady(ctx context.Context) (Engine, error) {
	if m.State() == StateLoaded {
		return m.engine, nil
	}

	ch := m.group.DoChan(loadKey, func() (any, error) {
		// A load that finished between the fast path and DoChan.
		if m.State() == StateLoaded {
			return nil, nil
		}
		return nil, m.load(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return m.engine, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for engine: %w", ctx.Err())
	}
}

func (m *Manager) load(ctx context.Context) error {
	m.state.Store(int32(StateLoading))
	m.loads.Add(1)

	if m.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.loadTimeout)
		defer cancel()
	}

	start := time.Now()
	m.logger.Info("loading engine")

	err := m.engine.Load(ctx)
	m.metrics.EngineLoad(err)
	if err != nil {
		m.state.Store(int32(StateUnloaded))
		m.logger.Error("engine load failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		if errors.Is(err, ErrInitializationFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInitializationFailed, err)
	}

	m.state.Store(int32(StateLoaded))
	m.logger.Info("engine ready", slog.Duration("elapsed", time.Since(start)))
	return nil
}

// Close releases the engine if it holds resources.
func (m *Manager) Close() error {
	if c, ok := m.engine.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
