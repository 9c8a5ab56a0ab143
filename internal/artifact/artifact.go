// Package artifact keeps finished videos retrievable by ID until they are
// revoked or expire.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/stillcast/internal/metrics"
	"github.com/maauso/stillcast/internal/storage"
)

// ContentTypeMP4 is the content type of encoded videos.
const ContentTypeMP4 = "video/mp4"

// DefaultTTL is how long an artifact is kept when no TTL is configured.
const DefaultTTL = time.Hour

// ErrNotFound is returned for unknown or revoked artifacts.
var ErrNotFound = errors.New("artifact not found")

// Artifact describes a stored video. Ownership passes to whoever created it;
// it stays retrievable until Revoke or expiry.
type Artifact struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	PublicURL   string    `json:"public_url,omitempty"`

	path string
}

// Registry tracks artifacts stored in a storage.Storage.
type Registry struct {
	store   storage.Storage
	baseURL string
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	items map[string]*Artifact
}

// Option configures a Registry.
type Option func(*Registry)

// WithBaseURL sets the prefix of artifact URLs, e.g. "/artifacts".
func WithBaseURL(base string) Option {
	return func(r *Registry) {
		r.baseURL = base
	}
}

// WithTTL sets how long artifacts live before the janitor revokes them.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics tracks the number of retained artifacts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(store storage.Storage, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		baseURL: "/artifacts",
		ttl:     DefaultTTL,
		logger:  slog.Default(),
		now:     time.Now,
		items:   make(map[string]*Artifact),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores data and returns a new artifact.
func (r *Registry) Create(ctx context.Context, data []byte, contentType string) (*Artifact, error) {
	id := uuid.NewString()
	path, err := r.store.Save(ctx, id+extension(contentType), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	a := &Artifact{
		ID:          id,
		URL:         r.baseURL + "/" + id,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   r.now(),
		path:        path,
	}

	r.mu.Lock()
	r.items[id] = a
	n := len(r.items)
	r.mu.Unlock()

	r.metrics.SetArtifacts(n)
	r.logger.Info("artifact created", slog.String("artifact_id", id), slog.Int64("size", a.Size))
	return a.clone(), nil
}

// Get returns the artifact with id.
func (r *Registry) Get(id string) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return a.clone(), nil
}

// Open returns the artifact and a reader for its content.
// The caller is responsible for closing the returned ReadCloser.
func (r *Registry) Open(ctx context.Context, id string) (*Artifact, io.ReadCloser, error) {
	a, err := r.Get(id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := r.store.Open(ctx, a.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact %s: %w", id, err)
	}
	return a, rc, nil
}

// Publish uploads the artifact to object storage and records its public URL.
func (r *Registry) Publish(ctx context.Context, id string) (string, error) {
	a, rc, err := r.Open(ctx, id)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	url, err := r.store.Publish(ctx, a.ID+extension(a.ContentType), a.ContentType, rc)
	if err != nil {
		return "", fmt.Errorf("publish artifact %s: %w", id, err)
	}

	r.mu.Lock()
	if cur, ok := r.items[id]; ok {
		cur.PublicURL = url
	}
	r.mu.Unlock()
	return url, nil
}

// Revoke deletes the artifact. Later lookups return ErrNotFound.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	a, ok := r.items[id]
	if ok {
		delete(r.items, id)
	}
	n := len(r.items)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.metrics.SetArtifacts(n)

	if err := r.store.Remove(context.WithoutCancel(ctx), a.path); err != nil {
		return fmt.Errorf("remove artifact %s: %w", id, err)
	}
	r.logger.Info("artifact revoked", slog.String("artifact_id", id))
	return nil
}

// Len returns the number of retained artifacts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// RevokeExpired revokes every artifact older than the TTL and returns how many
// were revoked.
func (r *Registry) RevokeExpired(ctx context.Context) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)

	r.mu.RLock()
	var expired []string
	for id, a := range r.items {
		if a.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(expired)

	revoked := 0
	for _, id := range expired {
		if err := r.Revoke(ctx, id); err != nil {
			if !errors.Is(err, ErrNotFound) {
				r.logger.Warn("failed to revoke expired artifact",
					slog.String("artifact_id", id),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		revoked++
	}
	return revoked
}

// RunJanitor revokes expired artifacts every interval until ctx ends.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.RevokeExpired(ctx); n > 0 {
				r.logger.Info("expired artifacts revoked", slog.Int("count", n))
			}
		}
	}
}

// Close revokes every artifact.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := r.Revoke(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Artifact) clone() *Artifact {
	c := *a
	return &c
}

func extension(contentType string) string {
	if contentType == ContentTypeMP4 {
		return ".mp4"
	}
	return ""
}
