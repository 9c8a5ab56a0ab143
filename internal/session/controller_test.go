package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/stillcast/internal/artifact"
	"github.com/maauso/stillcast/internal/encode"
	"github.com/maauso/stillcast/internal/engine"
	"github.com/maauso/stillcast/internal/engine/enginetest"
	"github.com/maauso/stillcast/internal/storage"
)

// encoderFunc adapts a function to Encoder.
type encoderFunc func(ctx context.Context, in encode.Input, onProgress func(float64), token *encode.Token) ([]byte, error)

func (f encoderFunc) Run(ctx context.Context, in encode.Input, onProgress func(float64), token *encode.Token) ([]byte, error) {
	return f(ctx, in, onProgress, token)
}

// MockArtifacts is a mock implementation of Artifacts.
type MockArtifacts struct {
	mock.Mock
}

func (m *MockArtifacts) Create(ctx context.Context, data []byte, contentType string) (*artifact.Artifact, error) {
	args := m.Called(ctx, data, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*artifact.Artifact), args.Error(1)
}

var (
	audio = encode.Source{Name: "song.mp3", Data: []byte("audio")}
	image = encode.Source{Name: "cover.jpg", Data: []byte("image")}
)

func TestController_StartEncode_Success(t *testing.T) {
	arts := new(MockArtifacts)
	want := &artifact.Artifact{ID: "a1", URL: "/artifacts/a1", ContentType: "video/mp4", Size: 5}
	arts.On("Create", mock.Anything, []byte("video"), "video/mp4").Return(want, nil)

	var gotInput encode.Input
	enc := encoderFunc(func(_ context.Context, in encode.Input, onProgress func(float64), _ *encode.Token) ([]byte, error) {
		gotInput = in
		onProgress(50)
		onProgress(100)
		return []byte("video"), nil
	})
	c := NewController(enc, arts)

	var progress []float64
	got, err := c.StartEncode(context.Background(), audio, image, func(p float64) { progress = append(progress, p) })

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, encode.Input{Audio: audio, Image: image}, gotInput)
	assert.Equal(t, []float64{50, 100}, progress)
	assert.False(t, c.Active())
	arts.AssertExpectations(t)
}

func TestController_RejectsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	enc := encoderFunc(func(context.Context, encode.Input, func(float64), *encode.Token) ([]byte, error) {
		close(started)
		<-release
		return nil, errors.New("stopped")
	})
	c := NewController(enc, new(MockArtifacts))

	done := make(chan error, 1)
	go func() {
		_, err := c.StartEncode(context.Background(), audio, image, nil)
		done <- err
	}()
	<-started

	assert.True(t, c.Active())
	_, err := c.StartEncode(context.Background(), audio, image, nil)
	assert.ErrorIs(t, err, ErrOperationAlreadyInProgress)

	close(release)
	require.Error(t, <-done)
	assert.False(t, c.Active())
}

func TestController_Cancel(t *testing.T) {
	started := make(chan *encode.Token, 1)
	enc := encoderFunc(func(_ context.Context, _ encode.Input, _ func(float64), token *encode.Token) ([]byte, error) {
		started <- token
		for !token.Cancelled() {
			time.Sleep(time.Millisecond)
		}
		return nil, encode.ErrOperationCancelled
	})
	c := NewController(enc, new(MockArtifacts))

	done := make(chan error, 1)
	go func() {
		_, err := c.StartEncode(context.Background(), audio, image, nil)
		done <- err
	}()

	token := <-started
	c.Cancel()
	c.Cancel()

	assert.ErrorIs(t, <-done, encode.ErrOperationCancelled)
	assert.True(t, token.Cancelled())
	assert.False(t, c.Active())
}

func TestController_CancelWhenIdleIsNoop(t *testing.T) {
	var tokens []*encode.Token
	enc := encoderFunc(func(_ context.Context, _ encode.Input, _ func(float64), token *encode.Token) ([]byte, error) {
		tokens = append(tokens, token)
		return []byte("video"), nil
	})
	arts := new(MockArtifacts)
	arts.On("Create", mock.Anything, mock.Anything, "video/mp4").Return(&artifact.Artifact{ID: "a"}, nil)
	c := NewController(enc, arts)

	c.Cancel()
	_, err := c.StartEncode(context.Background(), audio, image, nil)
	require.NoError(t, err)

	// A cancel after the run must not leak into the next one.
	c.Cancel()
	_, err = c.StartEncode(context.Background(), audio, image, nil)
	require.NoError(t, err)

	require.Len(t, tokens, 2)
	assert.NotSame(t, tokens[0], tokens[1])
	assert.False(t, tokens[1].Cancelled())
}

func TestController_TimeoutCancelsToken(t *testing.T) {
	enc := encoderFunc(func(ctx context.Context, _ encode.Input, _ func(float64), token *encode.Token) ([]byte, error) {
		<-ctx.Done()
		require.Eventually(t, token.Cancelled, time.Second, time.Millisecond)
		return nil, fmt.Errorf("%w: %w", encode.ErrOperationCancelled, context.Cause(ctx))
	})
	c := NewController(enc, new(MockArtifacts), WithTimeout(10*time.Millisecond))

	_, err := c.StartEncode(context.Background(), audio, image, nil)

	require.ErrorIs(t, err, encode.ErrOperationCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestController_ArtifactFailure(t *testing.T) {
	arts := new(MockArtifacts)
	arts.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("disk full"))
	enc := encoderFunc(func(_ context.Context, _ encode.Input, onProgress func(float64), _ *encode.Token) ([]byte, error) {
		onProgress(40)
		onProgress(100)
		return []byte("video"), nil
	})
	c := NewController(enc, arts)

	var progress []float64
	_, err := c.StartEncode(context.Background(), audio, image, func(p float64) { progress = append(progress, p) })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []float64{40}, progress, "completion reported for a run without an artifact")
	assert.False(t, c.Active())
}

func TestController_WithOrchestrator(t *testing.T) {
	store, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	registry := artifact.NewRegistry(store)

	fake := &enginetest.Fake{
		LogLines: []string{"Duration: 00:01:00.00", "time=00:00:30.00"},
		Output:   []byte("mp4"),
	}
	c := NewController(encode.NewOrchestrator(engine.NewManager(fake, nil)), registry)

	var progress []float64
	a, err := c.StartEncode(context.Background(), audio, image, func(p float64) {
		progress = append(progress, p)
		if p == 100 {
			// Cancelling once the output is read must not fail the run.
			c.Cancel()
		}
	})

	require.NoError(t, err)
	assert.Equal(t, []float64{50, 100}, progress)
	assert.Equal(t, "video/mp4", a.ContentType)
	assert.Empty(t, fake.Names())

	_, rc, err := registry.Open(context.Background(), a.ID)
	require.NoError(t, err)
	_ = rc.Close()
}
