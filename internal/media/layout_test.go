package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateScaledDimensions(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		target Resolution
		want   Layout
	}{
		{
			name:   "wide image letterboxed",
			w:      2000,
			h:      500,
			target: Resolution1080p,
			want:   Layout{Width: 1920, Height: 480, OffsetX: 0, OffsetY: 300},
		},
		{
			name:   "slightly wide image",
			w:      2000,
			h:      1000,
			target: Resolution1080p,
			want:   Layout{Width: 1920, Height: 960, OffsetX: 0, OffsetY: 60},
		},
		{
			name:   "tall image pillarboxed",
			w:      1000,
			h:      2000,
			target: Resolution1080p,
			want:   Layout{Width: 540, Height: 1080, OffsetX: 690, OffsetY: 0},
		},
		{
			name:   "square image",
			w:      500,
			h:      500,
			target: Resolution720p,
			want:   Layout{Width: 720, Height: 720, OffsetX: 280, OffsetY: 0},
		},
		{
			name:   "exact fit",
			w:      1920,
			h:      1080,
			target: Resolution1080p,
			want:   Layout{Width: 1920, Height: 1080},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateScaledDimensions(tt.w, tt.h, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateScaledDimensions_Invalid(t *testing.T) {
	_, err := CalculateScaledDimensions(0, 100, Resolution1080p)
	assert.ErrorIs(t, err, ErrInvalidDimensions)

	_, err = CalculateScaledDimensions(100, 100, Resolution{})
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}
