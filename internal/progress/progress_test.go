package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		line   string
		want   int
		wantOK bool
	}{
		{"  Duration: 00:03:00.05, start: 0.000000, bitrate: 192 kb/s", 180, true},
		{"  Duration: 01:02:03.00, start: 0.0", 3723, true},
		{"  Duration: N/A, start: 0.000000, bitrate: N/A", 0, false},
		{"Stream #0:0: Audio: mp3, 44100 Hz, stereo", 0, false},
		{"Duration: 1:02:03", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseDuration(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("frame=  100 fps=25 q=28.0 size=     256kB time=00:01:30.00 bitrate= 800.0kbits/s speed=2.0x")
	require.True(t, ok)
	assert.Equal(t, 90, got)

	_, ok = ParseTime("frame=    0 fps=0.0 q=0.0 size=       0kB time=N/A bitrate=N/A speed=N/A")
	assert.False(t, ok)
}

func TestPercent(t *testing.T) {
	assert.InDelta(t, 50.0, Percent(90, 180), 1e-9)
	assert.Equal(t, MaxRunning, Percent(180, 180))
	assert.Equal(t, MaxRunning, Percent(200, 180))
	assert.Equal(t, 0.0, Percent(0, 180))
}

func TestTracker_HalfwayIsFifty(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Observe("  Duration: 00:03:00.00, start: 0.000000, bitrate: 128 kb/s")
	assert.False(t, ok, "duration alone must not report")

	p, ok := tr.Observe("frame= 2250 fps= 50 q=-1.0 size=    1024kB time=00:01:30.00 bitrate= 93.2kbits/s")
	require.True(t, ok)
	assert.InDelta(t, 50.0, p, 1e-9)
}

func TestTracker_CapsAtMaxRunning(t *testing.T) {
	tr := NewTracker()
	tr.Observe("Duration: 00:03:00.00")

	p, ok := tr.Observe("time=00:03:00.00")
	require.True(t, ok)
	assert.Equal(t, 99.0, p)

	_, ok = tr.Observe("time=00:03:02.00")
	assert.False(t, ok, "clamped value must not be reported twice")
}

func TestTracker_WithheldUntilDurationKnown(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Observe("time=00:00:10.00")
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Total())

	_, reported := tr.Last()
	assert.False(t, reported)
}

func TestTracker_FirstPositiveDurationWins(t *testing.T) {
	tr := NewTracker()

	// A still image announces a zero-length duration before the audio input.
	tr.Observe("  Duration: 00:00:00.04, start: 0.000000, bitrate: 1200 kb/s")
	assert.Equal(t, 0, tr.Total())

	tr.Observe("  Duration: 00:04:00.00, start: 0.025057, bitrate: 320 kb/s")
	assert.Equal(t, 240, tr.Total())

	tr.Observe("  Duration: 00:10:00.00, start: 0.000000, bitrate: 320 kb/s")
	assert.Equal(t, 240, tr.Total())
}

func TestTracker_NeverDecreases(t *testing.T) {
	tr := NewTracker()
	tr.Observe("Duration: 00:01:40.00")

	lines := []string{
		"time=00:00:10.00",
		"time=00:00:30.00",
		"time=00:00:20.00",
		"time=00:00:30.00",
		"time=00:00:50.00",
	}

	var got []float64
	for _, l := range lines {
		if p, ok := tr.Observe(l); ok {
			got = append(got, p)
		}
	}

	assert.Equal(t, []float64{10, 30, 50}, got)
	last, ok := tr.Last()
	assert.True(t, ok)
	assert.Equal(t, 50.0, last)
}
