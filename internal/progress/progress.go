// Package progress derives an encode completion percentage from the engine's
// free-text log output.
//
// Two announcements are recognised:
//
//	Duration: HH:MM:SS   total length of an input, first positive value wins
//	time=HH:MM:SS        position reached by the encoder, latest value wins
//
// Nothing is reported until a positive total is known. While the encoder is
// running the percentage is capped at MaxRunning; Complete is reserved for the
// caller once the output has actually been read back.
package progress

import (
	"regexp"
	"strconv"
	"sync"
)

const (
	// MaxRunning is the highest percentage reported from log lines.
	MaxRunning = 99.0
	// Complete is reported once the output is confirmed.
	Complete = 100.0
)

var (
	durationRe = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})`)
	timeRe     = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})`)
)

// ParseDuration extracts the seconds announced by a "Duration: HH:MM:SS" line.
func ParseDuration(line string) (int, bool) {
	return parseClock(durationRe, line)
}

// ParseTime extracts the seconds announced by a "time=HH:MM:SS" line.
func ParseTime(line string) (int, bool) {
	return parseClock(timeRe, line)
}

func parseClock(re *regexp.Regexp, line string) (int, bool) {
	m := re.FindStringSubmatch(line)
	if len(m) != 4 {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	return h*3600 + mm*60 + s, true
}

// Percent converts a position into a running percentage of total.
// The result is capped at MaxRunning. total must be positive.
func Percent(current, total int) float64 {
	p := float64(current) * 100 / float64(total)
	if p > MaxRunning {
		return MaxRunning
	}
	if p < 0 {
		return 0
	}
	return p
}

// Tracker accumulates log lines of a single encode.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	total    int
	last     float64
	reported bool
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe feeds one log line to the tracker. It returns the percentage to
// report and true when the line moved progress forward. Values returned by a
// Tracker never decrease.
func (t *Tracker) Observe(line string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.total <= 0 {
		if d, ok := ParseDuration(line); ok && d > 0 {
			t.total = d
		}
	}

	cur, ok := ParseTime(line)
	if !ok {
		return 0, false
	}
	if t.total <= 0 {
		return 0, false
	}

	p := Percent(cur, t.total)
	if t.reported && p <= t.last {
		return 0, false
	}
	t.last = p
	t.reported = true
	return p, true
}

// Total returns the announced total in seconds, or 0 while unknown.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Last returns the most recently reported percentage and whether any
// percentage has been reported yet.
func (t *Tracker) Last() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.reported
}
