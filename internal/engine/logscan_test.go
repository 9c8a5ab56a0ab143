package engine

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanLogLines_SplitsOnCarriageReturnAndNewline(t *testing.T) {
	input := "Duration: 00:00:10.00\nframe=1 time=00:00:01.00\rframe=2 time=00:00:02.00\r\nlast"

	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanLogLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	assert.NoError(t, scanner.Err())
	assert.Equal(t, []string{
		"Duration: 00:00:10.00",
		"frame=1 time=00:00:01.00",
		"frame=2 time=00:00:02.00",
		"",
		"last",
	}, lines)
}

func TestRingBuffer(t *testing.T) {
	r := newRingBuffer(3)
	assert.Empty(t, r.all())

	r.add("a")
	r.add("b")
	assert.Equal(t, []string{"a", "b"}, r.all())

	r.add("c")
	r.add("d")
	r.add("e")
	assert.Equal(t, []string{"c", "d", "e"}, r.all())
}

func TestSubscribers(t *testing.T) {
	var s subscribers
	var got []string

	unsubA := s.add(func(line string) { got = append(got, "a:"+line) })
	s.add(func(line string) { got = append(got, "b:"+line) })
	assert.Equal(t, 2, s.len())

	s.dispatch("one")
	unsubA()
	unsubA()
	s.dispatch("two")

	assert.Equal(t, 1, s.len())
	assert.Equal(t, []string{"a:one", "b:one", "b:two"}, got)
}

func TestSubscribers_UnsubscribeDuringDispatch(t *testing.T) {
	var s subscribers
	calls := 0

	var unsub func()
	unsub = s.add(func(string) {
		calls++
		unsub()
	})

	s.dispatch("one")
	s.dispatch("two")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.len())
}
