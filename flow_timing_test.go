package flow

import (
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	due     time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{clock: c, due: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and fires the timers falling due, outside of the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d

	var due []*fakeTimer
	c.timers = slices.DeleteFunc(c.timers, func(t *fakeTimer) bool {
		if t.stopped {
			return true
		}
		if t.due <= c.now {
			t.fired = true
			due = append(due, t)
			return true
		}
		return false
	})
	c.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *fakeTimer) int { return int(a.due - b.due) })
	for _, t := range due {
		t.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

func TestThrottleTime(t *testing.T) {
	t.Run("emits the latest value once per window", func(t *testing.T) {
		log := []string{}

		clock := &fakeClock{}
		e := NewEngine(nil, WithClock(clock))
		src := newSignal[int](e)
		throttled := Chain[int](e, src, ThrottleTime[int](100*time.Millisecond))

		Sub(e, throttled, func(v int) { log = append(log, fmt.Sprint(v)) })

		Pub(e, src, 1)
		Pub(e, src, 2)
		assert.Empty(t, log)

		clock.Advance(100 * time.Millisecond)
		assert.Equal(t, []string{"2"}, log)

		Pub(e, src, 3)
		clock.Advance(50 * time.Millisecond)
		assert.Equal(t, []string{"2"}, log)

		Pub(e, src, 4)
		clock.Advance(50 * time.Millisecond)
		assert.Equal(t, []string{"2", "4"}, log)
	})

	t.Run("stays quiet without values", func(t *testing.T) {
		log := []string{}

		clock := &fakeClock{}
		e := NewEngine(nil, WithClock(clock))
		src := newSignal[int](e)
		throttled := Chain[int](e, src, ThrottleTime[int](100*time.Millisecond))

		Sub(e, throttled, func(v int) { log = append(log, fmt.Sprint(v)) })

		clock.Advance(time.Second)
		assert.Empty(t, log)
	})
}

func TestDebounceTime(t *testing.T) {
	t.Run("waits for the source to settle", func(t *testing.T) {
		log := []string{}

		clock := &fakeClock{}
		e := NewEngine(nil, WithClock(clock))
		src := newSignal[int](e)
		debounced := Chain[int](e, src, DebounceTime[int](100*time.Millisecond))

		Sub(e, debounced, func(v int) { log = append(log, fmt.Sprint(v)) })

		Pub(e, src, 1)
		clock.Advance(50 * time.Millisecond)
		Pub(e, src, 2)

		clock.Advance(50 * time.Millisecond)
		assert.Empty(t, log)

		clock.Advance(50 * time.Millisecond)
		assert.Equal(t, []string{"2"}, log)
	})

	t.Run("each settled burst emits once", func(t *testing.T) {
		log := []string{}

		clock := &fakeClock{}
		e := NewEngine(nil, WithClock(clock))
		src := newSignal[int](e)
		debounced := Chain[int](e, src, DebounceTime[int](100*time.Millisecond))

		Sub(e, debounced, func(v int) { log = append(log, fmt.Sprint(v)) })

		Pub(e, src, 1)
		clock.Advance(200 * time.Millisecond)
		Pub(e, src, 2)
		Pub(e, src, 3)
		clock.Advance(200 * time.Millisecond)

		assert.Equal(t, []string{"1", "3"}, log)
	})
}
