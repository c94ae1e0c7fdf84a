package watcher

import (
	"sync/atomic"
	"time"
)

// DefaultDebounce is the quiet window after the last change before a
// refresh fires.
const DefaultDebounce = 120 * time.Millisecond

// RefreshState is the coordinator's view of pending work.
type RefreshState struct {
	// Pending is set when changes await a refresh.
	Pending bool

	// FullPending is set when any pending change requires a full refresh.
	FullPending bool

	// Paths is the accumulated set of changed paths.
	Paths map[string]struct{}

	// LastRefresh is when the last refresh fired.
	LastRefresh time.Time

	// LastEvent is when the most recent change was drained.
	LastEvent time.Time

	// FirstPending is when the oldest unrefreshed change was drained.
	FirstPending time.Time
}

// Coordinator debounces ChangeEvents into Refreshes.
//
// Record may be called from any goroutine and never blocks. Tick, Force and
// State belong to the single consumer goroutine.
type Coordinator struct {
	queue    chan ChangeEvent
	overflow atomic.Bool

	debounce    time.Duration
	maxDeferral time.Duration

	state  RefreshState
	forced bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMaxDeferral caps how long continuous changes may postpone a refresh.
// Zero, the default, means no cap.
func WithMaxDeferral(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.maxDeferral = d
	}
}

// WithQueueSize sets how many events may wait between ticks before they
// collapse into a forced full refresh.
func WithQueueSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.queue = make(chan ChangeEvent, n)
		}
	}
}

// NewCoordinator creates a coordinator with the given debounce window.
// A non-positive window uses DefaultDebounce.
func NewCoordinator(debounce time.Duration, opts ...CoordinatorOption) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	c := &Coordinator{
		queue:    make(chan ChangeEvent, 256),
		debounce: debounce,
		state:    RefreshState{Paths: make(map[string]struct{})},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record enqueues an event. If the queue is full the event's paths are
// dropped and the next Tick treats the change as a full refresh.
func (c *Coordinator) Record(ev ChangeEvent) {
	select {
	case c.queue <- ev:
	default:
		c.overflow.Store(true)
	}
}

// Force requests a full refresh on the next Tick regardless of the window.
func (c *Coordinator) Force() {
	c.forced = true
	c.state.Pending = true
	c.state.FullPending = true
}

// Tick drains queued events and reports whether a refresh fires at now.
//
// A refresh fires when changes are pending and no change arrived, and no
// refresh fired, within the debounce window before now. Each new change
// therefore pushes the deadline out and a burst produces a single refresh.
// When a maximum deferral is configured, a refresh also fires once the
// oldest pending change has waited that long.
func (c *Coordinator) Tick(now time.Time) (Refresh, bool) {
	c.drain(now)

	s := &c.state
	if !s.Pending {
		return Refresh{}, false
	}

	quietSince := s.LastRefresh
	if s.LastEvent.After(quietSince) {
		quietSince = s.LastEvent
	}
	due := c.forced || now.Sub(quietSince) >= c.debounce
	if !due && c.maxDeferral > 0 && !s.FirstPending.IsZero() && now.Sub(s.FirstPending) >= c.maxDeferral {
		due = true
	}
	if !due {
		return Refresh{}, false
	}

	r := Refresh{Paths: sortedKeys(s.Paths), Full: s.FullPending}
	s.Pending = false
	s.FullPending = false
	s.Paths = make(map[string]struct{})
	s.FirstPending = time.Time{}
	s.LastRefresh = now
	c.forced = false
	return r, true
}

// State returns a copy of the current refresh state.
func (c *Coordinator) State() RefreshState {
	s := c.state
	s.Paths = make(map[string]struct{}, len(c.state.Paths))
	for p := range c.state.Paths {
		s.Paths[p] = struct{}{}
	}
	return s
}

func (c *Coordinator) drain(now time.Time) {
	for {
		select {
		case ev := <-c.queue:
			c.apply(ev, now)
		default:
			if c.overflow.Swap(false) {
				c.apply(ChangeEvent{FullRefresh: true}, now)
			}
			return
		}
	}
}

func (c *Coordinator) apply(ev ChangeEvent, now time.Time) {
	s := &c.state
	if !s.Pending || s.FirstPending.IsZero() {
		s.FirstPending = now
	}
	s.Pending = true
	s.FullPending = s.FullPending || ev.FullRefresh
	for _, p := range ev.Paths {
		s.Paths[p] = struct{}{}
	}
	s.LastEvent = now
}
