// Package clock provides the time sources the scheduler and sampler run on.
package clock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a clock source.
type State int

const (
	Suspended State = iota
	Running
	Closed
)

func (s State) String() string {
	switch s {
	case Suspended:
		return "suspended"
	case Running:
		return "running"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// ErrClosed is returned by Resume on a closed clock.
var ErrClosed = errors.New("clock: closed")

// Clock is a monotonically non-decreasing time source in seconds.
type Clock interface {
	CurrentTime() float64
	State() State
	Resume(ctx context.Context) error
}

// Wall is a clock backed by the monotonic system clock. Time only advances
// while the clock is running.
type Wall struct {
	mu      sync.Mutex
	state   State
	elapsed time.Duration // accumulated before the last resume
	resumed time.Time
	now     func() time.Time
}

// NewWall returns a suspended wall clock at time zero.
func NewWall() *Wall {
	return &Wall{now: time.Now}
}

func (w *Wall) CurrentTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current().Seconds()
}

func (w *Wall) current() time.Duration {
	if w.state == Running {
		return w.elapsed + w.now().Sub(w.resumed)
	}
	return w.elapsed
}

func (w *Wall) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Wall) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case Closed:
		return ErrClosed
	case Suspended:
		w.resumed = w.now()
		w.state = Running
	}
	return nil
}

// Suspend freezes the clock at its current time.
func (w *Wall) Suspend() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == Running {
		w.elapsed = w.current()
		w.state = Suspended
	}
}

// Close freezes the clock permanently.
func (w *Wall) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.elapsed = w.current()
	w.state = Closed
}

// Manual is a clock that only moves when told to. Useful for tests and
// offline rendering.
type Manual struct {
	mu    sync.Mutex
	t     float64
	state State
}

// NewManual returns a running manual clock at time t.
func NewManual(t float64) *Manual {
	return &Manual{t: t, state: Running}
}

func (m *Manual) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *Manual) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manual) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Closed {
		return ErrClosed
	}
	m.state = Running
	return nil
}

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t > m.t {
		m.t = t
	}
}

// Advance moves the clock forward by d seconds.
func (m *Manual) Advance(d float64) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.t += d
	m.mu.Unlock()
}

func (m *Manual) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Running {
		m.state = Suspended
	}
}

func (m *Manual) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Closed
}
