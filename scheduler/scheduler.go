// Package scheduler implements the look-ahead tick loop. A short fixed poll
// pushes a virtual next-event time forward in sixteenth notes, calling the
// tick callback for every subdivision that falls inside the schedule-ahead
// window, and drains one-shot events that have come due.
package scheduler

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"fractal-sequence/clock"
	"fractal-sequence/debug"
)

// ErrClockUnavailable is returned by Start without a usable clock.
var ErrClockUnavailable = errors.New("scheduler: clock source unavailable")

// Options tune the loop. Zero fields take defaults.
type Options struct {
	MinBPM        float64
	MaxBPM        float64
	PollInterval  time.Duration
	ScheduleAhead float64 // seconds
	StatsWindow   int     // ticks kept for Stats
}

func DefaultOptions() Options {
	return Options{
		MinBPM:        30,
		MaxBPM:        300,
		PollInterval:  15 * time.Millisecond,
		ScheduleAhead: 0.1,
		StatsWindow:   256,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinBPM <= 0 {
		o.MinBPM = def.MinBPM
	}
	if o.MaxBPM < o.MinBPM {
		o.MaxBPM = math.Max(def.MaxBPM, o.MinBPM)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.ScheduleAhead <= 0 {
		o.ScheduleAhead = def.ScheduleAhead
	}
	if o.StatsWindow <= 0 {
		o.StatsWindow = def.StatsWindow
	}
	return o
}

// EventID identifies a one-shot event.
type EventID uint64

type event struct {
	id EventID
	at float64
	fn func(float64)
}

// Scheduler is the look-ahead loop.
type Scheduler struct {
	clk    clock.Clock
	ticker clock.Ticker
	opts   Options

	pollMu sync.Mutex // serializes Poll

	mu       sync.Mutex
	running  bool
	gen      uint64
	bpm      float64
	next     float64
	onTick   func(float64)
	events   []event
	lastID   EventID
	stats    *ring
	failures atomic.Int64
}

// New builds a stopped scheduler at 120 bpm. A nil ticker gets a
// clock.TimerTicker.
func New(clk clock.Clock, ticker clock.Ticker, opts Options) *Scheduler {
	opts = opts.withDefaults()
	if ticker == nil {
		ticker = clock.NewTimerTicker()
	}
	s := &Scheduler{
		clk:    clk,
		ticker: ticker,
		opts:   opts,
		stats:  newRing(opts.StatsWindow),
	}
	s.bpm = s.clamp(120)
	return s
}

func (s *Scheduler) clamp(bpm float64) float64 {
	return math.Min(math.Max(bpm, s.opts.MinBPM), s.opts.MaxBPM)
}

// Start begins polling. The first tick is scheduled at the clock's current
// time. Starting a running scheduler does nothing.
func (s *Scheduler) Start(onTick func(t float64)) error {
	if s.clk == nil || s.clk.State() == clock.Closed {
		return ErrClockUnavailable
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.gen++
	s.onTick = onTick
	s.next = s.clk.CurrentTime()
	bpm := s.bpm
	s.mu.Unlock()

	debug.Log("sched", "start at %.3fs bpm=%.1f", s.next, bpm)
	s.ticker.Start(s.opts.PollInterval, s.Poll)
	return nil
}

// Stop halts the loop. No tick that has not begun when Stop returns will
// run. nextEventTime is left as is.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	s.ticker.Stop()
	if wasRunning {
		debug.Log("sched", "stop")
	}
}

// Poll runs one pass of the loop. The ticker calls it; tests may call it
// directly.
func (s *Scheduler) Poll() {
	if s.clk == nil || s.clk.State() != clock.Running {
		return
	}
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	gen := s.gen
	onTick := s.onTick
	s.mu.Unlock()

	now := s.clk.CurrentTime()
	for {
		s.mu.Lock()
		if !s.running || s.gen != gen || s.next >= now+s.opts.ScheduleAhead {
			s.mu.Unlock()
			return
		}
		t := s.next
		s.stats.add(t - now)
		s.mu.Unlock()

		if onTick != nil {
			s.guard("tick", func() { onTick(t) })
		}
		s.drain()

		s.mu.Lock()
		if s.gen == gen {
			s.next += (60 / s.bpm) / 4
		}
		s.mu.Unlock()
	}
}

// drain fires due one-shot events in insertion order.
func (s *Scheduler) drain() {
	now := s.clk.CurrentTime()

	s.mu.Lock()
	var due []event
	kept := s.events[:0]
	for _, e := range s.events {
		if e.at <= now {
			due = append(due, e)
		} else {
			kept = append(kept, e)
		}
	}
	s.events = kept
	s.mu.Unlock()

	for _, e := range due {
		s.guard("event", func() { e.fn(e.at) })
	}
}

func (s *Scheduler) guard(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			debug.Warn("sched", "%s callback failed: %v", kind, r)
		}
	}()
	fn()
}

// SetBPM clamps bpm into the configured range. It affects the next advance
// only. NaN is ignored.
func (s *Scheduler) SetBPM(bpm float64) {
	if math.IsNaN(bpm) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bpm = s.clamp(bpm)
}

func (s *Scheduler) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}

// ScheduleEvent queues fn to run once the clock reaches at.
func (s *Scheduler) ScheduleEvent(fn func(t float64), at float64) (EventID, error) {
	if fn == nil {
		return 0, fmt.Errorf("scheduler: nil event callback")
	}
	if math.IsNaN(at) {
		return 0, fmt.Errorf("scheduler: event time is NaN")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	s.events = append(s.events, event{id: s.lastID, at: at, fn: fn})
	return s.lastID, nil
}

// CancelEvent removes a pending event. It reports whether one was removed.
func (s *Scheduler) CancelEvent(id EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.id == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the number of queued one-shot events.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) NextEventTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Failures counts callbacks that panicked.
func (s *Scheduler) Failures() int64 {
	return s.failures.Load()
}

// Stats summarizes how far ahead of the clock recent ticks were scheduled.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.summary()
}

// Dispose stops the loop and drops queued events and stats. Safe to call
// repeatedly.
func (s *Scheduler) Dispose() {
	s.Stop()
	s.mu.Lock()
	s.events = nil
	s.onTick = nil
	s.stats = newRing(s.opts.StatsWindow)
	s.mu.Unlock()
}
