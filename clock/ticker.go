package clock

import (
	"sync"
	"time"
)

// Ticker is a periodic tick source. Start on a running ticker restarts it
// with the new period. Stop is idempotent and does not wait for a callback
// that is already executing.
type Ticker interface {
	Start(period time.Duration, fn func())
	Stop()
	Running() bool
}

// TimerTicker runs fn on its own goroutine every period.
type TimerTicker struct {
	mu      sync.Mutex
	running bool
	period  time.Duration
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewTimerTicker() *TimerTicker {
	return &TimerTicker{}
}

func (t *TimerTicker) Start(period time.Duration, fn func()) {
	if period <= 0 {
		period = time.Millisecond
	}
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.period = period
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.run(period, fn, t.stopCh, t.doneCh)
}

func (t *TimerTicker) run(period time.Duration, fn func(), stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// a stop may race with the tick; prefer the stop
			select {
			case <-stopCh:
				return
			default:
			}
			fn()
		}
	}
}

func (t *TimerTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
	t.stopCh = nil
}

// Wait blocks until the most recent goroutine has exited.
func (t *TimerTicker) Wait() {
	t.mu.Lock()
	done := t.doneCh
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *TimerTicker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Period returns the period of the last Start.
func (t *TimerTicker) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// ManualTicker fires only when Fire is called.
type ManualTicker struct {
	mu      sync.Mutex
	running bool
	period  time.Duration
	fn      func()
	starts  int
}

func NewManualTicker() *ManualTicker {
	return &ManualTicker{}
}

func (m *ManualTicker) Start(period time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.period = period
	m.fn = fn
	m.starts++
}

func (m *ManualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
}

func (m *ManualTicker) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *ManualTicker) Period() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.period
}

// Starts counts calls to Start, including restarts.
func (m *ManualTicker) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Fire invokes the callback once if the ticker is running.
func (m *ManualTicker) Fire() bool {
	m.mu.Lock()
	fn, running := m.fn, m.running
	m.mu.Unlock()
	if !running || fn == nil {
		return false
	}
	fn()
	return true
}
