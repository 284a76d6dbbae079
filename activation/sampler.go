// Package activation keeps the live subset of mapped sponge points. The set
// is resampled on its own ticker and always replaced as a whole.
package activation

import (
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"fractal-sequence/clock"
	"fractal-sequence/debug"
	"fractal-sequence/pitch"
	"fractal-sequence/store"
)

// Resample period bounds.
const (
	MinPeriod = 33330 * time.Microsecond
	MaxPeriod = time.Second
)

// Period converts a BPM-like sampling rate into a resample interval.
func Period(rate float64) time.Duration {
	if !(rate > 0) {
		rate = 1
	}
	d := time.Duration(math.Min(60000/rate, 1000) * float64(time.Millisecond))
	return max(d, MinPeriod)
}

// Snapshot is one immutable active set.
type Snapshot struct {
	Indices []int
	Notes   []pitch.Note
}

var empty = &Snapshot{}

// Options configure a Sampler. Zero fields take defaults.
type Options struct {
	Key           string // subscription key used by Attach
	Policy        Policy
	Rand          *rand.Rand
	Ticker        clock.Ticker
	Rate          float64
	NumberOfNotes int
}

// Sampler owns the active set.
type Sampler struct {
	mu       sync.Mutex
	key      string
	points   []pitch.Mapping
	policy   Policy
	rng      *rand.Rand
	ticker   clock.Ticker
	rate     float64
	n        int
	running  bool
	samples  int
	unsubs   []func()
	active   atomic.Pointer[Snapshot]
	failures atomic.Int64
}

func New(points []pitch.Mapping, opts Options) *Sampler {
	if opts.Key == "" {
		opts.Key = "activation"
	}
	if opts.Policy == nil {
		opts.Policy = NewTraversal()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if opts.Ticker == nil {
		opts.Ticker = clock.NewTimerTicker()
	}
	if !(opts.Rate > 0) {
		opts.Rate = 120
	}
	if opts.NumberOfNotes <= 0 {
		opts.NumberOfNotes = 1
	}
	s := &Sampler{
		key:    opts.Key,
		points: points,
		policy: opts.Policy,
		rng:    opts.Rand,
		ticker: opts.Ticker,
		rate:   opts.Rate,
		n:      opts.NumberOfNotes,
	}
	s.active.Store(empty)
	return s
}

// Attach follows the transport's play flag and the parameters' sampling
// rate and note count. Attaching again replaces the earlier subscriptions.
func (s *Sampler) Attach(transport *store.Store[store.Transport], params *store.Store[store.Parameters]) {
	s.detach()

	p := params.Get()
	s.SetNumberOfNotes(p.NumberOfNotes)
	s.SetRate(p.SamplingRate)

	unsubP := params.Subscribe(s.key, func(p store.Parameters) {
		s.SetNumberOfNotes(p.NumberOfNotes)
		s.SetRate(p.SamplingRate)
	})
	unsubT := transport.Subscribe(s.key, func(t store.Transport) {
		if t.Playing {
			s.Start()
		} else {
			s.Stop()
		}
	})

	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubP, unsubT)
	s.mu.Unlock()

	if transport.Get().Playing {
		s.Start()
	}
}

func (s *Sampler) detach() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// Start begins resampling. Starting a running sampler does nothing.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ticker.Start(Period(s.rate), s.Sample)
	debug.Log("sampler", "start rate=%.1f period=%v", s.rate, Period(s.rate))
}

// Stop halts resampling and empties the active set. Once Stop returns no
// further swaps happen until the next Start.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		debug.Log("sampler", "stop")
	}
	s.running = false
	s.ticker.Stop()
	s.active.Store(empty)
}

// SetRate changes the sampling rate, restarting the ticker if running.
func (s *Sampler) SetRate(rate float64) {
	if !(rate > 0) {
		rate = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate == s.rate {
		return
	}
	s.rate = rate
	if s.running {
		s.ticker.Start(Period(rate), s.Sample)
	}
}

func (s *Sampler) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

func (s *Sampler) SetNumberOfNotes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = max(n, 1)
}

// SetPoints swaps the mapped geometry and restarts the traversal.
func (s *Sampler) SetPoints(points []pitch.Mapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = points
	s.policy.Reset()
	if s.running {
		s.active.Store(empty)
	}
}

// Sample resamples once. It is the ticker callback.
func (s *Sampler) Sample() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			debug.Warn("sampler", "resample failed: %v", r)
		}
	}()

	idx := s.policy.Next(s.points, s.n, s.rng)
	notes := make([]pitch.Note, len(idx))
	for i, j := range idx {
		notes[i] = s.points[j].Note
	}
	s.active.Store(&Snapshot{Indices: idx, Notes: notes})
	s.samples++
	debug.LogEvery(50, "sampler", "active=%v", idx)
}

// Active returns the current active indices. The slice must not be modified.
func (s *Sampler) Active() []int {
	return s.active.Load().Indices
}

// ActiveNotes returns the notes of the active set in set order.
func (s *Sampler) ActiveNotes() []pitch.Note {
	return s.active.Load().Notes
}

// Snapshot returns the current active set.
func (s *Sampler) Snapshot() *Snapshot {
	return s.active.Load()
}

func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Samples counts successful resamples.
func (s *Sampler) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

func (s *Sampler) Failures() int64 {
	return s.failures.Load()
}

// Cleanup stops the sampler, drops its subscriptions and traversal state.
// Safe to call repeatedly.
func (s *Sampler) Cleanup() {
	s.detach()
	s.Stop()
	s.mu.Lock()
	s.policy.Reset()
	s.mu.Unlock()
}
