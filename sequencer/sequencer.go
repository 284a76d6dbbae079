// Package sequencer turns scheduler ticks into note triggers: a shared
// 16-step cursor walks every row of the grid, and each active step of row
// i sounds the i-th live note with its own micro-timing.
package sequencer

import (
	"math"
	"sync"
	"sync/atomic"

	"fractal-sequence/debug"
	"fractal-sequence/pitch"
	"fractal-sequence/store"
)

// Options configure a Sequencer.
type Options struct {
	// Velocity fixes every trigger's velocity when > 0. Otherwise velocity
	// is 1/sqrt(live notes on the tick), floored at MinVelocity.
	Velocity    float64
	MinVelocity float64
}

// Sequencer is the step state machine.
type Sequencer struct {
	grid   *Grid
	source NoteSource
	sink   NoteSink
	tempo  func() float64
	opts   Options

	mu      sync.Mutex
	step    int
	swing   float64
	pending []pitch.Note
	primed  bool

	steps    *store.Store[int]
	failures atomic.Int64
}

// New wires a sequencer. tempo returns the current bpm.
func New(grid *Grid, source NoteSource, sink NoteSink, tempo func() float64, opts Options) (*Sequencer, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if source == nil {
		return nil, ErrNoSource
	}
	if grid == nil {
		grid = NewGrid(1)
	}
	if tempo == nil {
		tempo = func() float64 { return 120 }
	}
	if opts.MinVelocity <= 0 {
		opts.MinVelocity = 0.2
	}
	return &Sequencer{
		grid:   grid,
		source: source,
		sink:   sink,
		tempo:  tempo,
		opts:   opts,
		steps:  store.New(0),
	}, nil
}

func (s *Sequencer) Grid() *Grid { return s.grid }

// StepDuration is the length of a sixteenth note at bpm.
func StepDuration(bpm float64) float64 {
	return 60 / (bpm * 4)
}

// SubdivisionOffset is the nudge of a step, up to half a step either way.
func SubdivisionOffset(sub int, stepDuration float64) float64 {
	return (float64(sub) / MaxSubdivision) * (stepDuration / 2)
}

// SwingOffset delays odd steps by swing times half a step.
func SwingOffset(step int, swing, stepDuration float64) float64 {
	if step%2 == 1 {
		return swing * (stepDuration / 2)
	}
	return 0
}

// Velocity scales down with polyphony.
func Velocity(n int, floor float64) float64 {
	if n <= 1 {
		return 1
	}
	return math.Max(floor, 1/math.Sqrt(float64(n)))
}

// Tick computes and dispatches the triggers for the current step at time t,
// then advances the cursor. Sink failures are logged and skipped.
func (s *Sequencer) Tick(t float64) []Trigger {
	bpm := s.tempo()

	s.mu.Lock()
	step := s.step
	notes := s.pending
	if !s.primed {
		notes = s.source.ActiveNotes()
	}
	swing := s.swing
	column := s.grid.column(step)

	stepDur := StepDuration(bpm)
	swingOff := SwingOffset(step, swing, stepDur)
	var triggers []Trigger
	for row, st := range column {
		if !st.Active || row >= len(notes) {
			continue
		}
		n := notes[row]
		triggers = append(triggers, Trigger{
			Row:      row,
			Step:     step,
			Note:     n.Number,
			Cents:    n.Cents,
			Time:     t + SubdivisionOffset(st.Subdivision, stepDur) + swingOff,
			Duration: stepDur * st.NoteLength,
		})
	}
	vel := s.opts.Velocity
	if vel <= 0 {
		vel = Velocity(len(notes), s.opts.MinVelocity)
	}
	for i := range triggers {
		triggers[i].Velocity = vel
	}

	s.step = (step + 1) % NumSteps
	s.pending = s.source.ActiveNotes()
	s.primed = true
	next := s.step
	s.mu.Unlock()

	for _, tr := range triggers {
		s.dispatch(tr)
	}
	s.steps.Set(next)
	return triggers
}

func (s *Sequencer) dispatch(tr Trigger) {
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			debug.Warn("seq", "trigger panicked row=%d note=%d: %v", tr.Row, tr.Note, r)
		}
	}()
	if err := s.sink.TriggerNote(tr.Note, tr.Duration, tr.Time, tr.Velocity, tr.Cents); err != nil {
		s.failures.Add(1)
		debug.Warn("seq", "trigger failed row=%d note=%d: %v", tr.Row, tr.Note, err)
		return
	}
	debug.LogEvery(64, "seq", "step=%d row=%d note=%d t=%.3f dur=%.3f", tr.Step, tr.Row, tr.Note, tr.Time, tr.Duration)
}

// SetSwing clamps swing into [0,1].
func (s *Sequencer) SetSwing(v float64) {
	if math.IsNaN(v) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swing = math.Min(math.Max(v, 0), 1)
}

func (s *Sequencer) Swing() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swing
}

func (s *Sequencer) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Reset returns the cursor to step 0 and drops the precomputed notes.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	s.step = 0
	s.pending = nil
	s.primed = false
	s.mu.Unlock()
	s.steps.Set(0)
}

// OnStepChange registers fn under key; the returned func unregisters it.
func (s *Sequencer) OnStepChange(key string, fn func(step int)) func() {
	return s.steps.Subscribe(key, fn)
}

// Failures counts triggers the sink rejected.
func (s *Sequencer) Failures() int64 {
	return s.failures.Load()
}
