// Package synth renders sequencer triggers to audio in process. Its Engine
// is both the note sink and the clock: time is the number of frames
// rendered, so scheduled notes land on exact frames.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"fractal-sequence/clock"
	"fractal-sequence/debug"
)

var ErrInvalidTrigger = errors.New("synth: invalid trigger")

type noteEvent struct {
	frame int64
	seq   uint64
	on    bool
	tag   uint64
	note  int
	vel   float64
	cents float64
}

func (a noteEvent) compare(b noteEvent) int {
	switch {
	case a.frame < b.frame:
		return -1
	case a.frame > b.frame:
		return 1
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

// Engine queues note events by frame and renders Voices around them.
type Engine struct {
	sampleRate int
	voices     Voices
	frames     atomic.Int64

	mu    sync.Mutex
	state clock.State
	queue []noteEvent
	seq   uint64
	held  map[uint64]int // trigger tag -> voice id
	gain  float64
	left  []float32
	right []float32
	late  int64
}

// NewEngine returns a suspended engine.
func NewEngine(sampleRate int, voices Voices) *Engine {
	return &Engine{
		sampleRate: sampleRate,
		voices:     voices,
		state:      clock.Suspended,
		held:       make(map[uint64]int),
		gain:       0.75,
	}
}

func (e *Engine) SampleRate() int { return e.sampleRate }

// CurrentTime is the rendered duration in seconds.
func (e *Engine) CurrentTime() float64 {
	return float64(e.frames.Load()) / float64(e.sampleRate)
}

func (e *Engine) State() clock.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == clock.Closed {
		return clock.ErrClosed
	}
	e.state = clock.Running
	return nil
}

func (e *Engine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == clock.Running {
		e.state = clock.Suspended
	}
}

// Close releases every held note and stops the clock for good.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for tag, id := range e.held {
		e.voices.NoteOff(id)
		delete(e.held, tag)
	}
	e.queue = nil
	e.state = clock.Closed
}

// SetGain sets the master gain, clamped to [0,1].
func (e *Engine) SetGain(g float64) {
	if math.IsNaN(g) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gain = math.Min(math.Max(g, 0), 1)
}

func (e *Engine) frameAt(t float64) int64 {
	return int64(math.Floor(t*float64(e.sampleRate) + 0.5))
}

// TriggerNote queues a note on at frame(at) and its note off duration
// later. Notes whose time has passed start on the next rendered frame.
func (e *Engine) TriggerNote(note int, duration, at, velocity, cents float64) error {
	switch {
	case note < 0 || note > 127:
		return fmt.Errorf("%w: note %d", ErrInvalidTrigger, note)
	case math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0:
		return fmt.Errorf("%w: duration %v", ErrInvalidTrigger, duration)
	case math.IsNaN(at) || math.IsInf(at, 0):
		return fmt.Errorf("%w: time %v", ErrInvalidTrigger, at)
	case math.IsNaN(velocity) || math.IsNaN(cents):
		return fmt.Errorf("%w: velocity %v cents %v", ErrInvalidTrigger, velocity, cents)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == clock.Closed {
		return clock.ErrClosed
	}
	start := e.frameAt(at)
	if now := e.frames.Load(); start < now {
		e.late++
		start = now
	}
	end := start + max(e.frameAt(duration), 1)

	e.seq++
	tag := e.seq
	e.insert(noteEvent{frame: start, on: true, tag: tag, note: note, vel: velocity, cents: cents})
	e.insert(noteEvent{frame: end, tag: tag})
	return nil
}

func (e *Engine) insert(ev noteEvent) {
	e.seq++
	ev.seq = e.seq
	i, _ := slices.BinarySearchFunc(e.queue, ev, noteEvent.compare)
	e.queue = slices.Insert(e.queue, i, ev)
}

// Pending is the number of queued note events.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Late counts triggers that arrived after their start frame.
func (e *Engine) Late() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.late
}

// ActiveVoices returns the sounding voice count.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voices.Active()
}

func (e *Engine) fireDue(now int64) {
	n := 0
	for n < len(e.queue) && e.queue[n].frame <= now {
		ev := e.queue[n]
		if ev.on {
			e.held[ev.tag] = e.voices.NoteOn(ev.note, ev.vel, ev.cents)
		} else if id, ok := e.held[ev.tag]; ok {
			e.voices.NoteOff(id)
			delete(e.held, ev.tag)
		}
		n++
	}
	if n > 0 {
		e.queue = slices.Delete(e.queue, 0, n)
	}
}

// Process renders len(dst)/2 interleaved stereo frames. A suspended or
// closed engine writes silence and its clock does not move.
func (e *Engine) Process(dst []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	frames := len(dst) / 2
	if e.state != clock.Running {
		clear(dst)
		return
	}
	if cap(e.left) < frames {
		e.left = make([]float32, frames)
		e.right = make([]float32, frames)
	}
	left, right := e.left[:frames], e.right[:frames]

	pos := 0
	for pos < frames {
		now := e.frames.Load()
		e.fireDue(now)
		end := frames
		if len(e.queue) > 0 {
			if d := int(e.queue[0].frame - now); pos+d < end {
				end = pos + d
			}
		}
		e.voices.Render(left[pos:end], right[pos:end])
		e.frames.Add(int64(end - pos))
		pos = end
	}

	for i := 0; i < frames; i++ {
		dst[2*i] = clampSample(left[i] * float32(e.gain))
		dst[2*i+1] = clampSample(right[i] * float32(e.gain))
	}
	debug.LogEvery(2000, "synth", "t=%.3f voices=%d queued=%d", e.CurrentTime(), e.voices.Active(), len(e.queue))
}

func clampSample(v float32) float32 {
	return min(max(v, -1), 1)
}
