package sequencer

import (
	"errors"

	"fractal-sequence/pitch"
)

var (
	ErrNoSink   = errors.New("sequencer: note sink not set")
	ErrNoSource = errors.New("sequencer: note source not set")
)

// NoteSink produces sound for a trigger. at is absolute clock time in
// seconds; velocity is in [0,1]; cents in [-50,50]. Implementations must
// return an error rather than panic on invalid input.
type NoteSink interface {
	TriggerNote(note int, duration, at, velocity, cents float64) error
}

// SinkFunc adapts a function to NoteSink.
type SinkFunc func(note int, duration, at, velocity, cents float64) error

func (f SinkFunc) TriggerNote(note int, duration, at, velocity, cents float64) error {
	return f(note, duration, at, velocity, cents)
}

// NoteSource supplies the live notes; row i plays element i.
type NoteSource interface {
	ActiveNotes() []pitch.Note
}

// StaticSource is a fixed note list.
type StaticSource []pitch.Note

func (s StaticSource) ActiveNotes() []pitch.Note { return s }

// Trigger is one scheduled note.
type Trigger struct {
	Row      int
	Step     int
	Note     int
	Cents    float64
	Time     float64
	Duration float64
	Velocity float64
}
