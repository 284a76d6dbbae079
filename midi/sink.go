// Package midi sends sequencer triggers to MIDI output ports.
package midi

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"fractal-sequence/clock"
	"fractal-sequence/debug"
	"fractal-sequence/pitch"
)

var (
	ErrInvalidTrigger = errors.New("midi: invalid trigger")
	ErrClosed         = errors.New("midi: sink closed")
)

// DefaultBendRange is the receiver's pitch bend range in semitones.
const DefaultBendRange = 2.0

// SendFunc writes one message to a port.
type SendFunc func(msg gomidi.Message) error

// SinkOptions configure a PortSink.
type SinkOptions struct {
	// Channels are used round robin so each sounding note can carry its
	// own pitch bend. Defaults to all 16 channels.
	Channels  []uint8
	BendRange float64
}

// PortSink turns triggers into timed MIDI messages. Messages wait in a
// time-ordered queue and are written by one goroutine when the clock
// reaches them.
type PortSink struct {
	clk       clock.Clock
	send      SendFunc
	channels  []uint8
	bendRange float64

	mu       sync.Mutex
	queue    eventQueue
	seq      uint64
	next     int             // round-robin channel index
	lastBend map[uint8]int16 // last bend written per channel
	closed   bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	sent   int64
	errors int64
}

// NewPortSink starts the output loop.
func NewPortSink(clk clock.Clock, send SendFunc, opts SinkOptions) *PortSink {
	if len(opts.Channels) == 0 {
		opts.Channels = AllChannels()
	}
	if opts.BendRange <= 0 {
		opts.BendRange = DefaultBendRange
	}
	s := &PortSink{
		clk:       clk,
		send:      send,
		channels:  opts.Channels,
		bendRange: opts.BendRange,
		lastBend:  make(map[uint8]int16),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.outputLoop()
	return s
}

// AllChannels is 0..15.
func AllChannels() []uint8 {
	chans := make([]uint8, 16)
	for i := range chans {
		chans[i] = uint8(i)
	}
	return chans
}

func velocity7(v float64) uint8 {
	return uint8(math.Min(math.Max(math.Floor(v*127+0.5), 1), 127))
}

// TriggerNote queues a note on at at, carrying its pitch bend, and a note
// off at at+duration.
func (s *PortSink) TriggerNote(note int, duration, at, velocity, cents float64) error {
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

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	ch := s.channels[s.next%len(s.channels)]
	s.next++
	s.push(Event{
		Time:     at,
		Type:     NoteOn,
		Channel:  ch,
		Note:     uint8(note),
		Velocity: velocity7(velocity),
		Bend:     pitch.Bend(cents, s.bendRange),
	})
	s.push(Event{Time: at + duration, Type: NoteOff, Channel: ch, Note: uint8(note)})
	s.mu.Unlock()

	s.kick()
	return nil
}

func (s *PortSink) push(e Event) {
	s.seq++
	s.queue.push(queued{Event: e, seq: s.seq})
}

func (s *PortSink) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// outputLoop writes due events, sleeping until the earliest is due.
func (s *PortSink) outputLoop() {
	defer s.wg.Done()
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait := s.flushDue(s.clk.CurrentTime())
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.done:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// flushDue sends every event due at now and returns how long to wait for
// the next one. A note on is preceded by a pitch bend when its channel's
// last written bend differs.
func (s *PortSink) flushDue(now float64) time.Duration {
	for {
		s.mu.Lock()
		e, ok := s.queue.peek()
		if !ok {
			s.mu.Unlock()
			return time.Hour
		}
		if e.Time > now {
			s.mu.Unlock()
			return time.Duration((e.Time - now) * float64(time.Second))
		}
		s.queue.pop()
		var bend *Event
		if e.Type == NoteOn {
			if last, ok := s.lastBend[e.Channel]; !ok || last != e.Bend {
				s.lastBend[e.Channel] = e.Bend
				bend = &Event{Time: e.Time, Type: PitchBend, Channel: e.Channel, Bend: e.Bend}
			}
		}
		s.mu.Unlock()
		if bend != nil {
			s.write(*bend)
		}
		s.write(e.Event)
	}
}

func (s *PortSink) write(e Event) {
	if s.send == nil {
		return
	}
	if err := s.send(e.Message()); err != nil {
		s.mu.Lock()
		s.errors++
		s.mu.Unlock()
		debug.Warn("midi", "send failed type=%#x ch=%d note=%d: %v", e.Type, e.Channel, e.Note, err)
		return
	}
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
}

// Pending is the number of queued messages.
func (s *PortSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Stats returns sent and failed message counts.
func (s *PortSink) Stats() (sent, failed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.errors
}

// Close stops the loop, drops pending note ons and sends every pending
// note off so nothing hangs. Safe to call repeatedly.
func (s *PortSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	var offs []Event
	for s.queue.Len() > 0 {
		if e := s.queue.pop(); e.Type == NoteOff {
			offs = append(offs, e.Event)
		}
	}
	s.mu.Unlock()

	for _, e := range offs {
		s.write(e)
	}
	debug.Log("midi", "sink closed, released %d notes", len(offs))
}
