package midi

import (
	"container/heap"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types
const (
	NoteOn    uint8 = 0x90
	NoteOff   uint8 = 0x80
	PitchBend uint8 = 0xE0
)

// Event is a MIDI message due at clock time Time (seconds).
type Event struct {
	Time     float64
	Type     uint8 // NoteOn, NoteOff, PitchBend
	Channel  uint8
	Note     uint8
	Velocity uint8
	Bend     int16 // -8192..8191; on a NoteOn, the bend it needs
}

// Message encodes the event for the wire.
func (e Event) Message() gomidi.Message {
	switch e.Type {
	case NoteOn:
		return gomidi.NoteOn(e.Channel, e.Note, e.Velocity)
	case NoteOff:
		return gomidi.NoteOff(e.Channel, e.Note)
	case PitchBend:
		return gomidi.Pitchbend(e.Channel, e.Bend)
	}
	return nil
}

type queued struct {
	Event
	seq uint64
}

// eventQueue is a min-heap on (Time, seq).
type eventQueue []queued

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].Time != q[j].Time {
		return q[i].Time < q[j].Time
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

func (q *eventQueue) push(e queued) { heap.Push(q, e) }
func (q *eventQueue) pop() queued   { return heap.Pop(q).(queued) }
func (q eventQueue) peek() (queued, bool) {
	if len(q) == 0 {
		return queued{}, false
	}
	return q[0], true
}
