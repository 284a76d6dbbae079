package midi

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"fractal-sequence/clock"
	"fractal-sequence/config"
	"fractal-sequence/pitch"
)

type wire struct {
	mu   sync.Mutex
	msgs []gomidi.Message
	fail bool
}

func (w *wire) send(m gomidi.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("port gone")
	}
	w.msgs = append(w.msgs, m)
	return nil
}

func (w *wire) messages() []gomidi.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]gomidi.Message(nil), w.msgs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func status(m gomidi.Message) uint8 { return m[0] & 0xF0 }

func TestEventMessage(t *testing.T) {
	on := Event{Type: NoteOn, Channel: 2, Note: 60, Velocity: 100}.Message()
	if on[0] != 0x92 || on[1] != 60 || on[2] != 100 {
		t.Fatalf("note on = % x", []byte(on))
	}
	off := Event{Type: NoteOff, Channel: 2, Note: 60}.Message()
	if status(off) != NoteOff || off[1] != 60 {
		t.Fatalf("note off = % x", []byte(off))
	}
	pb := Event{Type: PitchBend, Channel: 0, Bend: 0}.Message()
	if pb[0] != 0xE0 || pb[1] != 0x00 || pb[2] != 0x40 {
		t.Fatalf("centred bend = % x", []byte(pb))
	}
}

func TestQueueOrdersByTimeThenInsertion(t *testing.T) {
	var q eventQueue
	q.push(queued{Event: Event{Time: 2, Note: 1}, seq: 1})
	q.push(queued{Event: Event{Time: 1, Note: 2}, seq: 2})
	q.push(queued{Event: Event{Time: 1, Note: 3}, seq: 3})
	var got []uint8
	for q.Len() > 0 {
		got = append(got, q.pop().Note)
	}
	if got[0] != 2 || got[1] != 3 || got[2] != 1 {
		t.Fatalf("order = %v", got)
	}
}

func TestTriggerSendsNoteOnNowAndNoteOffLater(t *testing.T) {
	clk := clock.NewManual(10)
	w := &wire{}
	s := NewPortSink(clk, w.send, SinkOptions{})
	defer s.Close()

	if err := s.TriggerNote(60, 0.5, 10, 1, 25); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(w.messages()) == 2 })
	msgs := w.messages()
	if status(msgs[0]) != PitchBend || status(msgs[1]) != NoteOn || msgs[1][2] != 127 {
		t.Fatalf("messages = % x", msgs)
	}
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want the note off", s.Pending())
	}

	clk.Advance(0.5)
	s.kick()
	waitFor(t, func() bool { return len(w.messages()) == 3 })
	if status(w.messages()[2]) != NoteOff {
		t.Fatalf("third message % x", []byte(w.messages()[2]))
	}
}

func TestBendSentOnlyOnChange(t *testing.T) {
	clk := clock.NewManual(0)
	w := &wire{}
	s := NewPortSink(clk, w.send, SinkOptions{Channels: []uint8{0}})
	defer s.Close()

	s.TriggerNote(60, 0, 0, 0.5, 0)
	s.TriggerNote(62, 0, 0, 0.5, 0)
	waitFor(t, func() bool { return s.Pending() == 0 })
	bends := 0
	for _, m := range w.messages() {
		if status(m) == PitchBend {
			bends++
		}
	}
	if bends != 1 {
		t.Fatalf("bends = %d, want 1", bends)
	}
}

func TestChannelsRoundRobin(t *testing.T) {
	clk := clock.NewManual(0)
	w := &wire{}
	s := NewPortSink(clk, w.send, SinkOptions{Channels: []uint8{0, 1}})
	defer s.Close()

	for _, n := range []int{60, 61, 62} {
		s.TriggerNote(n, 1, 0, 1, 0)
	}
	waitFor(t, func() bool { return len(w.messages()) == 5 }) // two bends, three note ons
	var chans []uint8
	for _, m := range w.messages() {
		if status(m) == NoteOn {
			chans = append(chans, m[0]&0x0F)
		}
	}
	if len(chans) != 3 || chans[0] != 0 || chans[1] != 1 || chans[2] != 0 {
		t.Fatalf("channels = %v", chans)
	}
}

func bendValue(m gomidi.Message) int16 {
	return int16(int(m[2])<<7|int(m[1])) - 8192
}

// bendsAtNoteOn returns, per note on, the bend in force on its channel.
func bendsAtNoteOn(msgs []gomidi.Message) map[uint8]int16 {
	current := make(map[uint8]int16)
	out := make(map[uint8]int16)
	for _, m := range msgs {
		ch := m[0] & 0x0F
		switch status(m) {
		case PitchBend:
			current[ch] = bendValue(m)
		case NoteOn:
			out[m[1]] = current[ch]
		}
	}
	return out
}

func TestDefaultConfigGivesEachNoteItsOwnChannel(t *testing.T) {
	clk := clock.NewManual(0)
	w := &wire{}
	s := NewPortSink(clk, w.send, SinkOptions{Channels: config.DefaultConfig().MIDIChannels()})
	defer s.Close()

	s.TriggerNote(60, 1, 1, 1, 40)
	s.TriggerNote(64, 1, 1, 1, -40)
	clk.Set(1)
	s.kick()
	waitFor(t, func() bool { return len(w.messages()) == 4 })

	chans := map[uint8]uint8{}
	for _, m := range w.messages() {
		if status(m) == NoteOn {
			chans[m[1]] = m[0] & 0x0F
		}
	}
	if chans[60] == chans[64] {
		t.Fatalf("both notes on channel %d", chans[60])
	}
	bends := bendsAtNoteOn(w.messages())
	if bends[60] != pitch.Bend(40, DefaultBendRange) || bends[64] != pitch.Bend(-40, DefaultBendRange) {
		t.Fatalf("bends = %v", bends)
	}
}

func TestOutOfOrderTriggersKeepTheirBend(t *testing.T) {
	clk := clock.NewManual(0)
	w := &wire{}
	s := NewPortSink(clk, w.send, SinkOptions{Channels: []uint8{0}})
	defer s.Close()

	// queued in row order; the second plays first
	s.TriggerNote(60, 0.01, 1.00, 1, 40)
	s.TriggerNote(62, 0.01, 0.95, 1, 0)
	s.TriggerNote(64, 0.01, 1.10, 1, 0)
	clk.Set(2)
	s.kick()
	waitFor(t, func() bool { return len(w.messages()) == 9 }) // three bends, ons, offs

	msgs := w.messages()
	var order []uint8
	for _, m := range msgs {
		if status(m) == NoteOn {
			order = append(order, m[1])
		}
	}
	if len(order) != 3 || order[0] != 62 || order[1] != 60 || order[2] != 64 {
		t.Fatalf("note order = %v", order)
	}
	bends := bendsAtNoteOn(msgs)
	if bends[62] != 0 || bends[60] != pitch.Bend(40, DefaultBendRange) || bends[64] != 0 {
		t.Fatalf("bends = %v", bends)
	}
}

func TestInvalidTriggers(t *testing.T) {
	s := NewPortSink(clock.NewManual(0), (&wire{}).send, SinkOptions{})
	defer s.Close()
	bad := []struct {
		note              int
		dur, at, vel, cts float64
	}{
		{-1, 1, 0, 1, 0},
		{128, 1, 0, 1, 0},
		{60, -1, 0, 1, 0},
		{60, math.NaN(), 0, 1, 0},
		{60, 1, math.Inf(1), 1, 0},
		{60, 1, 0, math.NaN(), 0},
		{60, 1, 0, 1, math.NaN()},
	}
	for _, b := range bad {
		if err := s.TriggerNote(b.note, b.dur, b.at, b.vel, b.cts); !errors.Is(err, ErrInvalidTrigger) {
			t.Errorf("TriggerNote(%+v) = %v", b, err)
		}
	}
	if s.Pending() != 0 {
		t.Fatal("invalid trigger was queued")
	}
}

func TestCloseReleasesHeldNotes(t *testing.T) {
	clk := clock.NewManual(0)
	w := &wire{}
	s := NewPortSink(clk, w.send, SinkOptions{})
	s.TriggerNote(60, 5, 0, 1, 0)
	s.TriggerNote(64, 1, 3, 1, 0) // not yet started
	waitFor(t, func() bool { return len(w.messages()) >= 2 })

	s.Close()
	s.Close()
	var offs, ons int
	for _, m := range w.messages() {
		switch status(m) {
		case NoteOff:
			offs++
		case NoteOn:
			ons++
		}
	}
	if ons != 1 || offs != 2 {
		t.Fatalf("ons=%d offs=%d", ons, offs)
	}
	if err := s.TriggerNote(60, 1, 0, 1, 0); !errors.Is(err, ErrClosed) {
		t.Fatalf("TriggerNote after Close = %v", err)
	}
}

func TestSendErrorsAreCounted(t *testing.T) {
	w := &wire{fail: true}
	s := NewPortSink(clock.NewManual(0), w.send, SinkOptions{})
	defer s.Close()
	s.TriggerNote(60, 1, 0, 1, 0)
	waitFor(t, func() bool { _, failed := s.Stats(); return failed == 2 })
}
