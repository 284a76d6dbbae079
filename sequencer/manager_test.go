package sequencer

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"fractal-sequence/activation"
	"fractal-sequence/clock"
	"fractal-sequence/pitch"
	"fractal-sequence/scheduler"
	"fractal-sequence/store"
)

type rig struct {
	m       *Manager
	clk     *clock.Manual
	schedTk *clock.ManualTicker
	sampTk  *clock.ManualTicker
	sink    *recordingSink
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		clk:     clock.NewManual(0),
		schedTk: clock.NewManualTicker(),
		sampTk:  clock.NewManualTicker(),
		sink:    &recordingSink{},
	}
	params := store.DefaultParameters()
	params.NumberOfNotes = 2
	m, err := NewManager(ManagerOptions{
		Clock:           r.clk,
		Sink:            r.sink,
		SchedulerTicker: r.schedTk,
		SamplerTicker:   r.sampTk,
		Policy:          activation.RandomSubset{},
		Rand:            rand.New(rand.NewPCG(1, 2)),
		Parameters:      params,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Close)
	r.m = m
	return r
}

func TestNewManagerRequiresClockAndSink(t *testing.T) {
	if _, err := NewManager(ManagerOptions{Sink: &recordingSink{}}); !errors.Is(err, scheduler.ErrClockUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if _, err := NewManager(ManagerOptions{Clock: clock.NewManual(0)}); !errors.Is(err, ErrNoSink) {
		t.Fatalf("err = %v", err)
	}
}

func TestManagerPlayStop(t *testing.T) {
	r := newRig(t)
	r.m.Grid().ToggleStep(0, 0)

	if err := r.m.Play(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !r.schedTk.Running() || !r.sampTk.Running() {
		t.Fatal("play did not start both tickers")
	}
	if got := len(r.m.Sampler().ActiveNotes()); got != 2 {
		t.Fatalf("active notes = %d, want 2", got)
	}

	r.schedTk.Fire()
	calls := r.sink.Calls()
	if len(calls) != 1 || calls[0].at != 0 || calls[0].duration != 0.125 {
		t.Fatalf("calls = %+v", calls)
	}
	if r.m.Sequencer().CurrentStep() != 1 {
		t.Fatalf("step = %d", r.m.Sequencer().CurrentStep())
	}

	r.m.Stop()
	step, playing, _ := r.m.GetState()
	if step != 0 || playing {
		t.Fatalf("after stop step=%d playing=%v", step, playing)
	}
	if r.schedTk.Running() || r.sampTk.Running() {
		t.Fatal("stop left a ticker running")
	}
	if len(r.m.Sampler().ActiveNotes()) != 0 {
		t.Fatal("stop did not clear the active set")
	}
	if r.schedTk.Fire() {
		t.Fatal("stopped scheduler ticker still fires")
	}
}

func TestManagerTogglePlay(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	if err := r.m.TogglePlay(ctx); err != nil {
		t.Fatal(err)
	}
	if !r.m.Transport().Get().Playing {
		t.Fatal("not playing after toggle")
	}
	if err := r.m.Play(ctx); err != nil {
		t.Fatalf("second Play = %v", err)
	}
	r.m.TogglePlay(ctx)
	if r.m.Transport().Get().Playing {
		t.Fatal("still playing after second toggle")
	}
}

func TestManagerTempoFollowsTransport(t *testing.T) {
	r := newRig(t)
	r.m.SetTempo(1000)
	if r.m.Scheduler().BPM() != store.MaxBPM {
		t.Fatalf("BPM = %v", r.m.Scheduler().BPM())
	}
	r.m.SetTempo(90)
	if _, _, bpm := r.m.GetState(); bpm != 90 {
		t.Fatalf("BPM = %v", bpm)
	}
}

func TestManagerParametersResizeAndRemap(t *testing.T) {
	r := newRig(t)
	before := r.m.Snapshot().Cubes

	r.m.SetNumberOfNotes(5)
	if r.m.Grid().RowCount() != 5 {
		t.Fatalf("rows = %d", r.m.Grid().RowCount())
	}
	if err := r.m.SetDepth(1); err != nil {
		t.Fatal(err)
	}
	if got := r.m.Snapshot().Cubes; got != 20 || got == before {
		t.Fatalf("cubes = %d (before %d)", got, before)
	}
	if err := r.m.SetDepth(9); err == nil {
		t.Fatal("SetDepth(9) accepted")
	}
	if r.m.Parameters().Get().Depth != 1 {
		t.Fatal("rejected depth was stored")
	}

	r.m.SetSwing(0.4)
	if r.m.Sequencer().Swing() != 0.4 {
		t.Fatalf("swing = %v", r.m.Sequencer().Swing())
	}
	r.m.SetSamplingRate(60)
	if r.m.Sampler().Rate() != 60 {
		t.Fatalf("rate = %v", r.m.Sampler().Rate())
	}

	mp := pitch.DefaultParams()
	mp.ScaleType = "chromatic"
	r.m.SetMapping(mp)
	if r.m.Snapshot().Params.Mapping.ScaleType != "chromatic" {
		t.Fatal("mapping not stored")
	}
}

func TestManagerKeysAndUpdates(t *testing.T) {
	r := newRig(t)
	for len(r.m.UpdateChan) > 0 {
		<-r.m.UpdateChan
	}
	if !r.m.HandleKey(" ") {
		t.Fatal("space not handled")
	}
	if s, _ := r.m.Grid().Step(0, 0); !s.Active {
		t.Fatal("space did not toggle the cursor step")
	}
	select {
	case <-r.m.UpdateChan:
	default:
		t.Fatal("no update notification")
	}
	snap := r.m.Snapshot()
	if len(snap.Rows) != 2 || snap.CursorRow != 0 || snap.CursorStep != 0 {
		t.Fatalf("snapshot %+v", snap)
	}
}

func TestManagerScheduleEvent(t *testing.T) {
	r := newRig(t)
	var fired []float64
	if _, err := r.m.ScheduleEvent(func(t float64) { fired = append(fired, t) }, 0); err != nil {
		t.Fatal(err)
	}
	r.m.Play(context.Background())
	r.schedTk.Fire()
	if len(fired) != 1 {
		t.Fatalf("fired = %v", fired)
	}
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	r := newRig(t)
	r.m.Play(context.Background())
	r.m.Close()
	r.m.Close()
	if err := r.m.Play(context.Background()); err == nil {
		t.Fatal("Play after Close succeeded")
	}
	if r.m.Parameters().Subscribers() != 0 || r.m.Transport().Subscribers() != 0 {
		t.Fatalf("subscriptions left: params=%d transport=%d",
			r.m.Parameters().Subscribers(), r.m.Transport().Subscribers())
	}
}
