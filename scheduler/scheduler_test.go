package scheduler

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"fractal-sequence/clock"
)

func newTest(t *testing.T) (*Scheduler, *clock.Manual, *clock.ManualTicker) {
	t.Helper()
	clk := clock.NewManual(0)
	tk := clock.NewManualTicker()
	return New(clk, tk, Options{}), clk, tk
}

// run advances the clock in poll-sized steps, firing the ticker each time.
func run(clk *clock.Manual, tk *clock.ManualTicker, seconds float64) {
	const step = 0.015
	for elapsed := 0.0; elapsed < seconds; elapsed += step {
		clk.Advance(step)
		tk.Fire()
	}
}

func TestStartRequiresClock(t *testing.T) {
	s := New(nil, clock.NewManualTicker(), Options{})
	if err := s.Start(func(float64) {}); !errors.Is(err, ErrClockUnavailable) {
		t.Fatalf("Start without clock = %v", err)
	}

	clk := clock.NewManual(0)
	clk.Close()
	s = New(clk, clock.NewManualTicker(), Options{})
	if err := s.Start(func(float64) {}); !errors.Is(err, ErrClockUnavailable) {
		t.Fatalf("Start with closed clock = %v", err)
	}
	if s.Running() {
		t.Fatal("scheduler running after failed start")
	}
}

func TestTicksAreSixteenthNotes(t *testing.T) {
	s, clk, tk := newTest(t)
	var ticks []float64
	if err := s.Start(func(at float64) { ticks = append(ticks, at) }); err != nil {
		t.Fatal(err)
	}
	if tk.Period() != DefaultOptions().PollInterval {
		t.Fatalf("poll period = %v", tk.Period())
	}
	tk.Fire()
	run(clk, tk, 2)

	if len(ticks) < 16 {
		t.Fatalf("only %d ticks in 2s at 120bpm", len(ticks))
	}
	if ticks[0] != 0 {
		t.Fatalf("first tick at %v, want 0", ticks[0])
	}
	for i := 1; i < len(ticks); i++ {
		if d := ticks[i] - ticks[i-1]; math.Abs(d-0.125) > 1e-12 {
			t.Fatalf("tick %d spacing %v, want 0.125", i, d)
		}
	}
	// every tick was dispatched before its deadline plus the window
	now := clk.CurrentTime()
	if last := ticks[len(ticks)-1]; last >= now+0.1 {
		t.Fatalf("tick %v beyond look-ahead window at %v", last, now)
	}
}

func TestSuspendedClockIsNoop(t *testing.T) {
	s, clk, tk := newTest(t)
	clk.Suspend()
	calls := 0
	if err := s.Start(func(float64) { calls++ }); err != nil {
		t.Fatal(err)
	}
	run(clk, tk, 1)
	if calls != 0 {
		t.Fatalf("ticks fired on a suspended clock: %d", calls)
	}
}

func TestStopPreventsFurtherTicks(t *testing.T) {
	clk := clock.NewManual(0)
	tk := clock.NewManualTicker()
	s := New(clk, tk, Options{ScheduleAhead: 1})

	calls := 0
	s.Start(func(float64) {
		calls++
		s.Stop()
	})
	tk.Fire()
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (stop inside tick)", calls)
	}
	next := s.NextEventTime()
	run(clk, tk, 1)
	s.Poll()
	if calls != 1 {
		t.Fatalf("tick after stop: calls = %d", calls)
	}
	if s.NextEventTime() != next {
		t.Fatal("Stop should not move nextEventTime")
	}
	if tk.Running() {
		t.Fatal("ticker still running after Stop")
	}
}

func TestRestartResetsNextEventTime(t *testing.T) {
	s, clk, tk := newTest(t)
	s.Start(func(float64) {})
	run(clk, tk, 0.5)
	s.Stop()
	clk.Advance(10)

	var first float64 = -1
	s.Start(func(at float64) {
		if first < 0 {
			first = at
		}
	})
	tk.Fire()
	if first != clk.CurrentTime() {
		t.Fatalf("first tick after restart at %v, want %v", first, clk.CurrentTime())
	}
}

func TestSetBPMTakesEffectOnNextAdvance(t *testing.T) {
	s, clk, tk := newTest(t)
	var ticks []float64
	s.Start(func(at float64) { ticks = append(ticks, at) })
	tk.Fire() // tick at 0, next = 0.125
	s.SetBPM(60)
	clk.Set(0.1)
	tk.Fire() // tick at 0.125, next = 0.375

	if len(ticks) != 2 || ticks[1] != 0.125 {
		t.Fatalf("ticks = %v", ticks)
	}
	if got := s.NextEventTime(); math.Abs(got-0.375) > 1e-12 {
		t.Fatalf("NextEventTime = %v, want 0.375", got)
	}
}

func TestSetBPMClamp(t *testing.T) {
	s, _, _ := newTest(t)
	s.SetBPM(1000)
	if s.BPM() != 300 {
		t.Fatalf("BPM = %v", s.BPM())
	}
	s.SetBPM(1000)
	if s.BPM() != 300 {
		t.Fatalf("second clamp changed state: %v", s.BPM())
	}
	s.SetBPM(1)
	if s.BPM() != 30 {
		t.Fatalf("BPM = %v", s.BPM())
	}
	s.SetBPM(math.NaN())
	if s.BPM() != 30 {
		t.Fatalf("NaN changed BPM to %v", s.BPM())
	}

	narrow := New(clock.NewManual(0), clock.NewManualTicker(), Options{MinBPM: 60, MaxBPM: 200})
	narrow.SetBPM(250)
	if narrow.BPM() != 200 {
		t.Fatalf("narrow BPM = %v", narrow.BPM())
	}
}

func TestOneShotEvents(t *testing.T) {
	s, clk, tk := newTest(t)
	s.Start(func(float64) {})
	tk.Fire()

	var order []float64
	record := func(at float64) { order = append(order, at) }
	s.ScheduleEvent(record, 0.05)
	s.ScheduleEvent(record, 0.02)
	late, _ := s.ScheduleEvent(record, 5)
	cancelled, _ := s.ScheduleEvent(record, 0.03)
	if !s.CancelEvent(cancelled) {
		t.Fatal("CancelEvent reported nothing removed")
	}
	if s.CancelEvent(cancelled) {
		t.Fatal("second CancelEvent should report false")
	}

	clk.Set(0.06)
	tk.Fire()
	if len(order) != 2 || order[0] != 0.05 || order[1] != 0.02 {
		t.Fatalf("events fired %v, want insertion order [0.05 0.02]", order)
	}

	run(clk, tk, 1)
	if len(order) != 2 {
		t.Fatalf("events fired twice: %v", order)
	}
	if s.Pending() != 1 || !s.CancelEvent(late) {
		t.Fatal("future event should still be pending")
	}

	if _, err := s.ScheduleEvent(nil, 1); err == nil {
		t.Fatal("nil callback accepted")
	}
	if _, err := s.ScheduleEvent(record, math.NaN()); err == nil {
		t.Fatal("NaN time accepted")
	}
}

func TestPanicsAreIsolated(t *testing.T) {
	s, clk, tk := newTest(t)
	ticks := 0
	s.Start(func(float64) {
		ticks++
		if ticks == 1 {
			panic("bad tick")
		}
	})
	fired := false
	s.ScheduleEvent(func(float64) { panic("bad event") }, 0)
	s.ScheduleEvent(func(float64) { fired = true }, 0)

	tk.Fire()
	run(clk, tk, 0.5)
	if ticks < 2 {
		t.Fatalf("loop stopped after panic: ticks = %d", ticks)
	}
	if !fired {
		t.Fatal("event after a panicking event did not fire")
	}
	if s.Failures() != 2 {
		t.Fatalf("Failures = %d, want 2", s.Failures())
	}
}

func TestStats(t *testing.T) {
	s, clk, tk := newTest(t)
	if st := s.Stats(); st.Samples != 0 {
		t.Fatalf("fresh stats %+v", st)
	}
	n := 0
	s.Start(func(float64) { n++ })
	tk.Fire()
	run(clk, tk, 1)

	st := s.Stats()
	if st.Total != int64(n) || st.Samples != n {
		t.Fatalf("stats %+v for %d ticks", st, n)
	}
	if st.MaxDelta >= 0.1 || st.MinDelta > st.AverageDelta || st.AverageDelta > st.MaxDelta {
		t.Fatalf("inconsistent stats %+v", st)
	}
	if math.Abs(st.Jitter-(st.MaxDelta-st.MinDelta)) > 1e-12 {
		t.Fatalf("jitter %v", st.Jitter)
	}
}

func TestDisposeIdempotent(t *testing.T) {
	s, _, tk := newTest(t)
	s.Start(func(float64) {})
	s.ScheduleEvent(func(float64) {}, 3)
	s.Dispose()
	s.Dispose()
	if s.Running() || tk.Running() || s.Pending() != 0 {
		t.Fatal("Dispose left state behind")
	}
}

func TestMonotonicTicksProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("ticks increase by exactly one sixteenth", prop.ForAll(
		func(bpm float64, start float64) bool {
			clk := clock.NewManual(start)
			tk := clock.NewManualTicker()
			s := New(clk, tk, Options{})
			s.SetBPM(bpm)
			var ticks []float64
			s.Start(func(at float64) { ticks = append(ticks, at) })
			tk.Fire()
			run(clk, tk, 3)

			want := (60 / s.BPM()) / 4
			for i := 1; i < len(ticks); i++ {
				if math.Abs(ticks[i]-ticks[i-1]-want) > 1e-9 {
					return false
				}
			}
			return len(ticks) > 1
		},
		gen.Float64Range(30, 300),
		gen.Float64Range(0, 1000),
	))

	properties.TestingRun(t)
}
