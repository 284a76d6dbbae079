package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"fractal-sequence/clock"
	"fractal-sequence/sequencer"
	"fractal-sequence/theme"
)

func newModel(t *testing.T) Model {
	t.Helper()
	mgr, err := sequencer.NewManager(sequencer.ManagerOptions{
		Clock:           clock.NewManual(0),
		Sink:            sequencer.SinkFunc(func(int, float64, float64, float64, float64) error { return nil }),
		SchedulerTicker: clock.NewManualTicker(),
		SamplerTicker:   clock.NewManualTicker(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mgr.Close)
	return NewModel(context.Background(), mgr, nil, theme.New(nil), "synth")
}

func press(m Model, key string) (Model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return next.(Model), cmd
}

func TestTransportKeys(t *testing.T) {
	m := newModel(t)
	m, _ = press(m, "p")
	if _, playing, _ := m.Manager.GetState(); !playing {
		t.Fatal("p did not start playback")
	}
	m, _ = press(m, "+")
	if _, _, bpm := m.Manager.GetState(); bpm != 125 {
		t.Fatalf("bpm = %v", bpm)
	}
	m, _ = press(m, "s")
	if got := m.Manager.Parameters().Get().Swing; got != 0.05 {
		t.Fatalf("swing = %v", got)
	}
	m, _ = press(m, "p")
	if _, playing, _ := m.Manager.GetState(); playing {
		t.Fatal("p did not stop playback")
	}
}

func TestParameterKeys(t *testing.T) {
	m := newModel(t)
	before := m.Manager.Parameters().Get()
	for _, k := range []string{"n", "r", "m", "x", "t", "z", "g", "D"} {
		m, _ = press(m, k)
	}
	p := m.Manager.Parameters().Get()
	if p.NumberOfNotes != before.NumberOfNotes+1 || p.SamplingRate != before.SamplingRate+10 {
		t.Fatalf("notes=%d rate=%v", p.NumberOfNotes, p.SamplingRate)
	}
	if p.Mapping.ScaleType == before.Mapping.ScaleType ||
		p.Mapping.CoordinateSystem == before.Mapping.CoordinateSystem ||
		p.Mapping.Distribution == before.Mapping.Distribution {
		t.Fatalf("mapping not cycled: %+v", p.Mapping)
	}
	if !p.Mapping.EnableMicrotonal || !p.Mapping.EnableDepthModulation {
		t.Fatal("toggles not applied")
	}
	if p.Depth != before.Depth-1 {
		t.Fatalf("depth = %d", p.Depth)
	}
}

func TestDepthErrorShowsStatus(t *testing.T) {
	m := newModel(t)
	for i := 0; i < 5; i++ {
		m, _ = press(m, "d")
	}
	if m.status == "" || !strings.Contains(m.View(), m.status) {
		t.Fatalf("status = %q", m.status)
	}
}

func TestEditorKeysReachGrid(t *testing.T) {
	m := newModel(t)
	m, _ = press(m, "l")
	m, _ = press(m, " ")
	if s, _ := m.Manager.Grid().Step(0, 1); !s.Active {
		t.Fatal("space did not toggle the step under the cursor")
	}
}

func TestViewAndQuit(t *testing.T) {
	m := newModel(t)
	v := m.View()
	for _, want := range []string{"fractal-sequence", "STOP", "120bpm", "pentatonic", "p:play"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
	m, _ = press(m, "?")
	if !strings.Contains(m.View(), "Transport") {
		t.Error("help not shown")
	}
	m, cmd := press(m, "q")
	if cmd == nil || m.View() != "" {
		t.Fatal("q did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not return tea.Quit")
	}
}
