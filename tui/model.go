package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fractal-sequence/midi"
	"fractal-sequence/pitch"
	"fractal-sequence/sequencer"
	"fractal-sequence/store"
	"fractal-sequence/theme"
	"fractal-sequence/widgets"
)

const (
	tempoStep = 5.0
	swingStep = 0.05
	rateStep  = 10.0
)

type Model struct {
	Manager  *sequencer.Manager
	Ports    *midi.PortWatcher // nil when playing through the built-in synth
	Theme    *theme.Theme
	ctx      context.Context
	output   string
	status   string
	showHelp bool
	quitting bool
}

type UpdateMsg struct{}

type PortEventMsg midi.PortEvent

// NewModel builds the UI. output names the sound destination for the header.
func NewModel(ctx context.Context, manager *sequencer.Manager, ports *midi.PortWatcher, th *theme.Theme, output string) Model {
	return Model{
		Manager: manager,
		Ports:   ports,
		Theme:   th,
		ctx:     ctx,
		output:  output,
	}
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForPorts(ports *midi.PortWatcher) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ports.Events()
		if !ok {
			return nil
		}
		return PortEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Manager)}
	if m.Ports != nil {
		cmds = append(cmds, ListenForPorts(m.Ports))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case PortEventMsg:
		event := midi.PortEvent(msg)
		m.status = fmt.Sprintf("port %s: %s", event.Type, event.Name)
		return m, ListenForPorts(m.Ports)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	mgr := m.Manager
	params := mgr.Parameters().Get()
	mapping := params.Mapping

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		mgr.Stop()
		return m, tea.Quit

	case "p":
		if err := mgr.TogglePlay(m.ctx); err != nil {
			m.status = err.Error()
		}

	case "+", "=":
		_, _, tempo := mgr.GetState()
		mgr.SetTempo(tempo + tempoStep)

	case "-", "_":
		_, _, tempo := mgr.GetState()
		mgr.SetTempo(tempo - tempoStep)

	case "s":
		mgr.SetSwing(params.Swing + swingStep)
	case "S":
		mgr.SetSwing(params.Swing - swingStep)

	case "n":
		mgr.SetNumberOfNotes(params.NumberOfNotes + 1)
	case "N":
		mgr.SetNumberOfNotes(params.NumberOfNotes - 1)

	case "r":
		mgr.SetSamplingRate(params.SamplingRate + rateStep)
	case "R":
		mgr.SetSamplingRate(params.SamplingRate - rateStep)

	case "d", "D":
		depth := params.Depth + 1
		if key == "D" {
			depth = params.Depth - 1
		}
		if err := mgr.SetDepth(depth); err != nil {
			m.status = err.Error()
		}

	case "m":
		mapping.ScaleType = pitch.NextScale(mapping.ScaleType)
		mgr.SetMapping(mapping)
	case "x":
		mapping.CoordinateSystem = mapping.CoordinateSystem.Next()
		mgr.SetMapping(mapping)
	case "t":
		mapping.Distribution = mapping.Distribution.Next()
		mgr.SetMapping(mapping)
	case "z":
		mapping.EnableMicrotonal = !mapping.EnableMicrotonal
		mgr.SetMapping(mapping)
	case "g":
		mapping.EnableDepthModulation = !mapping.EnableDepthModulation
		mgr.SetMapping(mapping)

	case "?":
		m.showHelp = !m.showHelp

	default:
		mgr.HandleKey(key)
	}
	return m, nil
}

var keyLine = []widgets.KeyBinding{
	{Key: "p", Desc: "play"},
	{Key: "+/-", Desc: "tempo"},
	{Key: "hjkl", Desc: "nav"},
	{Key: "space", Desc: "toggle"},
	{Key: "?", Desc: "help"},
	{Key: "q", Desc: "quit"},
}

var helpSections = []widgets.KeySection{
	{Title: "Transport", Keys: []widgets.KeyBinding{
		{Key: "p", Desc: "play / stop"},
		{Key: "+ -", Desc: "tempo ±5 bpm"},
		{Key: "s S", Desc: "swing ±0.05"},
	}},
	{Title: "Grid", Keys: []widgets.KeyBinding{
		{Key: "h j k l", Desc: "move cursor"},
		{Key: "space", Desc: "toggle step"},
		{Key: "[ ] { }", Desc: "nudge ±1 / ±6"},
		{Key: "0", Desc: "reset nudge"},
		{Key: ", .", Desc: "note length ±1/4"},
		{Key: "c C", Desc: "clear row / all"},
	}},
	{Title: "Geometry", Keys: []widgets.KeyBinding{
		{Key: "n N", Desc: "notes ±1"},
		{Key: "r R", Desc: "sampling rate ±10"},
		{Key: "d D", Desc: "sponge depth ±1"},
		{Key: "m", Desc: "next scale"},
		{Key: "x", Desc: "next coordinate system"},
		{Key: "t", Desc: "next distribution"},
		{Key: "z", Desc: "microtonal on/off"},
		{Key: "g", Desc: "depth modulation on/off"},
	}},
}

func describeParams(p store.Parameters) string {
	mp := p.Mapping
	flags := ""
	if mp.EnableMicrotonal {
		flags += " micro"
	}
	if mp.EnableDepthModulation {
		flags += " depthmod"
	}
	return fmt.Sprintf("depth %d  notes %d  rate %.0f  swing %.2f  %s/%s/%s%s",
		p.Depth, p.NumberOfNotes, p.SamplingRate, p.Swing,
		mp.ScaleType, mp.CoordinateSystem, mp.Distribution, flags)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	snap := m.Manager.Snapshot()

	// Styles
	headerStyle := m.Theme.Style(theme.Title)
	dimStyle := m.Theme.Style(theme.Dim)
	fgStyle := m.Theme.Style(theme.Text)
	warnStyle := m.Theme.Style(theme.Alert)

	playState := "STOP"
	if snap.Playing {
		playState = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("fractal-sequence  %s  %3.0fbpm  step:%02d  %s",
		playState, snap.BPM, snap.Step+1, m.output))

	grid := widgets.GridView{
		Rows:       snap.Rows,
		Notes:      snap.Active,
		Step:       snap.Step,
		Playing:    snap.Playing,
		CursorRow:  snap.CursorRow,
		CursorStep: snap.CursorStep,
	}

	stats := fmt.Sprintf("cubes %d  jitter %.1fms  failures %d",
		snap.Cubes, snap.Stats.Jitter*1000, snap.Failures)

	keys := dimStyle.Render(widgets.RenderKeyLine(keyLine))
	if m.showHelp {
		keys = widgets.RenderKeyHelp(helpSections)
	}

	blocks := []string{
		"",
		header,
		fgStyle.Render(describeParams(snap.Params)),
		"",
		widgets.RenderStepGrid(m.Theme, grid),
		dimStyle.Render(widgets.RenderStepDetail(grid)),
		"",
		widgets.RenderNotes(m.Theme, snap.Active),
		dimStyle.Render(stats),
		"",
		keys,
	}
	if m.status != "" {
		blocks = append(blocks, warnStyle.Render(m.status))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}
