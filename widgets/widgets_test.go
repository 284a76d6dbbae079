package widgets

import (
	"strings"
	"testing"

	"fractal-sequence/pitch"
	"fractal-sequence/sequencer"
	"fractal-sequence/theme"
)

func TestNoteName(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{60, "C4"},
		{69, "A4"},
		{61, "C#4"},
		{0, "C-1"},
		{127, "G9"},
		{128, "?"},
	}
	for _, tt := range tests {
		if got := NoteName(tt.n); got != tt.want {
			t.Errorf("NoteName(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
	if got := NoteLabel(pitch.Note{Number: 60, Cents: -12}); got != "C4-12¢" {
		t.Errorf("NoteLabel = %q", got)
	}
}

func gridView() GridView {
	g := sequencer.NewGrid(2)
	g.ToggleStep(0, 0)
	g.SetStep(1, 5, sequencer.Step{Active: true, Subdivision: 3, NoteLength: 1})
	return GridView{
		Rows:       g.Rows(),
		Notes:      []pitch.Note{{Number: 60}},
		Step:       2,
		Playing:    true,
		CursorRow:  1,
		CursorStep: 7,
	}
}

func TestRenderStepGridSymbols(t *testing.T) {
	th := theme.New(nil)
	out := RenderStepGrid(th, gridView())
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	for _, want := range []string{"C4", "●", "▶"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("row 0 missing %q: %s", want, lines[0])
		}
	}
	for _, want := range []string{"-", "◆", "○"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row 1 missing %q: %s", want, lines[1])
		}
	}
}

func TestSymbolPrecedence(t *testing.T) {
	th := theme.New(nil)
	v := GridView{Playing: true, Step: 3, CursorRow: 0, CursorStep: 3}
	on := sequencer.Step{Active: true}
	if got := v.symbol(th, 0, 3, on); got != th.Glyph(theme.GlyphCursorPlayhead) {
		t.Errorf("cursor on playhead = %c", got)
	}
	if got := v.symbol(th, 1, 3, on); got != th.Glyph(theme.GlyphPlayhead) {
		t.Errorf("playhead = %c", got)
	}
	v.Playing = false
	if got := v.symbol(th, 0, 3, on); got != th.Glyph(theme.GlyphCursorActive) {
		t.Errorf("cursor on active = %c", got)
	}
}

func TestRenderStepDetail(t *testing.T) {
	v := gridView()
	v.CursorStep = 5
	if got := RenderStepDetail(v); got != "row 2 step 06  on  sub +3/23  len 1.00" {
		t.Errorf("detail = %q", got)
	}
	v.CursorRow = 9
	if RenderStepDetail(v) != "" {
		t.Error("out of range cursor rendered")
	}
}

func TestRenderNotesAndHelp(t *testing.T) {
	th := theme.New(nil)
	if !strings.Contains(RenderNotes(th, nil), "no active notes") {
		t.Error("empty notes")
	}
	out := RenderNotes(th, []pitch.Note{{Number: 69}, {Number: 72, Cents: 7}})
	if !strings.Contains(out, "A4") || !strings.Contains(out, "C5+7¢") {
		t.Errorf("notes = %q", out)
	}
	line := RenderKeyLine([]KeyBinding{{"p", "play"}, {"q", "quit"}})
	if line != "p:play  q:quit" {
		t.Errorf("key line = %q", line)
	}
	help := RenderKeyHelp([]KeySection{{Title: "Transport", Keys: []KeyBinding{{"p", "play"}}}})
	if !strings.HasPrefix(help, "Transport\n  p") {
		t.Errorf("help = %q", help)
	}
}
