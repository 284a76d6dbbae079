// Package widgets renders the sequencer's terminal views.
package widgets

import (
	"fmt"
	"strings"


	"fractal-sequence/pitch"
	"fractal-sequence/sequencer"
	"fractal-sequence/theme"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName spells a MIDI note with its octave, C4 = 60.
func NoteName(n int) string {
	if n < 0 || n > 127 {
		return "?"
	}
	return fmt.Sprintf("%s%d", noteNames[n%12], n/12-1)
}

// NoteLabel adds a cents suffix when the note is detuned.
func NoteLabel(n pitch.Note) string {
	if n.Cents == 0 {
		return NoteName(n.Number)
	}
	return fmt.Sprintf("%s%+d¢", NoteName(n.Number), int(n.Cents))
}

// GridView is everything RenderStepGrid draws.
type GridView struct {
	Rows       []sequencer.Row
	Notes      []pitch.Note
	Step       int
	Playing    bool
	CursorRow  int
	CursorStep int
}

func (v GridView) symbol(th *theme.Theme, row, step int, s sequencer.Step) rune {
	cursor := row == v.CursorRow && step == v.CursorStep
	playhead := v.Playing && step == v.Step
	switch {
	case cursor && playhead:
		return th.Glyph(theme.GlyphCursorPlayhead)
	case cursor && s.Active:
		return th.Glyph(theme.GlyphCursorActive)
	case cursor:
		return th.Glyph(theme.GlyphCursorEmpty)
	case playhead:
		return th.Glyph(theme.GlyphPlayhead)
	case s.Active && s.Subdivision != 0:
		return th.Glyph(theme.GlyphNudged)
	case s.Active:
		return th.Glyph(theme.GlyphActive)
	}
	return th.Glyph(theme.GlyphEmpty)
}

// RenderStepGrid draws one line per row: the row's live note, then its 16
// steps in groups of four.
func RenderStepGrid(th *theme.Theme, v GridView) string {
	dim := th.Style(theme.Dim)
	cursorStyle := th.Style(theme.Cursor).Bold(true)
	headStyle := th.Style(theme.Playhead)

	var lines []string
	for r, row := range v.Rows {
		var line strings.Builder
		label := string(th.Glyph(theme.GlyphSilent))
		labelStyle := dim
		if r < len(v.Notes) {
			label = NoteLabel(v.Notes[r])
			labelStyle = th.NoteStyle(v.Notes[r].Number)
		}
		line.WriteString(labelStyle.Render(fmt.Sprintf("%-8s", label)))

		for i, s := range row.Steps {
			if i > 0 && i%4 == 0 {
				line.WriteString(" ")
			}
			ch := string(v.symbol(th, r, i, s))
			switch {
			case r == v.CursorRow && i == v.CursorStep:
				line.WriteString(cursorStyle.Render(ch))
			case v.Playing && i == v.Step:
				line.WriteString(headStyle.Render(ch))
			case s.Active && r < len(v.Notes):
				line.WriteString(th.NoteStyle(v.Notes[r].Number).Render(ch))
			default:
				line.WriteString(dim.Render(ch))
			}
			line.WriteString(" ")
		}
		lines = append(lines, strings.TrimRight(line.String(), " "))
	}
	return strings.Join(lines, "\n")
}

// RenderStepDetail describes the step under the cursor.
func RenderStepDetail(v GridView) string {
	if v.CursorRow < 0 || v.CursorRow >= len(v.Rows) || v.CursorStep < 0 || v.CursorStep >= sequencer.NumSteps {
		return ""
	}
	s := v.Rows[v.CursorRow].Steps[v.CursorStep]
	state := "off"
	if s.Active {
		state = "on"
	}
	return fmt.Sprintf("row %d step %02d  %s  sub %+d/%d  len %.2f",
		v.CursorRow+1, v.CursorStep+1, state, s.Subdivision, sequencer.MaxSubdivision, s.NoteLength)
}

// RenderNotes lists the active notes in set order.
func RenderNotes(th *theme.Theme, notes []pitch.Note) string {
	if len(notes) == 0 {
		return th.Style(theme.Dim).Render("no active notes")
	}
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = th.NoteStyle(n.Number).Render(NoteLabel(n))
	}
	return strings.Join(parts, " ")
}
