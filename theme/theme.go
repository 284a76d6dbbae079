package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Role is a position on the palette, 0 dark to 1 bright.
type Role float64

const (
	Background Role = 0.0
	Dim        Role = 0.2
	Text       Role = 0.4
	Title      Role = 0.5
	Cursor     Role = 0.6
	Playing    Role = 0.7
	Alert      Role = 0.8
	Playhead   Role = 1.0
)

var roles = []Role{Background, Dim, Text, Title, Cursor, Playing, Alert, Playhead}

// Glyph names one way of drawing a grid cell.
type Glyph int

const (
	GlyphEmpty Glyph = iota
	GlyphActive
	GlyphNudged // active with a subdivision offset
	GlyphPlayhead
	GlyphCursorEmpty
	GlyphCursorActive
	GlyphCursorPlayhead
	GlyphSilent // row without a live note
	glyphCount
)

var unicodeGlyphs = [glyphCount]rune{'·', '●', '◆', '▶', '○', '◉', '▷', '-'}

type Theme struct {
	Palette *Palette
	glyphs  [glyphCount]rune
	colors  map[Role]lipgloss.Color
}

// New builds a theme over palette, Plasma when nil.
func New(palette *Palette) *Theme {
	if palette == nil {
		palette = Plasma()
	}
	t := &Theme{
		Palette: palette,
		glyphs:  unicodeGlyphs,
		colors:  make(map[Role]lipgloss.Color, len(roles)),
	}
	for _, r := range roles {
		t.colors[r] = hex(palette.Lookup(float64(r)))
	}
	return t
}

func (t *Theme) Glyph(g Glyph) rune {
	if g < 0 || g >= glyphCount {
		return '?'
	}
	return t.glyphs[g]
}

// Color returns the palette color at r.
func (t *Theme) Color(r Role) lipgloss.Color {
	if c, ok := t.colors[r]; ok {
		return c
	}
	return hex(t.Palette.Lookup(float64(r)))
}

func (t *Theme) Style(r Role) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Color(r))
}

// NoteColor places a MIDI note on the palette, low notes dark.
func (t *Theme) NoteColor(note int) lipgloss.Color {
	return t.Color(Role(0.25 + 0.75*float64(min(max(note, 0), 127))/127))
}

func (t *Theme) NoteStyle(note int) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.NoteColor(note))
}

func hex(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
