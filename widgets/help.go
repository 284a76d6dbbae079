package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type KeySection struct {
	Title string
	Keys  []KeyBinding
}

type KeyBinding struct {
	Key  string
	Desc string
}

func (s KeySection) column() string {
	lines := make([]string, 0, len(s.Keys)+1)
	if s.Title != "" {
		lines = append(lines, s.Title)
	}
	for _, k := range s.Keys {
		lines = append(lines, fmt.Sprintf("  %-8s %s", k.Key, k.Desc))
	}
	return strings.Join(lines, "\n")
}

// RenderKeyHelp lays the sections out side by side.
func RenderKeyHelp(sections []KeySection) string {
	gap := lipgloss.NewStyle().MarginRight(3)
	cols := make([]string, len(sections))
	for i, sec := range sections {
		cols[i] = sec.column()
		if i < len(sections)-1 {
			cols[i] = gap.Render(cols[i])
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

// RenderKeyLine is the one-line form: "p:play  +/-:tempo".
func RenderKeyLine(keys []KeyBinding) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Key + ":" + k.Desc
	}
	return strings.Join(parts, "  ")
}
