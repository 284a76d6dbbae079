package sequencer

import "sync"

const noteLengthStep = 0.25

// Editor is a keyboard cursor over a Grid.
type Editor struct {
	grid *Grid

	mu   sync.Mutex
	row  int
	step int
}

func NewEditor(g *Grid) *Editor {
	return &Editor{grid: g}
}

func (e *Editor) Cursor() (row, step int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.row, e.step
}

func (e *Editor) clampCursor() {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.grid.RowCount()
	if e.row >= n {
		e.row = max(n-1, 0)
	}
}

// HandleKey applies an editing key and reports whether it was one.
func (e *Editor) HandleKey(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := e.grid.RowCount()
	switch key {
	case "h", "left":
		if e.step > 0 {
			e.step--
		}
	case "l", "right":
		if e.step < NumSteps-1 {
			e.step++
		}
	case "k", "up":
		if e.row > 0 {
			e.row--
		}
	case "j", "down":
		if e.row < rows-1 {
			e.row++
		}
	case " ", "enter":
		e.grid.ToggleStep(e.row, e.step)
	case "[":
		e.grid.Edit(e.row, e.step, func(s *Step) { s.Subdivision-- })
	case "]":
		e.grid.Edit(e.row, e.step, func(s *Step) { s.Subdivision++ })
	case "{":
		e.grid.Edit(e.row, e.step, func(s *Step) { s.Subdivision -= 6 })
	case "}":
		e.grid.Edit(e.row, e.step, func(s *Step) { s.Subdivision += 6 })
	case "0":
		e.grid.Edit(e.row, e.step, func(s *Step) { s.Subdivision = 0 })
	case ",":
		e.grid.Edit(e.row, e.step, func(s *Step) { s.NoteLength -= noteLengthStep })
	case ".":
		e.grid.Edit(e.row, e.step, func(s *Step) { s.NoteLength += noteLengthStep })
	case "c":
		e.grid.ClearRow(e.row)
	case "C":
		e.grid.ClearSteps()
	default:
		return false
	}
	return true
}
