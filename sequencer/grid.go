package sequencer

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

const NumSteps = 16

// Step ranges
const (
	MinSubdivision = -23
	MaxSubdivision = 23
	MinNoteLength  = 0.25
	MaxNoteLength  = 4.0
)

var ErrOutOfRange = errors.New("sequencer: row or step out of range")

// Step is one cell of a row.
type Step struct {
	Active      bool    `json:"active"`
	Subdivision int     `json:"subdivision"` // -23..23, fraction of half a step
	NoteLength  float64 `json:"noteLength"`  // in steps
}

func DefaultStep() Step {
	return Step{NoteLength: 1}
}

// Clamp forces the step's fields into range.
func (s Step) Clamp() Step {
	s.Subdivision = min(max(s.Subdivision, MinSubdivision), MaxSubdivision)
	if math.IsNaN(s.NoteLength) {
		s.NoteLength = 1
	}
	s.NoteLength = math.Min(math.Max(s.NoteLength, MinNoteLength), MaxNoteLength)
	return s
}

// Row is one voice lane. Row i plays the i-th active note.
type Row struct {
	ID    int            `json:"id"`
	Steps [NumSteps]Step `json:"steps"`
}

func newRow(id int) Row {
	r := Row{ID: id}
	for i := range r.Steps {
		r.Steps[i] = DefaultStep()
	}
	return r
}

// Active reports whether any step in the row is on.
func (r Row) Active() bool {
	for _, s := range r.Steps {
		if s.Active {
			return true
		}
	}
	return false
}

// Grid holds the rows. All methods are safe for concurrent use; Rows
// returns a copy.
type Grid struct {
	mu     sync.RWMutex
	rows   []Row
	nextID int
}

func NewGrid(rows int) *Grid {
	g := &Grid{}
	g.SetRowCount(rows)
	return g
}

// SetRowCount grows with default rows or truncates from the tail.
func (g *Grid) SetRowCount(n int) {
	n = max(n, 0)
	g.mu.Lock()
	defer g.mu.Unlock()
	if n < len(g.rows) {
		g.rows = g.rows[:n:n]
		return
	}
	for len(g.rows) < n {
		g.rows = append(g.rows, newRow(g.nextID))
		g.nextID++
	}
}

func (g *Grid) RowCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rows)
}

func (g *Grid) Rows() []Row {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Row, len(g.rows))
	copy(out, g.rows)
	return out
}

// column returns the step at index for every row, in row order.
func (g *Grid) column(step int) []Step {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Step, len(g.rows))
	for i := range g.rows {
		out[i] = g.rows[i].Steps[step]
	}
	return out
}

func (g *Grid) check(row, step int) error {
	if row < 0 || row >= len(g.rows) || step < 0 || step >= NumSteps {
		return fmt.Errorf("%w: row %d step %d", ErrOutOfRange, row, step)
	}
	return nil
}

func (g *Grid) Step(row, step int) (Step, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err := g.check(row, step); err != nil {
		return Step{}, err
	}
	return g.rows[row].Steps[step], nil
}

// Edit applies fn to one step and clamps the result.
func (g *Grid) Edit(row, step int, fn func(*Step)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(row, step); err != nil {
		return err
	}
	s := g.rows[row].Steps[step]
	fn(&s)
	g.rows[row].Steps[step] = s.Clamp()
	return nil
}

func (g *Grid) SetStep(row, step int, s Step) error {
	return g.Edit(row, step, func(p *Step) { *p = s })
}

func (g *Grid) ToggleStep(row, step int) error {
	return g.Edit(row, step, func(s *Step) { s.Active = !s.Active })
}

func (g *Grid) SetSubdivision(row, step, sub int) error {
	return g.Edit(row, step, func(s *Step) { s.Subdivision = sub })
}

func (g *Grid) SetNoteLength(row, step int, length float64) error {
	return g.Edit(row, step, func(s *Step) { s.NoteLength = length })
}

// ClearRow deactivates every step of a row, keeping timing settings.
func (g *Grid) ClearRow(row int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.check(row, 0); err != nil {
		return err
	}
	for i := range g.rows[row].Steps {
		g.rows[row].Steps[i].Active = false
	}
	return nil
}

// ClearSteps deactivates every step in every row.
func (g *Grid) ClearSteps() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for r := range g.rows {
		for i := range g.rows[r].Steps {
			g.rows[r].Steps[i].Active = false
		}
	}
}
