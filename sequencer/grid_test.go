package sequencer

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestGridDefaults(t *testing.T) {
	g := NewGrid(3)
	rows := g.Rows()
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	for _, r := range rows {
		if r.Active() {
			t.Fatalf("row %d starts active", r.ID)
		}
		for _, s := range r.Steps {
			if s != DefaultStep() {
				t.Fatalf("step %+v is not default", s)
			}
		}
	}
}

func TestGridResizeKeepsPrefixAndUniqueIDs(t *testing.T) {
	g := NewGrid(4)
	g.ToggleStep(1, 5)
	g.SetRowCount(2)
	g.SetRowCount(4)

	rows := g.Rows()
	if !rows[1].Steps[5].Active {
		t.Fatal("surviving row lost its edit")
	}
	seen := map[int]bool{}
	for _, r := range rows {
		if seen[r.ID] {
			t.Fatalf("duplicate row id %d", r.ID)
		}
		seen[r.ID] = true
	}
	if rows[2].Active() || rows[3].Active() {
		t.Fatal("regrown rows should be empty")
	}
}

func TestGridRangeErrors(t *testing.T) {
	g := NewGrid(2)
	cases := []struct{ row, step int }{{-1, 0}, {2, 0}, {0, -1}, {0, NumSteps}}
	for _, c := range cases {
		if err := g.ToggleStep(c.row, c.step); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("ToggleStep(%d,%d) = %v", c.row, c.step, err)
		}
	}
	if err := g.ClearRow(5); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ClearRow = %v", err)
	}
}

func TestGridEditClamps(t *testing.T) {
	g := NewGrid(1)
	g.SetSubdivision(0, 0, 99)
	g.SetNoteLength(0, 0, 0)
	s, _ := g.Step(0, 0)
	if s.Subdivision != MaxSubdivision || s.NoteLength != MinNoteLength {
		t.Fatalf("step not clamped: %+v", s)
	}
	g.SetNoteLength(0, 0, 10)
	s, _ = g.Step(0, 0)
	if s.NoteLength != MaxNoteLength {
		t.Fatalf("NoteLength = %v", s.NoteLength)
	}
}

func TestGridClear(t *testing.T) {
	g := NewGrid(2)
	g.SetStep(0, 0, Step{Active: true, Subdivision: 4, NoteLength: 2})
	g.ToggleStep(1, 1)
	g.ClearRow(0)
	s, _ := g.Step(0, 0)
	if s.Active || s.Subdivision != 4 || s.NoteLength != 2 {
		t.Fatalf("ClearRow changed timing or left step on: %+v", s)
	}
	g.ClearSteps()
	for _, r := range g.Rows() {
		if r.Active() {
			t.Fatal("ClearSteps left a step on")
		}
	}
}

func TestRowsIsACopy(t *testing.T) {
	g := NewGrid(1)
	rows := g.Rows()
	rows[0].Steps[0].Active = true
	if s, _ := g.Step(0, 0); s.Active {
		t.Fatal("mutating Rows() leaked into the grid")
	}
}

func TestEditorKeys(t *testing.T) {
	g := NewGrid(2)
	e := NewEditor(g)

	for _, k := range []string{"l", "l", "j", " "} {
		if !e.HandleKey(k) {
			t.Fatalf("key %q not handled", k)
		}
	}
	if r, s := e.Cursor(); r != 1 || s != 2 {
		t.Fatalf("cursor = %d,%d", r, s)
	}
	if st, _ := g.Step(1, 2); !st.Active {
		t.Fatal("space did not toggle")
	}

	e.HandleKey("}")
	e.HandleKey("]")
	e.HandleKey(".")
	st, _ := g.Step(1, 2)
	if st.Subdivision != 7 || st.NoteLength != 1.25 {
		t.Fatalf("edited step %+v", st)
	}
	e.HandleKey("0")
	if st, _ = g.Step(1, 2); st.Subdivision != 0 {
		t.Fatalf("0 did not reset subdivision: %d", st.Subdivision)
	}

	e.HandleKey("j") // already on last row
	if r, _ := e.Cursor(); r != 1 {
		t.Fatalf("cursor moved past last row: %d", r)
	}
	e.HandleKey("c")
	if g.Rows()[1].Active() {
		t.Fatal("c did not clear the row")
	}
	if e.HandleKey("?") {
		t.Fatal("unknown key reported handled")
	}
}

func TestEditorCursorFollowsShrink(t *testing.T) {
	g := NewGrid(4)
	e := NewEditor(g)
	for i := 0; i < 3; i++ {
		e.HandleKey("j")
	}
	g.SetRowCount(2)
	e.clampCursor()
	if r, _ := e.Cursor(); r != 1 {
		t.Fatalf("cursor row = %d, want 1", r)
	}
}

var (
	cursorKeys = []string{"h", "j", "k", "l", " ", "[", "]", "{", "}", ",", "."}
	editKeys   = []string{"[", "]", "{", "}", ",", ".", "0"}
)

func TestEditorProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("cursor stays inside the grid", prop.ForAll(
		func(rows int, keys []int) bool {
			g := NewGrid(rows)
			e := NewEditor(g)
			for _, k := range keys {
				e.HandleKey(cursorKeys[k])
			}
			r, s := e.Cursor()
			return r >= 0 && r < max(rows, 1) && s >= 0 && s < NumSteps
		},
		gen.IntRange(1, 16),
		gen.SliceOf(gen.IntRange(0, len(cursorKeys)-1)),
	))

	properties.Property("edited steps stay in range", prop.ForAll(
		func(keys []int) bool {
			g := NewGrid(1)
			e := NewEditor(g)
			for _, k := range keys {
				e.HandleKey(editKeys[k])
			}
			s, _ := g.Step(0, 0)
			return s.Subdivision >= MinSubdivision && s.Subdivision <= MaxSubdivision &&
				s.NoteLength >= MinNoteLength && s.NoteLength <= MaxNoteLength
		},
		gen.SliceOf(gen.IntRange(0, len(editKeys)-1)),
	))

	properties.TestingRun(t)
}
