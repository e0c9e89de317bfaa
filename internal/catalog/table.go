package catalog

import (
	"errors"

	"github.com/redocdc/redocdc/internal/redo"
)

var (
	ErrDuplicateRow = errors.New("catalog: duplicate rowid")
	ErrMissingRow   = errors.New("catalog: missing row")
)

// Handle is a stable index into a table arena.
type Handle int32

// Table stores rows of one catalog table. Rows live in an arena addressed
// by Handle; freed slots are reused by later inserts. Rows are looked up by
// RowID, natural keys are indexed by the Catalog.
type Table[R Row] struct {
	Name    string
	rows    []R
	live    []bool
	free    []Handle
	byRowID map[redo.RowID]Handle
	touched bool
}

func NewTable[R Row](name string) *Table[R] {
	return &Table[R]{
		Name:    name,
		byRowID: make(map[redo.RowID]Handle),
	}
}

// Insert stores r under its RowID. An existing row with the same RowID is
// never replaced.
func (t *Table[R]) Insert(r R) (Handle, error) {
	rid := r.Meta().RowID
	if _, ok := t.byRowID[rid]; ok {
		return -1, ErrDuplicateRow
	}

	var h Handle
	if n := len(t.free); n > 0 {
		h = t.free[n-1]
		t.free = t.free[:n-1]
		t.rows[h] = r
		t.live[h] = true
	} else {
		h = Handle(len(t.rows))
		t.rows = append(t.rows, r)
		t.live = append(t.live, true)
	}
	t.byRowID[rid] = h
	return h, nil
}

func (t *Table[R]) Get(rid redo.RowID) (R, bool) {
	h, ok := t.byRowID[rid]
	if !ok {
		var zero R
		return zero, false
	}
	return t.rows[h], true
}

func (t *Table[R]) At(h Handle) (R, bool) {
	if h < 0 || int(h) >= len(t.rows) || !t.live[h] {
		var zero R
		return zero, false
	}
	return t.rows[h], true
}

// Delete removes the row and returns it.
func (t *Table[R]) Delete(rid redo.RowID) (R, bool) {
	var zero R
	h, ok := t.byRowID[rid]
	if !ok {
		return zero, false
	}
	r := t.rows[h]
	t.rows[h] = zero
	t.live[h] = false
	t.free = append(t.free, h)
	delete(t.byRowID, rid)
	return r, true
}

func (t *Table[R]) Len() int {
	return len(t.byRowID)
}

// Each visits live rows in handle order until fn returns false.
func (t *Table[R]) Each(fn func(R) bool) {
	for h, r := range t.rows {
		if !t.live[h] {
			continue
		}
		if !fn(r) {
			return
		}
	}
}

func (t *Table[R]) Rows() []R {
	out := make([]R, 0, t.Len())
	t.Each(func(r R) bool {
		out = append(out, r)
		return true
	})
	return out
}

func (t *Table[R]) Touched() bool { return t.touched }

func (t *Table[R]) Touch() { t.touched = true }

func (t *Table[R]) clearTouched() {
	t.touched = false
	t.Each(func(r R) bool {
		r.Meta().Touched = false
		return true
	})
}

func (t *Table[R]) markSaved() {
	t.Each(func(r R) bool {
		r.Meta().Saved = true
		return true
	})
}
