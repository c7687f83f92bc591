package symbolic

import (
	"maps"
	"strings"

	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
)

type frame struct {
	vars map[string]Value
	// frozen frames are shared with a fork and must be copied before writing.
	frozen bool
}

func (f *frame) thaw() *frame {
	if !f.frozen {
		return f
	}
	return &frame{vars: maps.Clone(f.vars)}
}

// Table maps variable names to values through a stack of scopes. Names are
// case-insensitive. A Table is confined to one walk and is not safe for
// concurrent use.
type Table struct {
	frames []*frame
}

// NewTable returns a table with a single root frame.
func NewTable() *Table {
	return &Table{frames: []*frame{{vars: make(map[string]Value)}}}
}

// Fork returns an independent table with the same contents. Frames are shared
// until either side writes to them.
func (t *Table) Fork() *Table {
	for _, f := range t.frames {
		f.frozen = true
	}
	return &Table{frames: append([]*frame(nil), t.frames...)}
}

// PushFrame opens a nested scope.
func (t *Table) PushFrame() {
	t.frames = append(t.frames, &frame{vars: make(map[string]Value)})
}

// PopFrame closes the innermost scope. Popping the root frame is a defect.
func (t *Table) PopFrame() error {
	if len(t.frames) <= 1 {
		return fault.Defect("symbolic.pop", "symbol table has no frame to pop")
	}
	t.frames[len(t.frames)-1] = nil
	t.frames = t.frames[:len(t.frames)-1]
	return nil
}

// Depth returns the number of open frames, including the root.
func (t *Table) Depth() int { return len(t.frames) }

// Declare binds name in the innermost frame.
func (t *Table) Declare(name string, v Value) {
	t.write(len(t.frames)-1, key(name), v)
}

// Assign updates the innermost frame that declares name, or the root frame if
// none does.
func (t *Table) Assign(name string, v Value) {
	k := key(name)
	for i := len(t.frames) - 1; i >= 0; i-- {
		if _, ok := t.frames[i].vars[k]; ok {
			t.write(i, k, v)
			return
		}
	}
	t.write(0, k, v)
}

// Get returns the value of name. ok is false when the name is not in scope.
func (t *Table) Get(name string) (Value, bool) {
	k := key(name)
	for i := len(t.frames) - 1; i >= 0; i-- {
		if v, ok := t.frames[i].vars[k]; ok {
			return v, true
		}
	}
	return Value{}, false
}

// Resolve implements condition.EvalContext. Undeclared and indeterminate
// variables are unresolved; nested paths descend into map values.
func (t *Table) Resolve(path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	v, ok := t.Get(path[0])
	if !ok || !v.Known() {
		return nil, false
	}
	cur, _ := v.Get()
	for _, seg := range path[1:] {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		if cur, ok = lookupFold(m, seg); !ok {
			return nil, false
		}
	}
	return cur, true
}

func (t *Table) write(i int, k string, v Value) {
	f := t.frames[i].thaw()
	t.frames[i] = f
	f.vars[k] = v
}

func key(name string) string { return strings.ToLower(name) }

func lookupFold(m map[string]any, k string) (any, bool) {
	if v, ok := m[k]; ok {
		return v, true
	}
	for mk, v := range m {
		if strings.EqualFold(mk, k) {
			return v, true
		}
	}
	return nil, false
}
