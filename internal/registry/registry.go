// Package registry is a capacity-bounded arena for large path-expansion
// objects.
//
// Each worker owns one Registry. Entries are keyed by a monotonically assigned
// ID; other structures keep only the ID and resolve it through the registry,
// which also enforces the per-type admission limit computed by Capacity.
package registry

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/gyaneshwarpardhi/pathflow/internal/fault"
)

// ID identifies a registered instance.
type ID int64

// TypeKey names a registry table.
type TypeKey string

// Entry is anything that can live in the registry.
type Entry interface {
	RegistryID() ID
}

// Fingerprinter is implemented by entries that define value equality.
// Pointer entries without it are compared by identity; other entries are
// not checked for equality.
type Fingerprinter interface {
	Fingerprint() string
}

// Sentinel errors, wrapped in fault errors of the matching kind.
var (
	ErrDuplicateID       = errors.New("id already registered")
	ErrDuplicateInstance = errors.New("equal instance already registered")
	ErrCapacityReached   = errors.New("registry capacity reached")
	ErrUnknownType       = errors.New("unknown registry type")
)

type table struct {
	limit     int64
	entries   map[ID]Entry
	prints    map[string]ID
	instances map[Entry]ID
}

func newTable(limit int64) *table {
	return &table{
		limit:     limit,
		entries:   make(map[ID]Entry),
		prints:    make(map[string]ID),
		instances: make(map[Entry]ID),
	}
}

// Registry holds one table per type. It is not safe for concurrent use.
type Registry struct {
	tables   map[TypeKey]*table
	nextID   ID
	rejected int
}

// New sizes a table for every spec against budget. It fails with a
// misconfiguration fault if any type cannot meet its minimum count.
func New(budget Budget, specs ...TypeSpec) (*Registry, error) {
	r := &Registry{tables: make(map[TypeKey]*table, len(specs))}
	for _, s := range specs {
		if _, dup := r.tables[s.Name]; dup {
			return nil, misconfigured("registry.new", "type %s configured twice", s.Name)
		}
		limit, err := Capacity(s, budget)
		if err != nil {
			return nil, err
		}
		r.tables[s.Name] = newTable(limit)
	}
	return r, nil
}

// NextID returns a fresh id. Ids are never reused, even after Clear.
func (r *Registry) NextID() ID {
	r.nextID++
	return r.nextID
}

// Register stores e under its RegistryID.
// A duplicate id or an equal instance under any id is a defect; a full table
// is resource exhaustion.
func (r *Registry) Register(typ TypeKey, e Entry) error {
	const op = "registry.register"
	t, err := r.table(op, typ)
	if err != nil {
		return err
	}
	id := e.RegistryID()
	if _, exists := t.entries[id]; exists {
		return &fault.Error{Kind: fault.KindDefect, Op: op, Err: fmt.Errorf("%s %d: %w", typ, id, ErrDuplicateID)}
	}
	fp, hasPrint := e.(Fingerprinter)
	var fingerprint string
	if hasPrint {
		fingerprint = fp.Fingerprint()
		if other, exists := t.prints[fingerprint]; exists {
			return &fault.Error{Kind: fault.KindDefect, Op: op, Err: fmt.Errorf("%s %d equals %d: %w", typ, id, other, ErrDuplicateInstance)}
		}
	} else if tracksIdentity(e) {
		if other, exists := t.instances[e]; exists {
			return &fault.Error{Kind: fault.KindDefect, Op: op, Err: fmt.Errorf("%s %d is %d: %w", typ, id, other, ErrDuplicateInstance)}
		}
	}
	if int64(len(t.entries)) >= t.limit {
		r.rejected++
		return fault.Exhausted(op, fmt.Errorf("%s limit %d: %w", typ, t.limit, ErrCapacityReached))
	}

	t.entries[id] = e
	if hasPrint {
		t.prints[fingerprint] = id
	} else if tracksIdentity(e) {
		t.instances[e] = id
	}
	return nil
}

// Lookup returns the entry registered under id.
func (r *Registry) Lookup(typ TypeKey, id ID) (Entry, bool) {
	t, ok := r.tables[typ]
	if !ok {
		return nil, false
	}
	e, ok := t.entries[id]
	return e, ok
}

// LookupAs is Lookup with a typed result. A stored entry of another type is a
// defect.
func LookupAs[T Entry](r *Registry, typ TypeKey, id ID) (T, error) {
	var zero T
	e, ok := r.Lookup(typ, id)
	if !ok {
		return zero, fault.Defect("registry.lookup", "%s %d is not registered", typ, id)
	}
	v, ok := e.(T)
	if !ok {
		return zero, fault.Defect("registry.lookup", "%s %d holds %T, want %s", typ, id, e, reflect.TypeFor[T]())
	}
	return v, nil
}

// Deregister removes id. It reports whether anything was removed.
func (r *Registry) Deregister(typ TypeKey, id ID) bool {
	t, ok := r.tables[typ]
	if !ok {
		return false
	}
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	delete(t.entries, id)
	if fp, ok := e.(Fingerprinter); ok {
		delete(t.prints, fp.Fingerprint())
	} else if tracksIdentity(e) {
		delete(t.instances, e)
	}
	return true
}

// Clear empties every table. Limits and the id sequence are kept.
func (r *Registry) Clear() {
	for _, t := range r.tables {
		clear(t.entries)
		clear(t.prints)
		clear(t.instances)
	}
}

// Len returns how many entries of typ are registered.
func (r *Registry) Len(typ TypeKey) int {
	if t, ok := r.tables[typ]; ok {
		return len(t.entries)
	}
	return 0
}

// Limit returns the admission limit of typ.
func (r *Registry) Limit(typ TypeKey) int64 {
	if t, ok := r.tables[typ]; ok {
		return t.limit
	}
	return 0
}

// Remaining returns how many more entries of typ fit.
func (r *Registry) Remaining(typ TypeKey) int64 {
	t, ok := r.tables[typ]
	if !ok {
		return 0
	}
	return max(t.limit-int64(len(t.entries)), 0)
}

// Rejected returns how many registrations failed for capacity so far.
func (r *Registry) Rejected() int {
	return r.rejected
}

func (r *Registry) table(op string, typ TypeKey) (*table, error) {
	t, ok := r.tables[typ]
	if !ok {
		return nil, &fault.Error{Kind: fault.KindDefect, Op: op, Err: fmt.Errorf("%s: %w", typ, ErrUnknownType)}
	}
	return t, nil
}

// tracksIdentity reports whether e is deduplicated by identity. Only pointers
// qualify: a comparable struct can still panic as a map key when an
// interface field holds a slice or map.
func tracksIdentity(e Entry) bool {
	return reflect.TypeOf(e).Kind() == reflect.Pointer
}

func misconfigured(op, format string, args ...any) error {
	return fault.Misconfigured(op, format, args...)
}
