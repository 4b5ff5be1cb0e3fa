// Package table implements the open-addressing hash table the VM uses
// for both the globals table (String -> Value) and the string intern
// set (String -> Value, used as a set; see FindString).
//
// Open addressing is hand-rolled rather than a builtin map because the
// collector needs to walk live entries and treat intern-table keys as
// weak references during mark/sweep -- something a builtin map can't
// expose.
package table

import "loxvm/pkg/value"

const loadFactorCeiling = 0.75

type entry struct {
	key   *value.ObjString // nil means empty, unless Tombstone
	value value.Value
	// tombstone marks a deleted slot: key == nil, value == Bool(true).
}

func (e entry) isEmpty() bool     { return e.key == nil && !e.isTombstone() }
func (e entry) isTombstone() bool { return e.key == nil && e.value.Kind == value.KindBool && e.value.Bool }

// Table is a linear-probed open-addressing map keyed by ObjString
// reference identity. Rehashing doubles capacity (minimum 8) whenever
// (live entries + tombstones)/capacity would exceed loadFactorCeiling;
// rehash does not copy tombstones.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Count returns the number of live (non-tombstone) entries.
func (t *Table) Count() int {
	live := 0
	for _, e := range t.entries {
		if !e.isEmpty() && !e.isTombstone() {
			live++
		}
	}
	return live
}

// Get looks up key, reporting whether it was present.
func (t *Table) Get(key *value.ObjString) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Value{}, false
	}
	e := t.find(key)
	if e.key == nil {
		return value.Value{}, false
	}
	return e.value, true
}

// Set inserts or overwrites key -> v, growing the table first if the
// load factor ceiling would be exceeded. Reports whether this was a new
// key.
func (t *Table) Set(key *value.ObjString, v value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*loadFactorCeiling {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}
	idx := t.findIndex(key)
	e := &t.entries[idx]
	isNew := e.key == nil
	if isNew && !e.isTombstone() {
		t.count++
	}
	e.key = key
	e.value = v
	return isNew
}

// Delete removes key, leaving a tombstone in its slot so later probes
// that skipped over it on insert still find their target.
func (t *Table) Delete(key *value.ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := t.findIndex(key)
	e := &t.entries[idx]
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = value.Bool(true)
	return true
}

// FindString probes the table for an interned string with the given
// bytes/length/hash, comparing length, hash, and content before
// returning a hit. This is the core of interning: the vm package's
// Heap.InternString calls this first and only allocates on a miss.
func (t *Table) FindString(chars string, hash uint32) *value.ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if !e.isTombstone() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

// RemoveWhiteStrings deletes every entry whose key is unmarked. The GC
// calls this on the VM's intern set between the mark and sweep phases so
// a string reachable only from the intern table does not get
// resurrected by sweep -- the table holds its keys weakly.
func (t *Table) RemoveWhiteStrings() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.Mark {
			e.key = nil
			e.value = value.Bool(true)
		}
	}
}

// Keys returns every live key, used by the GC to mark the globals
// table's keys (the values are marked separately via Values).
func (t *Table) Keys() []*value.ObjString {
	keys := make([]*value.ObjString, 0, t.count)
	for _, e := range t.entries {
		if e.key != nil {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Values returns every live value, for GC root marking.
func (t *Table) Values() []value.Value {
	vals := make([]value.Value, 0, t.count)
	for _, e := range t.entries {
		if e.key != nil {
			vals = append(vals, e.value)
		}
	}
	return vals
}

func (t *Table) find(key *value.ObjString) entry {
	return t.entries[t.findIndex(key)]
}

// findIndex returns the slot key belongs in: either its existing slot,
// or the first tombstone/empty slot encountered while probing (so
// repeated inserts reuse tombstones instead of growing forever).
func (t *Table) findIndex(key *value.ObjString) int {
	mask := uint32(len(t.entries) - 1)
	idx := key.Hash & mask
	var tombstone *int
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if e.isTombstone() {
				if tombstone == nil {
					i := int(idx)
					tombstone = &i
				}
			} else {
				if tombstone != nil {
					return *tombstone
				}
				return int(idx)
			}
		} else if e.key == key {
			return int(idx)
		}
		idx = (idx + 1) & mask
	}
}

func growCapacity(cap int) int {
	if cap < 8 {
		return 8
	}
	return cap * 2
}

// adjustCapacity rehashes every live entry into a fresh table of the
// given capacity (a power of two), dropping tombstones in the process.
func (t *Table) adjustCapacity(capacity int) {
	fresh := make([]entry, capacity)
	for i := range fresh {
		fresh[i] = entry{}
	}
	old := t.entries
	t.entries = fresh
	t.count = 0
	for _, e := range old {
		if e.key == nil {
			continue
		}
		idx := t.findIndex(e.key)
		t.entries[idx] = e
		t.count++
	}
}
