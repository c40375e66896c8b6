// Package table implements the versioned associative array backing the graph
// store: O(1) add, get and remove over a dense slot slice, with tombstoned
// soft delete and threshold-triggered compaction.
//
// Removing a key nulls its slot and leaves a tombstone in the index. The
// tombstone keeps the key recognisable as "was here" (IsTombstoned) until the
// next Shrink, which rewrites the slot slice and forgets every tombstone.
// Compact runs Shrink once the number of dead slots exceeds ShrinkThreshold.
package table

import (
	"errors"
	"fmt"
)

// ShrinkThreshold is the number of dead slots tolerated before compaction.
const ShrinkThreshold = 1000

// ErrDuplicateKey is returned by Add when the key is already live.
var ErrDuplicateKey = errors.New("duplicate key")

const tombstone = -1

// Table is an insertion-ordered map with tombstones.
//
// Table also implements cursor.Cursor[V] over its live values. The embedded
// cursor position is shared; use Values for an independent iterator.
//
// Table is not safe for concurrent use.
type Table[K comparable, V any] struct {
	index  map[K]int
	keys   []K
	values []V
	live   []bool

	dead       int // nulled slots awaiting Shrink
	tombstones int // index entries marked deleted
	shrinks    int

	pos int

	// OnShrink, when set, is called after every compaction with the number
	// of slots reclaimed.
	OnShrink func(reclaimed int)
}

// New creates an empty table.
func New[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{index: make(map[K]int)}
}

// Add inserts key. A tombstoned key is revived into a fresh slot.
func (t *Table[K, V]) Add(key K, value V) error {
	if slot, ok := t.index[key]; ok {
		if slot != tombstone {
			return fmt.Errorf("%w: %v", ErrDuplicateKey, key)
		}
		t.tombstones--
	}
	t.index[key] = len(t.values)
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
	t.live = append(t.live, true)
	return nil
}

// Set inserts or replaces the value stored for key.
func (t *Table[K, V]) Set(key K, value V) {
	if slot, ok := t.index[key]; ok && slot != tombstone {
		t.values[slot] = value
		return
	}
	_ = t.Add(key, value)
}

// Get returns the live value for key.
func (t *Table[K, V]) Get(key K) (V, bool) {
	slot, ok := t.index[key]
	if !ok || slot == tombstone {
		var zero V
		return zero, false
	}
	return t.values[slot], true
}

// Has reports whether key is live.
func (t *Table[K, V]) Has(key K) bool {
	slot, ok := t.index[key]
	return ok && slot != tombstone
}

// IsTombstoned reports whether key was removed since the last Shrink.
func (t *Table[K, V]) IsTombstoned(key K) bool {
	slot, ok := t.index[key]
	return ok && slot == tombstone
}

// Remove soft-deletes key and reports whether it was live. Remove never
// compacts; callers invoke Compact once a batch of removals is complete so
// that cursors over the table stay valid during the batch.
func (t *Table[K, V]) Remove(key K) bool {
	slot, ok := t.index[key]
	if !ok || slot == tombstone {
		return false
	}
	var zero V
	t.values[slot] = zero
	t.live[slot] = false
	t.index[key] = tombstone
	t.dead++
	t.tombstones++
	return true
}

// Compact runs Shrink when the dead slot count exceeds ShrinkThreshold and
// reports whether it did.
func (t *Table[K, V]) Compact() bool {
	if t.dead <= ShrinkThreshold {
		return false
	}
	t.Shrink()
	return true
}

// Len returns the number of live keys.
func (t *Table[K, V]) Len() int {
	return len(t.values) - t.dead
}

// Tombstones returns the number of keys currently marked deleted.
func (t *Table[K, V]) Tombstones() int {
	return t.tombstones
}

// DeadSlots returns the number of nulled slots not yet reclaimed.
func (t *Table[K, V]) DeadSlots() int {
	return t.dead
}

// Shrinks returns how many compactions have run.
func (t *Table[K, V]) Shrinks() int {
	return t.shrinks
}

// Shrink rewrites the slot slice without dead slots and drops tombstones.
// Every live key keeps its value and relative order.
func (t *Table[K, V]) Shrink() {
	reclaimed := t.dead
	index := make(map[K]int, t.Len())
	keys := make([]K, 0, t.Len())
	values := make([]V, 0, t.Len())
	live := make([]bool, 0, t.Len())
	for i, ok := range t.live {
		if !ok {
			continue
		}
		index[t.keys[i]] = len(values)
		keys = append(keys, t.keys[i])
		values = append(values, t.values[i])
		live = append(live, true)
	}
	t.index, t.keys, t.values, t.live = index, keys, values, live
	t.dead, t.tombstones = 0, 0
	t.pos = 0
	t.shrinks++
	if t.OnShrink != nil {
		t.OnShrink(reclaimed)
	}
}

// Keys returns the live keys in insertion order.
func (t *Table[K, V]) Keys() []K {
	out := make([]K, 0, t.Len())
	for i, ok := range t.live {
		if ok {
			out = append(out, t.keys[i])
		}
	}
	return out
}

// Clone returns a deep copy of the table structure. Values are copied by
// assignment.
func (t *Table[K, V]) Clone() *Table[K, V] {
	c := &Table[K, V]{
		index:      make(map[K]int, len(t.index)),
		keys:       append([]K(nil), t.keys...),
		values:     append([]V(nil), t.values...),
		live:       append([]bool(nil), t.live...),
		dead:       t.dead,
		tombstones: t.tombstones,
		OnShrink:   t.OnShrink,
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	return c
}

// Reset rewinds the embedded cursor.
func (t *Table[K, V]) Reset() { t.pos = 0 }

// HasNext reports whether the embedded cursor has another live value.
func (t *Table[K, V]) HasNext() bool {
	for t.pos < len(t.live) && !t.live[t.pos] {
		t.pos++
	}
	return t.pos < len(t.live)
}

// Next returns the next live value of the embedded cursor.
func (t *Table[K, V]) Next() V {
	if !t.HasNext() {
		panic("table: Next called past the end")
	}
	v := t.values[t.pos]
	t.pos++
	return v
}

// Values returns an independent cursor over the live values.
func (t *Table[K, V]) Values() *ValueCursor[K, V] {
	return &ValueCursor[K, V]{t: t}
}

// ValueCursor iterates a table's live values without touching the table's
// embedded cursor position.
type ValueCursor[K comparable, V any] struct {
	t   *Table[K, V]
	pos int
}

func (c *ValueCursor[K, V]) Reset() { c.pos = 0 }

func (c *ValueCursor[K, V]) HasNext() bool {
	for c.pos < len(c.t.live) && !c.t.live[c.pos] {
		c.pos++
	}
	return c.pos < len(c.t.live)
}

func (c *ValueCursor[K, V]) Next() V {
	if !c.HasNext() {
		panic("table: Next called past the end")
	}
	v := c.t.values[c.pos]
	c.pos++
	return v
}
