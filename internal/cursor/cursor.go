// Package cursor provides the lazy, restartable sequence abstraction used
// throughout the engine instead of materialized slices.
//
// A Cursor is pulled with HasNext/Next and rewound with Reset. Combinators
// (Map, Filter, Concat, SelectMany) wrap their sources and never buffer more
// than the current element, so a pipeline built over a graph table observes
// the table as it is when iterated, not when the pipeline was built.
package cursor

// Cursor is a restartable forward iterator.
//
// Next must only be called after HasNext returned true. Reset rewinds the
// cursor (and every source it wraps) to the first element.
type Cursor[T any] interface {
	Reset()
	HasNext() bool
	Next() T
}

// sliceCursor iterates a fixed slice.
type sliceCursor[T any] struct {
	items []T
	pos   int
}

// FromSlice returns a cursor over items. The slice is not copied.
func FromSlice[T any](items []T) Cursor[T] {
	return &sliceCursor[T]{items: items}
}

// Empty returns a cursor with no elements.
func Empty[T any]() Cursor[T] {
	return &sliceCursor[T]{}
}

func (c *sliceCursor[T]) Reset()        { c.pos = 0 }
func (c *sliceCursor[T]) HasNext() bool { return c.pos < len(c.items) }

func (c *sliceCursor[T]) Next() T {
	v := c.items[c.pos]
	c.pos++
	return v
}

type mapCursor[S, T any] struct {
	src Cursor[S]
	fn  func(S) T
}

// Map returns a cursor yielding fn(x) for every x of src.
func Map[S, T any](src Cursor[S], fn func(S) T) Cursor[T] {
	return &mapCursor[S, T]{src: src, fn: fn}
}

func (c *mapCursor[S, T]) Reset()        { c.src.Reset() }
func (c *mapCursor[S, T]) HasNext() bool { return c.src.HasNext() }
func (c *mapCursor[S, T]) Next() T       { return c.fn(c.src.Next()) }

type filterCursor[T any] struct {
	src     Cursor[T]
	keep    func(T) bool
	current T
	ready   bool
}

// Filter returns a cursor yielding the elements of src for which keep is true.
func Filter[T any](src Cursor[T], keep func(T) bool) Cursor[T] {
	return &filterCursor[T]{src: src, keep: keep}
}

func (c *filterCursor[T]) Reset() {
	c.src.Reset()
	c.ready = false
}

func (c *filterCursor[T]) HasNext() bool {
	if c.ready {
		return true
	}
	for c.src.HasNext() {
		v := c.src.Next()
		if c.keep(v) {
			c.current = v
			c.ready = true
			return true
		}
	}
	return false
}

func (c *filterCursor[T]) Next() T {
	if !c.HasNext() {
		panic("cursor: Next called past the end")
	}
	c.ready = false
	return c.current
}

type concatCursor[T any] struct {
	parts []Cursor[T]
	idx   int
}

// Concat returns a cursor yielding every element of each part in order.
func Concat[T any](parts ...Cursor[T]) Cursor[T] {
	return &concatCursor[T]{parts: parts}
}

func (c *concatCursor[T]) Reset() {
	for _, p := range c.parts {
		p.Reset()
	}
	c.idx = 0
}

func (c *concatCursor[T]) HasNext() bool {
	for c.idx < len(c.parts) {
		if c.parts[c.idx].HasNext() {
			return true
		}
		c.idx++
	}
	return false
}

func (c *concatCursor[T]) Next() T {
	if !c.HasNext() {
		panic("cursor: Next called past the end")
	}
	return c.parts[c.idx].Next()
}

type selectManyCursor[S, T any] struct {
	src   Cursor[S]
	fn    func(S) Cursor[T]
	inner Cursor[T]
}

// SelectMany flattens fn(x) for every x of src.
func SelectMany[S, T any](src Cursor[S], fn func(S) Cursor[T]) Cursor[T] {
	return &selectManyCursor[S, T]{src: src, fn: fn}
}

func (c *selectManyCursor[S, T]) Reset() {
	c.src.Reset()
	c.inner = nil
}

func (c *selectManyCursor[S, T]) HasNext() bool {
	for {
		if c.inner != nil && c.inner.HasNext() {
			return true
		}
		if !c.src.HasNext() {
			return false
		}
		c.inner = c.fn(c.src.Next())
		if c.inner != nil {
			c.inner.Reset()
		}
	}
}

func (c *selectManyCursor[S, T]) Next() T {
	if !c.HasNext() {
		panic("cursor: Next called past the end")
	}
	return c.inner.Next()
}

// Collect resets c and drains it into a slice.
func Collect[T any](c Cursor[T]) []T {
	c.Reset()
	var out []T
	for c.HasNext() {
		out = append(out, c.Next())
	}
	return out
}

// Count resets c and returns the number of elements.
func Count[T any](c Cursor[T]) int {
	c.Reset()
	n := 0
	for c.HasNext() {
		c.Next()
		n++
	}
	return n
}

// First resets c and returns its first element, if any.
func First[T any](c Cursor[T]) (T, bool) {
	c.Reset()
	if c.HasNext() {
		return c.Next(), true
	}
	var zero T
	return zero, false
}
