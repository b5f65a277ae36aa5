// Package tuple implements interned immutable fixed-length sequences.
//
// Tuples are obtained only through an Interner (or the package-level Of).
// Two tuples are the same *Tuple exactly when their elements are
// element-wise identical: reference equality for reference-like elements,
// value equality for primitive-like ones. Pointer equality on tuples
// therefore implies element-wise identity, which makes them usable as
// cheap composite keys.
//
// The interner holds reference-like elements weakly and the tuples
// themselves weakly, so a tuple and its private elements can be reclaimed
// once nothing outside the interner reaches them.
package tuple

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/skeinworks/skein/internal/refs"
	"github.com/skeinworks/skein/pkg/weaktrie"
)

// Tuple is an immutable fixed-length sequence. Obtain tuples from an
// Interner; the zero value is the empty tuple of some other interner and
// must not be constructed directly.
type Tuple struct {
	elems []any
}

// Len returns the number of elements.
func (t *Tuple) Len() int { return len(t.elems) }

// At returns the element at index i.
func (t *Tuple) At(i int) any { return t.elems[i] }

// Values returns a copy of the elements.
func (t *Tuple) Values() []any { return slices.Clone(t.elems) }

// All iterates over the elements in order.
func (t *Tuple) All() iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, e := range t.elems {
			if !yield(e) {
				return
			}
		}
	}
}

// String renders the tuple for diagnostics.
func (t *Tuple) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, e := range t.elems {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v", e)
	}
	b.WriteByte(')')
	return b.String()
}

// cell is the trie payload: a slot for the interned tuple, held weakly
// by default so the interner alone does not keep tuples (and through
// them their elements) alive.
type cell struct {
	w      refs.WeakAny
	strong *Tuple
}

// Option configures an Interner.
type Option func(*Interner)

// Strong makes the interner retain elements and tuples strongly.
// Interned tuples are then stable for the interner's lifetime, which
// matters when tuples serve as long-lived cache keys that nothing else
// keeps alive.
func Strong() Option {
	return func(in *Interner) { in.strong = true }
}

// Interner builds and deduplicates tuples. It is owner-scoped and not
// safe for concurrent use.
type Interner struct {
	trie   *weaktrie.Trie[cell]
	strong bool
}

// NewInterner creates an empty interner.
func NewInterner(opts ...Option) *Interner {
	in := &Interner{}
	for _, opt := range opts {
		opt(in)
	}
	var topts []weaktrie.Option
	if in.strong {
		topts = append(topts, weaktrie.Strong())
	}
	in.trie = weaktrie.New[cell](nil, topts...)
	return in
}

// Of returns the interned tuple of elems.
func (in *Interner) Of(elems ...any) *Tuple {
	return in.OfSlice(elems)
}

// OfSlice is Of over an existing slice. The slice is not retained.
func (in *Interner) OfSlice(elems []any) *Tuple {
	c := in.trie.LookupSlice(elems)
	if c.strong != nil {
		return c.strong
	}
	if v, ok := c.w.Value(); ok {
		return v.(*Tuple)
	}
	t := &Tuple{elems: slices.Clone(elems)}
	if in.strong {
		c.strong = t
	} else {
		c.w = refs.MakeWeakAny(t)
	}
	return t
}

// std is the process-wide interner behind the package-level Of. Like
// every engine in this module it assumes a single in-flight mutator.
var std = NewInterner()

// Of returns the interned tuple of elems from the package-level interner.
func Of(elems ...any) *Tuple { return std.Of(elems...) }

// OfSlice is the package-level OfSlice.
func OfSlice(elems []any) *Tuple { return std.OfSlice(elems) }
