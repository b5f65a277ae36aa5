package supertext

import (
	"github.com/skeinworks/skein/internal/refs"
	"github.com/skeinworks/skein/pkg/weaktrie"
)

// Supertext is an immutable node in a DAG of contextual values: a frozen
// list of parents plus a local map of slot writes. Values are read
// lazily, folding the non-missing parent values through the slot's
// merge, and cached; since the node is immutable the cache is safe.
//
// New nodes come from Branch (a single-parent child carrying writes) and
// Merge (an interned combination of parents). Empty is the root.
type Supertext struct {
	parents []*Supertext
	locals  map[slot]any
	cache   map[slot]any
}

// Empty is the root Supertext: no parents, no writes.
var Empty = &Supertext{}

// missing is the cached marker for "no branch along this node wrote the
// slot"; it is distinct from every user value.
var missing = new(struct{})

// Branch creates a child of st carrying the given writes. Branching is
// not interned: two identical Branch calls produce distinct nodes.
func (st *Supertext) Branch(bindings ...Binding) *Supertext {
	child := &Supertext{
		parents: []*Supertext{st},
		locals:  make(map[slot]any, len(bindings)),
	}
	for _, b := range bindings {
		child.locals[b.slot] = b.value
	}
	return child
}

// mergeTrie interns merge nodes by their deduplicated parent sequence,
// holding both the parent keys and the produced nodes weakly.
var mergeTrie = weaktrie.New[mergeCell](nil)

type mergeCell struct {
	w refs.WeakAny
}

// Merge combines parents into one node. Parents are deduplicated
// preferring the rightmost occurrence, then interned: the same parent
// sequence always yields the same node, so Merge(a, b) == Merge(a, b)
// and Merge(a, a, b) == Merge(a, b). Merging nothing (or only nils)
// yields Empty; merging one parent yields that parent.
func Merge(parents ...*Supertext) *Supertext {
	dedup := dedupeParents(parents)
	switch len(dedup) {
	case 0:
		return Empty
	case 1:
		return dedup[0]
	}
	key := make([]any, len(dedup))
	for i, p := range dedup {
		key[i] = p
	}
	cell := mergeTrie.LookupSlice(key)
	if v, ok := cell.w.Value(); ok {
		return v.(*Supertext)
	}
	st := &Supertext{parents: dedup}
	cell.w = refs.MakeWeakAny(st)
	return st
}

// dedupeParents keeps the rightmost occurrence of each parent,
// preserving the order of the survivors and dropping nils.
func dedupeParents(parents []*Supertext) []*Supertext {
	seen := make(map[*Supertext]bool, len(parents))
	out := make([]*Supertext, 0, len(parents))
	for i := len(parents) - 1; i >= 0; i-- {
		p := parents[i]
		if p == nil || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	// Reverse back into left-to-right order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// read resolves a slot on st: local write, cached answer, or a fold over
// the parents' non-missing values, deduplicated rightmost. The result,
// including a missing one, is cached.
func (st *Supertext) read(s slot) (any, bool) {
	if v, ok := st.locals[s]; ok {
		return v, true
	}
	if v, ok := st.cache[s]; ok {
		if v == any(missing) {
			return nil, false
		}
		return v, true
	}

	var vals []any
	for _, p := range st.parents {
		if v, ok := p.read(s); ok {
			vals = append(vals, v)
		}
	}
	vals = dedupeValues(vals)

	if st.cache == nil {
		st.cache = make(map[slot]any)
	}
	if len(vals) == 0 {
		st.cache[s] = missing
		return nil, false
	}
	out := vals[0]
	if len(vals) > 1 {
		out = s.foldValues(vals)
	}
	st.cache[s] = out
	return out, true
}

// dedupeValues drops earlier duplicates of the same value, so a write
// reaching a merge through two sides of a diamond folds once. Values
// without any usable key cannot be deduplicated and are kept.
func dedupeValues(vals []any) []any {
	if len(vals) < 2 {
		return vals
	}
	out := vals[:0]
	for i, v := range vals {
		if refs.Keyable(v) && laterDuplicate(vals, i, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func laterDuplicate(vals []any, i int, v any) bool {
	for _, w := range vals[i+1:] {
		if refs.Keyable(w) && refs.SameKey(v, w) {
			return true
		}
	}
	return false
}
