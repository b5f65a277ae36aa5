package weaktrie

import (
	"fmt"
	"slices"
	"sync"

	"github.com/skeinworks/skein/internal/refs"
	"github.com/skeinworks/skein/pkg/observability"
)

// Option configures a Trie.
type Option func(*config)

type config struct {
	weakness bool
}

// Strong forces all keys into strong holding. Semantics are identical to
// the default; only memory behavior differs: subtries below unreachable
// reference keys are never reclaimed.
func Strong() Option {
	return func(c *config) { c.weakness = false }
}

// Trie is a prefix lookup structure keyed by sequences of arbitrary
// values. Reference-like keys (pointers, maps, slices, chans, funcs) are
// matched by identity and, where the platform permits, held weakly;
// primitive-like keys are matched by value.
//
// Payloads are created lazily: the first lookup of a path calls the
// trie's makeData function with a copy of the full path. Subsequent
// lookups of the same path return the same payload pointer.
//
// An unshared suffix of a path is stored as a single flattened tail
// record instead of a chain of single-child nodes; the tail is promoted
// into real nodes the moment a divergent path crosses it.
//
// The zero value is not usable - use New. A Trie is owner-scoped and not
// safe for concurrent use; the only cross-goroutine activity is the
// internal reclamation queue, which is drained by the owner on its next
// operation.
type Trie[D any] struct {
	makeData func(path []any) D
	weakness bool
	root     *node[D]

	// graves are subtrie removals queued by weak-key cleanups, which run
	// on runtime-owned goroutines. They are applied at the start of every
	// operation so that trie structure is only ever mutated by the owner.
	mu     sync.Mutex
	graves []grave[D]
}

type node[D any] struct {
	prims map[any]*edge[D]
	refs  map[refs.ID]*edge[D]
	data  *D
}

// edge points at either a child node or a flattened tail, never both.
// The handle/strong fields are used only when the edge's key is
// reference-like.
type edge[D any] struct {
	node *node[D]
	tail *tail[D]

	handle refs.Handle
	weak   bool
	strong any
}

type tail[D any] struct {
	rest []any
	data *D
}

type grave[D any] struct {
	owner *node[D]
	id    refs.ID
}

// New creates a Trie whose payloads are produced by makeData. A nil
// makeData yields zero-valued payloads. Paths passed to makeData are
// copies owned by the callee.
func New[D any](makeData func(path []any) D, opts ...Option) *Trie[D] {
	cfg := config{weakness: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if makeData == nil {
		makeData = func([]any) D {
			var d D
			return d
		}
	}
	return &Trie[D]{
		makeData: makeData,
		weakness: cfg.weakness,
		root:     &node[D]{},
	}
}

// Lookup walks the trie along path, creating nodes, tails, and the
// payload as needed, and returns the payload at the end of the path. The
// path may be empty. Lookup panics with an error wrapping
// refs.ErrUnkeyable if a path element can serve as neither a reference
// key nor a primitive key.
func (t *Trie[D]) Lookup(path ...any) *D {
	return t.LookupSlice(path)
}

// LookupSlice is Lookup over an existing slice. The slice is not
// retained; the trie stores its own copy where needed.
func (t *Trie[D]) LookupSlice(path []any) *D {
	t.drainGraves()
	n := t.root
	for i := 0; ; {
		if i == len(path) {
			if n.data == nil {
				d := t.makeData(slices.Clone(path))
				n.data = &d
			}
			return n.data
		}
		e := t.edge(n, path[i])
		if e == nil {
			// First creation of a new suffix: flatten it into a tail.
			d := t.makeData(slices.Clone(path))
			e = &edge[D]{tail: &tail[D]{rest: slices.Clone(path[i+1:]), data: &d}}
			t.attach(n, path[i], e)
			return e.tail.data
		}
		if e.tail != nil {
			if tailMatches(e.tail.rest, path[i+1:]) {
				return e.tail.data
			}
			t.promote(e)
		}
		n = e.node
		i++
	}
}

// Peek returns the payload at path without creating anything.
func (t *Trie[D]) Peek(path ...any) (*D, bool) {
	return t.PeekSlice(path)
}

// PeekSlice is Peek over an existing slice.
func (t *Trie[D]) PeekSlice(path []any) (*D, bool) {
	t.drainGraves()
	n := t.root
	for i := 0; ; {
		if i == len(path) {
			if n.data == nil {
				return nil, false
			}
			return n.data, true
		}
		e := t.edge(n, path[i])
		if e == nil {
			return nil, false
		}
		if e.tail != nil {
			if tailMatches(e.tail.rest, path[i+1:]) {
				return e.tail.data, true
			}
			return nil, false
		}
		n = e.node
		i++
	}
}

// edge resolves the outgoing edge of n for key k, or nil. Stale reference
// entries - a reclaimed key whose address was reused before the grave was
// drained - are dropped rather than returned.
func (t *Trie[D]) edge(n *node[D], k any) *edge[D] {
	if id, ok := refs.Identity(k); ok {
		e := n.refs[id]
		if e == nil {
			return nil
		}
		if e.weak && !e.handle.Alive() {
			delete(n.refs, id)
			return nil
		}
		return e
	}
	if !refs.Keyable(k) {
		panic(fmt.Errorf("weaktrie: key %T: %w", k, refs.ErrUnkeyable))
	}
	return n.prims[k]
}

// attach inserts e as the outgoing edge of n for key k, installing weak
// bookkeeping for reference keys.
func (t *Trie[D]) attach(n *node[D], k any, e *edge[D]) {
	if id, ok := refs.Identity(k); ok {
		if t.weakness {
			if h, ok := refs.MakeHandle(k); ok {
				e.handle = h
				e.weak = true
				refs.Watch(k, func() { t.bury(n, id) })
			} else {
				e.strong = k
			}
		} else {
			e.strong = k
		}
		if n.refs == nil {
			n.refs = make(map[refs.ID]*edge[D])
		}
		n.refs[id] = e
		return
	}
	if !refs.Keyable(k) {
		panic(fmt.Errorf("weaktrie: key %T: %w", k, refs.ErrUnkeyable))
	}
	if n.prims == nil {
		n.prims = make(map[any]*edge[D])
	}
	n.prims[k] = e
}

// promote converts the tail behind e into a real node covering one key,
// re-hanging the remainder of the tail below it. Repeated promotion by
// the lookup loop unrolls a tail exactly as far as a divergent path
// crosses it.
func (t *Trie[D]) promote(e *edge[D]) {
	tl := e.tail
	e.tail = nil
	e.node = &node[D]{}
	if len(tl.rest) == 0 {
		e.node.data = tl.data
	} else {
		t.attach(e.node, tl.rest[0], &edge[D]{tail: &tail[D]{rest: tl.rest[1:], data: tl.data}})
	}
	observability.Trie().OnTailPromote()
}

func tailMatches(rest, suffix []any) bool {
	if len(rest) != len(suffix) {
		return false
	}
	for i := range rest {
		if !refs.SameKey(rest[i], suffix[i]) {
			return false
		}
	}
	return true
}

func (t *Trie[D]) bury(owner *node[D], id refs.ID) {
	t.mu.Lock()
	t.graves = append(t.graves, grave[D]{owner: owner, id: id})
	t.mu.Unlock()
}

func (t *Trie[D]) drainGraves() {
	t.mu.Lock()
	graves := t.graves
	t.graves = nil
	t.mu.Unlock()
	for _, g := range graves {
		e := g.owner.refs[g.id]
		// A live entry under the same identity means the address was
		// reused and re-keyed after the reclamation; keep it.
		if e != nil && e.weak && !e.handle.Alive() {
			delete(g.owner.refs, g.id)
			observability.Trie().OnWeakReclaim()
		}
	}
}
