package keyset

import (
	"fmt"
	"iter"
	"reflect"
	"sync"

	"github.com/skeinworks/skein/internal/refs"
	skerrors "github.com/skeinworks/skein/pkg/errors"
)

// Set is the conventional set shape accepted by the *Set operations. Any
// map type with empty-struct values works; Set is merely the common
// spelling.
type Set = map[any]struct{}

// Option configures a Map.
type Option func(*config)

type config struct {
	weakness bool
}

// Strong forces all keys into strong holding; entries then survive until
// removed explicitly.
func Strong() Option {
	return func(c *config) { c.weakness = false }
}

// Map indexes data by unordered sets of keys. Lookup is invariant under
// permutation and duplication of the keys; reference-like keys are
// matched by identity and held weakly where possible, so the garbage
// collection of any object key purges the entries containing it.
//
// The zero value is not usable - use New. A Map is owner-scoped and not
// safe for concurrent use.
type Map[D any] struct {
	makeData func(keys iter.Seq[any]) D
	weakness bool

	// Reverse indices: key -> entry size -> entries. Intersecting the
	// size-n buckets of a candidate set's keys leaves at most one entry.
	prims map[any]sizeIndex[D]
	refs  map[refs.ID]*refBucket[D]
	empty *entry[D]
	count int

	mu     sync.Mutex
	graves []refs.ID
}

type sizeIndex[D any] map[int]map[*entry[D]]struct{}

type refBucket[D any] struct {
	handle refs.Handle
	weak   bool
	strong any
	sizes  sizeIndex[D]
}

// entry is one recorded canonical key set. Reference keys are stored as
// identities only, so the entry does not keep its keys alive.
type entry[D any] struct {
	pset map[any]struct{}
	rset map[refs.ID]struct{}
	size int
	dead bool
	data D
}

// New creates a Map whose payloads are produced by makeData; nil yields
// zero-valued payloads. makeData receives the deduplicated keys; the
// iteration order is unspecified, like the set itself.
func New[D any](makeData func(keys iter.Seq[any]) D, opts ...Option) *Map[D] {
	cfg := config{weakness: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if makeData == nil {
		makeData = func(iter.Seq[any]) D {
			var d D
			return d
		}
	}
	return &Map[D]{
		makeData: makeData,
		weakness: cfg.weakness,
		prims:    make(map[any]sizeIndex[D]),
		refs:     make(map[refs.ID]*refBucket[D]),
	}
}

// Len returns the number of recorded entries.
func (m *Map[D]) Len() int {
	m.drainGraves()
	return m.count
}

// Lookup returns the payload recorded under the set of keys, creating it
// on first sight. Duplicates and ordering of keys are irrelevant. Lookup
// panics with an error wrapping refs.ErrUnkeyable on keys that can serve
// neither as reference nor as primitive keys.
func (m *Map[D]) Lookup(keys ...any) *D {
	m.drainGraves()
	ck := m.canonicalize(keys)
	if e := m.find(ck); e != nil {
		return &e.data
	}
	return &m.record(ck).data
}

// LookupSet is Lookup over a materialized set: any map with empty-struct
// values. Other values fail with a NOT_A_SET error.
func (m *Map[D]) LookupSet(set any) (*D, error) {
	keys, err := setKeys(set)
	if err != nil {
		return nil, err
	}
	return m.Lookup(keys...), nil
}

// Peek returns the payload recorded under the keys without creating one.
func (m *Map[D]) Peek(keys ...any) (*D, bool) {
	m.drainGraves()
	e := m.find(m.canonicalize(keys))
	if e == nil {
		return nil, false
	}
	return &e.data, true
}

// PeekSet is Peek over a materialized set.
func (m *Map[D]) PeekSet(set any) (*D, bool, error) {
	keys, err := setKeys(set)
	if err != nil {
		return nil, false, err
	}
	d, ok := m.Peek(keys...)
	return d, ok, nil
}

// Remove drops the entry recorded under the keys and reports whether one
// existed.
func (m *Map[D]) Remove(keys ...any) bool {
	m.drainGraves()
	e := m.find(m.canonicalize(keys))
	if e == nil {
		return false
	}
	m.unlink(e)
	return true
}

// RemoveSet is Remove over a materialized set.
func (m *Map[D]) RemoveSet(set any) (bool, error) {
	keys, err := setKeys(set)
	if err != nil {
		return false, err
	}
	return m.Remove(keys...), nil
}

// setKeys extracts the keys of any map-with-empty-struct-values value.
func setKeys(set any) ([]any, error) {
	rv := reflect.ValueOf(set)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Elem() != reflect.TypeOf(struct{}{}) {
		return nil, skerrors.New(skerrors.ErrCodeNotASet, "want a map[...]struct{} set, got %T", set)
	}
	keys := make([]any, 0, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		keys = append(keys, it.Key().Interface())
	}
	return keys, nil
}

// keySet is a deduplicated lookup candidate.
type keySet struct {
	prims   map[any]struct{}
	refVals map[refs.ID]any
}

func (ck keySet) size() int { return len(ck.prims) + len(ck.refVals) }

func (ck keySet) all() iter.Seq[any] {
	return func(yield func(any) bool) {
		for p := range ck.prims {
			if !yield(p) {
				return
			}
		}
		for _, v := range ck.refVals {
			if !yield(v) {
				return
			}
		}
	}
}

func (m *Map[D]) canonicalize(keys []any) keySet {
	ck := keySet{prims: make(map[any]struct{}), refVals: make(map[refs.ID]any)}
	for _, k := range keys {
		if id, ok := refs.Identity(k); ok {
			ck.refVals[id] = k
			continue
		}
		if !refs.Keyable(k) {
			panic(fmt.Errorf("keyset: key %T: %w", k, refs.ErrUnkeyable))
		}
		ck.prims[k] = struct{}{}
	}
	return ck
}

// find intersects the size-indexed buckets of the candidate's keys,
// starting from the smallest bucket. Interning guarantees at most one
// entry can survive: two distinct entries of the same size sharing all
// keys would have had to be recorded twice.
func (m *Map[D]) find(ck keySet) *entry[D] {
	n := ck.size()
	if n == 0 {
		return m.empty
	}

	var smallest map[*entry[D]]struct{}
	consider := func(set map[*entry[D]]struct{}) bool {
		if len(set) == 0 {
			return false
		}
		if smallest == nil || len(set) < len(smallest) {
			smallest = set
		}
		return true
	}
	for p := range ck.prims {
		if !consider(m.prims[p][n]) {
			return nil
		}
	}
	for id := range ck.refVals {
		b := m.liveBucket(id)
		if b == nil || !consider(b.sizes[n]) {
			return nil
		}
	}

	for e := range smallest {
		if m.matches(e, ck) {
			return e
		}
	}
	return nil
}

func (m *Map[D]) matches(e *entry[D], ck keySet) bool {
	if e.dead || e.size != ck.size() {
		return false
	}
	for p := range ck.prims {
		if _, ok := e.pset[p]; !ok {
			return false
		}
	}
	for id := range ck.refVals {
		if _, ok := e.rset[id]; !ok {
			return false
		}
	}
	return true
}

// record allocates and indexes an entry for a set not seen before.
func (m *Map[D]) record(ck keySet) *entry[D] {
	e := &entry[D]{
		pset: ck.prims,
		rset: make(map[refs.ID]struct{}, len(ck.refVals)),
		size: ck.size(),
	}
	e.data = m.makeData(ck.all())
	m.count++

	if e.size == 0 {
		m.empty = e
		return e
	}

	for p := range ck.prims {
		idx := m.prims[p]
		if idx == nil {
			idx = make(sizeIndex[D])
			m.prims[p] = idx
		}
		addEntry(idx, e)
	}
	for id, v := range ck.refVals {
		e.rset[id] = struct{}{}
		b := m.liveBucket(id)
		if b == nil {
			b = &refBucket[D]{sizes: make(sizeIndex[D])}
			if m.weakness {
				if h, ok := refs.MakeHandle(v); ok {
					b.handle = h
					b.weak = true
					id := id
					refs.Watch(v, func() { m.bury(id) })
				} else {
					b.strong = v
				}
			} else {
				b.strong = v
			}
			m.refs[id] = b
		}
		addEntry(b.sizes, e)
	}
	return e
}

func addEntry[D any](idx sizeIndex[D], e *entry[D]) {
	set := idx[e.size]
	if set == nil {
		set = make(map[*entry[D]]struct{})
		idx[e.size] = set
	}
	set[e] = struct{}{}
}

// liveBucket returns the bucket for id, discarding a stale one whose key
// was reclaimed and whose address may have been reused.
func (m *Map[D]) liveBucket(id refs.ID) *refBucket[D] {
	b := m.refs[id]
	if b == nil {
		return nil
	}
	if b.weak && !b.handle.Alive() {
		m.purgeBucket(id, b)
		return nil
	}
	return b
}

// unlink removes an entry from every index it appears in.
func (m *Map[D]) unlink(e *entry[D]) {
	if e.dead {
		return
	}
	e.dead = true
	m.count--
	if e == m.empty {
		m.empty = nil
		return
	}
	for p := range e.pset {
		if idx := m.prims[p]; idx != nil {
			dropEntry(idx, e)
			if len(idx) == 0 {
				delete(m.prims, p)
			}
		}
	}
	for id := range e.rset {
		if b := m.refs[id]; b != nil {
			dropEntry(b.sizes, e)
			if len(b.sizes) == 0 {
				delete(m.refs, id)
			}
		}
	}
}

func dropEntry[D any](idx sizeIndex[D], e *entry[D]) {
	if set := idx[e.size]; set != nil {
		delete(set, e)
		if len(set) == 0 {
			delete(idx, e.size)
		}
	}
}

// purgeBucket removes a reclaimed key's bucket and every entry that
// contained the key.
func (m *Map[D]) purgeBucket(id refs.ID, b *refBucket[D]) {
	delete(m.refs, id)
	for _, set := range b.sizes {
		for e := range set {
			m.unlink(e)
		}
	}
}

func (m *Map[D]) bury(id refs.ID) {
	m.mu.Lock()
	m.graves = append(m.graves, id)
	m.mu.Unlock()
}

func (m *Map[D]) drainGraves() {
	m.mu.Lock()
	graves := m.graves
	m.graves = nil
	m.mu.Unlock()
	for _, id := range graves {
		if b := m.refs[id]; b != nil && b.weak && !b.handle.Alive() {
			m.purgeBucket(id, b)
		}
	}
}
