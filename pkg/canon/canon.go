package canon

import (
	"reflect"
	"sync"
	"time"

	"github.com/skeinworks/skein/internal/refs"
	skerrors "github.com/skeinworks/skein/pkg/errors"
	"github.com/skeinworks/skein/pkg/observability"
	"github.com/skeinworks/skein/pkg/weaktrie"
)

// Canon is a deep-structural canonicalizer: it turns object graphs,
// including cycles and shared substructure, into frozen canonical
// representatives such that deeply equal inputs collapse to the same
// reference.
//
// Callers must not reuse input objects after admission: the Canon may
// observe them further, and for opaque branches the returned canonical
// form can be the input reference itself.
//
// A Canon is owner-scoped. Its pool and known set need no external
// synchronization, and none is provided; see the package documentation
// for the single-mutator model.
type Canon struct {
	handlers *Handlers
	profile  Profile

	// pool interns traces: the reference-free fingerprint of a component
	// member maps to its canonical representative, held weakly so
	// canonical values can die with their last outside reference.
	pool *weaktrie.Trie[poolCell]

	// known is the set of admitted references. Entries hold the value
	// weakly (identity plus liveness handle) unless weakness is off.
	known map[refs.ID]knownEntry

	partitioning bool

	mu     sync.Mutex
	graves []refs.ID
}

type poolCell struct {
	w refs.WeakAny
}

type knownEntry struct {
	handle refs.Handle
	weak   bool
	strong any
}

// Option configures a Canon.
type Option func(*Canon)

// WithProfile applies a tuning profile.
func WithProfile(p Profile) Option {
	return func(c *Canon) { c.profile = p }
}

// New creates a Canon with the built-in handlers enabled.
func New(opts ...Option) *Canon {
	c := &Canon{
		handlers: NewHandlers(),
		profile:  DefaultProfile(),
		known:    make(map[refs.ID]knownEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	var topts []weaktrie.Option
	if !c.profile.Weakness {
		topts = append(topts, weaktrie.Strong())
	}
	c.pool = weaktrie.New[poolCell](nil, topts...)
	return c
}

// Handlers exposes the mutable handler registry. Registration is
// one-way: once a type has been consulted it is frozen.
func (c *Canon) Handlers() *Handlers { return c.handlers }

// IsCanonical reports whether v is a member of the known set. Primitive
// values are never members; they pass through Admit unchanged instead.
func (c *Canon) IsCanonical(v any) bool {
	c.drainGraves()
	return c.isCanonical(v)
}

func (c *Canon) isCanonical(v any) bool {
	id, ok := refs.Identity(v)
	if !ok {
		return false
	}
	e, ok := c.known[id]
	if !ok {
		return false
	}
	if e.weak && !e.handle.Alive() {
		delete(c.known, id)
		return false
	}
	return true
}

// Admit inserts v into the Canon and returns its canonical
// representative. Admission is idempotent, the result is deeply equal
// to the input, and structurally equal inputs admit to the same
// reference. Primitives and opaque values pass through unchanged.
func (c *Canon) Admit(v any) (any, error) {
	start := time.Now()
	observability.Canon().OnAdmitStart()
	out, comps, err := c.admit(v)
	observability.Canon().OnAdmitComplete(comps, time.Since(start), err)
	return out, err
}

// MustAdmit is Admit for inputs known to be well-formed; it panics on
// error. Handy in tests and initialization paths.
func (c *Canon) MustAdmit(v any) any {
	out, err := c.Admit(v)
	if err != nil {
		panic(err)
	}
	return out
}

func (c *Canon) admit(v any) (any, int, error) {
	c.drainGraves()
	if v == nil {
		return nil, 0, nil
	}
	if c.isCanonical(v) {
		return v, 0, nil
	}
	if _, ok := c.handlers.lookup(reflect.TypeOf(v)); !ok {
		return v, 0, nil
	}
	if c.partitioning {
		return nil, 0, skerrors.New(skerrors.ErrCodeCanonPartition,
			"re-entrant Admit of %T while a partition is in progress", v)
	}
	c.partitioning = true
	defer func() { c.partitioning = false }()

	b := newBuilder(c)
	root, created, err := b.nodeFor(v)
	if err != nil {
		return nil, 0, err
	}
	if !created || root == nil {
		return nil, 0, skerrors.New(skerrors.ErrCodeCanonRoot, "root %T was already partitioned", v)
	}
	if err := b.visit(root); err != nil {
		return nil, len(b.comps), err
	}

	// Components arrive leaves first, so every external child is
	// canonical by the time its parent's component resolves.
	for _, comp := range b.comps {
		if err := c.resolve(comp, b); err != nil {
			return nil, len(b.comps), err
		}
	}

	if !root.hasKnown {
		return nil, len(b.comps), skerrors.New(skerrors.ErrCodeCanonUnresolved,
			"could not resolve known value for root %T", v)
	}
	return root.known, len(b.comps), nil
}

// resolve scans, interns, materializes, and repairs one component.
func (c *Canon) resolve(comp *component, b *builder) error {
	cyclic := comp.cyclic()
	if cyclic {
		for _, m := range comp.snapshot {
			if !m.hooks.threeStep() {
				return skerrors.New(skerrors.ErrCodeCanonImmutable,
					"%s is reconstruct-only but participates in a cycle", m.proto)
			}
		}
	}

	// Scan is repeated across the members until the assignment of
	// canonical nodes converges; symmetric members converge onto the
	// same pool entry because their traces are identical.
	var repairs []*info
	rounds := c.profile.MaxRelabelRounds
	if rounds < 1 || !cyclic {
		// Acyclic members have assignment-independent traces; one scan
		// settles them.
		rounds = 1
	}
	for round := 0; round < rounds; round++ {
		changed := false
		for _, m := range comp.snapshot {
			trace := c.scan(comp, m, b)
			cell := c.pool.LookupSlice(trace)
			target, ok := cell.w.Value()
			if ok {
				observability.Canon().OnPoolHit()
			} else {
				observability.Canon().OnPoolMiss()
				fresh, err := c.materialize(m, b)
				if err != nil {
					return err
				}
				cell.w = refs.MakeWeakAny(fresh)
				target = fresh
				if m.hooks.threeStep() {
					repairs = append(repairs, m)
				} else {
					m.repaired = true
					if m.hooks.Freeze != nil {
						m.hooks.Freeze(fresh)
					}
				}
			}
			if !m.hasKnown || !sameValue(m.known, target) {
				m.known = target
				m.hasKnown = true
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// Repair pass: fill the shells allocated above with canonical
	// children. Members whose scan landed on a shared node repair it
	// only once; the node was already seen through the member that
	// materialized it.
	seen := make(map[any]bool, len(repairs))
	for _, m := range repairs {
		key, ok := infoKey(m.known)
		if m.repaired || (ok && seen[key]) {
			continue
		}
		if ok {
			seen[key] = true
		}
		m.repaired = true
		cc, err := c.canonicalChildren(m, b)
		if err != nil {
			return err
		}
		if err := m.hooks.Repair(m.known, cc); err != nil {
			return wrapHook(skerrors.ErrCodeCanonRepair, err, "repairing %s", m.proto)
		}
		if m.hooks.Freeze != nil {
			m.hooks.Freeze(m.known)
		}
	}

	// Admit: record every reference resolved here in the known set.
	for _, m := range comp.snapshot {
		if !m.hasKnown {
			return skerrors.New(skerrors.ErrCodeCanonUnresolved,
				"could not resolve known value for %s", m.proto)
		}
		c.addKnown(m)
	}
	return nil
}

// materialize produces the canonical instance for m: an empty shell for
// three-step hooks (repaired later, so cyclic back-references can
// already point at it), a finished value for two-step hooks, whose
// children are all external and therefore already canonical.
func (c *Canon) materialize(m *info, b *builder) (any, error) {
	if m.hooks.threeStep() {
		return m.hooks.Allocate(m.value), nil
	}
	cc, err := c.canonicalChildren(m, b)
	if err != nil {
		return nil, err
	}
	out, err := m.hooks.Reconstruct(cc)
	if err != nil {
		return nil, wrapHook(skerrors.ErrCodeCanonReconstruct, err, "reconstructing %s", m.proto)
	}
	return out, nil
}

// wrapHook attaches a hook-stage code to an error unless the error
// already carries a code of its own, which happens when a hook re-enters
// the canon and surfaces one of its structured failures.
func wrapHook(code skerrors.Code, err error, format string, args ...any) error {
	if skerrors.GetCode(err) != "" {
		return err
	}
	return skerrors.Wrap(code, err, format, args...)
}

// canonicalChildren maps m's cached children to their canonical forms.
func (c *Canon) canonicalChildren(m *info, b *builder) ([]any, error) {
	cc := make([]any, len(m.children))
	for i, ch := range m.children {
		v, err := c.canonicalChild(ch, b)
		if err != nil {
			return nil, err
		}
		cc[i] = v
	}
	return cc, nil
}

func (c *Canon) canonicalChild(ch any, b *builder) (any, error) {
	in := b.lookupInfo(ch)
	if in == nil {
		return ch, nil // primitive, opaque, or previously canonical
	}
	if !in.hasKnown {
		return nil, skerrors.New(skerrors.ErrCodeCanonUnresolved,
			"could not resolve known value for child %s", in.proto)
	}
	return in.known, nil
}

// addKnown records a canonical reference in the known set. Comparable
// non-reference values (such as canonical instants) are not tracked;
// re-admitting them reconstructs an identical value.
func (c *Canon) addKnown(m *info) {
	id, ok := refs.Identity(m.known)
	if !ok {
		return
	}
	if _, ok := c.known[id]; ok {
		return
	}
	e := knownEntry{}
	if c.profile.Weakness {
		if h, ok := refs.MakeHandle(m.known); ok {
			e.handle = h
			e.weak = true
			refs.Watch(m.known, func() { c.bury(id) })
		} else {
			e.strong = m.known
		}
	} else {
		e.strong = m.known
	}
	c.known[id] = e
}

func sameValue(a, b any) bool {
	ida, oka := refs.Identity(a)
	idb, okb := refs.Identity(b)
	if oka != okb {
		return false
	}
	if oka {
		return ida == idb
	}
	return a == b
}

func (c *Canon) bury(id refs.ID) {
	c.mu.Lock()
	c.graves = append(c.graves, id)
	c.mu.Unlock()
}

func (c *Canon) drainGraves() {
	c.mu.Lock()
	graves := c.graves
	c.graves = nil
	c.mu.Unlock()
	for _, id := range graves {
		if e, ok := c.known[id]; ok && e.weak && !e.handle.Alive() {
			delete(c.known, id)
		}
	}
}
