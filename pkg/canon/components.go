package canon

import (
	"reflect"

	"github.com/skeinworks/skein/internal/refs"
	skerrors "github.com/skeinworks/skein/pkg/errors"
)

// info is the per-input bookkeeping computed during one Admit call: the
// visit order, cached deconstruction children, the strongly connected
// component the input belongs to, and the chosen canonical reference
// once established.
type info struct {
	value    any
	proto    reflect.Type
	hooks    Hooks
	children []any

	order   int
	compIdx int // position on the component stack while in progress
	comp    *component

	known    any
	hasKnown bool
	repaired bool
}

// component is a strongly connected component of input nodes, with an
// ordered snapshot of its members (first-seen order) for deterministic
// iteration.
type component struct {
	members  map[*info]struct{}
	snapshot []*info
}

func (c *component) has(in *info) bool {
	_, ok := c.members[in]
	return ok
}

// cyclic reports whether the component can contain a cycle: more than
// one member, or a single member with an edge to itself.
func (c *component) cyclic() bool {
	if len(c.snapshot) > 1 {
		return true
	}
	m := c.snapshot[0]
	for _, ch := range m.children {
		if key, ok := infoKey(ch); ok && key == m.selfKey() {
			return true
		}
	}
	return false
}

func (in *info) selfKey() any {
	key, _ := infoKey(in.value)
	return key
}

// infoKey returns the identity under which an input is tracked: the
// reference identity for reference-like values, the value itself for
// comparable ones. Unkeyable values report false.
func infoKey(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	if id, ok := refs.Identity(v); ok {
		return id, true
	}
	if reflect.TypeOf(v).Comparable() {
		return v, true
	}
	return nil, false
}

// builder runs one partition pass: a single traversal over the input
// graph that assigns visit orders and splits the handler-covered inputs
// into strongly connected components, emitted leaves first.
//
// The traversal keeps two stacks: rootStack holds candidates for the
// root of the current component and is contracted whenever a back edge
// proves that a span of candidates belongs to one component; compStack
// holds the nodes that may still belong to an open component and is
// spliced when a root finishes.
type builder struct {
	c     *Canon
	order int
	infos map[any]*info

	rootStack []*info
	compStack []*info
	comps     []*component
}

func newBuilder(c *Canon) *builder {
	return &builder{c: c, infos: make(map[any]*info)}
}

// nodeFor resolves the input node for v, creating and deconstructing it
// on first sight. Primitives, opaque values, and already-canonical
// values are not nodes and return (nil, false, nil). The second result
// reports whether the node was created by this call.
func (b *builder) nodeFor(v any) (*info, bool, error) {
	if v == nil || b.c.isCanonical(v) {
		return nil, false, nil
	}
	hooks, ok := b.c.handlers.lookup(reflect.TypeOf(v))
	if !ok {
		return nil, false, nil
	}
	key, ok := infoKey(v)
	if !ok {
		return nil, false, skerrors.New(skerrors.ErrCodeInvalidKey,
			"handler-covered value of type %T has no usable identity", v)
	}
	if in, ok := b.infos[key]; ok {
		return in, false, nil
	}
	children, err := hooks.Deconstruct(v)
	if err != nil {
		return nil, false, wrapHook(skerrors.ErrCodeCanonDeconstruct, err, "deconstructing %T", v)
	}
	in := &info{value: v, proto: reflect.TypeOf(v), hooks: hooks, children: children}
	b.infos[key] = in
	return in, true, nil
}

// lookupInfo returns the existing node for v, if any.
func (b *builder) lookupInfo(v any) *info {
	key, ok := infoKey(v)
	if !ok {
		return nil
	}
	return b.infos[key]
}

func (b *builder) push(in *info) {
	b.order++
	in.order = b.order
	in.compIdx = len(b.compStack)
	b.rootStack = append(b.rootStack, in)
	b.compStack = append(b.compStack, in)
}

// frame is one step of the iterative depth-first traversal; Go stacks
// are too small to recurse over caller-sized graphs.
type frame struct {
	in   *info
	next int
}

// visit traverses the graph below root and emits components.
func (b *builder) visit(root *info) error {
	stack := []frame{{in: root}}
	b.push(root)

	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next < len(f.in.children) {
			ch := f.in.children[f.next]
			f.next++
			ci, created, err := b.nodeFor(ch)
			if err != nil {
				return err
			}
			if ci == nil {
				continue // opaque or primitive: terminates recursion unmapped
			}
			switch {
			case created:
				b.push(ci)
				stack = append(stack, frame{in: ci})
			case ci.comp == nil:
				// Back edge into an open component: everything seen since
				// ci is in the same component, so contract the candidates.
				for len(b.rootStack) > 0 && b.rootStack[len(b.rootStack)-1].order > ci.order {
					b.rootStack = b.rootStack[:len(b.rootStack)-1]
				}
			}
			continue
		}

		// Unwound back to f.in: if it is the current root candidate, the
		// suffix of compStack starting at it is a complete component.
		if top := b.rootStack[len(b.rootStack)-1]; top == f.in {
			b.rootStack = b.rootStack[:len(b.rootStack)-1]
			members := b.compStack[f.in.compIdx:]
			b.compStack = b.compStack[:f.in.compIdx]

			comp := &component{
				members:  make(map[*info]struct{}, len(members)),
				snapshot: make([]*info, len(members)),
			}
			copy(comp.snapshot, members)
			for _, m := range members {
				m.comp = comp
				comp.members[m] = struct{}{}
			}
			b.comps = append(b.comps, comp)
		}
		stack = stack[:len(stack)-1]
	}
	return nil
}
