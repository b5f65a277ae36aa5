package canon

import (
	"reflect"

	"github.com/skeinworks/skein/internal/refs"
)

// A trace is the linearized, reference-free fingerprint of a component
// member: the key under which canonical representatives are pooled.
//
// Trace entries are one of:
//
//   - protoToken: the member's runtime type
//   - arity: the member's child count, making the flat form a prefix code
//   - backRef: the trace index at which an in-component child was first
//     seen
//   - any other value: a child outside the component, already canonical
//
// protoToken, arity, and backRef are unexported types, so they can never
// collide with values appearing in user data.
type protoToken struct {
	t reflect.Type
}

type arity int

type backRef int

// opaqueStub stands in for an external child that cannot serve as a trie
// key. Every stub is a fresh reference, so such traces never alias; the
// dedup guarantee does not extend to opaque values anyway.
type opaqueStub struct{ _ byte }

// scan builds the canonical trace of comp starting from start. The
// choice of start biases the trace; resolve scans from every member, so
// symmetric members produce identical traces and land on the same pool
// entry.
func (c *Canon) scan(comp *component, start *info, b *builder) []any {
	trace := make([]any, 0, 4*len(comp.snapshot))
	index := make(map[*info]int, len(comp.snapshot))

	var walk func(in *info)
	walk = func(in *info) {
		index[in] = len(trace)
		trace = append(trace, protoToken{in.proto}, arity(len(in.children)))
		for _, ch := range in.children {
			ci := b.lookupInfo(ch)
			if ci != nil && comp.has(ci) {
				if pos, ok := index[ci]; ok {
					trace = append(trace, backRef(pos))
				} else {
					walk(ci)
				}
				continue
			}
			trace = append(trace, c.traceEntry(ch, ci))
		}
	}
	walk(start)
	return trace
}

// traceEntry renders an out-of-component child for the trace: its
// canonical reference when it is a mapped input, the value itself when
// it is primitive or opaque.
func (c *Canon) traceEntry(ch any, ci *info) any {
	if ci != nil && ci.hasKnown {
		ch = ci.known
	}
	if !refs.Keyable(ch) {
		return &opaqueStub{}
	}
	return ch
}
