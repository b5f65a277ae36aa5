package canon

import (
	"reflect"
	"slices"
	"sort"
	"time"

	skerrors "github.com/skeinworks/skein/pkg/errors"
	"github.com/skeinworks/skein/pkg/tuple"
)

// Hooks is the per-type hook record that teaches a Canon how to take
// instances of a type apart and put canonical ones back together.
//
// Two shapes are valid:
//
//   - two-step: Deconstruct + Reconstruct, for types that are immutable
//     on construction and therefore cannot participate in cycles.
//   - three-step: Deconstruct + Allocate + Repair, for types whose
//     instances may appear in cycles. Allocate produces an empty shell
//     eagerly so cyclic back-references can point at it before Repair
//     fills it in.
//
// Freeze is optional in both shapes and runs once, after the canonical
// instance is complete, for types that can lock themselves down.
type Hooks struct {
	// Deconstruct returns the children of v in a stable order.
	Deconstruct func(v any) ([]any, error)

	// Reconstruct builds a finished instance from canonical children
	// (two-step only).
	Reconstruct func(children []any) (any, error)

	// Allocate returns an empty instance shaped like v (three-step only).
	Allocate func(v any) any

	// Repair fills an allocated instance with canonical children
	// (three-step only).
	Repair func(v any, children []any) error

	// Freeze locks a completed canonical instance (optional).
	Freeze func(v any)
}

func (h Hooks) threeStep() bool { return h.Allocate != nil }

func validateHooks(t reflect.Type, h Hooks) error {
	if h.Deconstruct == nil {
		return skerrors.New(skerrors.ErrCodeHandlerIncomplete, "%s: Deconstruct is required", t)
	}
	two := h.Reconstruct != nil
	three := h.Allocate != nil || h.Repair != nil
	if three && (h.Allocate == nil || h.Repair == nil) {
		return skerrors.New(skerrors.ErrCodeHandlerIncomplete, "%s: Allocate and Repair come as a pair", t)
	}
	if two == three {
		return skerrors.New(skerrors.ErrCodeHandlerIncomplete,
			"%s: want either Reconstruct or Allocate+Repair", t)
	}
	return nil
}

// Handlers is a registry of Hooks keyed by runtime type. Types that have
// no entry are opaque to the Canon and pass through canonicalization
// unchanged.
//
// A registry is mutable only until a type has been consulted: Enable for
// a type that any lookup has already touched fails, because changing the
// rules after instances were admitted would make previously canonical
// values wrong.
//
// A fresh registry covers []any, map[string]any, and time.Time.
type Handlers struct {
	entries   map[reflect.Type]Hooks
	consulted map[reflect.Type]bool

	// keyTuples interns sorted key lists so that all plain mappings with
	// the same key set share one keys tuple, and with it their trace
	// prefix. Canonical mappings do not retain their keys tuple, so the
	// interner is strong: a reclaimed tuple would silently split traces.
	keyTuples *tuple.Interner
}

// NewHandlers creates a registry with the built-in entries.
func NewHandlers() *Handlers {
	h := &Handlers{
		entries:   make(map[reflect.Type]Hooks),
		consulted: make(map[reflect.Type]bool),
		keyTuples: tuple.NewInterner(tuple.Strong()),
	}
	h.entries[reflect.TypeOf([]any(nil))] = sequenceHooks()
	h.entries[reflect.TypeOf(map[string]any(nil))] = h.mappingHooks()
	h.entries[reflect.TypeOf(time.Time{})] = dateHooks()
	return h
}

// Enable registers hooks for t. It fails with HANDLER_IN_USE once t has
// been consulted by any lookup, and with HANDLER_INCOMPLETE if the hook
// record is not one of the two valid shapes.
func (h *Handlers) Enable(t reflect.Type, hooks Hooks) error {
	if err := validateHooks(t, hooks); err != nil {
		return err
	}
	if h.consulted[t] {
		return skerrors.New(skerrors.ErrCodeHandlerInUse, "type %s was already consulted", t)
	}
	h.entries[t] = hooks
	return nil
}

// EnableFor registers hooks for the dynamic type of sample.
func (h *Handlers) EnableFor(sample any, hooks Hooks) error {
	return h.Enable(reflect.TypeOf(sample), hooks)
}

// lookup resolves hooks for t and marks t consulted, freezing its
// registration forever - including the negative answer, so a type once
// treated as opaque stays opaque.
func (h *Handlers) lookup(t reflect.Type) (Hooks, bool) {
	h.consulted[t] = true
	hooks, ok := h.entries[t]
	return hooks, ok
}

func sequenceHooks() Hooks {
	return Hooks{
		Deconstruct: func(v any) ([]any, error) {
			return slices.Clone(v.([]any)), nil
		},
		Allocate: func(v any) any {
			return make([]any, len(v.([]any)))
		},
		Repair: func(v any, children []any) error {
			copy(v.([]any), children)
			return nil
		},
	}
}

// mappingHooks deconstructs a plain mapping into its interned sorted-keys
// tuple followed by the values in key order. The keys tuple is itself a
// canonical child: mappings with equal key sets share it by reference.
func (h *Handlers) mappingHooks() Hooks {
	return Hooks{
		Deconstruct: func(v any) ([]any, error) {
			m := v.(map[string]any)
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			elems := make([]any, len(keys))
			for i, k := range keys {
				elems[i] = k
			}
			kt := h.keyTuples.OfSlice(elems)
			children := make([]any, 0, len(m)+1)
			children = append(children, kt)
			for _, k := range keys {
				children = append(children, m[k])
			}
			return children, nil
		},
		Allocate: func(v any) any {
			return make(map[string]any, len(v.(map[string]any)))
		},
		Repair: func(v any, children []any) error {
			m := v.(map[string]any)
			kt := children[0].(*tuple.Tuple)
			for i := 0; i < kt.Len(); i++ {
				m[kt.At(i).(string)] = children[i+1]
			}
			return nil
		},
	}
}

// dateHooks canonicalizes instants. The canonical form is normalized to
// UTC; equality is on the instant, so zone formatting is not preserved.
func dateHooks() Hooks {
	return Hooks{
		Deconstruct: func(v any) ([]any, error) {
			return []any{v.(time.Time).UnixNano()}, nil
		},
		Reconstruct: func(children []any) (any, error) {
			return time.Unix(0, children[0].(int64)).UTC(), nil
		},
	}
}
