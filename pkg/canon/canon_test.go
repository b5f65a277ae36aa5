package canon

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/skeinworks/skein/pkg/deepeq"
	skerrors "github.com/skeinworks/skein/pkg/errors"
)

func TestAdmit_Primitives(t *testing.T) {
	c := New()
	for _, v := range []any{nil, 1, "x", 2.5, true} {
		got, err := c.Admit(v)
		require.NoError(t, err)
		assert.Equal(t, v, got, "primitive should pass through unchanged")
		assert.False(t, c.IsCanonical(v))
	}
}

func TestAdmit_OpaquePassThrough(t *testing.T) {
	type opaque struct{ n int }
	c := New()
	o := &opaque{1}
	got, err := c.Admit(o)
	require.NoError(t, err)
	assert.True(t, got.(*opaque) == o, "opaque reference should be returned unchanged")
}

func TestAdmit_Idempotent(t *testing.T) {
	c := New()
	in := map[string]any{"a": 1, "b": []any{1, 2}}
	first := c.MustAdmit(in)
	second := c.MustAdmit(first)
	assert.True(t, sameValue(first, second), "Admit(Admit(x)) must be Admit(x)")
	assert.True(t, c.IsCanonical(first))
}

func TestAdmit_DeeplyEqualInputsCollapse(t *testing.T) {
	build := func() any {
		return map[string]any{
			"name": "ada",
			"tags": []any{"x", "y"},
			"nested": map[string]any{
				"k": 1.5,
			},
		}
	}
	c := New()
	a := c.MustAdmit(build())
	b := c.MustAdmit(build())
	assert.True(t, sameValue(a, b), "deeply equal inputs must admit to the same reference")
}

func TestAdmit_ResultDeeplyEqualToInput(t *testing.T) {
	c := New()
	in := map[string]any{"a": 1, "b": []any{"x", map[string]any{"c": 2}}}
	// Admit may keep observing the input, so compare against a copy.
	want := map[string]any{"a": 1, "b": []any{"x", map[string]any{"c": 2}}}
	got := c.MustAdmit(in)
	assert.True(t, deepeq.Equal(want, got), "canonical form must be deeply equal to the input")
}

func TestAdmit_SharedSubstructure(t *testing.T) {
	c := New()
	shared := []any{1, 2}
	in := map[string]any{"l": shared, "r": shared}
	got := c.MustAdmit(in).(map[string]any)
	assert.True(t, sameValue(got["l"], got["r"]),
		"duplicate children must map to the same canonical reference")

	// Equal-but-unshared input collapses to the same canonical form.
	in2 := map[string]any{"l": []any{1, 2}, "r": []any{1, 2}}
	got2 := c.MustAdmit(in2).(map[string]any)
	assert.True(t, sameValue(got["l"], got2["r"]))
}

func TestAdmit_InstantsReconstruct(t *testing.T) {
	c := New()
	loc := time.FixedZone("X", 3600)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)
	got := c.MustAdmit(map[string]any{"at": at}).(map[string]any)
	canonAt := got["at"].(time.Time)
	assert.True(t, at.Equal(canonAt), "canonical instant must equal the input instant")
	assert.Equal(t, time.UTC, canonAt.Location(), "canonical instants are normalized to UTC")
}

// S1: five entry points into a canonical ring admit to five distinct
// frozen nodes forming the same ring, and re-admitting an equal ring
// reuses them.
func TestAdmit_CanonicalRing(t *testing.T) {
	ring := func() []map[string]any {
		nodes := make([]map[string]any, 5)
		for i := range nodes {
			nodes[i] = map[string]any{"value": i + 1}
		}
		for i := range nodes {
			nodes[i]["tail"] = nodes[(i+1)%5]
		}
		return nodes
	}

	c := New()
	first := ring()
	canon := make([]any, 5)
	for i, n := range first {
		canon[i] = c.MustAdmit(n)
	}

	// Distinct nodes, one ring.
	for i := 0; i < 5; i++ {
		for j := i + 1; j < 5; j++ {
			assert.False(t, sameValue(canon[i], canon[j]), "ring nodes %d and %d collapsed", i, j)
		}
	}
	for i := 0; i < 5; i++ {
		tail := canon[i].(map[string]any)["tail"]
		assert.True(t, sameValue(tail, canon[(i+1)%5]), "canonical ring broken at %d", i)
	}

	// Walking five tails comes back to the same canonical node.
	walk := canon[0]
	for i := 0; i < 5; i++ {
		walk = walk.(map[string]any)["tail"]
	}
	assert.True(t, sameValue(walk, canon[0]))

	// A structurally equal second ring admits to the same nodes.
	second := ring()
	for i, n := range second {
		assert.True(t, sameValue(c.MustAdmit(n), canon[i]), "second ring node %d did not reuse", i)
	}
}

// S2: symmetric cross-references collapse; breaking the symmetry splits
// them again.
func TestAdmit_SymmetricCrossReferences(t *testing.T) {
	c := New()
	a := map[string]any{}
	b := map[string]any{}
	a["other"], a["self"] = b, a
	b["other"], b["self"] = a, b

	ca := c.MustAdmit(a)
	cb := c.MustAdmit(b)
	assert.True(t, sameValue(ca, cb), "symmetric nodes must admit to one canonical reference")
	self := ca.(map[string]any)
	assert.True(t, sameValue(self["other"], ca))
	assert.True(t, sameValue(self["self"], ca))

	a2 := map[string]any{}
	b2 := map[string]any{}
	a2["other"], a2["self"], a2["b"] = b2, a2, b2
	b2["other"], b2["self"], b2["a"] = a2, b2, a2
	ca2 := c.MustAdmit(a2)
	cb2 := c.MustAdmit(b2)
	assert.False(t, sameValue(ca2, cb2), "asymmetric nodes must stay distinct")
}

// blob is an immutable byte holder canonicalized through a two-step
// handler (S3).
type blob struct {
	data string
}

func newBlob(bs []byte) *blob { return &blob{data: string(bs)} }

func enableBlob(t *testing.T, c *Canon) {
	t.Helper()
	err := c.Handlers().EnableFor(&blob{}, Hooks{
		Deconstruct: func(v any) ([]any, error) {
			return []any{v.(*blob).data}, nil
		},
		Reconstruct: func(children []any) (any, error) {
			return &blob{data: children[0].(string)}, nil
		},
	})
	require.NoError(t, err)
}

func TestAdmit_TwoStepHandler(t *testing.T) {
	c := New()
	enableBlob(t, c)

	b1 := newBlob([]byte{1, 2, 3})
	b2 := newBlob([]byte{1, 2, 3})
	require.False(t, b1 == b2)

	c1 := c.MustAdmit(b1)
	c2 := c.MustAdmit(b2)
	assert.True(t, sameValue(c1, c2), "equal buffers must collapse to one canonical buffer")

	// A repaired parent observes the canonical child.
	m1 := c.MustAdmit(map[string]any{"payload": newBlob([]byte{1, 2, 3})}).(map[string]any)
	assert.True(t, sameValue(m1["payload"], c1))
}

func TestAdmit_TwoStepInCycleFails(t *testing.T) {
	c := New()
	err := c.Handlers().EnableFor(&cell{}, Hooks{
		Deconstruct: func(v any) ([]any, error) { return []any{v.(*cell).next}, nil },
		Reconstruct: func(children []any) (any, error) {
			n, _ := children[0].(*cell)
			return &cell{next: n}, nil
		},
	})
	require.NoError(t, err)

	loop := &cell{}
	loop.next = loop
	_, err = c.Admit(loop)
	require.Error(t, err)
	assert.True(t, skerrors.Is(err, skerrors.ErrCodeCanonImmutable), "got %v", err)
}

type cell struct {
	next *cell
}

func TestAdmit_ThreeStepCustomType(t *testing.T) {
	c := New()
	err := c.Handlers().EnableFor(&cell{}, Hooks{
		Deconstruct: func(v any) ([]any, error) { return []any{v.(*cell).next}, nil },
		Allocate:    func(v any) any { return &cell{} },
		Repair: func(v any, children []any) error {
			n, _ := children[0].(*cell)
			v.(*cell).next = n
			return nil
		},
	})
	require.NoError(t, err)

	mk := func() *cell {
		a := &cell{}
		b := &cell{next: a}
		a.next = b
		return a
	}
	c1 := c.MustAdmit(mk()).(*cell)
	c2 := c.MustAdmit(mk()).(*cell)
	assert.True(t, c1 == c2, "equal two-cycles must collapse")
	assert.True(t, c1.next.next == c1, "canonical cycle broken")
	// Both cells are symmetric, so the cycle collapses to its quotient.
	assert.True(t, c1.next == c1)
}

func TestHandlers_EnableAfterUse(t *testing.T) {
	type widget struct{ n int }
	c := New()
	// Admitting consults the type and freezes its (absent) registration.
	_, err := c.Admit(&widget{1})
	require.NoError(t, err)

	err = c.Handlers().EnableFor(&widget{}, Hooks{
		Deconstruct: func(v any) ([]any, error) { return nil, nil },
		Reconstruct: func([]any) (any, error) { return &widget{}, nil },
	})
	require.Error(t, err)
	assert.True(t, skerrors.Is(err, skerrors.ErrCodeHandlerInUse), "got %v", err)
}

func TestHandlers_IncompleteHooks(t *testing.T) {
	type widget struct{}
	tests := []struct {
		name  string
		hooks Hooks
	}{
		{"Empty", Hooks{}},
		{"DeconstructOnly", Hooks{Deconstruct: func(any) ([]any, error) { return nil, nil }}},
		{"BothShapes", Hooks{
			Deconstruct: func(any) ([]any, error) { return nil, nil },
			Reconstruct: func([]any) (any, error) { return nil, nil },
			Allocate:    func(any) any { return nil },
			Repair:      func(any, []any) error { return nil },
		}},
		{"AllocateWithoutRepair", Hooks{
			Deconstruct: func(any) ([]any, error) { return nil, nil },
			Allocate:    func(any) any { return nil },
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New().Handlers().Enable(reflect.TypeOf(&widget{}), tt.hooks)
			require.Error(t, err)
			assert.True(t, skerrors.Is(err, skerrors.ErrCodeHandlerIncomplete), "got %v", err)
		})
	}
}

func TestAdmit_ReentrantFails(t *testing.T) {
	type wrap struct{ v any }
	c := New()
	err := c.Handlers().EnableFor(&wrap{}, Hooks{
		Deconstruct: func(v any) ([]any, error) {
			// Misbehaving hook: re-enters the canon mid-partition.
			if _, err := c.Admit(map[string]any{"x": 1}); err != nil {
				return nil, err
			}
			return []any{v.(*wrap).v}, nil
		},
		Reconstruct: func(children []any) (any, error) { return &wrap{v: children[0]}, nil },
	})
	require.NoError(t, err)

	_, err = c.Admit(&wrap{v: 1})
	require.Error(t, err)
	assert.True(t, skerrors.Is(err, skerrors.ErrCodeCanonPartition), "got %v", err)
}

func TestAdmit_HandlerErrorsPropagate(t *testing.T) {
	type brittle struct{ n int }
	c := New()
	boom := fmt.Errorf("boom")
	require.NoError(t, c.Handlers().EnableFor(&brittle{}, Hooks{
		Deconstruct: func(v any) ([]any, error) { return nil, boom },
		Reconstruct: func([]any) (any, error) { return nil, nil },
	}))
	_, err := c.Admit(&brittle{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, skerrors.Is(err, skerrors.ErrCodeCanonDeconstruct))
}

// Separate Canon instances are independently owned and safe to drive
// from separate goroutines.
func TestCanon_OwnerConfinement(t *testing.T) {
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			c := New()
			for j := 0; j < 50; j++ {
				a := c.MustAdmit(map[string]any{"n": j, "l": []any{j, j + 1}})
				b := c.MustAdmit(map[string]any{"n": j, "l": []any{j, j + 1}})
				if !sameValue(a, b) {
					return fmt.Errorf("admit not stable for %d", j)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
