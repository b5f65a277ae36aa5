package weaktrie

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/skeinworks/skein/internal/refs"
)

type payload struct {
	path []any
	n    int
}

func newCounting() (*Trie[payload], *int) {
	created := 0
	t := New(func(path []any) payload {
		created++
		return payload{path: path, n: created}
	})
	return t, &created
}

func TestLookup_StablePayload(t *testing.T) {
	tests := []struct {
		name string
		path []any
	}{
		{"Empty", nil},
		{"Single", []any{"a"}},
		{"Deep", []any{"a", 1, true, 2.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, created := newCounting()
			first := tr.LookupSlice(tt.path)
			second := tr.LookupSlice(tt.path)
			if first != second {
				t.Error("same path yielded distinct payloads")
			}
			if *created != 1 {
				t.Errorf("makeData calls = %d, want 1", *created)
			}
			if len(first.path) != len(tt.path) {
				t.Errorf("makeData path length = %d, want %d", len(first.path), len(tt.path))
			}
		})
	}
}

func TestLookup_PrefixesAreDistinct(t *testing.T) {
	tr, _ := newCounting()
	abc := tr.Lookup("a", "b", "c")
	ab := tr.Lookup("a", "b")
	a := tr.Lookup("a")
	root := tr.Lookup()
	if abc == ab || ab == a || a == root {
		t.Error("prefix paths share payloads")
	}
	if tr.Lookup("a", "b", "c") != abc || tr.Lookup("a", "b") != ab {
		t.Error("payloads not stable after prefix creation promoted tails")
	}
}

func TestLookup_TailDivergence(t *testing.T) {
	// Each case inserts the paths in order and then verifies every path
	// still resolves to its original payload.
	tests := []struct {
		name  string
		paths [][]any
	}{
		{"DivergeAtEnd", [][]any{{"a", "b", "c"}, {"a", "b", "d"}}},
		{"DivergeAtStart", [][]any{{"a", "b", "c"}, {"x", "b", "c"}}},
		{"ShorterSecond", [][]any{{"a", "b", "c", "d"}, {"a", "b"}}},
		{"LongerSecond", [][]any{{"a", "b"}, {"a", "b", "c", "d"}}},
		{"ManyFanOut", [][]any{{"a", 1}, {"a", 2}, {"a", 3}, {"b", 1}}},
		{"MixedKinds", [][]any{{"a", 1, true}, {"a", 1, false}, {"a", 2.0, true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, created := newCounting()
			got := make([]*payload, len(tt.paths))
			for i, p := range tt.paths {
				got[i] = tr.LookupSlice(p)
			}
			if *created != len(tt.paths) {
				t.Errorf("makeData calls = %d, want %d", *created, len(tt.paths))
			}
			for i, p := range tt.paths {
				if tr.LookupSlice(p) != got[i] {
					t.Errorf("path %d resolved to a different payload after divergence", i)
				}
			}
		})
	}
}

func TestLookup_ReferenceKeys(t *testing.T) {
	type obj struct{ name string }
	a, b := &obj{"a"}, &obj{"b"}
	tr, _ := newCounting()

	pa := tr.Lookup(a, "x")
	pb := tr.Lookup(b, "x")
	if pa == pb {
		t.Error("distinct reference keys share a payload")
	}
	if tr.Lookup(a, "x") != pa {
		t.Error("reference key lookup is unstable")
	}
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestLookup_EqualButDistinctReferences(t *testing.T) {
	tr, _ := newCounting()
	m1 := map[string]int{"k": 1}
	m2 := map[string]int{"k": 1}
	if tr.Lookup(m1) == tr.Lookup(m2) {
		t.Error("deeply equal but distinct maps share a payload")
	}
}

func TestLookup_UnkeyablePanics(t *testing.T) {
	type bad struct{ s []int }
	tr, _ := newCounting()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, refs.ErrUnkeyable) {
			t.Fatalf("panic = %v, want refs.ErrUnkeyable", r)
		}
	}()
	tr.Lookup(bad{[]int{1}})
}

func TestPeek(t *testing.T) {
	tr, created := newCounting()
	if _, ok := tr.Peek("a", "b"); ok {
		t.Error("Peek found a payload in an empty trie")
	}
	p := tr.Lookup("a", "b")
	got, ok := tr.Peek("a", "b")
	if !ok || got != p {
		t.Errorf("Peek = %v, %v; want existing payload", got, ok)
	}
	if _, ok := tr.Peek("a"); ok {
		t.Error("Peek found a payload at a bare prefix")
	}
	if *created != 1 {
		t.Errorf("Peek created payloads: makeData calls = %d", *created)
	}
}

func TestStrongOption(t *testing.T) {
	tr := New(func([]any) int { return 0 }, Strong())
	p := &struct{ x int }{}
	d := tr.Lookup(p, "x")
	if tr.Lookup(p, "x") != d {
		t.Error("strong trie lookup is unstable")
	}
}

func TestWeakReclamation(t *testing.T) {
	tr, created := newCounting()
	hold := &struct{ pad [32]byte }{}
	tr.Lookup(hold, "a", "b")

	func() {
		dead := &struct{ pad [32]byte }{}
		tr.Lookup(dead, "x")
		tr.Lookup(dead, "y")
	}()

	if *created != 3 {
		t.Fatalf("makeData calls = %d, want 3", *created)
	}

	deadline := time.After(2 * time.Second)
	for {
		runtime.GC()
		// Any operation drains the reclamation queue.
		if _, ok := tr.Peek(hold, "a", "b"); !ok {
			t.Fatal("strongly reachable key's payload was lost")
		}
		if len(tr.root.refs) == 1 {
			return // dead subtrie removed
		}
		select {
		case <-deadline:
			t.Skip("reclamation did not run; GC timing dependent")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
