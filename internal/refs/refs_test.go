package refs

import (
	"runtime"
	"testing"
	"time"
)

func TestIdentity(t *testing.T) {
	p := &struct{ x int }{1}
	q := &struct{ x int }{1}
	m := map[string]int{}
	s := []int{1, 2, 3}

	tests := []struct {
		name string
		a, b any
		same bool
	}{
		{"SamePointer", p, p, true},
		{"DistinctPointers", p, q, false},
		{"SameMap", m, m, true},
		{"DistinctMaps", map[string]int{}, map[string]int{}, false},
		{"SameSlice", s, s, true},
		{"SliceVsSubslice", s, s[:2], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ida, oka := Identity(tt.a)
			idb, okb := Identity(tt.b)
			if !oka || !okb {
				t.Fatalf("Identity ok = %v, %v, want reference-like", oka, okb)
			}
			if (ida == idb) != tt.same {
				t.Errorf("identity equality = %v, want %v", ida == idb, tt.same)
			}
		})
	}
}

func TestIdentity_TypedNils(t *testing.T) {
	type a struct{ x int }
	type b struct{ y int }
	ida, ok1 := Identity((*a)(nil))
	idb, ok2 := Identity((*b)(nil))
	if !ok1 || !ok2 {
		t.Fatal("typed nil pointers should be reference-like")
	}
	if ida == idb {
		t.Error("nil pointers of different types share an identity")
	}
	ida2, _ := Identity((*a)(nil))
	if ida != ida2 {
		t.Error("identity of a typed nil is unstable")
	}
}

func TestIdentity_Primitives(t *testing.T) {
	for _, v := range []any{nil, 1, "x", 3.5, true, time.Now()} {
		if _, ok := Identity(v); ok {
			t.Errorf("Identity(%#v) reported reference-like", v)
		}
	}
}

func TestClosureIdentity(t *testing.T) {
	mk := func(n int) func() int { return func() int { return n } }
	f, g := mk(1), mk(2)
	idf, _ := Identity(f)
	idg, _ := Identity(g)
	if idf == idg {
		t.Fatal("distinct closures share an identity")
	}
	idf2, _ := Identity(f)
	if idf != idf2 {
		t.Fatal("identity of the same closure is unstable")
	}
}

func TestKeyable(t *testing.T) {
	type plain struct{ a int }
	type sliced struct{ s []int }
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"Nil", nil, true},
		{"Int", 1, true},
		{"String", "x", true},
		{"Pointer", &plain{}, true},
		{"Slice", []int{1}, true},
		{"Map", map[int]int{}, true},
		{"Func", func() {}, true},
		{"ComparableStruct", plain{1}, true},
		{"NonComparableStruct", sliced{[]int{1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Keyable(tt.v); got != tt.want {
				t.Errorf("Keyable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameKey(t *testing.T) {
	p := &struct{ x int }{}
	if !SameKey(p, p) || SameKey(p, &struct{ x int }{}) {
		t.Error("pointer key identity broken")
	}
	if !SameKey(1, 1) || SameKey(1, 2) || SameKey(1, "1") {
		t.Error("primitive key equality broken")
	}
	if SameKey(p, 1) {
		t.Error("reference key equal to primitive key")
	}
}

func TestWatch(t *testing.T) {
	fired := make(chan struct{})
	func() {
		p := &struct{ pad [64]byte }{}
		if !Watch(p, func() { close(fired) }) {
			t.Fatal("Watch refused a pointer")
		}
	}()
	deadline := time.After(2 * time.Second)
	for {
		runtime.GC()
		select {
		case <-fired:
			return
		case <-deadline:
			t.Skip("cleanup did not run; GC timing dependent")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestWeakAny_Strong(t *testing.T) {
	w := MakeWeakAny("hello")
	if w.Weak() {
		t.Fatal("string captured weakly")
	}
	v, ok := w.Value()
	if !ok || v != "hello" {
		t.Fatalf("Value = %v, %v", v, ok)
	}
}

func TestWeakAny_Revive(t *testing.T) {
	type box struct{ n int }
	b := &box{42}
	w := MakeWeakAny(b)
	if !w.Weak() {
		t.Fatal("pointer not captured weakly")
	}
	v, ok := w.Value()
	if !ok {
		t.Fatal("live value reported dead")
	}
	if v.(*box) != b {
		t.Fatal("revived value is a different reference")
	}
	runtime.KeepAlive(b)
}
