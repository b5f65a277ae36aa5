package refs

import (
	"reflect"
	"unsafe"
	"weak"
)

// WeakAny holds an arbitrary value without keeping it alive, where the
// value's kind permits it. Pointer-kinded values are held through a weak
// pointer and revived on demand; everything else falls back to a strong
// reference so logical behavior is preserved at the cost of memory.
//
// This is the ephemeron workaround for interning tables: a table entry
// whose value references its own keys must not hold the value strongly,
// or neither value nor keys can ever be reclaimed.
//
// The zero WeakAny is empty.
type WeakAny struct {
	typ    unsafe.Pointer // interface type word, for revival
	wp     weak.Pointer[struct{}]
	strong any
	weak   bool
	set    bool
}

// MakeWeakAny captures v. Pointer-kinded values are captured weakly,
// everything else strongly.
func MakeWeakAny(v any) WeakAny {
	if !Weakable(v) {
		return WeakAny{strong: v, set: true}
	}
	e := (*eface)(unsafe.Pointer(&v))
	p := (*struct{})(reflect.ValueOf(v).UnsafePointer())
	return WeakAny{typ: e.typ, wp: weak.Make(p), weak: true, set: true}
}

// Value returns the captured value, or ok=false if the WeakAny is empty
// or the weakly held value has been reclaimed.
func (w WeakAny) Value() (any, bool) {
	if !w.set {
		return nil, false
	}
	if !w.weak {
		return w.strong, true
	}
	p := w.wp.Value()
	if p == nil {
		return nil, false
	}
	var v any
	e := (*eface)(unsafe.Pointer(&v))
	e.typ = w.typ
	e.data = unsafe.Pointer(p)
	return v, true
}

// Weak reports whether the value is held weakly.
func (w WeakAny) Weak() bool { return w.weak }
