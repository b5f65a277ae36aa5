// Package refs classifies arbitrary values into reference-like and
// primitive-like keys and provides stable identities and weak handles for
// the reference-like side.
//
// Reference-like values are those with an opaque identity: pointers, maps,
// channels, funcs, unsafe pointers, and slices. Everything else is
// primitive-like and compared by value, which requires the dynamic type to
// be comparable. Values that are neither (non-comparable structs and
// arrays) cannot serve as keys at all.
//
// Weak holding is supported for pointer-kinded values only; other
// reference-like kinds degrade to strong holding. Callers that need weak
// semantics check Weakable first and fall back explicitly.
package refs

import (
	"errors"
	"reflect"
	"runtime"
	"unsafe"
	"weak"
)

// ErrUnkeyable is returned (or raised via panic in must-style call sites)
// when a value can serve neither as a reference-like nor as a
// primitive-like key, e.g. a struct containing a slice field.
var ErrUnkeyable = errors.New("value is neither reference-like nor comparable")

// ID is the identity of a reference-like value. Two reference-like values
// have equal IDs iff they are the same reference seen through the same
// dynamic type; the type word keeps nil pointers of different types, and
// unsafely aliased views of one address, apart. For slices the identity
// is the (data pointer, length) pair; a slice key therefore aliases any
// other slice of the same type that starts at the same element and has
// the same length.
//
// An ID is only meaningful while the referenced object is alive; after
// reclamation the address may be reused. Holders of long-lived IDs pair
// them with a Handle and re-check liveness (see Handle.Alive).
type ID struct {
	typ  unsafe.Pointer
	word unsafe.Pointer
	n    int // slice length, or -1 for non-slice kinds
}

// eface mirrors the runtime layout of an empty interface. The data word is
// the canonical identity for pointer-shaped values: for funcs it is the
// *funcval, so two distinct closures over the same code are distinct.
type eface struct {
	typ  unsafe.Pointer
	data unsafe.Pointer
}

func dataWord(v any) unsafe.Pointer {
	return (*eface)(unsafe.Pointer(&v)).data
}

func refKind(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func,
		reflect.UnsafePointer, reflect.Slice:
		return true
	}
	return false
}

// IsRef reports whether v is reference-like.
func IsRef(v any) bool {
	if v == nil {
		return false
	}
	return refKind(reflect.TypeOf(v).Kind())
}

// Identity returns the identity of v and whether v is reference-like.
// Primitive-like values have no identity and report false.
func Identity(v any) (ID, bool) {
	if v == nil {
		return ID{}, false
	}
	rv := reflect.ValueOf(v)
	if !refKind(rv.Kind()) {
		return ID{}, false
	}
	typ := (*eface)(unsafe.Pointer(&v)).typ
	if rv.Kind() == reflect.Slice {
		return ID{typ: typ, word: rv.UnsafePointer(), n: rv.Len()}, true
	}
	return ID{typ: typ, word: dataWord(v), n: -1}, true
}

// Keyable reports whether v can serve as a key: either reference-like or
// of a comparable dynamic type.
func Keyable(v any) bool {
	if v == nil {
		return true
	}
	t := reflect.TypeOf(v)
	return refKind(t.Kind()) || t.Comparable()
}

// SameKey reports whether a and b denote the same key: identical
// references on the reference-like side, == on the primitive-like side.
// Both arguments must be Keyable.
func SameKey(a, b any) bool {
	ida, refA := Identity(a)
	idb, refB := Identity(b)
	if refA != refB {
		return false
	}
	if refA {
		return ida == idb
	}
	return a == b
}

// Weakable reports whether v supports weak holding and reclamation
// callbacks. Only non-nil pointer-kinded values qualify.
func Weakable(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && !rv.IsNil()
}

// Watch arranges for cleanup to run on a background goroutine some time
// after v becomes unreachable. It reports whether a watch was installed;
// non-weakable values are not watched. The cleanup must not assume any
// particular goroutine and must not retain v.
func Watch(v any, cleanup func()) bool {
	if !Weakable(v) {
		return false
	}
	p := (*struct{})(reflect.ValueOf(v).UnsafePointer())
	runtime.AddCleanup(p, func(fn func()) { fn() }, cleanup)
	return true
}

// Handle is a weak reference to a pointer-kinded value, used to detect
// address reuse: an ID found in an index is only trusted while the handle
// that was captured with it is still alive.
//
// The zero Handle is dead.
type Handle struct {
	wp  weak.Pointer[struct{}]
	set bool
}

// MakeHandle returns a weak handle for v, or ok=false if v is not
// weakable.
func MakeHandle(v any) (Handle, bool) {
	if !Weakable(v) {
		return Handle{}, false
	}
	p := (*struct{})(reflect.ValueOf(v).UnsafePointer())
	return Handle{wp: weak.Make(p), set: true}, true
}

// Alive reports whether the referenced object has not been reclaimed.
func (h Handle) Alive() bool {
	return h.set && h.wp.Value() != nil
}
