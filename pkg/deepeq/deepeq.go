package deepeq

import (
	"bytes"
	"reflect"
	"regexp"
	"sync"
	"time"

	"github.com/skeinworks/skein/internal/refs"
)

// Helper re-enters the deep-equality check from inside a DeepEqualer,
// sharing the in-progress cycle guard of the enclosing comparison.
type Helper func(a, b any) bool

// DeepEqualer lets a type define its own structural equality. When either
// side of a comparison implements it, the hook is consulted on both
// implementing sides and the results are conjoined, keeping the relation
// symmetric regardless of which side supplies the adapter.
type DeepEqualer interface {
	DeepEqual(other any, eq Helper) bool
}

// Equal reports whether a and b are structurally equal.
//
// Identical references are equal. Numeric values compare by value across
// integer and float kinds, with NaN equal to NaN. Sequences compare
// pairwise, maps by key set and pairwise values, errors by dynamic type
// and message, time.Time by instant, regexps by source text. Funcs and
// channels compare by identity only. Structs made of exported fields
// compare field-wise; structs with unexported fields compare by == when
// comparable and are otherwise unequal unless they implement DeepEqualer.
//
// Equal never fails and terminates on cyclic inputs: a comparison pair
// that is re-encountered while still in progress is provisionally equal,
// and the provisional answer stands unless some other part of the
// traversal contradicts it.
func Equal(a, b any) bool {
	c := checkerPool.Get().(*checker)
	defer func() {
		c.reset()
		checkerPool.Put(c)
	}()
	return c.equal(a, b)
}

// checkers are pooled to avoid re-allocating the pair cache on every
// top-level comparison.
var checkerPool = sync.Pool{
	New: func() any { return &checker{seen: make(map[pair]struct{})} },
}

type pair struct {
	a, b refs.ID
}

type checker struct {
	seen map[pair]struct{}
}

func (c *checker) reset() {
	clear(c.seen)
}

// entered records the in-progress comparison of the identities and
// reports whether it was already in progress.
func (c *checker) entered(a, b refs.ID) bool {
	p := pair{a, b}
	if _, ok := c.seen[p]; ok {
		return true
	}
	c.seen[p] = struct{}{}
	return false
}

func (c *checker) helper() Helper {
	return func(a, b any) bool { return c.equal(a, b) }
}

func (c *checker) equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ida, refA := refs.Identity(a)
	idb, refB := refs.Identity(b)
	if refA && refB && ida == idb {
		return true
	}

	if na, nb := numClass(a), numClass(b); na != numNone || nb != numNone {
		if na == numNone || nb == numNone {
			return false
		}
		return equalNumeric(a, na, b, nb)
	}

	switch x := a.(type) {
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case *regexp.Regexp:
		y, ok := b.(*regexp.Regexp)
		return ok && x.String() == y.String()
	}

	ea, aok := a.(DeepEqualer)
	eb, bok := b.(DeepEqualer)
	if aok || bok {
		if refA && refB && c.entered(ida, idb) {
			return true
		}
		eq := true
		if aok {
			eq = eq && ea.DeepEqual(b, c.helper())
		}
		if bok {
			eq = eq && eb.DeepEqual(a, c.helper())
		}
		return eq
	}

	if ae, ok := a.(error); ok {
		be, ok := b.(error)
		return ok && reflect.TypeOf(a) == reflect.TypeOf(b) && ae.Error() == be.Error()
	}
	if _, ok := b.(error); ok {
		return false
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}

	switch ra.Kind() {
	case reflect.Bool, reflect.String:
		return a == b

	case reflect.Slice:
		if ra.Len() != rb.Len() {
			return false
		}
		if ra.Type().Elem().Kind() == reflect.Uint8 {
			return bytes.Equal(ra.Bytes(), rb.Bytes())
		}
		if c.entered(ida, idb) {
			return true
		}
		return c.equalSeq(ra, rb)

	case reflect.Array:
		if ra.Type().Elem().Kind() == reflect.Uint8 {
			return c.equalByteArray(ra, rb)
		}
		return c.equalSeq(ra, rb)

	case reflect.Map:
		if ra.Len() != rb.Len() {
			return false
		}
		if c.entered(ida, idb) {
			return true
		}
		it := ra.MapRange()
		for it.Next() {
			bv := rb.MapIndex(it.Key())
			if !bv.IsValid() || !c.equal(it.Value().Interface(), bv.Interface()) {
				return false
			}
		}
		return true

	case reflect.Pointer:
		if ra.IsNil() || rb.IsNil() {
			return ra.IsNil() && rb.IsNil()
		}
		if c.entered(ida, idb) {
			return true
		}
		return c.equal(ra.Elem().Interface(), rb.Elem().Interface())

	case reflect.Struct:
		t := ra.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				// Opaque state without an adapter: compare whole values
				// by == when the type permits, otherwise unequal.
				if t.Comparable() {
					return a == b
				}
				return false
			}
		}
		for i := 0; i < t.NumField(); i++ {
			if !c.equal(ra.Field(i).Interface(), rb.Field(i).Interface()) {
				return false
			}
		}
		return true

	default:
		// Funcs, channels, unsafe pointers: identity only, which was
		// handled above.
		return false
	}
}

func (c *checker) equalSeq(ra, rb reflect.Value) bool {
	if ra.Len() != rb.Len() {
		return false
	}
	for i := 0; i < ra.Len(); i++ {
		if !c.equal(ra.Index(i).Interface(), rb.Index(i).Interface()) {
			return false
		}
	}
	return true
}

func (c *checker) equalByteArray(ra, rb reflect.Value) bool {
	for i := 0; i < ra.Len(); i++ {
		if ra.Index(i).Uint() != rb.Index(i).Uint() {
			return false
		}
	}
	return true
}

func isNaN(f float64) bool { return f != f }

type numKind int

const (
	numNone numKind = iota
	numInt
	numUint
	numFloat
)

// numClass classifies integer and float kinds; complex numbers and
// everything else are numNone.
func numClass(v any) numKind {
	switch reflect.TypeOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return numInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return numUint
	case reflect.Float32, reflect.Float64:
		return numFloat
	}
	return numNone
}

// equalNumeric compares numbers by value across kinds. Integer pairs
// compare exactly; as soon as a float is involved the comparison is in
// float64, with NaN equal to NaN.
func equalNumeric(a any, ka numKind, b any, kb numKind) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch {
	case ka == numInt && kb == numInt:
		return ra.Int() == rb.Int()
	case ka == numUint && kb == numUint:
		return ra.Uint() == rb.Uint()
	case ka == numInt && kb == numUint:
		return ra.Int() >= 0 && uint64(ra.Int()) == rb.Uint()
	case ka == numUint && kb == numInt:
		return rb.Int() >= 0 && uint64(rb.Int()) == ra.Uint()
	}
	fa, fb := toFloat(ra), toFloat(rb)
	if isNaN(fa) && isNaN(fb) {
		return true
	}
	return fa == fb
}

func toFloat(rv reflect.Value) float64 {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	default:
		return float64(rv.Int())
	}
}
