package supertext

// slot is the untyped face of a *Subtext[T], letting one Supertext hold
// subtexts of different value types. Only this package implements it.
type slot interface {
	foldValues(vals []any) any
	guardValue(v any) any
}

// Subtext is a typed slot identity: a default value plus optional merge
// and guard behavior. Distinct Subtext instances are distinct slots even
// when their defaults coincide.
type Subtext[T any] struct {
	def   T
	merge func(older, newer T) T
	guard func(T) T
}

// SubtextOption configures a Subtext.
type SubtextOption[T any] func(*Subtext[T])

// WithMerge sets the conflict resolution used when a read collects more
// than one distinct value: the collected values are folded left to
// right, oldest first. Without a merge the rightmost value wins.
func WithMerge[T any](fn func(older, newer T) T) SubtextOption[T] {
	return func(s *Subtext[T]) { s.merge = fn }
}

// WithGuard sets a normalization applied to every value written through
// With before it is stored.
func WithGuard[T any](fn func(T) T) SubtextOption[T] {
	return func(s *Subtext[T]) { s.guard = fn }
}

// NewSubtext creates a slot with the given default.
func NewSubtext[T any](def T, opts ...SubtextOption[T]) *Subtext[T] {
	s := &Subtext[T]{def: def}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Default returns the slot's default value.
func (s *Subtext[T]) Default() T { return s.def }

// Get reads the slot on st, falling back to the default when no branch
// along st wrote it. Reads are referentially transparent: the same
// Supertext yields the same value forever.
func (s *Subtext[T]) Get(st *Supertext) T {
	v, ok := st.read(s)
	if !ok {
		return s.def
	}
	return v.(T)
}

// GetCurrent reads the slot on the ambient Supertext.
func (s *Subtext[T]) GetCurrent() T {
	return s.Get(Current())
}

// With prepares a guarded write of v for Branch.
func (s *Subtext[T]) With(v T) Binding {
	return Binding{slot: s, value: s.guardValue(v)}
}

func (s *Subtext[T]) foldValues(vals []any) any {
	acc := vals[0].(T)
	for _, v := range vals[1:] {
		next := v.(T)
		if s.merge != nil {
			acc = s.merge(acc, next)
		} else {
			acc = next
		}
	}
	return acc
}

func (s *Subtext[T]) guardValue(v any) any {
	if s.guard != nil {
		return s.guard(v.(T))
	}
	return v
}

// Binding is one (subtext, value) write carried into Branch.
type Binding struct {
	slot  slot
	value any
}
