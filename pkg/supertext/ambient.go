package supertext

// Backend is the storage seam for the ambient "current Supertext" slot.
// The default is a plain swap cell matching the single-threaded
// cooperative model; hosts with their own context propagation (a
// scheduler-local, a fiber-local) substitute their implementation via
// SetBackend. A replacement backend must snapshot and restore its state
// across scheduling boundaries for ambient capture to stay coherent.
type Backend interface {
	// Current returns the ambient Supertext, never nil.
	Current() *Supertext

	// Swap installs st as the ambient Supertext and returns the previous
	// one.
	Swap(st *Supertext) *Supertext
}

type swapBackend struct {
	cur *Supertext
}

func (b *swapBackend) Current() *Supertext { return b.cur }

func (b *swapBackend) Swap(st *Supertext) *Supertext {
	old := b.cur
	b.cur = st
	return old
}

var backend Backend = &swapBackend{cur: Empty}

// SetBackend installs a replacement ambient storage backend. Call once,
// before any ambient activity; nil is ignored.
func SetBackend(b Backend) {
	if b != nil {
		backend = b
	}
}

// Current returns the ambient Supertext.
func Current() *Supertext {
	return backend.Current()
}

// Run calls fn with st as the ambient Supertext, restoring the previous
// one on exit, including panicking exits.
func (st *Supertext) Run(fn func()) {
	old := backend.Swap(st)
	defer backend.Swap(old)
	fn()
}

// Do is Run with a result.
func Do[R any](st *Supertext, fn func() R) R {
	old := backend.Swap(st)
	defer backend.Swap(old)
	return fn()
}

// Bind returns a wrapper that runs fn with Merge(st, Current()) active:
// the captured context resolves against whatever context the callback
// is eventually invoked in, with the invoker's writes winning ties the
// merge does not settle.
func (st *Supertext) Bind(fn func()) func() {
	return func() {
		Merge(st, Current()).Run(fn)
	}
}

// BindOnly returns a wrapper that runs fn with exactly st active,
// ignoring the caller's ambient context.
func (st *Supertext) BindOnly(fn func()) func() {
	return func() {
		st.Run(fn)
	}
}

// Bind captures the ambient Supertext now and binds fn to it.
func Bind(fn func()) func() {
	return Current().Bind(fn)
}
