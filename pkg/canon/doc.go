// Package canon implements deep-structural canonicalization of object
// graphs.
//
// A Canon maintains a known set of frozen canonical references and a
// pool of traces - linearized fingerprints of values - interned through
// a weak trie. Admitting a value partitions the graph below it into
// strongly connected components, leaves first, scans each component
// into a trace, and either reuses the pooled canonical reference for
// that trace or materializes a fresh one through the type's registered
// hooks.
//
// # Handlers
//
// The hook registry (see Handlers) is keyed on runtime type. Types with
// no entry are opaque: Admit passes them through unchanged and never
// looks inside. Immutable-on-construction types register two-step hooks
// (deconstruct/reconstruct); types whose instances can appear in cycles
// must register three-step hooks (deconstruct/allocate/repair) so that
// an empty shell exists for back-references before the children are in
// place.
//
// # Contract
//
//   - Admit(Admit(x)) == Admit(x): admission is idempotent.
//   - deeply equal inputs admit to reference-identical outputs, provided
//     every participating type is handler-covered.
//   - the result is deeply equal to the input.
//   - inputs must not be reused after admission.
//
// # Cycles and symmetry
//
// Members of a cyclic component are traced with stable numeric
// back-references in place of in-component children already seen in the
// trace, so a ring of five
// nodes yields five rotated traces and five canonical nodes forming one
// canonical ring. Symmetric members (equal traces) converge onto a
// single canonical reference; the repair pass guards against filling
// the same reference twice.
package canon
