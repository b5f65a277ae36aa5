// Package supertext implements an immutable DAG-shaped contextual-value
// store with scoped activation.
//
// A Subtext is a typed slot with a default value and optional merge and
// guard behavior. A Supertext is an immutable context node: a frozen
// parent list plus local slot writes. Branch grows the DAG downward with
// new writes; Merge joins contexts and is interned, so equal parent
// sequences yield the same node. Reading a slot folds the non-missing
// values of the parents through the slot's merge (rightmost wins by
// default) and caches the answer; since nodes are immutable, a read on
// a given node returns the same value forever.
//
// The ambient "current" Supertext lives behind a pluggable Backend.
// Run/Do activate a context for a callback; Bind captures a context so
// a callback invoked later, under some other context, runs under the
// merge of both.
//
// Everything here follows the module's single-owner model: the merge
// interner and the ambient slot assume one in-flight mutator.
package supertext
