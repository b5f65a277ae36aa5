// Package deepeq implements cycle-tolerant structural equality over
// arbitrary values.
//
// The comparison dispatches on runtime kind: sequences pairwise, maps by
// key set, errors by type and message, numbers by value across integer
// and float kinds with NaN equal to NaN. Types can supply their own
// structural equality through the DeepEqualer interface; the adapter is
// consulted on both implementing sides so the relation stays symmetric.
//
// Cyclic and shared structure is handled with an in-progress pair cache:
// re-encountering a comparison that is still underway answers true
// provisionally, and the answer stands unless the rest of the traversal
// contradicts it. Pair caches are pooled across calls.
package deepeq
