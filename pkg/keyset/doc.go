// Package keyset implements a map keyed by unordered sets of arbitrary
// values.
//
// Entries are found by intersecting per-key reverse indices that are
// additionally partitioned by set size, starting from the smallest
// bucket; interning guarantees at most one entry can survive the
// intersection. The empty set has a dedicated slot.
//
// Reference-like keys are matched by identity and, where the platform
// permits, held weakly: when any object key of an entry is garbage
// collected the entry is purged from every index. Maps built with the
// Strong option keep all keys alive instead, with identical logical
// behavior.
package keyset
