// Package weaktrie implements a prefix lookup structure keyed by
// sequences of arbitrary values, with weak holding of object keys.
//
// # Key model
//
// Every path element is either reference-like (pointers, maps, slices,
// chans, funcs - matched by identity) or primitive-like (everything
// comparable - matched by value). Reference keys are held weakly where
// the platform permits: when such a key becomes unreachable the entire
// subtrie below it is reclaimed. Keys of other reference kinds, and all
// keys of a Trie built with the Strong option, are held strongly with
// identical logical behavior.
//
// # Tails
//
// An unshared path suffix is stored flattened as a single tail record
// rather than a chain of single-child nodes. Tails are promoted into
// real nodes lazily, one key at a time, when a divergent path crosses
// them. This keeps tries built from long mostly-unique paths shallow in
// allocation count.
//
// # Payloads
//
// The trie is parameterized over its payload type. Payloads are created
// on first lookup by the makeData function given to New and are stable:
// looking up the same path always yields the same *D.
package weaktrie
