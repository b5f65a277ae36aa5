// Package pkg provides the core libraries of skein: memory-conscious
// building blocks for canonicalization and contextual propagation of
// values within a single process.
//
// # Overview
//
// The engines layer on each other, leaves first:
//
//  1. [weaktrie] - path-addressed lookup with weakly held object keys
//  2. [tuple] - interned immutable sequences built over the trie
//  3. [deepeq] - cycle-tolerant structural equality
//  4. [canon] - deep-structural canonicalization of object graphs
//  5. [keyset] - data indexed by unordered key sets
//  6. [supertext] - an immutable DAG of contextual values
//  7. [task] - a settlement primitive with ambient context capture
//
// Cross-cutting concerns live in [errors] (structured error codes) and
// [observability] (hooks with a bundled logging backend).
//
// # Concurrency model
//
// Everything here is single-threaded cooperative: each engine assumes
// at most one in-flight mutator and provides no internal locking beyond
// what its background reclamation queues need. Independent instances
// can be owned by independent goroutines.
//
// # Quick Start
//
// Collapse deeply equal structures to shared references:
//
//	import "github.com/skeinworks/skein/pkg/canon"
//
//	c := canon.New()
//	a := c.MustAdmit(map[string]any{"k": []any{1, 2}})
//	b := c.MustAdmit(map[string]any{"k": []any{1, 2}})
//	// a and b are the same reference
//
// Propagate contextual values through callbacks:
//
//	import "github.com/skeinworks/skein/pkg/supertext"
//
//	tenant := supertext.NewSubtext("public")
//	ctx := supertext.Empty.Branch(tenant.With("acme"))
//	ctx.Run(func() { _ = tenant.GetCurrent() /* "acme" */ })
package pkg
