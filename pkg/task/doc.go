// Package task implements a promise-shaped settlement primitive with a
// synchronous fast path and ambient context capture.
//
// # States and delivery
//
// A Task moves Unsettled -> Settling -> Resolved | Rejected. The first
// resolve or reject wins; resolving with another task adopts its
// eventual outcome through the Settling state. Then on a settled task
// invokes its continuation before Then returns - required behavior, not
// an optimization - while Then on a pending task fires during
// settlement in registration order.
//
// # Context
//
// Every task captures the ambient Supertext at construction and runs
// its executor and continuations under it. The task Context chain
// (parent links, uuid identifiers) exists for diagnostics and never
// retains task objects.
//
// # Scheduling
//
// The package is single-threaded cooperative. Loop is the scheduler
// seam: turns are posted bound to their ambient context, timers enqueue
// through bind semantics, and the owner drains. Await and Done are the
// only bridges to other goroutines.
package task
