// Package store implements the reactive model store.
//
// A Store registers caller-owned models under string ids and reacts to
// their mutations: it hands out projections (independent deep copies),
// keeps mirrors (identity-stable copies synced in weak or strong mode),
// notifies observers once per change batch, and tracks a validity state
// per model driven by promises created against it.
//
// ARCHITECTURE:
//
// Single Logical Thread:
// A Store is owned by a loop.Loop. Every Store method, every observer
// callback and every promise continuation runs as a loop task, so the
// registry needs no locks. Callers outside the loop go through
// loop.Do. Models must be mutated from loop tasks as well.
//
// Change Flow:
//  1. Wrap subscribes the model to the feed
//  2. Mutations made during a turn are diffed at the end of that turn
//  3. The batch is recorded, then dispatched to observers in
//     registration order: mirrors are synced first, projections are built
//     fresh per observer
//  4. Change swaps the model and posts a notification behind all queued work
//
// Validity State:
//
//	valid|invalid --CreatePromise--> pending
//	pending --last promise of the streak fulfills--> valid
//	pending --any rejection--> invalid
//
// A rejection blocks the return to valid until the next CreatePromise
// starts a new streak.
package store
