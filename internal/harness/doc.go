// Package harness runs scenario files against a live store.
//
// A scenario is a list of steps executed in order on one loop. Each step
// runs as its own loop turn, so mutations within a step coalesce into one
// change batch, just as synchronous mutations do for a real caller.
// Notifications, promise settlements and timers fire between steps; a
// drain step (and the end of the scenario) waits for all of them.
//
// # Scenario Format
//
// Scenarios are YAML (.yaml, .yml) or CUE (.cue) files:
//
//	name: weak_mirror_keeps_custom_keys
//	description: "Caller keys on a weak mirror survive syncs"
//	steps:
//	  - wrap: {id: m, model: {attr: 1}}
//	  - observe: {id: m, observer: o, mirror: weak}
//	  - mutate: {id: m, ops: [{op: set, path: /attr, value: 2}]}
//	  - mirror: {observer: o, ops: [{op: set, path: /custom, value: new}]}
//	  - drain: {}
//	  - assert: {expr: 'mirror("o").custom == "new" && mirror("o").attr == 2'}
//
// # Steps
//
//   - wrap, change, unwrap: registry operations
//   - observe, unobserve: observer registration; observers can run steps
//     from inside their own callback (on_notify)
//   - mutate: edit the live model (set, remove, append, link)
//   - mirror: edit an observer's mirror directly
//   - promise: create tracked promises, optionally chained
//   - drain: wait until no work is left
//   - assert: evaluate an expr-lang boolean expression
//
// Any step can set error to the code it is expected to fail with
// (DUPLICATE_ID, UNKNOWN_ID, INVALID_CALLBACK, UNSUPPORTED_VALUE).
//
// # Deterministic Traces
//
// The trace records notifications, promise events, expected errors and
// assertions in the order they happen. It contains no wall-clock data, so
// a scenario whose timers use distinct delays produces the same trace on
// every run and can be compared against a golden file.
//
// Every run records into an in-memory journal. After the last step each
// model still registered is replayed from the journal and its fingerprint
// compared with the live model.
package harness
