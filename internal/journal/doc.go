// Package journal provides an SQLite change journal for the store.
//
// The journal is an audit trail, not a persistence layer: it records what
// the store saw (wraps, model swaps, change batches, validity transitions
// and unwraps) so a session can be inspected and replayed afterwards.
//
// Every event carries the sequence number the store stamped it with.
// Batches are stored as RFC 6902 JSON patches together with the
// fingerprint of the model state they produced, so Replay can rebuild a
// model from its wrap snapshot and verify every step.
//
// Payloads are canonical JSON (see model.MarshalCanonical), so two
// journals of the same run are byte-identical apart from the session id.
//
// By default a journal lives in memory (":memory:"); pass a file path to
// keep it.
package journal
