// Package model provides the value tree the store tracks.
//
// A model is a plain Go graph of Object (map[string]any), Array ([]any) and
// scalar leaves: nil, bool, string, the integer and float kinds, and
// json.Number. Everything else (functions, channels, structs, pointers) and
// cyclic graphs are rejected with UnsupportedValueError.
//
// This package imports nothing internal. It holds the pure algorithms of the
// store: deep copy (Clone), deep equality (Equal), structural diff (Diff),
// JSON-pointer mutation helpers, and canonical JSON for fingerprints.
package model
