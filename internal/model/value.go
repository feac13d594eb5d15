package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"unicode/utf16"
)

// Object is a mapping node. It is an alias so plain map literals can be
// wrapped without conversion.
type Object = map[string]any

// Array is a sequence node.
type Array = []any

// Kind classifies a value in a model graph.
type Kind int

const (
	KindUnsupported Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unsupported"
	}
}

// KindOf reports the kind of v.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case string:
		return KindString
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return KindNumber
	case Array:
		return KindArray
	case Object:
		return KindObject
	default:
		return KindUnsupported
	}
}

// IsContainer reports whether v is an Object or an Array.
func IsContainer(v any) bool {
	k := KindOf(v)
	return k == KindObject || k == KindArray
}

// UnsupportedValueError reports a value the deep-copy algorithm cannot
// represent. Path is a JSON pointer to the offending node.
type UnsupportedValueError struct {
	Path  string
	Type  string
	Cycle bool
}

func (e *UnsupportedValueError) Error() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	if e.Cycle {
		return fmt.Sprintf("UNSUPPORTED_VALUE: cyclic reference at %s", path)
	}
	return fmt.Sprintf("UNSUPPORTED_VALUE: %s at %s", e.Type, path)
}

// IsUnsupported returns true if err is, or wraps, an UnsupportedValueError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedValueError
	return errors.As(err, &ue)
}

func unsupported(path []string, v any) *UnsupportedValueError {
	typ := "<nil>"
	if v != nil {
		typ = reflect.TypeOf(v).String()
	}
	return &UnsupportedValueError{Path: FormatPointer(path), Type: typ}
}

// SortedKeys returns the keys of obj in RFC 8785 order (UTF-16 code units).
// Diff output and canonical JSON both iterate in this order.
func SortedKeys(obj Object) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
// Go's string comparison is by UTF-8 bytes, which orders differently for
// characters outside the BMP.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
