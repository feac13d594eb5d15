package model

import (
	"reflect"
	"strconv"
)

// Clone returns an independent deep copy of obj. The result shares no
// mutable structure with obj. A nil obj clones to an empty Object.
//
// Clone fails with UnsupportedValueError on functions, channels, structs,
// pointers and cyclic references. Shared but acyclic sub-structure is
// copied once per occurrence.
func Clone(obj Object) (Object, error) {
	c := cloner{active: make(map[container]struct{})}
	out, err := c.object(obj, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CloneValue is Clone for an arbitrary node.
func CloneValue(v any) (any, error) {
	c := cloner{active: make(map[container]struct{})}
	return c.value(v, nil)
}

// MustClone is like Clone but panics on error.
// Use only in tests or when obj is known to be valid.
func MustClone(obj Object) Object {
	out, err := Clone(obj)
	if err != nil {
		panic(err)
	}
	return out
}

// Validate reports whether obj could be cloned, without keeping the copy.
func Validate(obj Object) error {
	_, err := Clone(obj)
	return err
}

// cloner tracks the containers on the current path so that a container
// reachable from itself is reported instead of recursing forever.
type cloner struct {
	active map[container]struct{}
}

// container identifies an Object by its map pointer or an Array by its data
// pointer and length. A sub-slice sharing its parent's backing array is a
// different container: it holds fewer elements.
type container struct {
	ptr uintptr
	n   int
}

func (c *cloner) value(v any, path []string) (any, error) {
	switch val := v.(type) {
	case Object:
		return c.object(val, path)
	case Array:
		return c.array(val, path)
	}
	if KindOf(v) == KindUnsupported {
		return nil, unsupported(path, v)
	}
	// Scalars are immutable values.
	return v, nil
}

func (c *cloner) object(obj Object, path []string) (Object, error) {
	if obj == nil {
		return Object{}, nil
	}
	key := container{ptr: reflect.ValueOf(obj).Pointer(), n: -1}
	if _, seen := c.active[key]; seen {
		return nil, &UnsupportedValueError{Path: FormatPointer(path), Type: "map[string]interface {}", Cycle: true}
	}
	c.active[key] = struct{}{}
	defer delete(c.active, key)

	out := make(Object, len(obj))
	for k, v := range obj {
		cv, err := c.value(v, append(path, k))
		if err != nil {
			return nil, err
		}
		out[k] = cv
	}
	return out, nil
}

func (c *cloner) array(arr Array, path []string) (Array, error) {
	if arr == nil {
		return nil, nil
	}
	// A zero-length slice cannot contain itself; its data pointer may
	// also be shared with unrelated empty slices.
	if len(arr) > 0 {
		key := container{ptr: reflect.ValueOf(arr).Pointer(), n: len(arr)}
		if _, seen := c.active[key]; seen {
			return nil, &UnsupportedValueError{Path: FormatPointer(path), Type: "[]interface {}", Cycle: true}
		}
		c.active[key] = struct{}{}
		defer delete(c.active, key)
	}

	out := make(Array, len(arr))
	for i, v := range arr {
		cv, err := c.value(v, append(path, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}
