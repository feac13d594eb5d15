package model

import "math"

// Equal reports whether a and b are deep-equal model values.
//
// Containers compare structurally; scalars compare by dynamic type and
// value, so int(1) and float64(1) are different values. A nil Object and an
// empty Object are equal, as are a nil Array and an empty Array. NaN equals
// NaN of the same float type, so a model holding NaN compares equal to its
// own snapshot.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok || !Equal(x, y) {
				return false
			}
		}
		return true
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	if !isScalar(a) || !isScalar(b) {
		return false
	}
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok && math.IsNaN(av) && math.IsNaN(bv) {
			return true
		}
	case float32:
		if bv, ok := b.(float32); ok && math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
	}
	return a == b
}

// isScalar guards against == panicking on unsupported leaves.
func isScalar(v any) bool {
	k := KindOf(v)
	return k != KindUnsupported && k != KindObject && k != KindArray
}
