package model

import "strconv"

// Op is the kind of a structural change. The names match RFC 6902
// operations so a diff can be replayed as a JSON patch.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Change is one structural difference between two model states.
// Value is the new value for add and replace and is nil for remove; it
// references the "after" graph and must be cloned before being kept.
type Change struct {
	Path  string `json:"path"`
	Op    Op     `json:"op"`
	Value any    `json:"value,omitempty"`
}

// Diff returns the changes that turn before into after.
//
// Object keys are visited in SortedKeys order, removals first. Arrays
// compare index by index; growth appends with add at increasing indices and
// shrinkage removes from the highest index down, so the output applies
// cleanly in order.
func Diff(before, after Object) []Change {
	var out []Change
	diffObject(before, after, nil, &out)
	return out
}

func diffValue(before, after any, path []string, out *[]Change) {
	switch a := after.(type) {
	case Object:
		if b, ok := before.(Object); ok {
			diffObject(b, a, path, out)
			return
		}
	case Array:
		if b, ok := before.(Array); ok {
			diffArray(b, a, path, out)
			return
		}
	}
	if !Equal(before, after) {
		*out = append(*out, Change{Path: FormatPointer(path), Op: OpReplace, Value: after})
	}
}

func diffObject(before, after Object, path []string, out *[]Change) {
	for _, k := range SortedKeys(before) {
		if _, ok := after[k]; !ok {
			*out = append(*out, Change{Path: FormatPointer(append(path, k)), Op: OpRemove})
		}
	}
	for _, k := range SortedKeys(after) {
		b, ok := before[k]
		if !ok {
			*out = append(*out, Change{Path: FormatPointer(append(path, k)), Op: OpAdd, Value: after[k]})
			continue
		}
		diffValue(b, after[k], append(path, k), out)
	}
}

func diffArray(before, after Array, path []string, out *[]Change) {
	common := min(len(before), len(after))
	for i := 0; i < common; i++ {
		diffValue(before[i], after[i], append(path, strconv.Itoa(i)), out)
	}
	for i := common; i < len(after); i++ {
		*out = append(*out, Change{Path: FormatPointer(append(path, strconv.Itoa(i))), Op: OpAdd, Value: after[i]})
	}
	for i := len(before) - 1; i >= common; i-- {
		*out = append(*out, Change{Path: FormatPointer(append(path, strconv.Itoa(i))), Op: OpRemove})
	}
}
