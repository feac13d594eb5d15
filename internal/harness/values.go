package harness

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/restrictedstore/internal/model"
)

// toObject converts a decoded scenario mapping to a fresh model.Object.
// A missing mapping stays nil so the store can reject it.
func toObject(m map[string]any) model.Object {
	if m == nil {
		return nil
	}
	return toModel(m).(model.Object)
}

// toModel converts decoded YAML/JSON values to model values. JSON numbers
// (from CUE files) become int when integral, float64 otherwise. Containers
// are always copied, so two steps never share structure.
func toModel(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(model.Object, len(val))
		for k, e := range val {
			out[k] = toModel(e)
		}
		return out
	case []any:
		out := make(model.Array, len(val))
		for i, e := range val {
			out[i] = toModel(e)
		}
		return out
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}

// applyOps edits root in place.
func applyOps(root model.Object, ops []Op) error {
	for i, op := range ops {
		var err error
		switch op.Op {
		case OpSet:
			err = model.Set(root, op.Path, toModel(op.Value))
		case OpRemove:
			err = model.Remove(root, op.Path)
		case OpAppend:
			err = model.Append(root, op.Path, toModel(op.Value))
		case OpLink:
			target, ok := model.Get(root, op.From)
			if !ok {
				err = fmt.Errorf("link source %q not found", op.From)
				break
			}
			err = model.Set(root, op.Path, target)
		default:
			err = fmt.Errorf("unknown op %q", op.Op)
		}
		if err != nil {
			return fmt.Errorf("ops[%d] %s %s: %w", i, op.Op, op.Path, err)
		}
	}
	return nil
}
