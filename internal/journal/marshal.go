package journal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/restrictedstore/internal/model"
)

// marshalSnapshot converts a model state to canonical JSON TEXT and its
// fingerprint.
func marshalSnapshot(obj model.Object) (string, string, error) {
	data, err := model.MarshalCanonical(obj)
	if err != nil {
		return "", "", fmt.Errorf("marshal snapshot: %w", err)
	}
	fp, err := model.Fingerprint(obj)
	if err != nil {
		return "", "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), fp, nil
}

// marshalPatch converts change records to an RFC 6902 patch document.
// add and replace always carry a value, even when it is null.
func marshalPatch(records []model.Change) (string, error) {
	ops := make(model.Array, 0, len(records))
	for _, rec := range records {
		op := model.Object{"op": string(rec.Op), "path": rec.Path}
		if rec.Op != model.OpRemove {
			op["value"] = rec.Value
		}
		ops = append(ops, op)
	}
	data, err := model.MarshalCanonical(ops)
	if err != nil {
		return "", fmt.Errorf("marshal patch: %w", err)
	}
	return string(data), nil
}

// unmarshalObject parses JSON TEXT to a model.Object.
// Numbers decode as json.Number so values above 2^53 keep their precision.
func unmarshalObject(data []byte) (model.Object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj model.Object
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	if obj == nil {
		obj = model.Object{}
	}
	return obj, nil
}
