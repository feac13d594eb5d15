package store

import (
	"github.com/roach88/restrictedstore/internal/model"
)

// syncStrong overwrites mirror in place so that it equals current.
// Containers present on both sides at the same path keep their identity.
func syncStrong(mirror, current model.Object) error {
	for k := range mirror {
		if _, ok := current[k]; !ok {
			delete(mirror, k)
		}
	}
	for _, k := range model.SortedKeys(current) {
		v, err := strongValue(mirror[k], current[k])
		if err != nil {
			return err
		}
		mirror[k] = v
	}
	return nil
}

func strongValue(dst, src any) (any, error) {
	switch s := src.(type) {
	case model.Object:
		if d, ok := dst.(model.Object); ok && d != nil {
			return d, syncStrong(d, s)
		}
	case model.Array:
		if d, ok := dst.(model.Array); ok {
			if len(d) > len(s) {
				clear(d[len(s):])
				d = d[:len(s)]
			}
			for i, sv := range s {
				if i < len(d) {
					v, err := strongValue(d[i], sv)
					if err != nil {
						return nil, err
					}
					d[i] = v
					continue
				}
				v, err := model.CloneValue(sv)
				if err != nil {
					return nil, err
				}
				d = append(d, v)
			}
			if d == nil {
				d = model.Array{}
			}
			return d, nil
		}
	}
	return model.CloneValue(src)
}

// syncWeak merges current into mirror. Only keys whose value in current
// differs from base are written; nothing is ever deleted from mirror.
// Keys and array elements added to mirror by the caller survive.
func syncWeak(mirror, base, current model.Object) error {
	for _, k := range model.SortedKeys(current) {
		cv := current[k]
		bv, inBase := base[k]
		if inBase && model.Equal(bv, cv) {
			continue
		}
		v, err := weakValue(mirror[k], bv, cv)
		if err != nil {
			return err
		}
		mirror[k] = v
	}
	return nil
}

func weakValue(dst, base, src any) (any, error) {
	switch s := src.(type) {
	case model.Object:
		if d, ok := dst.(model.Object); ok && d != nil {
			b, _ := base.(model.Object)
			return d, syncWeak(d, b, s)
		}
	case model.Array:
		if d, ok := dst.(model.Array); ok {
			b, _ := base.(model.Array)
			return weakArray(d, b, s)
		}
	}
	return model.CloneValue(src)
}

// weakArray merges src into dst by index. The first len(base) elements of
// dst track the model; anything past that was appended by the caller and is
// kept at the end, after elements the model gained.
func weakArray(dst, base, src model.Array) (model.Array, error) {
	tracked := min(len(base), len(dst))
	extras := append(model.Array(nil), dst[tracked:]...)
	out := dst[:tracked]

	for i, sv := range src {
		if i < tracked {
			if model.Equal(base[i], sv) {
				continue
			}
			v, err := weakValue(out[i], base[i], sv)
			if err != nil {
				return nil, err
			}
			out[i] = v
			continue
		}
		v, err := model.CloneValue(sv)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	out = append(out, extras...)
	if out == nil {
		out = model.Array{}
	}
	return out, nil
}
