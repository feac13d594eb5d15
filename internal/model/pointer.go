package model

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatPointer renders path tokens as an RFC 6901 JSON pointer.
// The empty path is the root and renders as "".
func FormatPointer(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte('/')
		t = strings.ReplaceAll(t, "~", "~0")
		t = strings.ReplaceAll(t, "/", "~1")
		b.WriteString(t)
	}
	return b.String()
}

// ParsePointer splits an RFC 6901 JSON pointer into unescaped tokens.
func ParsePointer(ptr string) ([]string, error) {
	if ptr == "" {
		return nil, nil
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil, fmt.Errorf("json pointer %q must start with '/'", ptr)
	}
	parts := strings.Split(ptr[1:], "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return parts, nil
}

// Get returns the value at ptr.
func Get(obj Object, ptr string) (any, bool) {
	tokens, err := ParsePointer(ptr)
	if err != nil {
		return nil, false
	}
	var cur any = obj
	for _, t := range tokens {
		switch c := cur.(type) {
		case Object:
			v, ok := c[t]
			if !ok {
				return nil, false
			}
			cur = v
		case Array:
			i, err := strconv.Atoi(t)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at ptr, mutating obj in place. Intermediate containers
// must exist. On an array, the token "-" or an index equal to the length
// appends. Setting the root is not allowed; replace the model instead.
func Set(obj Object, ptr string, value any) error {
	tokens, err := ParsePointer(ptr)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("cannot set the root of a model")
	}
	_, err = setIn(obj, tokens, value, ptr)
	return err
}

// Remove deletes the node at ptr, mutating obj in place. Removing an array
// element shifts the following elements down.
func Remove(obj Object, ptr string) error {
	tokens, err := ParsePointer(ptr)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return fmt.Errorf("cannot remove the root of a model")
	}
	_, err = removeIn(obj, tokens, ptr)
	return err
}

// Append pushes value onto the array at ptr.
func Append(obj Object, ptr string, value any) error {
	return Set(obj, ptr+"/-", value)
}

// setIn returns the container after the update. Arrays may be reallocated
// by append, so parents store the returned slice back.
func setIn(container any, tokens []string, value any, ptr string) (any, error) {
	t := tokens[0]
	last := len(tokens) == 1
	switch c := container.(type) {
	case Object:
		if last {
			c[t] = value
			return c, nil
		}
		child, ok := c[t]
		if !ok {
			return nil, fmt.Errorf("%s: no value at %q", ptr, t)
		}
		updated, err := setIn(child, tokens[1:], value, ptr)
		if err != nil {
			return nil, err
		}
		c[t] = updated
		return c, nil
	case Array:
		i, err := arrayIndex(t, len(c), true, ptr)
		if err != nil {
			return nil, err
		}
		if last {
			if i == len(c) {
				return append(c, value), nil
			}
			c[i] = value
			return c, nil
		}
		if i == len(c) {
			return nil, fmt.Errorf("%s: index %q out of range", ptr, t)
		}
		updated, err := setIn(c[i], tokens[1:], value, ptr)
		if err != nil {
			return nil, err
		}
		c[i] = updated
		return c, nil
	default:
		return nil, fmt.Errorf("%s: cannot descend into %s", ptr, KindOf(container))
	}
}

func removeIn(container any, tokens []string, ptr string) (any, error) {
	t := tokens[0]
	last := len(tokens) == 1
	switch c := container.(type) {
	case Object:
		if last {
			if _, ok := c[t]; !ok {
				return nil, fmt.Errorf("%s: no value at %q", ptr, t)
			}
			delete(c, t)
			return c, nil
		}
		child, ok := c[t]
		if !ok {
			return nil, fmt.Errorf("%s: no value at %q", ptr, t)
		}
		updated, err := removeIn(child, tokens[1:], ptr)
		if err != nil {
			return nil, err
		}
		c[t] = updated
		return c, nil
	case Array:
		i, err := arrayIndex(t, len(c), false, ptr)
		if err != nil {
			return nil, err
		}
		if last {
			return append(c[:i], c[i+1:]...), nil
		}
		updated, err := removeIn(c[i], tokens[1:], ptr)
		if err != nil {
			return nil, err
		}
		c[i] = updated
		return c, nil
	default:
		return nil, fmt.Errorf("%s: cannot descend into %s", ptr, KindOf(container))
	}
}

func arrayIndex(t string, n int, allowEnd bool, ptr string) (int, error) {
	if t == "-" {
		if !allowEnd {
			return 0, fmt.Errorf("%s: '-' is only valid when adding", ptr)
		}
		return n, nil
	}
	i, err := strconv.Atoi(t)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%s: invalid array index %q", ptr, t)
	}
	if i > n || (i == n && !allowEnd) {
		return 0, fmt.Errorf("%s: index %d out of range", ptr, i)
	}
	return i, nil
}
