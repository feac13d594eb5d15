package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortedNoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(Object{
		"b":   Array{1, "<x>", nil},
		"a":   true,
		"num": 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":true,"b":[1,"<x>",null],"num":1.5}`, string(got))
}

func TestMarshalCanonical_NumbersNormalize(t *testing.T) {
	for _, v := range []any{1, int64(1), uint8(1), 1.0, float32(1), json.Number("1")} {
		got, err := MarshalCanonical(v)
		require.NoError(t, err)
		assert.Equal(t, "1", string(got), "%T", v)
	}

	_, err := MarshalCanonical(math.NaN())
	assert.Error(t, err)
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	got, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	got, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	// A literal backslash followed by u2028 stays escaped.
	got, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got))
}

func TestMarshalCanonical_Unsupported(t *testing.T) {
	_, err := MarshalCanonical(Object{"fn": func() {}})
	assert.True(t, IsUnsupported(err))
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint(Object{"x": 1, "y": Array{1.0}})
	require.NoError(t, err)
	b, err := Fingerprint(Object{"y": Array{json.Number("1")}, "x": int64(1)})
	require.NoError(t, err)
	c, err := Fingerprint(Object{"x": 2})
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSortedKeys(t *testing.T) {
	keys := SortedKeys(Object{"a": 1, "A": 2, "aa": 3, "Aa": 4, "AA": 5, "aA": 6})
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, keys)
}
