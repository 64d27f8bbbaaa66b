package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	B []byte `cbor:"b"`
	A string `cbor:"a"`
	N int64  `cbor:"n"`
}

func TestMarshal_Deterministic(t *testing.T) {
	v := sample{A: "x", B: []byte{1, 2}, N: -3}
	first, err := Marshal(v)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// Ключи отсортированы: "a" раньше "b".
	diag, err := Diagnose(first)
	require.NoError(t, err)
	assert.Less(t, strings.Index(diag, `"a"`), strings.Index(diag, `"b"`))
}

func TestUnmarshal_Strict(t *testing.T) {
	extra, err := Marshal(map[string]any{"a": "x", "zzz": 1})
	require.NoError(t, err)

	var s sample
	assert.Error(t, Unmarshal(extra, &s), "unknown field must be rejected")

	good, err := Marshal(sample{A: "ok"})
	require.NoError(t, err)
	assert.Error(t, Unmarshal(append(good, 0x00), &s), "trailing bytes must be rejected")

	require.NoError(t, Unmarshal(good, &s))
	assert.Equal(t, "ok", s.A)
}
