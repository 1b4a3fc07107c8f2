package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestStringDeterministic(t *testing.T) {
	h := NewSHA256()
	assert.Equal(t, h.DigestString("wallet-1"), h.DigestString("wallet-1"))
	assert.NotEqual(t, h.DigestString("wallet-1"), h.DigestString("wallet-2"))
	assert.False(t, h.DigestString("").IsZero(), "empty input still hashes to a non-zero digest")
}

func TestDigestFieldsKeyOrderIndependent(t *testing.T) {
	h := NewSHA256()

	a, err := h.DigestFields(map[string]any{"wallet_id": "w1", "amount": 100})
	require.NoError(t, err)
	b, err := h.DigestFields(map[string]any{"amount": 100, "wallet_id": "w1"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"b": 2, "a": "x", "c": true})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":2,"c":true}`, string(got))
}

func TestChainExtendsPreviousHash(t *testing.T) {
	h := NewSHA256()
	first := h.Chain(h.DigestString("genesis"), []byte("entry-1"))
	second := h.Chain(first, []byte("entry-2"))

	assert.NotEqual(t, first, second)
	// Same inputs reproduce the same link.
	assert.Equal(t, second, h.Chain(first, []byte("entry-2")))
	// A different predecessor breaks the link.
	assert.NotEqual(t, second, h.Chain(h.DigestString("other"), []byte("entry-2")))
}
