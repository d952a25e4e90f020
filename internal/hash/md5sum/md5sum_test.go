package md5sum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("https://example.com/favicon.ico"))
	require.NoError(t, err)
	require.Len(t, got, 32)

	again, err := h.Hash([]byte("https://example.com/favicon.ico"))
	require.NoError(t, err)
	require.Equal(t, got, again)

	other, err := h.Hash([]byte("https://other.example/favicon.ico"))
	require.NoError(t, err)
	require.NotEqual(t, got, other)
}

func TestHasherKnownDigest(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", got)
}
