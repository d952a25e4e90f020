package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectAndGet(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	uri, err := s.PutObject(context.Background(), "icons/deadbeef.ico", "image/x-icon", []byte("icon-bytes"))
	require.NoError(t, err)
	require.Equal(t, "memory://icons/deadbeef.ico", uri)

	data, ok := s.Get("icons/deadbeef.ico")
	require.True(t, ok)
	require.Equal(t, []byte("icon-bytes"), data)
	require.Equal(t, 1, s.Len())
}

func TestPutObject_CopiesInput(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	buf := []byte("original")
	_, err := s.PutObject(context.Background(), "a", "", buf)
	require.NoError(t, err)

	buf[0] = 'X'
	data, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("original"), data)
}
