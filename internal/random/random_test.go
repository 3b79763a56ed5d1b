package random

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestSecure_OpaqueToken(t *testing.T) {
	src := NewSecure()

	t.Run("encodes requested entropy", func(t *testing.T) {
		token, err := src.OpaqueToken(32)

		require.NoError(t, err)
		assert.Len(t, token, 43)
		assert.NotContains(t, token, "=")
	})

	t.Run("tokens differ", func(t *testing.T) {
		a, err := src.OpaqueToken(32)
		require.NoError(t, err)
		b, err := src.OpaqueToken(32)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("rejects less than 128 bits", func(t *testing.T) {
		_, err := src.OpaqueToken(8)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 16 bytes")
	})

	t.Run("propagates reader failure", func(t *testing.T) {
		_, err := NewSecureFrom(failingReader{}).OpaqueToken(32)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "entropy exhausted")
	})
}

func TestSecure_String(t *testing.T) {
	src := NewSecure()

	t.Run("draws from alphabet", func(t *testing.T) {
		s, err := src.String(64, LowerAlphanumeric)

		require.NoError(t, err)
		assert.Len(t, s, 64)
		for _, c := range s {
			assert.True(t, strings.ContainsRune(LowerAlphanumeric, c), "unexpected character %q", c)
		}
	})

	t.Run("deterministic reader", func(t *testing.T) {
		s, err := NewSecureFrom(bytes.NewReader(make([]byte, 64))).String(4, "ab")

		require.NoError(t, err)
		assert.Equal(t, "aaaa", s)
	})

	t.Run("empty alphabet", func(t *testing.T) {
		_, err := src.String(4, "")

		assert.Error(t, err)
	})

	t.Run("propagates reader failure", func(t *testing.T) {
		_, err := NewSecureFrom(failingReader{}).String(4, LowerAlphanumeric)

		assert.Error(t, err)
	})
}
