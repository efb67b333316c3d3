package random

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stream(values ...uint64) *bytes.Reader {
	buf := make([]byte, 0, 8*len(values))
	for _, v := range values {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	return bytes.NewReader(buf)
}

func TestSecureSource_Intn(t *testing.T) {
	t.Run("reduces accepted values modulo n", func(t *testing.T) {
		src := NewSource(stream(7, 12))
		v, err := src.Intn(5)
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		v, err = src.Intn(5)
		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("rejects values below the bias threshold", func(t *testing.T) {
		// 2^64 mod 5 == 1, so a raw 0 must be discarded.
		src := NewSource(stream(0, 9))
		v, err := src.Intn(5)
		require.NoError(t, err)
		assert.Equal(t, 4, v)
	})

	t.Run("power of two bounds never reject", func(t *testing.T) {
		src := NewSource(stream(0))
		v, err := src.Intn(8)
		require.NoError(t, err)
		assert.Equal(t, 0, v)
	})

	t.Run("bound of one consumes no entropy", func(t *testing.T) {
		src := NewSource(stream())
		v, err := src.Intn(1)
		require.NoError(t, err)
		assert.Equal(t, 0, v)
	})

	t.Run("non-positive bound", func(t *testing.T) {
		_, err := NewSecureSource().Intn(0)
		assert.ErrorIs(t, err, ErrInvalidBound)
	})

	t.Run("exhausted stream surfaces an error", func(t *testing.T) {
		_, err := NewSource(stream()).Intn(10)
		assert.Error(t, err)
	})

	t.Run("crypto source stays in range", func(t *testing.T) {
		src := NewSecureSource()
		seen := make(map[int]bool)
		for i := 0; i < 2000; i++ {
			v, err := src.Intn(3)
			require.NoError(t, err)
			require.GreaterOrEqual(t, v, 0)
			require.Less(t, v, 3)
			seen[v] = true
		}
		assert.Len(t, seen, 3)
	})
}

func TestTicketNumbers(t *testing.T) {
	// 2^64 mod 10^10 == 3709551616; both raw values are above it.
	gen, err := NewTicketNumbers(NewSource(stream(10_000_000_042, 19_999_999_999)), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, gen.Width())

	n, err := gen.Next()
	require.NoError(t, err)
	assert.Equal(t, "0000000042", n)

	n, err = gen.Next()
	require.NoError(t, err)
	assert.Equal(t, "9999999999", n)

	_, err = NewTicketNumbers(NewSecureSource(), 0)
	assert.Error(t, err)
	_, err = NewTicketNumbers(NewSecureSource(), MaxNumberWidth+1)
	assert.Error(t, err)
}
