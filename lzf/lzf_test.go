package lzf

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ionmobility/uimf/errs"
)

func TestRoundTrip_Empty(t *testing.T) {
	c := NewCompressor()
	compressed := c.CompressAppend(nil)
	got, err := DecompressAppend(compressed)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRoundTrip_Literals(t *testing.T) {
	c := NewCompressor()
	input := []byte("the quick brown fox jumps over the lazy dog")
	compressed := c.CompressAppend(input)
	got, err := DecompressAppend(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, got)
}

func TestRoundTrip_Repetitive(t *testing.T) {
	c := NewCompressor()
	input := bytes.Repeat([]byte("abcdefgh"), 500)
	compressed := c.CompressAppend(input)
	assert.Less(t, len(compressed), len(input))

	got, err := DecompressAppend(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, got)
}

func TestRoundTrip_Random(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, size := range []int{0, 1, 2, 3, 4, 17, 1000, 65536} {
		input := make([]byte, size)
		rng.Read(input)

		c := NewCompressor()
		compressed := c.CompressAppend(input)
		got, err := DecompressAppend(compressed)
		require.NoError(t, err)
		assert.Equal(t, input, got)
	}
}

func TestCompress_OutputTooSmall(t *testing.T) {
	c := NewCompressor()
	input := bytes.Repeat([]byte{1, 2, 3, 4}, 100)
	dst := make([]byte, 1)
	_, err := c.Compress(input, dst)
	assert.ErrorIs(t, err, errs.ErrOutputTooSmall)
}

func TestCompress_BufferGrowthDoubling(t *testing.T) {
	// A buffer sized at half the eventual requirement should still succeed
	// via CompressAppend's internal doubling retry loop.
	c := NewCompressor()
	input := make([]byte, 4096)
	rng := rand.New(rand.NewSource(7))
	rng.Read(input)

	compressed := c.CompressAppend(input)
	got, err := DecompressAppend(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, got)
}

func TestDecompress_BadBackref(t *testing.T) {
	// control byte 0xE0 signals a long backreference (its offset bits are
	// zero, so offset 1), but there is no prior output to reference.
	bogus := []byte{0xE0, 0x00, 0x00}
	_, err := Decompress(bogus, make([]byte, 16))
	assert.ErrorIs(t, err, errs.ErrLZFBadBackref)
}

func TestDecompress_Truncated(t *testing.T) {
	_, err := Decompress([]byte{5}, make([]byte, 16)) // claims 6 literal bytes, none follow
	assert.ErrorIs(t, err, errs.ErrLZFUnderflow)
}
