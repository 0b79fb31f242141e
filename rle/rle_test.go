package rle

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ionmobility/uimf/errs"
)

func TestEncodeSparse_RoundTrip(t *testing.T) {
	points := []Point{
		{Bin: 10, Intensity: 5},
		{Bin: 12, Intensity: 7},
		{Bin: 15, Intensity: 3},
	}

	data, sum, err := EncodeSparse(points, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.NonZeroCount)
	assert.EqualValues(t, 15, sum.TIC)
	assert.EqualValues(t, 7, sum.BPI)
	assert.EqualValues(t, 12, sum.BPIBin)

	got, gotSum, err := DecodeAll(data, 0)
	require.NoError(t, err)
	assert.Equal(t, points, got)
	assert.Equal(t, sum, gotSum)
}

func TestEncodeSparse_SingleBinZero(t *testing.T) {
	// boundary: a single (bin=0, intensity=I, time_offset=0) map
	data, sum, err := EncodeSparse([]Point{{Bin: 0, Intensity: 42}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.NonZeroCount)

	got, _, err := DecodeAll(data, 0)
	require.NoError(t, err)
	assert.Equal(t, []Point{{Bin: 0, Intensity: 42}}, got)
}

func TestEncodeSparse_FirstWordEncodesTimeOffsetAndFirstBin(t *testing.T) {
	data, _, err := EncodeSparse([]Point{{Bin: 5, Intensity: 100}}, 7)
	require.NoError(t, err)

	// first word must be -(timeOffset + firstBin) = -(7+5) = -12
	assert.EqualValues(t, -12, int32(binary.LittleEndian.Uint32(data[0:4])))
	got, _, err := DecodeAll(data, 7)
	require.NoError(t, err)
	assert.Equal(t, []Point{{Bin: 5, Intensity: 100}}, got)
}

func TestEncodeSparse_NonContiguousSkip(t *testing.T) {
	points := []Point{
		{Bin: 5, Intensity: 100},
		{Bin: 5000, Intensity: 200},
		{Bin: 5001, Intensity: 50},
	}

	data, sum, err := EncodeSparse(points, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.NonZeroCount)

	got, _, err := DecodeAll(data, 0)
	require.NoError(t, err)
	assert.Equal(t, points, got)
}

func TestEncodeSparse_RejectsNonIncreasingBins(t *testing.T) {
	_, _, err := EncodeSparse([]Point{{Bin: 5, Intensity: 1}, {Bin: 5, Intensity: 2}}, 0)
	assert.ErrorIs(t, err, errs.ErrNonIncreasingBins)
}

func TestEncodeSparse_RejectsZeroIntensity(t *testing.T) {
	_, _, err := EncodeSparse([]Point{{Bin: 5, Intensity: 0}}, 0)
	assert.ErrorIs(t, err, errs.ErrZeroIntensity)
}

func TestDecode_EmptyBlob(t *testing.T) {
	points, sum, err := DecodeAll(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Equal(t, 0, sum.NonZeroCount)
}

func TestEncodeDense_RoundTrip(t *testing.T) {
	dense := make([]int32, 20)
	dense[10] = 5
	dense[12] = 7
	dense[15] = 3

	data, sum, err := EncodeDense(dense)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.NonZeroCount)
	assert.EqualValues(t, 15, sum.TIC)
	assert.EqualValues(t, 7, sum.BPI)

	got, _, err := DecodeAll(data, 0)
	require.NoError(t, err)
	assert.Equal(t, []Point{{10, 5}, {12, 7}, {15, 3}}, got)
}

func TestEncodeDenseInt16_DiscardsTrailingZeros(t *testing.T) {
	dense := []int16{0, 0, 4, 0, 9, 0, 0, 0}
	data, sum, err := EncodeDenseInt16(dense)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.NonZeroCount)

	got, _, err := DecodeAll(data, 0)
	require.NoError(t, err)
	assert.Equal(t, []Point{{2, 4}, {4, 9}}, got)
}

func TestDecode_RejectsTruncatedStream(t *testing.T) {
	_, _, err := DecodeAll([]byte{1, 2, 3}, 0)
	assert.ErrorIs(t, err, errs.ErrRLETruncated)
}
