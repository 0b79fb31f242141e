package compress

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ionmobility/uimf/format"
	"github.com/ionmobility/uimf/lzf"
	"github.com/ionmobility/uimf/rle"
)

// sparseScanPayload builds the RLE byte stream of a realistic sparse scan:
// a handful of isolated peaks separated by long zero runs, the shape a
// Frame_Scans.Intensities plaintext actually has.
func sparseScanPayload(t *testing.T) []byte {
	t.Helper()

	points := []rle.Point{
		{Bin: 105, Intensity: 12},
		{Bin: 106, Intensity: 840},
		{Bin: 107, Intensity: 33},
		{Bin: 5000, Intensity: 210},
		{Bin: 98000, Intensity: 7},
	}
	data, sum, err := rle.EncodeSparse(points, 0)
	require.NoError(t, err)
	require.Equal(t, 5, sum.NonZeroCount)

	return data
}

// binEntryPayload builds the flat (frame, scan, intensity) entry stream a
// bin-centric bin blob holds before compression: many entries sharing the
// same bin across consecutive frames, so the stream is highly repetitive.
func binEntryPayload() []byte {
	var out []byte
	buf := make([]byte, 12)
	for frame := int32(1); frame <= 200; frame++ {
		for _, scan := range []int32{17, 18} {
			binary.LittleEndian.PutUint32(buf[0:4], uint32(frame))
			binary.LittleEndian.PutUint32(buf[4:8], uint32(scan))
			binary.LittleEndian.PutUint32(buf[8:12], 100)
			out = append(out, buf...)
		}
	}
	return out
}

func TestLZFCompressor_RoundTripsScanPayload(t *testing.T) {
	payload := sparseScanPayload(t)
	codec := NewLZFCompressor()

	compressed, err := codec.Compress(payload)
	require.NoError(t, err)

	plain, err := codec.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

func TestLZFCompressor_InterchangeableWithFrameScansBlob(t *testing.T) {
	// A Bin_Intensities row written with the default codec must decode
	// with the same algorithm the writer uses for Frame_Scans.
	payload := sparseScanPayload(t)
	blob := lzf.NewCompressor().CompressAppend(payload)

	codec, err := GetCodec(format.CompressionLZF)
	require.NoError(t, err)

	plain, err := codec.Decompress(blob)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

func TestZstdCompressor_RoundTripsBinEntryStream(t *testing.T) {
	payload := binEntryPayload()
	codec := NewZstdCompressor()

	compressed, err := codec.Compress(payload)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload), "repetitive entry stream should shrink")

	plain, err := codec.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

func TestZstdCompressor_EmptyBlob(t *testing.T) {
	plain, err := NewZstdCompressor().Decompress(nil)
	require.NoError(t, err)
	assert.Nil(t, plain)
}

func TestZstdCompressor_RejectsForeignBlob(t *testing.T) {
	// An LZF-compressed blob is not a zstd frame; the decoder must refuse
	// it rather than return garbage entries.
	blob := lzf.NewCompressor().CompressAppend(sparseScanPayload(t))

	_, err := NewZstdCompressor().Decompress(blob)
	assert.Error(t, err)
}

func TestCreateCodec(t *testing.T) {
	tests := []struct {
		name  string
		cType format.CompressionType
		ok    bool
	}{
		{"LZF", format.CompressionLZF, true},
		{"Zstd", format.CompressionZstd, true},
		{"unknown", format.CompressionType(0x7f), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := CreateCodec(tt.cType, "bin-centric index")
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			payload := binEntryPayload()
			compressed, err := codec.Compress(payload)
			require.NoError(t, err)
			plain, err := codec.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, payload, plain)
		})
	}
}

func TestGetCodec_UnknownType(t *testing.T) {
	_, err := GetCodec(format.CompressionType(0x7f))
	assert.Error(t, err)
}
