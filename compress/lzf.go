package compress

import "github.com/ionmobility/uimf/lzf"

// LZFCompressor wraps package lzf as a Codec, so bincentric's default
// codec is interchangeable with the Zstd alternate through the same
// interface, and a default-codec Bin_Intensities blob uses the same
// algorithm as Frame_Scans.Intensities.
type LZFCompressor struct{}

var _ Codec = (*LZFCompressor)(nil)

// NewLZFCompressor creates a new LZF compressor.
func NewLZFCompressor() LZFCompressor {
	return LZFCompressor{}
}

// Compress compresses data using the LZF codec.
func (c LZFCompressor) Compress(data []byte) ([]byte, error) {
	return lzf.NewCompressor().CompressAppend(data), nil
}

// Decompress decompresses LZF-compressed data.
func (c LZFCompressor) Decompress(data []byte) ([]byte, error) {
	return lzf.DecompressAppend(data)
}
