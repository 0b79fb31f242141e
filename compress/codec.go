// Package compress provides the selectable compression codec wrapped
// around the derived Bin_Intensities blob built by package bincentric.
//
// Frame_Scans.Intensities always uses package lzf directly; this package
// only applies to the offline bin-centric index, where the write-time cost
// of a heavier algorithm is amortized across many by-m/z reads. LZF is the
// default (same algorithm as Frame_Scans, fast reads); Zstd trades
// write-time cost for a smaller index.
package compress

import (
	"fmt"

	"github.com/ionmobility/uimf/format"
)

// Compressor compresses a bin's flat (frame, scan, intensity) entry stream
// before it is persisted into a derived blob. The returned slice is newly
// allocated and owned by the caller; the input is not modified.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor. It returns an error if the data is
// corrupted or was produced by a different algorithm.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions, the shape bincentric stores per bin:
// Build compresses with it and ReadBin decompresses with the codec named
// by the row's CODEC column.
type Codec interface {
	Compressor
	Decompressor
}

// CreateCodec creates a Codec for the given compression type. target names
// the intended use in error messages.
func CreateCodec(compressionType format.CompressionType, target string) (Codec, error) {
	switch compressionType {
	case format.CompressionLZF:
		return NewLZFCompressor(), nil
	case format.CompressionZstd:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("invalid %s compression: %s", target, compressionType)
	}
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionLZF:  NewLZFCompressor(),
	format.CompressionZstd: NewZstdCompressor(),
}

// GetCodec retrieves a built-in Codec for the specified compression type.
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
