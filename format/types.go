// Package format defines the small set of shared wire-format enums used
// across the storage engine, currently just the selectable compression
// algorithm for derived blobs (the Bin_Intensities index).
package format

// CompressionType selects the general-purpose compressor wrapped around a
// derived blob's byte stream (a bin's flat entry records). Frame_Scans always
// uses LZF directly (package lzf); CompressionType only applies to the
// offline bin-centric index, where the write-time cost of a heavier
// algorithm is amortized over many reads.
type CompressionType uint8

const (
	CompressionLZF  CompressionType = 0x1 // CompressionLZF is the default: package lzf, same as Frame_Scans.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionLZF:
		return "LZF"
	case CompressionZstd:
		return "Zstd"
	default:
		return "Unknown"
	}
}
