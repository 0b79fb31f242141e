// Package rle implements the run-length zero encoding used for per-scan
// intensity arrays. The encoded byte
// stream is the plaintext that package lzf wraps before it is persisted
// into Frame_Scans.Intensities.
//
// Two independent encodings are provided:
//  - Sparse: a (bin, intensity) pair stream with strictly increasing bins.
//  - Dense: a full intensity array indexed by bin, typically produced by a
//    demultiplexer or other external signal-processing step.
//
// Both encodings share the same int32 little-endian word format: negative
// words are zero-run skips, positive words are intensities at the current
// cursor.
package rle

import (
	"encoding/binary"
	"math"

	"github.com/ionmobility/uimf/errs"
)

// Point is a single non-zero (bin, intensity) observation.
type Point struct {
	Bin       int32
	Intensity int32
}

// Summary carries the aggregate values an encode pass computes alongside
// the byte stream: TIC, BPI, the bin of BPI, and the non-zero count.
type Summary struct {
	TIC          int64
	BPI          int32
	BPIBin       int32
	NonZeroCount int
}

// EncodeSparse encodes a sequence of strictly-increasing-bin, non-zero
// intensity pairs into the int32 RLE word stream described above,
// returning the little-endian byte encoding and the TIC/BPI/NonZeroCount
// summary computed in the same pass.
//
// points must be sorted by Bin ascending with no duplicate bins and no
// zero intensities; violating this is a caller bug (errs.ErrNonIncreasingBins
// / errs.ErrZeroIntensity).
func EncodeSparse(points []Point, timeOffset int32) ([]byte, Summary, error) {
	var sum Summary
	words := make([]int32, 0, len(points)*2+1)

	prevBin := int32(-1)
	first := true

	for _, p := range points {
		if p.Intensity == 0 {
			return nil, sum, errs.ErrZeroIntensity
		}
		if !first && p.Bin <= prevBin {
			return nil, sum, errs.ErrNonIncreasingBins
		}

		if first {
			words = append(words, -(timeOffset + p.Bin))
			first = false
		} else if p.Bin == prevBin+1 {
			// contiguous, no skip word needed
		} else {
			words = append(words, prevBin-p.Bin+1)
		}

		words = append(words, p.Intensity)

		sum.TIC += int64(p.Intensity)
		sum.NonZeroCount++
		if p.Intensity > sum.BPI {
			sum.BPI = p.Intensity
			sum.BPIBin = p.Bin
		}

		prevBin = p.Bin
	}

	if first {
		// no points at all: an empty blob
		return nil, sum, nil
	}

	return wordsToBytes(words), sum, nil
}

// EncodeDense walks a dense per-bin intensity array (zeros frequent) and
// produces the same int32 RLE stream as EncodeSparse, with timeOffset
// implicitly zero.
func EncodeDense(intensities []int32) ([]byte, Summary, error) {
	points := make([]Point, 0, len(intensities))
	for bin, v := range intensities {
		if v == 0 {
			continue
		}
		points = append(points, Point{Bin: int32(bin), Intensity: v})
	}

	return EncodeSparse(points, 0)
}

// EncodeDenseInt16 implements the alternate int16 dense encoding:
// the encoder walks the array maintaining a running negative zero counter
// that flushes on underflow (reaching math.MinInt16), and discards any
// trailing zero run after the last positive value. This mode is used when
// a caller presents a dense int16 array (e.g. ADC/TDC-width data) rather
// than pre-extracted (bin, intensity) pairs.
func EncodeDenseInt16(intensities []int16) ([]byte, Summary, error) {
	var sum Summary
	words := make([]int32, 0, len(intensities))

	zeroRun := int32(0)
	haveRun := false
	lastPositiveWordIdx := -1

	flush := func() {
		if haveRun {
			words = append(words, -zeroRun)
			zeroRun = 0
			haveRun = false
		}
	}

	for bin, v := range intensities {
		if v == 0 {
			zeroRun++
			haveRun = true
			if zeroRun == -math.MinInt16 {
				// underflow of the 16-bit negative counter: flush and restart
				flush()
			}
			continue
		}

		flush()
		words = append(words, int32(v))
		lastPositiveWordIdx = len(words) - 1

		sum.TIC += int64(v)
		sum.NonZeroCount++
		if int32(v) > sum.BPI {
			sum.BPI = int32(v)
			sum.BPIBin = int32(bin)
		}
	}

	// discard any trailing zero run after the last positive value
	words = words[:lastPositiveWordIdx+1]

	return wordsToBytes(words), sum, nil
}

// Decode walks the int32 RLE word stream and invokes fn for every
// (bin, intensity) pair it reconstructs, in increasing bin order. It
// returns errs.ErrRLETruncated if data's length is not a multiple of 4.
func Decode(data []byte, timeOffset int32, fn func(bin, intensity int32)) error {
	if len(data)%4 != 0 {
		return errs.ErrRLETruncated
	}
	if len(data) == 0 {
		return nil
	}

	cursor := int32(0)
	for i := 0; i < len(data); i += 4 {
		w := int32(binary.LittleEndian.Uint32(data[i : i+4]))
		if i == 0 {
			cursor = -w - timeOffset
			continue
		}

		if w < 0 {
			cursor += -w
			continue
		}

		fn(cursor, w)
		cursor++
	}

	return nil
}

// DecodeAll decodes data into a slice of Points plus the TIC/BPI/BPIBin/
// NonZeroCount summary, recomputing the aggregate values during the decode
// pass (used to validate the "NonZeroCount equals the count of positive
// entries the decoder would emit" invariant).
func DecodeAll(data []byte, timeOffset int32) ([]Point, Summary, error) {
	var sum Summary
	var points []Point

	err := Decode(data, timeOffset, func(bin, intensity int32) {
		points = append(points, Point{Bin: bin, Intensity: intensity})
		sum.TIC += int64(intensity)
		sum.NonZeroCount++
		if intensity > sum.BPI {
			sum.BPI = intensity
			sum.BPIBin = bin
		}
	})
	if err != nil {
		return nil, Summary{}, err
	}

	return points, sum, nil
}

func wordsToBytes(words []int32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], uint32(w))
	}

	return out
}
