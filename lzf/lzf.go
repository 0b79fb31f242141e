// Package lzf implements the single-stream LZF byte compressor used to wrap
// the RLE-encoded intensity stream (see package rle) before it is persisted
// into Frame_Scans.Intensities.
//
// The format is a small LZ77 dictionary coder: 3-byte minimum matches found
// through a direct-mapped hash table, literal runs capped at 32 bytes, and
// matches capped at 264 bytes. It is not a general-purpose container format;
// callers own buffer growth on overflow (see errs.ErrOutputTooSmall).
package lzf

import (
	"github.com/ionmobility/uimf/errs"
	"github.com/ionmobility/uimf/internal/pool"
)

const (
	hlog   = 14
	hsize  = 1 << hlog
	maxOff = 1 << 13 // 8192
	maxRef = (1 << 8) + 8 // 264
	maxLit = 1 << 5 // 32
)

// hashTable is the fixed-size direct-mapped match table. It is cleared at
// the start of every Compress call; it is not safe for concurrent use by
// multiple goroutines sharing the same Compressor.
type hashTable [hsize]int32

// Compressor holds the reusable hash table arena for repeated Compress
// calls. The zero value is ready to use. A Compressor is not safe for
// concurrent use; callers sharing one across goroutines must guard it with
// their own lock.
type Compressor struct {
	tab hashTable
}

// NewCompressor returns a Compressor with a freshly zeroed hash table arena.
func NewCompressor() *Compressor {
	return &Compressor{}
}

// hashOf is the rolling match hash:
// (h ^ (h<<5)) >> (24-HLOG-5) & (HSIZE-1), folded over the 24-bit value
// formed by the next three input bytes.
func hashOf(v uint32) uint32 {
	h := (v ^ (v << 5)) >> (24 - hlog - 5) & (hsize - 1)
	return h
}

func load24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// Compress compresses src into dst[:n] and returns n. If dst is too small to
// hold the compressed output, Compress returns (0, errs.ErrOutputTooSmall);
// the caller should grow dst and retry (CompressAppend does this, growing
// its scratch buffer to twice its capacity each time). The hash table is
// cleared at the start of every call.
func (c *Compressor) Compress(src, dst []byte) (int, error) {
	c.tab = hashTable{}

	inLen := len(src)
	op := 0

	// The literal run is tracked by its start index into src rather than
	// copied incrementally, keeping the hot loop free of per-byte
	// bookkeeping.
	ip := 0
	litStart := 0

	flushLiteral := func(end int) error {
		for litStart < end {
			run := end - litStart
			if run > maxLit {
				run = maxLit
			}
			if op+1+run > len(dst) {
				return errs.ErrOutputTooSmall
			}
			dst[op] = byte(run - 1)
			op++
			copy(dst[op:op+run], src[litStart:litStart+run])
			op += run
			litStart += run
		}
		return nil
	}

	for ip+3 <= inLen {
		h := hashOf(load24(src[ip:]))
		ref := int(c.tab[h]) - 1 // stored as pos+1 so zero means "empty"
		c.tab[h] = int32(ip + 1)

		offset := ip - ref - 1
		if ref >= 0 && offset >= 0 && offset < maxOff && ip+4 <= inLen &&
			src[ref] == src[ip] && src[ref+1] == src[ip+1] && src[ref+2] == src[ip+2] {
			if err := flushLiteral(ip); err != nil {
				return 0, err
			}

			maxLen := inLen - ip
			if maxLen > maxRef {
				maxLen = maxRef
			}
			length := 3
			for length < maxLen && src[ref+length] == src[ip+length] {
				length++
			}

			if err := emitMatch(dst, &op, offset, length); err != nil {
				return 0, err
			}

			// insert entries for the two positions after the match start
			for k := 1; k <= 2 && ip+k+3 <= inLen; k++ {
				hh := hashOf(load24(src[ip+k:]))
				c.tab[hh] = int32(ip + k + 1)
			}

			ip += length
			litStart = ip
			continue
		}

		ip++
	}

	if err := flushLiteral(inLen); err != nil {
		return 0, err
	}

	return op, nil
}

func emitMatch(dst []byte, op *int, offset, length int) error {
	l := length - 2
	if l < 7 {
		if *op+2 > len(dst) {
			return errs.ErrOutputTooSmall
		}
		dst[*op] = byte((offset>>8)&0x1f | (l << 5))
		dst[*op+1] = byte(offset & 0xff)
		*op += 2
		return nil
	}

	if *op+3 > len(dst) {
		return errs.ErrOutputTooSmall
	}
	dst[*op] = byte((offset>>8)&0x1f | (7 << 5))
	dst[*op+1] = byte(l - 7)
	dst[*op+2] = byte(offset & 0xff)
	*op += 3
	return nil
}

// CompressAppend compresses src and returns a freshly-sized compressed
// buffer, growing its scratch buffer and retrying until it succeeds. This
// is the recommended entry point: it implements the growth-and-retry
// contract from the error handling design so callers never have to
// size the output buffer themselves.
func (c *Compressor) CompressAppend(src []byte) []byte {
	bb := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(bb)

	guess := len(src)/2 + 16
	bb.SetLength(0)
	bb.ExtendOrGrow(guess)

	for {
		n, err := c.Compress(src, bb.Bytes())
		if err == nil {
			out := make([]byte, n)
			copy(out, bb.Bytes()[:n])
			return out
		}

		bb.SetLength(0)
		bb.ExtendOrGrow(bb.Cap() * 2)
	}
}

// Decompress decompresses src into dst[:n]. It returns
// errs.ErrOutputTooSmall if dst cannot hold the decompressed result, and
// errs.ErrLZFUnderflow / errs.ErrLZFBadBackref on malformed input.
func Decompress(src, dst []byte) (int, error) {
	ip := 0
	op := 0
	inLen := len(src)

	for ip < inLen {
		ctrl := int(src[ip])
		ip++

		if ctrl < maxLit {
			runLen := ctrl + 1
			if ip+runLen > inLen {
				return 0, errs.ErrLZFUnderflow
			}
			if op+runLen > len(dst) {
				return 0, errs.ErrOutputTooSmall
			}
			copy(dst[op:op+runLen], src[ip:ip+runLen])
			ip += runLen
			op += runLen
			continue
		}

		if ip >= inLen {
			return 0, errs.ErrLZFUnderflow
		}

		length := ctrl >> 5
		if length == 7 {
			if ip+1 >= inLen {
				return 0, errs.ErrLZFUnderflow
			}
			length += int(src[ip])
			ip++
		}

		offset := ((ctrl & 0x1f) << 8) | int(src[ip])
		ip++
		offset++

		if offset > op {
			return 0, errs.ErrLZFBadBackref
		}
		if op+length+2 > len(dst) {
			return 0, errs.ErrOutputTooSmall
		}

		// byte-wise forward so self-overlapping references replicate
		ref := op - offset
		for i := 0; i < length+2; i++ {
			dst[op+i] = dst[ref+i]
		}
		op += length + 2
	}

	return op, nil
}

// DecompressAppend decompresses src, growing its scratch buffer until the
// result fits, and returns a freshly-sized slice holding the plaintext.
func DecompressAppend(src []byte) ([]byte, error) {
	bb := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(bb)

	guess := len(src)*2 + 16
	bb.SetLength(0)
	bb.ExtendOrGrow(guess)

	for {
		n, err := Decompress(src, bb.Bytes())
		if err == nil {
			out := make([]byte, n)
			copy(out, bb.Bytes()[:n])
			return out, nil
		}
		if err != errs.ErrOutputTooSmall {
			return nil, err
		}

		bb.SetLength(0)
		bb.ExtendOrGrow(bb.Cap() * 2)
	}
}
