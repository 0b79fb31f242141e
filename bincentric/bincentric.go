// Package bincentric implements the offline Bin_Intensities builder
// (C8): it transposes Frame_Scans (frame/scan-indexed) into a per-bin
// index keyed by TOF bin, trading write-time cost for fast by-m/z lookups
// that would otherwise require a full Frame_Scans scan.
//
// The transpose is staged through an embedded key/value store (bbolt)
// rather than in memory, since a full-resolution dataset's bin count can
// exceed what comfortably fits in a single process's heap.
package bincentric

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.etcd.io/bbolt"

	"github.com/ionmobility/uimf/compress"
	"github.com/ionmobility/uimf/errs"
	"github.com/ionmobility/uimf/format"
	"github.com/ionmobility/uimf/internal/options"
	"github.com/ionmobility/uimf/internal/pool"
	"github.com/ionmobility/uimf/lzf"
	"github.com/ionmobility/uimf/rle"
	"github.com/ionmobility/uimf/schema"
)

var bucketName = []byte("bins")

// Entry is a single (frame, scan, intensity) observation attached to one
// TOF bin.
type Entry struct {
	FrameNum  int32
	ScanNum   int32
	Intensity int32
}

// Builder drives the offline transpose. A dataset being rebuilt is not
// queryable as bin-centric until Build completes.
type Builder struct {
	db        *sqlx.DB
	stagePath string
	codec     compress.Codec
	codecID   format.CompressionType
}

// Option configures a Builder.
type Option = options.Option[*Builder]

// WithCodec overrides the default LZF codec used to compress each bin's
// transposed entry blob. Zstd, the only alternate codec, trades
// write-time cost for a smaller on-disk index.
func WithCodec(codec compress.Codec, id format.CompressionType) Option {
	return options.NoError(func(b *Builder) {
		b.codec = codec
		b.codecID = id
	})
}

// NewBuilder returns a Builder that reads frame/scan data from db and
// stages the transposed index at stagePath (a bbolt file; Build leaves it
// in place). The default codec is LZF, matching Frame_Scans.
func NewBuilder(db *sqlx.DB, stagePath string, opts ...Option) *Builder {
	b := &Builder{
		db:        db,
		stagePath: stagePath,
		codec:     compress.NewLZFCompressor(),
		codecID:   format.CompressionLZF,
	}

	_ = options.Apply(b, opts...)

	return b
}

// Build reads every Frame_Scans row, appends each (frame, scan, intensity)
// observation to its bin's staging bucket entry, then flushes the staged
// index into the Bin_Intensities table as one compressed blob per bin,
// using the Builder's codec (LZF by default).
func (b *Builder) Build(timeOffset int32) error {
	stage, err := bbolt.Open(b.stagePath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("bincentric: open stage: %w", err)
	}
	defer stage.Close()

	if err := b.transpose(stage, timeOffset); err != nil {
		return err
	}

	return b.flush(stage)
}

func (b *Builder) transpose(stage *bbolt.DB, timeOffset int32) error {
	type scanRow struct {
		FrameNum int    `db:"FrameNum"`
		ScanNum  int    `db:"ScanNum"`
		Blob     []byte `db:"Intensities"`
	}

	var rows []scanRow
	err := b.db.Select(&rows, fmt.Sprintf(
		"SELECT FrameNum, ScanNum, Intensities FROM %s ORDER BY FrameNum, ScanNum", schema.TableFrameScans))
	if err != nil {
		return fmt.Errorf("bincentric: read frame scans: %w", err)
	}

	return stage.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("bincentric: create stage bucket: %w", err)
		}

		for _, row := range rows {
			plain, err := lzf.DecompressAppend(row.Blob)
			if err != nil {
				return fmt.Errorf("bincentric: decompress frame %d scan %d: %w", row.FrameNum, row.ScanNum, err)
			}

			points, _, err := rle.DecodeAll(plain, timeOffset)
			if err != nil {
				return fmt.Errorf("bincentric: decode frame %d scan %d: %w", row.FrameNum, row.ScanNum, err)
			}

			for _, p := range points {
				key := binKey(p.Bin)
				existing := bucket.Get(key)
				appended := appendEntry(existing, Entry{
					FrameNum:  int32(row.FrameNum),
					ScanNum:   int32(row.ScanNum),
					Intensity: p.Intensity,
				})
				if err := bucket.Put(key, appended); err != nil {
					return fmt.Errorf("bincentric: stage bin %d: %w", p.Bin, err)
				}
			}
		}

		return nil
	})
}

func (b *Builder) flush(stage *bbolt.DB) error {
	tx, err := b.db.Beginx()
	if err != nil {
		return fmt.Errorf("bincentric: begin flush: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", schema.TableBinIntensities)); err != nil {
		return fmt.Errorf("bincentric: clear %s: %w", schema.TableBinIntensities, err)
	}

	err = stage.View(func(stx *bbolt.Tx) error {
		bucket := stx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			bin := int32(binary.BigEndian.Uint32(k))

			// v is only valid for the life of this bbolt view transaction;
			// copy it into a pooled buffer sized for a bin's full-dataset
			// entry set before handing it to the codec.
			staged := pool.GetBlobSetBuffer()
			staged.MustWrite(v)
			compressed, err := b.codec.Compress(staged.Bytes())
			pool.PutBlobSetBuffer(staged)
			if err != nil {
				return fmt.Errorf("bincentric: compress bin %d: %w", bin, err)
			}

			_, err = tx.Exec(fmt.Sprintf(
				"INSERT INTO %s (MZ_BIN, CODEC, INTENSITIES) VALUES (?, ?, ?)", schema.TableBinIntensities),
				bin, b.codecID, compressed)
			if err != nil {
				return fmt.Errorf("bincentric: insert bin %d: %w", bin, err)
			}

			return nil
		})
	})
	if err != nil {
		return err
	}

	return tx.Commit()
}

// binKey encodes a bin number as a big-endian key so bbolt's lexical
// ordering matches numeric bin ordering.
func binKey(bin int32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, uint32(bin))
	return key
}

// appendEntry appends e to a bin's staged blob as a flat 12-byte
// little-endian (frame, scan, intensity) record. Flat triples are larger
// than a zero-run-compressed index stream would be on sparse bins; the
// outer codec claws most of that back, and the blob stays self-describing
// when the per-frame scan count varies.
func appendEntry(existing []byte, e Entry) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.FrameNum))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.ScanNum))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(e.Intensity))
	return append(existing, buf...)
}

// DecodeEntries parses a Bin_Intensities.INTENSITIES blob (after
// decompression with the row's codec) into its Entry list.
func DecodeEntries(plain []byte) ([]Entry, error) {
	if len(plain)%12 != 0 {
		return nil, errs.ErrCorruptBlob
	}

	entries := make([]Entry, 0, len(plain)/12)
	for i := 0; i < len(plain); i += 12 {
		entries = append(entries, Entry{
			FrameNum:  int32(binary.LittleEndian.Uint32(plain[i : i+4])),
			ScanNum:   int32(binary.LittleEndian.Uint32(plain[i+4 : i+8])),
			Intensity: int32(binary.LittleEndian.Uint32(plain[i+8 : i+12])),
		})
	}

	return entries, nil
}

// ReadBin returns the decoded entries for a single TOF bin, or (nil, nil)
// if the bin has no entries. The codec used to compress the bin's blob is
// read back from the CODEC column, so callers never need to know which
// algorithm Build used.
func ReadBin(db *sqlx.DB, bin int32) ([]Entry, error) {
	var row struct {
		Codec format.CompressionType `db:"CODEC"`
		Blob  []byte                 `db:"INTENSITIES"`
	}

	err := db.Get(&row, fmt.Sprintf(
		"SELECT CODEC, INTENSITIES FROM %s WHERE MZ_BIN=?", schema.TableBinIntensities), bin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bincentric: read bin %d: %w", bin, err)
	}

	codec, err := compress.GetCodec(row.Codec)
	if err != nil {
		return nil, fmt.Errorf("bincentric: bin %d: %w", bin, err)
	}

	plain, err := codec.Decompress(row.Blob)
	if err != nil {
		return nil, fmt.Errorf("bincentric: decompress bin %d: %w", bin, err)
	}

	return DecodeEntries(plain)
}
