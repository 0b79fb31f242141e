// Package writer implements the append-only write path (C5): frame and
// scan insertion, parameter-key discipline, transactional batching, and
// aggregate maintenance (NumFrames, BPI, TIC).
package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ionmobility/uimf/bincentric"
	"github.com/ionmobility/uimf/calibration"
	"github.com/ionmobility/uimf/errs"
	"github.com/ionmobility/uimf/lzf"
	"github.com/ionmobility/uimf/params"
	"github.com/ionmobility/uimf/rle"
	"github.com/ionmobility/uimf/schema"
)

// flushInterval is the minimum time between commit+reopen cycles:
// flush is a no-op when the previous flush was less than this long ago,
// unless force=true.
const flushInterval = 5 * time.Second

// reopenDelay mitigates an observed database-disk-image-malformed race on
// some platforms by pausing briefly between commit and the next
// transaction's start.
const reopenDelay = 100 * time.Millisecond

// Writer owns an exclusive handle to a single dataset file. It is not
// thread-safe: all mutating operations must be issued from one logical
// thread.
type Writer struct {
	db           *sqlx.DB
	tx           *sqlx.Tx
	intensityCol schema.IntensityColumnType

	frameKeySet     map[int]struct{} // Frame_Param_Keys cache
	lastFlush       time.Time
	closed          bool
	tofCorrectionNs float64 // cached Global_Params TOFCorrectionTime, for BPI_MZ

	compressor *lzf.Compressor
}

// Open opens (creating if necessary) the dataset file at path. It neither
// creates tables nor begins the writer's transaction; CreateTables does
// both (converting a legacy file in place when it finds one).
func Open(path string) (*Writer, error) {
	db, err := schema.Open(path)
	if err != nil {
		return nil, err
	}

	w := &Writer{
		db:          db,
		frameKeySet: make(map[int]struct{}),
		compressor:  lzf.NewCompressor(),
	}

	return w, nil
}

// CreateTables creates the modern schema (or converts a legacy file in
// place) and opens the writer's transaction. intensityType selects the
// dataset's declared TOF intensity representation; it governs the
// Frame_Scans.BPI/TIC column type via the float/double peripheral
// configuration.
func (w *Writer) CreateTables(intensityType params.IntensityType) error {
	w.intensityCol = intensityColFor(intensityType)

	hasLegacy, err := schema.HasLegacySchema(w.db)
	if err != nil {
		return err
	}

	if hasLegacy {
		if err := schema.ConvertLegacyToModern(w.db, w.intensityCol); err != nil {
			return err
		}
		if err := w.beginTx(); err != nil {
			return err
		}
		w.loadTOFCorrectionTime()
		// the legacy NumFrames column may be stale; recompute it from the
		// converted Frame_Params.
		return w.UpdateGlobalFrameCount()
	} else if err := schema.CreateTables(w.db, w.intensityCol); err != nil {
		return err
	}

	if err := w.beginTx(); err != nil {
		return err
	}
	w.loadTOFCorrectionTime()

	return nil
}

// loadTOFCorrectionTime refreshes the cached TOFCorrectionTime global
// from whatever is already persisted. This matters when CreateTables
// attaches to a file that already has globals set, either from a prior
// writer session or a just-completed legacy conversion.
func (w *Writer) loadTOFCorrectionTime() {
	var raw string
	err := w.tx.Get(&raw, fmt.Sprintf(
		"SELECT ParamValue FROM %s WHERE ParamID=?", schema.TableGlobalParams), int(params.TOFCorrectionTime))
	if err != nil {
		return
	}
	v, err := params.Coerce(params.TypeDouble, raw, false)
	if err != nil {
		return
	}
	w.tofCorrectionNs = v.Float64()
}

func intensityColFor(t params.IntensityType) schema.IntensityColumnType {
	if t == params.IntensityFoldedF64 {
		return schema.IntensityColumnDouble
	}
	return schema.IntensityColumnInt64
}

func (w *Writer) beginTx() error {
	if _, err := w.db.Exec("PRAGMA synchronous=OFF"); err != nil {
		return fmt.Errorf("writer: set synchronous off: %w", err)
	}

	tx, err := w.db.Beginx()
	if err != nil {
		return fmt.Errorf("writer: begin transaction: %w", err)
	}

	w.tx = tx
	w.lastFlush = time.Now()

	return nil
}

// AddUpdateGlobal upserts a single global parameter.
func (w *Writer) AddUpdateGlobal(key params.GlobalParamKey, value params.Value) error {
	if w.closed {
		return errs.ErrWriterClosed
	}

	name, dt, desc, ok := params.GlobalDescriptor(key)
	if !ok {
		return fmt.Errorf("writer: %w: global key %d", errs.ErrUnknownParamID, key)
	}

	_, err := w.tx.Exec(fmt.Sprintf(
		`INSERT INTO %s (ParamID, ParamName, ParamValue, ParamDataType, ParamDescription)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(ParamID) DO UPDATE SET ParamValue=excluded.ParamValue`,
		schema.TableGlobalParams),
		int(key), name, params.Serialize(value), dt.String(), desc)
	if err != nil {
		return fmt.Errorf("writer: add/update global %s: %w", name, err)
	}

	if key == params.TOFCorrectionTime {
		w.tofCorrectionNs = value.Float64()
	}

	return nil
}

// ensureFrameParamKey inserts the key into Frame_Param_Keys the first time
// it is seen this session.
func (w *Writer) ensureFrameParamKey(key params.FrameParamKey) error {
	if _, ok := w.frameKeySet[int(key)]; ok {
		return nil
	}

	name, dt, desc, ok := params.FrameDescriptor(key)
	if !ok {
		return fmt.Errorf("writer: %w: frame key %d", errs.ErrUnknownParamID, key)
	}

	_, err := w.tx.Exec(fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (ParamID, ParamName, ParamDataType, ParamDescription)
		 VALUES (?, ?, ?, ?)`, schema.TableFrameParamKeys),
		int(key), name, dt.String(), desc)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrKeyInsert, name, err)
	}

	w.frameKeySet[int(key)] = struct{}{}

	return nil
}

// InsertFrame creates the Frame_Params rows for a new frame.
func (w *Writer) InsertFrame(frameNum int, fp *params.FrameParams) error {
	if w.closed {
		return errs.ErrWriterClosed
	}

	for _, key := range fp.Keys() {
		v, _ := fp.Get(key)
		if err := w.AddUpdateFrameParameter(frameNum, key, v); err != nil {
			return err
		}
	}

	return nil
}

// AddUpdateFrameParameter upserts a single frame parameter, inserting the
// key into Frame_Param_Keys first if it has not been seen yet this
// session.
func (w *Writer) AddUpdateFrameParameter(frameNum int, key params.FrameParamKey, value params.Value) error {
	if w.closed {
		return errs.ErrWriterClosed
	}

	if err := w.ensureFrameParamKey(key); err != nil {
		return err
	}

	_, err := w.tx.Exec(fmt.Sprintf(
		`INSERT INTO %s (FrameNum, ParamID, ParamValue) VALUES (?, ?, ?)
		 ON CONFLICT(FrameNum, ParamID) DO UPDATE SET ParamValue=excluded.ParamValue`,
		schema.TableFrameParams),
		frameNum, int(key), params.Serialize(value))
	if err != nil {
		return fmt.Errorf("writer: add/update frame parameter: %w", err)
	}

	return nil
}

// InsertScan encodes a dense int32 intensity array (timeOffset implicitly
// zero) and writes a single Frame_Scans row, returning the non-zero count.
// A scan with no non-zero entries is skipped entirely and returns 0
// without writing a row.
func (w *Writer) InsertScan(frameNum int, fp *params.FrameParams, scanNum int, intensities []int32, binWidthNs float64) (int, error) {
	data, sum, err := rle.EncodeDense(intensities)
	if err != nil {
		return 0, err
	}

	return w.writeScanRow(frameNum, fp, scanNum, data, sum, binWidthNs)
}

// InsertSparseScan encodes a sparse bin->intensity map using the given
// time offset and writes a single Frame_Scans row.
func (w *Writer) InsertSparseScan(frameNum int, fp *params.FrameParams, scanNum int, points []rle.Point, timeOffset int32, binWidthNs float64) (int, error) {
	data, sum, err := rle.EncodeSparse(points, timeOffset)
	if err != nil {
		return 0, err
	}

	return w.writeScanRow(frameNum, fp, scanNum, data, sum, binWidthNs)
}

func (w *Writer) writeScanRow(frameNum int, fp *params.FrameParams, scanNum int, rleBytes []byte, sum rle.Summary, binWidthNs float64) (int, error) {
	if w.closed {
		return 0, errs.ErrWriterClosed
	}
	if sum.NonZeroCount == 0 {
		return 0, nil
	}

	compressed := w.compressor.CompressAppend(rleBytes)

	slope, intercept, a2, b2, c2, d2, e2, f2 := fp.Calibration()
	coeff := calibration.Coefficients{Slope: slope, Intercept: intercept, A2: a2, B2: b2, C2: c2, D2: d2, E2: e2, F2: f2}
	bpiMZ := calibration.BinToMZ(int(sum.BPIBin), binWidthNs, w.tofCorrectionNs, coeff)

	_, err := w.tx.Exec(fmt.Sprintf(
		`INSERT INTO %s (FrameNum, ScanNum, NonZeroCount, BPI, BPI_MZ, TIC, Intensities)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, schema.TableFrameScans),
		frameNum, scanNum, sum.NonZeroCount, sum.BPI, bpiMZ, sum.TIC, compressed)
	if err != nil {
		return 0, fmt.Errorf("writer: insert scan: %w", err)
	}

	if err := w.Flush(false); err != nil {
		return 0, err
	}

	return sum.NonZeroCount, nil
}

// Flush commits the open transaction and starts a new one. It is a no-op
// if the previous flush happened less than 5 seconds ago, unless force is
// true.
func (w *Writer) Flush(force bool) error {
	if w.closed {
		return errs.ErrWriterClosed
	}
	if !force && time.Since(w.lastFlush) < flushInterval {
		return nil
	}

	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("writer: commit: %w", err)
	}
	if _, err := w.db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("writer: restore synchronous: %w", err)
	}

	time.Sleep(reopenDelay)

	return w.beginTx()
}

// DeleteFrame removes a frame's Frame_Params and Frame_Scans rows. If
// updateGlobal is true, NumFrames is recomputed atomically with the
// deletion.
func (w *Writer) DeleteFrame(frameNum int, updateGlobal bool) error {
	if w.closed {
		return errs.ErrWriterClosed
	}

	if _, err := w.tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE FrameNum=?", schema.TableFrameParams), frameNum); err != nil {
		return fmt.Errorf("writer: delete frame params: %w", err)
	}
	if _, err := w.tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE FrameNum=?", schema.TableFrameScans), frameNum); err != nil {
		return fmt.Errorf("writer: delete frame scans: %w", err)
	}

	if updateGlobal {
		return w.UpdateGlobalFrameCount()
	}

	return nil
}

// DeleteFrameScans removes only the Frame_Scans rows for a frame, leaving
// its parameters intact.
func (w *Writer) DeleteFrameScans(frameNum int, updateScanCount bool) error {
	if w.closed {
		return errs.ErrWriterClosed
	}

	if _, err := w.tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE FrameNum=?", schema.TableFrameScans), frameNum); err != nil {
		return fmt.Errorf("writer: delete frame scans: %w", err)
	}

	if updateScanCount {
		if _, err := w.tx.Exec(fmt.Sprintf(
			`INSERT INTO %s (FrameNum, ParamID, ParamValue) VALUES (?, ?, '0')
			 ON CONFLICT(FrameNum, ParamID) DO UPDATE SET ParamValue='0'`,
			schema.TableFrameParams), frameNum, int(params.Scans)); err != nil {
			return fmt.Errorf("writer: reset scan count: %w", err)
		}
	}

	return nil
}

// DeleteFrames deletes a list of frames in one pass.
func (w *Writer) DeleteFrames(frameNums []int, updateGlobal bool) error {
	for _, n := range frameNums {
		if err := w.DeleteFrame(n, false); err != nil {
			return err
		}
	}

	if updateGlobal {
		return w.UpdateGlobalFrameCount()
	}

	return nil
}

// PolynomialCoefficients holds the six mass-error residual-correction
// coefficients a2..f2. A zero value leaves every coefficient at
// 0, which is calibration.Coefficients' "no polynomial correction" case.
type PolynomialCoefficients struct {
	A2, B2, C2, D2, E2, F2 float64
}

var polyKeys = [6]params.FrameParamKey{
	params.MassCalibrationCoefficienta2, params.MassCalibrationCoefficientb2,
	params.MassCalibrationCoefficientc2, params.MassCalibrationCoefficientd2,
	params.MassCalibrationCoefficiente2, params.MassCalibrationCoefficientf2,
}

// UpdateCalibrationCoefficients sets the calibration slope/intercept (and,
// if provided, the mass-error polynomial coefficients) for a single frame,
// or for every frame when frameNum is negative. markDone also sets the
// CalibrationDone flag. poly is optional; pass nil to leave a2..f2
// untouched for frames that already have them, or a zero-valued
// *PolynomialCoefficients to explicitly reset them to 0.
func (w *Writer) UpdateCalibrationCoefficients(frameNum int, slope, intercept float64, markDone bool, poly *PolynomialCoefficients) error {
	frames := []int{frameNum}
	if frameNum < 0 {
		var err error
		frames, err = w.allFrameNums()
		if err != nil {
			return err
		}
	}

	for _, n := range frames {
		if err := w.AddUpdateFrameParameter(n, params.CalibrationSlope, params.NewFloat64(params.TypeDouble, slope)); err != nil {
			return err
		}
		if err := w.AddUpdateFrameParameter(n, params.CalibrationIntercept, params.NewFloat64(params.TypeDouble, intercept)); err != nil {
			return err
		}
		if poly != nil {
			values := [6]float64{poly.A2, poly.B2, poly.C2, poly.D2, poly.E2, poly.F2}
			for i, key := range polyKeys {
				if err := w.AddUpdateFrameParameter(n, key, params.NewFloat64(params.TypeDouble, values[i])); err != nil {
					return err
				}
			}
		}
		if markDone {
			if err := w.AddUpdateFrameParameter(n, params.CalibrationDone, params.NewBool(true)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *Writer) allFrameNums() ([]int, error) {
	var nums []int
	err := w.tx.Select(&nums, fmt.Sprintf("SELECT DISTINCT FrameNum FROM %s", schema.TableFrameParams))
	if err != nil {
		return nil, fmt.Errorf("writer: list frames: %w", err)
	}
	return nums, nil
}

// UpdateGlobalFrameCount recomputes NumFrames from the distinct FrameNum
// count in Frame_Params.
func (w *Writer) UpdateGlobalFrameCount() error {
	var count int
	err := w.tx.Get(&count, fmt.Sprintf("SELECT COUNT(DISTINCT FrameNum) FROM %s", schema.TableFrameParams))
	if err != nil {
		return fmt.Errorf("writer: count frames: %w", err)
	}

	return w.AddUpdateGlobal(params.NumFrames, params.NewInt64(params.TypeInt, int64(count)))
}

// CreateBinCentricTables rebuilds the Bin_Intensities transpose for this
// file, staging intermediate per-bin buffers under workDir. The open
// transaction is committed first so the builder sees every inserted scan;
// a fresh transaction is started once the build completes. Partial
// results are never left queryable: the builder clears and repopulates
// Bin_Intensities inside its own transaction.
func (w *Writer) CreateBinCentricTables(workDir string) error {
	if w.closed {
		return errs.ErrWriterClosed
	}

	// Decoding Frame_Scans blobs needs the dataset's time offset; read it
	// before committing while the transaction still holds the handle.
	var offset int32
	var raw string
	err := w.tx.Get(&raw, fmt.Sprintf(
		"SELECT ParamValue FROM %s WHERE ParamID=?", schema.TableGlobalParams), int(params.TimeOffset))
	if err == nil {
		if v, cerr := params.Coerce(params.TypeInt, raw, false); cerr == nil {
			offset = int32(v.Int64())
		}
	}

	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("writer: commit before bin-centric build: %w", err)
	}
	if _, err := w.db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return fmt.Errorf("writer: restore synchronous: %w", err)
	}

	stagePath := filepath.Join(workDir, "bincentric.stage")
	if err := bincentric.NewBuilder(w.db, stagePath).Build(offset); err != nil {
		return err
	}
	os.Remove(stagePath) //nolint:errcheck

	return w.beginTx()
}

// PostLogEntry appends a row to Log_Entries.
func (w *Writer) PostLogEntry(entryType, message, postedBy string) error {
	if w.closed {
		return errs.ErrWriterClosed
	}

	_, err := w.tx.Exec(fmt.Sprintf(
		`INSERT INTO %s (PostedBy, PostedAt, Type, Message) VALUES (?, ?, ?, ?)`,
		schema.TableLogEntries),
		postedBy, time.Now().UTC().Format("1/2/2006 3:04:05 PM"), entryType, message)
	if err != nil {
		return fmt.Errorf("writer: post log entry: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying database handle. After Close,
// the Writer must not be used.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}

	if w.tx != nil {
		if err := w.tx.Commit(); err != nil {
			w.tx.Rollback() //nolint:errcheck
		}
	}

	w.closed = true

	return w.db.Close()
}
