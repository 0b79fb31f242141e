// Package reader implements the read/query path (C6): parameter lookup,
// spectrum decoding, TIC/BPI/XIC aggregation, drift-time profiles, and the
// bin-centric-vs-scan-centric query plan selector.
package reader

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/ionmobility/uimf/bincentric"
	"github.com/ionmobility/uimf/calibration"
	"github.com/ionmobility/uimf/errs"
	"github.com/ionmobility/uimf/lzf"
	"github.com/ionmobility/uimf/params"
	"github.com/ionmobility/uimf/rle"
	"github.com/ionmobility/uimf/schema"
)

// spectrumCacheCapacity matches the reader's bounded spectrum cache.
const spectrumCacheCapacity = 10

// Spectrum is a decoded, bin-sorted intensity spectrum summed across
// whatever frame/scan range produced it.
type Spectrum struct {
	Bins        []int32
	Intensities []int64
}

// Point3D is a single (frame, scan, intensity) observation, the unit the
// elution-profile and XIC-as-points queries return.
type Point3D struct {
	FrameNum  int
	ScanNum   int
	Intensity int64
}

// ToleranceType selects how GetXIC's tolerance argument is interpreted.
type ToleranceType uint8

const (
	// TolerancePPM scales the m/z window with target_mz: the window is
	// [target_mz*(1-tolerance/1e6), target_mz*(1+tolerance/1e6)].
	TolerancePPM ToleranceType = iota
	// ToleranceThomson holds the m/z window fixed regardless of target_mz:
	// [target_mz-tolerance, target_mz+tolerance].
	ToleranceThomson
)

// mzWindow converts a (target_mz, tolerance) pair to an [mzLow, mzHigh]
// window per t, or errs.ErrInvalidToleranceType if t is neither PPM nor
// Thomson.
func (t ToleranceType) mzWindow(targetMZ, tolerance float64) (float64, float64, error) {
	switch t {
	case TolerancePPM:
		delta := targetMZ * tolerance / 1e6
		return targetMZ - delta, targetMZ + delta, nil
	case ToleranceThomson:
		return targetMZ - tolerance, targetMZ + tolerance, nil
	default:
		return 0, 0, errs.ErrInvalidToleranceType
	}
}

// LogEntry mirrors a Log_Entries row.
type LogEntry struct {
	ID       int64
	PostedBy string
	PostedAt string
	Type     string
	Message  string
}

// Reader provides read-only, concurrency-safe access to a dataset file.
// Frame parameters and decoded spectra are cached; the underlying
// *sqlx.DB is safe for concurrent queries since it is opened read-only.
type Reader struct {
	db *sqlx.DB

	mu              sync.Mutex
	frameParamCache map[int]*params.FrameParams
	spectrumCache   *spectrumCache
	warner          *params.UnknownIDWarner

	global          *params.GlobalParams
	intensityType   params.IntensityType
	instrumentClass params.InstrumentClassKind
	pressureUnit    string
	frameTypeZero   bool // true if legacy convention (MS1 stored as 0) detected
	binCentricRows  int64
}

// Open opens path read-only, loads the global parameters, and detects the
// frame-type convention and pressure unit in use.
func Open(path string) (*Reader, error) {
	db, err := schema.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		return nil, fmt.Errorf("reader: set query_only: %w", err)
	}

	hasModern, err := schema.HasModernSchema(db)
	if err != nil {
		return nil, err
	}
	if !hasModern {
		hasLegacy, lerr := schema.HasLegacySchema(db)
		if lerr != nil {
			return nil, lerr
		}
		if !hasLegacy {
			return nil, errs.ErrNoSchema
		}
		return nil, errs.ErrLegacySchema
	}

	r := &Reader{
		db:              db,
		frameParamCache: make(map[int]*params.FrameParams),
		spectrumCache:   newSpectrumCache(spectrumCacheCapacity),
		warner:          params.NewUnknownIDWarner(),
	}

	if err := r.loadGlobals(); err != nil {
		return nil, err
	}
	if err := r.detectFrameTypeConvention(); err != nil {
		return nil, err
	}
	r.detectPressureUnit()

	if n, err := tableRowEstimate(db, schema.TableBinIntensities); err == nil {
		r.binCentricRows = n
	}

	return r, nil
}

func (r *Reader) loadGlobals() error {
	type row struct {
		ParamID       int    `db:"ParamID"`
		ParamValue    string `db:"ParamValue"`
		ParamDataType string `db:"ParamDataType"`
	}

	var rows []row
	err := r.db.Select(&rows, fmt.Sprintf("SELECT ParamID, ParamValue, ParamDataType FROM %s", schema.TableGlobalParams))
	if err != nil {
		return fmt.Errorf("reader: load globals: %w", err)
	}

	g := params.NewGlobalParams()
	for _, rr := range rows {
		key := params.GlobalParamKey(rr.ParamID)
		_, dt, _, ok := params.GlobalDescriptor(key)
		if !ok {
			r.warner.Warn(schema.TableGlobalParams, uint16(rr.ParamID))
			continue
		}

		v, err := params.Coerce(dt, rr.ParamValue, false)
		if err != nil {
			return err
		}
		g.Set(key, v)
	}

	r.global = g
	r.intensityType = g.IntensityType()

	if v, ok := g.Get(params.InstrumentClass); ok {
		r.instrumentClass = params.InstrumentClassKind(v.Int64())
	}

	return nil
}

// detectFrameTypeConvention scans the distinct FrameType values present and
// fails with errs.ErrMixedFrameTypeZero if both the legacy (0) and modern
// (1) MS1 encodings appear in the same file.
func (r *Reader) detectFrameTypeConvention() error {
	var values []int
	err := r.db.Select(&values, fmt.Sprintf(
		"SELECT DISTINCT CAST(ParamValue AS INTEGER) FROM %s WHERE ParamID=?",
		schema.TableFrameParams), int(params.FrameTypeKey))
	if err != nil {
		return fmt.Errorf("reader: detect frame type convention: %w", err)
	}

	hasZero, hasOne := false, false
	for _, v := range values {
		if v == 0 {
			hasZero = true
		}
		if v == int(params.FrameTypeMS1) {
			hasOne = true
		}
	}

	if hasZero && hasOne {
		return errs.ErrMixedFrameTypeZero
	}

	r.frameTypeZero = hasZero

	return nil
}

// normalizeFrameType maps the legacy 0 encoding for MS1 onto the modern
// FrameTypeMS1 enum value so callers never have to branch on convention.
func (r *Reader) normalizeFrameType(raw int) params.FrameType {
	if raw == 0 && r.frameTypeZero {
		return params.FrameTypeMS1
	}
	return params.FrameType(raw)
}

// detectPressureUnit samples the back-pressure readings across the file:
// an average above 100 means the values are milliTorr-scale, and every
// pressure read is divided by 1000. The original format
// never records units explicitly.
func (r *Reader) detectPressureUnit() {
	var avg sql.NullFloat64
	err := r.db.Get(&avg, fmt.Sprintf(
		"SELECT AVG(CAST(ParamValue AS REAL)) FROM %s WHERE ParamID=?",
		schema.TableFrameParams), int(params.PressureBack))
	if err != nil || !avg.Valid || avg.Float64 <= 100 {
		r.pressureUnit = "torr"
		return
	}

	r.pressureUnit = "millitorr"
}

// GetFrameCount returns the dataset's NumFrames global parameter.
func (r *Reader) GetFrameCount() int {
	v, ok := r.global.Get(params.NumFrames)
	if !ok {
		return 0
	}
	return int(v.Int64())
}

// GetGlobalParameters returns the dataset-wide parameter set.
func (r *Reader) GetGlobalParameters() *params.GlobalParams {
	return r.global
}

// GetFrameParameters returns a frame's parameters, populating the lazy
// per-frame cache on first access.
func (r *Reader) GetFrameParameters(frameNum int) (*params.FrameParams, error) {
	r.mu.Lock()
	if fp, ok := r.frameParamCache[frameNum]; ok {
		r.mu.Unlock()
		return fp, nil
	}
	r.mu.Unlock()

	type row struct {
		ParamID    int    `db:"ParamID"`
		ParamValue string `db:"ParamValue"`
	}

	var rows []row
	err := r.db.Select(&rows, fmt.Sprintf(
		`SELECT fp.ParamID AS ParamID, fp.ParamValue AS ParamValue FROM %s fp WHERE fp.FrameNum=?`,
		schema.TableFrameParams), frameNum)
	if err != nil {
		return nil, fmt.Errorf("reader: load frame %d parameters: %w", frameNum, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("reader: frame %d: %w", frameNum, errs.ErrFrameNotFound)
	}

	fp := params.NewFrameParams()
	for _, rr := range rows {
		key := params.FrameParamKey(rr.ParamID)
		_, dt, _, ok := params.FrameDescriptor(key)
		if !ok {
			// Unknown parameter IDs are skipped entirely: the returned
			// FrameParams never carries a key the model doesn't recognize.
			// Warn still fires so a caller/logger sees it exactly once per
			// ID, regardless of how many rows share it.
			r.warner.Warn(schema.TableFrameParams, uint16(rr.ParamID))
			continue
		}

		v, err := params.Coerce(dt, rr.ParamValue, false)
		if err != nil {
			return nil, err
		}
		fp.Set(key, v)
	}

	r.mu.Lock()
	r.frameParamCache[frameNum] = fp
	r.mu.Unlock()

	return fp, nil
}

// GetLogEntries returns every Log_Entries row, oldest first.
func (r *Reader) GetLogEntries() ([]LogEntry, error) {
	var entries []LogEntry
	err := r.db.Select(&entries, fmt.Sprintf(
		"SELECT Id AS id, PostedBy AS postedby, PostedAt AS postedat, Type AS type, Message AS message FROM %s ORDER BY Id",
		schema.TableLogEntries))
	if err != nil {
		return nil, fmt.Errorf("reader: load log entries: %w", err)
	}
	return entries, nil
}

// Close releases the underlying database handle.
func (r *Reader) Close() error {
	return r.db.Close()
}

func tableRowEstimate(db *sqlx.DB, table string) (int64, error) {
	var n int64
	err := db.Get(&n, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	return n, err
}

type scanRow struct {
	FrameNum int    `db:"FrameNum"`
	ScanNum  int    `db:"ScanNum"`
	BPI      int64  `db:"BPI"`
	TIC      int64  `db:"TIC"`
	Blob     []byte `db:"Intensities"`
}

// scanRowsInRange queries Frame_Scans for [startFrame, endFrame], optionally
// narrowed to [startScan, endScan] (pass startScan<0 or endScan<0 for no scan
// restriction, matching the frameType<0 "any type" convention) and to a
// single frameType.
func (r *Reader) scanRowsInRange(startFrame, endFrame, frameType, startScan, endScan int) ([]scanRow, error) {
	where := squirrel.And{
		squirrel.GtOrEq{"FrameNum": startFrame},
		squirrel.LtOrEq{"FrameNum": endFrame},
	}
	if startScan >= 0 && endScan >= 0 {
		where = append(where,
			squirrel.GtOrEq{"ScanNum": startScan},
			squirrel.LtOrEq{"ScanNum": endScan},
		)
	}

	query, args, err := squirrel.Select("FrameNum", "ScanNum", "BPI", "TIC", "Intensities").
		From(schema.TableFrameScans).
		Where(where).
		OrderBy("FrameNum", "ScanNum").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("reader: build scan query: %w", err)
	}

	var rows []scanRow
	if err := r.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("reader: query scans: %w", err)
	}

	if frameType < 0 {
		return rows, nil
	}

	filtered := rows[:0]
	for _, row := range rows {
		fp, err := r.GetFrameParameters(row.FrameNum)
		if err != nil {
			continue
		}
		if int(r.normalizeFrameType(int(fp.FrameType()))) == frameType {
			filtered = append(filtered, row)
		}
	}

	return filtered, nil
}

func (r *Reader) decodeScan(row scanRow) ([]rle.Point, error) {
	plain, err := lzf.DecompressAppend(row.Blob)
	if err != nil {
		return nil, fmt.Errorf("reader: decompress frame %d scan %d: %w", row.FrameNum, row.ScanNum, err)
	}

	offset := int32(0)
	if v, ok := r.global.Get(params.TimeOffset); ok {
		offset = int32(v.Int64())
	}

	points, _, err := rle.DecodeAll(plain, offset)
	if err != nil {
		return nil, fmt.Errorf("reader: decode frame %d scan %d: %w", row.FrameNum, row.ScanNum, err)
	}

	return points, nil
}

// GetSpectrum sums intensities per bin across every frame in
// [startFrame, endFrame] and every scan in [startScan, endScan] (pass
// startScan<0 or endScan<0 for every scan) of the given frameType (or any
// type if frameType is negative), returning a bin-sorted Spectrum. Results are cached
// per (startFrame, endFrame, frameType, startScan, endScan).
func (r *Reader) GetSpectrum(startFrame, endFrame, frameType, startScan, endScan int) (*Spectrum, error) {
	key := spectrumCacheKey{
		startFrame: startFrame, endFrame: endFrame, frameType: frameType,
		startScan: startScan, endScan: endScan,
	}

	r.mu.Lock()
	if s, ok := r.spectrumCache.get(key); ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	rows, err := r.scanRowsInRange(startFrame, endFrame, frameType, startScan, endScan)
	if err != nil {
		return nil, err
	}

	acc := make(map[int32]int64)
	for _, row := range rows {
		points, err := r.decodeScan(row)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			acc[p.Bin] += int64(p.Intensity)
		}
	}

	spec := mapToSpectrum(acc)

	r.mu.Lock()
	r.spectrumCache.put(key, spec)
	r.mu.Unlock()

	return spec, nil
}

func mapToSpectrum(acc map[int32]int64) *Spectrum {
	bins := make([]int32, 0, len(acc))
	for b := range acc {
		bins = append(bins, b)
	}
	sortInt32(bins)

	intensities := make([]int64, len(bins))
	for i, b := range bins {
		intensities[i] = acc[b]
	}

	return &Spectrum{Bins: bins, Intensities: intensities}
}

func sortInt32(s []int32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

// GetSpectrumAsBins is GetSpectrum restricted to [minBin, maxBin], the
// bin_range companion to GetSpectrumForMZRange.
func (r *Reader) GetSpectrumAsBins(startFrame, endFrame, frameType, startScan, endScan, minBin, maxBin int) (*Spectrum, error) {
	full, err := r.GetSpectrum(startFrame, endFrame, frameType, startScan, endScan)
	if err != nil {
		return nil, err
	}

	out := &Spectrum{}
	for i, b := range full.Bins {
		if int(b) >= minBin && int(b) <= maxBin {
			out.Bins = append(out.Bins, b)
			out.Intensities = append(out.Intensities, full.Intensities[i])
		}
	}

	return out, nil
}

// GetSpectrumForMZRange is GetSpectrum restricted to [mzLow, mzHigh], the
// mz_range form of get_spectrum. The bin window is resolved through
// the first frame's calibration; when the bin-centric layout would touch
// fewer rows than decoding every scan in range, the spectrum is summed
// from Bin_Intensities instead.
func (r *Reader) GetSpectrumForMZRange(startFrame, endFrame, frameType, startScan, endScan int, mzLow, mzHigh float64) (*Spectrum, error) {
	fp, err := r.GetFrameParameters(startFrame)
	if err != nil {
		return nil, err
	}

	binWidth, correction := r.binWidthAndCorrection()
	lowBin, highBin, err := r.binRangeForMZ(fp, binWidth, correction, mzLow, mzHigh)
	if err != nil {
		return nil, err
	}

	if !r.useBinCentricPlan(endFrame-startFrame+1, highBin-lowBin+1) {
		return r.GetSpectrumAsBins(startFrame, endFrame, frameType, startScan, endScan, lowBin, highBin)
	}

	acc := make(map[int32]int64)
	for bin := int32(lowBin); bin <= int32(highBin); bin++ {
		entries, err := bincentric.ReadBin(r.db, bin)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			frame := int(e.FrameNum)
			if frame < startFrame || frame > endFrame {
				continue
			}
			if startScan >= 0 && endScan >= 0 && (int(e.ScanNum) < startScan || int(e.ScanNum) > endScan) {
				continue
			}
			if frameType >= 0 {
				efp, err := r.GetFrameParameters(frame)
				if err != nil {
					return nil, err
				}
				if int(r.normalizeFrameType(int(efp.FrameType()))) != frameType {
					continue
				}
			}
			acc[bin] += int64(e.Intensity)
		}
	}

	return mapToSpectrum(acc), nil
}

// GetTIC sums Frame_Scans.TIC over the given frame/scan range.
func (r *Reader) GetTIC(startFrame, endFrame, frameType, startScan, endScan int) (int64, error) {
	rows, err := r.scanRowsInRange(startFrame, endFrame, frameType, startScan, endScan)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, row := range rows {
		total += row.TIC
	}

	return total, nil
}

// GetBPI returns the maximum Frame_Scans.BPI over the given range.
func (r *Reader) GetBPI(startFrame, endFrame, frameType, startScan, endScan int) (int64, error) {
	rows, err := r.scanRowsInRange(startFrame, endFrame, frameType, startScan, endScan)
	if err != nil {
		return 0, err
	}

	var best int64
	for _, row := range rows {
		if row.BPI > best {
			best = row.BPI
		}
	}

	return best, nil
}

// GetTICForFrames returns TIC per frame number across the range, the
// per-frame dictionary variant of GetTIC.
func (r *Reader) GetTICForFrames(startFrame, endFrame, frameType, startScan, endScan int) (map[int]int64, error) {
	rows, err := r.scanRowsInRange(startFrame, endFrame, frameType, startScan, endScan)
	if err != nil {
		return nil, err
	}

	out := make(map[int]int64)
	for _, row := range rows {
		out[row.FrameNum] += row.TIC
	}

	return out, nil
}

// GetBPIForFrames returns BPI per frame number across the range, the
// per-frame dictionary variant of GetBPI.
func (r *Reader) GetBPIForFrames(startFrame, endFrame, frameType, startScan, endScan int) (map[int]int64, error) {
	rows, err := r.scanRowsInRange(startFrame, endFrame, frameType, startScan, endScan)
	if err != nil {
		return nil, err
	}

	out := make(map[int]int64)
	for _, row := range rows {
		if row.BPI > out[row.FrameNum] {
			out[row.FrameNum] = row.BPI
		}
	}

	return out, nil
}

// binRangeForMZ converts an [mzLow, mzHigh] window to a [minBin, maxBin]
// window for a given frame, using that frame's calibration coefficients
// when the dataset is TOF-based, or the dataset's ppm-bin mapping
// otherwise.
func (r *Reader) binRangeForMZ(fp *params.FrameParams, binWidthNs, tofCorrectionNs, mzLow, mzHigh float64) (int, int, error) {
	if r.instrumentClass == params.InstrumentClassPpmBinBased {
		binCount := 0
		if v, ok := r.global.Get(params.Bins); ok {
			binCount = int(v.Int64())
		}
		var mzStart, mzEnd float64
		if v, ok := r.global.Get(params.PpmBinBasedStartMZ); ok {
			mzStart = v.Float64()
		}
		if v, ok := r.global.Get(params.PpmBinBasedEndMZ); ok {
			mzEnd = v.Float64()
		}

		lowBin := int(float64(binCount) * (mzLow - mzStart) / (mzEnd - mzStart))
		highBin := int(float64(binCount) * (mzHigh - mzStart) / (mzEnd - mzStart))

		return lowBin, highBin, nil
	}

	slope, intercept, a2, b2, c2, d2, e2, f2 := fp.Calibration()
	coeff := calibration.Coefficients{Slope: slope, Intercept: intercept, A2: a2, B2: b2, C2: c2, D2: d2, E2: e2, F2: f2}

	low, err := calibration.InverseMZToBin(mzLow, binWidthNs, tofCorrectionNs, coeff)
	if err != nil {
		return 0, 0, err
	}
	high, err := calibration.InverseMZToBin(mzHigh, binWidthNs, tofCorrectionNs, coeff)
	if err != nil {
		return 0, 0, err
	}

	return low, high, nil
}

func (r *Reader) binWidthAndCorrection() (float64, float64) {
	var binWidth, correction float64
	if v, ok := r.global.Get(params.BinWidth); ok {
		binWidth = v.Float64()
	}
	if v, ok := r.global.Get(params.TOFCorrectionTime); ok {
		correction = v.Float64()
	}
	return binWidth, correction
}

// GetXIC returns every (frame, scan, intensity) observation whose bin
// falls within tolerance of targetMZ (interpreted per toleranceType)
// across the frame range, i.e. an extracted ion chromatogram in point
// form.
// The query plan picks the bin-centric layout over Bin_Intensities
// when it would touch fewer rows than the scan-centric scan of
// Frame_Scans; both return identical results since Bin_Intensities is a
// lossless transpose.
func (r *Reader) GetXIC(targetMZ, tolerance float64, frameType int, toleranceType ToleranceType, startFrame, endFrame int) ([]Point3D, error) {
	mzLow, mzHigh, err := toleranceType.mzWindow(targetMZ, tolerance)
	if err != nil {
		return nil, err
	}

	return r.getXICRange(mzLow, mzHigh, startFrame, endFrame, frameType)
}

// getXICRange is GetXIC's implementation once target_mz/tolerance/
// tolerance_type have been resolved to a concrete [mzLow, mzHigh] window.
// Get3DElutionProfile uses it directly since it already deals in an
// explicit window rather than a target/tolerance pair.
func (r *Reader) getXICRange(mzLow, mzHigh float64, startFrame, endFrame, frameType int) ([]Point3D, error) {
	binWidth, correction := r.binWidthAndCorrection()

	// Bin range is computed once, from the first frame in the queried
	// range: the bin-centric plan requires one range shared across all
	// frames it scans, and in practice a dataset's calibration is stable
	// across frames of the same type.
	repFP, err := r.GetFrameParameters(startFrame)
	if err != nil {
		return nil, err
	}
	lowBin, highBin, err := r.binRangeForMZ(repFP, binWidth, correction, mzLow, mzHigh)
	if err == nil && r.useBinCentricPlan(endFrame-startFrame+1, highBin-lowBin+1) {
		return r.getXICBinCentric(int32(lowBin), int32(highBin), startFrame, endFrame, frameType)
	}

	rows, err := r.scanRowsInRange(startFrame, endFrame, frameType, -1, -1)
	if err != nil {
		return nil, err
	}

	var out []Point3D
	for _, row := range rows {
		fp, err := r.GetFrameParameters(row.FrameNum)
		if err != nil {
			return nil, err
		}

		lowBin, highBin, err := r.binRangeForMZ(fp, binWidth, correction, mzLow, mzHigh)
		if err != nil {
			return nil, err
		}

		points, err := r.decodeScan(row)
		if err != nil {
			return nil, err
		}

		var sum int64
		for _, p := range points {
			if int(p.Bin) >= lowBin && int(p.Bin) <= highBin {
				sum += int64(p.Intensity)
			}
		}
		if sum > 0 {
			out = append(out, Point3D{FrameNum: row.FrameNum, ScanNum: row.ScanNum, Intensity: sum})
		}
	}

	return out, nil
}

// getXICBinCentric answers GetXIC by reading Bin_Intensities directly
//, filtering each bin's transposed entries by
// frame range, and (if frameType >= 0) frame type.
func (r *Reader) getXICBinCentric(lowBin, highBin int32, startFrame, endFrame, frameType int) ([]Point3D, error) {
	type key struct{ frame, scan int }
	sums := make(map[key]int64)

	for bin := lowBin; bin <= highBin; bin++ {
		entries, err := bincentric.ReadBin(r.db, bin)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			frame := int(e.FrameNum)
			if frame < startFrame || frame > endFrame {
				continue
			}
			if frameType >= 0 {
				fp, err := r.GetFrameParameters(frame)
				if err != nil {
					return nil, err
				}
				if int(r.normalizeFrameType(int(fp.FrameType()))) != frameType {
					continue
				}
			}
			sums[key{frame, int(e.ScanNum)}] += int64(e.Intensity)
		}
	}

	out := make([]Point3D, 0, len(sums))
	for k, v := range sums {
		out = append(out, Point3D{FrameNum: k.frame, ScanNum: k.scan, Intensity: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FrameNum != out[j].FrameNum {
			return out[i].FrameNum < out[j].FrameNum
		}
		return out[i].ScanNum < out[j].ScanNum
	})

	return out, nil
}

// GetXICAsArray collapses GetXIC to one intensity total per frame number,
// indexed frame-by-frame from startFrame to endFrame.
func (r *Reader) GetXICAsArray(targetMZ, tolerance float64, frameType int, toleranceType ToleranceType, startFrame, endFrame int) ([]int64, error) {
	points, err := r.GetXIC(targetMZ, tolerance, frameType, toleranceType, startFrame, endFrame)
	if err != nil {
		return nil, err
	}

	out := make([]int64, endFrame-startFrame+1)
	for _, p := range points {
		idx := p.FrameNum - startFrame
		if idx >= 0 && idx < len(out) {
			out[idx] += p.Intensity
		}
	}

	return out, nil
}

// GetDriftTimeProfile sums intensities within [mzLow, mzHigh] per scan
// number within a single frame, the IMS drift-time profile for that m/z
// window.
func (r *Reader) GetDriftTimeProfile(frameNum int, mzLow, mzHigh float64) ([]int64, error) {
	fp, err := r.GetFrameParameters(frameNum)
	if err != nil {
		return nil, err
	}

	rows, err := r.scanRowsInRange(frameNum, frameNum, -1, -1, -1)
	if err != nil {
		return nil, err
	}

	binWidth, correction := r.binWidthAndCorrection()
	lowBin, highBin, err := r.binRangeForMZ(fp, binWidth, correction, mzLow, mzHigh)
	if err != nil {
		return nil, err
	}

	profile := make([]int64, fp.ScansCount())
	for _, row := range rows {
		if row.ScanNum >= len(profile) {
			continue
		}
		points, err := r.decodeScan(row)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			if int(p.Bin) >= lowBin && int(p.Bin) <= highBin {
				profile[row.ScanNum] += int64(p.Intensity)
			}
		}
	}

	return profile, nil
}

// Get3DElutionProfile returns every (frame, scan, intensity) point within
// [mzLow, mzHigh] across [startFrame, endFrame]: the full 3D surface (LC
// time x drift time x intensity) for a chromatographic feature. It takes
// an explicit window rather than GetXIC's target_mz/tolerance/
// tolerance_type shape since callers of this variant already work in
// m/z-range terms (e.g. a feature picker's detected window).
func (r *Reader) Get3DElutionProfile(mzLow, mzHigh float64, startFrame, endFrame int) ([]Point3D, error) {
	return r.getXICRange(mzLow, mzHigh, startFrame, endFrame, -1)
}

// GetFramesAndScanIntensitiesForMZ is Get3DElutionProfile with a symmetric
// (Thomson) tolerance window around a single target m/z.
func (r *Reader) GetFramesAndScanIntensitiesForMZ(mz, tolerance float64, startFrame, endFrame int) ([]Point3D, error) {
	return r.Get3DElutionProfile(mz-tolerance, mz+tolerance, startFrame, endFrame)
}

// AccumulateFrameData returns the summed single-frame spectrum, a
// convenience wrapper over GetSpectrum for one frame across every scan.
func (r *Reader) AccumulateFrameData(frameNum int) (*Spectrum, error) {
	return r.GetSpectrum(frameNum, frameNum, -1, -1, -1)
}

// GetDriftTime returns the pressure-corrected drift time (ms) of a scan
// within a frame, using the dataset's detected pressure unit to normalize
// the frame's back-pressure reading to Torr before correction.
func (r *Reader) GetDriftTime(frameNum, scanNum int) (float64, error) {
	fp, err := r.GetFrameParameters(frameNum)
	if err != nil {
		return 0, err
	}

	var avgTOF float64
	if v, ok := fp.Get(params.AverageTOFLength); ok {
		avgTOF = v.Float64()
	}

	var pressure float64
	if v, ok := fp.Get(params.PressureBack); ok {
		pressure = v.Float64()
	}
	pressure = r.normalizePressureToTorr(pressure)

	return calibration.DriftTime(avgTOF, scanNum, pressure), nil
}

func (r *Reader) normalizePressureToTorr(v float64) float64 {
	if r.pressureUnit == "millitorr" {
		return v / 1000.0
	}
	return v
}

// useBinCentricPlan reports whether the bin-centric query plan (scanning
// Bin_Intensities, built offline by package bincentric) would touch fewer
// rows than the scan-centric plan for a query spanning frameSpan frames
// and a bin window of binSpan bins.
func (r *Reader) useBinCentricPlan(frameSpan, binSpan int) bool {
	if r.binCentricRows == 0 {
		return false
	}
	return int64(binSpan) < int64(frameSpan)*r.binCentricRows/maxInt64(1, r.GetFrameCountOrOne())
}

// GetFrameCountOrOne avoids a division by zero in useBinCentricPlan for
// datasets that have not yet recorded NumFrames.
func (r *Reader) GetFrameCountOrOne() int64 {
	n := r.GetFrameCount()
	if n == 0 {
		return 1
	}
	return int64(n)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
