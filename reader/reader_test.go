package reader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ionmobility/uimf/bincentric"
	"github.com/ionmobility/uimf/calibration"
	"github.com/ionmobility/uimf/errs"
	"github.com/ionmobility/uimf/params"
	"github.com/ionmobility/uimf/schema"
	"github.com/ionmobility/uimf/writer"
)

func buildFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.uimf")
	w, err := writer.Open(path)
	require.NoError(t, err)
	require.NoError(t, w.CreateTables(params.IntensityADCInt32))

	require.NoError(t, w.AddUpdateGlobal(params.NumFrames, params.NewInt64(params.TypeInt, 2)))
	require.NoError(t, w.AddUpdateGlobal(params.BinWidth, params.NewFloat64(params.TypeDouble, 1.0)))
	require.NoError(t, w.AddUpdateGlobal(params.TimeOffset, params.NewInt64(params.TypeInt, 0)))

	for frame := 1; frame <= 2; frame++ {
		fp := params.NewFrameParams()
		fp.Set(params.Scans, params.NewInt64(params.TypeInt, 5))
		fp.Set(params.FrameTypeKey, params.NewInt64(params.TypeInt, int64(params.FrameTypeMS1)))
		fp.Set(params.CalibrationSlope, params.NewFloat64(params.TypeDouble, 1.0))
		fp.Set(params.CalibrationIntercept, params.NewFloat64(params.TypeDouble, 0.0))
		fp.Set(params.AverageTOFLength, params.NewFloat64(params.TypeDouble, 100.0))
		fp.Set(params.PressureBack, params.NewFloat64(params.TypeDouble, 4.0))
		require.NoError(t, w.InsertFrame(frame, fp))

		for scan := 0; scan < 5; scan++ {
			intensities := make([]int32, 50)
			intensities[10+scan] = int32(100 * (scan + 1))
			_, err := w.InsertScan(frame, fp, scan, intensities, 1.0)
			require.NoError(t, err)
		}
	}

	require.NoError(t, w.Flush(true))
	require.NoError(t, w.Close())

	return path
}

func TestReader_Open_LoadsGlobals(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 2, r.GetFrameCount())
}

func TestReader_GetFrameParameters_CachesResult(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	fp1, err := r.GetFrameParameters(1)
	require.NoError(t, err)
	assert.Equal(t, 5, fp1.ScansCount())

	fp2, err := r.GetFrameParameters(1)
	require.NoError(t, err)
	assert.Same(t, fp1, fp2)
}

func TestReader_GetFrameParameters_UnknownFrame(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.GetFrameParameters(999)
	assert.Error(t, err)
}

func TestReader_GetSpectrum_SumsAcrossScans(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	spec, err := r.GetSpectrum(1, 1, -1, -1, -1)
	require.NoError(t, err)
	assert.Len(t, spec.Bins, 5)

	var total int64
	for _, v := range spec.Intensities {
		total += v
	}
	assert.Equal(t, int64(100+200+300+400+500), total)
}

func TestReader_GetSpectrum_ScanRangeRestrictsToOneScan(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	spec, err := r.GetSpectrum(1, 1, -1, 0, 0)
	require.NoError(t, err)
	require.Len(t, spec.Bins, 1)
	assert.EqualValues(t, 10, spec.Bins[0])
	assert.Equal(t, int64(100), spec.Intensities[0])
}

func TestReader_GetSpectrum_ScanRangeSpansMultipleScans(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	spec, err := r.GetSpectrum(1, 1, -1, 1, 2)
	require.NoError(t, err)
	require.Len(t, spec.Bins, 2)

	var total int64
	for _, v := range spec.Intensities {
		total += v
	}
	assert.Equal(t, int64(200+300), total)
}

func TestReader_GetSpectrum_IsCached(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	s1, err := r.GetSpectrum(1, 2, -1, -1, -1)
	require.NoError(t, err)
	s2, err := r.GetSpectrum(1, 2, -1, -1, -1)
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestReader_GetTICAndBPI(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	tic, err := r.GetTIC(1, 1, -1, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), tic)

	bpi, err := r.GetBPI(1, 1, -1, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bpi)
}

func TestReader_GetTIC_ScanRangeRestricts(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	tic, err := r.GetTIC(1, 1, -1, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100+200), tic)
}

func TestReader_GetTICForFrames(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	m, err := r.GetTICForFrames(1, 2, -1, -1, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), m[1])
	assert.Equal(t, int64(1500), m[2])
}

func TestReader_AccumulateFrameData(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	spec, err := r.AccumulateFrameData(1)
	require.NoError(t, err)
	assert.NotEmpty(t, spec.Bins)
}

func TestReader_GetDriftTime_PressureCorrects(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	dt, err := r.GetDriftTime(1, 3)
	require.NoError(t, err)
	assert.Greater(t, dt, 0.0)
}

func TestReader_GetFrameParameters_SkipsUnknownID(t *testing.T) {
	path := buildFixture(t)

	db, err := schema.Open(path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO Frame_Params (FrameNum, ParamID, ParamValue) VALUES (1, 9999, 'x')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	fp, err := r.GetFrameParameters(1)
	require.NoError(t, err)
	_, ok := fp.Get(params.FrameParamKey(9999))
	assert.False(t, ok, "unknown ParamID must not appear in the returned FrameParams")
}

func TestReader_GetXIC_ScanCentric(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	targetMZ := calibration.BinToMZ(12, 1.0, 0, calibration.Coefficients{Slope: 1.0})

	points, err := r.GetXIC(targetMZ, 0, int(params.FrameTypeMS1), ToleranceThomson, 1, 2)
	require.NoError(t, err)

	var total int64
	for _, p := range points {
		total += p.Intensity
	}
	assert.Equal(t, int64(600), total)
}

func TestReader_GetXIC_PPMToleranceWidensWithTargetMZ(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	targetMZ := calibration.BinToMZ(12, 1.0, 0, calibration.Coefficients{Slope: 1.0})

	// A 0 ppm tolerance is equivalent to a 0 Th tolerance: same single bin.
	points, err := r.GetXIC(targetMZ, 0, int(params.FrameTypeMS1), TolerancePPM, 1, 2)
	require.NoError(t, err)

	var total int64
	for _, p := range points {
		total += p.Intensity
	}
	assert.Equal(t, int64(600), total)
}

func TestReader_GetXIC_InvalidToleranceType(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.GetXIC(100, 1, int(params.FrameTypeMS1), ToleranceType(99), 1, 2)
	assert.ErrorIs(t, err, errs.ErrInvalidToleranceType)
}

func TestReader_GetXIC_BinCentric_MatchesScanCentric(t *testing.T) {
	path := buildFixture(t)

	db, err := schema.Open(path)
	require.NoError(t, err)
	stagePath := filepath.Join(t.TempDir(), "stage.bbolt")
	require.NoError(t, bincentric.NewBuilder(db, stagePath).Build(0))
	require.NoError(t, db.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.useBinCentricPlan(2, 1), "fixture should be small enough to pick the bin-centric plan")

	targetMZ := calibration.BinToMZ(12, 1.0, 0, calibration.Coefficients{Slope: 1.0})
	points, err := r.GetXIC(targetMZ, 0, int(params.FrameTypeMS1), ToleranceThomson, 1, 2)
	require.NoError(t, err)

	var total int64
	for _, p := range points {
		total += p.Intensity
	}
	assert.Equal(t, int64(600), total)
	assert.Len(t, points, 2)
}

func TestReader_Open_FailsOnMixedFrameTypeConventions(t *testing.T) {
	path := buildFixture(t)

	// the fixture's frames use the modern MS1=1 encoding; adding one frame
	// with the legacy 0 encoding makes the file undecidable
	db, err := schema.Open(path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO Frame_Params (FrameNum, ParamID, ParamValue) VALUES (3, ?, '0')",
		int(params.FrameTypeKey))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, errs.ErrMixedFrameTypeZero)
}

func TestReader_GetDriftTime_MilliTorrDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "millitorr.uimf")
	w, err := writer.Open(path)
	require.NoError(t, err)
	require.NoError(t, w.CreateTables(params.IntensityADCInt32))

	fp := params.NewFrameParams()
	fp.Set(params.Scans, params.NewInt64(params.TypeInt, 100))
	fp.Set(params.FrameTypeKey, params.NewInt64(params.TypeInt, int64(params.FrameTypeMS1)))
	fp.Set(params.AverageTOFLength, params.NewFloat64(params.TypeDouble, 100000.0))
	fp.Set(params.PressureBack, params.NewFloat64(params.TypeDouble, 2000.0)) // 2000 mTorr = 2 Torr
	require.NoError(t, w.InsertFrame(1, fp))
	require.NoError(t, w.Flush(true))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	// raw = 100000*50/1e6 = 5.0 ms; corrected = 5.0*4.0/2.0 = 10.0 ms
	dt, err := r.GetDriftTime(1, 50)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, dt, 1e-9)
}

func TestReader_GetSpectrumForMZRange_ScanCentric(t *testing.T) {
	r, err := Open(buildFixture(t))
	require.NoError(t, err)
	defer r.Close()

	coeff := calibration.Coefficients{Slope: 1.0}
	mzLow := calibration.BinToMZ(10, 1.0, 0, coeff)
	mzHigh := calibration.BinToMZ(12, 1.0, 0, coeff)

	spec, err := r.GetSpectrumForMZRange(1, 2, int(params.FrameTypeMS1), -1, -1, mzLow, mzHigh)
	require.NoError(t, err)
	require.Len(t, spec.Bins, 3)

	var total int64
	for _, v := range spec.Intensities {
		total += v
	}
	assert.Equal(t, int64(2*(100+200+300)), total)
}

func TestReader_GetSpectrumForMZRange_BinCentricMatchesScanCentric(t *testing.T) {
	path := buildFixture(t)

	db, err := schema.Open(path)
	require.NoError(t, err)
	stagePath := filepath.Join(t.TempDir(), "stage.bbolt")
	require.NoError(t, bincentric.NewBuilder(db, stagePath).Build(0))
	require.NoError(t, db.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	coeff := calibration.Coefficients{Slope: 1.0}
	mzLow := calibration.BinToMZ(10, 1.0, 0, coeff)
	mzHigh := calibration.BinToMZ(12, 1.0, 0, coeff)

	require.True(t, r.useBinCentricPlan(2, 3))
	spec, err := r.GetSpectrumForMZRange(1, 2, int(params.FrameTypeMS1), -1, -1, mzLow, mzHigh)
	require.NoError(t, err)
	require.Len(t, spec.Bins, 3)

	var total int64
	for _, v := range spec.Intensities {
		total += v
	}
	assert.Equal(t, int64(2*(100+200+300)), total)
}

func TestReader_SpectrumCache_EvictsOldestBeyondCapacity(t *testing.T) {
	c := newSpectrumCache(2)
	c.put(spectrumCacheKey{startFrame: 1}, &Spectrum{})
	c.put(spectrumCacheKey{startFrame: 2}, &Spectrum{})
	c.put(spectrumCacheKey{startFrame: 3}, &Spectrum{})

	_, ok := c.get(spectrumCacheKey{startFrame: 1})
	assert.False(t, ok)

	_, ok = c.get(spectrumCacheKey{startFrame: 3})
	assert.True(t, ok)
}
