// Package calibration implements bin<->TOF<->m/z conversion and
// pressure-corrected drift time.
package calibration

import (
	"math"

	"github.com/ionmobility/uimf/errs"
)

// StandardPressure is the reference drift-tube pressure (Torr) used for
// pressure-corrected drift time.
const StandardPressure = 4.0

// Coefficients holds the per-frame calibration constants: slope/intercept
// and the six mass-error polynomial residual correction terms (a2..f2,
// default zero).
type Coefficients struct {
	Slope     float64
	Intercept float64
	A2, B2, C2, D2, E2, F2 float64
}

// HasPolynomialCorrection reports whether any of a2..f2 is non-zero. When
// true, InverseMZToBin refuses the request.
func (c Coefficients) HasPolynomialCorrection() bool {
	return c.A2 != 0 || c.B2 != 0 || c.C2 != 0 || c.D2 != 0 || c.E2 != 0 || c.F2 != 0
}

// BinToMZ converts a TOF bin to m/z using the quadratic calibration law
// plus the polynomial residual correction:
//
//	t  = bin * binWidthNs / 1000                      (microseconds)
//	mz = (slope * (t - tofCorrectionNs/1000 - intercept))^2
//	     + a2*t + b2*t^3 + c2*t^5 + d2*t^7 + e2*t^9 + f2*t^11
func BinToMZ(bin int, binWidthNs, tofCorrectionNs float64, c Coefficients) float64 {
	t := float64(bin) * binWidthNs / 1000.0
	base := c.Slope * (t - tofCorrectionNs/1000.0 - c.Intercept)
	mz := base * base

	mz += c.A2*t + c.B2*math.Pow(t, 3) + c.C2*math.Pow(t, 5) +
		c.D2*math.Pow(t, 7) + c.E2*math.Pow(t, 9) + c.F2*math.Pow(t, 11)

	return mz
}

// InverseMZToBin converts m/z back to the nearest bin using the inverse of
// the quadratic law, without polynomial correction:
//
//	bin ≈ (sqrt(mz)/slope + intercept) * 1000/binWidthNs + tofCorrectionNs/binWidthNs
//
// It returns errs.ErrUnsupportedInverse if c has any non-zero polynomial
// coefficient; callers must fall back to a scan-centric search instead.
func InverseMZToBin(mz, binWidthNs, tofCorrectionNs float64, c Coefficients) (int, error) {
	if c.HasPolynomialCorrection() {
		return 0, errs.ErrUnsupportedInverse
	}
	if mz < 0 {
		return 0, errs.ErrInvalidRange
	}

	t := math.Sqrt(mz)/c.Slope + c.Intercept
	bin := t*1000.0/binWidthNs + tofCorrectionNs/binWidthNs

	return int(math.Round(bin)), nil
}

// PpmBin converts a bin directly to m/z for ppm-bin-based instruments
// (InstrumentClass.PpmBinBased), which skip the quadratic law entirely.
// mzStart/mzEnd and binCount come from the global parameters
// PpmBinBasedStartMZ/EndMZ and Bins.
func PpmBin(bin, binCount int, mzStart, mzEnd float64) float64 {
	if binCount <= 0 {
		return mzStart
	}

	frac := float64(bin) / float64(binCount)

	return mzStart + frac*(mzEnd-mzStart)
}

// DriftTime computes the pressure-corrected drift time in milliseconds for
// a scan, given the frame's AverageTOFLength (ns) and scan number within
// the frame. When framePressureTorr is zero (no back-of-drift-tube or
// funnel pressure known), the raw value is returned unmodified.
func DriftTime(averageTOFLengthNs float64, scanNum int, framePressureTorr float64) float64 {
	raw := averageTOFLengthNs * float64(scanNum) / 1e6 // ms

	if framePressureTorr == 0 {
		return raw
	}

	return raw * StandardPressure / framePressureTorr
}
