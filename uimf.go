// Package uimf provides a high-performance storage engine and query
// library for ion-mobility time-of-flight (IMS-TOF) mass spectrometry
// data: a SQLite-backed file format organized as frames (LC time slices)
// of scans (IMS drift slices) of TOF bin intensities, plus the parameter
// model, calibration math, and bin-centric index needed to query it
// efficiently by m/z.
//
// # Basic Usage
//
// Writing a new dataset:
//
//	w, err := uimf.NewWriter("experiment.uimf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Close()
//
//	if err := w.CreateTables(params.IntensityADCInt32); err != nil {
//	    log.Fatal(err)
//	}
//
//	fp := params.NewFrameParams()
//	fp.Set(params.Scans, params.NewInt64(params.TypeInt, 360))
//	fp.Set(params.FrameTypeKey, params.NewInt64(params.TypeInt, int64(params.FrameTypeMS1)))
//	w.InsertFrame(1, fp)
//	w.InsertScan(1, fp, 0, intensities, binWidthNs)
//
// Reading it back:
//
//	r, err := uimf.NewReader("experiment.uimf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	spectrum, err := r.GetSpectrum(1, 1, -1, -1, -1)
//	tic, err := r.GetTIC(1, r.GetFrameCount(), -1, -1, -1)
//
// # Package Structure
//
// This package is a thin top-level convenience wrapper over writer and
// reader. For the on-disk schema see package schema, for the parameter
// model see package params, for bin<->m/z calibration see package
// calibration, and for the offline bin-centric rebuild see package
// bincentric.
package uimf

import (
	"github.com/ionmobility/uimf/params"
	"github.com/ionmobility/uimf/reader"
	"github.com/ionmobility/uimf/writer"
)

// NewWriter opens (creating if necessary) a dataset file for writing.
// Call CreateTables before inserting any frames or scans.
func NewWriter(path string) (*writer.Writer, error) {
	return writer.Open(path)
}

// NewReader opens a dataset file read-only, loading its global parameters
// and detecting its frame-type and pressure-unit conventions.
func NewReader(path string) (*reader.Reader, error) {
	return reader.Open(path)
}

// Re-exported parameter-model identifiers, so callers building frame and
// global parameter maps don't need a second import for the common case.
type (
	GlobalParamKey = params.GlobalParamKey
	FrameParamKey  = params.FrameParamKey
	FrameType      = params.FrameType
	IntensityType  = params.IntensityType
	DataType       = params.DataType
	Value          = params.Value
	ToleranceType  = reader.ToleranceType
)

const (
	TolerancePPM     = reader.TolerancePPM
	ToleranceThomson = reader.ToleranceThomson
)

const (
	FrameTypeMS1         = params.FrameTypeMS1
	FrameTypeMS2         = params.FrameTypeMS2
	FrameTypeCalibration = params.FrameTypeCalibration
	FrameTypePrescan     = params.FrameTypePrescan
)

const (
	IntensityADCInt32  = params.IntensityADCInt32
	IntensityTDCInt16  = params.IntensityTDCInt16
	IntensityFoldedF64 = params.IntensityFoldedF64
)

// NewFrameParams returns an empty, open-ended frame parameter map.
func NewFrameParams() *params.FrameParams { return params.NewFrameParams() }

// NewGlobalParams returns an empty, open-ended global parameter map.
func NewGlobalParams() *params.GlobalParams { return params.NewGlobalParams() }
