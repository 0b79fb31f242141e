package params

import (
	"encoding/binary"
	"math"
)

// FrameParamKey enumerates the per-frame typed map keys.
type FrameParamKey uint16

const (
	StartTimeMinutes FrameParamKey = iota + 1
	DurationSeconds
	Accumulations
	FrameTypeKey
	Scans
	AverageTOFLength
	CalibrationSlope
	CalibrationIntercept
	MassCalibrationCoefficienta2
	MassCalibrationCoefficientb2
	MassCalibrationCoefficientc2
	MassCalibrationCoefficientd2
	MassCalibrationCoefficiente2
	MassCalibrationCoefficientf2
	PressureFront
	PressureBack
	PressureFunnel
	PressureTrap
	VoltEntranceHPFIn
	VoltEntranceHPFOut
	VoltEntranceCondLmt
	AmbientTemperature
	FragmentationProfile
	Decoded
	CalibrationDone
	MultiplexingEncodingSequence
)

// FrameType enumerates the acquisition role of a frame.
type FrameType uint8

const (
	FrameTypeMS1         FrameType = 1
	FrameTypeMS2         FrameType = 2
	FrameTypeCalibration FrameType = 3
	FrameTypePrescan     FrameType = 4
)

// legacyMS1 is the value historically written for MS1 before the modern
// enum.
const legacyMS1 FrameType = 0

type frameDescriptor struct {
	Name        string
	Type        DataType
	Description string
}

var frameDescriptors = map[FrameParamKey]frameDescriptor{
	StartTimeMinutes:             {"StartTimeMinutes", TypeDouble, "Frame start time in minutes"},
	DurationSeconds:              {"DurationSeconds", TypeDouble, "Frame duration in seconds"},
	Accumulations:                {"Accumulations", TypeInt, "Number of accumulations"},
	FrameTypeKey:                 {"FrameType", TypeInt, "MS1/MS2/Calibration/Prescan"},
	Scans:                        {"Scans", TypeInt, "Number of IMS drift scans in the frame"},
	AverageTOFLength:             {"AverageTOFLength", TypeDouble, "Average TOF length in nanoseconds"},
	CalibrationSlope:             {"CalibrationSlope", TypeDouble, "Calibration slope k"},
	CalibrationIntercept:         {"CalibrationIntercept", TypeDouble, "Calibration intercept t0"},
	MassCalibrationCoefficienta2: {"MassCalibrationCoefficienta2", TypeDouble, "Mass error polynomial coefficient a2"},
	MassCalibrationCoefficientb2: {"MassCalibrationCoefficientb2", TypeDouble, "Mass error polynomial coefficient b2"},
	MassCalibrationCoefficientc2: {"MassCalibrationCoefficientc2", TypeDouble, "Mass error polynomial coefficient c2"},
	MassCalibrationCoefficientd2: {"MassCalibrationCoefficientd2", TypeDouble, "Mass error polynomial coefficient d2"},
	MassCalibrationCoefficiente2: {"MassCalibrationCoefficiente2", TypeDouble, "Mass error polynomial coefficient e2"},
	MassCalibrationCoefficientf2: {"MassCalibrationCoefficientf2", TypeDouble, "Mass error polynomial coefficient f2"},
	PressureFront:                {"PressureFront", TypeDouble, "Front pressure (Torr)"},
	PressureBack:                 {"PressureBack", TypeDouble, "Back-of-drift-tube pressure (Torr)"},
	PressureFunnel:               {"PressureFunnel", TypeDouble, "Funnel pressure (Torr)"},
	PressureTrap:                 {"PressureTrap", TypeDouble, "Trap pressure (Torr)"},
	VoltEntranceHPFIn:            {"VoltEntranceHPFIn", TypeDouble, "Entrance HPF-in voltage"},
	VoltEntranceHPFOut:           {"VoltEntranceHPFOut", TypeDouble, "Entrance HPF-out voltage"},
	VoltEntranceCondLmt:          {"VoltEntranceCondLmt", TypeDouble, "Entrance conductance limit voltage"},
	AmbientTemperature:           {"AmbientTemperature", TypeDouble, "Ambient temperature"},
	FragmentationProfile:         {"FragmentationProfile", TypeString, "Ordered sequence of float64 stored as bytes"},
	Decoded:                      {"Decoded", TypeBool, "Whether the frame has been demultiplexed"},
	CalibrationDone:              {"CalibrationDone", TypeBool, "Whether calibration has been applied"},
	MultiplexingEncodingSequence: {"MultiplexingEncodingSequence", TypeString, "Multiplexing encoding sequence"},
}

// FrameDescriptor returns the canonical name, data type and description
// for a FrameParamKey.
func FrameDescriptor(key FrameParamKey) (name string, t DataType, description string, ok bool) {
	d, ok := frameDescriptors[key]
	return d.Name, d.Type, d.Description, ok
}

// legacyAliases maps historical column names to the modern enum.
// Lookup by name first attempts exact match, then case-insensitive, then
// this alias table.
var legacyAliases = map[string]FrameParamKey{
	"voltEntranceIFTIn": VoltEntranceHPFIn,
	"a2":                MassCalibrationCoefficienta2,
	"b2":                MassCalibrationCoefficientb2,
	"c2":                MassCalibrationCoefficientc2,
	"d2":                MassCalibrationCoefficientd2,
	"e2":                MassCalibrationCoefficiente2,
	"f2":                MassCalibrationCoefficientf2,
	"Temperature":       AmbientTemperature,
	"StartTime":         StartTimeMinutes,
	"Duration":          DurationSeconds,
	"NumScans":          Scans,
	"AvgTOFLength":      AverageTOFLength,
	"CalibrationCoefA":  CalibrationSlope,
	"CalibrationCoefB":  CalibrationIntercept,
	"IMFProfile":        FragmentationProfile,
}

// nameIndex is the case-sensitive canonical-name -> key index, built once.
var nameIndex = func() map[string]FrameParamKey {
	idx := make(map[string]FrameParamKey, len(frameDescriptors))
	for k, d := range frameDescriptors {
		idx[d.Name] = k
	}
	return idx
}()

// lowerIndex is the lowercased canonical-name index for case-insensitive
// lookup.
var lowerIndex = func() map[string]FrameParamKey {
	idx := make(map[string]FrameParamKey, len(frameDescriptors))
	for k, d := range frameDescriptors {
		idx[lower(d.Name)] = k
	}
	return idx
}()

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// LookupFrameParamKey resolves a historical or canonical column name to a
// FrameParamKey: exact match first, then case-insensitive, then the legacy
// alias table. AmbientTemperature is the one legacy alias that maps
// across maps (global "Temperature" historically coexisted with a
// per-frame reading in some legacy files); callers needing that specific
// alias should check name == "Temperature" before calling this.
func LookupFrameParamKey(name string) (FrameParamKey, bool) {
	if k, ok := nameIndex[name]; ok {
		return k, true
	}
	if k, ok := lowerIndex[lower(name)]; ok {
		return k, true
	}
	if k, ok := legacyAliases[name]; ok {
		return k, true
	}

	return 0, false
}

// FrameParams is the open-ended typed map of a single frame's parameters.
type FrameParams struct {
	values map[FrameParamKey]Value
}

// NewFrameParams returns an empty FrameParams map.
func NewFrameParams() *FrameParams {
	return &FrameParams{values: make(map[FrameParamKey]Value)}
}

// Set stores v under key.
func (f *FrameParams) Set(key FrameParamKey, v Value) {
	f.values[key] = v
}

// Get returns the value for key and whether it was present.
func (f *FrameParams) Get(key FrameParamKey) (Value, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Keys returns the set of keys currently present.
func (f *FrameParams) Keys() []FrameParamKey {
	keys := make([]FrameParamKey, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	return keys
}

// FrameType returns the frame's FrameType, or 0 if unset.
func (f *FrameParams) FrameType() FrameType {
	v, ok := f.Get(FrameTypeKey)
	if !ok {
		return 0
	}
	return FrameType(v.Int64())
}

// ScansCount returns the Scans parameter, or 0 if unset.
func (f *FrameParams) ScansCount() int {
	v, ok := f.Get(Scans)
	if !ok {
		return 0
	}
	return int(v.Int64())
}

// Calibration extracts the calibration slope/intercept and polynomial
// coefficients as a flat struct, suitable for calibration.Coefficients.
func (f *FrameParams) Calibration() (slope, intercept, a2, b2, c2, d2, e2, f2 float64) {
	get := func(k FrameParamKey) float64 {
		v, ok := f.Get(k)
		if !ok {
			return 0
		}
		return v.Float64()
	}

	return get(CalibrationSlope), get(CalibrationIntercept),
		get(MassCalibrationCoefficienta2), get(MassCalibrationCoefficientb2),
		get(MassCalibrationCoefficientc2), get(MassCalibrationCoefficientd2),
		get(MassCalibrationCoefficiente2), get(MassCalibrationCoefficientf2)
}

// EncodeFragmentationProfile serializes a double sequence into the byte
// encoding persisted for FragmentationProfile.
func EncodeFragmentationProfile(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:i*8+8], math.Float64bits(v))
	}
	return out
}

// DecodeFragmentationProfile is the inverse of EncodeFragmentationProfile.
func DecodeFragmentationProfile(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8]))
	}
	return out
}
