package params

// GlobalParamKey enumerates the process-wide scalar metadata keys.
type GlobalParamKey uint16

const (
	InstrumentName GlobalParamKey = iota + 1
	DateStarted
	NumFrames
	TimeOffset
	BinWidth
	Bins
	TOFCorrectionTime
	TOFIntensityType
	DatasetType
	PrescanTOFPulses
	PrescanAccumulations
	PrescanTICThreshold
	PrescanContinuous
	PrescanProfile
	InstrumentClass
	PpmBinBasedStartMZ
	PpmBinBasedEndMZ
	DriftTubeLength
	DriftGas
)

// IntensityType enumerates the TOF intensity representation, constrained
// to one of {ADC-int32, TDC-int16, FOLDED-float}.
type IntensityType uint8

const (
	IntensityADCInt32  IntensityType = 1
	IntensityTDCInt16  IntensityType = 2
	IntensityFoldedF64 IntensityType = 3
)

// InstrumentClassKind distinguishes TOF instruments (which use the
// quadratic calibration law) from ppm-bin-based ones.
type InstrumentClassKind uint8

const (
	InstrumentClassTOF         InstrumentClassKind = 0
	InstrumentClassPpmBinBased InstrumentClassKind = 1
)

type globalDescriptor struct {
	Name        string
	Type        DataType
	Description string
}

var globalDescriptors = map[GlobalParamKey]globalDescriptor{
	InstrumentName:       {"InstrumentName", TypeString, "Name of the instrument"},
	DateStarted:          {"DateStarted", TypeDateString, "Acquisition start date/time"},
	NumFrames:            {"NumFrames", TypeInt, "Number of frames in the dataset"},
	TimeOffset:           {"TimeOffset", TypeInt, "Time offset applied during intensity encoding"},
	BinWidth:             {"BinWidth", TypeDouble, "TOF bin width in nanoseconds"},
	Bins:                 {"Bins", TypeInt, "Number of TOF bins"},
	TOFCorrectionTime:    {"TOFCorrectionTime", TypeDouble, "TOF correction time in nanoseconds"},
	TOFIntensityType:     {"TOFIntensityType", TypeString, "Intensity encoding type (ADC/TDC/FOLDED)"},
	DatasetType:          {"DatasetType", TypeString, "Free-text dataset classification"},
	PrescanTOFPulses:     {"PrescanTOFPulses", TypeInt, "Prescan TOF pulse count"},
	PrescanAccumulations: {"PrescanAccumulations", TypeInt, "Prescan accumulation count"},
	PrescanTICThreshold:  {"PrescanTICThreshold", TypeInt, "Prescan TIC threshold"},
	PrescanContinuous:    {"PrescanContinuous", TypeBool, "Whether prescan runs continuously"},
	PrescanProfile:       {"PrescanProfile", TypeString, "Prescan profile name"},
	InstrumentClass:      {"InstrumentClass", TypeInt, "0=TOF, 1=PpmBinBased"},
	PpmBinBasedStartMZ:   {"PpmBinBasedStartMZ", TypeDouble, "Start m/z for ppm-bin instruments"},
	PpmBinBasedEndMZ:     {"PpmBinBasedEndMZ", TypeDouble, "End m/z for ppm-bin instruments"},
	DriftTubeLength:      {"DriftTubeLength", TypeDouble, "Drift tube length"},
	DriftGas:             {"DriftGas", TypeString, "Drift gas name"},
}

// GlobalDescriptor returns the canonical name, data type and description
// for a GlobalParamKey.
func GlobalDescriptor(key GlobalParamKey) (name string, t DataType, description string, ok bool) {
	d, ok := globalDescriptors[key]
	return d.Name, d.Type, d.Description, ok
}

// GlobalParams is the typed, open map of global parameter values.
type GlobalParams struct {
	values map[GlobalParamKey]Value
}

// NewGlobalParams returns an empty GlobalParams map.
func NewGlobalParams() *GlobalParams {
	return &GlobalParams{values: make(map[GlobalParamKey]Value)}
}

// Set stores v under key.
func (g *GlobalParams) Set(key GlobalParamKey, v Value) {
	g.values[key] = v
}

// Get returns the value for key and whether it was present.
func (g *GlobalParams) Get(key GlobalParamKey) (Value, bool) {
	v, ok := g.values[key]
	return v, ok
}

// IntensityType returns the dataset's intensity type, defaulting to
// IntensityADCInt32 if unset.
func (g *GlobalParams) IntensityType() IntensityType {
	v, ok := g.Get(TOFIntensityType)
	if !ok {
		return IntensityADCInt32
	}

	switch v.String() {
	case "TDC", "tdc":
		return IntensityTDCInt16
	case "FOLDED", "folded":
		return IntensityFoldedF64
	default:
		return IntensityADCInt32
	}
}
