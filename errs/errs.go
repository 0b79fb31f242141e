// Package errs defines the sentinel errors shared across the uimf packages.
//
// Callers should compare with errors.Is, not string matching. Most functions
// wrap one of these with additional context via fmt.Errorf("...: %w", ...).
package errs

import "errors"

// Kind classifies a sentinel error into one of the error kinds from the
// storage engine's error handling design.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidArgument
	KindCorruption
	KindSchemaMismatch
	KindIO
	KindOutOfCapacity
)

// Sentinel errors. Grouped by the Kind they belong to.
var (
	// NotFound
	ErrFrameNotFound  = errors.New("uimf: frame not found")
	ErrScanNotFound   = errors.New("uimf: scan not found")
	ErrTableNotFound  = errors.New("uimf: table not found")
	ErrParamNotFound  = errors.New("uimf: parameter not found")

	// InvalidArgument
	ErrInvalidRange          = errors.New("uimf: invalid range")
	ErrInvalidFrameType      = errors.New("uimf: invalid frame type")
	ErrInvalidToleranceType  = errors.New("uimf: invalid tolerance type")
	ErrInvalidIntensityType  = errors.New("uimf: invalid intensity type")
	ErrUnsupportedInverse    = errors.New("uimf: inverse calibration unsupported with non-zero polynomial coefficients")
	ErrNegativeBin           = errors.New("uimf: negative bin number")
	ErrNonIncreasingBins     = errors.New("uimf: bin numbers must be strictly increasing")
	ErrZeroIntensity         = errors.New("uimf: intensity must be non-zero")

	// Corruption
	ErrLZFOverflow        = errors.New("uimf: lzf output buffer overflow")
	ErrLZFUnderflow       = errors.New("uimf: lzf truncated input")
	ErrLZFBadBackref      = errors.New("uimf: lzf invalid back-reference")
	ErrRLETruncated       = errors.New("uimf: rle stream truncated")
	ErrMixedFrameTypeZero = errors.New("uimf: frame type 0 and 1 both present")
	ErrCorruptBlob        = errors.New("uimf: corrupt intensities blob")

	// SchemaMismatch
	ErrUnknownParamID  = errors.New("uimf: unknown parameter id")
	ErrLegacySchema    = errors.New("uimf: legacy schema present")
	ErrNoSchema        = errors.New("uimf: neither legacy nor modern schema present")

	// Io
	ErrWriterClosed  = errors.New("uimf: writer is closed")
	ErrReaderClosed  = errors.New("uimf: reader is closed")
	ErrKeyInsert     = errors.New("uimf: failed to insert parameter key")

	// OutOfCapacity
	ErrOutputTooSmall = errors.New("uimf: output buffer too small")
)

var kindOf = map[error]Kind{
	ErrFrameNotFound: KindNotFound,
	ErrScanNotFound:  KindNotFound,
	ErrTableNotFound: KindNotFound,
	ErrParamNotFound: KindNotFound,

	ErrInvalidRange:         KindInvalidArgument,
	ErrInvalidFrameType:     KindInvalidArgument,
	ErrInvalidToleranceType: KindInvalidArgument,
	ErrInvalidIntensityType: KindInvalidArgument,
	ErrUnsupportedInverse:   KindInvalidArgument,
	ErrNegativeBin:          KindInvalidArgument,
	ErrNonIncreasingBins:    KindInvalidArgument,
	ErrZeroIntensity:        KindInvalidArgument,

	ErrLZFOverflow:        KindCorruption,
	ErrLZFUnderflow:       KindCorruption,
	ErrLZFBadBackref:      KindCorruption,
	ErrRLETruncated:       KindCorruption,
	ErrMixedFrameTypeZero: KindCorruption,
	ErrCorruptBlob:        KindCorruption,

	ErrUnknownParamID: KindSchemaMismatch,
	ErrLegacySchema:   KindSchemaMismatch,
	ErrNoSchema:       KindSchemaMismatch,

	ErrWriterClosed: KindIO,
	ErrReaderClosed: KindIO,
	ErrKeyInsert:    KindIO,

	ErrOutputTooSmall: KindOutOfCapacity,
}

// ClassifyKind returns the Kind of a sentinel error known to this package, or
// KindUnknown if err does not wrap one of them.
func ClassifyKind(err error) Kind {
	for sentinel, kind := range kindOf {
		if errors.Is(err, sentinel) {
			return kind
		}
	}

	return KindUnknown
}
