package primitives

import "errors"

var (
	ErrAssetNameTooLong = errors.New("asset name exceeds 32 bytes")
	ErrInvalidNetworkId = errors.New("invalid network id")
	ErrMalformedScript  = errors.New("malformed script")
	ErrMalformedDatum   = errors.New("malformed datum")
	ErrMalformedOutput  = errors.New("malformed output")
	ErrCorruptedTxBytes = errors.New("corrupted transaction bytes")
	ErrUnsupportedEra   = errors.New("unsupported transaction era")
)
