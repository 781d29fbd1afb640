package hose

import (
	"errors"
	"fmt"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// Validation errors.
var (
	ErrAssetNameTooLong              = primitives.ErrAssetNameTooLong
	ErrInvalidNetworkId              = primitives.ErrInvalidNetworkId
	ErrInvalidMintAmount             = errors.New("invalid mint amount")
	ErrMissingStakeCredentialDeposit = errors.New("stake credential deposit missing from protocol parameters")
	ErrRedeemerForNativeScript       = errors.New("redeemer targets a native script")
	ErrRedeemerMissing               = errors.New("script requires a redeemer")
	ErrInvalidValidityInterval       = errors.New("validity interval start must precede its end")
	ErrMissingChangeAddress          = errors.New("change address not set")
	ErrInvalidCollateral             = errors.New("collateral input must hold only lovelace and no script")
)

// Selection errors.
var (
	ErrNoCollateralCandidate = errors.New("no utxo can serve as collateral")
	ErrNoUtxosToSpend        = errors.New("no utxos available to spend")
)

// Serialisation errors.
var (
	ErrMalformedScript       = primitives.ErrMalformedScript
	ErrMalformedDatum        = primitives.ErrMalformedDatum
	ErrRedeemerTargetMissing = errors.New("redeemer target not found in transaction")
	ErrCorruptedTxBytes      = primitives.ErrCorruptedTxBytes
	ErrUnsupportedEra        = primitives.ErrUnsupportedEra
)

// InsufficientLovelaceError reports how much lovelace coin selection could not cover.
type InsufficientLovelaceError struct {
	Missing uint64
}

func (e *InsufficientLovelaceError) Error() string {
	return fmt.Sprintf("insufficient lovelace: missing %d", e.Missing)
}

// InsufficientAssetsError reports the native assets coin selection could not cover.
type InsufficientAssetsError struct {
	Deltas primitives.Assets
}

func (e *InsufficientAssetsError) Error() string {
	msg := "insufficient assets:"
	for _, k := range e.Deltas.Keys() {
		msg += fmt.Sprintf(" %s=%d", k.Unit(), e.Deltas[k])
	}
	return msg
}

// InsufficientCollateralError is returned when caller supplied collateral
// does not cover the fee percentage.
type InsufficientCollateralError struct {
	Required  uint64
	Available uint64
}

func (e *InsufficientCollateralError) Error() string {
	return fmt.Sprintf("insufficient collateral: required %d, available %d", e.Required, e.Available)
}

// NonConvergedError is returned when the fee did not settle within MaxIterations.
type NonConvergedError struct {
	LastFee     uint64
	ComputedFee uint64
}

func (e *NonConvergedError) Error() string {
	return fmt.Sprintf("fee did not converge after %d iterations: last %d, computed %d", MaxIterations, e.LastFee, e.ComputedFee)
}

type (
	IndexerError   = backend.IndexerError
	EvaluatorError = backend.EvaluatorError
)
