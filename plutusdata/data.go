// Package plutusdata builds and encodes Plutus data for datums and
// redeemers. Integers are arbitrary precision; values outside 64 bits are
// emitted as CBOR bignums (tags 2 and 3).
package plutusdata

import (
	"fmt"
	"math/big"

	"github.com/blinklabs-io/plutigo/data"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// Unit is the empty constructor, the usual redeemer for scripts that
// ignore it.
func Unit() data.PlutusData {
	return data.NewConstr(0)
}

func Int(v int64) data.PlutusData {
	return data.NewInteger(big.NewInt(v))
}

// BigInt copies v.
func BigInt(v *big.Int) data.PlutusData {
	return data.NewInteger(new(big.Int).Set(v))
}

func Bytes(b []byte) data.PlutusData {
	return data.NewByteString(append([]byte(nil), b...))
}

func Constr(tag uint, fields ...data.PlutusData) data.PlutusData {
	return data.NewConstr(tag, fields...)
}

func List(items ...data.PlutusData) data.PlutusData {
	return data.NewList(items...)
}

func Map(pairs ...[2]data.PlutusData) data.PlutusData {
	return data.NewMap(pairs)
}

// Bool encodes false and true as constructors 0 and 1.
func Bool(b bool) data.PlutusData {
	if b {
		return data.NewConstr(1)
	}
	return data.NewConstr(0)
}

// Encode serializes pd to CBOR.
func Encode(pd data.PlutusData) ([]byte, error) {
	raw, err := data.Encode(pd)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", primitives.ErrMalformedDatum, err)
	}
	return raw, nil
}

// Decode parses CBOR Plutus data.
func Decode(raw []byte) (data.PlutusData, error) {
	pd, err := data.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", primitives.ErrMalformedDatum, err)
	}
	return pd, nil
}

// EncodeValue marshals v with Marshal and serializes the result.
func EncodeValue(v any) ([]byte, error) {
	pd, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Encode(pd)
}

// DecodeValue parses raw and unmarshals it into v.
func DecodeValue(raw []byte, v any) error {
	pd, err := Decode(raw)
	if err != nil {
		return err
	}
	return Unmarshal(pd, v)
}

// InlineDatum marshals v into an inline output datum.
func InlineDatum(v any) (primitives.DatumOption, error) {
	raw, err := EncodeValue(v)
	if err != nil {
		return primitives.DatumOption{}, err
	}
	return primitives.InlineDatum(raw), nil
}
