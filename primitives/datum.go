package primitives

import (
	"fmt"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
)

type DatumKind uint8

const (
	DatumNone DatumKind = iota
	DatumHash
	DatumInline
)

// DatumOption is the datum attached to an output: nothing, a hash of a
// datum supplied in the witness set, or the datum bytes themselves.
type DatumOption struct {
	Kind   DatumKind
	Hash   common.Blake2b256
	Inline []byte
}

func NoDatum() DatumOption {
	return DatumOption{}
}

func HashedDatum(hash common.Blake2b256) DatumOption {
	return DatumOption{Kind: DatumHash, Hash: hash}
}

// InlineDatum carries the canonical CBOR bytes of a Plutus data value.
func InlineDatum(raw []byte) DatumOption {
	return DatumOption{Kind: DatumInline, Inline: raw}
}

func (d DatumOption) IsNone() bool {
	return d.Kind == DatumNone
}

// DatumHashOf hashes datum bytes the way the ledger keys witness datums.
func DatumHashOf(raw []byte) common.Blake2b256 {
	return common.Blake2b256Hash(raw)
}

// ValidateData checks that raw holds exactly one well-formed CBOR item.
func ValidateData(raw []byte) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty", ErrMalformedDatum)
	}
	var item cbor.RawMessage
	n, err := cbor.Decode(raw, &item)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	if n != len(raw) {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedDatum, len(raw)-n)
	}
	return nil
}

// ToLedgerDatum wraps raw Plutus data bytes into the ledger datum type,
// which re-emits the original bytes when encoded.
func ToLedgerDatum(raw []byte) (common.Datum, error) {
	if err := ValidateData(raw); err != nil {
		return common.Datum{}, err
	}
	var datum common.Datum
	if _, err := cbor.Decode(raw, &datum); err != nil {
		return common.Datum{}, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	return datum, nil
}

func (d DatumOption) toBabbage() (*babbage.BabbageTransactionOutputDatumOption, error) {
	var encoded []byte
	var err error
	switch d.Kind {
	case DatumNone:
		return nil, nil
	case DatumHash:
		encoded, err = cbor.Encode([]any{0, d.Hash})
	case DatumInline:
		if verr := ValidateData(d.Inline); verr != nil {
			return nil, verr
		}
		encoded, err = cbor.Encode([]any{1, cbor.Tag{Number: 24, Content: d.Inline}})
	default:
		return nil, fmt.Errorf("unknown datum kind %d", d.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode datum option: %w", err)
	}
	var opt babbage.BabbageTransactionOutputDatumOption
	if err := opt.UnmarshalCBOR(encoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	return &opt, nil
}

func decodeDatumOption(raw []byte) (DatumOption, error) {
	var pair struct {
		cbor.StructAsArray
		Kind    uint
		Payload cbor.RawMessage
	}
	if _, err := cbor.Decode(raw, &pair); err != nil {
		return DatumOption{}, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	switch pair.Kind {
	case 0:
		var hash []byte
		if _, err := cbor.Decode(pair.Payload, &hash); err != nil {
			return DatumOption{}, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
		}
		if len(hash) != common.Blake2b256Size {
			return DatumOption{}, fmt.Errorf("%w: datum hash of %d bytes", ErrMalformedDatum, len(hash))
		}
		var h common.Blake2b256
		copy(h[:], hash)
		return HashedDatum(h), nil
	case 1:
		var tag cbor.Tag
		if _, err := cbor.Decode(pair.Payload, &tag); err != nil {
			return DatumOption{}, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
		}
		content, ok := tag.Content.([]byte)
		if tag.Number != 24 || !ok {
			return DatumOption{}, fmt.Errorf("%w: inline datum is not tag 24", ErrMalformedDatum)
		}
		return InlineDatum(content), nil
	default:
		return DatumOption{}, fmt.Errorf("%w: unknown datum option %d", ErrMalformedDatum, pair.Kind)
	}
}
