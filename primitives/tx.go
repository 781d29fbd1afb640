package primitives

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/conway"
)

// Body and witness set map keys.
const (
	BodyKeyInputs           = 0
	BodyKeyOutputs          = 1
	BodyKeyFee              = 2
	BodyKeyCollateral       = 13
	BodyKeyCollateralReturn = 16
	BodyKeyReferenceInputs  = 18

	WitnessKeyVkeys     = 0
	WitnessKeyDatums    = 4
	WitnessKeyRedeemers = 5
)

var setTag = []byte{0xd9, 0x01, 0x02}

// StripSetTag removes the tag 258 prefix emitted for Conway sets.
func StripSetTag(raw []byte) []byte {
	return bytes.TrimPrefix(raw, setTag)
}

// TxView is the part of a transaction that lookups and evaluators need.
type TxView struct {
	Hash             common.Blake2b256
	Inputs           []Input
	ReferenceInputs  []Input
	CollateralInputs []Input
	Outputs          []Output
	CollateralReturn *Output
	Fee              uint64
	Redeemers        []common.RedeemerKey
	IsValid          bool
}

// SplitTx splits a transaction into its four top-level items.
func SplitTx(raw []byte) ([]cbor.RawMessage, error) {
	var parts []cbor.RawMessage
	if _, err := cbor.Decode(raw, &parts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedTxBytes, err)
	}
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: %d top-level items", ErrUnsupportedEra, len(parts))
	}
	return parts, nil
}

// DecodeTx reads a Conway transaction.
func DecodeTx(raw []byte) (*TxView, error) {
	parts, err := SplitTx(raw)
	if err != nil {
		return nil, err
	}
	var body map[uint]cbor.RawMessage
	if _, err := cbor.Decode(parts[0], &body); err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrCorruptedTxBytes, err)
	}
	view := &TxView{Hash: common.Blake2b256Hash(parts[0])}
	if view.Inputs, err = decodeInputSet(body[BodyKeyInputs]); err != nil {
		return nil, err
	}
	if view.ReferenceInputs, err = decodeInputSet(body[BodyKeyReferenceInputs]); err != nil {
		return nil, err
	}
	if view.CollateralInputs, err = decodeInputSet(body[BodyKeyCollateral]); err != nil {
		return nil, err
	}
	if rawOutputs, ok := body[BodyKeyOutputs]; ok {
		var outputs []cbor.RawMessage
		if _, err := cbor.Decode(rawOutputs, &outputs); err != nil {
			return nil, fmt.Errorf("%w: outputs: %w", ErrCorruptedTxBytes, err)
		}
		for i, o := range outputs {
			out, err := DecodeOutput(o)
			if err != nil {
				return nil, fmt.Errorf("output %d: %w", i, err)
			}
			view.Outputs = append(view.Outputs, out)
		}
	}
	if rawReturn, ok := body[BodyKeyCollateralReturn]; ok {
		out, err := DecodeOutput(rawReturn)
		if err != nil {
			return nil, fmt.Errorf("collateral return: %w", err)
		}
		view.CollateralReturn = &out
	}
	if rawFee, ok := body[BodyKeyFee]; ok {
		if _, err := cbor.Decode(rawFee, &view.Fee); err != nil {
			return nil, fmt.Errorf("%w: fee: %w", ErrCorruptedTxBytes, err)
		}
	}
	var witnesses map[uint]cbor.RawMessage
	if _, err := cbor.Decode(parts[1], &witnesses); err != nil {
		return nil, fmt.Errorf("%w: witness set: %w", ErrCorruptedTxBytes, err)
	}
	if rawRedeemers, ok := witnesses[WitnessKeyRedeemers]; ok {
		var redeemers conway.ConwayRedeemers
		if err := redeemers.UnmarshalCBOR(rawRedeemers); err != nil {
			return nil, fmt.Errorf("%w: redeemers: %w", ErrCorruptedTxBytes, err)
		}
		for key := range redeemers.Redeemers {
			view.Redeemers = append(view.Redeemers, key)
		}
		slices.SortFunc(view.Redeemers, func(a, b common.RedeemerKey) int {
			if a.Tag != b.Tag {
				return int(a.Tag) - int(b.Tag)
			}
			return int(a.Index) - int(b.Index)
		})
	}
	if _, err := cbor.Decode(parts[2], &view.IsValid); err != nil {
		return nil, fmt.Errorf("%w: validity flag: %w", ErrCorruptedTxBytes, err)
	}
	return view, nil
}

func decodeInputSet(raw cbor.RawMessage) ([]Input, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []struct {
		cbor.StructAsArray
		TxId  []byte
		Index uint32
	}
	if _, err := cbor.Decode(StripSetTag(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: inputs: %w", ErrCorruptedTxBytes, err)
	}
	inputs := make([]Input, 0, len(items))
	for _, item := range items {
		if len(item.TxId) != common.Blake2b256Size {
			return nil, fmt.Errorf("%w: input hash of %d bytes", ErrCorruptedTxBytes, len(item.TxId))
		}
		var h common.Blake2b256
		copy(h[:], item.TxId)
		inputs = append(inputs, NewInput(h, item.Index))
	}
	return inputs, nil
}

// ProducedUtxos returns the outputs a transaction creates once accepted.
// An invalid transaction produces only its collateral return, at the
// index following the regular outputs.
func (v *TxView) ProducedUtxos() []Utxo {
	if !v.IsValid {
		if v.CollateralReturn == nil {
			return nil
		}
		return []Utxo{{Input: NewInput(v.Hash, uint32(len(v.Outputs))), Output: *v.CollateralReturn}}
	}
	utxos := make([]Utxo, 0, len(v.Outputs))
	for i, o := range v.Outputs {
		utxos = append(utxos, Utxo{Input: NewInput(v.Hash, uint32(i)), Output: o})
	}
	return utxos
}

// ConsumedInputs returns the pointers a transaction spends once accepted.
func (v *TxView) ConsumedInputs() []Input {
	if !v.IsValid {
		return slices.Clone(v.CollateralInputs)
	}
	return slices.Clone(v.Inputs)
}
