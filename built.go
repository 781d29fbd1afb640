package hose

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// BuiltTransaction is a balanced transaction and its vkey witnesses. Signing
// returns a new value and leaves the receiver untouched.
type BuiltTransaction struct {
	Hash  common.Blake2b256
	Bytes []byte
	// Fee is the fee the body charges.
	Fee uint64

	staging      *Staging
	body         []byte
	witnessSet   []byte
	auxData      []byte
	isValid      bool
	vkeys        []common.VkeyWitness
	scriptDigest *common.Blake2b256
}

func newBuiltTransaction(s *Staging, tx *SerializedTx) *BuiltTransaction {
	return &BuiltTransaction{
		Hash:         tx.Hash,
		Bytes:        tx.Bytes,
		Fee:          s.Fee,
		staging:      s,
		body:         tx.BodyBytes,
		witnessSet:   tx.WitnessBytes,
		auxData:      slices.Clone(s.AuxiliaryData),
		isValid:      true,
		scriptDigest: tx.ScriptDataHash,
	}
}

// ParseBuiltTransaction reads a Conway transaction so more signatures can be
// attached to it.
func ParseBuiltTransaction(raw []byte) (*BuiltTransaction, error) {
	parts, err := primitives.SplitTx(raw)
	if err != nil {
		return nil, err
	}
	var body map[uint]cbor.RawMessage
	if _, err := cbor.Decode(parts[0], &body); err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrCorruptedTxBytes, err)
	}
	var fee uint64
	if rawFee, ok := body[primitives.BodyKeyFee]; ok {
		if _, err := cbor.Decode(rawFee, &fee); err != nil {
			return nil, fmt.Errorf("%w: fee: %w", ErrCorruptedTxBytes, err)
		}
	}
	var fields map[uint]cbor.RawMessage
	if _, err := cbor.Decode(parts[1], &fields); err != nil {
		return nil, fmt.Errorf("%w: witness set: %w", ErrCorruptedTxBytes, err)
	}
	var vkeys []common.VkeyWitness
	if rawVkeys, ok := fields[primitives.WitnessKeyVkeys]; ok {
		if _, err := cbor.Decode(primitives.StripSetTag(rawVkeys), &vkeys); err != nil {
			return nil, fmt.Errorf("%w: vkey witnesses: %w", ErrCorruptedTxBytes, err)
		}
	}
	var isValid bool
	if _, err := cbor.Decode(parts[2], &isValid); err != nil {
		return nil, fmt.Errorf("%w: validity flag: %w", ErrCorruptedTxBytes, err)
	}
	var aux []byte
	if !bytes.Equal(parts[3], cborNull) {
		aux = slices.Clone([]byte(parts[3]))
	}
	return &BuiltTransaction{
		Hash:       common.Blake2b256Hash(parts[0]),
		Bytes:      slices.Clone(raw),
		Fee:        fee,
		body:       slices.Clone([]byte(parts[0])),
		witnessSet: slices.Clone([]byte(parts[1])),
		auxData:    aux,
		isValid:    isValid,
		vkeys:      vkeys,
	}, nil
}

// Staging returns the balanced intent behind the transaction, or nil for a
// parsed transaction.
func (t *BuiltTransaction) Staging() *Staging {
	if t.staging == nil {
		return nil
	}
	return t.staging.Clone()
}

// ScriptDataHash returns the script data hash carried by the body, if any.
func (t *BuiltTransaction) ScriptDataHash() *common.Blake2b256 {
	return t.scriptDigest
}

// Hex returns the transaction bytes as hex.
func (t *BuiltTransaction) Hex() string {
	return hex.EncodeToString(t.Bytes)
}

// VkeyWitnesses returns the witnesses sorted by public key.
func (t *BuiltTransaction) VkeyWitnesses() []common.VkeyWitness {
	return sortVkeyWitnesses(t.vkeys)
}

// Signature returns the signature made by pub, if present.
func (t *BuiltTransaction) Signature(pub []byte) ([]byte, bool) {
	for _, w := range t.vkeys {
		if bytes.Equal(w.Vkey, pub) {
			return w.Signature, true
		}
	}
	return nil, false
}

// Sign adds a witness from signer over the transaction hash.
func (t *BuiltTransaction) Sign(signer Signer) (*BuiltTransaction, error) {
	w, err := signer.SignTxBody(t.Hash)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return t.AddSignature(w.Vkey, w.Signature)
}

// AddSignature adds or replaces the witness for pub.
func (t *BuiltTransaction) AddSignature(pub, sig []byte) (*BuiltTransaction, error) {
	if len(pub) != 32 {
		return nil, fmt.Errorf("public key must be 32 bytes, got %d", len(pub))
	}
	if len(sig) != 64 {
		return nil, fmt.Errorf("signature must be 64 bytes, got %d", len(sig))
	}
	vkeys := slices.DeleteFunc(slices.Clone(t.vkeys), func(w common.VkeyWitness) bool {
		return bytes.Equal(w.Vkey, pub)
	})
	vkeys = append(vkeys, common.VkeyWitness{Vkey: slices.Clone(pub), Signature: slices.Clone(sig)})
	return t.withVkeys(vkeys)
}

// RemoveSignature drops the witness for pub.
func (t *BuiltTransaction) RemoveSignature(pub []byte) (*BuiltTransaction, error) {
	vkeys := slices.DeleteFunc(slices.Clone(t.vkeys), func(w common.VkeyWitness) bool {
		return bytes.Equal(w.Vkey, pub)
	})
	return t.withVkeys(vkeys)
}

// withVkeys re-encodes the witness set with a new vkey list. The other
// witness fields are carried over byte for byte.
func (t *BuiltTransaction) withVkeys(vkeys []common.VkeyWitness) (*BuiltTransaction, error) {
	var fields map[uint]cbor.RawMessage
	if _, err := cbor.Decode(t.witnessSet, &fields); err != nil {
		return nil, fmt.Errorf("%w: witness set: %w", ErrCorruptedTxBytes, err)
	}
	if fields == nil {
		fields = make(map[uint]cbor.RawMessage)
	}
	vkeys = sortVkeyWitnesses(vkeys)
	if len(vkeys) == 0 {
		delete(fields, primitives.WitnessKeyVkeys)
	} else {
		set := cbor.NewSetType(vkeys, true)
		encoded, err := cbor.Encode(&set)
		if err != nil {
			return nil, fmt.Errorf("failed to encode vkey witnesses: %w", err)
		}
		fields[primitives.WitnessKeyVkeys] = encoded
	}
	wsBytes, err := cbor.Encode(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode witness set: %w", err)
	}
	txBytes, err := assembleTx(t.body, wsBytes, t.auxData, t.isValid)
	if err != nil {
		return nil, err
	}
	out := *t
	out.Bytes = txBytes
	out.witnessSet = wsBytes
	out.vkeys = vkeys
	return &out, nil
}
