package primitives

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/shelley"
)

// Input points at an output produced by an earlier transaction.
type Input struct {
	TxHash common.Blake2b256
	Index  uint32
}

func NewInput(txHash common.Blake2b256, index uint32) Input {
	return Input{TxHash: txHash, Index: index}
}

// ParseInput parses the "<txhash>#<index>" form.
func ParseInput(s string) (Input, error) {
	hashHex, idxStr, ok := strings.Cut(s, "#")
	if !ok {
		return Input{}, fmt.Errorf("invalid input reference %q: missing '#'", s)
	}
	txHash, err := Hash256FromHex(hashHex)
	if err != nil {
		return Input{}, err
	}
	idx, err := strconv.ParseUint(idxStr, 10, 32)
	if err != nil {
		return Input{}, fmt.Errorf("invalid output index %q: %w", idxStr, err)
	}
	return Input{TxHash: txHash, Index: uint32(idx)}, nil
}

func (i Input) String() string {
	return fmt.Sprintf("%s#%d", i.TxHash.String(), i.Index)
}

// Compare orders inputs on (tx hash, index), matching the canonical body order.
func (i Input) Compare(other Input) int {
	if c := bytes.Compare(i.TxHash[:], other.TxHash[:]); c != 0 {
		return c
	}
	switch {
	case i.Index < other.Index:
		return -1
	case i.Index > other.Index:
		return 1
	}
	return 0
}

func (i Input) ToShelley() shelley.ShelleyTransactionInput {
	return shelley.ShelleyTransactionInput{
		TxId:        i.TxHash,
		OutputIndex: i.Index,
	}
}

// SortInputs returns a sorted, de-duplicated copy of inputs.
func SortInputs(inputs []Input) []Input {
	sorted := slices.Clone(inputs)
	slices.SortFunc(sorted, Input.Compare)
	return slices.Compact(sorted)
}

// Utxo pairs an unspent output with the pointer that produced it.
type Utxo struct {
	Input  Input
	Output Output
}

// SortUtxos orders utxos by their pointers.
func SortUtxos(utxos []Utxo) []Utxo {
	sorted := slices.Clone(utxos)
	slices.SortFunc(sorted, func(a, b Utxo) int {
		return a.Input.Compare(b.Input)
	})
	return sorted
}
