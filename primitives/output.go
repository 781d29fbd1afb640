package primitives

import (
	"fmt"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/babbage"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/blinklabs-io/gouroboros/ledger/mary"
)

// Output is a transaction output in builder form.
type Output struct {
	Address  common.Address
	Lovelace uint64
	Assets   Assets
	Datum    DatumOption
	Script   *Script
}

func NewOutput(addr common.Address, lovelace uint64) Output {
	return Output{Address: addr, Lovelace: lovelace}
}

func (o Output) WithAssets(assets Assets) Output {
	o.Assets = o.Assets.Add(assets)
	return o
}

func (o Output) WithDatum(d DatumOption) Output {
	o.Datum = d
	return o
}

func (o Output) WithScript(s Script) Output {
	o.Script = &s
	return o
}

func (o Output) Clone() Output {
	out := o
	out.Assets = o.Assets.Clone()
	if o.Script != nil {
		s := *o.Script
		out.Script = &s
	}
	return out
}

// HasOnlyLovelace reports whether the output carries no native assets.
func (o Output) HasOnlyLovelace() bool {
	return o.Assets.IsEmpty()
}

func (o Output) ScriptSize() int {
	if o.Script == nil {
		return 0
	}
	return o.Script.Size()
}

// Validate checks what the accumulator must reject before serialisation.
func (o Output) Validate() error {
	for k := range o.Assets {
		if err := k.validate(); err != nil {
			return err
		}
	}
	if o.Datum.Kind == DatumInline {
		if err := ValidateData(o.Datum.Inline); err != nil {
			return err
		}
	}
	if o.Script != nil {
		if err := o.Script.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ToBabbage converts to the post-Alonzo ledger output.
func (o Output) ToBabbage() (babbage.BabbageTransactionOutput, error) {
	if err := o.Validate(); err != nil {
		return babbage.BabbageTransactionOutput{}, err
	}
	datumOpt, err := o.Datum.toBabbage()
	if err != nil {
		return babbage.BabbageTransactionOutput{}, err
	}
	var scriptRef *common.ScriptRef
	if o.Script != nil {
		scriptRef, err = o.Script.ToScriptRef()
		if err != nil {
			return babbage.BabbageTransactionOutput{}, err
		}
	}
	return babbage.BabbageTransactionOutput{
		OutputAddress: o.Address,
		OutputAmount: mary.MaryTransactionOutputValue{
			Amount: o.Lovelace,
			Assets: o.Assets.ToMultiAsset(),
		},
		DatumOption:    datumOpt,
		TxOutScriptRef: scriptRef,
	}, nil
}

func (o Output) Encode() ([]byte, error) {
	txOut, err := o.ToBabbage()
	if err != nil {
		return nil, err
	}
	return cbor.Encode(&txOut)
}

func (o Output) EncodedSize() (int, error) {
	b, err := o.Encode()
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// DepositParams are the protocol values behind the minimum output deposit.
type DepositParams struct {
	Constant     uint64
	CoinsPerByte uint64
}

// MinDeposit returns the smallest lovelace amount the ledger accepts for
// this output. The encoded size depends on the lovelace field itself, so
// the amount is raised until it stops changing.
func (o Output) MinDeposit(p DepositParams) (uint64, error) {
	sized := o.Clone()
	var previous uint64
	for range 8 {
		size, err := sized.EncodedSize()
		if err != nil {
			return 0, err
		}
		required := p.Constant + p.CoinsPerByte*uint64(size+160)
		if required == previous {
			return required, nil
		}
		previous = required
		sized.Lovelace = max(sized.Lovelace, required)
	}
	return previous, nil
}

// EnsureMinDeposit raises the lovelace to the minimum deposit when short.
func (o Output) EnsureMinDeposit(p DepositParams) (Output, error) {
	required, err := o.MinDeposit(p)
	if err != nil {
		return o, err
	}
	if o.Lovelace < required {
		o.Lovelace = required
	}
	return o, nil
}

// DecodeOutput parses either the legacy array form or the post-Alonzo map
// form of a transaction output.
func DecodeOutput(raw []byte) (Output, error) {
	if len(raw) == 0 {
		return Output{}, fmt.Errorf("%w: empty", ErrMalformedOutput)
	}
	switch raw[0] >> 5 {
	case 4:
		return decodeLegacyOutput(raw)
	case 5:
		return decodeMapOutput(raw)
	default:
		return Output{}, fmt.Errorf("%w: unexpected major type %d", ErrMalformedOutput, raw[0]>>5)
	}
}

func decodeLegacyOutput(raw []byte) (Output, error) {
	var fields []cbor.RawMessage
	if _, err := cbor.Decode(raw, &fields); err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	if len(fields) < 2 || len(fields) > 3 {
		return Output{}, fmt.Errorf("%w: %d fields", ErrMalformedOutput, len(fields))
	}
	out, err := decodeAddressAndValue(fields[0], fields[1])
	if err != nil {
		return Output{}, err
	}
	if len(fields) == 3 {
		var hash []byte
		if _, err := cbor.Decode(fields[2], &hash); err != nil || len(hash) != common.Blake2b256Size {
			return Output{}, fmt.Errorf("%w: invalid datum hash", ErrMalformedOutput)
		}
		var h common.Blake2b256
		copy(h[:], hash)
		out.Datum = HashedDatum(h)
	}
	return out, nil
}

func decodeMapOutput(raw []byte) (Output, error) {
	var fields map[uint]cbor.RawMessage
	if _, err := cbor.Decode(raw, &fields); err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	addrRaw, ok := fields[0]
	if !ok {
		return Output{}, fmt.Errorf("%w: missing address", ErrMalformedOutput)
	}
	valueRaw, ok := fields[1]
	if !ok {
		return Output{}, fmt.Errorf("%w: missing value", ErrMalformedOutput)
	}
	out, err := decodeAddressAndValue(addrRaw, valueRaw)
	if err != nil {
		return Output{}, err
	}
	if datumRaw, ok := fields[2]; ok {
		out.Datum, err = decodeDatumOption(datumRaw)
		if err != nil {
			return Output{}, err
		}
	}
	if scriptRaw, ok := fields[3]; ok {
		out.Script, err = decodeScriptRef(scriptRaw)
		if err != nil {
			return Output{}, err
		}
	}
	return out, nil
}

func decodeAddressAndValue(addrRaw, valueRaw []byte) (Output, error) {
	var addrBytes []byte
	if _, err := cbor.Decode(addrRaw, &addrBytes); err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	addr, err := common.NewAddressFromBytes(addrBytes)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	var value mary.MaryTransactionOutputValue
	if _, err := cbor.Decode(valueRaw, &value); err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	return Output{
		Address:  addr,
		Lovelace: value.Amount,
		Assets:   AssetsFromMultiAsset(value.Assets),
	}, nil
}
