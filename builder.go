package hose

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/rs/zerolog"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/internal/log"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// TxBuilder accumulates transaction intent and balances it on Build.
type TxBuilder struct {
	staging *Staging

	lookup         backend.UtxoLookup
	evaluator      backend.Evaluator
	paramsProvider backend.ParamsProvider
	params         *backend.ProtocolParameters

	network           uint8
	changeAddress     *common.Address
	changeDatum       primitives.DatumOption
	collateralAddress *common.Address
	signatureOverride *uint
	absorbChange      bool
	logger            zerolog.Logger
}

// New creates a builder backed by a chain context.
func New(cc backend.ChainContext) *TxBuilder {
	return NewTxBuilder(cc.NetworkId(), cc, cc, cc)
}

// NewTxBuilder creates a builder from individual collaborators.
func NewTxBuilder(network uint8, lookup backend.UtxoLookup, evaluator backend.Evaluator, params backend.ParamsProvider) *TxBuilder {
	s := NewStaging()
	s.NetworkId = &network
	return &TxBuilder{
		staging:        s,
		lookup:         lookup,
		evaluator:      evaluator,
		paramsProvider: params,
		network:        network,
		logger:         log.Builder,
	}
}

// Staging returns a copy of the accumulated intent.
func (b *TxBuilder) Staging() *Staging {
	return b.staging.Clone()
}

// WithParams pins the protocol parameters instead of fetching them on Build.
func (b *TxBuilder) WithParams(pp backend.ProtocolParameters) *TxBuilder {
	cloned := pp.Clone()
	b.params = &cloned
	return b
}

// WithLogger replaces the logger used while balancing.
func (b *TxBuilder) WithLogger(logger zerolog.Logger) *TxBuilder {
	b.logger = logger
	return b
}

// WithChangeAbsorption lets the fee absorb a lovelace remainder too small to
// fund a change output.
func (b *TxBuilder) WithChangeAbsorption() *TxBuilder {
	b.absorbChange = true
	return b
}

// NetworkId sets the network id carried in the body and reward accounts.
func (b *TxBuilder) NetworkId(id uint8) (*TxBuilder, error) {
	if err := primitives.ValidateNetworkId(id); err != nil {
		return b, err
	}
	b.network = id
	b.staging.NetworkId = &id
	return b, nil
}

// AddInput spends a key locked input. Coin selection may add more.
func (b *TxBuilder) AddInput(in primitives.Input) *TxBuilder {
	b.staging.Inputs = append(b.staging.Inputs, in)
	return b
}

// AddScriptInput spends a script locked input with the given redeemer. A nil
// budget is filled in by the evaluator.
func (b *TxBuilder) AddScriptInput(in primitives.Input, redeemer []byte, budget *primitives.ExUnits, kind primitives.ScriptKind) *TxBuilder {
	b.staging.Inputs = append(b.staging.Inputs, in)
	b.setRedeemer(primitives.SpendPurpose{Input: in}, redeemer, budget)
	b.staging.AddLanguage(kind)
	return b
}

// AddCollateralInput supplies collateral explicitly. Once any is given,
// automatic collateral selection is skipped and the inputs are checked on Build.
func (b *TxBuilder) AddCollateralInput(in primitives.Input) *TxBuilder {
	b.staging.CollateralInputs = append(b.staging.CollateralInputs, in)
	return b
}

// AddOutput appends an output. Outputs keep their order in the body and
// the change output, if any, is appended after them on Build.
func (b *TxBuilder) AddOutput(o primitives.Output) (*TxBuilder, error) {
	if err := o.Validate(); err != nil {
		return b, err
	}
	b.staging.Outputs = append(b.staging.Outputs, o.Clone())
	return b, nil
}

// AddReferenceInput makes an output readable by scripts without spending it.
func (b *TxBuilder) AddReferenceInput(in primitives.Input) *TxBuilder {
	b.staging.ReferenceInputs = append(b.staging.ReferenceInputs, in)
	return b
}

// RegisterScriptStake registers a script stake credential. The deposit is
// taken from the protocol parameters on Build.
func (b *TxBuilder) RegisterScriptStake(h common.Blake2b224, kind primitives.ScriptKind, redeemer []byte, budget *primitives.ExUnits) *TxBuilder {
	b.staging.putCertificate(primitives.StakeRegistration{Credential: primitives.ScriptHashCredential(h)})
	purpose := primitives.CertPurpose{ScriptHash: h}
	if redeemer == nil {
		delete(b.staging.Redeemers, purpose)
		return b
	}
	b.setRedeemer(purpose, redeemer, budget)
	b.staging.AddLanguage(kind)
	return b
}

// DeregisterScriptStake releases a script stake credential and its deposit.
func (b *TxBuilder) DeregisterScriptStake(h common.Blake2b224, kind primitives.ScriptKind, redeemer []byte, budget *primitives.ExUnits) *TxBuilder {
	b.staging.putCertificate(primitives.StakeDeregistration{Credential: primitives.ScriptHashCredential(h)})
	b.setRedeemer(primitives.CertPurpose{ScriptHash: h}, redeemer, budget)
	b.staging.AddLanguage(kind)
	return b
}

// DelegateScriptStake delegates a script stake credential to a pool.
func (b *TxBuilder) DelegateScriptStake(h common.Blake2b224, kind primitives.ScriptKind, pool common.Blake2b224, redeemer []byte, budget *primitives.ExUnits) *TxBuilder {
	b.staging.putCertificate(primitives.StakeDelegation{Credential: primitives.ScriptHashCredential(h), Pool: pool})
	b.setRedeemer(primitives.CertPurpose{ScriptHash: h}, redeemer, budget)
	b.staging.AddLanguage(kind)
	return b
}

// WithdrawFromScript withdraws rewards from the reward account of a script.
func (b *TxBuilder) WithdrawFromScript(h common.Blake2b224, kind primitives.ScriptKind, amount uint64, redeemer []byte, budget *primitives.ExUnits) (*TxBuilder, error) {
	account, err := primitives.RewardAccountFromScriptHash(b.network, h)
	if err != nil {
		return b, err
	}
	b.staging.Withdrawals[account] = amount
	b.setRedeemer(primitives.RewardPurpose{Account: account}, redeemer, budget)
	b.staging.AddLanguage(kind)
	return b, nil
}

// Withdraw withdraws rewards from a reward account.
func (b *TxBuilder) Withdraw(account primitives.RewardAccount, amount uint64) *TxBuilder {
	b.staging.Withdrawals[account] = amount
	return b
}

// RegisterStake registers a key stake credential.
func (b *TxBuilder) RegisterStake(keyHash common.Blake2b224) *TxBuilder {
	b.staging.putCertificate(primitives.StakeRegistration{Credential: primitives.KeyHashCredential(keyHash)})
	return b
}

// DeregisterStake releases a key stake credential.
func (b *TxBuilder) DeregisterStake(keyHash common.Blake2b224) *TxBuilder {
	b.staging.putCertificate(primitives.StakeDeregistration{Credential: primitives.KeyHashCredential(keyHash)})
	return b
}

// DelegateStake delegates a key stake credential to a pool.
func (b *TxBuilder) DelegateStake(keyHash, pool common.Blake2b224) *TxBuilder {
	b.staging.putCertificate(primitives.StakeDelegation{Credential: primitives.KeyHashCredential(keyHash), Pool: pool})
	return b
}

// RegisterStakeFromAddress registers the stake credential of a base address.
func (b *TxBuilder) RegisterStakeFromAddress(addr common.Address) (*TxBuilder, error) {
	cred, ok := primitives.StakeCredential(addr)
	if !ok {
		return b, fmt.Errorf("address %s has no stake credential", addr.String())
	}
	b.staging.putCertificate(primitives.StakeRegistration{Credential: cred})
	return b, nil
}

// AddScript adds a script to the witness set.
func (b *TxBuilder) AddScript(kind primitives.ScriptKind, raw []byte) *TxBuilder {
	script := primitives.NewScript(kind, slices.Clone(raw))
	b.staging.Scripts[script.Hash()] = script
	return b
}

// AddDatum adds a datum to the witness set, keyed by its hash.
func (b *TxBuilder) AddDatum(raw []byte) *TxBuilder {
	b.staging.Datums[primitives.DatumHashOf(raw)] = slices.Clone(raw)
	return b
}

// AddSigner adds a required signer key hash. Duplicates are ignored.
func (b *TxBuilder) AddSigner(h common.Blake2b224) *TxBuilder {
	if !slices.Contains(b.staging.Signers, h) {
		b.staging.Signers = append(b.staging.Signers, h)
	}
	return b
}

// MintAsset adds amount to the minted quantity of an asset. A negative amount
// burns. An asset whose total reaches zero is dropped.
func (b *TxBuilder) MintAsset(policy common.Blake2b224, name []byte, amount int64) (*TxBuilder, error) {
	id, err := primitives.NewAssetId(policy, name)
	if err != nil {
		return b, err
	}
	updated, err := b.staging.Mint.Add(primitives.AssetsDelta{id: amount})
	if err != nil {
		return b, fmt.Errorf("%w: %w", ErrInvalidMintAmount, err)
	}
	b.staging.Mint = updated
	return b, nil
}

// MintAssetWithRedeemer mints under a Plutus policy.
func (b *TxBuilder) MintAssetWithRedeemer(policy common.Blake2b224, name []byte, amount int64, kind primitives.ScriptKind, redeemer []byte, budget *primitives.ExUnits) (*TxBuilder, error) {
	if _, err := b.MintAsset(policy, name, amount); err != nil {
		return b, err
	}
	b.setRedeemer(primitives.MintPurpose{Policy: policy}, redeemer, budget)
	b.staging.AddLanguage(kind)
	return b, nil
}

// ChangeAddress sets where change goes and whose utxos coin selection and
// collateral selection draw from.
func (b *TxBuilder) ChangeAddress(addr common.Address) *TxBuilder {
	b.changeAddress = &addr
	return b
}

// ChangeDatum attaches d to the change output.
func (b *TxBuilder) ChangeDatum(d primitives.DatumOption) *TxBuilder {
	b.changeDatum = d
	return b
}

// CollateralOutputAddress sends the collateral return to addr instead of
// the change address.
func (b *TxBuilder) CollateralOutputAddress(addr common.Address) *TxBuilder {
	b.collateralAddress = &addr
	return b
}

// ValidFrom sets the first slot the transaction is valid in.
func (b *TxBuilder) ValidFrom(slot uint64) (*TxBuilder, error) {
	return b, b.staging.SetValidityInterval(&slot, b.staging.InvalidFrom)
}

// InvalidFrom sets the first slot the transaction is no longer valid in.
func (b *TxBuilder) InvalidFrom(slot uint64) (*TxBuilder, error) {
	return b, b.staging.SetValidityInterval(b.staging.ValidFrom, &slot)
}

// AddAuxiliaryData attaches encoded auxiliary data.
func (b *TxBuilder) AddAuxiliaryData(raw []byte) (*TxBuilder, error) {
	var decoded any
	if _, err := cbor.Decode(raw, &decoded); err != nil {
		return b, fmt.Errorf("invalid auxiliary data: %w", err)
	}
	b.staging.AuxiliaryData = slices.Clone(raw)
	return b, nil
}

// AddMetadata attaches a label map as auxiliary data.
func (b *TxBuilder) AddMetadata(metadata map[uint64]any) (*TxBuilder, error) {
	encoded, err := EncodeMetadata(metadata)
	if err != nil {
		return b, err
	}
	b.staging.AuxiliaryData = encoded
	return b, nil
}

// SignatureAmountOverride fixes the number of vkey witnesses the fee is
// estimated for.
func (b *TxBuilder) SignatureAmountOverride(n uint) *TxBuilder {
	b.signatureOverride = &n
	return b
}

// RemoveInput drops an input and its spend redeemer.
func (b *TxBuilder) RemoveInput(in primitives.Input) *TxBuilder {
	b.staging.Inputs = slices.DeleteFunc(b.staging.Inputs, func(i primitives.Input) bool { return i == in })
	delete(b.staging.Redeemers, primitives.SpendPurpose{Input: in})
	return b
}

// RemoveOutput drops the output at index.
func (b *TxBuilder) RemoveOutput(index int) *TxBuilder {
	if index >= 0 && index < len(b.staging.Outputs) {
		b.staging.Outputs = slices.Delete(b.staging.Outputs, index, index+1)
	}
	return b
}

// RemoveReferenceInput drops a reference input.
func (b *TxBuilder) RemoveReferenceInput(in primitives.Input) *TxBuilder {
	b.staging.ReferenceInputs = slices.DeleteFunc(b.staging.ReferenceInputs, func(i primitives.Input) bool { return i == in })
	return b
}

// RemoveCollateralInput drops a user supplied collateral input.
func (b *TxBuilder) RemoveCollateralInput(in primitives.Input) *TxBuilder {
	b.staging.CollateralInputs = slices.DeleteFunc(b.staging.CollateralInputs, func(i primitives.Input) bool { return i == in })
	return b
}

// RemoveSigner drops a required signer.
func (b *TxBuilder) RemoveSigner(h common.Blake2b224) *TxBuilder {
	b.staging.Signers = slices.DeleteFunc(b.staging.Signers, func(s common.Blake2b224) bool { return s == h })
	return b
}

// RemoveScript drops a script from the witness set.
func (b *TxBuilder) RemoveScript(h common.Blake2b224) *TxBuilder {
	delete(b.staging.Scripts, h)
	return b
}

// RemoveDatum drops a witness datum by hash.
func (b *TxBuilder) RemoveDatum(h common.Blake2b256) *TxBuilder {
	delete(b.staging.Datums, h)
	return b
}

// RemoveRedeemer drops the redeemer for p and leaves its target in place.
func (b *TxBuilder) RemoveRedeemer(p primitives.RedeemerPurpose) *TxBuilder {
	delete(b.staging.Redeemers, p)
	return b
}

// RemoveMint drops every asset of a policy from the mint and its redeemer.
func (b *TxBuilder) RemoveMint(policy common.Blake2b224) *TxBuilder {
	for id := range b.staging.Mint {
		if id.Policy == policy {
			delete(b.staging.Mint, id)
		}
	}
	delete(b.staging.Redeemers, primitives.MintPurpose{Policy: policy})
	return b
}

// RemoveWithdrawal drops a withdrawal and its redeemer.
func (b *TxBuilder) RemoveWithdrawal(account primitives.RewardAccount) *TxBuilder {
	delete(b.staging.Withdrawals, account)
	delete(b.staging.Redeemers, primitives.RewardPurpose{Account: account})
	return b
}

// RemoveCertificate drops the certificate for a credential and its redeemer.
func (b *TxBuilder) RemoveCertificate(cred primitives.Credential) *TxBuilder {
	if i := b.staging.certificateIndex(cred); i >= 0 {
		b.staging.Certificates = slices.Delete(b.staging.Certificates, i, i+1)
	}
	if cred.IsScript() {
		delete(b.staging.Redeemers, primitives.CertPurpose{ScriptHash: cred.Hash})
	}
	return b
}

func (b *TxBuilder) setRedeemer(p primitives.RedeemerPurpose, data []byte, budget *primitives.ExUnits) {
	r := primitives.Redeemer{Data: slices.Clone(data)}
	if budget != nil {
		units := *budget
		r.Budget = &units
	}
	b.staging.Redeemers[p] = r
}

// Build balances the accumulated intent and returns the unsigned
// transaction. The builder itself is left unchanged.
func (b *TxBuilder) Build(ctx context.Context) (*BuiltTransaction, error) {
	if b.changeAddress == nil {
		return nil, ErrMissingChangeAddress
	}
	if b.lookup == nil || b.evaluator == nil {
		return nil, errors.New("builder has no utxo lookup or evaluator")
	}
	params, err := b.protocolParams(ctx)
	if err != nil {
		return nil, err
	}

	bl := &balancer{
		fees: feeModel{
			params:            params,
			evaluator:         b.evaluator,
			resolved:          make(map[primitives.Input]primitives.Output),
			signatureOverride: b.signatureOverride,
		},
		lookup:            b.lookup,
		logger:            b.logger,
		changeAddress:     *b.changeAddress,
		changeDatum:       b.changeDatum,
		collateralAddress: b.collateralAddress,
		absorbChange:      b.absorbChange,
	}
	s := b.staging.Clone()
	if err := bl.prepare(ctx, s); err != nil {
		return nil, err
	}
	balanced, err := bl.run(ctx, s)
	if err != nil {
		return nil, err
	}
	tx, err := Serialize(balanced)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().
		Str("hash", tx.Hash.String()).
		Uint64("fee", balanced.Fee).
		Int("size", len(tx.Bytes)).
		Msg("built transaction")
	return newBuiltTransaction(balanced, tx), nil
}

func (b *TxBuilder) protocolParams(ctx context.Context) (backend.ProtocolParameters, error) {
	if b.params != nil {
		return b.params.Clone(), nil
	}
	if b.paramsProvider == nil {
		return backend.ProtocolParameters{}, errors.New("builder has no protocol parameters")
	}
	pp, err := b.paramsProvider.ProtocolParams(ctx)
	if err != nil {
		return backend.ProtocolParameters{}, &IndexerError{Err: fmt.Errorf("failed to fetch protocol parameters: %w", err)}
	}
	return pp, nil
}
