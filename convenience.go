package hose

import (
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/plutusdata"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// --- Bech32 Convenience Methods ---

// ChangeAddressBech32 sets the change address from a bech32 string.
func (b *TxBuilder) ChangeAddressBech32(bech32 string) (*TxBuilder, error) {
	addr, err := common.NewAddress(bech32)
	if err != nil {
		return b, fmt.Errorf("invalid bech32 address: %w", err)
	}
	return b.ChangeAddress(addr), nil
}

// CollateralOutputAddressBech32 sets the collateral return address from a
// bech32 string.
func (b *TxBuilder) CollateralOutputAddressBech32(bech32 string) (*TxBuilder, error) {
	addr, err := common.NewAddress(bech32)
	if err != nil {
		return b, fmt.Errorf("invalid bech32 address: %w", err)
	}
	return b.CollateralOutputAddress(addr), nil
}

// --- Payment Convenience Methods ---

// AddPayment adds the output described by p.
func (b *TxBuilder) AddPayment(p *Payment) (*TxBuilder, error) {
	out, err := p.ToOutput()
	if err != nil {
		return b, err
	}
	return b.AddOutput(out)
}

// PayToAddress pays lovelace and units to addr.
func (b *TxBuilder) PayToAddress(addr common.Address, lovelace uint64, units ...Unit) (*TxBuilder, error) {
	return b.AddPayment(&Payment{Receiver: addr, Lovelace: lovelace, Units: units})
}

// PayToAddressBech32 pays lovelace and units to a bech32 address.
func (b *TxBuilder) PayToAddressBech32(bech32 string, lovelace uint64, units ...Unit) (*TxBuilder, error) {
	p, err := NewPayment(bech32, lovelace, units)
	if err != nil {
		return b, err
	}
	return b.AddPayment(p)
}

// PayToContract pays to a script address with an inline datum.
func (b *TxBuilder) PayToContract(addr common.Address, datum []byte, lovelace uint64, units ...Unit) (*TxBuilder, error) {
	return b.AddPayment(&Payment{
		Receiver: addr,
		Lovelace: lovelace,
		Units:    units,
		Datum:    primitives.InlineDatum(datum),
	})
}

// PayToContractValue marshals datum to Plutus data and pays to addr with it
// as an inline datum.
func (b *TxBuilder) PayToContractValue(addr common.Address, datum any, lovelace uint64, units ...Unit) (*TxBuilder, error) {
	raw, err := plutusdata.EncodeValue(datum)
	if err != nil {
		return b, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	return b.PayToContract(addr, raw, lovelace, units...)
}

// AddScriptInputValue is AddScriptInput with a redeemer marshaled from a Go
// value.
func (b *TxBuilder) AddScriptInputValue(in primitives.Input, redeemer any, budget *primitives.ExUnits, kind primitives.ScriptKind) (*TxBuilder, error) {
	raw, err := plutusdata.EncodeValue(redeemer)
	if err != nil {
		return b, err
	}
	return b.AddScriptInput(in, raw, budget, kind), nil
}

// PayToContractWithDatumHash pays to a script address with a datum hash and
// adds the datum itself to the witness set.
func (b *TxBuilder) PayToContractWithDatumHash(addr common.Address, datum []byte, lovelace uint64, units ...Unit) (*TxBuilder, error) {
	if _, err := b.AddPayment(&Payment{
		Receiver: addr,
		Lovelace: lovelace,
		Units:    units,
		Datum:    primitives.HashedDatum(primitives.DatumHashOf(datum)),
	}); err != nil {
		return b, err
	}
	return b.AddDatum(datum), nil
}

// PayToContractAsHash pays to a script address with a pre-computed datum
// hash. The datum is not added to the witness set.
func (b *TxBuilder) PayToContractAsHash(addr common.Address, datumHash common.Blake2b256, lovelace uint64, units ...Unit) (*TxBuilder, error) {
	return b.AddPayment(&Payment{
		Receiver: addr,
		Lovelace: lovelace,
		Units:    units,
		Datum:    primitives.HashedDatum(datumHash),
	})
}

// PayToAddressWithReferenceScript pays to addr with a reference script
// attached to the output.
func (b *TxBuilder) PayToAddressWithReferenceScript(addr common.Address, lovelace uint64, script primitives.Script, units ...Unit) (*TxBuilder, error) {
	return b.AddPayment(&Payment{
		Receiver: addr,
		Lovelace: lovelace,
		Units:    units,
		Script:   &script,
	})
}

// --- Staking FromAddress / FromBech32 Convenience Methods ---

func stakeKeyHash(addr common.Address) (common.Blake2b224, error) {
	cred, ok := primitives.StakeCredential(addr)
	if !ok {
		account, err := primitives.RewardAccountFromAddress(addr)
		if err != nil {
			return common.Blake2b224{}, err
		}
		cred = account.Credential()
	}
	if cred.IsScript() {
		return common.Blake2b224{}, fmt.Errorf("address %s has a script stake credential", addr.String())
	}
	return cred.Hash, nil
}

// RegisterStakeFromBech32 registers the key stake credential of a bech32
// address.
func (b *TxBuilder) RegisterStakeFromBech32(bech32 string) (*TxBuilder, error) {
	addr, err := common.NewAddress(bech32)
	if err != nil {
		return b, fmt.Errorf("invalid bech32 address: %w", err)
	}
	return b.RegisterStakeFromAddress(addr)
}

// DeregisterStakeFromAddress deregisters the key stake credential of addr.
func (b *TxBuilder) DeregisterStakeFromAddress(addr common.Address) (*TxBuilder, error) {
	h, err := stakeKeyHash(addr)
	if err != nil {
		return b, err
	}
	return b.DeregisterStake(h), nil
}

// DelegateStakeFromAddress delegates the key stake credential of addr.
func (b *TxBuilder) DelegateStakeFromAddress(addr common.Address, pool common.Blake2b224) (*TxBuilder, error) {
	h, err := stakeKeyHash(addr)
	if err != nil {
		return b, err
	}
	return b.DelegateStake(h, pool), nil
}

// DelegateStakeFromBech32 delegates the key stake credential of a bech32
// address.
func (b *TxBuilder) DelegateStakeFromBech32(bech32 string, pool common.Blake2b224) (*TxBuilder, error) {
	addr, err := common.NewAddress(bech32)
	if err != nil {
		return b, fmt.Errorf("invalid bech32 address: %w", err)
	}
	return b.DelegateStakeFromAddress(addr, pool)
}

// WithdrawFromAddress withdraws rewards from the stake part of addr.
func (b *TxBuilder) WithdrawFromAddress(addr common.Address, amount uint64) (*TxBuilder, error) {
	account, err := primitives.RewardAccountFromAddress(addr)
	if err != nil {
		return b, err
	}
	return b.Withdraw(account, amount), nil
}
