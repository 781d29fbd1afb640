package hose

import (
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// Unit represents a native asset quantity with a hex policy id and a hex
// asset name.
type Unit struct {
	PolicyId string
	Name     string
	Quantity uint64
}

// NewUnit creates a new Unit.
func NewUnit(policyId, name string, quantity uint64) Unit {
	return Unit{
		PolicyId: policyId,
		Name:     name,
		Quantity: quantity,
	}
}

// AssetId parses the policy id and asset name.
func (u Unit) AssetId() (primitives.AssetId, error) {
	policy, err := primitives.Hash224FromHex(u.PolicyId)
	if err != nil {
		return primitives.AssetId{}, fmt.Errorf("invalid policy ID %q: %w", u.PolicyId, err)
	}
	name, err := hex.DecodeString(u.Name)
	if err != nil {
		return primitives.AssetId{}, fmt.Errorf("invalid asset name hex %q: %w (asset names must be hex-encoded)", u.Name, err)
	}
	return primitives.NewAssetId(policy, name)
}

// UnitsToAssets folds units into an asset map.
func UnitsToAssets(units []Unit) (primitives.Assets, error) {
	assets := make(primitives.Assets)
	for _, u := range units {
		id, err := u.AssetId()
		if err != nil {
			return nil, err
		}
		assets = assets.Add(primitives.Assets{id: u.Quantity})
	}
	return assets, nil
}

// Payment describes an output by receiver, lovelace and optional assets,
// datum and reference script.
type Payment struct {
	Receiver common.Address
	Lovelace uint64
	Units    []Unit
	Datum    primitives.DatumOption
	Script   *primitives.Script
}

// NewPayment creates a Payment to a bech32 receiver.
func NewPayment(receiver string, lovelace uint64, units []Unit) (*Payment, error) {
	addr, err := common.NewAddress(receiver)
	if err != nil {
		return nil, fmt.Errorf("invalid receiver address: %w", err)
	}
	return &Payment{
		Receiver: addr,
		Lovelace: lovelace,
		Units:    units,
	}, nil
}

// PaymentFromOutput converts an output back to a Payment.
func PaymentFromOutput(o primitives.Output) *Payment {
	p := &Payment{
		Receiver: o.Address,
		Lovelace: o.Lovelace,
		Datum:    o.Datum,
		Script:   o.Script,
	}
	for _, id := range o.Assets.Keys() {
		p.Units = append(p.Units, Unit{
			PolicyId: hex.EncodeToString(id.Policy.Bytes()),
			Name:     hex.EncodeToString(id.NameBytes()),
			Quantity: o.Assets[id],
		})
	}
	return p
}

// ToOutput converts a Payment to an output.
func (p *Payment) ToOutput() (primitives.Output, error) {
	assets, err := UnitsToAssets(p.Units)
	if err != nil {
		return primitives.Output{}, err
	}
	out := primitives.NewOutput(p.Receiver, p.Lovelace).
		WithAssets(assets).
		WithDatum(p.Datum)
	if p.Script != nil {
		out = out.WithScript(*p.Script)
	}
	return out, nil
}

// EnsureMinUTXO raises the lovelace to the minimum deposit for the output.
func (p *Payment) EnsureMinUTXO(pp backend.ProtocolParameters) error {
	out, err := p.ToOutput()
	if err != nil {
		return err
	}
	out, err = out.EnsureMinDeposit(pp.DepositParams())
	if err != nil {
		return fmt.Errorf("failed to compute min UTxO: %w", err)
	}
	p.Lovelace = out.Lovelace
	return nil
}
