package hose

import (
	"cmp"
	"math"
	"slices"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// valueFlow is the lovelace and asset balance of a draft.
type valueFlow struct {
	// available is inputs plus withdrawals plus certificate refunds.
	available uint64
	// spent is outputs plus fee plus certificate deposits.
	spent uint64
	// assets is outputs minus inputs minus mint. Positive entries are still
	// owed, negative entries are surplus for the change output.
	assets primitives.AssetsDelta
}

func (f valueFlow) neededAssets() primitives.Assets {
	return f.assets.OnlyPositive()
}

func (f valueFlow) surplusAssets() primitives.Assets {
	return f.assets.OnlyNegative()
}

func (b *balancer) flow(s *Staging) (valueFlow, error) {
	var f valueFlow
	inAssets := make(primitives.Assets)
	for _, in := range s.Inputs {
		out, ok := b.fees.resolved[in]
		if !ok {
			return f, &IndexerError{Err: errUnresolved(in)}
		}
		f.available = addSaturating(f.available, out.Lovelace)
		inAssets = inAssets.Add(out.Assets)
	}
	for _, amount := range s.Withdrawals {
		f.available = addSaturating(f.available, amount)
	}
	for _, c := range s.Certificates {
		f.available = addSaturating(f.available, c.Refund())
		f.spent = addSaturating(f.spent, c.Deposit())
	}
	outAssets := make(primitives.Assets)
	for _, o := range s.Outputs {
		f.spent = addSaturating(f.spent, o.Lovelace)
		outAssets = outAssets.Add(o.Assets)
	}
	f.spent = addSaturating(f.spent, s.Fee)

	delta, err := outAssets.Delta().Sub(inAssets.Delta())
	if err != nil {
		return f, err
	}
	if f.assets, err = delta.Sub(s.Mint); err != nil {
		return f, err
	}
	return f, nil
}

// minChangeDeposit is the deposit of a change output carrying surplus. In
// absorption mode a lovelace-only change is optional and reserves nothing.
func (b *balancer) minChangeDeposit(surplus primitives.Assets) (uint64, error) {
	if b.absorbChange && surplus.IsEmpty() {
		return 0, nil
	}
	change := primitives.NewOutput(b.changeAddress, 0).
		WithAssets(surplus).
		WithDatum(b.changeDatum)
	return change.MinDeposit(b.fees.params.DepositParams())
}

// requiredLovelace is how much more lovelace the inputs must bring in.
func (b *balancer) requiredLovelace(s *Staging) (uint64, valueFlow, error) {
	f, err := b.flow(s)
	if err != nil {
		return 0, f, err
	}
	minChange, err := b.minChangeDeposit(f.surplusAssets())
	if err != nil {
		return 0, f, err
	}
	need := addSaturating(f.spent, minChange)
	if need <= f.available {
		return 0, f, nil
	}
	return need - f.available, f, nil
}

// spendable filters the wallet utxos down to the ones coin selection may
// add: not yet spent, and free of scripts and datums.
func (b *balancer) spendable(s *Staging) []primitives.Utxo {
	pool := make([]primitives.Utxo, 0, len(b.candidates))
	for _, u := range b.candidates {
		if slices.Contains(s.Inputs, u.Input) {
			continue
		}
		if u.Output.Script != nil || !u.Output.Datum.IsNone() {
			continue
		}
		pool = append(pool, u)
	}
	return primitives.SortUtxos(pool)
}

// selectCoins adds wallet utxos to s until its outputs, fee, deposits and
// change are covered. Assets are gathered first by taking the largest
// holder of each missing asset, then lovelace largest first.
func (b *balancer) selectCoins(s *Staging) ([]primitives.Utxo, error) {
	pool := b.spendable(s)
	if len(s.Inputs) == 0 && len(pool) == 0 {
		return nil, ErrNoUtxosToSpend
	}

	var selected []primitives.Utxo
	take := func(i int) {
		u := pool[i]
		pool = slices.Delete(pool, i, i+1)
		s.Inputs = append(s.Inputs, u.Input)
		b.fees.resolved[u.Input] = u.Output
		selected = append(selected, u)
	}

	for {
		f, err := b.flow(s)
		if err != nil {
			return nil, err
		}
		needed := f.neededAssets()
		if needed.IsEmpty() {
			break
		}
		holder := -1
		for _, id := range needed.Keys() {
			if holder = largestHolder(pool, id); holder >= 0 {
				break
			}
		}
		if holder < 0 {
			break
		}
		take(holder)
	}

	slices.SortStableFunc(pool, func(x, y primitives.Utxo) int {
		if c := cmp.Compare(y.Output.Lovelace, x.Output.Lovelace); c != 0 {
			return c
		}
		return x.Input.Compare(y.Input)
	})
	for {
		required, _, err := b.requiredLovelace(s)
		if err != nil {
			return nil, err
		}
		if required == 0 && len(s.Inputs) > 0 {
			break
		}
		if len(pool) == 0 {
			if required > 0 {
				return nil, &InsufficientLovelaceError{Missing: required}
			}
			break
		}
		take(0)
	}

	f, err := b.flow(s)
	if err != nil {
		return nil, err
	}
	if needed := f.neededAssets(); !needed.IsEmpty() {
		return nil, &InsufficientAssetsError{Deltas: needed}
	}
	return selected, nil
}

// largestHolder returns the index of the utxo with the most of id, the
// earliest pointer winning ties, or -1 when none holds any.
func largestHolder(pool []primitives.Utxo, id primitives.AssetId) int {
	best := -1
	var bestQty uint64
	for i, u := range pool {
		qty := u.Output.Assets[id]
		if qty > bestQty {
			best, bestQty = i, qty
		}
	}
	return best
}

func addSaturating(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
