package hose

import (
	"cmp"
	"fmt"
	"math/big"
	"slices"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// defaultMaxCollateralInputs applies when the parameters leave the limit unset.
const defaultMaxCollateralInputs = 3

// needsCollateral reports whether s may run a script.
func (b *balancer) needsCollateral(s *Staging) bool {
	if !s.Mint.IsEmpty() || len(s.Scripts) > 0 || len(s.Redeemers) > 0 {
		return true
	}
	for _, in := range slices.Concat(s.Inputs, s.ReferenceInputs) {
		out, ok := b.fees.resolved[in]
		if !ok {
			continue
		}
		if out.Script != nil || primitives.IsScriptAddress(out.Address) {
			return true
		}
	}
	return false
}

// requiredCollateral is ceil(fee * percentage / 100).
func requiredCollateral(fee, percentage uint64) uint64 {
	r := new(big.Rat).Mul(ratFromUint(fee), ratFromUint(percentage))
	r.Quo(r, big.NewRat(100, 1))
	return ceilToUint(r)
}

func collateralEligible(u primitives.Utxo) bool {
	return u.Output.HasOnlyLovelace() && u.Output.Script == nil && u.Output.Datum.IsNone()
}

// selectCollateral picks the smallest single eligible utxo worth more than
// required. When none is large enough it falls back to the largest eligible
// utxos, up to the collateral input limit. A utxo spent by the transaction
// may also back its collateral.
func (b *balancer) selectCollateral(required uint64) ([]primitives.Utxo, error) {
	var eligible []primitives.Utxo
	for _, u := range b.candidates {
		if !collateralEligible(u) {
			continue
		}
		eligible = append(eligible, u)
	}
	if len(eligible) == 0 {
		return nil, ErrNoCollateralCandidate
	}

	slices.SortFunc(eligible, func(x, y primitives.Utxo) int {
		if c := cmp.Compare(x.Output.Lovelace, y.Output.Lovelace); c != 0 {
			return c
		}
		return x.Input.Compare(y.Input)
	})
	for _, u := range eligible {
		if u.Output.Lovelace > required {
			return []primitives.Utxo{u}, nil
		}
	}

	limit := b.fees.params.MaxCollateralInputs
	if limit == 0 {
		limit = defaultMaxCollateralInputs
	}
	var (
		picked []primitives.Utxo
		total  uint64
	)
	for i := len(eligible) - 1; i >= 0 && uint64(len(picked)) < limit; i-- {
		picked = append(picked, eligible[i])
		total = addSaturating(total, eligible[i].Output.Lovelace)
		if total >= required {
			return picked, nil
		}
	}
	return nil, ErrNoCollateralCandidate
}

// applyCollateral sets collateral inputs, the collateral return and the
// total collateral on s for its current fee. User supplied collateral
// inputs are kept as they are.
func (b *balancer) applyCollateral(s *Staging) error {
	if !b.needsCollateral(s) {
		return nil
	}
	required := requiredCollateral(s.Fee, b.fees.params.CollateralPercentage)

	var collateral []primitives.Utxo
	if len(b.userCollateral) > 0 {
		for _, in := range b.userCollateral {
			out, ok := b.fees.resolved[in]
			if !ok {
				return &IndexerError{Err: errUnresolved(in)}
			}
			collateral = append(collateral, primitives.Utxo{Input: in, Output: out})
		}
		if err := checkCollateral(collateral, required); err != nil {
			return err
		}
	} else {
		picked, err := b.selectCollateral(required)
		if err != nil {
			return err
		}
		collateral = picked
	}

	s.CollateralInputs = s.CollateralInputs[:0]
	var (
		sum    uint64
		assets = make(primitives.Assets)
	)
	for _, u := range collateral {
		s.CollateralInputs = append(s.CollateralInputs, u.Input)
		b.fees.resolved[u.Input] = u.Output
		sum = addSaturating(sum, u.Output.Lovelace)
		assets = assets.Add(u.Output.Assets)
	}

	s.CollateralOutput = nil
	total := sum
	if sum > required {
		ret := b.collateralReturn(sum-required, assets)
		deposit, err := ret.MinDeposit(b.fees.params.DepositParams())
		if err != nil {
			return err
		}
		if ret.Lovelace >= deposit {
			s.CollateralOutput = &ret
			total = required
		}
	}
	s.TotalCollateral = &total
	return nil
}

func (b *balancer) collateralReturn(lovelace uint64, assets primitives.Assets) primitives.Output {
	if b.collateralAddress != nil {
		return primitives.NewOutput(*b.collateralAddress, lovelace).WithAssets(assets)
	}
	return primitives.NewOutput(b.changeAddress, lovelace).
		WithAssets(assets).
		WithDatum(b.changeDatum)
}

// checkCollateral validates caller supplied collateral: lovelace only, no
// script, and enough to cover required.
func checkCollateral(collateral []primitives.Utxo, required uint64) error {
	var sum uint64
	for _, u := range collateral {
		if !u.Output.HasOnlyLovelace() || u.Output.Script != nil {
			return fmt.Errorf("%w: %s", ErrInvalidCollateral, u.Input)
		}
		sum = addSaturating(sum, u.Output.Lovelace)
	}
	if sum < required {
		return &InsufficientCollateralError{Required: required, Available: sum}
	}
	return nil
}
