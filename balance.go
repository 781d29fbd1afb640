package hose

import (
	"context"
	"fmt"
	"slices"

	"github.com/blinklabs-io/gouroboros/ledger/common"
	"github.com/rs/zerolog"

	"github.com/Liqwid-Labs/hose-sub000/backend"
	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// MaxIterations bounds the fee fixed point.
const MaxIterations = 20

// balancer turns a staged intent into a balanced, fee-settled transaction.
type balancer struct {
	fees              feeModel
	lookup            backend.UtxoLookup
	logger            zerolog.Logger
	changeAddress     common.Address
	changeDatum       primitives.DatumOption
	collateralAddress *common.Address
	absorbChange      bool
	// userCollateral is the collateral the caller supplied, if any.
	userCollateral []primitives.Input
	candidates     []primitives.Utxo
}

func errUnresolved(in primitives.Input) error {
	return fmt.Errorf("utxo %s not found", in)
}

// prepare fills derived fields and resolves every utxo the transaction
// touches.
func (b *balancer) prepare(ctx context.Context, s *Staging) error {
	s.CostModels = b.fees.params.CostModels
	for i, c := range s.Certificates {
		if !primitives.NeedsDeposit(c) {
			continue
		}
		if b.fees.params.StakeCredentialDeposit == 0 {
			return fmt.Errorf("%w: certificate for %s", ErrMissingStakeCredentialDeposit, c.StakeCredential())
		}
		s.Certificates[i] = primitives.WithDeposit(c, b.fees.params.StakeCredentialDeposit)
	}

	pointers := primitives.SortInputs(slices.Concat(s.Inputs, s.ReferenceInputs, s.CollateralInputs))
	if len(pointers) > 0 {
		utxos, err := b.lookup.Utxos(ctx, pointers)
		if err != nil {
			return &IndexerError{Err: err}
		}
		for _, u := range utxos {
			b.fees.resolved[u.Input] = u.Output
		}
		for _, in := range pointers {
			if _, ok := b.fees.resolved[in]; !ok {
				return &IndexerError{Err: errUnresolved(in)}
			}
		}
	}

	candidates, err := b.lookup.AddressUtxos(ctx, b.changeAddress)
	if err != nil {
		return &IndexerError{Err: err}
	}
	b.candidates = primitives.SortUtxos(candidates)
	b.userCollateral = slices.Clone(s.CollateralInputs)

	return b.checkRedeemers(s)
}

// knownScript looks a script up in the witness set and in the reference
// scripts of resolved outputs.
func (b *balancer) knownScript(s *Staging, h common.Blake2b224) (primitives.Script, bool) {
	if script, ok := s.Scripts[h]; ok {
		return script, true
	}
	for _, in := range slices.Concat(s.ReferenceInputs, s.Inputs) {
		out, ok := b.fees.resolved[in]
		if ok && out.Script != nil && out.Script.Hash() == h {
			return *out.Script, true
		}
	}
	return primitives.Script{}, false
}

// targetScript returns the script hash a purpose executes.
func (b *balancer) targetScript(p primitives.RedeemerPurpose) (common.Blake2b224, bool) {
	if spend, ok := p.(primitives.SpendPurpose); ok {
		out, found := b.fees.resolved[spend.Input]
		if !found {
			return common.Blake2b224{}, false
		}
		cred, ok := primitives.PaymentCredential(out.Address)
		if !ok || !cred.IsScript() {
			return common.Blake2b224{}, false
		}
		return cred.Hash, true
	}
	return primitives.ScriptHash(p)
}

// checkRedeemers matches redeemers against the scripts they drive and
// records the Plutus languages in play.
func (b *balancer) checkRedeemers(s *Staging) error {
	for p := range s.Redeemers {
		if spend, ok := p.(primitives.SpendPurpose); ok && !slices.Contains(s.Inputs, spend.Input) {
			return fmt.Errorf("%w: %s", ErrRedeemerTargetMissing, p)
		}
		h, ok := b.targetScript(p)
		if !ok {
			continue
		}
		script, known := b.knownScript(s, h)
		if !known {
			continue
		}
		if script.Kind == primitives.ScriptNative {
			return fmt.Errorf("%w: %s", ErrRedeemerForNativeScript, p)
		}
		s.AddLanguage(script.Kind)
	}

	requirePlutus := func(p primitives.RedeemerPurpose, h common.Blake2b224, strict bool) error {
		if _, ok := s.Redeemers[p]; ok {
			return nil
		}
		script, known := b.knownScript(s, h)
		if known && script.Kind == primitives.ScriptNative {
			return nil
		}
		if known || strict {
			return fmt.Errorf("%w: %s", ErrRedeemerMissing, p)
		}
		return nil
	}
	for _, in := range s.Inputs {
		p := primitives.SpendPurpose{Input: in}
		if h, ok := b.targetScript(p); ok {
			if err := requirePlutus(p, h, false); err != nil {
				return err
			}
		}
	}
	for _, policy := range s.Mint.Policies() {
		if err := requirePlutus(primitives.MintPurpose{Policy: policy}, policy, false); err != nil {
			return err
		}
	}
	for account := range s.Withdrawals {
		cred := account.Credential()
		if !cred.IsScript() {
			continue
		}
		if err := requirePlutus(primitives.RewardPurpose{Account: account}, cred.Hash, true); err != nil {
			return err
		}
	}
	for _, c := range s.Certificates {
		cred := c.StakeCredential()
		if !cred.IsScript() || !c.RequiresWitness() {
			continue
		}
		if err := requirePlutus(primitives.CertPurpose{ScriptHash: cred.Hash}, cred.Hash, true); err != nil {
			return err
		}
	}
	return nil
}

// finalise adds the change output and collateral to a copy of draft priced
// at fee. It reports whether the remainder was absorbed into the fee.
func (b *balancer) finalise(draft *Staging, fee uint64) (*Staging, bool, error) {
	s := draft.Clone()
	s.Fee = fee
	f, err := b.flow(s)
	if err != nil {
		return nil, false, err
	}
	if needed := f.neededAssets(); !needed.IsEmpty() {
		return nil, false, &InsufficientAssetsError{Deltas: needed}
	}
	if f.available < f.spent {
		return nil, false, &InsufficientLovelaceError{Missing: f.spent - f.available}
	}

	surplus := f.available - f.spent
	change := primitives.NewOutput(b.changeAddress, surplus).
		WithAssets(f.surplusAssets()).
		WithDatum(b.changeDatum)
	deposit, err := change.MinDeposit(b.fees.params.DepositParams())
	if err != nil {
		return nil, false, err
	}
	absorbed := false
	switch {
	case surplus >= deposit:
		s.Outputs = append(s.Outputs, change)
	case b.absorbChange && change.HasOnlyLovelace():
		s.Fee += surplus
		absorbed = true
	default:
		return nil, false, &InsufficientLovelaceError{Missing: deposit - surplus}
	}

	if err := b.applyCollateral(s); err != nil {
		return nil, false, err
	}
	return s, absorbed, nil
}

// run iterates fee, selection and finalisation until the fee charged
// equals the fee the result needs.
func (b *balancer) run(ctx context.Context, s *Staging) (*Staging, error) {
	fee, evals, _, err := b.fees.minFee(ctx, s, nil)
	if err != nil {
		return nil, err
	}
	draft := s.Clone()
	for iteration := 1; iteration <= MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		draft.Fee = fee
		selected, err := b.selectCoins(draft)
		if err != nil {
			return nil, err
		}
		final, absorbed, err := b.finalise(draft, fee)
		if err != nil {
			return nil, err
		}
		computed, newEvals, applied, err := b.fees.minFee(ctx, final, evals)
		if err != nil {
			return nil, err
		}
		evals = newEvals
		b.logger.Debug().
			Int("iteration", iteration).
			Uint64("fee", fee).
			Uint64("computed_fee", computed).
			Int("selected", len(selected)).
			Int("inputs", len(final.Inputs)).
			Bool("absorbed", absorbed).
			Msg("balance")

		if len(selected) == 0 && (computed == fee || (absorbed && computed <= final.Fee)) {
			return applied, nil
		}
		if iteration == MaxIterations {
			return nil, &NonConvergedError{LastFee: fee, ComputedFee: computed}
		}
		fee = computed
	}
	return nil, &NonConvergedError{LastFee: fee}
}
