package hose

import (
	"fmt"
	"maps"
	"slices"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// Withdrawal is one reward account withdrawal.
type Withdrawal struct {
	Account primitives.RewardAccount
	Amount  uint64
}

// Staging is a snapshot of transaction intent. The builder fills it and the
// balancer works on copies of it.
type Staging struct {
	Inputs           []primitives.Input
	ReferenceInputs  []primitives.Input
	CollateralInputs []primitives.Input
	Outputs          []primitives.Output
	CollateralOutput *primitives.Output
	TotalCollateral  *uint64
	Mint             primitives.AssetsDelta
	Withdrawals      map[primitives.RewardAccount]uint64
	Certificates     []primitives.Certificate
	Scripts          map[common.Blake2b224]primitives.Script
	Datums           map[common.Blake2b256][]byte
	Redeemers        map[primitives.RedeemerPurpose]primitives.Redeemer
	Signers          []common.Blake2b224
	Fee              uint64
	ValidFrom        *uint64
	InvalidFrom      *uint64
	NetworkId        *uint8
	// Languages holds the Plutus language versions whose cost models go
	// into the language views.
	Languages     map[uint]struct{}
	CostModels    map[uint][]int64
	AuxiliaryData []byte
}

func NewStaging() *Staging {
	return &Staging{
		Mint:        make(primitives.AssetsDelta),
		Withdrawals: make(map[primitives.RewardAccount]uint64),
		Scripts:     make(map[common.Blake2b224]primitives.Script),
		Datums:      make(map[common.Blake2b256][]byte),
		Redeemers:   make(map[primitives.RedeemerPurpose]primitives.Redeemer),
		Languages:   make(map[uint]struct{}),
	}
}

// Clone returns a deep copy.
func (s *Staging) Clone() *Staging {
	out := *s
	out.Inputs = slices.Clone(s.Inputs)
	out.ReferenceInputs = slices.Clone(s.ReferenceInputs)
	out.CollateralInputs = slices.Clone(s.CollateralInputs)
	out.Outputs = make([]primitives.Output, len(s.Outputs))
	for i, o := range s.Outputs {
		out.Outputs[i] = o.Clone()
	}
	if s.CollateralOutput != nil {
		c := s.CollateralOutput.Clone()
		out.CollateralOutput = &c
	}
	out.TotalCollateral = clonePtr(s.TotalCollateral)
	out.Mint = s.Mint.Clone()
	out.Withdrawals = maps.Clone(s.Withdrawals)
	if out.Withdrawals == nil {
		out.Withdrawals = make(map[primitives.RewardAccount]uint64)
	}
	out.Certificates = slices.Clone(s.Certificates)
	out.Scripts = maps.Clone(s.Scripts)
	if out.Scripts == nil {
		out.Scripts = make(map[common.Blake2b224]primitives.Script)
	}
	out.Datums = maps.Clone(s.Datums)
	if out.Datums == nil {
		out.Datums = make(map[common.Blake2b256][]byte)
	}
	out.Redeemers = make(map[primitives.RedeemerPurpose]primitives.Redeemer, len(s.Redeemers))
	for p, r := range s.Redeemers {
		if r.Budget != nil {
			b := *r.Budget
			r.Budget = &b
		}
		out.Redeemers[p] = r
	}
	out.Signers = slices.Clone(s.Signers)
	out.ValidFrom = clonePtr(s.ValidFrom)
	out.InvalidFrom = clonePtr(s.InvalidFrom)
	out.NetworkId = clonePtr(s.NetworkId)
	out.Languages = maps.Clone(s.Languages)
	if out.Languages == nil {
		out.Languages = make(map[uint]struct{})
	}
	if s.CostModels != nil {
		out.CostModels = make(map[uint][]int64, len(s.CostModels))
		for k, v := range s.CostModels {
			out.CostModels[k] = slices.Clone(v)
		}
	}
	out.AuxiliaryData = slices.Clone(s.AuxiliaryData)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SortedInputs returns the inputs in canonical body order.
func (s *Staging) SortedInputs() []primitives.Input {
	return primitives.SortInputs(s.Inputs)
}

// SortedWithdrawals returns the withdrawals in reward account byte order.
func (s *Staging) SortedWithdrawals() []Withdrawal {
	result := make([]Withdrawal, 0, len(s.Withdrawals))
	for account, amount := range s.Withdrawals {
		result = append(result, Withdrawal{Account: account, Amount: amount})
	}
	slices.SortFunc(result, func(a, b Withdrawal) int {
		return a.Account.Compare(b.Account)
	})
	return result
}

// AddLanguage records the language of a Plutus script kind.
func (s *Staging) AddLanguage(kind primitives.ScriptKind) {
	if v, ok := kind.LanguageVersion(); ok {
		if s.Languages == nil {
			s.Languages = make(map[uint]struct{})
		}
		s.Languages[v] = struct{}{}
	}
}

// LanguageViews encodes the cost models of every recorded language in
// ascending version order.
func (s *Staging) LanguageViews() ([]byte, error) {
	used := make(map[uint]struct{}, len(s.Languages))
	models := make(map[uint][]int64, len(s.Languages))
	for v := range s.Languages {
		model, ok := s.CostModels[v]
		if !ok {
			return nil, fmt.Errorf("no cost model for plutus language version %d", v)
		}
		used[v] = struct{}{}
		models[v] = model
	}
	return common.EncodeLangViews(used, models)
}

// SetValidityInterval records the slot bounds, rejecting an empty interval.
func (s *Staging) SetValidityInterval(from, to *uint64) error {
	if from != nil && to != nil && *from >= *to {
		return fmt.Errorf("%w: %d >= %d", ErrInvalidValidityInterval, *from, *to)
	}
	s.ValidFrom = clonePtr(from)
	s.InvalidFrom = clonePtr(to)
	return nil
}

// RedeemerIndex resolves a purpose to its position in the canonical body.
func (s *Staging) RedeemerIndex(p primitives.RedeemerPurpose) (uint32, error) {
	switch v := p.(type) {
	case primitives.SpendPurpose:
		for i, in := range s.SortedInputs() {
			if in == v.Input {
				return uint32(i), nil
			}
		}
	case primitives.MintPurpose:
		for i, policy := range s.Mint.Policies() {
			if policy == v.Policy {
				return uint32(i), nil
			}
		}
	case primitives.CertPurpose:
		for i, cert := range s.Certificates {
			if cert.StakeCredential().Hash == v.ScriptHash {
				return uint32(i), nil
			}
		}
	case primitives.RewardPurpose:
		for i, w := range s.SortedWithdrawals() {
			if w.Account == v.Account {
				return uint32(i), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrRedeemerTargetMissing, p)
}

// KeyedRedeemers returns the redeemers keyed by tag and index.
func (s *Staging) KeyedRedeemers() (map[common.RedeemerKey]primitives.RedeemerPurpose, error) {
	keyed := make(map[common.RedeemerKey]primitives.RedeemerPurpose, len(s.Redeemers))
	for p := range s.Redeemers {
		idx, err := s.RedeemerIndex(p)
		if err != nil {
			return nil, err
		}
		keyed[common.RedeemerKey{Tag: p.Tag(), Index: idx}] = p
	}
	return keyed, nil
}

// HasPlutusScripts reports whether any witness script is a Plutus script.
func (s *Staging) HasPlutusScripts() bool {
	for _, script := range s.Scripts {
		if script.Kind.IsPlutus() {
			return true
		}
	}
	return false
}

// certificateIndex returns the position of the certificate for cred.
func (s *Staging) certificateIndex(cred primitives.Credential) int {
	return slices.IndexFunc(s.Certificates, func(c primitives.Certificate) bool {
		return c.StakeCredential() == cred
	})
}

// putCertificate appends cert, replacing any earlier certificate for the
// same credential.
func (s *Staging) putCertificate(cert primitives.Certificate) {
	if i := s.certificateIndex(cert.StakeCredential()); i >= 0 {
		s.Certificates = slices.Delete(s.Certificates, i, i+1)
	}
	s.Certificates = append(s.Certificates, cert)
}
