package primitives

import (
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// RedeemerPurpose names what a redeemer unlocks. It is the logical key; the
// serialiser turns it into a positional index.
type RedeemerPurpose interface {
	Tag() common.RedeemerTag
	String() string
	isPurpose()
}

type SpendPurpose struct{ Input Input }

type MintPurpose struct{ Policy common.Blake2b224 }

type CertPurpose struct{ ScriptHash common.Blake2b224 }

type RewardPurpose struct{ Account RewardAccount }

func (SpendPurpose) isPurpose()  {}
func (MintPurpose) isPurpose()   {}
func (CertPurpose) isPurpose()   {}
func (RewardPurpose) isPurpose() {}

func (SpendPurpose) Tag() common.RedeemerTag  { return common.RedeemerTagSpend }
func (MintPurpose) Tag() common.RedeemerTag   { return common.RedeemerTagMint }
func (CertPurpose) Tag() common.RedeemerTag   { return common.RedeemerTagCert }
func (RewardPurpose) Tag() common.RedeemerTag { return common.RedeemerTagReward }

func (p SpendPurpose) String() string  { return "spend:" + p.Input.String() }
func (p MintPurpose) String() string   { return "mint:" + p.Policy.String() }
func (p CertPurpose) String() string   { return "cert:" + p.ScriptHash.String() }
func (p RewardPurpose) String() string { return "reward:" + p.Account.String() }

// ScriptHash returns the script a purpose targets, when it is known
// without resolving inputs.
func ScriptHash(p RedeemerPurpose) (common.Blake2b224, bool) {
	switch v := p.(type) {
	case MintPurpose:
		return v.Policy, true
	case CertPurpose:
		return v.ScriptHash, true
	case RewardPurpose:
		cred := v.Account.Credential()
		return cred.Hash, cred.IsScript()
	default:
		return common.Blake2b224{}, false
	}
}

// ExUnits is an execution budget.
type ExUnits struct {
	Mem   uint64
	Steps uint64
}

func (e ExUnits) String() string {
	return fmt.Sprintf("mem=%d steps=%d", e.Mem, e.Steps)
}

// Redeemer holds Plutus data bytes and an optional fixed budget. Without a
// budget the evaluator's result is used.
type Redeemer struct {
	Data   []byte
	Budget *ExUnits
}
