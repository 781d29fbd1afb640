package hose

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

func TestNewBuilderSetsNetwork(t *testing.T) {
	b := New(setupFixedContext())
	s := b.Staging()
	if s.NetworkId == nil || *s.NetworkId != 0 {
		t.Fatalf("expected network id 0, got %v", s.NetworkId)
	}
	if _, err := b.NetworkId(16); !errors.Is(err, ErrInvalidNetworkId) {
		t.Errorf("expected ErrInvalidNetworkId, got %v", err)
	}
	if _, err := b.NetworkId(15); err != nil {
		t.Errorf("network 15 should be accepted: %v", err)
	}
}

func TestMintAssetAccumulates(t *testing.T) {
	b := New(setupFixedContext())
	p := testPolicy(0x01)
	if _, err := b.MintAsset(p, []byte("a"), 10); err != nil {
		t.Fatal(err)
	}
	if _, err := b.MintAsset(p, []byte("a"), -4); err != nil {
		t.Fatal(err)
	}
	id, _ := primitives.NewAssetId(p, []byte("a"))
	if got := b.Staging().Mint[id]; got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
	if _, err := b.MintAsset(p, []byte("a"), -6); err != nil {
		t.Fatal(err)
	}
	if !b.Staging().Mint.IsEmpty() {
		t.Error("asset summing to zero must not be emitted")
	}
	if _, err := b.MintAsset(p, []byte("z"), 0); err != nil {
		t.Fatal(err)
	}
	if !b.Staging().Mint.IsEmpty() {
		t.Error("zero mint must not be emitted")
	}
}

func TestMintAssetNameTooLong(t *testing.T) {
	b := New(setupFixedContext())
	if _, err := b.MintAsset(testPolicy(0x01), bytes.Repeat([]byte{'x'}, 33), 1); !errors.Is(err, ErrAssetNameTooLong) {
		t.Errorf("expected ErrAssetNameTooLong, got %v", err)
	}
	if _, err := b.MintAsset(testPolicy(0x01), bytes.Repeat([]byte{'x'}, 32), 1); err != nil {
		t.Errorf("32-byte name should be accepted: %v", err)
	}
}

func TestMintAssetOverflow(t *testing.T) {
	b := New(setupFixedContext())
	p := testPolicy(0x01)
	if _, err := b.MintAsset(p, []byte("a"), 1<<62); err != nil {
		t.Fatal(err)
	}
	if _, err := b.MintAsset(p, []byte("a"), 1<<62); !errors.Is(err, ErrInvalidMintAmount) {
		t.Errorf("expected ErrInvalidMintAmount, got %v", err)
	}
}

func TestCertificateLastWriteWins(t *testing.T) {
	b := New(setupFixedContext())
	h := testPolicy(0x0A)
	b.RegisterStake(h).DelegateStake(h, testPolicy(0xF0))
	certs := b.Staging().Certificates
	if len(certs) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(certs))
	}
	if _, ok := certs[0].(primitives.StakeDelegation); !ok {
		t.Errorf("expected delegation to replace registration, got %T", certs[0])
	}

	b.RegisterStake(testPolicy(0x0B))
	b.RemoveCertificate(primitives.KeyHashCredential(h))
	certs = b.Staging().Certificates
	if len(certs) != 1 || certs[0].StakeCredential().Hash != testPolicy(0x0B) {
		t.Errorf("expected only the second registration, got %v", certs)
	}
}

func TestRegisterScriptStakeWithoutRedeemer(t *testing.T) {
	b := New(setupFixedContext())
	h := testPolicy(0x0C)
	b.RegisterScriptStake(h, primitives.ScriptPlutusV3, []byte{0x00}, nil)
	if len(b.Staging().Redeemers) != 1 {
		t.Fatal("expected cert redeemer")
	}
	b.RegisterScriptStake(h, primitives.ScriptPlutusV3, nil, nil)
	if len(b.Staging().Redeemers) != 0 {
		t.Error("registering again without a redeemer should drop it")
	}
	if len(b.Staging().Certificates) != 1 {
		t.Error("expected a single registration")
	}
}

func TestAddSignerDedupes(t *testing.T) {
	b := New(setupFixedContext())
	b.AddSigner(testPolicy(1)).AddSigner(testPolicy(1)).AddSigner(testPolicy(2))
	if got := len(b.Staging().Signers); got != 2 {
		t.Errorf("expected 2 signers, got %d", got)
	}
	b.RemoveSigner(testPolicy(1))
	if got := b.Staging().Signers; len(got) != 1 || got[0] != testPolicy(2) {
		t.Errorf("unexpected signers %v", got)
	}
}

func TestAddScriptKeyedByHash(t *testing.T) {
	b := New(setupFixedContext())
	script := alwaysSucceeds(t)
	b.AddScript(primitives.ScriptPlutusV3, script.Bytes).AddScript(primitives.ScriptPlutusV3, script.Bytes)
	if got := len(b.Staging().Scripts); got != 1 {
		t.Fatalf("expected 1 script, got %d", got)
	}
	b.RemoveScript(script.Hash())
	if len(b.Staging().Scripts) != 0 {
		t.Error("expected script removed")
	}
}

func TestAddDatumKeyedByHash(t *testing.T) {
	b := New(setupFixedContext())
	datum := []byte{0x18, 0x2a}
	b.AddDatum(datum)
	h := primitives.DatumHashOf(datum)
	if !bytes.Equal(b.Staging().Datums[h], datum) {
		t.Fatal("expected datum under its hash")
	}
	b.RemoveDatum(h)
	if len(b.Staging().Datums) != 0 {
		t.Error("expected datum removed")
	}
}

func TestAddOutputRejectsInvalid(t *testing.T) {
	b := New(setupFixedContext())
	out := primitives.NewOutput(testAddress(t), 2_000_000).WithDatum(primitives.InlineDatum([]byte{0xff, 0xff}))
	if _, err := b.AddOutput(out); err == nil {
		t.Error("expected malformed inline datum to be rejected")
	}
	if len(b.Staging().Outputs) != 0 {
		t.Error("rejected output must not be added")
	}
}

func TestRemoveOperations(t *testing.T) {
	b := New(setupFixedContext())
	in := testInput(0x01, 0)
	b.AddScriptInput(in, []byte{0x00}, nil, primitives.ScriptPlutusV3)
	b.AddReferenceInput(testInput(0x02, 0))
	b.AddCollateralInput(testInput(0x03, 0))
	if _, err := b.AddOutput(primitives.NewOutput(testAddress(t), 2_000_000)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.MintAssetWithRedeemer(testPolicy(0x09), []byte("a"), 1, primitives.ScriptPlutusV3, []byte{0x00}, nil); err != nil {
		t.Fatal(err)
	}
	account, err := primitives.RewardAccountFromKeyHash(0, testPolicy(0x0D))
	if err != nil {
		t.Fatal(err)
	}
	b.Withdraw(account, 5)

	b.RemoveInput(in).
		RemoveReferenceInput(testInput(0x02, 0)).
		RemoveCollateralInput(testInput(0x03, 0)).
		RemoveOutput(0).
		RemoveOutput(7).
		RemoveMint(testPolicy(0x09)).
		RemoveWithdrawal(account)

	s := b.Staging()
	if len(s.Inputs)+len(s.ReferenceInputs)+len(s.CollateralInputs)+len(s.Outputs) != 0 {
		t.Errorf("expected inputs and outputs removed: %+v", s)
	}
	if !s.Mint.IsEmpty() || len(s.Withdrawals) != 0 {
		t.Error("expected mint and withdrawals removed")
	}
	if len(s.Redeemers) != 0 {
		t.Errorf("expected redeemers removed with their targets, got %d", len(s.Redeemers))
	}
}

func TestValidityInterval(t *testing.T) {
	b := New(setupFixedContext())
	if _, err := b.InvalidFrom(100); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ValidFrom(100); !errors.Is(err, ErrInvalidValidityInterval) {
		t.Errorf("expected ErrInvalidValidityInterval, got %v", err)
	}
	if _, err := b.ValidFrom(50); err != nil {
		t.Fatal(err)
	}
	s := b.Staging()
	if *s.ValidFrom != 50 || *s.InvalidFrom != 100 {
		t.Errorf("unexpected interval %d..%d", *s.ValidFrom, *s.InvalidFrom)
	}
}

func TestWithdrawFromScriptUsesNetwork(t *testing.T) {
	b := New(setupFixedContext())
	if _, err := b.NetworkId(1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.WithdrawFromScript(testPolicy(0x0E), primitives.ScriptPlutusV3, 0, []byte{0x00}, nil); err != nil {
		t.Fatal(err)
	}
	for account := range b.Staging().Withdrawals {
		if account.Network() != 1 {
			t.Errorf("expected network 1, got %d", account.Network())
		}
		if !account.Credential().IsScript() {
			t.Error("expected script credential")
		}
	}
}

func TestAddAuxiliaryDataValidates(t *testing.T) {
	b := New(setupFixedContext())
	if _, err := b.AddAuxiliaryData([]byte{0xff}); err == nil {
		t.Error("expected error for malformed auxiliary data")
	}
	if _, err := b.AddAuxiliaryData([]byte{0xa0}); err != nil {
		t.Errorf("empty map should be accepted: %v", err)
	}
}

func TestRedeemerIndexMintPolicies(t *testing.T) {
	s := NewStaging()
	high, low := testPolicy(0x20), testPolicy(0x10)
	idHigh, _ := primitives.NewAssetId(high, []byte("a"))
	idLow, _ := primitives.NewAssetId(low, []byte("a"))
	s.Mint = primitives.AssetsDelta{idHigh: 1, idLow: 1}
	for policy, want := range map[[28]byte]uint32{low: 0, high: 1} {
		got, err := s.RedeemerIndex(primitives.MintPurpose{Policy: policy})
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("policy %x: expected index %d, got %d", policy, want, got)
		}
	}
	if _, err := s.RedeemerIndex(primitives.MintPurpose{Policy: testPolicy(0x30)}); !errors.Is(err, ErrRedeemerTargetMissing) {
		t.Errorf("expected ErrRedeemerTargetMissing, got %v", err)
	}
}

func TestStagingCloneIsDeep(t *testing.T) {
	s := NewStaging()
	s.Inputs = append(s.Inputs, testInput(1, 0))
	budget := primitives.ExUnits{Mem: 1, Steps: 1}
	s.Redeemers[primitives.SpendPurpose{Input: testInput(1, 0)}] = primitives.Redeemer{Data: []byte{0}, Budget: &budget}
	c := s.Clone()
	c.Inputs[0] = testInput(2, 0)
	r := c.Redeemers[primitives.SpendPurpose{Input: testInput(1, 0)}]
	r.Budget.Mem = 99
	if s.Inputs[0] != testInput(1, 0) {
		t.Error("clone shares inputs")
	}
	if budget.Mem != 1 {
		t.Error("clone shares redeemer budgets")
	}
}
