package primitives

import (
	"errors"
	"strings"
	"testing"

	"github.com/blinklabs-io/gouroboros/ledger/common"
)

func testPolicy(b byte) common.Blake2b224 {
	var p common.Blake2b224
	p[0] = b
	return p
}

func testAsset(t *testing.T, policy byte, name string) AssetId {
	t.Helper()
	id, err := NewAssetId(testPolicy(policy), []byte(name))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestNewAssetIdNameLength(t *testing.T) {
	if _, err := NewAssetId(testPolicy(1), []byte(strings.Repeat("a", 32))); err != nil {
		t.Fatalf("32 byte name rejected: %v", err)
	}
	_, err := NewAssetId(testPolicy(1), []byte(strings.Repeat("a", 33)))
	if !errors.Is(err, ErrAssetNameTooLong) {
		t.Fatalf("expected ErrAssetNameTooLong, got %v", err)
	}
}

func TestParseUnitRoundTrip(t *testing.T) {
	id := testAsset(t, 7, "token")
	parsed, err := ParseUnit(id.Unit())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != id {
		t.Errorf("expected %s, got %s", id, parsed)
	}
	if _, err := ParseUnit("abcd"); err == nil {
		t.Error("expected error for short unit")
	}
}

func TestAssetsKeysOrdered(t *testing.T) {
	a := Assets{
		testAsset(t, 2, "b"): 1,
		testAsset(t, 1, "z"): 1,
		testAsset(t, 1, "a"): 1,
		testAsset(t, 3, "x"): 0,
	}
	keys := a.Keys()
	if len(keys) != 3 {
		t.Fatalf("expected zero entry pruned, got %d keys", len(keys))
	}
	if keys[0] != testAsset(t, 1, "a") || keys[1] != testAsset(t, 1, "z") || keys[2] != testAsset(t, 2, "b") {
		t.Errorf("unexpected order: %v", keys)
	}
	policies := a.Policies()
	if len(policies) != 2 || policies[0] != testPolicy(1) || policies[1] != testPolicy(2) {
		t.Errorf("unexpected policies: %v", policies)
	}
}

func TestAssetsDeltaArithmetic(t *testing.T) {
	x := testAsset(t, 1, "x")
	y := testAsset(t, 1, "y")
	a := AssetsDelta{x: 10, y: -4}
	b := AssetsDelta{x: 3, y: 4}

	sum, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	if sum[x] != 13 {
		t.Errorf("expected 13, got %d", sum[x])
	}
	if _, ok := sum[y]; ok {
		t.Error("expected balanced entry to be removed")
	}

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff[x] != 7 || diff[y] != -8 {
		t.Errorf("unexpected difference %v", diff)
	}

	pos := diff.OnlyPositive()
	if len(pos) != 1 || pos[x] != 7 {
		t.Errorf("unexpected positive part %v", pos)
	}
	neg := diff.OnlyNegative()
	if len(neg) != 1 || neg[y] != 8 {
		t.Errorf("unexpected negative part %v", neg)
	}
}

func TestAssetsDeltaSaturatingSub(t *testing.T) {
	x := testAsset(t, 1, "x")
	y := testAsset(t, 1, "y")
	need := AssetsDelta{x: 5, y: 3}
	rem := need.SaturatingSub(AssetsDelta{x: 9, y: 1})
	if _, ok := rem[x]; ok {
		t.Error("expected covered asset to drop out")
	}
	if rem[y] != 2 {
		t.Errorf("expected 2 remaining, got %d", rem[y])
	}
	if !(AssetsDelta{}).IsEmpty() || !(AssetsDelta{x: 0}).IsEmpty() {
		t.Error("expected empty delta to be balanced")
	}
}

func TestAssetsDeltaOverflow(t *testing.T) {
	x := testAsset(t, 1, "x")
	big := AssetsDelta{x: 1 << 62}
	if _, err := big.Add(AssetsDelta{x: 1 << 62}); err == nil {
		t.Error("expected overflow error")
	}
}

func TestToMintOmitsZero(t *testing.T) {
	x := testAsset(t, 1, "x")
	y := testAsset(t, 2, "y")
	if (AssetsDelta{x: 0}).ToMint() != nil {
		t.Error("expected nil mint for zero amounts")
	}
	mint := AssetsDelta{x: 0, y: -3}.ToMint()
	if mint == nil {
		t.Fatal("expected mint")
	}
	if len(mint.Policies()) != 1 {
		t.Errorf("expected 1 policy, got %d", len(mint.Policies()))
	}
	if qty := mint.Asset(testPolicy(2), []byte("y")); qty == nil || qty.Int64() != -3 {
		t.Errorf("expected -3, got %v", qty)
	}
}

func TestMultiAssetConversion(t *testing.T) {
	a := Assets{testAsset(t, 1, "x"): 42, testAsset(t, 2, ""): 7}
	back := AssetsFromMultiAsset(a.ToMultiAsset())
	if len(back) != 2 || back[testAsset(t, 1, "x")] != 42 || back[testAsset(t, 2, "")] != 7 {
		t.Errorf("unexpected conversion result %v", back)
	}
	if (Assets{}).ToMultiAsset() != nil {
		t.Error("expected nil multi-asset for empty assets")
	}
}
