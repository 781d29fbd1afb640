package primitives

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"slices"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/constants"
)

// AssetId identifies a native asset by minting policy and asset name.
type AssetId struct {
	Policy common.Blake2b224
	Name   string
}

// NewAssetId validates the asset name length.
func NewAssetId(policy common.Blake2b224, name []byte) (AssetId, error) {
	if len(name) > constants.MaxAssetNameLength {
		return AssetId{}, fmt.Errorf("%w: %d bytes", ErrAssetNameTooLong, len(name))
	}
	return AssetId{Policy: policy, Name: string(name)}, nil
}

// ParseUnit parses the concatenated hex form "<policy><name>".
func ParseUnit(unit string) (AssetId, error) {
	if len(unit) < common.Blake2b224Size*2 {
		return AssetId{}, fmt.Errorf("invalid asset unit %q", unit)
	}
	policy, err := Hash224FromHex(unit[:common.Blake2b224Size*2])
	if err != nil {
		return AssetId{}, err
	}
	name, err := hex.DecodeString(unit[common.Blake2b224Size*2:])
	if err != nil {
		return AssetId{}, fmt.Errorf("invalid asset name in %q: %w", unit, err)
	}
	return NewAssetId(policy, name)
}

func (a AssetId) NameBytes() []byte {
	return []byte(a.Name)
}

// Unit returns the concatenated hex form used by indexers.
func (a AssetId) Unit() string {
	return hex.EncodeToString(a.Policy[:]) + hex.EncodeToString([]byte(a.Name))
}

func (a AssetId) String() string {
	return a.Unit()
}

func (a AssetId) Compare(other AssetId) int {
	if c := bytes.Compare(a.Policy[:], other.Policy[:]); c != 0 {
		return c
	}
	return bytes.Compare([]byte(a.Name), []byte(other.Name))
}

func (a AssetId) validate() error {
	if len(a.Name) > constants.MaxAssetNameLength {
		return fmt.Errorf("%w: %s", ErrAssetNameTooLong, a.Unit())
	}
	return nil
}

// Assets maps asset ids to non-negative amounts. Zero entries are pruned.
type Assets map[AssetId]uint64

func (a Assets) Clone() Assets {
	if a == nil {
		return nil
	}
	out := make(Assets, len(a))
	for k, v := range a {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

func (a Assets) IsEmpty() bool {
	for _, v := range a {
		if v != 0 {
			return false
		}
	}
	return true
}

// Keys returns the asset ids in deterministic order.
func (a Assets) Keys() []AssetId {
	keys := make([]AssetId, 0, len(a))
	for k, v := range a {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, AssetId.Compare)
	return keys
}

// Add returns the sum of a and other. Amounts saturate at the uint64 limit.
func (a Assets) Add(other Assets) Assets {
	out := a.Clone()
	if out == nil {
		out = make(Assets, len(other))
	}
	for k, v := range other {
		if v == 0 {
			continue
		}
		sum := out[k] + v
		if sum < v {
			sum = math.MaxUint64
		}
		out[k] = sum
	}
	return out
}

// Delta converts to a signed map, clamping amounts above the int64 range.
func (a Assets) Delta() AssetsDelta {
	out := make(AssetsDelta, len(a))
	for k, v := range a {
		if v == 0 {
			continue
		}
		if v > math.MaxInt64 {
			out[k] = math.MaxInt64
			continue
		}
		out[k] = int64(v)
	}
	return out
}

// Policies returns the distinct minting policies in byte order.
func (a Assets) Policies() []common.Blake2b224 {
	return policiesOf(a.Keys())
}

// ToMultiAsset converts to the ledger representation. Nil when empty.
func (a Assets) ToMultiAsset() *common.MultiAsset[common.MultiAssetTypeOutput] {
	if a.IsEmpty() {
		return nil
	}
	data := make(map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeOutput)
	for k, v := range a {
		if v == 0 {
			continue
		}
		if data[k.Policy] == nil {
			data[k.Policy] = make(map[cbor.ByteString]common.MultiAssetTypeOutput)
		}
		data[k.Policy][cbor.NewByteString([]byte(k.Name))] = new(big.Int).SetUint64(v)
	}
	result := common.NewMultiAsset[common.MultiAssetTypeOutput](data)
	return &result
}

// AssetsFromMultiAsset converts from the ledger representation, dropping
// non-positive and oversized quantities.
func AssetsFromMultiAsset(m *common.MultiAsset[common.MultiAssetTypeOutput]) Assets {
	out := make(Assets)
	if m == nil {
		return out
	}
	for _, policy := range m.Policies() {
		for _, name := range m.Assets(policy) {
			qty := m.Asset(policy, name)
			if qty == nil || qty.Sign() <= 0 || !qty.IsUint64() {
				continue
			}
			out[AssetId{Policy: policy, Name: string(name)}] = qty.Uint64()
		}
	}
	return out
}

// AssetsDelta maps asset ids to signed amounts. An empty delta is balanced.
type AssetsDelta map[AssetId]int64

func (d AssetsDelta) Clone() AssetsDelta {
	out := make(AssetsDelta, len(d))
	for k, v := range d {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

func (d AssetsDelta) IsEmpty() bool {
	for _, v := range d {
		if v != 0 {
			return false
		}
	}
	return true
}

func (d AssetsDelta) Keys() []AssetId {
	keys := make([]AssetId, 0, len(d))
	for k, v := range d {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, AssetId.Compare)
	return keys
}

// Add returns d + other, or an error when an entry leaves the int64 range.
func (d AssetsDelta) Add(other AssetsDelta) (AssetsDelta, error) {
	out := d.Clone()
	for k, v := range other {
		sum, ok := addInt64(out[k], v)
		if !ok {
			return nil, fmt.Errorf("asset %s amount overflows", k.Unit())
		}
		if sum == 0 {
			delete(out, k)
			continue
		}
		out[k] = sum
	}
	return out, nil
}

// Sub returns d - other, or an error when an entry leaves the int64 range.
func (d AssetsDelta) Sub(other AssetsDelta) (AssetsDelta, error) {
	neg := make(AssetsDelta, len(other))
	for k, v := range other {
		if v == math.MinInt64 {
			return nil, fmt.Errorf("asset %s amount overflows", k.Unit())
		}
		neg[k] = -v
	}
	return d.Add(neg)
}

// SaturatingSub subtracts other from d and clamps every entry at zero, so
// only the still-outstanding positive amounts remain.
func (d AssetsDelta) SaturatingSub(other AssetsDelta) AssetsDelta {
	out := make(AssetsDelta, len(d))
	for k, v := range d {
		if v <= 0 {
			continue
		}
		sub := other[k]
		var rem int64
		switch {
		case sub <= 0:
			rem = v
		case sub >= v:
			rem = 0
		default:
			rem = v - sub
		}
		if rem > 0 {
			out[k] = rem
		}
	}
	return out
}

// OnlyPositive keeps the strictly positive entries.
func (d AssetsDelta) OnlyPositive() Assets {
	out := make(Assets)
	for k, v := range d {
		if v > 0 {
			out[k] = uint64(v)
		}
	}
	return out
}

// OnlyNegative keeps the strictly negative entries as magnitudes.
func (d AssetsDelta) OnlyNegative() Assets {
	out := make(Assets)
	for k, v := range d {
		if v < 0 {
			out[k] = uint64(-(v + 1)) + 1
		}
	}
	return out
}

// Policies returns the policies with a non-zero entry, in byte order.
func (d AssetsDelta) Policies() []common.Blake2b224 {
	return policiesOf(d.Keys())
}

// ToMint converts to the body's mint field. Zero entries are not emitted,
// and nil is returned when nothing remains.
func (d AssetsDelta) ToMint() *common.MultiAsset[common.MultiAssetTypeMint] {
	if d.IsEmpty() {
		return nil
	}
	data := make(map[common.Blake2b224]map[cbor.ByteString]common.MultiAssetTypeMint)
	for k, v := range d {
		if v == 0 {
			continue
		}
		if data[k.Policy] == nil {
			data[k.Policy] = make(map[cbor.ByteString]common.MultiAssetTypeMint)
		}
		data[k.Policy][cbor.NewByteString([]byte(k.Name))] = big.NewInt(v)
	}
	result := common.NewMultiAsset[common.MultiAssetTypeMint](data)
	return &result
}

func policiesOf(keys []AssetId) []common.Blake2b224 {
	policies := make([]common.Blake2b224, 0, len(keys))
	for _, k := range keys {
		if len(policies) > 0 && policies[len(policies)-1] == k.Policy {
			continue
		}
		policies = append(policies, k.Policy)
	}
	return policies
}

func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
