package primitives

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/constants"
)

type CredentialKind uint8

const (
	KeyCredential CredentialKind = iota
	ScriptCredential
)

// Credential is a payment or stake credential: a key hash or a script hash.
type Credential struct {
	Kind CredentialKind
	Hash common.Blake2b224
}

func KeyHashCredential(h common.Blake2b224) Credential {
	return Credential{Kind: KeyCredential, Hash: h}
}

func ScriptHashCredential(h common.Blake2b224) Credential {
	return Credential{Kind: ScriptCredential, Hash: h}
}

func (c Credential) IsScript() bool {
	return c.Kind == ScriptCredential
}

func (c Credential) ToLedger() common.Credential {
	credType := uint(common.CredentialTypeAddrKeyHash)
	if c.IsScript() {
		credType = uint(common.CredentialTypeScriptHash)
	}
	return common.Credential{CredType: credType, Credential: c.Hash}
}

func (c Credential) String() string {
	if c.IsScript() {
		return "script:" + c.Hash.String()
	}
	return "key:" + c.Hash.String()
}

// PaymentCredential extracts the payment part of a Shelley-era address.
// Byron and reward addresses have none.
func PaymentCredential(addr common.Address) (Credential, bool) {
	raw, err := addr.Bytes()
	if err != nil || len(raw) < 1+common.Blake2b224Size {
		return Credential{}, false
	}
	addrType := raw[0] >> 4
	if addrType > 0x07 {
		return Credential{}, false
	}
	var h common.Blake2b224
	copy(h[:], raw[1:1+common.Blake2b224Size])
	if addrType&0x01 == 1 {
		return ScriptHashCredential(h), true
	}
	return KeyHashCredential(h), true
}

// IsScriptAddress reports whether the address is locked by a script.
func IsScriptAddress(addr common.Address) bool {
	cred, ok := PaymentCredential(addr)
	return ok && cred.IsScript()
}

// StakeCredential extracts the delegation part of a base address.
func StakeCredential(addr common.Address) (Credential, bool) {
	raw, err := addr.Bytes()
	if err != nil || len(raw) < 1+2*common.Blake2b224Size {
		return Credential{}, false
	}
	addrType := raw[0] >> 4
	if addrType > 0x03 {
		return Credential{}, false
	}
	var h common.Blake2b224
	copy(h[:], raw[1+common.Blake2b224Size:1+2*common.Blake2b224Size])
	if addrType&0x02 != 0 {
		return ScriptHashCredential(h), true
	}
	return KeyHashCredential(h), true
}

const RewardAccountSize = 1 + common.Blake2b224Size

const (
	rewardHeaderKey    byte = 0xE0
	rewardHeaderScript byte = 0xF0
)

// RewardAccount is the 29-byte stake address form: a header carrying the
// credential kind and network, then the credential hash.
type RewardAccount [RewardAccountSize]byte

func NewRewardAccount(network uint8, cred Credential) (RewardAccount, error) {
	if err := ValidateNetworkId(network); err != nil {
		return RewardAccount{}, err
	}
	var ra RewardAccount
	ra[0] = rewardHeaderKey
	if cred.IsScript() {
		ra[0] = rewardHeaderScript
	}
	ra[0] |= network
	copy(ra[1:], cred.Hash[:])
	return ra, nil
}

func RewardAccountFromKeyHash(network uint8, h common.Blake2b224) (RewardAccount, error) {
	return NewRewardAccount(network, KeyHashCredential(h))
}

func RewardAccountFromScriptHash(network uint8, h common.Blake2b224) (RewardAccount, error) {
	return NewRewardAccount(network, ScriptHashCredential(h))
}

// ParseRewardAccount rejects anything other than a 29-byte account whose
// header's top three bits are 111.
func ParseRewardAccount(raw []byte) (RewardAccount, error) {
	var ra RewardAccount
	if len(raw) != RewardAccountSize {
		return ra, fmt.Errorf("invalid reward account length %d", len(raw))
	}
	if raw[0]&0xE0 != 0xE0 {
		return ra, fmt.Errorf("invalid reward account header 0x%02x", raw[0])
	}
	copy(ra[:], raw)
	return ra, nil
}

// RewardAccountFromAddress accepts a stake address or the delegation part
// of a base address.
func RewardAccountFromAddress(addr common.Address) (RewardAccount, error) {
	raw, err := addr.Bytes()
	if err != nil {
		return RewardAccount{}, fmt.Errorf("failed to encode address: %w", err)
	}
	if len(raw) == RewardAccountSize {
		return ParseRewardAccount(raw)
	}
	cred, ok := StakeCredential(addr)
	if !ok {
		return RewardAccount{}, fmt.Errorf("address %s has no stake credential", addr.String())
	}
	return NewRewardAccount(raw[0]&0x0F, cred)
}

func (r RewardAccount) Network() uint8 {
	return r[0] & 0x0F
}

func (r RewardAccount) Credential() Credential {
	var h common.Blake2b224
	copy(h[:], r[1:])
	if r[0]&0x10 != 0 {
		return ScriptHashCredential(h)
	}
	return KeyHashCredential(h)
}

func (r RewardAccount) Bytes() []byte {
	return bytes.Clone(r[:])
}

func (r RewardAccount) Compare(other RewardAccount) int {
	return bytes.Compare(r[:], other[:])
}

func (r RewardAccount) Address() (common.Address, error) {
	return common.NewAddressFromBytes(r[:])
}

func (r RewardAccount) String() string {
	return hex.EncodeToString(r[:])
}

// ValidateNetworkId rejects ids that do not fit the address header nibble.
func ValidateNetworkId(id uint8) error {
	if id > constants.MaxNetworkId {
		return fmt.Errorf("%w: %d", ErrInvalidNetworkId, id)
	}
	return nil
}
