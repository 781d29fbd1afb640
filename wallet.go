package hose

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/blinklabs-io/bursa"
	"github.com/blinklabs-io/bursa/bip32"
	"github.com/blinklabs-io/gouroboros/ledger/common"

	"github.com/Liqwid-Labs/hose-sub000/primitives"
)

// Signer produces vkey witnesses for a transaction body hash.
type Signer interface {
	Address() common.Address
	SignTxBody(txBodyHash common.Blake2b256) (common.VkeyWitness, error)
	PubKeyHash() common.Blake2b224
	// StakePubKeyHash is zero when the wallet has no stake key.
	StakePubKeyHash() common.Blake2b224
}

type signingKey interface {
	publicKey() []byte
	sign(msg []byte) []byte
}

type extendedKey bip32.XPrv

func (k extendedKey) publicKey() []byte      { return bip32.XPrv(k).Public().PublicKey() }
func (k extendedKey) sign(msg []byte) []byte { return bip32.XPrv(k).Sign(msg) }

type plainKey ed25519.PrivateKey

func (k plainKey) publicKey() []byte {
	return []byte(ed25519.PrivateKey(k).Public().(ed25519.PublicKey))
}
func (k plainKey) sign(msg []byte) []byte { return ed25519.Sign(ed25519.PrivateKey(k), msg) }

// keyWallet signs with one payment key. stake is nil for enterprise
// addresses.
type keyWallet struct {
	kind    string
	address common.Address
	payment signingKey
	stake   signingKey
}

func (w *keyWallet) Address() common.Address {
	return w.address
}

func (w *keyWallet) SignTxBody(txBodyHash common.Blake2b256) (common.VkeyWitness, error) {
	return common.VkeyWitness{
		Vkey:      w.payment.publicKey(),
		Signature: w.payment.sign(txBodyHash.Bytes()),
	}, nil
}

func (w *keyWallet) PubKeyHash() common.Blake2b224 {
	return common.Blake2b224Hash(w.payment.publicKey())
}

func (w *keyWallet) StakePubKeyHash() common.Blake2b224 {
	if w.stake == nil {
		return common.Blake2b224{}
	}
	return common.Blake2b224Hash(w.stake.publicKey())
}

// String never includes key material.
func (w *keyWallet) String() string {
	return fmt.Sprintf("%s{address: %s}", w.kind, w.address.String())
}

func (w *keyWallet) GoString() string {
	return w.String()
}

// keyAddress builds the enterprise address of payment, or the base address
// when a stake key is present.
func keyAddress(network uint8, payment, stake signingKey) (common.Address, error) {
	if err := primitives.ValidateNetworkId(network); err != nil {
		return common.Address{}, err
	}
	pkh := common.Blake2b224Hash(payment.publicKey())
	raw := make([]byte, 0, 57)
	if stake == nil {
		raw = append(raw, 0x60|network)
		raw = append(raw, pkh.Bytes()...)
	} else {
		skh := common.Blake2b224Hash(stake.publicKey())
		raw = append(raw, network)
		raw = append(raw, pkh.Bytes()...)
		raw = append(raw, skh.Bytes()...)
	}
	addr, err := common.NewAddressFromBytes(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to build address: %w", err)
	}
	return addr, nil
}

// BursaWallet derives the first payment and stake keys of account 0 from a
// BIP39 mnemonic.
type BursaWallet struct {
	keyWallet
	mnemonic string
}

func NewBursaWallet(network uint8, mnemonic string) (*BursaWallet, error) {
	return NewBursaWalletWithPassphrase(network, mnemonic, "")
}

func NewBursaWalletWithPassphrase(network uint8, mnemonic, passphrase string) (*BursaWallet, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	root, err := bursa.GetRootKeyFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to derive root key: %w", err)
	}
	account, err := bursa.GetAccountKey(root, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account key: %w", err)
	}
	payment, err := bursa.GetPaymentKey(account, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive payment key: %w", err)
	}
	stake, err := bursa.GetStakeKey(account, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to derive stake key: %w", err)
	}
	addr, err := keyAddress(network, extendedKey(payment), extendedKey(stake))
	if err != nil {
		return nil, err
	}
	return &BursaWallet{
		keyWallet: keyWallet{
			kind:    "BursaWallet",
			address: addr,
			payment: extendedKey(payment),
			stake:   extendedKey(stake),
		},
		mnemonic: mnemonic,
	}, nil
}

// NewBursaWalletGenerate creates a wallet from a fresh mnemonic.
func NewBursaWalletGenerate(network uint8) (*BursaWallet, error) {
	mnemonic, err := bursa.GenerateMnemonic()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mnemonic: %w", err)
	}
	return NewBursaWallet(network, mnemonic)
}

func (w *BursaWallet) Mnemonic() string {
	return w.mnemonic
}

// KeyPairWallet signs with an extended key for a caller-supplied address.
type KeyPairWallet struct {
	keyWallet
}

func NewKeyPairWallet(addr common.Address, key bip32.XPrv) *KeyPairWallet {
	return &KeyPairWallet{keyWallet{
		kind:    "KeyPairWallet",
		address: addr,
		payment: extendedKey(key),
	}}
}

// Ed25519Wallet signs with a raw ed25519 key, as read from PRIVATE_KEY_HEX.
type Ed25519Wallet struct {
	keyWallet
}

// NewEd25519WalletFromHex accepts a 32-byte seed or a 64-byte private key.
// The address is the enterprise address of the key on network.
func NewEd25519WalletFromHex(network uint8, keyHex string) (*Ed25519Wallet, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	var key plainKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = plainKey(ed25519.NewKeyFromSeed(raw))
	case ed25519.PrivateKeySize:
		key = plainKey(raw)
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
	addr, err := keyAddress(network, key, nil)
	if err != nil {
		return nil, err
	}
	return &Ed25519Wallet{keyWallet{
		kind:    "Ed25519Wallet",
		address: addr,
		payment: key,
	}}, nil
}

// ErrWatchOnly is returned when a watch-only wallet is asked to sign.
var ErrWatchOnly = errors.New("watch-only wallet cannot sign transactions")

// ExternalWallet knows an address but holds no keys.
type ExternalWallet struct {
	address common.Address
}

func NewExternalWallet(addr common.Address) *ExternalWallet {
	return &ExternalWallet{address: addr}
}

func (w *ExternalWallet) Address() common.Address {
	return w.address
}

func (w *ExternalWallet) SignTxBody(_ common.Blake2b256) (common.VkeyWitness, error) {
	return common.VkeyWitness{}, ErrWatchOnly
}

func (w *ExternalWallet) PubKeyHash() common.Blake2b224 {
	return w.address.PaymentKeyHash()
}

func (w *ExternalWallet) StakePubKeyHash() common.Blake2b224 {
	return w.address.StakeKeyHash()
}
