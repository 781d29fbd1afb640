package primitives

import (
	"fmt"
	"math"

	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// Certificate is one of StakeRegistration, StakeDeregistration or
// StakeDelegation.
type Certificate interface {
	StakeCredential() Credential
	// Deposit is the amount locked by the certificate, if any.
	Deposit() uint64
	// Refund is the amount released by the certificate, if any.
	Refund() uint64
	// RequiresWitness reports whether the credential must authorise it.
	RequiresWitness() bool
	ToLedger() (common.CertificateWrapper, error)
	isCertificate()
}

// StakeRegistration registers a stake credential. A nil deposit is filled
// from the protocol parameters before serialisation.
type StakeRegistration struct {
	Credential    Credential
	DepositAmount *uint64
}

// StakeDeregistration releases a stake credential and its deposit.
type StakeDeregistration struct {
	Credential    Credential
	DepositAmount *uint64
}

// StakeDelegation delegates a stake credential to a pool.
type StakeDelegation struct {
	Credential Credential
	Pool       common.Blake2b224
}

func (StakeRegistration) isCertificate()   {}
func (StakeDeregistration) isCertificate() {}
func (StakeDelegation) isCertificate()     {}

func (c StakeRegistration) StakeCredential() Credential   { return c.Credential }
func (c StakeDeregistration) StakeCredential() Credential { return c.Credential }
func (c StakeDelegation) StakeCredential() Credential     { return c.Credential }

func (c StakeRegistration) Deposit() uint64 {
	if c.DepositAmount == nil {
		return 0
	}
	return *c.DepositAmount
}

func (StakeRegistration) Refund() uint64 { return 0 }

func (StakeDeregistration) Deposit() uint64 { return 0 }

func (c StakeDeregistration) Refund() uint64 {
	if c.DepositAmount == nil {
		return 0
	}
	return *c.DepositAmount
}

func (StakeDelegation) Deposit() uint64 { return 0 }
func (StakeDelegation) Refund() uint64  { return 0 }

// Registration with an explicit deposit uses the Conway form, which must
// be witnessed; the legacy form without a deposit does not.
func (c StakeRegistration) RequiresWitness() bool { return c.DepositAmount != nil }
func (StakeDeregistration) RequiresWitness() bool { return true }
func (StakeDelegation) RequiresWitness() bool     { return true }

func (c StakeRegistration) ToLedger() (common.CertificateWrapper, error) {
	if c.DepositAmount == nil {
		cert := common.StakeRegistrationCertificate{
			CertType:        uint(common.CertificateTypeStakeRegistration),
			StakeCredential: c.Credential.ToLedger(),
		}
		return common.CertificateWrapper{Type: uint(common.CertificateTypeStakeRegistration), Certificate: &cert}, nil
	}
	amount, err := depositToLedger(*c.DepositAmount)
	if err != nil {
		return common.CertificateWrapper{}, err
	}
	cert := common.RegistrationCertificate{
		CertType:        uint(common.CertificateTypeRegistration),
		StakeCredential: c.Credential.ToLedger(),
		Amount:          amount,
	}
	return common.CertificateWrapper{Type: uint(common.CertificateTypeRegistration), Certificate: &cert}, nil
}

func (c StakeDeregistration) ToLedger() (common.CertificateWrapper, error) {
	if c.DepositAmount == nil {
		cert := common.StakeDeregistrationCertificate{
			CertType:        uint(common.CertificateTypeStakeDeregistration),
			StakeCredential: c.Credential.ToLedger(),
		}
		return common.CertificateWrapper{Type: uint(common.CertificateTypeStakeDeregistration), Certificate: &cert}, nil
	}
	amount, err := depositToLedger(*c.DepositAmount)
	if err != nil {
		return common.CertificateWrapper{}, err
	}
	cert := common.DeregistrationCertificate{
		CertType:        uint(common.CertificateTypeDeregistration),
		StakeCredential: c.Credential.ToLedger(),
		Amount:          amount,
	}
	return common.CertificateWrapper{Type: uint(common.CertificateTypeDeregistration), Certificate: &cert}, nil
}

func (c StakeDelegation) ToLedger() (common.CertificateWrapper, error) {
	cred := c.Credential.ToLedger()
	cert := common.StakeDelegationCertificate{
		CertType:        uint(common.CertificateTypeStakeDelegation),
		StakeCredential: &cred,
		PoolKeyHash:     c.Pool,
	}
	return common.CertificateWrapper{Type: uint(common.CertificateTypeStakeDelegation), Certificate: &cert}, nil
}

// WithDeposit returns the certificate with an unset deposit filled in.
func WithDeposit(c Certificate, deposit uint64) Certificate {
	switch cert := c.(type) {
	case StakeRegistration:
		if cert.DepositAmount == nil {
			cert.DepositAmount = &deposit
		}
		return cert
	case StakeDeregistration:
		if cert.DepositAmount == nil {
			cert.DepositAmount = &deposit
		}
		return cert
	default:
		return c
	}
}

// NeedsDeposit reports whether a certificate still has an unset deposit.
func NeedsDeposit(c Certificate) bool {
	switch cert := c.(type) {
	case StakeRegistration:
		return cert.DepositAmount == nil
	case StakeDeregistration:
		return cert.DepositAmount == nil
	default:
		return false
	}
}

func depositToLedger(amount uint64) (int64, error) {
	if amount > math.MaxInt64 {
		return 0, fmt.Errorf("deposit %d out of range", amount)
	}
	return int64(amount), nil
}
