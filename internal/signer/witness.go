package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// Witness binds an identity claim to a ledger address with a third-party
// attestation signature. Pure function of its key and inputs; it holds
// no persisted state.
type Witness struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewWitness creates a witness from a base58-encoded ed25519 seed.
func NewWitness(seedB58 string) (*Witness, error) {
	seed, err := base58.Decode(seedB58)
	if err != nil {
		return nil, fmt.Errorf("decode witness seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("witness seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &Witness{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// PublicKey returns the base58-encoded witness public key.
func (w *Witness) PublicKey() string {
	return base58.Encode(w.pub)
}

// Attest signs the binding of (subject address, claim id) and returns
// the base58-encoded signature.
func (w *Witness) Attest(subject, claimID string) (string, error) {
	if subject == "" || claimID == "" {
		return "", fmt.Errorf("subject and claim id are required")
	}
	digest := bindingDigest(subject, claimID)
	return base58.Encode(ed25519.Sign(w.priv, digest)), nil
}

// VerifyAttestation checks a witness signature against the binding.
func VerifyAttestation(witnessKeyB58, subject, claimID, sigB58 string) error {
	key, err := base58.Decode(witnessKeyB58)
	if err != nil {
		return fmt.Errorf("decode witness key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("witness key must be %d bytes", ed25519.PublicKeySize)
	}
	sig, err := base58.Decode(sigB58)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(key), bindingDigest(subject, claimID), sig) {
		return fmt.Errorf("attestation signature does not verify")
	}
	return nil
}

// bindingDigest hashes the subject/claim binding. The separator keeps
// ("ab","c") and ("a","bc") distinct.
func bindingDigest(subject, claimID string) []byte {
	digest := sha256.Sum256([]byte(subject + "|" + claimID))
	return digest[:]
}
