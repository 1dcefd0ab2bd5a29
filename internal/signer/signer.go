// Package signer produces cryptographic authorizations for ledger calls
// and witness attestations for identity claims.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"rwa-vault-lab/internal/ledger"
)

// ErrDeclined is returned when the actor refuses to authorize the call.
// Never retried automatically.
var ErrDeclined = errors.New("authorization declined")

// Authorizer signs the exact simulated call, or declines. Waiting on it
// is bounded only by user responsiveness, so implementations must honor
// ctx cancellation.
type Authorizer interface {
	Authorize(ctx context.Context, call ledger.Call) (ledger.SignedCall, error)
}

// LocalSigner is an in-process ed25519 Authorizer holding one keypair.
type LocalSigner struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewLocalSigner creates a signer from a base58-encoded ed25519 private
// key seed.
func NewLocalSigner(seedB58 string) (*LocalSigner, error) {
	seed, err := base58.Decode(seedB58)
	if err != nil {
		return nil, fmt.Errorf("decode signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return &LocalSigner{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Compile-time interface check.
var _ Authorizer = (*LocalSigner)(nil)

// PublicKey returns the base58-encoded public key.
func (s *LocalSigner) PublicKey() string {
	return base58.Encode(s.pub)
}

// Authorize signs the canonical encoding of the call.
func (s *LocalSigner) Authorize(ctx context.Context, call ledger.Call) (ledger.SignedCall, error) {
	select {
	case <-ctx.Done():
		return ledger.SignedCall{}, ctx.Err()
	default:
	}

	digest, err := CanonicalCallDigest(call)
	if err != nil {
		return ledger.SignedCall{}, err
	}

	sig := ed25519.Sign(s.priv, digest)
	return ledger.SignedCall{
		Call:      call,
		Signature: base58.Encode(sig),
		PublicKey: base58.Encode(s.pub),
	}, nil
}

// CanonicalCallDigest hashes the JSON encoding of a call. The same call
// always produces the same digest, so a signature binds the exact
// simulated call, not a re-serialized variant.
func CanonicalCallDigest(call ledger.Call) ([]byte, error) {
	data, err := json.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}
	digest := sha256.Sum256(data)
	return digest[:], nil
}

// ValidatePublicKey checks that a base58 public key is a canonical
// ed25519 curve point.
func ValidatePublicKey(keyB58 string) error {
	key, err := base58.Decode(keyB58)
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	if _, err := new(edwards25519.Point).SetBytes(key); err != nil {
		return fmt.Errorf("public key is not a valid curve point: %w", err)
	}
	return nil
}
