package domain

// IdentityVerification records an asset owner's approval state.
// Corresponds to the identity_verifications table, unique on tx_hash.
// WitnessSignature binds (subject address, claim id) and is produced by
// the witness signer, not by the subject.
type IdentityVerification struct {
	VerificationID   string // PRIMARY KEY, uuid
	Subject          string // ledger address being verified
	ClaimID          string // external identity-proof claim id
	WitnessSignature string // base58-encoded witness signature
	Verified         bool
	TxHash           string
	CreatedAt        int64 // unix ms
}
