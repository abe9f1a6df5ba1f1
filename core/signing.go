// signing.go provides the SignedTx signature-verification hook as a pluggable
// capability with an acceptable default permissive implementation. A real
// ed25519 + ripemd160 verifier is offered for deployments that want more than
// the placeholder, but nothing in this module requires full signature
// verification.
package core

import (
	"crypto/ed25519"
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // kept for parity with the wallet address scheme
)

// Verifier checks a SignedTx's signature against its transaction contents.
type Verifier interface {
	Verify(tx *SignedTx) bool
}

// PermissiveVerifier accepts every signature. It is the default used by
// Ledger.AddTransaction unless a stricter Verifier is supplied; AddBlock
// does not verify signatures.
type PermissiveVerifier struct{}

func (PermissiveVerifier) Verify(*SignedTx) bool { return true }

// Ed25519Verifier checks that Signature is a valid ed25519 signature over
// the transaction's canonical encoding, made by the public key embedded in
// Transaction.Meta's first 32 bytes (a minimal, non-mandatory wiring — the
// wire format does not otherwise carry a sender public key).
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(s *SignedTx) bool {
	if len(s.Signature) != ed25519.SignatureSize || len(s.Tx.Meta) < ed25519.PublicKeySize {
		return false
	}
	pub := ed25519.PublicKey(s.Tx.Meta[:ed25519.PublicKeySize])
	w := NewWriter()
	_ = s.Tx.EncodeTo(w)
	digest := sha256.Sum256(w.Bytes())
	return ed25519.Verify(pub, digest[:], s.Signature)
}

// WalletIDFromPubKey derives a deterministic wallet id from an ed25519
// public key via a SHA-256 -> RIPEMD-160 address scheme, folded into a
// uint64 to match the wallet id type.
func WalletIDFromPubKey(pub ed25519.PublicKey) uint64 {
	sha := sha256.Sum256(pub)
	rh := ripemd160.New()
	rh.Write(sha[:])
	digest := rh.Sum(nil)
	var id uint64
	for i := 0; i < 8; i++ {
		id = id<<8 | uint64(digest[i])
	}
	return id
}
