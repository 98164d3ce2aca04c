package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Keyring derives purpose-scoped Ed25519 signing keys from a single root
// secret, so separate signers never share a raw key. The lineage ledger's
// own record signature is a keyless content hash and does not use a
// Keyring; escalation resolutions are countersigned with one.
type Keyring struct {
	rootSeed []byte
}

// NewKeyring generates a fresh random root seed.
func NewKeyring() (*Keyring, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, fmt.Errorf("ledger: generate root seed: %w", err)
	}
	return &Keyring{rootSeed: seed}, nil
}

// NewKeyringFromSeed builds a Keyring from an operator-supplied root seed
// (e.g. loaded from a secret store), for deterministic deployments.
func NewKeyringFromSeed(seed []byte) *Keyring {
	return &Keyring{rootSeed: seed}
}

// DeriveForPurpose derives a deterministic Ed25519 keypair scoped to
// purpose (e.g. "lineage-signing"), via HKDF-SHA256 over the root seed.
func (k *Keyring) DeriveForPurpose(purpose string) (ed25519.PrivateKey, error) {
	hkdfReader := hkdf.New(sha256.New, k.rootSeed, []byte("gap-kernel-ledger-kdf"), []byte(purpose))
	derivedSeed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdfReader, derivedSeed); err != nil {
		return nil, fmt.Errorf("ledger: hkdf derivation for %q: %w", purpose, err)
	}
	return ed25519.NewKeyFromSeed(derivedSeed), nil
}

// PurposeEscalationResolution scopes the keypair used to countersign a human
// escalation resolution, so the lineage ledger's own content-hash signature
// (I2) and this keyed, non-repudiable attestation never share key material.
const PurposeEscalationResolution = "escalation-resolution"

// Sign derives the purpose-scoped keypair and signs msg with it.
func (k *Keyring) Sign(purpose string, msg []byte) ([]byte, error) {
	priv, err := k.DeriveForPurpose(purpose)
	if err != nil {
		return nil, err
	}
	return ed25519.Sign(priv, msg), nil
}

// Verify re-derives the purpose-scoped keypair and checks sig over msg. A
// Keyring built from the same root seed (e.g. re-loaded from the operator's
// secret store) always re-derives the same keypair, so no public key needs
// to be stored alongside the signature.
func (k *Keyring) Verify(purpose string, msg, sig []byte) (bool, error) {
	priv, err := k.DeriveForPurpose(purpose)
	if err != nil {
		return false, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return ed25519.Verify(pub, msg, sig), nil
}
