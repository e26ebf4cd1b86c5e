package solanarpc

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidSeedLength is returned when a signer is constructed from a seed
// that is neither a 32-byte Ed25519 seed nor a 64-byte Solana keypair.
var ErrInvalidSeedLength = errors.New("solanarpc: seed must be 32 or 64 bytes")

// Signer produces the Ed25519 keypair and signatures a transaction needs.
// Implementations must be safe for concurrent use.
type Signer interface {
	// PublicKey returns the raw 32-byte Ed25519 public key.
	PublicKey() []byte
	// Sign returns the raw 64-byte Ed25519 signature over message.
	Sign(message []byte) []byte
}

// ed25519Signer wraps a stdlib Ed25519 private key. crypto/ed25519 is used
// directly rather than a third-party signing library: the corpus carries no
// dedicated Ed25519 package, and the standard library's implementation is
// the one every other Go Solana client in the wild also builds on.
type ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner builds a Signer from a 32-byte Ed25519 seed or a 64-byte Solana
// keypair (seed followed by public key, the format Solana CLI keypair files
// and base58-encoded secret keys use).
func NewSigner(seed []byte) (Signer, error) {
	switch len(seed) {
	case ed25519.SeedSize:
		priv := ed25519.NewKeyFromSeed(seed)

		return &ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
	case ed25519.PrivateKeySize:
		priv := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])

		return &ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
	default:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSeedLength, len(seed))
	}
}

// NewSignerFromBase58 decodes a base58-encoded seed or keypair and builds a Signer.
func NewSignerFromBase58(encoded string) (Signer, error) {
	decoded, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("solanarpc: decode signer key: %w", err)
	}

	return NewSigner(decoded)
}

func (s *ed25519Signer) PublicKey() []byte {
	out := make([]byte, len(s.pub))
	copy(out, s.pub)

	return out
}

func (s *ed25519Signer) Sign(message []byte) []byte {
	return ed25519.Sign(s.priv, message)
}
