package gcrypto

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
)

type Ed25519PubKey ed25519.PublicKey

func NewEd25519PubKey(b []byte) (PubKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d bytes for ed25519 public key, got %d", ed25519.PublicKeySize, len(b))
	}
	return Ed25519PubKey(bytes.Clone(b)), nil
}

// Address returns the raw public key,
// which is already exactly AddressSize bytes.
func (e Ed25519PubKey) Address() []byte {
	return []byte(e)
}

func (e Ed25519PubKey) PubKeyBytes() []byte {
	return []byte(e)
}

func (e Ed25519PubKey) Verify(msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(e), msg, sig)
}

func (e Ed25519PubKey) Equal(other PubKey) bool {
	o, ok := other.(Ed25519PubKey)
	if !ok {
		return false
	}

	return bytes.Equal(e, o)
}

type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  Ed25519PubKey
}

func NewEd25519Signer(priv ed25519.PrivateKey) Ed25519Signer {
	return Ed25519Signer{
		priv: priv,
		pub:  Ed25519PubKey(priv.Public().(ed25519.PublicKey)),
	}
}

// NewEd25519SignerFromReader reads a seed from r and derives a signer from it.
// Passing a seeded deterministic reader yields a deterministic signer.
func NewEd25519SignerFromReader(r io.Reader) (Ed25519Signer, error) {
	var seed [ed25519.SeedSize]byte
	if _, err := io.ReadFull(r, seed[:]); err != nil {
		return Ed25519Signer{}, fmt.Errorf("read ed25519 seed: %w", err)
	}
	return NewEd25519Signer(ed25519.NewKeyFromSeed(seed[:])), nil
}

func (s Ed25519Signer) PubKey() PubKey {
	return s.pub
}

func (s Ed25519Signer) Sign(_ context.Context, input []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, input), nil
}
