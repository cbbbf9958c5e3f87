package gcrypto

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
)

type Secp256k1PubKey ecdsa.PublicKey

func NewSecp256k1PubKey(b []byte) (PubKey, error) {
	pubKey, err := crypto.UnmarshalPubkey(b)
	if err != nil {
		return nil, err
	}
	return Secp256k1PubKey(*pubKey), nil
}

// Address returns the Keccak-256 hash of the uncompressed key
// (without the 0x04 prefix), so that it is AddressSize bytes
// like every other key type.
func (e Secp256k1PubKey) Address() []byte {
	return crypto.Keccak256(e.PubKeyBytes()[1:])
}

func (e Secp256k1PubKey) PubKeyBytes() []byte {
	return crypto.FromECDSAPub((*ecdsa.PublicKey)(&e))
}

// Verify checks a 65-byte recoverable signature
// over the Keccak-256 hash of msg.
func (e Secp256k1PubKey) Verify(msg, sig []byte) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}
	return crypto.VerifySignature(e.PubKeyBytes(), crypto.Keccak256(msg), sig[:len(sig)-1])
}

func (e Secp256k1PubKey) Equal(other PubKey) bool {
	o, ok := other.(Secp256k1PubKey)
	if !ok {
		return false
	}

	return bytes.Equal(e.PubKeyBytes(), o.PubKeyBytes())
}

type Secp256k1Signer struct {
	priv *ecdsa.PrivateKey
	pub  Secp256k1PubKey
}

func NewSecp256k1Signer(priv *ecdsa.PrivateKey) Secp256k1Signer {
	return Secp256k1Signer{
		priv: priv,
		pub:  Secp256k1PubKey(priv.PublicKey),
	}
}

// NewSecp256k1SignerFromReader reads candidate scalars from r
// until one is a valid secp256k1 private key.
func NewSecp256k1SignerFromReader(r io.Reader) (Secp256k1Signer, error) {
	var b [32]byte
	// Almost every 32-byte value is a valid scalar;
	// the bound only guards against a broken reader.
	for range 16 {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Secp256k1Signer{}, fmt.Errorf("read secp256k1 key: %w", err)
		}
		priv, err := crypto.ToECDSA(b[:])
		if err == nil {
			return NewSecp256k1Signer(priv), nil
		}
	}
	return Secp256k1Signer{}, fmt.Errorf("failed to derive secp256k1 key from reader")
}

func (s Secp256k1Signer) PubKey() PubKey {
	return s.pub
}

func (s Secp256k1Signer) Sign(_ context.Context, input []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(input), s.priv)
}
