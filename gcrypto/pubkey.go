package gcrypto

import "context"

// PubKey is the public half of a signing identity.
type PubKey interface {
	// Address returns the 32-byte account identifier derived from the key.
	Address() []byte

	PubKeyBytes() []byte

	Equal(other PubKey) bool

	Verify(msg, sig []byte) bool
}

// Signer produces signatures over arbitrary input.
type Signer interface {
	PubKey() PubKey

	Sign(ctx context.Context, input []byte) ([]byte, error)
}

// AddressSize is the length of the value returned by [PubKey.Address].
const AddressSize = 32
