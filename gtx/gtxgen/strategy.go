package gtxgen

import (
	"fmt"
	"io"

	"github.com/gordian-engine/gqbench/gcrypto"
)

// Strategy names a transaction synthesis strategy.
type Strategy string

const (
	StrategyTransfer Strategy = "transfer"
	StrategyProgram  Strategy = "program"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyTransfer, StrategyProgram:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q (want %q or %q)", s, StrategyTransfer, StrategyProgram)
	}
}

// Scheme names the signature scheme used for freshly generated identities.
// The zero value is SchemeEd25519.
type Scheme string

const (
	SchemeEd25519   Scheme = "ed25519"
	SchemeSecp256k1 Scheme = "secp256k1"
)

func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemeEd25519, SchemeSecp256k1:
		return Scheme(s), nil
	default:
		return "", fmt.Errorf("unknown signature scheme %q (want %q or %q)", s, SchemeEd25519, SchemeSecp256k1)
	}
}

// NewSigner derives a new signer of this scheme from r.
func (s Scheme) NewSigner(r io.Reader) (gcrypto.Signer, error) {
	switch s {
	case "", SchemeEd25519:
		return gcrypto.NewEd25519SignerFromReader(r)
	case SchemeSecp256k1:
		return gcrypto.NewSecp256k1SignerFromReader(r)
	default:
		return nil, fmt.Errorf("unknown signature scheme %q", string(s))
	}
}

func (s Scheme) String() string {
	if s == "" {
		return string(SchemeEd25519)
	}
	return string(s)
}
