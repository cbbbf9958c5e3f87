// Package gcryptotest contains deterministic key fixtures for tests.
package gcryptotest

import (
	"crypto/ed25519"
	"encoding/binary"
	"sync"

	"github.com/gordian-engine/gqbench/gcrypto"
)

var (
	ed25519Mu      sync.Mutex
	ed25519Signers []gcrypto.Ed25519Signer
)

// DeterministicEd25519Signers returns n ed25519 signers
// whose keys are derived from their index.
//
// Generated signers are cached,
// so repeated calls across tests cost effectively nothing.
func DeterministicEd25519Signers(n int) []gcrypto.Ed25519Signer {
	ed25519Mu.Lock()
	defer ed25519Mu.Unlock()

	for i := len(ed25519Signers); i < n; i++ {
		var seed [ed25519.SeedSize]byte
		copy(seed[:], "gqbench deterministic ed25519   ")
		binary.BigEndian.PutUint64(seed[ed25519.SeedSize-8:], uint64(i))
		ed25519Signers = append(ed25519Signers, gcrypto.NewEd25519Signer(ed25519.NewKeyFromSeed(seed[:])))
	}

	out := make([]gcrypto.Ed25519Signer, n)
	copy(out, ed25519Signers[:n])
	return out
}
