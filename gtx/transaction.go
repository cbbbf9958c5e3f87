// Package gtx contains the transaction model used by the benchmark harness.
//
// A [Transaction] names its participants by [AccountKey],
// anchors itself to a recent [Hash],
// and carries one or more transfer [Instruction] values
// signed by the key at index 0.
//
// Transactions here are intentionally minimal:
// the harness only needs them to be distinct, well-formed,
// and cheap to encode into packets.
package gtx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/gordian-engine/gqbench/gcrypto"
)

// Hash is a 32-byte digest, used as the recent validity anchor.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// GenesisHash derives a stable anchor hash from a chain ID.
func GenesisHash(chainID string) Hash {
	return sha256.Sum256([]byte("gqbench genesis:" + chainID))
}

// AccountKey identifies a transaction participant.
type AccountKey [gcrypto.AddressSize]byte

// AccountKeyFor returns the account key for pub.
func AccountKeyFor(pub gcrypto.PubKey) AccountKey {
	var k AccountKey
	copy(k[:], pub.Address())
	return k
}

func (k AccountKey) String() string {
	return hex.EncodeToString(k[:])
}

// Instruction moves Amount from the account at index From
// to the account at index To within the transaction's AccountKeys.
type Instruction struct {
	From, To uint8
	Amount   uint64
}

type Transaction struct {
	Signatures [][]byte

	// AccountKeys[0] is the fee payer and sole required signer.
	AccountKeys []AccountKey

	RecentHash Hash

	Instructions []Instruction
}

// NewTransfer returns a single-instruction transaction
// moving amount from the signer's account to to.
func NewTransfer(
	ctx context.Context,
	from gcrypto.Signer,
	to AccountKey,
	amount uint64,
	anchor Hash,
) (Transaction, error) {
	return NewTransaction(ctx, from, []AccountKey{to}, []Instruction{
		{From: 0, To: 1, Amount: amount},
	}, anchor)
}

// NewTransaction builds and signs a transaction.
// The signer's account key is prepended to others,
// so instruction indices must account for it being at index 0.
func NewTransaction(
	ctx context.Context,
	signer gcrypto.Signer,
	others []AccountKey,
	instructions []Instruction,
	anchor Hash,
) (Transaction, error) {
	if len(others)+1 > MaxAccountKeys {
		return Transaction{}, fmt.Errorf(
			"too many account keys: %d (max %d)", len(others)+1, MaxAccountKeys,
		)
	}

	keys := make([]AccountKey, 0, len(others)+1)
	keys = append(keys, AccountKeyFor(signer.PubKey()))
	keys = append(keys, others...)

	tx := Transaction{
		AccountKeys:  keys,
		RecentHash:   anchor,
		Instructions: slices.Clone(instructions),
	}
	if err := tx.validateIndices(); err != nil {
		return Transaction{}, err
	}

	sig, err := signer.Sign(ctx, tx.Message())
	if err != nil {
		return Transaction{}, fmt.Errorf("sign transaction: %w", err)
	}
	tx.Signatures = [][]byte{sig}

	return tx, nil
}

func (tx Transaction) validateIndices() error {
	for i, ix := range tx.Instructions {
		if int(ix.From) >= len(tx.AccountKeys) || int(ix.To) >= len(tx.AccountKeys) {
			return fmt.Errorf(
				"instruction %d references account out of range (from=%d to=%d keys=%d)",
				i, ix.From, ix.To, len(tx.AccountKeys),
			)
		}
	}
	return nil
}

// ID returns the first signature, which uniquely identifies the transaction.
// A transaction without signatures has a nil ID.
func (tx Transaction) ID() []byte {
	if len(tx.Signatures) == 0 {
		return nil
	}
	return tx.Signatures[0]
}

// Clone returns a deep copy of tx.
func (tx Transaction) Clone() Transaction {
	out := Transaction{
		Signatures:   make([][]byte, len(tx.Signatures)),
		AccountKeys:  slices.Clone(tx.AccountKeys),
		RecentHash:   tx.RecentHash,
		Instructions: slices.Clone(tx.Instructions),
	}
	for i, s := range tx.Signatures {
		out.Signatures[i] = bytes.Clone(s)
	}
	return out
}

// VerifySignature reports whether the first signature
// is valid for pub over the transaction message,
// and whether pub owns the fee payer account.
func (tx Transaction) VerifySignature(pub gcrypto.PubKey) bool {
	if len(tx.Signatures) == 0 || len(tx.AccountKeys) == 0 {
		return false
	}
	if AccountKeyFor(pub) != tx.AccountKeys[0] {
		return false
	}
	return pub.Verify(tx.Message(), tx.Signatures[0])
}
