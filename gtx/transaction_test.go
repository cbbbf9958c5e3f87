package gtx_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/gqbench/gcrypto/gcryptotest"
	"github.com/gordian-engine/gqbench/gtx"
	"github.com/stretchr/testify/require"
)

func TestNewTransfer(t *testing.T) {
	t.Parallel()

	signers := gcryptotest.DeterministicEd25519Signers(2)
	to := gtx.AccountKeyFor(signers[1].PubKey())
	anchor := gtx.GenesisHash("test")

	tx, err := gtx.NewTransfer(context.Background(), signers[0], to, 1, anchor)
	require.NoError(t, err)

	require.Len(t, tx.AccountKeys, 2)
	require.Equal(t, gtx.AccountKeyFor(signers[0].PubKey()), tx.AccountKeys[0])
	require.Equal(t, to, tx.AccountKeys[1])
	require.Equal(t, anchor, tx.RecentHash)
	require.Equal(t, []gtx.Instruction{{From: 0, To: 1, Amount: 1}}, tx.Instructions)
	require.Len(t, tx.Signatures, 1)

	require.True(t, tx.VerifySignature(signers[0].PubKey()))
	require.False(t, tx.VerifySignature(signers[1].PubKey()))

	// Changing the anchor invalidates the signature.
	tampered := tx.Clone()
	tampered.RecentHash = gtx.GenesisHash("other")
	require.False(t, tampered.VerifySignature(signers[0].PubKey()))
}

func TestNewTransaction_badIndex(t *testing.T) {
	t.Parallel()

	s := gcryptotest.DeterministicEd25519Signers(1)[0]
	_, err := gtx.NewTransaction(
		context.Background(), s, nil,
		[]gtx.Instruction{{From: 0, To: 1, Amount: 1}},
		gtx.Hash{},
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of range")
}

func TestTransaction_Clone(t *testing.T) {
	t.Parallel()

	s := gcryptotest.DeterministicEd25519Signers(1)[0]
	tx, err := gtx.NewTransfer(context.Background(), s, gtx.AccountKey{1}, 5, gtx.Hash{2})
	require.NoError(t, err)

	c := tx.Clone()
	require.Equal(t, tx, c)

	c.Signatures[0][0]++
	c.AccountKeys[1][0]++
	c.Instructions[0].Amount++
	require.NotEqual(t, tx.Signatures[0][0], c.Signatures[0][0])
	require.NotEqual(t, tx.AccountKeys[1], c.AccountKeys[1])
	require.Equal(t, uint64(5), tx.Instructions[0].Amount)
}

func TestTransaction_BinaryRoundTrip(t *testing.T) {
	t.Parallel()

	s := gcryptotest.DeterministicEd25519Signers(1)[0]
	tx, err := gtx.NewTransaction(
		context.Background(), s,
		[]gtx.AccountKey{{1}, {2}, {3}},
		[]gtx.Instruction{
			{From: 0, To: 1, Amount: 1},
			{From: 0, To: 2, Amount: 2},
			{From: 0, To: 3, Amount: 1 << 40},
		},
		gtx.GenesisHash("rt"),
	)
	require.NoError(t, err)

	b, err := tx.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, tx.EncodedSize())

	var got gtx.Transaction
	require.NoError(t, got.UnmarshalBinary(b))
	require.Equal(t, tx, got)
	require.True(t, got.VerifySignature(s.PubKey()))
}

func TestTransaction_UnmarshalBinary_errors(t *testing.T) {
	t.Parallel()

	s := gcryptotest.DeterministicEd25519Signers(1)[0]
	tx, err := gtx.NewTransfer(context.Background(), s, gtx.AccountKey{1}, 1, gtx.Hash{})
	require.NoError(t, err)
	b, err := tx.MarshalBinary()
	require.NoError(t, err)

	t.Run("truncated", func(t *testing.T) {
		var got gtx.Transaction
		err := got.UnmarshalBinary(b[:len(b)-1])
		require.ErrorIs(t, err, gtx.ErrShortBuffer)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		var got gtx.Transaction
		err := got.UnmarshalBinary(append(b, 0))
		require.Error(t, err)
		require.Contains(t, err.Error(), "trailing")
	})

	t.Run("bad version", func(t *testing.T) {
		bad := append([]byte(nil), b...)
		// One signature count byte, one length byte, then the signature.
		bad[2+len(tx.Signatures[0])] = 99
		var got gtx.Transaction
		err := got.UnmarshalBinary(bad)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported message version")
	})
}
