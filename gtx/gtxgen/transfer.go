package gtxgen

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/gordian-engine/gqbench/gcrypto"
	"github.com/gordian-engine/gqbench/gtx"
	"github.com/gordian-engine/gqbench/internal/glog"
	"golang.org/x/sync/errgroup"
)

// Transfers returns n transfer transactions derived from a template
// signed by funder.
// Each output has both account keys and the signature replaced with random bytes,
// so signatures are not valid; the transactions are only meant
// to be distinct and correctly shaped.
//
// Work is split into contiguous index ranges across a fixed pool of Workers.
// Each index draws from its own stream derived from one master seed,
// so a seeded Rand produces the same output regardless of scheduling.
//
// Transfers panics if n is not positive.
func (g *Generator) Transfers(
	ctx context.Context,
	n int,
	funder gcrypto.Signer,
	anchor gtx.Hash,
) ([]gtx.Transaction, error) {
	if n <= 0 {
		panic(fmt.Errorf("BUG: transaction count must be positive (got %d)", n))
	}
	if funder == nil {
		panic(fmt.Errorf("BUG: transfer generation requires a funder"))
	}

	r := g.rand()

	var to gtx.AccountKey
	if _, err := io.ReadFull(r, to[:]); err != nil {
		return nil, fmt.Errorf("read template destination: %w", err)
	}
	template, err := gtx.NewTransfer(ctx, funder, to, TransferAmount, anchor)
	if err != nil {
		return nil, fmt.Errorf("build template transfer: %w", err)
	}

	var master [32]byte
	if _, err := io.ReadFull(r, master[:]); err != nil {
		return nil, fmt.Errorf("read master seed: %w", err)
	}

	out := make([]gtx.Transaction, n)

	workers := min(g.workers(), n)
	chunk := (n + workers - 1) / workers

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		eg.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%1024 == 0 {
					if err := egCtx.Err(); err != nil {
						return err
					}
				}
				out[i] = fillTransfer(template, indexStream(master, i))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.log().Debug(
		"Generated transfer transactions",
		"n", n, "workers", workers, "anchor", glog.ShortHex(anchor[:]),
	)
	return out, nil
}

// fillTransfer clones the template with fresh keys and signature from r.
func fillTransfer(template gtx.Transaction, r *rand.ChaCha8) gtx.Transaction {
	tx := template.Clone()
	_, _ = r.Read(tx.AccountKeys[0][:])
	_, _ = r.Read(tx.AccountKeys[1][:])

	sig := make([]byte, signatureSize)
	_, _ = r.Read(sig)
	tx.Signatures = [][]byte{sig}
	return tx
}

// indexStream derives an independent random stream for index i.
func indexStream(master [32]byte, i int) *rand.ChaCha8 {
	var buf [40]byte
	copy(buf[:32], master[:])
	binary.LittleEndian.PutUint64(buf[32:], uint64(i))
	return rand.NewChaCha8(sha256.Sum256(buf[:]))
}
