// Package gtxgen synthesizes large sets of independent transactions
// for driving load into the ingestion queue.
//
// Two strategies are supported.
// [StrategyTransfer] clones a single signed transfer template,
// replacing both participants and the signature with random values;
// it is generated in parallel across a fixed worker pool.
// [StrategyProgram] creates a fresh signer per transaction
// and bundles several transfer instructions under one signature;
// it is generated sequentially.
//
// Every generated transaction has unique participant keys,
// so a downstream scheduler sees no account conflicts between them.
package gtxgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/gordian-engine/gqbench/gcrypto"
	"github.com/gordian-engine/gqbench/gtx"
	"github.com/gordian-engine/gqbench/internal/glog"
)

const (
	// DefaultProgramFanout is the number of transfer instructions
	// bundled into each program-style transaction.
	DefaultProgramFanout = 4

	// TransferAmount is the amount moved by every generated instruction.
	TransferAmount = 1

	signatureSize = 64
)

type Generator struct {
	Log *slog.Logger

	// Rand is the source of all randomness.
	// Defaults to crypto/rand.Reader.
	// A seeded deterministic reader yields reproducible output.
	Rand io.Reader

	// Workers bounds the parallel fan-out of transfer generation.
	// Defaults to runtime.GOMAXPROCS(0).
	Workers int

	// ProgramFanout defaults to DefaultProgramFanout.
	ProgramFanout int

	// Scheme selects the signer type for program-style transactions.
	Scheme Scheme
}

func (g *Generator) log() *slog.Logger {
	if g.Log == nil {
		return slog.Default()
	}
	return g.Log
}

func (g *Generator) rand() io.Reader {
	if g.Rand == nil {
		return rand.Reader
	}
	return g.Rand
}

func (g *Generator) workers() int {
	if g.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return g.Workers
}

func (g *Generator) fanout() int {
	if g.ProgramFanout <= 0 {
		return DefaultProgramFanout
	}
	return g.ProgramFanout
}

// Generate dispatches to the method for the given strategy.
// The funder is only used by StrategyTransfer.
func (g *Generator) Generate(
	ctx context.Context,
	s Strategy,
	n int,
	funder gcrypto.Signer,
	anchor gtx.Hash,
) ([]gtx.Transaction, error) {
	switch s {
	case StrategyTransfer:
		return g.Transfers(ctx, n, funder, anchor)
	case StrategyProgram:
		return g.Programs(ctx, n, anchor)
	default:
		return nil, fmt.Errorf("unknown strategy %q", s)
	}
}

// Programs returns n transactions, each signed by a fresh identity
// and carrying ProgramFanout transfers to fresh destinations.
//
// Programs panics if n is not positive.
func (g *Generator) Programs(ctx context.Context, n int, anchor gtx.Hash) ([]gtx.Transaction, error) {
	if n <= 0 {
		panic(fmt.Errorf("BUG: transaction count must be positive (got %d)", n))
	}

	fanout := g.fanout()
	if fanout+1 > gtx.MaxAccountKeys {
		return nil, fmt.Errorf("program fanout %d exceeds account key limit", fanout)
	}

	r := g.rand()

	ixs := make([]gtx.Instruction, fanout)
	for i := range ixs {
		ixs[i] = gtx.Instruction{From: 0, To: uint8(i + 1), Amount: TransferAmount}
	}

	out := make([]gtx.Transaction, n)
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		signer, err := g.Scheme.NewSigner(r)
		if err != nil {
			return nil, fmt.Errorf("new signer for transaction %d: %w", i, err)
		}

		dests := make([]gtx.AccountKey, fanout)
		for j := range dests {
			if _, err := io.ReadFull(r, dests[j][:]); err != nil {
				return nil, fmt.Errorf("read destination key: %w", err)
			}
		}

		out[i], err = gtx.NewTransaction(ctx, signer, dests, ixs, anchor)
		if err != nil {
			return nil, fmt.Errorf("build transaction %d: %w", i, err)
		}
	}

	g.log().Debug(
		"Generated program transactions",
		"n", n, "fanout", fanout, "scheme", g.Scheme, "anchor", glog.ShortHex(anchor[:]),
	)
	return out, nil
}
