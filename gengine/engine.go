// Package gengine contains an in-process reference processing engine.
//
// The engine stands in for the real transaction processing stage:
// it consumes packet batches from a [gqueue.Receiver],
// records their transactions into hash-chained entries,
// and reports each entry on its own output queue.
// It does not execute transactions or check signatures;
// the benchmark only relies on it to drain batches in order
// and to report every transaction exactly once.
package gengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/gqbench/gpacket"
	"github.com/gordian-engine/gqbench/gqueue"
	"github.com/gordian-engine/gqbench/gtx"
	"github.com/gordian-engine/gqbench/internal/glog"
	"golang.org/x/sync/errgroup"
)

// Stats tracks engine activity.
type Stats struct {
	BatchesProcessed uint64
	TxProcessed      uint64
	EntriesRecorded  uint64

	// PacketsDropped counts packets that failed to decode.
	PacketsDropped uint64

	// DuplicateBatches counts batches whose sequence number was already seen.
	DuplicateBatches uint64
}

type Engine struct {
	log *slog.Logger
	cfg Config

	in      *gqueue.Receiver[gpacket.Batch]
	out     *gqueue.Sender[WorkingEntry]
	entries *gqueue.Receiver[WorkingEntry]

	// Hash chain and batch tracking, guarded by mu.
	mu         sync.Mutex
	lastHash   gtx.Hash
	tickHeight uint64
	seen       *bitset.BitSet

	batches, txs, recorded, dropped, dups atomic.Uint64

	done chan struct{}
}

// New starts an engine consuming from in.
// The engine stops when in is closed and drained, or when ctx is canceled;
// after that, the entry queue is closed once its remaining entries are received.
func New(
	ctx context.Context,
	log *slog.Logger,
	cfg Config,
	start gtx.Hash,
	in *gqueue.Receiver[gpacket.Batch],
) (*Engine, error) {
	if in == nil {
		return nil, fmt.Errorf("input queue required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	out, entries := gqueue.New[WorkingEntry](cfg.Results)

	e := &Engine{
		log: log,
		cfg: cfg,

		in:      in,
		out:     out,
		entries: entries,

		lastHash: start,
		seen:     bitset.New(1024),

		done: make(chan struct{}),
	}

	go e.run(ctx)

	return e, nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	defer e.out.Close()

	eg, egCtx := errgroup.WithContext(ctx)
	for i := range e.cfg.Workers {
		eg.Go(func() error {
			return e.work(egCtx, e.log.With("worker", i))
		})
	}

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Warn("Engine stopped with error", "err", err)
		return
	}
	last := e.LastHash()
	e.log.Debug("Engine stopped", "stats", e.Stats(), "last_hash", glog.Hex(last[:]))
}

func (e *Engine) work(ctx context.Context, log *slog.Logger) error {
	for {
		b, err := e.in.Recv(ctx)
		if err != nil {
			if errors.Is(err, gqueue.ErrClosed) {
				return nil
			}
			return err
		}

		if err := e.processBatch(ctx, log, b); err != nil {
			return err
		}
	}
}

func (e *Engine) processBatch(ctx context.Context, log *slog.Logger, b gpacket.Batch) error {
	txs := make([]gtx.Transaction, 0, len(b.Packets))
	for i, p := range b.Packets {
		tx, err := p.Decode()
		if err != nil {
			e.dropped.Add(1)
			log.Debug("Dropping undecodable packet", "batch", b.Seq, "idx", i, "err", err)
			continue
		}
		txs = append(txs, tx)
	}

	// Record and send under the lock so entries leave in chain order.
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.seen.Test(uint(b.Seq)) {
		e.dups.Add(1)
		log.Warn("Batch delivered more than once", "seq", b.Seq, "id", b.ID)
	}
	e.seen.Set(uint(b.Seq))

	for len(txs) > 0 {
		n := min(len(txs), e.cfg.MaxEntryTxs)
		chunk := txs[:n:n]
		txs = txs[n:]

		hash := NextHash(e.lastHash, e.cfg.HashesPerTick, chunk)
		we := WorkingEntry{
			Slot:       e.tickHeight / e.cfg.TicksPerSlot,
			TickHeight: e.tickHeight,
			Entry: Entry{
				NumHashes:    e.cfg.HashesPerTick,
				Hash:         hash,
				Transactions: chunk,
			},
		}

		if err := e.out.Send(ctx, we); err != nil {
			if errors.Is(err, gqueue.ErrClosed) {
				// Keep draining input even when nobody reads entries.
				log.Debug("Entry receiver closed; discarding entry", "slot", we.Slot)
			} else {
				return fmt.Errorf("report entry: %w", err)
			}
		}

		e.lastHash = hash
		e.tickHeight++
		e.recorded.Add(1)
		e.txs.Add(uint64(n))
	}

	e.batches.Add(1)
	log.Debug(
		"Processed batch",
		"seq", b.Seq, "txs", len(b.Packets), "hash", glog.ShortHex(e.lastHash[:]),
	)
	return nil
}

// Entries returns the queue on which processed entries are reported.
func (e *Engine) Entries() *gqueue.Receiver[WorkingEntry] {
	return e.entries
}

// LastHash returns the hash of the most recently recorded entry.
func (e *Engine) LastHash() gtx.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastHash
}

func (e *Engine) Stats() Stats {
	return Stats{
		BatchesProcessed: e.batches.Load(),
		TxProcessed:      e.txs.Load(),
		EntriesRecorded:  e.recorded.Load(),
		PacketsDropped:   e.dropped.Load(),
		DuplicateBatches: e.dups.Load(),
	}
}

// Wait blocks until every worker has stopped.
func (e *Engine) Wait() {
	<-e.done
}
