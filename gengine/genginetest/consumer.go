// Package genginetest contains stand-in consumers for the processing engine,
// with controllable reporting behavior for exercising the completion verifier.
package genginetest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gordian-engine/gqbench/gengine"
	"github.com/gordian-engine/gqbench/gpacket"
	"github.com/gordian-engine/gqbench/gqueue"
	"github.com/gordian-engine/gqbench/gtx"
)

// Consumer drains (or deliberately refuses to drain) a batch queue
// and reports entries the way the engine would.
type Consumer struct {
	log *slog.Logger

	in      *gqueue.Receiver[gpacket.Batch]
	out     *gqueue.Sender[gengine.WorkingEntry]
	entries *gqueue.Receiver[gengine.WorkingEntry]

	extra int

	done chan struct{}
}

func newConsumer(log *slog.Logger, in *gqueue.Receiver[gpacket.Batch], extra int) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	out, entries := gqueue.New[gengine.WorkingEntry](gqueue.Unbounded())
	return &Consumer{
		log:     log,
		in:      in,
		out:     out,
		entries: entries,
		extra:   extra,
		done:    make(chan struct{}),
	}
}

// NewImmediate returns a consumer that reports each batch as one entry
// as soon as it is received, without decoding packets.
func NewImmediate(ctx context.Context, log *slog.Logger, in *gqueue.Receiver[gpacket.Batch]) *Consumer {
	c := newConsumer(log, in, 0)
	go c.drain(ctx)
	return c
}

// NewDuplicating is like NewImmediate,
// but the first reported entry claims extra more transactions than its batch held,
// emulating duplicate delivery.
func NewDuplicating(
	ctx context.Context, log *slog.Logger, in *gqueue.Receiver[gpacket.Batch], extra int,
) *Consumer {
	c := newConsumer(log, in, extra)
	go c.drain(ctx)
	return c
}

// NewStalled returns a consumer that never receives from in
// and never reports anything, until ctx is canceled.
func NewStalled(ctx context.Context, log *slog.Logger, in *gqueue.Receiver[gpacket.Batch]) *Consumer {
	c := newConsumer(log, in, 0)
	go func() {
		defer close(c.done)
		defer c.out.Close()
		<-ctx.Done()
	}()
	return c
}

func (c *Consumer) drain(ctx context.Context) {
	defer close(c.done)
	defer c.out.Close()

	first := true
	for {
		b, err := c.in.Recv(ctx)
		if err != nil {
			if !errors.Is(err, gqueue.ErrClosed) && !errors.Is(err, context.Canceled) {
				c.log.Warn("Consumer stopping", "err", err)
			}
			return
		}

		n := b.TxCount()
		if first {
			n += c.extra
			first = false
		}

		we := gengine.WorkingEntry{
			TickHeight: b.Seq,
			Entry: gengine.Entry{
				// Only the count matters to the verifier.
				Transactions: make([]gtx.Transaction, n),
			},
		}
		if err := c.out.Send(ctx, we); err != nil {
			return
		}
	}
}

func (c *Consumer) Entries() *gqueue.Receiver[gengine.WorkingEntry] {
	return c.entries
}

func (c *Consumer) Wait() {
	<-c.done
}
