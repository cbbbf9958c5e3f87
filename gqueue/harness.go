package gqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordian-engine/gqbench/gpacket"
)

// SubmitAll sends every item in order through s,
// returning the wall-clock time from just before the first send
// until just after the last send returned.
//
// The measurement is producer-side only:
// it includes any time spent blocked on a full bounded queue,
// but says nothing about when the consumer processed the items.
//
// On failure, the returned duration covers the sends attempted so far
// and the error wraps the underlying send error, e.g. [ErrClosed].
func SubmitAll[T any](ctx context.Context, s *Sender[T], items []T) (time.Duration, error) {
	start := time.Now()
	for i, v := range items {
		if err := s.Send(ctx, v); err != nil {
			return time.Since(start), fmt.Errorf("send item %d of %d: %w", i+1, len(items), err)
		}
	}
	return time.Since(start), nil
}

// Harness submits packet batches into a queue.
type Harness struct {
	Log    *slog.Logger
	Sender *Sender[gpacket.Batch]
}

// NewHarness creates a new queue of the given config for packet batches,
// returning the harness around its sender and the receiver
// to hand to the processing engine.
func NewHarness(log *slog.Logger, cfg Config) (*Harness, *Receiver[gpacket.Batch]) {
	if log == nil {
		log = slog.Default()
	}
	tx, rx := New[gpacket.Batch](cfg)
	return &Harness{Log: log, Sender: tx}, rx
}

// SubmitAll sends all batches, as the package-level [SubmitAll].
func (h *Harness) SubmitAll(ctx context.Context, batches []gpacket.Batch) (time.Duration, error) {
	before := h.Sender.Stats()

	elapsed, err := SubmitAll(ctx, h.Sender, batches)

	after := h.Sender.Stats()
	if err != nil {
		h.Log.Warn(
			"Batch submission failed",
			"queue", h.Sender.Config(),
			"sent", after.Sent-before.Sent,
			"batches", len(batches),
			"elapsed", elapsed,
			"err", err,
		)
		return elapsed, err
	}

	h.Log.Debug(
		"Submitted batches",
		"queue", h.Sender.Config(),
		"batches", len(batches),
		"txs", gpacket.TotalTxCount(batches),
		"blocked_sends", after.BlockedSends-before.BlockedSends,
		"elapsed", elapsed,
	)
	return elapsed, nil
}

// Close closes the underlying sender.
func (h *Harness) Close() {
	h.Sender.Close()
}
