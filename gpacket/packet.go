// Package gpacket groups encoded transactions into bounded-size batches
// suitable for handing to the processing engine.
package gpacket

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gordian-engine/gqbench/gtx"
)

const (
	// MaxPacketSize is the largest encoded transaction accepted in a packet,
	// matching the usable payload of a minimum-MTU IPv6 UDP datagram.
	MaxPacketSize = 1232

	// DefaultBatchSize is the default maximum number of packets per batch.
	DefaultBatchSize = 192
)

// Packet holds one wire-encoded transaction.
type Packet struct {
	Data []byte
}

// Decode parses the transaction held in p.
func (p Packet) Decode() (gtx.Transaction, error) {
	var tx gtx.Transaction
	if err := tx.UnmarshalBinary(p.Data); err != nil {
		return gtx.Transaction{}, fmt.Errorf("decode packet: %w", err)
	}
	return tx, nil
}

// Batch is an ordered, bounded-size group of packets.
type Batch struct {
	// ID is unique across every batch ever produced.
	ID uuid.UUID

	// Seq is the position of this batch in its Packetizer's output,
	// counting across calls to Packetize.
	Seq uint64

	Packets []Packet
}

// TxCount returns the number of transactions in the batch.
func (b Batch) TxCount() int {
	return len(b.Packets)
}

// Packetizer splits transaction sets into batches of at most BatchSize packets.
// Sequence numbers continue across calls,
// so repeated submissions of the same transactions remain distinguishable.
//
// A Packetizer is safe for concurrent use.
type Packetizer struct {
	batchSize int
	nextSeq   atomic.Uint64
}

// NewPacketizer returns a Packetizer producing batches of at most batchSize packets.
// It panics if batchSize is not positive.
func NewPacketizer(batchSize int) *Packetizer {
	if batchSize <= 0 {
		panic(fmt.Errorf("BUG: batch size must be positive (got %d)", batchSize))
	}
	return &Packetizer{batchSize: batchSize}
}

func (p *Packetizer) BatchSize() int {
	return p.batchSize
}

// Packetize encodes txs into ceil(len(txs)/BatchSize) batches.
// Every transaction appears in exactly one batch,
// and batches preserve input order.
func (p *Packetizer) Packetize(txs []gtx.Transaction) ([]Batch, error) {
	nBatches := (len(txs) + p.batchSize - 1) / p.batchSize
	if nBatches == 0 {
		return nil, nil
	}

	firstSeq := p.nextSeq.Add(uint64(nBatches)) - uint64(nBatches)

	out := make([]Batch, nBatches)
	for i := range out {
		lo := i * p.batchSize
		hi := min(lo+p.batchSize, len(txs))

		b := Batch{
			ID:      uuid.New(),
			Seq:     firstSeq + uint64(i),
			Packets: make([]Packet, 0, hi-lo),
		}
		for j := lo; j < hi; j++ {
			data, err := txs[j].MarshalBinary()
			if err != nil {
				return nil, fmt.Errorf("encode transaction %d: %w", j, err)
			}
			if len(data) > MaxPacketSize {
				return nil, fmt.Errorf(
					"transaction %d encodes to %d bytes, exceeding packet size %d",
					j, len(data), MaxPacketSize,
				)
			}
			b.Packets = append(b.Packets, Packet{Data: data})
		}
		out[i] = b
	}

	return out, nil
}

// Packetize is a convenience wrapper using a fresh Packetizer.
func Packetize(txs []gtx.Transaction, maxPerBatch int) ([]Batch, error) {
	return NewPacketizer(maxPerBatch).Packetize(txs)
}

// TotalTxCount sums TxCount over batches.
func TotalTxCount(batches []Batch) int {
	n := 0
	for _, b := range batches {
		n += b.TxCount()
	}
	return n
}
