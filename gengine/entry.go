package gengine

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/gordian-engine/gqbench/gtx"
)

// Entry is a committed group of transactions,
// chained to its predecessor by Hash.
type Entry struct {
	NumHashes    uint64
	Hash         gtx.Hash
	Transactions []gtx.Transaction
}

// WorkingEntry is what the engine reports for each committed entry.
type WorkingEntry struct {
	Slot       uint64
	TickHeight uint64
	Entry      Entry
}

// TxCount reports the number of transactions processed in this entry.
func (e WorkingEntry) TxCount() int {
	return len(e.Entry.Transactions)
}

// NextHash extends prev by numHashes iterations,
// mixing in the transaction IDs on the final iteration.
// An entry with no transactions is a plain tick.
func NextHash(prev gtx.Hash, numHashes uint64, txs []gtx.Transaction) gtx.Hash {
	h := prev
	for i := uint64(1); i < numHashes; i++ {
		h = sha256.Sum256(h[:])
	}

	if len(txs) == 0 {
		if numHashes == 0 {
			return h
		}
		return sha256.Sum256(h[:])
	}

	mixer := sha256.New()
	for _, tx := range txs {
		_, _ = mixer.Write(tx.ID())
	}
	var mixin gtx.Hash
	mixer.Sum(mixin[:0])

	var buf [len(gtx.Hash{})*2 + 8]byte
	copy(buf[:], h[:])
	copy(buf[len(h):], mixin[:])
	binary.LittleEndian.PutUint64(buf[len(h)*2:], numHashes)
	return sha256.Sum256(buf[:])
}

// VerifyEntries reports whether entries form an unbroken chain from start.
func VerifyEntries(start gtx.Hash, entries []Entry) bool {
	prev := start
	for _, e := range entries {
		if NextHash(prev, e.NumHashes, e.Transactions) != e.Hash {
			return false
		}
		prev = e.Hash
	}
	return true
}
