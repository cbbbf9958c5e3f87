package gtx

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	uint8Size  = 1
	uint64Size = 8

	messageVersion = 1

	accountKeySize  = len(AccountKey{})
	hashSize        = len(Hash{})
	instructionSize = uint8Size + uint8Size + uint64Size

	// MaxAccountKeys and MaxInstructions are bounded by their single-byte counts.
	MaxAccountKeys  = 255
	MaxInstructions = 255
	MaxSignatures   = 255
	MaxSignatureLen = 255
)

// ErrShortBuffer is returned when decoding runs out of input.
var ErrShortBuffer = errors.New("short buffer")

// Message returns the canonical byte encoding that signatures cover.
//
// Layout:
//
//	version      uint8
//	numKeys      uint8
//	keys         numKeys * 32 bytes
//	recentHash   32 bytes
//	numIx        uint8
//	instructions numIx * (from uint8, to uint8, amount uint64 LE)
func (tx Transaction) Message() []byte {
	return tx.appendMessage(make([]byte, 0, tx.messageSize()))
}

func (tx Transaction) messageSize() int {
	return uint8Size + uint8Size + len(tx.AccountKeys)*accountKeySize +
		hashSize + uint8Size + len(tx.Instructions)*instructionSize
}

func (tx Transaction) appendMessage(out []byte) []byte {
	out = append(out, messageVersion, uint8(len(tx.AccountKeys)))
	for _, k := range tx.AccountKeys {
		out = append(out, k[:]...)
	}
	out = append(out, tx.RecentHash[:]...)
	out = append(out, uint8(len(tx.Instructions)))
	for _, ix := range tx.Instructions {
		out = append(out, ix.From, ix.To)
		out = binary.LittleEndian.AppendUint64(out, ix.Amount)
	}
	return out
}

// EncodedSize returns the length of the slice MarshalBinary would produce.
func (tx Transaction) EncodedSize() int {
	n := uint8Size
	for _, s := range tx.Signatures {
		n += uint8Size + len(s)
	}
	return n + tx.messageSize()
}

// MarshalBinary encodes the signatures followed by the message.
func (tx Transaction) MarshalBinary() ([]byte, error) {
	return tx.AppendBinary(make([]byte, 0, tx.EncodedSize()))
}

// AppendBinary appends the wire encoding of tx to out.
func (tx Transaction) AppendBinary(out []byte) ([]byte, error) {
	if len(tx.Signatures) > MaxSignatures {
		return nil, fmt.Errorf("too many signatures: %d", len(tx.Signatures))
	}
	if len(tx.AccountKeys) > MaxAccountKeys {
		return nil, fmt.Errorf("too many account keys: %d", len(tx.AccountKeys))
	}
	if len(tx.Instructions) > MaxInstructions {
		return nil, fmt.Errorf("too many instructions: %d", len(tx.Instructions))
	}

	out = append(out, uint8(len(tx.Signatures)))
	for i, s := range tx.Signatures {
		if len(s) > MaxSignatureLen {
			return nil, fmt.Errorf("signature %d too long: %d bytes", i, len(s))
		}
		out = append(out, uint8(len(s)))
		out = append(out, s...)
	}
	return tx.appendMessage(out), nil
}

// UnmarshalBinary decodes a transaction produced by MarshalBinary.
// The decoded transaction does not alias data.
func (tx *Transaction) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}

	nSigs := d.byte()
	sigs := make([][]byte, nSigs)
	for i := range sigs {
		n := d.byte()
		sigs[i] = d.bytes(int(n))
	}

	if v := d.byte(); d.err == nil && v != messageVersion {
		return fmt.Errorf("unsupported message version: %d", v)
	}

	nKeys := d.byte()
	keys := make([]AccountKey, nKeys)
	for i := range keys {
		copy(keys[i][:], d.bytes(accountKeySize))
	}

	var recent Hash
	copy(recent[:], d.bytes(hashSize))

	nIx := d.byte()
	ixs := make([]Instruction, nIx)
	for i := range ixs {
		ixs[i].From = d.byte()
		ixs[i].To = d.byte()
		ixs[i].Amount = binary.LittleEndian.Uint64(d.bytes(uint64Size))
	}

	if d.err != nil {
		return d.err
	}
	if len(d.buf) != 0 {
		return fmt.Errorf("%d trailing bytes after transaction", len(d.buf))
	}

	*tx = Transaction{
		Signatures:   sigs,
		AccountKeys:  keys,
		RecentHash:   recent,
		Instructions: ixs,
	}
	return tx.validateIndices()
}

// decoder consumes a byte slice, recording the first error
// so that callers can check once at the end.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) byte() uint8 {
	return d.bytes(1)[0]
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	if len(d.buf) < n {
		d.err = fmt.Errorf("need %d bytes, have %d: %w", n, len(d.buf), ErrShortBuffer)
		return make([]byte, n)
	}
	out := make([]byte, n)
	copy(out, d.buf[:n])
	d.buf = d.buf[n:]
	return out
}
