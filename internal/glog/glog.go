// Package glog contains slog helpers for values that need special formatting.
package glog

import (
	"encoding/hex"
	"log/slog"
)

// Hex renders a byte slice as lowercase hex when logged.
// The encoding is deferred until the record is actually handled.
type Hex []byte

func (h Hex) LogValue() slog.Value {
	return slog.StringValue(hex.EncodeToString(h))
}

// ShortHex is like Hex but only renders the first 8 bytes,
// which is usually enough to identify a key or hash in logs.
type ShortHex []byte

func (h ShortHex) LogValue() slog.Value {
	if len(h) > 8 {
		return slog.StringValue(hex.EncodeToString(h[:8]))
	}
	return slog.StringValue(hex.EncodeToString(h))
}
