// Package gtest contains helpers shared across tests in this module.
package gtest

import (
	"log/slog"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

// ScaleDuration is the base duration for the "soon" helpers.
// It is a variable so that slow CI machines can bump it from an init function.
var ScaleDuration = 100 * time.Millisecond

// NewLogger returns a *slog.Logger that writes through t.Log,
// so output is only shown for failed or verbose tests.
func NewLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slogt.New(t)
}

// ReceiveSoon receives a value from ch,
// failing the test if nothing arrives within ScaleDuration.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(ScaleDuration)
	defer timer.Stop()

	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed before receive")
		}
		return v
	case <-timer.C:
		t.Fatalf("no value received within %s", ScaleDuration)
	}

	panic("unreachable")
}

// NotSendingSoon asserts that ch produces no value within ScaleDuration.
func NotSendingSoon[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	timer := time.NewTimer(ScaleDuration)
	defer timer.Stop()

	select {
	case v := <-ch:
		t.Fatalf("expected no value, got %v", v)
	case <-timer.C:
	}
}
