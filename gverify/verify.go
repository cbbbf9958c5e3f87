// Package gverify checks that a processing engine reported
// exactly the expected number of transactions within a deadline.
//
// Reports are accumulated by count, not by identity,
// because the engine makes no ordering promise about completions.
// An overshoot is treated as a defect just like an undershoot.
package gverify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordian-engine/gqbench/gqueue"
)

// Counted is a result unit reporting how many transactions it covers.
type Counted interface {
	TxCount() int
}

// Source is the receiving side of an engine's result channel.
// [*gqueue.Receiver] satisfies it.
type Source[E Counted] interface {
	RecvTimeout(d time.Duration) (E, error)
}

type Config struct {
	// AttemptTimeout bounds each individual receive.
	AttemptTimeout time.Duration

	// Deadline bounds the whole verification,
	// measured from when it begins.
	Deadline time.Duration

	// Settle, if positive, keeps receiving for this long
	// after the expected count is reached,
	// so that late duplicate reports are caught as overshoot.
	Settle time.Duration
}

func DefaultConfig() Config {
	return Config{
		AttemptTimeout: time.Second,
		Deadline:       60 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive (got %s)", c.AttemptTimeout)
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("deadline must be positive (got %s)", c.Deadline)
	}
	if c.Settle < 0 {
		return fmt.Errorf("settle must not be negative (got %s)", c.Settle)
	}
	return nil
}

// Record is the outcome of a verification.
type Record struct {
	Got, Want int

	// Attempts is the number of receive attempts made.
	Attempts int

	Elapsed  time.Duration
	Deadline time.Time
}

var (
	// ErrTimeout matches a *TimeoutError.
	ErrTimeout = errors.New("verification timed out")

	// ErrMismatch matches a *MismatchError.
	ErrMismatch = errors.New("processed count mismatch")
)

// TimeoutError indicates fewer transactions were reported than expected
// before the deadline passed or the source closed.
type TimeoutError struct {
	Got, Want int
	Elapsed   time.Duration

	// Closed is set when the source closed before the deadline.
	Closed bool
}

func (e *TimeoutError) Error() string {
	reason := "deadline exceeded"
	if e.Closed {
		reason = "source closed"
	}
	return fmt.Sprintf(
		"verification timed out after %s (%s): processed %d of %d transactions",
		e.Elapsed, reason, e.Got, e.Want,
	)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// MismatchError indicates more transactions were reported than submitted.
type MismatchError struct {
	Got, Want int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("processed %d transactions, expected exactly %d", e.Got, e.Want)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

type Verifier struct {
	log *slog.Logger
	cfg Config
}

// New returns a Verifier.
// A nil cfg uses DefaultConfig.
func New(log *slog.Logger, cfg *Config) (*Verifier, error) {
	if log == nil {
		log = slog.Default()
	}
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{log: log, cfg: c}, nil
}

func (v *Verifier) Config() Config {
	return v.cfg
}

// Verify receives from src until the reported count reaches expected,
// the deadline passes, src closes, or ctx is done.
//
// It returns a nil error only if exactly expected transactions were reported.
// Otherwise the error is a *TimeoutError for too few,
// a *MismatchError for too many,
// or the context error on cancellation.
//
// Verify panics if expected is not positive.
func Verify[E Counted](
	ctx context.Context,
	v *Verifier,
	src Source[E],
	expected int,
) (Record, error) {
	if expected <= 0 {
		panic(fmt.Errorf("BUG: expected transaction count must be positive (got %d)", expected))
	}

	start := time.Now()
	rec := Record{
		Want:     expected,
		Deadline: start.Add(v.cfg.Deadline),
	}

	closed := false
	for rec.Got < expected && !closed {
		if err := ctx.Err(); err != nil {
			rec.Elapsed = time.Since(start)
			return rec, err
		}
		if time.Since(start) > v.cfg.Deadline {
			break
		}

		var err error
		closed, err = attempt(src, &rec, v.cfg.AttemptTimeout)
		if err != nil {
			rec.Elapsed = time.Since(start)
			return rec, err
		}
	}

	if rec.Got >= expected && v.cfg.Settle > 0 && !closed {
		settleEnd := time.Now().Add(v.cfg.Settle)
		for !closed {
			remaining := time.Until(settleEnd)
			if remaining <= 0 {
				break
			}
			var err error
			closed, err = attempt(src, &rec, min(remaining, v.cfg.AttemptTimeout))
			if err != nil {
				rec.Elapsed = time.Since(start)
				return rec, err
			}
		}
	}

	rec.Elapsed = time.Since(start)

	switch {
	case rec.Got < expected:
		v.log.Warn(
			"Verification incomplete",
			"got", rec.Got, "want", expected, "elapsed", rec.Elapsed, "closed", closed,
		)
		return rec, &TimeoutError{Got: rec.Got, Want: expected, Elapsed: rec.Elapsed, Closed: closed}
	case rec.Got > expected:
		v.log.Warn("Verification overshoot", "got", rec.Got, "want", expected)
		return rec, &MismatchError{Got: rec.Got, Want: expected}
	}

	v.log.Debug(
		"Verification complete",
		"txs", rec.Got, "attempts", rec.Attempts, "elapsed", rec.Elapsed,
	)
	return rec, nil
}

// attempt makes one receive, reporting whether src is closed.
// A timed-out attempt is not an error.
func attempt[E Counted](src Source[E], rec *Record, d time.Duration) (closed bool, err error) {
	rec.Attempts++

	e, err := src.RecvTimeout(d)
	switch {
	case err == nil:
		rec.Got += e.TxCount()
		return false, nil
	case errors.Is(err, gqueue.ErrTimeout):
		return false, nil
	case errors.Is(err, gqueue.ErrClosed):
		return true, nil
	default:
		return false, fmt.Errorf("receive result: %w", err)
	}
}
