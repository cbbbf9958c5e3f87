package gengine

import (
	"fmt"

	"github.com/gordian-engine/gqbench/gqueue"
)

// Config is the explicit engine configuration.
// There is no package-level state; every Engine owns its Config.
type Config struct {
	// Workers is the number of goroutines consuming batches.
	Workers int

	// MaxEntryTxs bounds how many transactions are recorded in one entry.
	// Larger batches are split across several entries.
	MaxEntryTxs int

	// HashesPerTick is the number of hash iterations recorded per entry,
	// emulating proof-of-history work between entries.
	HashesPerTick uint64

	// TicksPerSlot controls how tick heights map to slots.
	TicksPerSlot uint64

	// Results is the policy for the entry output queue.
	Results gqueue.Config
}

// DefaultConfig returns the configuration used by the benchmark by default.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		MaxEntryTxs:   64,
		HashesPerTick: 4,
		TicksPerSlot:  10_000,
		Results:       gqueue.Unbounded(),
	}
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("engine workers must be positive (got %d)", c.Workers)
	}
	if c.MaxEntryTxs <= 0 {
		return fmt.Errorf("max entry transactions must be positive (got %d)", c.MaxEntryTxs)
	}
	if c.TicksPerSlot == 0 {
		return fmt.Errorf("ticks per slot must be positive")
	}
	if err := c.Results.Validate(); err != nil {
		return fmt.Errorf("invalid results queue: %w", err)
	}
	return nil
}
