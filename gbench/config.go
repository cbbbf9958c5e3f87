package gbench

import (
	"errors"
	"fmt"

	"github.com/gordian-engine/gqbench/gengine"
	"github.com/gordian-engine/gqbench/gpacket"
	"github.com/gordian-engine/gqbench/gqueue"
	"github.com/gordian-engine/gqbench/gtx/gtxgen"
	"github.com/gordian-engine/gqbench/gverify"
)

// Config controls a benchmark run.
type Config struct {
	// TxCount is the number of transactions generated once per run
	// and submitted once per iteration.
	TxCount int

	// BatchSize is the maximum number of transactions per packet batch.
	BatchSize int

	// Queues is the list of queue configurations to sweep.
	// Each is benchmarked independently.
	Queues []gqueue.Config

	// Iterations is the number of timed submissions per queue configuration.
	Iterations int

	Strategy gtxgen.Strategy
	Scheme   gtxgen.Scheme

	// ChainID seeds the genesis anchor hash.
	ChainID string

	// Verify enables completion verification after each queue's iterations.
	Verify   bool
	Verifier gverify.Config

	Engine gengine.Config
}

// BatchesPerWorker is the number of batches per engine worker
// in the default workload size.
const BatchesPerWorker = 8

// DefaultTxCount returns the default workload size:
// BatchesPerWorker full batches for every engine worker.
func DefaultTxCount(batchSize, workers int) int {
	return batchSize * workers * BatchesPerWorker
}

// DefaultConfig mirrors the classic banking-stage scheduler benchmark:
// 192-packet batches, 8 batches per engine worker,
// swept across an unbounded queue and two bounded capacities.
func DefaultConfig() Config {
	engine := gengine.DefaultConfig()
	return Config{
		TxCount:   DefaultTxCount(gpacket.DefaultBatchSize, engine.Workers),
		BatchSize: gpacket.DefaultBatchSize,
		Queues: []gqueue.Config{
			gqueue.Unbounded(),
			gqueue.Bounded(1024),
			gqueue.Bounded(8192),
		},
		Iterations: 10,
		Strategy:   gtxgen.StrategyTransfer,
		Scheme:     gtxgen.SchemeEd25519,
		ChainID:    "gqbench",
		Verify:     true,
		Verifier:   gverify.DefaultConfig(),
		Engine:     engine,
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if c.TxCount <= 0 {
		errs = append(errs, fmt.Errorf("transaction count must be positive (got %d)", c.TxCount))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive (got %d)", c.BatchSize))
	}
	if len(c.Queues) == 0 {
		errs = append(errs, errors.New("at least one queue config is required"))
	}
	for i, q := range c.Queues {
		if err := q.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("queue %d: %w", i, err))
		}
	}
	if c.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("iterations must be positive (got %d)", c.Iterations))
	}
	if _, err := gtxgen.ParseStrategy(string(c.Strategy)); err != nil {
		errs = append(errs, err)
	}
	if c.Scheme != "" {
		if _, err := gtxgen.ParseScheme(string(c.Scheme)); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Verify {
		if err := c.Verifier.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("verifier: %w", err))
		}
	}
	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	return errors.Join(errs...)
}

// NumBatches returns the number of batches submitted per iteration.
func (c Config) NumBatches() int {
	return (c.TxCount + c.BatchSize - 1) / c.BatchSize
}
