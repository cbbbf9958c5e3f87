package gqcmd

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/gordian-engine/gqbench/gbench"
	"github.com/gordian-engine/gqbench/gqueue"
	"github.com/gordian-engine/gqbench/gtx/gtxgen"
	"gopkg.in/yaml.v3"
)

// runOptions holds the settings of the run command.
// Flags bind directly to its fields,
// and a sweep file decodes into the same fields through the yaml tags.
type runOptions struct {
	// TxCount of zero derives the workload size
	// from the batch size and engine worker count.
	TxCount    int       `yaml:"txs"`
	BatchSize  int       `yaml:"batch_size"`
	Queues     queueList `yaml:"queues"`
	Iterations int       `yaml:"iterations"`
	Strategy   string    `yaml:"strategy"`
	Scheme     string    `yaml:"scheme"`
	ChainID    string    `yaml:"chain_id"`

	Verify         bool          `yaml:"verify"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	Deadline       time.Duration `yaml:"deadline"`
	Settle         time.Duration `yaml:"settle"`

	EngineWorkers int `yaml:"engine_workers"`

	// Seed makes key and transaction generation reproducible.
	// Zero means a fresh random workload.
	Seed uint64 `yaml:"seed"`

	ConfigFile  string `yaml:"-"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func defaultRunOptions() runOptions {
	cfg := gbench.DefaultConfig()
	return runOptions{
		BatchSize:  cfg.BatchSize,
		Queues:     queueList(cfg.Queues),
		Iterations: cfg.Iterations,
		Strategy:   string(cfg.Strategy),
		Scheme:     cfg.Scheme.String(),
		ChainID:    cfg.ChainID,

		Verify:         cfg.Verify,
		AttemptTimeout: cfg.Verifier.AttemptTimeout,
		Deadline:       cfg.Verifier.Deadline,
		Settle:         cfg.Verifier.Settle,

		EngineWorkers: cfg.Engine.Workers,
	}
}

// loadSweepFile decodes the YAML file at path over o.
// Keys absent from the file leave the corresponding fields untouched.
func loadSweepFile(path string, o *runOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open sweep file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(o); err != nil {
		return fmt.Errorf("decode sweep file %s: %w", path, err)
	}
	return nil
}

// BenchConfig converts o into a benchmark configuration.
func (o runOptions) BenchConfig() (gbench.Config, error) {
	strategy, err := gtxgen.ParseStrategy(o.Strategy)
	if err != nil {
		return gbench.Config{}, err
	}
	scheme, err := gtxgen.ParseScheme(o.Scheme)
	if err != nil {
		return gbench.Config{}, err
	}

	cfg := gbench.DefaultConfig()
	cfg.TxCount = o.TxCount
	if cfg.TxCount == 0 {
		cfg.TxCount = gbench.DefaultTxCount(o.BatchSize, o.EngineWorkers)
	}
	cfg.BatchSize = o.BatchSize
	cfg.Queues = []gqueue.Config(o.Queues)
	cfg.Iterations = o.Iterations
	cfg.Strategy = strategy
	cfg.Scheme = scheme
	cfg.ChainID = o.ChainID

	cfg.Verify = o.Verify
	cfg.Verifier.AttemptTimeout = o.AttemptTimeout
	cfg.Verifier.Deadline = o.Deadline
	cfg.Verifier.Settle = o.Settle

	cfg.Engine.Workers = o.EngineWorkers

	return cfg, cfg.Validate()
}

// SeededRand returns a deterministic random stream for o.Seed,
// or nil if no seed was given.
func (o runOptions) SeededRand() *rand.ChaCha8 {
	if o.Seed == 0 {
		return nil
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], o.Seed)
	return rand.NewChaCha8(sha256.Sum256(append([]byte("gqbench seed "), buf[:]...)))
}

// queueList is a list of queue configs settable from a flag
// ("unbounded,1024,8192") or from YAML (a sequence, or the same comma form).
type queueList []gqueue.Config

func (q *queueList) String() string {
	parts := make([]string, len(*q))
	for i, c := range *q {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

func (q *queueList) Set(s string) error {
	cs, err := gqueue.ParseConfigs(s)
	if err != nil {
		return err
	}
	*q = cs
	return nil
}

func (q *queueList) Type() string {
	return "queues"
}

func (q *queueList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		return q.Set(n.Value)
	case yaml.SequenceNode:
		var raw []string
		if err := n.Decode(&raw); err != nil {
			return err
		}
		return q.Set(strings.Join(raw, ","))
	default:
		return fmt.Errorf("line %d: queues must be a list or a comma-separated string", n.Line)
	}
}
