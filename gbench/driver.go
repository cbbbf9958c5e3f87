// Package gbench drives the queue benchmark:
// it generates a transaction workload once,
// then for each queue configuration creates a fresh queue and engine,
// times repeated submission of the packetized workload,
// and optionally verifies that the engine reported every transaction.
//
// Queue configurations are isolated from one another.
// A failure in one is recorded in its [Result]
// and the sweep continues with the next.
package gbench

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/gordian-engine/gqbench/gcrypto"
	"github.com/gordian-engine/gqbench/gengine"
	"github.com/gordian-engine/gqbench/gpacket"
	"github.com/gordian-engine/gqbench/gqueue"
	"github.com/gordian-engine/gqbench/gtx"
	"github.com/gordian-engine/gqbench/gtx/gtxgen"
	"github.com/gordian-engine/gqbench/gverify"
	"github.com/gordian-engine/gqbench/internal/glog"
)

// State is the driver's position in its run lifecycle.
type State int32

const (
	StateIdle State = iota
	StateGenerating
	StateChannelReady
	StateSubmitting
	StateMeasured
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateGenerating:
		return "Generating"
	case StateChannelReady:
		return "ChannelReady"
	case StateSubmitting:
		return "Submitting"
	case StateMeasured:
		return "Measured"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Processor is the view of a processing engine the driver needs:
// a queue of reported entries, and a way to wait for shutdown.
type Processor interface {
	Entries() *gqueue.Receiver[gengine.WorkingEntry]
	Wait()
}

// EngineFactory starts a processor consuming from in.
// The processor must stop once in is closed or ctx is canceled.
type EngineFactory func(
	ctx context.Context,
	log *slog.Logger,
	cfg gengine.Config,
	start gtx.Hash,
	in *gqueue.Receiver[gpacket.Batch],
) (Processor, error)

// NewEngine is the default EngineFactory, starting a [gengine.Engine].
func NewEngine(
	ctx context.Context,
	log *slog.Logger,
	cfg gengine.Config,
	start gtx.Hash,
	in *gqueue.Receiver[gpacket.Batch],
) (Processor, error) {
	e, err := gengine.New(ctx, log, cfg, start, in)
	if err != nil {
		return nil, err
	}
	return e, nil
}

type Driver struct {
	log  *slog.Logger
	cfg  Config
	name string

	rand      io.Reader
	funder    gcrypto.Signer
	newEngine EngineFactory
	metrics   *Metrics
	txs       []gtx.Transaction

	state atomic.Int32
}

// Option configures a [Driver] in [New].
type Option func(*Driver)

// WithRand sets the random source for key and transaction generation.
func WithRand(r io.Reader) Option {
	return func(d *Driver) { d.rand = r }
}

// WithFunder sets the identity that signs the transfer template.
// By default a fresh ed25519 identity is derived from the random source.
func WithFunder(s gcrypto.Signer) Option {
	return func(d *Driver) { d.funder = s }
}

// WithEngineFactory overrides how the per-queue processor is started.
func WithEngineFactory(f EngineFactory) Option {
	return func(d *Driver) { d.newEngine = f }
}

// WithMetrics records submissions and verifications to m.
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithTransactions skips generation and submits txs instead.
// Config.TxCount is ignored in that case.
func WithTransactions(txs []gtx.Transaction) Option {
	return func(d *Driver) { d.txs = txs }
}

// WithName overrides the randomly chosen run name.
func WithName(name string) Option {
	return func(d *Driver) { d.name = name }
}

// New returns a Driver for cfg.
// The configuration is validated up front,
// so that a misconfiguration never starts any work.
func New(log *slog.Logger, cfg Config, opts ...Option) (*Driver, error) {
	if log == nil {
		log = slog.Default()
	}
	d := &Driver{
		log:       log,
		cfg:       cfg,
		rand:      rand.Reader,
		newEngine: NewEngine,
	}
	for _, o := range opts {
		o(d)
	}

	if d.txs != nil {
		d.cfg.TxCount = len(d.txs)
	}
	if err := d.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid benchmark config: %w", err)
	}

	if d.name == "" {
		d.name = petname.Generate(2, "-")
	}
	d.log = d.log.With("run", d.name)

	return d, nil
}

// Name returns the run name used in logs and reports.
func (d *Driver) Name() string {
	return d.name
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
}

// Run generates the workload (unless provided through WithTransactions)
// and benchmarks every configured queue in order.
//
// Per-queue failures are reported in the corresponding Result.
// Run itself only returns an error if generation fails,
// if another Run is in progress, or if ctx is canceled before the sweep completes;
// in the last case the partial report is returned alongside the error.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateGenerating)) {
		return nil, fmt.Errorf("benchmark run already in progress (state %s)", d.State())
	}
	defer d.setState(StateIdle)

	anchor := gtx.GenesisHash(d.cfg.ChainID)

	txs := d.txs
	if txs == nil {
		var err error
		txs, err = d.generate(ctx, anchor)
		if err != nil {
			return nil, fmt.Errorf("generate workload: %w", err)
		}
	}

	report := &Report{
		Name:       d.name,
		TxCount:    len(txs),
		BatchSize:  d.cfg.BatchSize,
		Iterations: d.cfg.Iterations,
		Strategy:   d.cfg.Strategy,
	}

	for _, q := range d.cfg.Queues {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("benchmark interrupted before %s: %w", q, err)
		}

		res := d.runQueue(ctx, q, anchor, txs)
		report.Results = append(report.Results, res)
		if res.Err != nil {
			d.metrics.recordFailure(res.Label)
			d.log.Warn("Queue benchmark failed", "queue", res.Label, "err", res.Err)
		}

		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("benchmark interrupted during %s: %w", q, err)
		}
	}

	return report, nil
}

func (d *Driver) generate(ctx context.Context, anchor gtx.Hash) ([]gtx.Transaction, error) {
	funder := d.funder
	if funder == nil && d.cfg.Strategy == gtxgen.StrategyTransfer {
		s, err := gcrypto.NewEd25519SignerFromReader(d.rand)
		if err != nil {
			return nil, fmt.Errorf("derive funder: %w", err)
		}
		funder = s
	}

	g := &gtxgen.Generator{
		Log:    d.log.With("sys", "gen"),
		Rand:   d.rand,
		Scheme: d.cfg.Scheme,
	}

	start := time.Now()
	txs, err := g.Generate(ctx, d.cfg.Strategy, d.cfg.TxCount, funder, anchor)
	if err != nil {
		return nil, err
	}

	d.log.Info(
		"Generated workload",
		"strategy", d.cfg.Strategy,
		"txs", len(txs),
		"anchor", glog.ShortHex(anchor[:]),
		"elapsed", time.Since(start),
	)
	return txs, nil
}

func (d *Driver) runQueue(
	ctx context.Context,
	q gqueue.Config,
	anchor gtx.Hash,
	txs []gtx.Transaction,
) (res Result) {
	label := q.String()
	log := d.log.With("queue", label)

	res = Result{Label: label, Queue: q}

	h, rx := gqueue.NewHarness(log.With("sys", "harness"), q)

	qCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc, err := d.newEngine(qCtx, log.With("sys", "engine"), d.cfg.Engine, anchor, rx)
	if err != nil {
		rx.Close()
		res.Err = fmt.Errorf("start engine: %w", err)
		return res
	}

	defer func() {
		// Stop producing, stop the engine, and release both queues.
		h.Close()
		cancel()
		rx.Close()
		proc.Wait()
		proc.Entries().Close()

		res.BlockedSends = h.Sender.Stats().BlockedSends
	}()

	if !d.cfg.Verify {
		// Nobody will read entries; let the engine discard them.
		proc.Entries().Close()
	}

	d.setState(StateChannelReady)

	p := gpacket.NewPacketizer(d.cfg.BatchSize)
	for i := range d.cfg.Iterations {
		batches, err := p.Packetize(txs)
		if err != nil {
			res.Err = fmt.Errorf("packetize iteration %d: %w", i, err)
			return res
		}

		d.setState(StateSubmitting)
		elapsed, err := h.SubmitAll(qCtx, batches)
		if err != nil {
			res.Err = fmt.Errorf("submit iteration %d: %w", i, err)
			return res
		}
		d.setState(StateMeasured)

		n := gpacket.TotalTxCount(batches)
		res.Elapsed = append(res.Elapsed, elapsed)
		res.Submitted += n
		d.metrics.observeSubmit(label, elapsed, n)

		log.Info("Queue submission measured", "iteration", i, "batches", len(batches), "elapsed", elapsed)
	}

	if d.cfg.Verify {
		v, err := gverify.New(log.With("sys", "verifier"), &d.cfg.Verifier)
		if err != nil {
			res.Err = fmt.Errorf("create verifier: %w", err)
			return res
		}

		rec, err := gverify.Verify[gengine.WorkingEntry](qCtx, v, proc.Entries(), res.Submitted)
		res.Verification = &rec
		d.metrics.recordVerified(label, rec.Got)
		if err != nil {
			res.Err = fmt.Errorf("verify: %w", err)
			return res
		}
	}

	return res
}
