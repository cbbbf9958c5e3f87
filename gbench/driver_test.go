package gbench_test

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/gordian-engine/gqbench/gbench"
	"github.com/gordian-engine/gqbench/gcrypto/gcryptotest"
	"github.com/gordian-engine/gqbench/gengine"
	"github.com/gordian-engine/gqbench/gengine/genginetest"
	"github.com/gordian-engine/gqbench/gpacket"
	"github.com/gordian-engine/gqbench/gqueue"
	"github.com/gordian-engine/gqbench/gtx"
	"github.com/gordian-engine/gqbench/gtx/gtxgen"
	"github.com/gordian-engine/gqbench/gverify"
	"github.com/gordian-engine/gqbench/internal/gtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type consumerFunc func(context.Context, *slog.Logger, *gqueue.Receiver[gpacket.Batch]) *genginetest.Consumer

func consumerFactory(f consumerFunc) gbench.EngineFactory {
	return func(
		ctx context.Context,
		log *slog.Logger,
		_ gengine.Config,
		_ gtx.Hash,
		in *gqueue.Receiver[gpacket.Batch],
	) (gbench.Processor, error) {
		return f(ctx, log, in), nil
	}
}

// fixtureTxs deterministically generates n transfers.
func fixtureTxs(t testing.TB, n int) []gtx.Transaction {
	t.Helper()

	g := &gtxgen.Generator{Rand: rand.NewChaCha8([32]byte{'f', 'i', 'x'})}
	txs, err := g.Transfers(
		context.Background(), n,
		gcryptotest.DeterministicEd25519Signers(1)[0],
		gtx.GenesisHash("fixture"),
	)
	require.NoError(t, err)
	return txs
}

func testConfig(queues ...gqueue.Config) gbench.Config {
	cfg := gbench.DefaultConfig()
	cfg.BatchSize = 192
	cfg.Queues = queues
	cfg.Iterations = 1
	cfg.Verifier.AttemptTimeout = 50 * time.Millisecond
	cfg.Verifier.Deadline = 5 * time.Second
	return cfg
}

func TestDriver_unboundedImmediateConsumer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := gbench.New(
		gtest.NewLogger(t),
		testConfig(gqueue.Unbounded()),
		gbench.WithTransactions(fixtureTxs(t, 1536)),
		gbench.WithEngineFactory(consumerFactory(genginetest.NewImmediate)),
	)
	require.NoError(t, err)

	report, err := d.Run(ctx)
	require.NoError(t, err)
	require.False(t, report.Failed())
	require.NoError(t, report.Err())
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	require.Equal(t, "Unbounded", res.Label)
	require.Len(t, res.Elapsed, 1)
	require.Equal(t, 1536, res.Submitted)
	require.Zero(t, res.BlockedSends)
	require.NotNil(t, res.Verification)
	require.Equal(t, 1536, res.Verification.Got)
	require.Equal(t, 1536, res.Verification.Want)

	require.Equal(t, gbench.StateIdle, d.State())
}

func TestDriver_realEngine(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig(gqueue.Unbounded(), gqueue.Bounded(1), gqueue.Bounded(8))
	cfg.Iterations = 3

	d, err := gbench.New(
		gtest.NewLogger(t), cfg,
		gbench.WithTransactions(fixtureTxs(t, 1000)),
	)
	require.NoError(t, err)

	report, err := d.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Results, 3)

	for _, res := range report.Results {
		require.Len(t, res.Elapsed, 3, res.Label)
		require.Equal(t, 3000, res.Submitted, res.Label)
		require.Equal(t, 3000, res.Verification.Got, res.Label)
	}
}

func TestDriver_generatesWorkload(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig(gqueue.Bounded(4))
	cfg.TxCount = 100
	cfg.BatchSize = 16
	cfg.Iterations = 2

	d, err := gbench.New(
		gtest.NewLogger(t), cfg,
		gbench.WithRand(rand.NewChaCha8([32]byte{'g', 'e', 'n'})),
		gbench.WithName("steady-otter"),
	)
	require.NoError(t, err)
	require.Equal(t, "steady-otter", d.Name())

	report, err := d.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, report.Err())

	require.Equal(t, "steady-otter", report.Name)
	require.Equal(t, 100, report.TxCount)
	res := report.Results[0]
	require.Equal(t, "Bounded(4)", res.Label)
	require.Equal(t, 200, res.Submitted)
	require.Equal(t, 200, res.Verification.Got)
}

func TestDriver_programStrategy(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig(gqueue.Unbounded())
	cfg.TxCount = 20
	cfg.Strategy = gtxgen.StrategyProgram
	cfg.Scheme = gtxgen.SchemeSecp256k1

	d, err := gbench.New(gtest.NewLogger(t), cfg)
	require.NoError(t, err)

	report, err := d.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Equal(t, 20, report.Results[0].Verification.Got)
}

func TestDriver_stalledConsumerBlocksBoundedSubmission(t *testing.T) {
	t.Parallel()

	// The second send into a full Bounded(1) queue never completes,
	// so only the outer deadline ends the run.
	ctx, cancel := context.WithTimeout(context.Background(), 4*gtest.ScaleDuration)
	defer cancel()

	d, err := gbench.New(
		gtest.NewLogger(t),
		testConfig(gqueue.Bounded(1)),
		gbench.WithTransactions(fixtureTxs(t, 1536)),
		gbench.WithEngineFactory(consumerFactory(genginetest.NewStalled)),
	)
	require.NoError(t, err)

	report, err := d.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, report.Failed())

	res := report.Results[0]
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
	require.Empty(t, res.Elapsed)
	require.Nil(t, res.Verification)
	require.Equal(t, uint64(1), res.BlockedSends)
}

func TestDriver_duplicateReportIsMismatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dup := func(ctx context.Context, log *slog.Logger, in *gqueue.Receiver[gpacket.Batch]) *genginetest.Consumer {
		return genginetest.NewDuplicating(ctx, log, in, 1)
	}

	d, err := gbench.New(
		gtest.NewLogger(t),
		testConfig(gqueue.Unbounded(), gqueue.Bounded(1024)),
		gbench.WithTransactions(fixtureTxs(t, 1536)),
		gbench.WithEngineFactory(consumerFactory(dup)),
	)
	require.NoError(t, err)

	report, err := d.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.Failed())

	// Both configurations run, and both fail the same way.
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		require.ErrorIs(t, res.Err, gverify.ErrMismatch, res.Label)

		var me *gverify.MismatchError
		require.ErrorAs(t, res.Err, &me)
		require.Equal(t, 1537, me.Got)
		require.Equal(t, 1536, me.Want)
	}

	require.ErrorContains(t, report.Err(), "Bounded(1024): verify:")
}

func TestDriver_verifyDisabled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testConfig(gqueue.Unbounded())
	cfg.Verify = false
	cfg.Iterations = 4

	d, err := gbench.New(
		gtest.NewLogger(t), cfg,
		gbench.WithTransactions(fixtureTxs(t, 400)),
		gbench.WithEngineFactory(consumerFactory(genginetest.NewStalled)),
	)
	require.NoError(t, err)

	report, err := d.Run(ctx)
	require.NoError(t, err)
	require.False(t, report.Failed())

	res := report.Results[0]
	require.Len(t, res.Elapsed, 4)
	require.Nil(t, res.Verification)
}

func TestDriver_canceledBeforeRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := gbench.New(
		gtest.NewLogger(t),
		testConfig(gqueue.Unbounded()),
		gbench.WithTransactions(fixtureTxs(t, 10)),
	)
	require.NoError(t, err)

	report, err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Empty(t, report.Results)
	require.Equal(t, gbench.StateIdle, d.State())
}

func TestDriver_metrics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	reg := prometheus.NewPedanticRegistry()
	m, err := gbench.NewMetrics(reg)
	require.NoError(t, err)

	cfg := testConfig(gqueue.Unbounded())
	cfg.Iterations = 2

	d, err := gbench.New(
		gtest.NewLogger(t), cfg,
		gbench.WithTransactions(fixtureTxs(t, 192)),
		gbench.WithEngineFactory(consumerFactory(genginetest.NewImmediate)),
		gbench.WithMetrics(m),
	)
	require.NoError(t, err)

	_, err = d.Run(ctx)
	require.NoError(t, err)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[mf.GetName()] = c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				values[mf.GetName()] = float64(h.GetSampleCount())
			}
		}
	}
	require.Equal(t, float64(2), values["gqbench_submit_seconds"])
	require.Equal(t, float64(384), values["gqbench_submitted_txs_total"])
	require.Equal(t, float64(384), values["gqbench_verified_txs_total"])

	_, err = gbench.NewMetrics(reg)
	require.Error(t, err, "registering twice must fail")
}

func TestNew_invalidConfig(t *testing.T) {
	t.Parallel()

	cfg := gbench.DefaultConfig()
	cfg.BatchSize = 0
	cfg.Queues = []gqueue.Config{gqueue.Bounded(0)}
	cfg.Iterations = 0

	_, err := gbench.New(gtest.NewLogger(t), cfg)
	require.ErrorContains(t, err, "batch size must be positive")
	require.ErrorContains(t, err, "queue 0:")
	require.ErrorContains(t, err, "iterations must be positive")
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := gbench.DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 192*4*8, cfg.TxCount)
	require.Equal(t, gbench.DefaultTxCount(cfg.BatchSize, cfg.Engine.Workers), cfg.TxCount)
	require.Equal(t, 32, cfg.NumBatches())
	require.Equal(t, []gqueue.Config{
		gqueue.Unbounded(), gqueue.Bounded(1024), gqueue.Bounded(8192),
	}, cfg.Queues)
}

func TestReport_WriteTable(t *testing.T) {
	t.Parallel()

	r := &gbench.Report{
		Name:       "quiet-heron",
		TxCount:    1536,
		BatchSize:  192,
		Iterations: 2,
		Strategy:   gtxgen.StrategyTransfer,
		Results: []gbench.Result{
			{
				Label:        "Unbounded",
				Queue:        gqueue.Unbounded(),
				Elapsed:      []time.Duration{time.Millisecond, 3 * time.Millisecond},
				Submitted:    3072,
				Verification: &gverify.Record{Got: 3072, Want: 3072},
			},
			{
				Label: "Bounded(1)",
				Queue: gqueue.Bounded(1),
				Err:   context.DeadlineExceeded,
			},
		},
	}

	res := r.Results[0]
	require.Equal(t, 2*time.Millisecond, res.Mean())
	require.Equal(t, time.Millisecond, res.Min())
	require.Equal(t, 3*time.Millisecond, res.Max())
	require.InDelta(t, 768_000, res.Throughput(), 1)
	require.Zero(t, r.Results[1].Throughput())

	var buf bytes.Buffer
	r.WriteTable(&buf)
	out := buf.String()
	require.Contains(t, out, "Run quiet-heron: 1536 txs in batches of 192, 2 iterations, transfer strategy")
	require.Contains(t, out, "Unbounded")
	require.Contains(t, out, "3072/3072")
	require.Contains(t, out, "Bounded(1)")
	require.Contains(t, out, "context deadline exceeded")
}

func TestState_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Idle", gbench.StateIdle.String())
	require.Equal(t, "Submitting", gbench.StateSubmitting.String())
	require.Equal(t, "Measured", gbench.StateMeasured.String())
	require.Equal(t, "State(9)", gbench.State(9).String())
}

func TestDriver_interruptedSweepStops(t *testing.T) {
	t.Parallel()

	// The deadline lands while the first config is blocked,
	// so the remaining config never runs.
	ctx, cancel := context.WithTimeout(context.Background(), 4*gtest.ScaleDuration)
	defer cancel()

	d, err := gbench.New(
		gtest.NewLogger(t),
		testConfig(gqueue.Bounded(1), gqueue.Unbounded()),
		gbench.WithTransactions(fixtureTxs(t, 384)),
		gbench.WithEngineFactory(consumerFactory(genginetest.NewStalled)),
	)
	require.NoError(t, err)

	report, err := d.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "Bounded(1)")
	require.Len(t, report.Results, 1)
	require.Equal(t, gbench.StateIdle, d.State())
}
