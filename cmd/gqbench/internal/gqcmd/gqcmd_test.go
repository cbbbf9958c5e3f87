package gqcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gordian-engine/gqbench/gbench"
	"github.com/gordian-engine/gqbench/gqueue"
	"github.com/gordian-engine/gqbench/gtx/gtxgen"
	"github.com/gordian-engine/gqbench/internal/gtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

func TestRun_smallSweep(t *testing.T) {
	t.Parallel()

	out, err := execute(t,
		"run",
		"--txs", "96",
		"--batch-size", "16",
		"--queues", "unbounded,2",
		"--iterations", "2",
		"--seed", "7",
		"--log-level", "warn",
	)
	require.NoError(t, err)
	require.Contains(t, out, "96 txs in batches of 16, 2 iterations, transfer strategy")
	require.Contains(t, out, "Unbounded")
	require.Contains(t, out, "Bounded(2)")
	require.Contains(t, out, "192/192")
}

func TestRun_invalidFlags(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "run", "--queues", "bounded(0)")
	require.Error(t, err)

	_, err = execute(t, "run", "--queues", "unbounded,4611686018427387904")
	require.ErrorContains(t, err, "must not exceed")

	_, err = execute(t, "run", "--strategy", "airdrop")
	require.ErrorContains(t, err, "airdrop")

	_, err = execute(t, "run", "--iterations", "0")
	require.ErrorContains(t, err, "iterations must be positive")

	_, err = execute(t, "run", "--log-level", "loud")
	require.ErrorContains(t, err, "invalid log level")
}

func TestApplySweepFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
txs: 384
batch_size: 64
queues: [unbounded, 1024, "Bounded(8)"]
iterations: 3
strategy: program
scheme: secp256k1
verify: false
attempt_timeout: 250ms
deadline: 5s
seed: 11
`), 0o600))

	o := defaultRunOptions()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	bindRunFlags(fs, &o)
	require.NoError(t, fs.Parse([]string{"--config", path, "--iterations", "5"}))
	require.NoError(t, applySweepFile(fs, &o))

	require.Equal(t, 5, o.Iterations, "explicit flag must win over the file")
	require.Equal(t, 384, o.TxCount)
	require.Equal(t, 64, o.BatchSize)
	require.Equal(t, []gqueue.Config{gqueue.Unbounded(), gqueue.Bounded(1024), gqueue.Bounded(8)}, []gqueue.Config(o.Queues))
	require.Equal(t, "program", o.Strategy)
	require.False(t, o.Verify)
	require.Equal(t, 250*time.Millisecond, o.AttemptTimeout)
	require.Equal(t, uint64(11), o.Seed)

	cfg, err := o.BenchConfig()
	require.NoError(t, err)
	require.Equal(t, gtxgen.StrategyProgram, cfg.Strategy)
	require.Equal(t, gtxgen.SchemeSecp256k1, cfg.Scheme)
}

func TestRun_flagsOverrideSweepFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
txs: 32
batch_size: 8
queues: unbounded
iterations: 1
`), 0o600))

	out, err := execute(t,
		"run",
		"--config", path,
		"--queues", "4",
		"--log-level", "error",
	)
	require.NoError(t, err)
	require.Contains(t, out, "32 txs in batches of 8, 1 iterations")
	require.Contains(t, out, "Bounded(4)")
	require.NotContains(t, out, "Unbounded")
}

func TestRun_unknownSweepKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("txs: 10\nqueue_size: 5\n"), 0o600))

	_, err := execute(t, "run", "--config", path)
	require.ErrorContains(t, err, "queue_size")
}

func TestSeededRand(t *testing.T) {
	t.Parallel()

	require.Nil(t, runOptions{}.SeededRand())

	a := runOptions{Seed: 3}.SeededRand()
	b := runOptions{Seed: 3}.SeededRand()
	c := runOptions{Seed: 4}.SeededRand()
	require.Equal(t, a.Uint64(), b.Uint64())
	require.NotEqual(t, a.Uint64(), c.Uint64())
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Regexp(t, `^gqbench \S+ \w+/\w+ go`, out)
}

func TestMux(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := gbench.NewMetrics(reg)
	require.NoError(t, err)

	d, err := gbench.New(
		gtest.NewLogger(t), gbench.DefaultConfig(),
		gbench.WithMetrics(m), gbench.WithName("brave-walrus"),
	)
	require.NoError(t, err)

	h := newMux(gtest.NewLogger(t), metricsServerConfig{Gatherer: reg, Driver: d})

	t.Run("state", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp stateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, stateResponse{Run: "brave-walrus", State: "Idle"}, resp)
	})

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/state", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestBenchConfig_txCountFollowsWorkers(t *testing.T) {
	t.Parallel()

	o := defaultRunOptions()
	o.BatchSize = 16
	o.EngineWorkers = 2

	cfg, err := o.BenchConfig()
	require.NoError(t, err)
	require.Equal(t, 16*2*8, cfg.TxCount)

	o.EngineWorkers = 6
	cfg, err = o.BenchConfig()
	require.NoError(t, err)
	require.Equal(t, 16*6*8, cfg.TxCount)

	o.TxCount = 50
	cfg, err = o.BenchConfig()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.TxCount)
}
