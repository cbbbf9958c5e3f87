package gqcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/gordian-engine/gqbench/gbench"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRunCmd(newLogger func(io.Writer) *slog.Logger) *cobra.Command {
	o := defaultRunOptions()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sweep queue configurations and report submission times",
		Long: `Generate a transaction workload once, then for each queue configuration
submit it repeatedly to a fresh processing engine, timing every submission.

With --verify, each configuration must see the engine report exactly
the submitted number of transactions before its deadline.
The command exits non-zero if any configuration fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.ConfigFile != "" {
				if err := applySweepFile(cmd.Flags(), &o); err != nil {
					return err
				}
			}
			return runBenchmark(cmd.Context(), newLogger(cmd.ErrOrStderr()), cmd.OutOrStdout(), o)
		},
	}

	bindRunFlags(cmd.Flags(), &o)

	return cmd
}

func bindRunFlags(f *pflag.FlagSet, o *runOptions) {
	f.IntVar(&o.TxCount, "txs", o.TxCount, "transactions generated and submitted per iteration (0: batch-size × engine-workers × 8)")
	f.IntVar(&o.BatchSize, "batch-size", o.BatchSize, "maximum transactions per packet batch")
	f.Var(&o.Queues, "queues", "comma-separated queue configs: unbounded or a capacity")
	f.IntVar(&o.Iterations, "iterations", o.Iterations, "timed submissions per queue config")
	f.StringVar(&o.Strategy, "strategy", o.Strategy, "workload strategy (transfer, program)")
	f.StringVar(&o.Scheme, "scheme", o.Scheme, "signature scheme for program strategy (ed25519, secp256k1)")
	f.StringVar(&o.ChainID, "chain-id", o.ChainID, "chain ID seeding the anchor hash")
	f.BoolVar(&o.Verify, "verify", o.Verify, "verify the engine reports exactly the submitted count")
	f.DurationVar(&o.AttemptTimeout, "attempt-timeout", o.AttemptTimeout, "timeout for each verification receive")
	f.DurationVar(&o.Deadline, "deadline", o.Deadline, "overall verification deadline per queue config")
	f.DurationVar(&o.Settle, "settle", o.Settle, "keep receiving this long after the expected count to catch overshoot")
	f.IntVar(&o.EngineWorkers, "engine-workers", o.EngineWorkers, "processing engine worker count")
	f.Uint64Var(&o.Seed, "seed", o.Seed, "seed for reproducible workloads (0 for random)")
	f.StringVar(&o.ConfigFile, "config", "", "YAML sweep file; explicit flags take precedence")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
}

// applySweepFile loads the sweep file named by o.ConfigFile,
// then re-applies any flags set on the command line so that they win.
func applySweepFile(fs *pflag.FlagSet, o *runOptions) error {
	explicit := make(map[string]string)
	fs.Visit(func(fl *pflag.Flag) {
		explicit[fl.Name] = fl.Value.String()
	})

	if err := loadSweepFile(o.ConfigFile, o); err != nil {
		return err
	}

	for name, val := range explicit {
		if err := fs.Set(name, val); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	return nil
}

func runBenchmark(ctx context.Context, log *slog.Logger, out io.Writer, o runOptions) error {
	cfg, err := o.BenchConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var opts []gbench.Option
	if r := o.SeededRand(); r != nil {
		opts = append(opts, gbench.WithRand(r))
	}

	var reg *prometheus.Registry
	if o.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())

		m, err := gbench.NewMetrics(reg)
		if err != nil {
			return err
		}
		opts = append(opts, gbench.WithMetrics(m))
	}

	d, err := gbench.New(log, cfg, opts...)
	if err != nil {
		return err
	}

	if reg != nil {
		ln, err := net.Listen("tcp", o.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen for metrics: %w", err)
		}

		srvCtx, cancel := context.WithCancel(ctx)
		srv := newMetricsServer(srvCtx, log.With("sys", "http"), metricsServerConfig{
			Listener: ln,
			Gatherer: reg,
			Driver:   d,
		})
		defer srv.Wait()
		defer cancel()

		log.Info("Serving metrics", "addr", ln.Addr().String())
	}

	report, err := d.Run(ctx)
	if report != nil {
		report.WriteTable(out)
	}
	if err != nil {
		return err
	}

	return report.Err()
}
