package gbench

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports benchmark progress to Prometheus.
// A nil *Metrics records nothing.
type Metrics struct {
	submitSeconds *prometheus.HistogramVec
	submittedTxs  *prometheus.CounterVec
	verifiedTxs   *prometheus.CounterVec
	failures      *prometheus.CounterVec
}

// NewMetrics creates the benchmark collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gqbench",
			Name:      "submit_seconds",
			Help:      "Time to submit one iteration's batches to the queue.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}, []string{"queue"}),
		submittedTxs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqbench",
			Name:      "submitted_txs_total",
			Help:      "Transactions submitted to the queue.",
		}, []string{"queue"}),
		verifiedTxs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqbench",
			Name:      "verified_txs_total",
			Help:      "Transactions reported by the engine during verification.",
		}, []string{"queue"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gqbench",
			Name:      "failed_runs_total",
			Help:      "Queue configurations whose benchmark failed.",
		}, []string{"queue"}),
	}

	for _, c := range []prometheus.Collector{
		m.submitSeconds, m.submittedTxs, m.verifiedTxs, m.failures,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register benchmark metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) observeSubmit(queue string, elapsed time.Duration, txs int) {
	if m == nil {
		return
	}
	m.submitSeconds.WithLabelValues(queue).Observe(elapsed.Seconds())
	m.submittedTxs.WithLabelValues(queue).Add(float64(txs))
}

func (m *Metrics) recordVerified(queue string, txs int) {
	if m == nil {
		return
	}
	m.verifiedTxs.WithLabelValues(queue).Add(float64(txs))
}

func (m *Metrics) recordFailure(queue string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(queue).Inc()
}
