package gbench

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/gordian-engine/gqbench/gqueue"
	"github.com/gordian-engine/gqbench/gtx/gtxgen"
	"github.com/gordian-engine/gqbench/gverify"
	"github.com/olekukonko/tablewriter"
)

// Result is the outcome of benchmarking one queue configuration.
type Result struct {
	Label string
	Queue gqueue.Config

	// Elapsed holds one submission time per completed iteration.
	Elapsed []time.Duration

	// Submitted is the total number of transactions sent across iterations.
	Submitted int

	// BlockedSends counts sends that found a bounded queue full.
	BlockedSends uint64

	// Verification is nil when verification was disabled
	// or never reached.
	Verification *gverify.Record

	Err error
}

// Total returns the sum of all iteration times.
func (r Result) Total() time.Duration {
	var total time.Duration
	for _, e := range r.Elapsed {
		total += e
	}
	return total
}

// Mean returns the average iteration time, or zero with no iterations.
func (r Result) Mean() time.Duration {
	if len(r.Elapsed) == 0 {
		return 0
	}
	return r.Total() / time.Duration(len(r.Elapsed))
}

// Min returns the fastest iteration time, or zero with no iterations.
func (r Result) Min() time.Duration {
	if len(r.Elapsed) == 0 {
		return 0
	}
	return slices.Min(r.Elapsed)
}

// Max returns the slowest iteration time, or zero with no iterations.
func (r Result) Max() time.Duration {
	if len(r.Elapsed) == 0 {
		return 0
	}
	return slices.Max(r.Elapsed)
}

// Throughput returns submitted transactions per second of submission time.
func (r Result) Throughput() float64 {
	total := r.Total()
	if total <= 0 {
		return 0
	}
	return float64(r.Submitted) / total.Seconds()
}

// Report collects the results of a sweep.
type Report struct {
	Name string

	TxCount    int
	BatchSize  int
	Iterations int
	Strategy   gtxgen.Strategy

	Results []Result
}

// Failed reports whether any queue configuration failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return true
		}
	}
	return false
}

// Err joins the errors of every failed configuration, labeled by queue.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Label, res.Err))
		}
	}
	return errors.Join(errs...)
}

// WriteTable renders one row per queue configuration.
func (r *Report) WriteTable(w io.Writer) {
	fmt.Fprintf(
		w, "Run %s: %d txs in batches of %d, %d iterations, %s strategy\n",
		r.Name, r.TxCount, r.BatchSize, r.Iterations, r.Strategy,
	)

	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"Queue", "Iters", "Mean", "Min", "Max", "Tx/s", "Blocked", "Verified", "Status"})
	t.SetAutoFormatHeaders(false)
	t.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, res := range r.Results {
		verified := "-"
		if v := res.Verification; v != nil {
			verified = fmt.Sprintf("%d/%d", v.Got, v.Want)
		}
		status := "ok"
		if res.Err != nil {
			status = res.Err.Error()
		}
		t.Append([]string{
			res.Label,
			strconv.Itoa(len(res.Elapsed)),
			res.Mean().String(),
			res.Min().String(),
			res.Max().String(),
			strconv.FormatFloat(res.Throughput(), 'f', 0, 64),
			strconv.FormatUint(res.BlockedSends, 10),
			verified,
			status,
		})
	}

	t.Render()
}
