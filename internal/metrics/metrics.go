// Package metrics exposes Prometheus collectors for snipe runs.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/resy-sniper/internal/snipe"
)

const namespace = "resysnipe"

// Run outcomes.
const (
	OutcomeFound  = "found"
	OutcomeBooked = "booked"
	OutcomeMissed = "missed"
	OutcomeError  = "error"
)

const outcomeSuccess = "success"

// Collector groups the snipe collectors. It implements snipe.Observer.
type Collector struct {
	launched    prometheus.Counter
	attempts    *prometheus.CounterVec
	attemptSecs prometheus.Histogram
	inflight    prometheus.Gauge
	runs        *prometheus.CounterVec
	runSecs     prometheus.Histogram
}

var _ snipe.Observer = (*Collector)(nil)

func New() *Collector {
	return &Collector{
		launched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_launched_total",
			Help:      "Probe attempts launched.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Terminal probe attempts, partitioned by result.",
		}, []string{"result"}),
		attemptSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_seconds",
			Help:      "Probe attempt latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attempts_in_flight",
			Help:      "Probe attempts launched but not yet terminal.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Snipe runs, partitioned by outcome.",
		}, []string{"outcome"}),
		runSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_seconds",
			Help:      "Snipe run latency in seconds, from first launch to join.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}
}

// Register attaches the collectors to reg. Collectors that are already
// registered are skipped.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.launched, c.attempts, c.attemptSecs, c.inflight, c.runs, c.runSecs} {
		if err := reg.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func (c *Collector) AttemptLaunched(int) {
	c.launched.Inc()
	c.inflight.Inc()
}

func (c *Collector) AttemptFinished(o snipe.Outcome) {
	// unlaunched attempts finish without a launch time
	if !o.LaunchedAt.IsZero() {
		c.inflight.Dec()
		c.attemptSecs.Observe(o.Duration.Seconds())
	}
	c.attempts.WithLabelValues(resultLabel(o)).Inc()
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(outcome string, d time.Duration) {
	switch outcome {
	case OutcomeFound, OutcomeBooked, OutcomeMissed:
	default:
		outcome = OutcomeError
	}
	c.runs.WithLabelValues(outcome).Inc()
	if d < 0 {
		d = 0
	}
	c.runSecs.Observe(d.Seconds())
}

func resultLabel(o snipe.Outcome) string {
	if o.Succeeded() {
		return outcomeSuccess
	}
	return o.Failure.Kind.String()
}
