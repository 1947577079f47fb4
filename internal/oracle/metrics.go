package oracle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	backendCPU = "cpu"
	backendGPU = "gpu"
)

// Metrics exposes step timings and outcomes.
type Metrics struct {
	duration   *prometheus.HistogramVec
	steps      prometheus.Counter
	mismatches prometheus.Counter
}

// NewMetrics creates the oracle metrics and registers them on reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "msm",
			Name:      "duration_seconds",
			Help:      "Wall-clock time of one multiexp call, by backend.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 20),
		}, []string{"backend"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msm",
			Name:      "steps_total",
			Help:      "Number of ladder steps where both backends returned.",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msm",
			Name:      "mismatches_total",
			Help:      "Number of steps where the backends disagreed.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.duration, m.steps, m.mismatches} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(backend string, d time.Duration) {
	m.duration.WithLabelValues(backend).Observe(d.Seconds())
}
