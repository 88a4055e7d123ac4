package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Attempt paths
const (
	PathRefresh   string = "refresh"
	PathAuthorize string = "authorize"
	PathFallback  string = "fallback"
)

// Attempt outcomes
const (
	OutcomeSuccess string = "success"
	OutcomeFailure string = "failure"
	OutcomeSkipped string = "skipped"
)

// PrometheusRecorder exposes the activity of the token lifecycle manager as prometheus metrics
type PrometheusRecorder struct {
	attempts      *prometheus.CounterVec
	pending       prometheus.Gauge
	renewals      prometheus.Counter
	renewalDelays prometheus.Histogram
}

type PrometheusRecorderOption func(*prometheusRecorderConfig) error

type prometheusRecorderConfig struct {
	registerer prometheus.Registerer
	namespace  string
}

// WithRegisterer sets where the metrics are registered, the default registerer is used otherwise
func WithRegisterer(registerer prometheus.Registerer) PrometheusRecorderOption {
	return func(c *prometheusRecorderConfig) error {
		c.registerer = registerer
		return nil
	}
}

func WithNamespace(namespace string) PrometheusRecorderOption {
	return func(c *prometheusRecorderConfig) error {
		c.namespace = namespace
		return nil
	}
}

func NewPrometheusRecorder(options ...PrometheusRecorderOption) (*PrometheusRecorder, error) {
	cfg := prometheusRecorderConfig{registerer: prometheus.DefaultRegisterer, namespace: "authsession"}
	for _, opt := range options {
		err := opt(&cfg)
		if err != nil {
			return &PrometheusRecorder{}, err
		}
	}
	r := &PrometheusRecorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "attempts_total",
			Help:      "Authorization and refresh attempts by path and outcome.",
		}, []string{"path", "outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.namespace,
			Name:      "pending",
			Help:      "1 while this instance holds the pending flag.",
		}),
		renewals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "renewals_armed_total",
			Help:      "Number of times the renewal timer was armed.",
		}),
		renewalDelays: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "renewal_delay_seconds",
			Help:      "Delay of the armed renewals.",
			Buckets:   []float64{1, 10, 60, 300, 900, 3600, 14400, 86400},
		}),
	}
	for _, collector := range []prometheus.Collector{r.attempts, r.pending, r.renewals, r.renewalDelays} {
		err := cfg.registerer.Register(collector)
		if err != nil {
			return &PrometheusRecorder{}, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) Attempt(path string, outcome string) {
	r.attempts.WithLabelValues(path, outcome).Inc()
}

func (r *PrometheusRecorder) Pending(pending bool) {
	if pending {
		r.pending.Set(1)
		return
	}
	r.pending.Set(0)
}

func (r *PrometheusRecorder) RenewalArmed(delay time.Duration) {
	r.renewals.Inc()
	r.renewalDelays.Observe(delay.Seconds())
}
