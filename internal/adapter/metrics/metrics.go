package metrics

import (
	"strconv"
	"time"

	"valutatrade/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements ports.Metrics.
type Prometheus struct {
	RateLookups      *prometheus.CounterVec
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	Trades           *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// expose them through promhttp.Handler.
func New(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		RateLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valutatrade_rate_lookups_total",
				Help: "Rate cache lookups by outcome (hit, fetched, stale, unavailable)",
			},
			[]string{"outcome"},
		),
		ProviderCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valutatrade_provider_calls_total",
				Help: "Calls to external rate providers",
			},
			[]string{"source", "success"},
		),
		ProviderDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "valutatrade_provider_call_duration_seconds",
				Help:    "Duration of external rate provider calls, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),
		Trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "valutatrade_trades_total",
				Help: "Trade attempts by direction and result code",
			},
			[]string{"direction", "result"},
		),
	}
}

func (p *Prometheus) RateLookup(outcome string) {
	p.RateLookups.WithLabelValues(outcome).Inc()
}

func (p *Prometheus) ProviderCall(source string, success bool, elapsed time.Duration) {
	p.ProviderCalls.WithLabelValues(source, strconv.FormatBool(success)).Inc()
	p.ProviderDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (p *Prometheus) Trade(direction domain.Direction, result string) {
	p.Trades.WithLabelValues(string(direction), result).Inc()
}
