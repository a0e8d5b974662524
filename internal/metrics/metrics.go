// Package metrics exposes Prometheus collectors for the catalog cache, the
// recommendation composer and completion providers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/completion"
	"github.com/kalambet/agora/internal/recommend"
)

type Metrics struct {
	catalogFetches     *prometheus.CounterVec
	catalogFetchTime   prometheus.Histogram
	catalogAssistants  prometheus.Gauge
	staleServed        prometheus.Counter
	recommendations    *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec
}

var (
	_ catalog.Observer    = (*Metrics)(nil)
	_ recommend.Observer  = (*Metrics)(nil)
	_ completion.Observer = (*Metrics)(nil)
)

// New registers all collectors with registerer, or with the default
// registerer when nil.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		catalogFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_catalog_fetch_total",
				Help: "Upstream catalog fetches by outcome",
			},
			[]string{"status"},
		),
		catalogFetchTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agora_catalog_fetch_duration_seconds",
				Help:    "Duration of upstream catalog fetches in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		catalogAssistants: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agora_catalog_assistants",
				Help: "Number of assistants in the current snapshot",
			},
		),
		staleServed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agora_catalog_stale_served_total",
				Help: "Times a stale snapshot was served after a failed refresh",
			},
		),
		recommendations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_recommendations_total",
				Help: "Recommendation results by mode",
			},
			[]string{"mode"},
		),
		completionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agora_completion_duration_seconds",
				Help:    "Latency of language model completions in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "status"},
		),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (m *Metrics) ObserveCatalogFetch(d time.Duration, err error) {
	m.catalogFetches.WithLabelValues(status(err)).Inc()
	m.catalogFetchTime.Observe(d.Seconds())
}

func (m *Metrics) SetCatalogSize(n int) {
	m.catalogAssistants.Set(float64(n))
}

func (m *Metrics) IncStaleServed() {
	m.staleServed.Inc()
}

func (m *Metrics) ObserveRecommendation(mode string) {
	m.recommendations.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveCompletion(provider string, d time.Duration, err error) {
	m.completionDuration.WithLabelValues(provider, status(err)).Observe(d.Seconds())
}
