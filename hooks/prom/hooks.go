// Package promhook exports data source events as Prometheus metrics.
package promhook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/docsource"
)

// Hooks holds the metrics. Keys are never used as label values.
type Hooks struct {
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CacheErrors   *prometheus.CounterVec
	SelfHeals     *prometheus.CounterVec
	SetRejected   prometheus.Counter
	StaleSkipped  prometheus.Counter
	Batches       *prometheus.CounterVec
	BatchSize     *prometheus.HistogramVec
	BatchDuration *prometheus.HistogramVec
}

var _ docsource.Hooks = (*Hooks)(nil)

// New registers the metrics on reg; nil uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Hooks{
		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Lookups answered from the cache",
			},
			[]string{"collection", "kind"},
		),
		CacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Lookups that went to storage",
			},
			[]string{"collection", "kind"},
		),
		CacheErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Cache operations that failed and were swallowed",
			},
			[]string{"op"},
		),
		SelfHeals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_self_heals_total",
				Help:      "Cache entries dropped on read",
			},
			[]string{"reason"},
		),
		SetRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_set_rejected_total",
			Help:      "Cache writes rejected by the provider",
		}),
		StaleSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stale_writes_skipped_total",
			Help:      "Cache writes dropped because the key was deleted mid-fetch",
		}),
		Batches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batched identifier fetches",
			},
			[]string{"collection", "result"},
		),
		BatchSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_keys",
				Help:      "Distinct identifiers per batched fetch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"collection"},
		),
		BatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of batched identifier fetches",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collection"},
		),
	}
}

func (h *Hooks) CacheHit(collection, kind string) {
	h.CacheHits.WithLabelValues(collection, kind).Inc()
}

func (h *Hooks) CacheMiss(collection, kind string) {
	h.CacheMisses.WithLabelValues(collection, kind).Inc()
}

func (h *Hooks) CacheError(op, _ string, _ error) { h.CacheErrors.WithLabelValues(op).Inc() }
func (h *Hooks) SelfHeal(_, reason string)        { h.SelfHeals.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)       { h.SetRejected.Inc() }
func (h *Hooks) StaleWriteSkipped(string)         { h.StaleSkipped.Inc() }

func (h *Hooks) BatchDispatched(collection string, keys int, err error, took time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.Batches.WithLabelValues(collection, result).Inc()
	h.BatchSize.WithLabelValues(collection).Observe(float64(keys))
	h.BatchDuration.WithLabelValues(collection).Observe(took.Seconds())
}
