// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus instruments for provider calls, the
// embedding cache, funnel sizes, and decisions.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pdiddy/geolocate/pkg/types"
)

var (
	ProviderCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocate_provider_calls_total",
		Help: "External capability calls by provider and outcome",
	}, []string{"provider", "outcome"})
	ProviderCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geolocate_provider_call_duration_seconds",
		Help:    "External capability call latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"provider"})
	EmbeddingCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocate_embedding_cache_total",
		Help: "Embedding cache lookups by result (hit, tier_hit, miss)",
	}, []string{"result"})
	FunnelCandidates = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geolocate_candidates",
		Help:    "Candidates surviving each funnel stage",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
	}, []string{"stage"})
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocate_decisions_total",
		Help: "Pipeline decisions by status",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(ProviderCallsTotal)
	prometheus.MustRegister(ProviderCallDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(FunnelCandidates)
	prometheus.MustRegister(DecisionsTotal)
}

// Outcome classifies a call error for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}

// ObserveCall records one provider call that started at start.
func ObserveCall(provider string, start time.Time, err error) {
	ProviderCallsTotal.WithLabelValues(provider, Outcome(err)).Inc()
	ProviderCallDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
