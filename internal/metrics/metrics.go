// Package metrics exposes the agent's Prometheus instrumentation on an
// optional debug listener.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionsTotal counts decisions by source and risk level.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spendguard",
		Name:      "decisions_total",
		Help:      "Risk decisions produced, by source and risk level.",
	}, []string{"source", "risk"})

	// InterventionsTotal counts completed intervention sessions by outcome.
	InterventionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spendguard",
		Name:      "interventions_total",
		Help:      "Intervention sessions completed, by outcome.",
	}, []string{"outcome"})

	// ExternalFailures counts reasoning-service calls that fell through to
	// the rules path, by failure kind.
	ExternalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spendguard",
		Name:      "external_failures_total",
		Help:      "Reasoning-service failures that triggered the rules fallback.",
	}, []string{"kind"})

	// ExtractionFallbacks counts pages where the selector probes failed
	// and the universal text scan supplied the amount.
	ExtractionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "spendguard",
		Name:      "extraction_fallbacks_total",
		Help:      "Extractions that needed the universal text-scan fallback.",
	})

	// PurchaseEvents counts purchase-control activations seen, by site.
	PurchaseEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spendguard",
		Name:      "purchase_events_total",
		Help:      "Purchase-control activations observed, by site profile.",
	}, []string{"site"})
)

// Serve starts the metrics listener. Runs until the listener fails; meant
// to be launched on its own goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics listener stopped: %v", err)
	}
}
