package session

import "github.com/prometheus/client_golang/prometheus"

var (
	initOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gemmachat",
			Subsystem: "session",
			Name:      "init_total",
			Help:      "Completed engine initializations by outcome",
		},
		[]string{"outcome"},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gemmachat",
			Subsystem: "session",
			Name:      "generations_total",
			Help:      "Generation requests by result (done, error, busy, degraded, abandoned)",
		},
		[]string{"result"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gemmachat",
			Subsystem: "session",
			Name:      "generation_duration_seconds",
			Help:      "Time from admission to the terminal event",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	generationInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gemmachat",
			Subsystem: "session",
			Name:      "generation_inflight",
			Help:      "1 while a generation occupies the slot",
		},
	)

	tokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gemmachat",
			Subsystem: "session",
			Name:      "tokens_total",
			Help:      "Tokens delivered to listeners",
		},
	)

	staleEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gemmachat",
			Subsystem: "session",
			Name:      "stale_events_total",
			Help:      "Engine events discarded because their generation was no longer in the slot",
		},
	)

	listenerPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gemmachat",
			Subsystem: "session",
			Name:      "listener_panics_total",
			Help:      "Listener callbacks that panicked on the dispatcher",
		},
	)
)

func init() {
	prometheus.MustRegister(initOutcomes, generationsTotal, generationDuration, generationInflight,
		tokensTotal, staleEventsTotal, listenerPanics)
}
