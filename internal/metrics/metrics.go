// Package metrics declares the Prometheus instruments for the sync protocol.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checklist_mutations_total",
		Help: "Gateway mutations by operation and result",
	}, []string{"op", "result"})

	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checklist_broadcasts_total",
		Help: "Invalidation signals fanned out to local observers",
	})

	Observers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checklist_observers",
		Help: "Currently registered observers",
	})

	SignalsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checklist_signals_dropped_total",
		Help: "Signals not queued because an observer's buffer was full",
	})

	RelayPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checklist_relay_publish_failures_total",
		Help: "Relay publishes that fell back to local notification",
	})

	Reconciles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checklist_reconcile_total",
		Help: "Mirror reconciliations by result",
	}, []string{"result"})
)
