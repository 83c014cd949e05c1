// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_bus_published_total",
		Help: "Total number of stage bus messages by kind",
	}, []string{"kind"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hwenc_bus_dropped_total",
		Help: "Total number of stage bus message drops by kind and reason",
	}, []string{"kind", "reason"})
)

// IncBusPublished records a published bus message.
func IncBusPublished(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	BusPublishedTotal.WithLabelValues(kind).Inc()
}

// IncBusDrop records a dropped bus message for the given kind.
func IncBusDrop(kind string) {
	IncBusDropReason(kind, "full")
}

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(kind, reason string) {
	if kind == "" {
		kind = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(kind, reason).Inc()
}
