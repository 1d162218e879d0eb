package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gateDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqua",
			Subsystem: "session",
			Name:      "gate_denials_total",
			Help:      "Actions refused by the entitlement gate.",
		},
		[]string{"op"},
	)

	verificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqua",
			Subsystem: "session",
			Name:      "verifications_total",
			Help:      "Identity verification attempts by outcome.",
		},
		[]string{"outcome"},
	)

	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqua",
			Subsystem: "session",
			Name:      "sends_total",
			Help:      "Messages sent by outcome.",
		},
		[]string{"outcome"},
	)

	staleDiscardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqua",
			Subsystem: "session",
			Name:      "stale_discards_total",
			Help:      "Remote results dropped because the identity changed meanwhile.",
		},
		[]string{"kind"},
	)
)
