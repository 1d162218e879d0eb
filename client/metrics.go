package client

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	clierrors "github.com/B4xAbhishek/aqua-ai-answers/client/internal/errors"
	"github.com/B4xAbhishek/aqua-ai-answers/client/internal/types"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "aqua_client",
		Name:      "requests_total",
		Help:      "Backend calls by endpoint and outcome.",
	},
	[]string{"endpoint", "outcome"},
)

func observe(endpoint string, err error) {
	requestsTotal.WithLabelValues(endpoint, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrNotAuthenticated):
		return "unauthenticated"
	case errors.Is(err, types.ErrMalformedResponse):
		return "malformed"
	case clierrors.IsIrrecoverable(err):
		return "rejected"
	default:
		return "unavailable"
	}
}
