package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendora",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendora",
			Name:      "webhook_events_total",
			Help:      "Gateway webhook events by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	gatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vendora",
			Name:      "gateway_calls_total",
			Help:      "Outbound payment gateway calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	sweeperTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vendora",
			Name:      "sweeper_transitions_total",
			Help:      "Bookings promoted to completed by the reconciliation sweeper.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, webhookEvents, gatewayCalls, sweeperTransitions)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncWebhookEvent records a webhook dispatch outcome for an event kind.
func IncWebhookEvent(kind, outcome string) {
	webhookEvents.WithLabelValues(kind, outcome).Inc()
}

// IncGatewayCall records an outbound gateway call outcome.
func IncGatewayCall(operation, outcome string) {
	gatewayCalls.WithLabelValues(operation, outcome).Inc()
}

// AddSweeperTransitions adds the count of bookings a sweep promoted.
func AddSweeperTransitions(count int) {
	if count > 0 {
		sweeperTransitions.Add(float64(count))
	}
}
