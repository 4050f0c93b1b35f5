package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	InvoicesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_invoice_trigger_total",
		Help: "Meter lock trigger results (created, exists, vacant, already_locked).",
	}, []string{"result"})

	InvoiceTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_invoice_transitions_total",
		Help: "Invoice status transitions by target status and source (tenant, manager, gateway).",
	}, []string{"to", "source"})

	GatewayCreateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_create_total",
		Help: "Payment URL creation attempts by gateway and result.",
	}, []string{"gateway", "result"})

	GatewayCreateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_create_duration_seconds",
		Help:    "Time spent building a payment URL, including any gateway API call.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"gateway"})

	InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_inbound_messages_total",
		Help: "Gateway returns and callbacks by gateway, kind (return, callback) and verification result.",
	}, []string{"gateway", "kind", "result"})

	Reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconciliations_total",
		Help: "Reconciled outcomes by gateway, outcome and upsert result.",
	}, []string{"gateway", "outcome", "upsert"})

	AmountMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_amount_mismatch_total",
		Help: "Verified gateway messages whose amount disagreed with the invoice total.",
	}, []string{"gateway"})

	DecryptFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldcrypt_decrypt_failures_total",
		Help: "PII fields that no configured key could open, by call site.",
	}, []string{"site"})
)
