package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentsRecorded     *prometheus.CounterVec
	duplicatesSuppressed *prometheus.CounterVec
	webhookEvents        *prometheus.CounterVec
	webhookRejected      *prometheus.CounterVec
	processorAPIErrors   prometheus.Counter
}

// New configures the domain instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		paymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_payments_recorded_total",
			Help: "Payments recorded against the invoice ledger.",
		}, []string{"source"}),
		duplicatesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_duplicate_payments_suppressed_total",
			Help: "Recording attempts suppressed because the ledger entry already existed.",
		}, []string{"source"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_webhook_events_total",
			Help: "Signature-valid webhook events received by type.",
		}, []string{"event_type"}),
		webhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_webhook_rejected_total",
			Help: "Webhook deliveries rejected at the transport boundary.",
		}, []string{"reason"}),
		processorAPIErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paygate_processor_api_errors_total",
			Help: "Failed outbound calls to the payment processor API.",
		}),
	}

	reg.MustRegister(
		m.paymentsRecorded,
		m.duplicatesSuppressed,
		m.webhookEvents,
		m.webhookRejected,
		m.processorAPIErrors,
	)
	return m
}

func (m *Metrics) RecordPayment(source string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(normalize(source)).Inc()
}

func (m *Metrics) RecordDuplicateSuppressed(source string) {
	if m == nil {
		return
	}
	m.duplicatesSuppressed.WithLabelValues(normalize(source)).Inc()
}

func (m *Metrics) RecordWebhookEvent(eventType string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalize(eventType)).Inc()
}

func (m *Metrics) RecordWebhookRejected(reason string) {
	if m == nil {
		return
	}
	m.webhookRejected.WithLabelValues(normalize(reason)).Inc()
}

func (m *Metrics) RecordProcessorAPIError() {
	if m == nil {
		return
	}
	m.processorAPIErrors.Inc()
}

func normalize(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}

var Module = fx.Module("observability.metrics",
	fx.Provide(func() *Metrics {
		return New(prometheus.DefaultRegisterer)
	}),
)
