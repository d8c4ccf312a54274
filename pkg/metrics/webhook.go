package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts reconciler results and orphaned payments.
type WebhookMetrics struct {
	events  *prometheus.CounterVec
	orphans *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Payment provider events by gateway, kind and result.",
	}, []string{"gateway", "kind", "result"})
	orphans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_orphans_total",
		Help: "Captured payments that could not be materialized into an order.",
	}, []string{"gateway"})
	reg.MustRegister(events, orphans)
	return &WebhookMetrics{events: events, orphans: orphans}
}

func (m *WebhookMetrics) IncEvent(gateway, kind, result string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(gateway), normalizeLabel(kind), normalizeLabel(result)).Inc()
}

func (m *WebhookMetrics) IncOrphan(gateway string) {
	if m == nil || m.orphans == nil {
		return
	}
	m.orphans.WithLabelValues(normalizeLabel(gateway)).Inc()
}
