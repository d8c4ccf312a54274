package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics counts post-commit side-effect failures per sink.
type DispatchMetrics struct {
	failures *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_failures_total",
		Help: "Failed post-commit notification sinks.",
	}, []string{"sink"})
	reg.MustRegister(failures)
	return &DispatchMetrics{failures: failures}
}

func (m *DispatchMetrics) IncFailure(sink string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(sink)).Inc()
}
