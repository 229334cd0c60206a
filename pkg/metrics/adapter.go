package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AdapterMetrics counts backend adapter failures by backend type and
// error code.
type AdapterMetrics interface {
	OperationFailed(backend, code string)
}

type adapterMetrics struct {
	failures *prometheus.CounterVec
}

func NewAdapterMetrics() AdapterMetrics {
	if !IsEnabled() {
		return noopAdapterMetrics{}
	}

	return &adapterMetrics{
		failures: promauto.With(GetRegistry()).NewCounterVec(
			prometheus.CounterOpts{
				Name: "omnidrive_adapter_failures_total",
				Help: "Total failed backend adapter operations",
			},
			[]string{"backend", "code"},
		),
	}
}

func (m *adapterMetrics) OperationFailed(backend, code string) {
	m.failures.WithLabelValues(backend, code).Inc()
}

type noopAdapterMetrics struct{}

func (noopAdapterMetrics) OperationFailed(string, string) {}
