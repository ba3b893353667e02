package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MetricsRecorder is the CloudWatch side of business metrics. Implemented by
// awspkg.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// BusinessMetrics counts domain events in Prometheus and mirrors them to
// CloudWatch when a recorder is configured. A nil *BusinessMetrics is valid
// and records nothing.
type BusinessMetrics struct {
	events *prometheus.CounterVec
	cloud  MetricsRecorder
	logger *zap.Logger
}

func NewBusinessMetrics(reg prometheus.Registerer, cloud MetricsRecorder, logger *zap.Logger) *BusinessMetrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oranew",
		Name:      "business_events_total",
		Help:      "Domain events by name.",
	}, []string{"event"})
	if reg != nil {
		reg.MustRegister(events)
	}
	return &BusinessMetrics{events: events, cloud: cloud, logger: logger}
}

// Inc counts one occurrence of metric.
func (m *BusinessMetrics) Inc(metric string) {
	m.Add(metric, 1)
}

// Add counts n occurrences of metric.
func (m *BusinessMetrics) Add(metric string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.events.WithLabelValues(metric).Add(float64(n))

	if m.cloud == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := 0; i < n; i++ {
			if err := m.cloud.RecordCount(ctx, metric, nil); err != nil {
				m.logger.Debug("cloudwatch metric not recorded", zap.String("metric", metric), zap.Error(err))
				return
			}
		}
	}()
}
