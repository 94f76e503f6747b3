package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Config holds metrics configuration.
type Config struct {
	EnableSchemeLabel bool
}

// Metrics holds all application metrics.
type Metrics struct {
	config                      Config
	messagesTotal               *prometheus.CounterVec
	messageDuration             *prometheus.HistogramVec
	messageBytes                *prometheus.CounterVec
	storeOperationsTotal        *prometheus.CounterVec
	storeOperationDuration      *prometheus.HistogramVec
	storeOperationErrors        *prometheus.CounterVec
	cryptoOperationsTotal       *prometheus.CounterVec
	cryptoOperationDuration     *prometheus.HistogramVec
	cryptoOperationErrors       *prometheus.CounterVec
	cryptoBytes                 *prometheus.CounterVec
	rotatedReads                 *prometheus.CounterVec
	activeSessions               prometheus.Gauge
	goroutines                   prometheus.Gauge
	memoryAllocBytes              prometheus.Gauge
	memorySysBytes                prometheus.Gauge
	hardwareAccelerationEnabled   *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance with default configuration.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{EnableSchemeLabel: true})
}

// NewMetricsWithConfig creates a new metrics instance with the provided configuration.
func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(defaultRegistry, cfg)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry.
// This is useful for testing to avoid metric registration conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg, Config{EnableSchemeLabel: true})
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer, cfg Config) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		config: cfg,
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msl_messages_total",
				Help: "Total number of messages processed by the receive pipeline",
			},
			[]string{"scheme", "result"}, // result: "accepted", "rejected", "replayed"
		),
		messageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msl_message_duration_seconds",
				Help:    "End-to-end receive pipeline duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scheme", "result"},
		),
		messageBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msl_message_bytes_total",
				Help: "Total plaintext bytes delivered by the receive pipeline",
			},
			[]string{"scheme"},
		),
		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msl_store_operations_total",
				Help: "Total number of store backend operations (session cache, token factory, archive)",
			},
			[]string{"operation", "backend"},
		),
		storeOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msl_store_operation_duration_seconds",
				Help:    "Store backend operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "backend"},
		),
		storeOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msl_store_operation_errors_total",
				Help: "Total number of store backend operation errors",
			},
			[]string{"operation", "backend", "error_type"},
		),
		cryptoOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msl_crypto_operations_total",
				Help: "Total number of crypto context operations",
			},
			[]string{"operation"}, // "encrypt", "decrypt", "sign", "verify", "wrap", "unwrap"
		),
		cryptoOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msl_crypto_operation_duration_seconds",
				Help:    "Crypto context operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		cryptoOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msl_crypto_operation_errors_total",
				Help: "Total number of crypto context operation errors",
			},
			[]string{"operation", "error_type"},
		),
		cryptoBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msl_crypto_bytes_total",
				Help: "Total bytes processed by crypto context operations",
			},
			[]string{"operation"},
		),
		rotatedReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msl_kms_rotated_reads_total",
				Help: "Total number of unwrap operations using rotated (non-active) key versions",
			},
			[]string{"key_version", "active_version"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "msl_active_sessions",
				Help: "Number of session crypto contexts currently cached",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "msl_goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "msl_memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "msl_memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
		hardwareAccelerationEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "msl_hardware_acceleration_enabled",
				Help: "Hardware acceleration status (1=enabled, 0=disabled)",
			},
			[]string{"type"},
		),
	}
}

// SetHardwareAccelerationStatus sets the hardware acceleration status metric.
func (m *Metrics) SetHardwareAccelerationStatus(accelType string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.hardwareAccelerationEnabled.WithLabelValues(accelType).Set(val)
}

// GetHardwareAccelerationEnabledMetric returns the hardware acceleration enabled metric (for testing).
func (m *Metrics) GetHardwareAccelerationEnabledMetric() *prometheus.GaugeVec {
	return m.hardwareAccelerationEnabled
}

// GetRotatedReadsMetric returns the rotated reads metric (for testing).
func (m *Metrics) GetRotatedReadsMetric() *prometheus.CounterVec {
	return m.rotatedReads
}

// RecordMessage records a completed pass through the receive pipeline.
func (m *Metrics) RecordMessage(ctx context.Context, scheme, result string, duration time.Duration, bytes int64) {
	label := sanitizeSchemeLabel(scheme)
	if !m.config.EnableSchemeLabel {
		label = "*"
	}
	labels := prometheus.Labels{"scheme": label, "result": result}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.messagesTotal.With(labels).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.messagesTotal.With(labels).Inc()
		}

		if observer, ok := m.messageDuration.With(labels).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.messageDuration.With(labels).Observe(duration.Seconds())
		}
	} else {
		m.messagesTotal.With(labels).Inc()
		m.messageDuration.With(labels).Observe(duration.Seconds())
	}

	m.messageBytes.WithLabelValues(label).Add(float64(bytes))
}

// sanitizeSchemeLabel keeps an entity-auth/key-exchange scheme string as its
// own label only if it is at most 32 characters of A-Z, 0-9, '_' and '-';
// anything else becomes "other", and an empty string becomes "unknown".
// It does not check the name against the registered factory set. Scheme
// names arrive over the wire and are not
// guaranteed to come from the registered factory set, so an attacker could
// otherwise inflate metric cardinality by varying the scheme field per
// message.
func sanitizeSchemeLabel(scheme string) string {
	if scheme == "" {
		return "unknown"
	}
	if len(scheme) > 32 {
		return "other"
	}
	for _, r := range scheme {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return "other"
		}
	}
	return scheme
}

// RecordStoreOperation records a store backend operation metric.
func (m *Metrics) RecordStoreOperation(ctx context.Context, operation, backend string, duration time.Duration) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.storeOperationsTotal.WithLabelValues(operation, backend).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.storeOperationsTotal.WithLabelValues(operation, backend).Inc()
		}

		if observer, ok := m.storeOperationDuration.WithLabelValues(operation, backend).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.storeOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
		}
	} else {
		m.storeOperationsTotal.WithLabelValues(operation, backend).Inc()
		m.storeOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
	}
}

// RecordStoreError records a store backend operation error.
func (m *Metrics) RecordStoreError(ctx context.Context, operation, backend, errorType string) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.storeOperationErrors.WithLabelValues(operation, backend, errorType).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.storeOperationErrors.WithLabelValues(operation, backend, errorType).Inc()
		}
	} else {
		m.storeOperationErrors.WithLabelValues(operation, backend, errorType).Inc()
	}
}

// RecordCryptoOperation records a crypto context operation metric.
func (m *Metrics) RecordCryptoOperation(ctx context.Context, operation string, duration time.Duration, bytes int64) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.cryptoOperationsTotal.WithLabelValues(operation).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.cryptoOperationsTotal.WithLabelValues(operation).Inc()
		}

		if observer, ok := m.cryptoOperationDuration.WithLabelValues(operation).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.cryptoOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
		}
	} else {
		m.cryptoOperationsTotal.WithLabelValues(operation).Inc()
		m.cryptoOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	m.cryptoBytes.WithLabelValues(operation).Add(float64(bytes))
}

// RecordCryptoError records a crypto context operation error.
func (m *Metrics) RecordCryptoError(ctx context.Context, operation, errorType string) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.cryptoOperationErrors.WithLabelValues(operation, errorType).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.cryptoOperationErrors.WithLabelValues(operation, errorType).Inc()
		}
	} else {
		m.cryptoOperationErrors.WithLabelValues(operation, errorType).Inc()
	}
}

// RecordRotatedRead records an unwrap operation using a rotated (non-active) key version.
func (m *Metrics) RecordRotatedRead(ctx context.Context, keyVersion, activeVersion int) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.rotatedReads.WithLabelValues(strconv.Itoa(keyVersion), strconv.Itoa(activeVersion)).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.rotatedReads.WithLabelValues(strconv.Itoa(keyVersion), strconv.Itoa(activeVersion)).Inc()
		}
	} else {
		m.rotatedReads.WithLabelValues(
			strconv.Itoa(keyVersion),
			strconv.Itoa(activeVersion),
		).Inc()
	}
}

// SetActiveSessions sets the number of cached session crypto contexts.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// getExemplar extracts trace ID from context and returns prometheus Labels for exemplar.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
