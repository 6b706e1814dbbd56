package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the flow service.
type Metrics struct {
	// Ingestion
	StreamLagMs     prometheus.Histogram
	EventsProcessed *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	TradeDirections *prometheus.CounterVec

	// Windows
	OpenWindows        prometheus.Gauge
	WindowsFinalized   prometheus.Counter
	LateTrades         prometheus.Counter
	FinalizeLatencyMs  prometheus.Histogram
	SignalsEmitted     *prometheus.CounterVec
	AnomalyFlags       *prometheus.CounterVec
	BaselineCacheTotal *prometheus.CounterVec

	// Errors by component and type
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		StreamLagMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionflow_stream_lag_ms",
			Help:    "Time between exchange timestamp and processing time in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2000, 5000},
		}),

		EventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_events_processed_total",
			Help: "Book events processed by action",
		}, []string{"action"}),

		EventsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_events_skipped_total",
			Help: "Book events skipped by reason",
		}, []string{"reason"}),

		TradeDirections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_trade_directions_total",
			Help: "Trades by inferred direction",
		}, []string{"direction"}),

		OpenWindows: f.NewGauge(prometheus.GaugeOpts{
			Name: "optionflow_open_windows",
			Help: "Number of open aggregation windows",
		}),

		WindowsFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "optionflow_windows_finalized_total",
			Help: "Windows finalized into pressure metrics",
		}),

		LateTrades: f.NewCounter(prometheus.CounterOpts{
			Name: "optionflow_late_trades_total",
			Help: "Trades dropped because their window was already finalized",
		}),

		FinalizeLatencyMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "optionflow_finalize_latency_ms",
			Help:    "Delay between window end and finalization in milliseconds",
			Buckets: []float64{100, 1000, 5000, 30000, 35000, 60000, 120000, 300000},
		}),

		SignalsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_signals_total",
			Help: "Signals emitted by disposition",
		}, []string{"disposition"}),

		AnomalyFlags: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_anomaly_flags_total",
			Help: "Anomaly flags raised",
		}, []string{"flag"}),

		BaselineCacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_baseline_cache_total",
			Help: "Baseline lookups by cache result",
		}, []string{"result"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optionflow_errors_total",
			Help: "Total number of errors by component and type",
		}, []string{"component", "error_type"}),
	}
}

// RecordStreamLag records the lag between event timestamp and processing time.
func (m *Metrics) RecordStreamLag(lagMs float64) {
	m.StreamLagMs.Observe(lagMs)
}

// RecordEventProcessed increments the processed counter for an action.
func (m *Metrics) RecordEventProcessed(action string) {
	m.EventsProcessed.WithLabelValues(action).Inc()
}

// RecordEventSkipped increments the skipped counter for a reason.
func (m *Metrics) RecordEventSkipped(reason string) {
	m.EventsSkipped.WithLabelValues(reason).Inc()
}

// RecordTradeDirection counts a classified trade.
func (m *Metrics) RecordTradeDirection(direction string) {
	m.TradeDirections.WithLabelValues(direction).Inc()
}

// SetOpenWindows records the number of open windows.
func (m *Metrics) SetOpenWindows(n int) {
	m.OpenWindows.Set(float64(n))
}

// RecordWindowFinalized counts a finalized window and its finalization delay.
func (m *Metrics) RecordWindowFinalized(delayMs float64) {
	m.WindowsFinalized.Inc()
	m.FinalizeLatencyMs.Observe(delayMs)
}

// RecordLateTrade counts a trade dropped for a finalized window.
func (m *Metrics) RecordLateTrade() {
	m.LateTrades.Inc()
}

// RecordSignal counts an emitted signal by disposition.
func (m *Metrics) RecordSignal(disposition string) {
	m.SignalsEmitted.WithLabelValues(disposition).Inc()
}

// RecordAnomalyFlag counts a raised anomaly flag.
func (m *Metrics) RecordAnomalyFlag(flag string) {
	m.AnomalyFlags.WithLabelValues(flag).Inc()
}

// RecordBaselineLookup counts a baseline cache hit, miss or absence.
func (m *Metrics) RecordBaselineLookup(result string) {
	m.BaselineCacheTotal.WithLabelValues(result).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
