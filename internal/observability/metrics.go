package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "floodwatch"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Ingestion pipeline metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	TransformErrors         prometheus.Counter
	Assessments             *prometheus.CounterVec // labels: kind={sensor,crowd}, severity
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Simulation metrics.
	ReadingsEmitted prometheus.Counter
	SinkErrors      *prometheus.CounterVec // labels: op={ensure,publish}
	WaterLevel      *prometheus.GaugeVec   // labels: zone
	RainActive      prometheus.Gauge
	RainEvents      prometheus.Counter

	// Entity store metrics.
	StoreRequests *prometheus.CounterVec   // labels: op={create,patch,get,query}, outcome={success,error,not_found,conflict}
	StoreDuration *prometheus.HistogramVec // labels: op
	StoreRetries  prometheus.Counter

	// Snapshot metrics.
	SnapshotCache         *prometheus.CounterVec   // labels: stream, result={hit,miss}
	SnapshotBuildDuration *prometheus.HistogramVec // labels: stream
	SnapshotRecords       *prometheus.GaugeVec     // labels: stream

	// Distribution and API metrics.
	ActiveSessions  prometheus.Gauge
	SessionMessages *prometheus.CounterVec // labels: type={snapshot,update,empty,protocol_error}
	ReportsReceived *prometheus.CounterVec // labels: outcome={accepted,rejected,failed}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from the observation topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_written_total",
			Help:      "Total assessments written to the entity store.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total observations rejected by parsing, validation or scoring.",
		}),
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_total",
			Help:      "Assessments loaded by the pipeline, by kind and severity.",
		}, []string{"kind", "severity"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the ingestion pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ReadingsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_emitted_total",
			Help:      "Simulated water level readings delivered to sinks.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Simulation sink failures by operation.",
		}, []string{"op"}),
		WaterLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "water_level_meters",
			Help:      "Latest simulated water level per zone.",
		}, []string{"zone"}),
		RainActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rain_active",
			Help:      "1 while a rain event is in progress.",
		}),
		RainEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rain_events_total",
			Help:      "Rain events started by the generator.",
		}),
		StoreRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_requests_total",
			Help:      "Entity store requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_request_duration_seconds",
			Help:      "Entity store request duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Entity store operations retried after a transient failure.",
		}),
		SnapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_total",
			Help:      "Snapshot cache lookups by stream and result.",
		}, []string{"stream", "result"}),
		SnapshotBuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_build_duration_seconds",
			Help:      "Time to query, filter and deduplicate a snapshot on cache miss.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"stream"}),
		SnapshotRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_records",
			Help:      "Records in the latest deduplicated snapshot.",
		}, []string{"stream"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open real-time distribution sessions.",
		}),
		SessionMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_messages_total",
			Help:      "Session protocol messages by type.",
		}, []string{"type"}),
		ReportsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_received_total",
			Help:      "Citizen reports received over HTTP by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.Assessments,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ReadingsEmitted,
		m.SinkErrors,
		m.WaterLevel,
		m.RainActive,
		m.RainEvents,
		m.StoreRequests,
		m.StoreDuration,
		m.StoreRetries,
		m.SnapshotCache,
		m.SnapshotBuildDuration,
		m.SnapshotRecords,
		m.ActiveSessions,
		m.SessionMessages,
		m.ReportsReceived,
	}
}
