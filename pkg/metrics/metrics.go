package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// PatternsDetected counts candidate patterns emitted by detectors, by reason
var PatternsDetected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "amlwatch_patterns_detected_total",
		Help: "Total number of candidate patterns emitted by detectors",
	},
	[]string{"reason"},
)

// ActivitiesCreated counts suspicious activities persisted after deduplication
var ActivitiesCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "amlwatch_activities_created_total",
		Help: "Total number of suspicious activities created",
	},
	[]string{"reason"},
)

// DuplicatesSuppressed counts candidates dropped because an open case already exists
var DuplicatesSuppressed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "amlwatch_dedup_suppressed_total",
		Help: "Total number of candidates suppressed by deduplication",
	},
	[]string{"reason"},
)

// DetectionDuration records the time to load a trade window and run all detectors
var DetectionDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "amlwatch_detection_duration_seconds",
		Help:    "Latency in seconds to run detection for a single user",
		Buckets: prometheus.DefBuckets,
	},
)

// Scheduler metrics
var (
	UserScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlwatch_scan_users_total",
			Help: "Per-user scan outcomes in population scans",
		},
		[]string{"result"},
	)

	PopulationScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amlwatch_scan_duration_seconds",
			Help:    "Wall time of a full population scan",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
	)

	UserScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amlwatch_user_scan_duration_seconds",
			Help:    "Time to scan one user, including lease handling",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Case lifecycle metrics
var (
	SarsFiled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlwatch_sars_filed_total",
			Help: "Total number of SARs filed",
		},
		[]string{"trigger"},
	)

	SarFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlwatch_sar_failures_total",
			Help: "Total number of SAR generation attempts that failed",
		},
		[]string{"trigger"},
	)

	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlwatch_status_transitions_total",
			Help: "Manual review status transitions",
		},
		[]string{"from", "to"},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlwatch_events_published_total",
			Help: "Lifecycle events handed to the event bus",
		},
		[]string{"type", "result"},
	)
)

// HTTP API metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlwatch_http_requests_total",
			Help: "HTTP requests served, by route, method and status",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amlwatch_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// Database connection pool metrics
var (
	DBOpenConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amlwatch_db_open_connections",
			Help: "Number of open connections in the DB pool",
		},
		[]string{"db"},
	)

	DBIdleConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amlwatch_db_idle_connections",
			Help: "Number of idle connections in the DB pool",
		},
		[]string{"db"},
	)

	DBInUseConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amlwatch_db_in_use_connections",
			Help: "Number of in-use connections in the DB pool",
		},
		[]string{"db"},
	)
)

// RecordDBStats copies pool statistics into the gauges for db
func RecordDBStats(db string, stats sql.DBStats) {
	DBOpenConns.WithLabelValues(db).Set(float64(stats.OpenConnections))
	DBIdleConns.WithLabelValues(db).Set(float64(stats.Idle))
	DBInUseConns.WithLabelValues(db).Set(float64(stats.InUse))
}

func init() {
	prometheus.MustRegister(PatternsDetected, ActivitiesCreated, DuplicatesSuppressed, DetectionDuration)
	prometheus.MustRegister(UserScans, PopulationScanDuration, UserScanDuration)
	prometheus.MustRegister(SarsFiled, SarFailures, StatusTransitions, EventsPublished)
	prometheus.MustRegister(HTTPRequestsTotal, HTTPRequestDuration)
	prometheus.MustRegister(DBOpenConns, DBIdleConns, DBInUseConns)
}
