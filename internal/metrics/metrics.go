package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flow outcome labels for FlowsTotal.
const (
	OutcomeNoFlow        = "no_flow"
	OutcomeFeatureOff    = "feature_off"
	OutcomeNotOpen       = "not_open"
	OutcomeNoAddress     = "no_public_ip"
	OutcomeNotConfirmed  = "not_confirmed"
	OutcomeConfirmFailed = "confirm_error"
	OutcomeAlerted       = "alerted"
	OutcomeMalformed     = "malformed"
	OutcomeCancelled     = "cancelled"
)

var (
	// Pipeline metrics
	FlowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_openport_flows_total",
			Help: "Total number of flow events processed, by final outcome",
		},
		[]string{"outcome"},
	)

	FlowsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_openport_flows_in_flight",
			Help: "Number of flow events currently running through the pipeline",
		},
	)

	// Scan metrics
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telhawk_openport_scan_duration_seconds",
			Help:    "Duration of local port scans in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	ScanResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_openport_scan_results_total",
			Help: "Total number of local scans, by reported state",
		},
		[]string{"state"},
	)

	// Confirmation service metrics
	ConfirmRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_openport_confirm_requests_total",
			Help: "Total number of external confirmation requests, by result",
		},
		[]string{"result"},
	)

	QuotaUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_openport_quota_used",
			Help: "Requests used in the current confirmation service quota window",
		},
	)

	QuotaLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_openport_quota_limit",
			Help: "Request limit of the current confirmation service quota window",
		},
	)

	QuotaSamplesFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_openport_quota_samples_flushed_total",
			Help: "Total number of completed quota windows written to the ledger",
		},
	)

	LedgerTrims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_openport_ledger_trims_total",
			Help: "Total number of ledger trim runs, by status",
		},
		[]string{"status"},
	)

	// Alarm metrics
	AlarmsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_openport_alarms_enqueued_total",
			Help: "Total number of open-port alarms handed to the alarm subsystem",
		},
	)

	AlarmErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_openport_alarm_errors_total",
			Help: "Total number of alarm enrichment or enqueue failures",
		},
		[]string{"stage"},
	)

	// Public address discovery
	PublicIPRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_openport_public_ip_refreshes_total",
			Help: "Total number of STUN public address refreshes, by status",
		},
		[]string{"status"},
	)
)
