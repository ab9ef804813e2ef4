package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsDetected counts decoded on-chain events by chain and kind
	EventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintwatch_events_detected_total",
			Help: "Total number of decoded mint and payment events",
		},
		[]string{"chain", "kind"},
	)

	// DigestEventsRecorded counts digest store writes by outcome (inserted, duplicate, rejected, error)
	DigestEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintwatch_digest_events_recorded_total",
			Help: "Total number of digest event record attempts",
		},
		[]string{"result"},
	)

	// Notifications counts chat deliveries by path (direct, relay) and status
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintwatch_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"path", "status"},
	)

	// RPCRotations counts endpoint rotations per chain
	RPCRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintwatch_rpc_rotations_total",
			Help: "Total number of RPC endpoint rotations",
		},
		[]string{"chain"},
	)

	// RPCDuration tracks RPC call latency
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mintwatch_rpc_duration_seconds",
			Help:    "RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// LastProcessedBlock tracks the last polled block number
	LastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mintwatch_last_processed_block",
			Help: "Last processed block number by chain",
		},
		[]string{"chain"},
	)

	// TrackedContracts tracks the number of watched contracts per chain
	TrackedContracts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mintwatch_tracked_contracts",
			Help: "Number of tracked contracts by chain",
		},
		[]string{"chain"},
	)

	// Commands counts slash command invocations
	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintwatch_commands_total",
			Help: "Total number of slash commands handled",
		},
		[]string{"command", "status"},
	)

	// DigestsSent counts daily digest runs
	DigestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintwatch_digests_sent_total",
			Help: "Total number of digests produced",
		},
		[]string{"trigger", "status"},
	)

	// ArmedDigests tracks the number of armed digest jobs
	ArmedDigests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mintwatch_armed_digests",
			Help: "Number of armed daily digest jobs",
		},
	)

	// ExternalRequests counts market/metadata/assistant API calls by source and status
	ExternalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintwatch_external_requests_total",
			Help: "Total number of third-party API requests",
		},
		[]string{"source", "status"},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintwatch_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
