package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpgate_auth_attempts_total",
			Help: "Total number of SFTP login attempts",
		},
		[]string{"result"},
	)

	// RemoteSessions tracks SFTP connections currently held by in-flight requests.
	RemoteSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sftpgate_remote_sessions",
			Help: "Number of open SFTP connections bound to requests",
		},
	)

	// TransferBytes counts bytes moved between the remote store and HTTP bodies.
	TransferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpgate_transfer_bytes_total",
			Help: "Bytes transferred by direction (download|archive|upload)",
		},
		[]string{"direction"},
	)

	// Transfers counts completed transfers by direction and outcome (ok|error|aborted).
	Transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sftpgate_transfers_total",
			Help: "Total number of transfers",
		},
		[]string{"direction", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sftpgate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
