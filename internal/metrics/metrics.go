// Package metrics exposes Prometheus counters for backup appends and gateway submissions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pnmtrack"

// Registry holds every pnmtrack collector. It is separate from the default
// registry so tests can read values without global Go runtime collectors.
var Registry = prometheus.NewRegistry()

var (
	// backupAppendsTotal counts backup appends by storage key and outcome.
	backupAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_appends_total",
			Help:      "Total number of backup log appends",
		},
		[]string{"key", "status"}, // status: written, skipped, error
	)

	// backupRecoveriesTotal counts corrupt or unreadable backups that were reset.
	backupRecoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_recoveries_total",
			Help:      "Total number of backups discarded and reinitialized on append",
		},
		[]string{"key", "reason"},
	)

	// submissionsTotal counts gateway submissions by action and outcome.
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of gateway submissions",
		},
		[]string{"action", "status"}, // status: ok, rejected, error
	)

	// submissionDuration is a histogram of gateway round-trip time.
	submissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Duration of gateway submissions in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"action"},
	)

	// proxyRequestsTotal counts requests relayed by the proxy server.
	proxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Total number of requests relayed to the upstream script",
		},
		[]string{"method", "code"},
	)
)

func init() {
	Registry.MustRegister(
		backupAppendsTotal,
		backupRecoveriesTotal,
		submissionsTotal,
		submissionDuration,
		proxyRequestsTotal,
	)
}

// Handler serves the pnmtrack registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordBackupAppend records the outcome of one backup append.
func RecordBackupAppend(key, status string) {
	backupAppendsTotal.WithLabelValues(key, status).Inc()
}

// RecordBackupRecovery records a backup reset.
func RecordBackupRecovery(key, reason string) {
	backupRecoveriesTotal.WithLabelValues(key, reason).Inc()
}

// RecordSubmission records one gateway submission.
func RecordSubmission(action, status string, elapsed time.Duration) {
	submissionsTotal.WithLabelValues(action, status).Inc()
	submissionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// RecordProxyRequest records one relayed proxy request.
func RecordProxyRequest(method, code string) {
	proxyRequestsTotal.WithLabelValues(method, code).Inc()
}
