package metrics

import (
	"strconv"
	"time"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/observability"
)

// Metric names, prefixed by the exporter namespace.
const (
	InvocationsTotal      = "registry_invocations_total"
	InvocationDuration    = "registry_invocation_duration_ms"
	QuotaWaitDuration     = "quota_wait_duration_ms"
	QuotaWindowUsed       = "quota_window_used"
	QuotaWindowLimit      = "quota_window_limit"
	RelayRequestsInFlight = "relay_requests_in_flight"
	ServerStartTime       = "app_server_start_time_seconds"
)

// RecordInvocation counts one create-document call by outcome.
func RecordInvocation(status core.SubmissionStatus, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"status": string(status)}
	_ = observability.TelemetrySystem.Counter(InvocationsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(InvocationDuration, duration, labels)
}

// RecordQuotaWait records how long a call waited for its permit.
func RecordQuotaWait(wait time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Histogram(QuotaWaitDuration, wait, nil)
}

// RecordQuotaWindow publishes the usage of a window that just closed.
func RecordQuotaWindow(state core.RateLimitState) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"limit": strconv.Itoa(state.Limit)}
	_ = observability.TelemetrySystem.Gauge(QuotaWindowUsed, float64(state.RequestCount), labels)
	_ = observability.TelemetrySystem.Gauge(QuotaWindowLimit, float64(state.Limit), nil)
}

// SetRequestsInFlight sets the number of relay requests being processed.
func SetRequestsInFlight(count int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(RelayRequestsInFlight, float64(count), nil)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
