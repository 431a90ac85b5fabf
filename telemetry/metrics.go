// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RequestsAdmitted   prometheus.Counter
	RequestsResolved   *prometheus.CounterVec // result=delivered|failed|delivery_failed|abandoned
	ExtractionAttempts *prometheus.CounterVec // platform, outcome
	ReportsSent        prometheus.Counter
	ReportsFailed      prometheus.Counter
	NoticesFailed      prometheus.Counter

	// Histograms (seconds)
	ExtractionDuration *prometheus.HistogramVec // platform
	RequestDuration    prometheus.Observer
	QueueWait          prometheus.Observer

	// Gauges
	QueueDepthGauge         prometheus.Gauge
	ExtractionsActive       prometheus.Gauge
	CredentialStatusGauge   *prometheus.GaugeVec // platform, session; 0=unknown 1=healthy 2=exhausted 3=invalid
	CredentialsConfigured   *prometheus.GaugeVec // platform
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RequestsAdmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_requests_admitted_total", Help: "Messages with a supported link admitted to the queue"})
		RequestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_requests_resolved_total", Help: "Requests that reached a terminal state by result"}, []string{"result"})
		ExtractionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Name: "relay_extraction_attempts_total", Help: "Extractor invocations by platform and outcome"}, []string{"platform", "outcome"})
		ReportsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_failure_reports_sent_total", Help: "Failure reports delivered to the operator chat"})
		ReportsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_failure_reports_failed_total", Help: "Failure reports that could not be sent"})
		NoticesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "relay_user_notices_failed_total", Help: "In-chat failure notices that could not be sent"})
		ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_extraction_duration_seconds",
			Help:    "Duration of a single extraction attempt",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180, 300},
		}, []string{"platform"})
		RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Time from dequeue to terminal resolution",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		})
		QueueWait = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_queue_wait_seconds",
			Help:    "Time a request spent queued before processing started",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 180, 600, 1800},
		})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_queue_depth", Help: "Requests waiting in the queue"})
		ExtractionsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "relay_extractions_active", Help: "Extractions currently running (0 or 1)"})
		CredentialStatusGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "relay_credential_status", Help: "Session status 0=unknown 1=healthy 2=exhausted 3=invalid"}, []string{"platform", "session"})
		CredentialsConfigured = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "relay_credentials_configured", Help: "Cookie sessions discovered at startup"}, []string{"platform"})
	})
}

// SetQueueDepth records the number of waiting requests.
func SetQueueDepth(n int) { if QueueDepthGauge != nil { QueueDepthGauge.Set(float64(n)) } }

// SetExtractionsActive records the number of running extractions.
func SetExtractionsActive(n int) { if ExtractionsActive != nil { ExtractionsActive.Set(float64(n)) } }

// RecordAttempt counts an extraction attempt and its duration.
func RecordAttempt(platform, outcome string, d time.Duration) {
	if ExtractionAttempts != nil { ExtractionAttempts.WithLabelValues(platform, outcome).Inc() }
	if ExtractionDuration != nil { ExtractionDuration.WithLabelValues(platform).Observe(d.Seconds()) }
}

// RecordResolved counts a request reaching a terminal state.
func RecordResolved(result string) { if RequestsResolved != nil { RequestsResolved.WithLabelValues(result).Inc() } }

// IncAdmitted counts a request admitted to the queue.
func IncAdmitted() { if RequestsAdmitted != nil { RequestsAdmitted.Inc() } }

// RecordReport counts a failure report send attempt.
func RecordReport(ok bool) {
	if ok {
		if ReportsSent != nil { ReportsSent.Inc() }
		return
	}
	if ReportsFailed != nil { ReportsFailed.Inc() }
}

// IncNoticeFailed counts an in-chat notice that could not be sent.
func IncNoticeFailed() { if NoticesFailed != nil { NoticesFailed.Inc() } }

// SetCredentialStatus records the numeric status of a session.
func SetCredentialStatus(platform, session string, status int) {
	if CredentialStatusGauge != nil { CredentialStatusGauge.WithLabelValues(platform, session).Set(float64(status)) }
}

// SetCredentialsConfigured records how many sessions a platform has.
func SetCredentialsConfigured(platform string, n int) {
	if CredentialsConfigured != nil { CredentialsConfigured.WithLabelValues(platform).Set(float64(n)) }
}

// Observe records d in obs if non-nil.
func Observe(obs prometheus.Observer, d time.Duration) { if obs != nil { obs.Observe(d.Seconds()) } }

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	Observe(obs, d)
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context { return context.WithValue(ctx, corrKey, id) }

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok { return s }
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" { return slog.Default().With(slog.String("corr", id)) }
	return slog.Default()
}
