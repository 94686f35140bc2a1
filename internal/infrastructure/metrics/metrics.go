package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "security_monitor"

var (
	// Pipeline metrics
	ReadingsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readings_processed_total",
		Help:      "Readings that completed the pipeline, by sensor type and criticality",
	}, []string{"type", "critical"})
	ReadingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reading_errors_total",
		Help:      "Readings that failed in the pipeline, by sensor type and stage",
	}, []string{"type", "stage"})
	ReadingProcessingSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reading_processing_seconds",
		Help:      "Time from observation to processing, by sensor type",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})

	// Dispatcher metrics
	DispatcherActiveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatcher_active_workers",
		Help:      "Workers currently running a reading",
	})
	DispatcherPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatcher_pool_size",
		Help:      "Live worker goroutines",
	})
	DispatcherQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatcher_queue_depth",
		Help:      "Readings waiting for a worker",
	})
	DispatcherRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatcher_rejected_total",
		Help:      "Submissions rejected because the queue and pool were saturated",
	})
	DispatcherCallerRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatcher_caller_runs_total",
		Help:      "Submissions executed on the submitting goroutine",
	})
	DispatcherPanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatcher_panics_total",
		Help:      "Handler panics recovered by workers",
	})

	// Alert metrics
	AlertsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_created_total",
		Help:      "Alerts created, by level",
	}, []string{"level"})
	AlertsSuppressedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_suppressed_total",
		Help:      "Critical readings suppressed by the cooldown window, by sensor type",
	}, []string{"type"})
	NotificationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notification_failures_total",
		Help:      "Notification channel failures, by channel",
	}, []string{"channel"})

	// Broker metrics
	BrokerDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broker_dropped_messages_total",
		Help:      "Messages dropped because a subscriber buffer was full",
	})
	BrokerSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "broker_subscribers",
		Help:      "Active broker subscriptions",
	})

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by route and status code",
	}, []string{"route", "code"})
	HTTPRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_seconds",
		Help:      "HTTP request latency, by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	registerOnce sync.Once
)

func init() {
	InitMetrics()
}

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ReadingsProcessedTotal,
			ReadingErrorsTotal,
			ReadingProcessingSeconds,
			DispatcherActiveWorkers,
			DispatcherPoolSize,
			DispatcherQueueDepth,
			DispatcherRejectedTotal,
			DispatcherCallerRunsTotal,
			DispatcherPanicsTotal,
			AlertsCreatedTotal,
			AlertsSuppressedTotal,
			NotificationFailuresTotal,
			BrokerDroppedTotal,
			BrokerSubscribers,
			HTTPRequestsTotal,
			HTTPRequestSeconds,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	InitMetrics()
	return promhttp.Handler()
}

func RecordReading(sensorType string, critical bool, processing time.Duration) {
	if processing < 0 {
		processing = 0
	}
	ReadingsProcessedTotal.WithLabelValues(sensorType, strconv.FormatBool(critical)).Inc()
	ReadingProcessingSeconds.WithLabelValues(sensorType).Observe(processing.Seconds())
}

func RecordReadingError(sensorType, stage string) {
	ReadingErrorsTotal.WithLabelValues(sensorType, stage).Inc()
}

func RecordAlertCreated(level string) {
	AlertsCreatedTotal.WithLabelValues(level).Inc()
}

func RecordAlertSuppressed(sensorType string) {
	AlertsSuppressedTotal.WithLabelValues(sensorType).Inc()
}

func RecordNotificationFailure(channel string) {
	NotificationFailuresTotal.WithLabelValues(channel).Inc()
}

// SetPoolOccupancy publishes the dispatcher gauges.
func SetPoolOccupancy(active, poolSize, queued int) {
	DispatcherActiveWorkers.Set(float64(active))
	DispatcherPoolSize.Set(float64(poolSize))
	DispatcherQueueDepth.Set(float64(queued))
}

// HTTPMiddleware instruments handlers. route maps a request to a low-cardinality label.
func HTTPMiddleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	if route == nil {
		route = func(r *http.Request) string { return r.URL.Path }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			next.ServeHTTP(recorder, r)

			// resolve after serving so routers have filled in the pattern
			label := route(r)
			if label == "" {
				label = "unmatched"
			}
			HTTPRequestSeconds.WithLabelValues(label).Observe(time.Since(start).Seconds())
			HTTPRequestsTotal.WithLabelValues(label, strconv.Itoa(recorder.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required by the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
