package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradenotify_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradenotify_http_request_duration_seconds",
			Help:    "Histogram of response durations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// EventsEmitted counts emit calls by event type and result (logged, duplicate, degraded, malformed, error)
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradenotify_events_emitted_total",
			Help: "Events handled by the broker",
		},
		[]string{"event_type", "result"},
	)

	NotificationsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradenotify_notifications_enqueued_total",
			Help: "Notification queue rows created at emit time",
		},
		[]string{"channel"},
	)

	// NotificationsSkipped counts recipients filtered out at emit time
	NotificationsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradenotify_notifications_skipped_total",
			Help: "Recipients skipped at emit time by preference",
		},
		[]string{"reason"},
	)

	DeliveryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradenotify_delivery_outcomes_total",
			Help: "Delivery attempts by channel and outcome (sent, retry, dead_letter, suppressed, lease_lost)",
		},
		[]string{"channel", "outcome"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradenotify_delivery_duration_seconds",
			Help:    "Channel adapter latency per attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradenotify_queue_rows",
			Help: "Notification queue rows by status",
		},
		[]string{"status"},
	)

	QueueOldestPendingAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradenotify_queue_oldest_pending_seconds",
			Help: "Age of the oldest pending notification",
		},
	)

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradenotify_job_runs_total",
			Help: "Periodic job runs by result (ok, partial, busy, error)",
		},
		[]string{"job", "result"},
	)

	JobItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradenotify_job_items_total",
			Help: "Rows processed by periodic jobs",
		},
		[]string{"job", "result"},
	)

	IngestMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradenotify_ingest_messages_total",
			Help: "Kafka event messages consumed by result",
		},
		[]string{"result"},
	)
)

func Init() {
	prometheus.MustRegister(
		HTTPRequests, RequestDuration,
		EventsEmitted, NotificationsEnqueued, NotificationsSkipped,
		DeliveryOutcomes, DeliveryDuration, QueueDepth, QueueOldestPendingAge,
		JobRuns, JobItems, IngestMessages,
	)
}
