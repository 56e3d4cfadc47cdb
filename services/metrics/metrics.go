// Package metrics holds the prometheus collectors of the API, exposed on the debug server.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReminderPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edulens_reminder_passes_total",
			Help: "Total number of reminder passes run.",
		},
	)

	RemindersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edulens_reminders_total",
			Help: "Total number of reminders processed, by outcome (claimed, sent, failed).",
		},
		[]string{"outcome"},
	)

	ReminderPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edulens_reminder_pass_duration_seconds",
			Help:    "Duration of reminder passes.",
			Buckets: prometheus.DefBuckets,
		},
	)

	AIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edulens_ai_requests_total",
			Help: "Total number of requests sent to the AI service, by route and status (0: unreachable).",
		},
		[]string{"route", "status"},
	)

	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edulens_ai_request_duration_seconds",
			Help:    "Latency of the AI service.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edulens_http_requests_total",
			Help: "Total number of HTTP requests served, by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edulens_http_request_duration_seconds",
			Help:    "Latency of the HTTP API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Recorder feeds the collectors; it is handed to the components that export metrics.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) ObserveReminderPass(claimed, sent, failed int, took time.Duration) {
	ReminderPasses.Inc()
	RemindersProcessed.WithLabelValues("claimed").Add(float64(claimed))
	RemindersProcessed.WithLabelValues("sent").Add(float64(sent))
	RemindersProcessed.WithLabelValues("failed").Add(float64(failed))
	ReminderPassDuration.Observe(took.Seconds())
}

func (Recorder) ObserveAIRequest(route string, status int, took time.Duration) {
	AIRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	AIRequestDuration.WithLabelValues(route).Observe(took.Seconds())
}

func (Recorder) ObserveHTTPRequest(method, route string, status int, took time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
