package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics は予約処理とHTTPのメトリクスです。booking.Recorderを実装します
type Metrics struct {
	registry *prometheus.Registry

	admissions       *prometheus.CounterVec
	admissionLatency prometheus.Histogram
	retries          *prometheus.CounterVec
	cancellations    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	eventsPublished  *prometheus.CounterVec
}

// NewMetrics は専用のレジストリにメトリクスを登録します
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "happypaws_admissions_total",
				Help: "Reservation admission decisions by outcome",
			},
			[]string{"outcome"},
		),
		admissionLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "happypaws_admission_duration_seconds",
				Help:    "Duration of reservation admission including retries",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "happypaws_tx_retries_total",
				Help: "Booking transactions retried after a serialization conflict",
			},
			[]string{"op"},
		),
		cancellations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "happypaws_cancellations_total",
				Help: "Reservation cancel requests by whether the status changed",
			},
			[]string{"changed"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "happypaws_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "happypaws_http_request_duration_seconds",
				Help:    "HTTP request duration by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "happypaws_events_published_total",
				Help: "Reservation events published by type and result",
			},
			[]string{"type", "result"},
		),
	}
}

func (m *Metrics) Admission(outcome string, took time.Duration) {
	m.admissions.WithLabelValues(outcome).Inc()
	m.admissionLatency.Observe(took.Seconds())
}

func (m *Metrics) Retry(op string) {
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) Cancellation(changed bool) {
	m.cancellations.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

// TrackRequest はHTTPリクエストを記録します。routeにはパスパラメータ展開前のパターンを渡します
func (m *Metrics) TrackRequest(method, route string, status int, took time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) EventPublished(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, result).Inc()
}

// Handler は/metrics用のハンドラです
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
