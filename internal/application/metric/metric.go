package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Причины отброшенных сообщений
const (
	DropUnknownTarget = "unknown_target"
	DropNotJoined     = "not_joined"
	DropCrossRoom     = "cross_room"
	DropMalformed     = "malformed"
	DropRateLimited   = "rate_limited"
	DropSlowConsumer  = "slow_consumer"
)

var (
	// HTTP метрики - количество запросов
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - время обработки запросов
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTP метрики - количество ошибок
	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of HTTP responses with status >= 400",
		},
		[]string{"method", "endpoint", "status"},
	)

	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Number of open signaling websocket connections",
		},
	)

	activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_active_rooms",
			Help: "Number of rooms with at least one participant",
		},
	)

	activeParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_active_participants",
			Help: "Number of joined participants across all rooms",
		},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_messages_total",
			Help: "Inbound signaling messages handled, by type",
		},
		[]string{"type"},
	)

	droppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_dropped_total",
			Help: "Signaling messages dropped, by reason",
		},
		[]string{"reason"},
	)

	handshakesCancelledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_handshakes_cancelled_total",
			Help: "In-flight handshakes cancelled by a peer departure",
		},
	)
)

// RecordHTTPMetrics записывает метрики HTTP запроса
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())

	// Записываем ошибки (статус >= 400)
	if status >= 400 {
		httpErrorsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	}
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetActiveRooms(count int) {
	activeRooms.Set(float64(count))
}

func SetActiveParticipants(count int) {
	activeParticipants.Set(float64(count))
}

func RecordMessage(msgType string) {
	messagesTotal.WithLabelValues(msgType).Inc()
}

func RecordDrop(reason string) {
	droppedTotal.WithLabelValues(reason).Inc()
}

func AddCancelledHandshakes(n int) {
	if n > 0 {
		handshakesCancelledTotal.Add(float64(n))
	}
}
