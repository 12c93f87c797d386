// metrics.go — Prometheus HTTP метрики tmpshare.
// Регистрирует метрики: ts_http_requests_total, ts_http_request_duration_seconds.
// Бизнес-метрика ts_operations_total обновляется из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ts_http_requests_total",
			Help: "Общее количество HTTP-запросов к tmpshare",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ts_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к tmpshare в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// OperationsTotal — общее количество файловых операций
// (operation: download, upload, collection; result: success, not_found, ...).
var OperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ts_operations_total",
		Help: "Общее количество файловых операций",
	},
	[]string{"operation", "result"},
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Ключи (отпечатки, идентификаторы) заменяются шаблонами,
			// чтобы не раздувать кардинальность метрик
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// keyedPrefixes — маршруты, последний сегмент которых является ключом.
var keyedPrefixes = []struct {
	prefix   string
	template string
}{
	{"/get/", "/get/{hash}"},
	{"/collection/", "/collection/{id}"},
	{"/api/v1/files/", "/api/v1/files/{hash}"},
	{"/api/v1/collections/", "/api/v1/collections/{id}"},
}

// normalizePath заменяет ключевой сегмент пути шаблоном.
// /get/D2A84F4B… → /get/{hash}
// Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/files", "/api/v1/collections", "/api/v1/maintenance/cleanup":
		return path
	}

	for _, p := range keyedPrefixes {
		rest, ok := strings.CutPrefix(path, p.prefix)
		if ok && rest != "" && !strings.Contains(rest, "/") {
			return p.template
		}
	}
	return "other"
}
