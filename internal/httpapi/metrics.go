package httpapi

import (
    "net/http"
    "time"

    chi "github.com/go-chi/chi/v5"
    chimw "github.com/go-chi/chi/v5/middleware"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    httpRequestsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "bookkeeper",
            Name:      "http_requests_total",
            Help:      "Total number of HTTP requests",
        },
        []string{"method", "route", "status"},
    )
    httpRequestDuration = promauto.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "bookkeeper",
            Name:      "http_request_duration_seconds",
            Help:      "Duration of HTTP requests in seconds",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"method", "route", "status"},
    )
)

func metricsHandler() http.Handler {
    return promhttp.Handler()
}

// metricsMiddleware labels by route pattern rather than raw path to keep cardinality bounded.
func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
        start := time.Now()
        next.ServeHTTP(ww, r)
        route := "unmatched"
        if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
            route = rc.RoutePattern()
        }
        status := itoa(ww.Status())
        httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
        httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
    })
}

// small local int to ascii to avoid fmt in hot path
func itoa(n int) string {
    if n == 0 { return "0" }
    neg := false
    if n < 0 { neg = true; n = -n }
    var buf [20]byte
    i := len(buf)
    for n > 0 { i--; buf[i] = byte('0' + n%10); n /= 10 }
    if neg { i--; buf[i] = '-' }
    return string(buf[i:])
}
