package httpapi

import (
    "context"
    "log/slog"
    "net/http"
    "runtime/debug"
    "time"

    chi "github.com/go-chi/chi/v5"
    chimw "github.com/go-chi/chi/v5/middleware"
)

// reportParams are the query parameters worth keeping in the access log.
var reportParams = []string{"interval", "period", "source", "subaccount"}

// probeRoutes log at DEBUG so scrapes and health checks don't drown the ledger traffic.
var probeRoutes = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// requestLogger logs each request once it completes, keyed by its chi route pattern.
// 4xx responses log at WARN and 5xx at ERROR.
func requestLogger(l *slog.Logger) func(next http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
            start := time.Now()

            next.ServeHTTP(ww, r)

            route := routePattern(r)
            status := ww.Status()
            if status == 0 { status = http.StatusOK }
            attrs := []slog.Attr{
                slog.String("req_id", chimw.GetReqID(r.Context())),
                slog.String("method", r.Method),
                slog.String("route", route),
                slog.Int("status", status),
                slog.Int("bytes", ww.BytesWritten()),
                slog.Int64("duration_ms", time.Since(start).Milliseconds()),
            }
            q := r.URL.Query()
            for _, p := range reportParams {
                if v := q.Get(p); v != "" { attrs = append(attrs, slog.String(p, v)) }
            }
            l.LogAttrs(context.Background(), requestLevel(route, status), "request complete", attrs...)
        })
    }
}

func requestLevel(route string, status int) slog.Level {
    switch {
    case status >= http.StatusInternalServerError:
        return slog.LevelError
    case status >= http.StatusBadRequest:
        return slog.LevelWarn
    case probeRoutes[route]:
        return slog.LevelDebug
    }
    return slog.LevelInfo
}

// routePattern falls back to the raw path for requests no route matched.
func routePattern(r *http.Request) string {
    if rc := chi.RouteContext(r.Context()); rc != nil {
        if p := rc.RoutePattern(); p != "" { return p }
    }
    return r.URL.Path
}

// recoverer logs panics as ERROR and answers with the standard internal_error payload.
func recoverer(l *slog.Logger) func(next http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            defer func() {
                if rec := recover(); rec != nil {
                    if rec == http.ErrAbortHandler { panic(rec) }
                    l.Error("panic", "req_id", chimw.GetReqID(r.Context()), "route", routePattern(r),
                        "err", rec, "stack", string(debug.Stack()))
                    writeErr(w, http.StatusInternalServerError, "internal_error", "internal_error")
                }
            }()
            next.ServeHTTP(w, r)
        })
    }
}
