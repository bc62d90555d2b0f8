package httpapi

import (
    "bytes"
    "encoding/json"
    "log/slog"
    "net/http"
    "net/http/httptest"
    "testing"

    chi "github.com/go-chi/chi/v5"
)

func TestRequestLogger_RouteAndLevel(t *testing.T) {
    var buf bytes.Buffer
    logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
    r := chi.NewRouter()
    r.Use(requestLogger(logger))
    r.Use(recoverer(logger))
    r.Get("/v1/accounts/{name}/balance", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
    r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
    r.Get("/boom", func(w http.ResponseWriter, r *http.Request) { panic("boom") })

    cases := []struct {
        path, route, level string
        status             int
    }{
        {"/v1/accounts/Rent/balance?interval=month&period=2024-01", "/v1/accounts/{name}/balance", "WARN", http.StatusNotFound},
        {"/healthz", "/healthz", "DEBUG", http.StatusOK},
        {"/boom", "/boom", "ERROR", http.StatusInternalServerError},
    }
    for _, tc := range cases {
        buf.Reset()
        rr := httptest.NewRecorder()
        r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))
        if rr.Code != tc.status {
            t.Fatalf("%s: status %d", tc.path, rr.Code)
        }
        var last map[string]any
        for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
            var rec map[string]any
            if err := json.Unmarshal(line, &rec); err != nil {
                t.Fatalf("decode log line %q: %v", line, err)
            }
            if rec["msg"] == "request complete" {
                last = rec
            }
        }
        if last == nil {
            t.Fatalf("%s: no access log line in %s", tc.path, buf.String())
        }
        if last["route"] != tc.route || last["level"] != tc.level || last["status"] != float64(tc.status) {
            t.Fatalf("%s: log %+v", tc.path, last)
        }
    }
}

func TestRequestLogger_KeepsReportParams(t *testing.T) {
    var buf bytes.Buffer
    logger := slog.New(slog.NewJSONHandler(&buf, nil))
    r := chi.NewRouter()
    r.Use(requestLogger(logger))
    r.Get("/v1/income-statement", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
    r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/income-statement?interval=year&period=2024&noise=1", nil))

    var rec map[string]any
    if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
        t.Fatalf("decode: %v (%s)", err, buf.String())
    }
    if rec["interval"] != "year" || rec["period"] != "2024" {
        t.Fatalf("report params missing: %+v", rec)
    }
    if _, ok := rec["noise"]; ok {
        t.Fatalf("unexpected param logged: %+v", rec)
    }
}
