// Package httpapi wires the HTTP surface of the bookkeeper.
// It keeps handlers thin, delegating business rules to the service layer.
package httpapi

import (
    "context"
    "log/slog"
    "net/http"

    chi "github.com/go-chi/chi/v5"
    chimw "github.com/go-chi/chi/v5/middleware"

    "github.com/tinoosan/bookkeeper/internal/service/mapping"
    "github.com/tinoosan/bookkeeper/internal/service/report"
)

// ReadyChecker is optionally implemented by stores to indicate readiness.
type ReadyChecker interface {
    Ready(ctx context.Context) error
}

// Server wires handlers and middleware using Chi.
// Everything is read-only apart from mapping creation.
type Server struct {
    reports  report.Service
    mappings mapping.Service
    ready    ReadyChecker
    currency string
    log      *slog.Logger
    rt       *chi.Mux
}

// New constructs the HTTP server with routes and middleware. ready may be nil.
func New(reports report.Service, mappings mapping.Service, ready ReadyChecker, currency string, logger *slog.Logger) *Server {
    if logger == nil { logger = slog.Default() }
    r := chi.NewRouter()
    r.Use(chimw.RequestID)
    r.Use(requestLogger(logger))
    r.Use(recoverer(logger))
    r.Use(metricsMiddleware)

    s := &Server{reports: reports, mappings: mappings, ready: ready, currency: currency, log: logger, rt: r}
    s.routes()
    return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
    // Reports (v1)
    s.rt.With(s.validateStatementQuery()).Get("/v1/trial-balances", s.trialBalances)
    s.rt.With(s.validateStatementQuery()).Get("/v1/income-statement", s.incomeStatement)
    s.rt.With(s.validateStatementQuery()).Get("/v1/balance-sheet", s.balanceSheet)
    s.rt.With(s.validateStatementQuery()).Get("/v1/income-statement/periods", s.incomeStatementPeriods)
    s.rt.With(s.validateStatementQuery()).Get("/v1/balance-sheet/periods", s.balanceSheetPeriods)
    s.rt.With(s.validateListEntries()).Get("/v1/journal-entries", s.journalEntries)
    // Mappings (v1)
    s.rt.Get("/v1/mappings", s.listMappings)
    s.rt.With(s.validatePostMapping()).Post("/v1/mappings", s.postMapping)
    s.rt.Get("/v1/mappings/overlaps", s.mappingOverlaps)
    // Health and metrics (unversioned)
    s.rt.Get("/healthz", s.healthz)
    s.rt.Get("/readyz", s.readyz)
    s.rt.Handle("/metrics", metricsHandler())
}
