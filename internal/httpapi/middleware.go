package httpapi

import (
    "context"
    "encoding/json"
    "net/http"
    "strconv"

    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/service/report"
)

type ctxKey string

const ctxKeyStatementQuery ctxKey = "validatedStatementQuery"
const ctxKeyListEntries ctxKey = "validatedListEntries"
const ctxKeyPostMapping ctxKey = "validatedPostMapping"

// statementQuery is the interval/period pair shared by the report endpoints.
// An empty period asks for the most recent one.
type statementQuery struct {
    Interval ledger.PeriodInterval
    Period   string
}

// validateStatementQuery parses ?interval=&period= and defaults the interval to monthly.
func (s *Server) validateStatementQuery() func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            q := r.URL.Query()
            sq := statementQuery{Interval: ledger.IntervalMonth, Period: q.Get("period")}
            if raw := q.Get("interval"); raw != "" {
                iv, err := ledger.ParseInterval(raw)
                if err != nil { badRequest(w, "invalid interval", "unknown_interval"); return }
                sq.Interval = iv
            }
            ctx := context.WithValue(r.Context(), ctxKeyStatementQuery, sq)
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

// validateListEntries parses query params for GET /v1/journal-entries.
func (s *Server) validateListEntries() func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            q := r.URL.Query()
            eq := report.EntryQuery{Subaccount: q.Get("subaccount"), Period: q.Get("period")}
            if raw := q.Get("interval"); raw != "" {
                iv, err := ledger.ParseInterval(raw)
                if err != nil { badRequest(w, "invalid interval", "unknown_interval"); return }
                eq.Interval = iv
            }
            if eq.Period != "" && eq.Interval == "" { eq.Interval = ledger.IntervalMonth }
            if raw := q.Get("cumulative"); raw != "" {
                b, err := strconv.ParseBool(raw)
                if err != nil { badRequest(w, "invalid cumulative", "validation_error"); return }
                eq.Cumulative = b
            }
            if raw := q.Get("limit"); raw != "" {
                n, err := strconv.Atoi(raw)
                if err != nil || n < 0 { badRequest(w, "invalid limit", "validation_error"); return }
                eq.Limit = n
            }
            ctx := context.WithValue(r.Context(), ctxKeyListEntries, eq)
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

// validatePostMapping decodes the rule and runs service validation before the handler.
func (s *Server) validatePostMapping() func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            if !requireJSON(w, r) { return }
            var req mappingRequest
            dec := json.NewDecoder(r.Body)
            dec.DisallowUnknownFields()
            if err := dec.Decode(&req); err != nil {
                badRequest(w, "invalid JSON: "+err.Error(), "invalid_json")
                return
            }
            m := toMappingDomain(req)
            if err := s.mappings.Validate(m); err != nil {
                writeErr(w, http.StatusUnprocessableEntity, err.Error(), "validation_error")
                return
            }
            ctx := context.WithValue(r.Context(), ctxKeyPostMapping, m)
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}
