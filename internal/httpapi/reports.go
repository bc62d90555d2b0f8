package httpapi

import (
    "context"
    "net/http"

    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/service/report"
)

// GET /v1/trial-balances?interval=&period=
func (s *Server) trialBalances(w http.ResponseWriter, r *http.Request) {
    q := r.Context().Value(ctxKeyStatementQuery).(statementQuery)
    rows, err := s.reports.TrialBalances(r.Context(), q.Interval, q.Period)
    if err != nil { s.writeServiceError(w, r, err); return }
    out := make([]trialBalanceResponse, 0, len(rows))
    for _, tb := range rows { out = append(out, toTrialBalanceResponse(tb)) }
    toJSON(w, http.StatusOK, map[string]any{"items": out})
}

// GET /v1/income-statement?interval=&period=
func (s *Server) incomeStatement(w http.ResponseWriter, r *http.Request) {
    q := r.Context().Value(ctxKeyStatementQuery).(statementQuery)
    st, err := s.reports.IncomeStatement(r.Context(), q.Interval, q.Period)
    if err != nil { s.writeServiceError(w, r, err); return }
    toJSON(w, http.StatusOK, toStatementResponse(st, s.currency))
}

// GET /v1/balance-sheet?interval=&period=
func (s *Server) balanceSheet(w http.ResponseWriter, r *http.Request) {
    q := r.Context().Value(ctxKeyStatementQuery).(statementQuery)
    st, err := s.reports.BalanceSheet(r.Context(), q.Interval, q.Period)
    if err != nil { s.writeServiceError(w, r, err); return }
    toJSON(w, http.StatusOK, toStatementResponse(st, s.currency))
}

func (s *Server) incomeStatementPeriods(w http.ResponseWriter, r *http.Request) {
    s.periods(w, r, s.reports.IncomeStatementPeriods)
}

func (s *Server) balanceSheetPeriods(w http.ResponseWriter, r *http.Request) {
    s.periods(w, r, s.reports.BalanceSheetPeriods)
}

func (s *Server) periods(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, iv ledger.PeriodInterval) ([]string, error)) {
    q := r.Context().Value(ctxKeyStatementQuery).(statementQuery)
    ps, err := list(r.Context(), q.Interval)
    if err != nil { s.writeServiceError(w, r, err); return }
    if ps == nil { ps = []string{} }
    toJSON(w, http.StatusOK, periodsResponse{Interval: q.Interval, Periods: ps})
}

// GET /v1/journal-entries?subaccount=&interval=&period=&cumulative=&limit=
func (s *Server) journalEntries(w http.ResponseWriter, r *http.Request) {
    q := r.Context().Value(ctxKeyListEntries).(report.EntryQuery)
    entries, err := s.reports.JournalEntries(r.Context(), q)
    if err != nil { s.writeServiceError(w, r, err); return }
    out := make([]entryResponse, 0, len(entries))
    for _, e := range entries { out = append(out, toEntryResponse(e)) }
    toJSON(w, http.StatusOK, map[string]any{"items": out})
}
