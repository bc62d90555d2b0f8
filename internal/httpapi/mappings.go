package httpapi

import (
    "net/http"

    "github.com/tinoosan/bookkeeper/internal/ledger"
)

// GET /v1/mappings?source=
func (s *Server) listMappings(w http.ResponseWriter, r *http.Request) {
    ms, err := s.mappings.Mappings(r.Context())
    if err != nil { s.writeServiceError(w, r, err); return }
    source := ledger.NormalizeSource(ledger.Source(r.URL.Query().Get("source")))
    out := make([]mappingResponse, 0, len(ms))
    for _, m := range ms {
        if source != "" && m.Source != source { continue }
        out = append(out, toMappingResponse(m))
    }
    toJSON(w, http.StatusOK, map[string]any{"items": out})
}

// POST /v1/mappings stores the rule and applies it to unmatched transactions.
// An existing rule with the same source and keyword is reused.
func (s *Server) postMapping(w http.ResponseWriter, r *http.Request) {
    m := r.Context().Value(ctxKeyPostMapping).(ledger.Mapping)
    saved, res, err := s.mappings.Create(r.Context(), m)
    if err != nil { s.writeServiceError(w, r, err); return }
    toJSON(w, http.StatusCreated, createMappingResponse{Mapping: toMappingResponse(saved), Result: res})
}

// GET /v1/mappings/overlaps?source=
func (s *Server) mappingOverlaps(w http.ResponseWriter, r *http.Request) {
    ovs, err := s.mappings.Overlaps(r.Context(), ledger.Source(r.URL.Query().Get("source")))
    if err != nil { s.writeServiceError(w, r, err); return }
    if ovs == nil { toJSON(w, http.StatusOK, map[string]any{"items": []any{}}); return }
    toJSON(w, http.StatusOK, map[string]any{"items": ovs})
}
