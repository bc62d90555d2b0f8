package httpapi

import (
    "errors"
    "net/http"

    "github.com/tinoosan/bookkeeper/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
    Error string `json:"error"`
    Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
    toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg, code string) { writeErr(w, http.StatusBadRequest, msg, code) }

// writeServiceError maps domain sentinels onto status codes; anything unknown is a 500
// whose detail stays in the log.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
    switch {
    case errors.Is(err, errs.ErrUnknownInterval):
        badRequest(w, err.Error(), "unknown_interval")
    case errors.Is(err, errs.ErrZeroAmount):
        writeErr(w, http.StatusUnprocessableEntity, err.Error(), "zero_amount")
    case errors.Is(err, errs.ErrInvalid), errors.Is(err, errs.ErrUnprocessable):
        writeErr(w, http.StatusUnprocessableEntity, err.Error(), "validation_error")
    case errors.Is(err, errs.ErrNotFound):
        writeErr(w, http.StatusNotFound, "not_found", "not_found")
    case errors.Is(err, errs.ErrConflict), errors.Is(err, errs.ErrDuplicateTransaction):
        writeErr(w, http.StatusConflict, err.Error(), "conflict")
    default:
        s.log.Error("request failed", "path", r.URL.Path, "err", err)
        writeErr(w, http.StatusInternalServerError, "internal_error", "internal_error")
    }
}
