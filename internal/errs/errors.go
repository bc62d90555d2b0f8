package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
    ErrNotFound = errors.New("not_found")
    ErrConflict = errors.New("conflict")
    ErrInvalid  = errors.New("invalid")
    // ErrUnprocessable is used for semantic validation failures (HTTP 422)
    ErrUnprocessable = errors.New("unprocessable")
    // ErrReadOnly is returned when a write is attempted inside a read-only unit of work
    ErrReadOnly = errors.New("read_only")

    // ErrDuplicateTransaction marks a repeated (transaction_id, transaction_source).
    // Importers treat it as a skip, not a failure.
    ErrDuplicateTransaction = errors.New("duplicate_transaction")
    // ErrZeroAmount marks a source transaction with no signed direction
    ErrZeroAmount = errors.New("zero_amount")
    // ErrUnknownInterval is returned for period intervals outside the supported set
    ErrUnknownInterval = errors.New("unknown_interval")
    // ErrDrift means stored trial balances disagree with the journal
    ErrDrift = errors.New("trial_balance_drift")
)
