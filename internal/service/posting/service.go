package posting

// Package posting validates journal entries and commits each one together with the
// trial balance maintenance it triggers, inside a single unit of work.

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"

    "github.com/google/uuid"

    "github.com/tinoosan/bookkeeper/internal/errs"
    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/metrics"
    "github.com/tinoosan/bookkeeper/internal/service/trialbalance"
    "github.com/tinoosan/bookkeeper/internal/storage"
)

// Service posts and edits journal entries.
type Service interface {
    ValidateEntry(e ledger.JournalEntry) error
    // Post inserts e and maintains trial balances in one unit of work.
    // A repeated (transaction_id, transaction_source) returns errs.ErrDuplicateTransaction.
    Post(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
    // PostTx is Post inside a unit of work owned by the caller.
    PostTx(ctx context.Context, tx storage.Tx, e ledger.JournalEntry) (ledger.JournalEntry, error)
    // Update replaces a stored entry; rows for both the old and new shape are maintained.
    Update(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error)
    // PostNewTransaction records an importer row for later categorisation.
    // It reports false when the row was already recorded.
    PostNewTransaction(ctx context.Context, nt ledger.NewTransaction) (bool, error)
}

type service struct {
    store    storage.Store
    balances trialbalance.Service
    currency string
    log      *slog.Logger
}

func New(store storage.Store, balances trialbalance.Service, currency string, logger *slog.Logger) Service {
    if logger == nil { logger = slog.Default() }
    return &service{store: store, balances: balances, currency: currency, log: logger.With("component", "posting")}
}

func (s *service) ValidateEntry(e ledger.JournalEntry) error {
    if strings.TrimSpace(e.DebitSubaccount) == "" || strings.TrimSpace(e.CreditSubaccount) == "" {
        return fmt.Errorf("%w: debit and credit subaccounts are required", errs.ErrInvalid)
    }
    if e.DebitSubaccount == e.CreditSubaccount {
        return fmt.Errorf("%w: debit and credit subaccounts must differ", errs.ErrInvalid)
    }
    if e.Timestamp.IsZero() {
        return fmt.Errorf("%w: timestamp is required", errs.ErrInvalid)
    }
    if ledger.Minor(e.FunctionalAmount) <= 0 {
        return fmt.Errorf("%w: amount must be > 0", errs.ErrZeroAmount)
    }
    if ledger.Minor(e.SourceAmount) < 0 {
        return fmt.Errorf("%w: source amount must not be negative", errs.ErrInvalid)
    }
    if code := e.FunctionalAmount.Curr().Code(); code != s.currency {
        return fmt.Errorf("%w: functional amount in %s, books kept in %s", errs.ErrInvalid, code, s.currency)
    }
    return nil
}

// normalize fills the defaults a manual posting may leave out.
func normalize(e ledger.JournalEntry) ledger.JournalEntry {
    if e.ID == uuid.Nil { e.ID = uuid.New() }
    e.TransactionSource = ledger.NormalizeSource(e.TransactionSource)
    if e.TransactionSource == "" { e.TransactionSource = ledger.SourceManual }
    if e.TransactionID == "" { e.TransactionID = e.ID.String() }
    if ledger.Minor(e.SourceAmount) == 0 { e.SourceAmount = e.FunctionalAmount }
    e.Timestamp = e.Timestamp.UTC()
    e.DebitSubaccount = strings.TrimSpace(e.DebitSubaccount)
    e.CreditSubaccount = strings.TrimSpace(e.CreditSubaccount)
    return e
}

func (s *service) Post(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
    var posted ledger.JournalEntry
    err := s.store.Update(ctx, func(tx storage.Tx) error {
        var err error
        posted, err = s.PostTx(ctx, tx, e)
        return err
    })
    if err != nil { return ledger.JournalEntry{}, err }
    return posted, nil
}

func (s *service) PostTx(ctx context.Context, tx storage.Tx, e ledger.JournalEntry) (ledger.JournalEntry, error) {
    e = normalize(e)
    if err := s.ValidateEntry(e); err != nil { return ledger.JournalEntry{}, err }
    if err := s.checkSubaccounts(ctx, tx, e); err != nil { return ledger.JournalEntry{}, err }
    if err := tx.InsertEntry(ctx, e); err != nil {
        if errors.Is(err, errs.ErrDuplicateTransaction) {
            metrics.DuplicatesSkipped.WithLabelValues(string(e.TransactionSource)).Inc()
            s.log.Debug("duplicate transaction skipped", "transaction_id", e.TransactionID, "source", e.TransactionSource)
        }
        return ledger.JournalEntry{}, err
    }
    if err := s.balances.Apply(ctx, tx, nil, e); err != nil { return ledger.JournalEntry{}, err }
    metrics.EntriesPosted.WithLabelValues(string(e.TransactionSource)).Inc()
    s.log.Debug("journal entry posted", "id", e.ID, "transaction_id", e.TransactionID,
        "debit", e.DebitSubaccount, "credit", e.CreditSubaccount, "amount", e.FunctionalAmount.String())
    return e, nil
}

func (s *service) Update(ctx context.Context, e ledger.JournalEntry) (ledger.JournalEntry, error) {
    if e.ID == uuid.Nil { return ledger.JournalEntry{}, fmt.Errorf("%w: id is required", errs.ErrInvalid) }
    err := s.store.Update(ctx, func(tx storage.Tx) error {
        before, err := tx.Entry(ctx, e.ID)
        if err != nil { return err }
        if e.TransactionID == "" { e.TransactionID = before.TransactionID }
        if e.TransactionSource == "" { e.TransactionSource = before.TransactionSource }
        if e.MappingID == nil { e.MappingID = before.MappingID }
        e = normalize(e)
        if err := s.ValidateEntry(e); err != nil { return err }
        if err := s.checkSubaccounts(ctx, tx, e); err != nil { return err }
        if err := tx.UpdateEntry(ctx, e); err != nil { return err }
        return s.balances.Apply(ctx, tx, &before, e)
    })
    if err != nil { return ledger.JournalEntry{}, err }
    s.log.Info("journal entry updated", "id", e.ID)
    return e, nil
}

func (s *service) checkSubaccounts(ctx context.Context, tx storage.Tx, e ledger.JournalEntry) error {
    for _, name := range e.Subaccounts() {
        if _, err := tx.Subaccount(ctx, name); err != nil {
            return fmt.Errorf("subaccount %q: %w", name, err)
        }
    }
    return nil
}

func (s *service) PostNewTransaction(ctx context.Context, nt ledger.NewTransaction) (bool, error) {
    nt.ID = strings.TrimSpace(nt.ID)
    nt.Account = strings.TrimSpace(nt.Account)
    nt.Source = ledger.NormalizeSource(nt.Source)
    if nt.ID == "" || nt.Source == "" || nt.Account == "" {
        return false, fmt.Errorf("%w: id, source and account are required", errs.ErrInvalid)
    }
    if nt.Timestamp.IsZero() { return false, fmt.Errorf("%w: timestamp is required", errs.ErrInvalid) }
    nt.Timestamp = nt.Timestamp.UTC()
    var inserted bool
    err := s.store.Update(ctx, func(tx storage.Tx) error {
        var err error
        inserted, err = tx.InsertNewTransaction(ctx, nt)
        return err
    })
    return inserted, err
}
