// Package taxonomy manages the four-level chart of accounts:
// Element, Classification, Account, Subaccount. Elements are fixed by the dictionary;
// the lower levels are seeded from CSV or created on demand under a default parent.
package taxonomy

import (
    "context"
    "encoding/csv"
    "errors"
    "fmt"
    "io"
    "log/slog"
    "strings"

    "github.com/tinoosan/bookkeeper/internal/dictionary"
    "github.com/tinoosan/bookkeeper/internal/errs"
    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/slug"
    "github.com/tinoosan/bookkeeper/internal/storage"
    "github.com/tinoosan/bookkeeper/internal/tags"
)

type Service interface {
    // SeedCSV creates every level named by a chart-of-accounts CSV. Existing names are left
    // untouched. When any row is invalid nothing is written and the per-row errors are returned.
    SeedCSV(ctx context.Context, r io.Reader) (SeedResult, []ItemError, error)
    // EnsureSubaccount creates name under the default parent account unless it exists.
    EnsureSubaccount(ctx context.Context, tx storage.Tx, name string) (bool, error)
    CreateSubaccount(ctx context.Context, s ledger.Subaccount) error
    Lineages(ctx context.Context) ([]ledger.Lineage, error)
}

// ItemError represents a per-row failure while seeding.
// Index is the zero-based data row, not counting the header.
type ItemError struct {
    Index int
    Code  string
    Err   error
}

func (e ItemError) Error() string { return fmt.Sprintf("row %d: %s: %v", e.Index, e.Code, e.Err) }

// SeedResult counts the names created at each level.
type SeedResult struct {
    Elements        int
    Classifications int
    Accounts        int
    Subaccounts     int
}

type service struct {
    store         storage.Store
    defaultParent string
    log           *slog.Logger
}

// New returns a Service. defaultParent names the account that receives auto-created
// subaccounts; it falls back to dictionary.DefaultParentAccount.
func New(store storage.Store, defaultParent string, logger *slog.Logger) Service {
    if defaultParent == "" { defaultParent = dictionary.DefaultParentAccount }
    if logger == nil { logger = slog.Default() }
    return &service{store: store, defaultParent: defaultParent, log: logger.With("component", "taxonomy")}
}

type chartRow struct {
    element, classification, account, cashSource, subaccount string
    tags                                                     tags.Tags
}

var requiredColumns = []string{"element", "classification", "account"}

func (s *service) SeedCSV(ctx context.Context, r io.Reader) (SeedResult, []ItemError, error) {
    rows, itemErrs, err := readChart(r)
    if err != nil { return SeedResult{}, nil, err }
    if len(itemErrs) > 0 { return SeedResult{}, itemErrs, nil }

    var res SeedResult
    err = s.store.Update(ctx, func(tx storage.Tx) error {
        res = SeedResult{}
        for _, row := range rows {
            created, err := ignoreConflict(tx.CreateElement(ctx, ledger.Element{Name: row.element}))
            if err != nil { return fmt.Errorf("element %q: %w", row.element, err) }
            if created { res.Elements++ }
            created, err = ignoreConflict(tx.CreateClassification(ctx, ledger.Classification{Name: row.classification, Parent: row.element}))
            if err != nil { return fmt.Errorf("classification %q: %w", row.classification, err) }
            if created { res.Classifications++ }
            created, err = ignoreConflict(tx.CreateAccount(ctx, ledger.Account{Name: row.account, Parent: row.classification, CashSource: row.cashSource}))
            if err != nil { return fmt.Errorf("account %q: %w", row.account, err) }
            if created { res.Accounts++ }
            if row.subaccount == "" { continue }
            created, err = ignoreConflict(tx.CreateSubaccount(ctx, ledger.Subaccount{Name: row.subaccount, Parent: row.account, Tags: row.tags}))
            if err != nil { return fmt.Errorf("subaccount %q: %w", row.subaccount, err) }
            if created { res.Subaccounts++ }
        }
        return nil
    })
    if err != nil { return SeedResult{}, nil, err }
    s.log.Info("chart of accounts seeded", "rows", len(rows), "classifications", res.Classifications,
        "accounts", res.Accounts, "subaccounts", res.Subaccounts)
    return res, nil, nil
}

// readChart parses and validates the whole file before anything is written.
func readChart(r io.Reader) ([]chartRow, []ItemError, error) {
    cr := csv.NewReader(r)
    cr.TrimLeadingSpace = true
    cr.FieldsPerRecord = -1
    header, err := cr.Read()
    if err != nil { return nil, nil, fmt.Errorf("read header: %w", err) }
    cols := make(map[string]int, len(header))
    for i, h := range header { cols[slug.Slugify(h)] = i }
    for _, c := range requiredColumns {
        if _, ok := cols[c]; !ok { return nil, nil, fmt.Errorf("%w: missing column %q", errs.ErrInvalid, c) }
    }
    field := func(rec []string, name string) string {
        i, ok := cols[name]
        if !ok || i >= len(rec) { return "" }
        return strings.TrimSpace(rec[i])
    }

    var rows []chartRow
    var itemErrs []ItemError
    for i := 0; ; i++ {
        rec, err := cr.Read()
        if errors.Is(err, io.EOF) { break }
        if err != nil { return nil, nil, fmt.Errorf("read row %d: %w", i, err) }
        row := chartRow{
            element:        field(rec, "element"),
            classification: field(rec, "classification"),
            account:        field(rec, "account"),
            cashSource:     field(rec, "cash_source"),
            subaccount:     field(rec, "subaccount"),
        }
        if row.element == "" && row.classification == "" && row.account == "" { continue }
        if _, ok := dictionary.Lookup(row.element); !ok {
            itemErrs = append(itemErrs, ItemError{Index: i, Code: "unknown_element", Err: fmt.Errorf("%q", row.element)})
            continue
        }
        if row.classification == "" || row.account == "" {
            itemErrs = append(itemErrs, ItemError{Index: i, Code: "validation_error", Err: errors.New("classification and account are required")})
            continue
        }
        if raw := field(rec, "tags"); raw != "" {
            t, err := tags.Parse(raw)
            if err != nil {
                itemErrs = append(itemErrs, ItemError{Index: i, Code: "invalid_tags", Err: err})
                continue
            }
            row.tags = t
        }
        rows = append(rows, row)
    }
    return rows, itemErrs, nil
}

func ignoreConflict(err error) (bool, error) {
    if errors.Is(err, errs.ErrConflict) { return false, nil }
    return err == nil, err
}

func (s *service) EnsureSubaccount(ctx context.Context, tx storage.Tx, name string) (bool, error) {
    name = strings.TrimSpace(name)
    if name == "" { return false, fmt.Errorf("%w: subaccount name is required", errs.ErrInvalid) }
    _, err := tx.Subaccount(ctx, name)
    if err == nil { return false, nil }
    if !errors.Is(err, errs.ErrNotFound) { return false, err }
    if _, err := tx.Account(ctx, s.defaultParent); err != nil {
        if errors.Is(err, errs.ErrNotFound) {
            return false, fmt.Errorf("%w: default parent account %q does not exist", errs.ErrUnprocessable, s.defaultParent)
        }
        return false, fmt.Errorf("default parent account %q: %w", s.defaultParent, err)
    }
    if err := tx.CreateSubaccount(ctx, ledger.Subaccount{Name: name, Parent: s.defaultParent}); err != nil {
        return false, err
    }
    s.log.Info("subaccount created", "subaccount", name, "parent", s.defaultParent)
    return true, nil
}

func (s *service) CreateSubaccount(ctx context.Context, sub ledger.Subaccount) error {
    sub.Name = strings.TrimSpace(sub.Name)
    sub.Parent = strings.TrimSpace(sub.Parent)
    if sub.Name == "" || sub.Parent == "" { return fmt.Errorf("%w: name and parent are required", errs.ErrInvalid) }
    if err := sub.Tags.Validate(); err != nil { return fmt.Errorf("%w: %v", errs.ErrInvalid, err) }
    return s.store.Update(ctx, func(tx storage.Tx) error { return tx.CreateSubaccount(ctx, sub) })
}

func (s *service) Lineages(ctx context.Context) ([]ledger.Lineage, error) {
    var out []ledger.Lineage
    err := s.store.View(ctx, func(tx storage.Tx) error {
        var err error
        out, err = tx.Lineages(ctx)
        return err
    })
    return out, err
}
