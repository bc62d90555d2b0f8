// Package trialbalance keeps per-subaccount, per-period aggregates in step with the journal.
//
// A row (subaccount, interval, period) exists when the subaccount has at least one entry
// labelled at or before period and period is the label of some entry. Balances are
// cumulative through the period; changes cover the period alone. Every value is derived
// from a full aggregate over the journal, so incremental maintenance and Refresh converge
// on the same rows.
package trialbalance

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "sort"
    "time"

    "github.com/tinoosan/bookkeeper/internal/errs"
    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/metrics"
    "github.com/tinoosan/bookkeeper/internal/storage"
)

// Service maintains trial balances.
type Service interface {
    // Apply brings every row affected by a journal change up to date inside tx.
    // before is the stored entry for an update and nil for an insert.
    Apply(ctx context.Context, tx storage.Tx, before *ledger.JournalEntry, after ledger.JournalEntry) error
    // Refresh truncates and rebuilds every row. Each step commits on its own.
    Refresh(ctx context.Context) (RefreshResult, error)
    // Verify recomputes every row and returns errs.ErrDrift on the first disagreement.
    Verify(ctx context.Context) error
}

// RefreshResult summarises a rebuild.
type RefreshResult struct {
    Steps    int
    Rows     int
    Duration time.Duration
}

type service struct {
    store    storage.Store
    currency string
    log      *slog.Logger
}

// New returns a Service computing amounts in the functional currency.
func New(store storage.Store, currency string, logger *slog.Logger) Service {
    if logger == nil { logger = slog.Default() }
    return &service{store: store, currency: currency, log: logger.With("component", "trialbalance")}
}

func (s *service) Apply(ctx context.Context, tx storage.Tx, before *ledger.JournalEntry, after ledger.JournalEntry) error {
    for _, iv := range ledger.Intervals() {
        if err := s.applyInterval(ctx, tx, iv, before, after); err != nil {
            return fmt.Errorf("maintain %s: %w", iv, err)
        }
    }
    return nil
}

func (s *service) applyInterval(ctx context.Context, tx storage.Tx, iv ledger.PeriodInterval, before *ledger.JournalEntry, after ledger.JournalEntry) error {
    period := iv.Label(after.Timestamp)
    from := period
    affected := make(map[string]struct{}, 4)
    for _, name := range after.Subaccounts() { affected[name] = struct{}{} }
    if before != nil {
        if old := iv.Label(before.Timestamp); old < from { from = old }
        for _, name := range before.Subaccounts() { affected[name] = struct{}{} }
    }
    subs := sortedNames(affected)

    // A backdated entry shifts every cumulative balance from its own bucket onward.
    labels, err := tx.Periods(ctx, iv, from)
    if err != nil { return err }
    for _, p := range labels {
        for _, name := range subs {
            if err := s.sync(ctx, tx, name, iv, p); err != nil { return err }
        }
    }

    // The entry opened a bucket: every other subaccount with history gets a row in it.
    n, err := tx.CountInPeriod(ctx, iv, period)
    if err != nil { return err }
    if n == 1 {
        others, err := tx.SubaccountsWithHistory(ctx, iv, period)
        if err != nil { return err }
        for _, name := range others {
            if _, ok := affected[name]; ok { continue }
            if err := s.sync(ctx, tx, name, iv, period); err != nil { return err }
        }
    }

    // An update can empty the bucket the entry moved out of.
    if before != nil {
        if old := iv.Label(before.Timestamp); old != period {
            n, err := tx.CountInPeriod(ctx, iv, old)
            if err != nil { return err }
            if n == 0 {
                if err := tx.DeletePeriod(ctx, iv, old); err != nil { return err }
            }
        }
    }
    return nil
}

// sync writes the recomputed row for (name, iv, p), or removes it when the subaccount has no history yet.
func (s *service) sync(ctx context.Context, tx storage.Tx, name string, iv ledger.PeriodInterval, p string) error {
    tb, ok, err := s.compute(ctx, tx, name, iv, p)
    if err != nil { return err }
    if !ok {
        return tx.DeleteTrialBalance(ctx, ledger.TrialBalanceKey{Subaccount: name, Interval: iv, Period: p})
    }
    if err := tx.UpsertTrialBalance(ctx, tb); err != nil { return err }
    metrics.TrialBalanceRowsWritten.Inc()
    return nil
}

// compute aggregates the journal for one row. ok is false when the subaccount has no entry
// labelled at or before p. Posted amounts are strictly positive, so zero cumulative sums on
// both sides mean no history.
func (s *service) compute(ctx context.Context, tx storage.Tx, name string, iv ledger.PeriodInterval, p string) (ledger.TrialBalance, bool, error) {
    debitBal, err := tx.Sum(ctx, ledger.SideDebit, name, iv, p, true)
    if err != nil { return ledger.TrialBalance{}, false, err }
    creditBal, err := tx.Sum(ctx, ledger.SideCredit, name, iv, p, true)
    if err != nil { return ledger.TrialBalance{}, false, err }
    if debitBal == 0 && creditBal == 0 { return ledger.TrialBalance{}, false, nil }
    debitChg, err := tx.Sum(ctx, ledger.SideDebit, name, iv, p, false)
    if err != nil { return ledger.TrialBalance{}, false, err }
    creditChg, err := tx.Sum(ctx, ledger.SideCredit, name, iv, p, false)
    if err != nil { return ledger.TrialBalance{}, false, err }
    tb, err := ledger.FillTrialBalance(
        ledger.TrialBalance{Subaccount: name, Interval: iv, Period: p},
        s.currency,
        debitBal, creditBal, debitBal-creditBal,
        debitChg, creditChg, debitChg-creditChg,
    )
    if err != nil { return ledger.TrialBalance{}, false, err }
    return tb, true, nil
}

func (s *service) Refresh(ctx context.Context) (RefreshResult, error) {
    start := time.Now()
    var res RefreshResult
    if err := s.store.Update(ctx, func(tx storage.Tx) error { return tx.TruncateTrialBalances(ctx) }); err != nil {
        return res, fmt.Errorf("truncate trial balances: %w", err)
    }

    var pairs []ledger.SubaccountPair
    labels := make(map[ledger.PeriodInterval][]string)
    err := s.store.View(ctx, func(tx storage.Tx) error {
        var err error
        if pairs, err = tx.SubaccountPairs(ctx); err != nil { return err }
        for _, iv := range ledger.Intervals() {
            if labels[iv], err = tx.Periods(ctx, iv, ""); err != nil { return err }
        }
        return nil
    })
    if err != nil { return res, err }

    for i, pair := range pairs {
        for _, iv := range ledger.Intervals() {
            for _, p := range labels[iv] {
                if err := ctx.Err(); err != nil { return res, err }
                written := 0
                err := s.store.Update(ctx, func(tx storage.Tx) error {
                    written = 0
                    for _, name := range []string{pair.Debit, pair.Credit} {
                        tb, ok, err := s.compute(ctx, tx, name, iv, p)
                        if err != nil { return err }
                        if !ok { continue }
                        if err := tx.UpsertTrialBalance(ctx, tb); err != nil { return err }
                        written++
                    }
                    return nil
                })
                if err != nil {
                    return res, fmt.Errorf("refresh %s/%s %s %s: %w", pair.Debit, pair.Credit, iv, p, err)
                }
                res.Steps++
                res.Rows += written
                metrics.TrialBalanceRowsWritten.Add(float64(written))
            }
        }
        s.log.Debug("refreshed subaccount pair", "pair", i+1, "of", len(pairs), "debit", pair.Debit, "credit", pair.Credit)
    }
    res.Duration = time.Since(start)
    metrics.RefreshDuration.Observe(res.Duration.Seconds())
    s.log.Info("trial balances refreshed", "pairs", len(pairs), "steps", res.Steps, "rows", res.Rows, "duration", res.Duration)
    return res, nil
}

func (s *service) Verify(ctx context.Context) error {
    err := s.store.View(ctx, func(tx storage.Tx) error {
        pairs, err := tx.SubaccountPairs(ctx)
        if err != nil { return err }
        names := make(map[string]struct{})
        for _, p := range pairs {
            names[p.Debit] = struct{}{}
            names[p.Credit] = struct{}{}
        }
        subs := sortedNames(names)
        for _, iv := range ledger.Intervals() {
            labels, err := tx.Periods(ctx, iv, "")
            if err != nil { return err }
            expected := 0
            for _, p := range labels {
                for _, name := range subs {
                    want, ok, err := s.compute(ctx, tx, name, iv, p)
                    if err != nil { return err }
                    key := ledger.TrialBalanceKey{Subaccount: name, Interval: iv, Period: p}
                    got, err := tx.TrialBalance(ctx, key)
                    switch {
                    case errors.Is(err, errs.ErrNotFound):
                        if ok { return fmt.Errorf("%w: missing row %s %s %s", errs.ErrDrift, name, iv, p) }
                        continue
                    case err != nil:
                        return err
                    case !ok:
                        return fmt.Errorf("%w: unexpected row %s %s %s", errs.ErrDrift, name, iv, p)
                    case !got.Equal(want):
                        return fmt.Errorf("%w: %s %s %s net balance %s, journal says %s",
                            errs.ErrDrift, name, iv, p, got.NetBalance, want.NetBalance)
                    }
                    expected++
                }
            }
            stored, err := tx.TrialBalances(ctx, storage.TrialBalanceFilter{Interval: iv})
            if err != nil { return err }
            if len(stored) != expected {
                return fmt.Errorf("%w: %s holds %d rows, journal implies %d", errs.ErrDrift, iv, len(stored), expected)
            }
        }
        return nil
    })
    if errors.Is(err, errs.ErrDrift) {
        metrics.DriftDetected.Inc()
        s.log.Error("trial balance drift detected", "error", err)
    }
    return err
}

func sortedNames(m map[string]struct{}) []string {
    out := make([]string, 0, len(m))
    for k := range m { out = append(out, k) }
    sort.Strings(out)
    return out
}
