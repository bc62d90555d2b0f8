// Package report projects trial balances and journal entries into statements.
// Nothing here writes; every call runs in a read-only unit of work.
package report

import (
    "context"
    "sort"

    "github.com/govalues/money"

    "github.com/tinoosan/bookkeeper/internal/dictionary"
    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/storage"
)

const (
    incomePeriodLimit  = 10
    balancePeriodLimit = 30
)

// Line is one subaccount on a statement.
type Line struct {
    Element        string
    Classification string
    Account        string
    Subaccount     string
    Amount         money.Amount
}

// Statement is an income statement or balance sheet for one period.
// Total is net income for the income statement and net equity for the balance sheet,
// both shown credit-positive.
type Statement struct {
    Interval ledger.PeriodInterval
    Period   string
    Lines    []Line
    Total    money.Amount
}

// EntryQuery selects journal entries. A set Interval with an empty Period means the latest period.
type EntryQuery struct {
    Subaccount string
    Interval   ledger.PeriodInterval
    Period     string
    Cumulative bool
    Limit      int
}

type Service interface {
    IncomeStatement(ctx context.Context, iv ledger.PeriodInterval, period string) (Statement, error)
    BalanceSheet(ctx context.Context, iv ledger.PeriodInterval, period string) (Statement, error)
    // IncomeStatementPeriods lists, newest first, periods with income or expense activity.
    IncomeStatementPeriods(ctx context.Context, iv ledger.PeriodInterval) ([]string, error)
    // BalanceSheetPeriods lists, newest first, periods with a non-zero balance sheet row.
    BalanceSheetPeriods(ctx context.Context, iv ledger.PeriodInterval) ([]string, error)
    JournalEntries(ctx context.Context, q EntryQuery) ([]ledger.EntryDetail, error)
    TrialBalances(ctx context.Context, iv ledger.PeriodInterval, period string) ([]ledger.TrialBalance, error)
}

type service struct {
    store    storage.Store
    currency string
}

func New(store storage.Store, currency string) Service { return &service{store: store, currency: currency} }

// resolveInterval defaults to monthly and rejects anything else unknown.
func resolveInterval(iv ledger.PeriodInterval) (ledger.PeriodInterval, error) {
    if iv == "" { return ledger.IntervalMonth, nil }
    return ledger.ParseInterval(string(iv))
}

// row reads the figure a statement shows for a trial balance row.
type row func(tb ledger.TrialBalance) money.Amount

func netChanges(tb ledger.TrialBalance) money.Amount { return tb.NetChanges }
func netBalance(tb ledger.TrialBalance) money.Amount { return tb.NetBalance }

func (s *service) IncomeStatement(ctx context.Context, iv ledger.PeriodInterval, period string) (Statement, error) {
    return s.statement(ctx, dictionary.StatementIncome, netChanges, iv, period, func(tx storage.Tx, iv ledger.PeriodInterval) (string, error) {
        ps, err := s.statementPeriods(ctx, tx, dictionary.StatementIncome, netChanges, iv, 1)
        if err != nil || len(ps) == 0 { return "", err }
        return ps[0], nil
    })
}

func (s *service) BalanceSheet(ctx context.Context, iv ledger.PeriodInterval, period string) (Statement, error) {
    return s.statement(ctx, dictionary.StatementBalance, netBalance, iv, period, func(tx storage.Tx, iv ledger.PeriodInterval) (string, error) {
        return latestPeriod(ctx, tx, iv)
    })
}

func (s *service) statement(ctx context.Context, st dictionary.Statement, figure row, iv ledger.PeriodInterval, period string,
    defaultPeriod func(storage.Tx, ledger.PeriodInterval) (string, error)) (Statement, error) {
    iv, err := resolveInterval(iv)
    if err != nil { return Statement{}, err }
    out := Statement{Interval: iv, Period: period, Lines: []Line{}}
    err = s.store.View(ctx, func(tx storage.Tx) error {
        if out.Period == "" {
            p, err := defaultPeriod(tx, iv)
            if err != nil { return err }
            out.Period = p
        }
        if out.Period == "" { return nil }
        lines, err := s.lines(ctx, tx, st, figure, iv, out.Period)
        if err != nil { return err }
        out.Lines = lines
        return nil
    })
    if err != nil { return Statement{}, err }
    var sum int64
    for _, l := range out.Lines { sum += ledger.Minor(l.Amount) }
    out.Total, err = ledger.NewAmount(s.currency, -sum)
    if err != nil { return Statement{}, err }
    return out, nil
}

// lines joins trial balance rows of one period with their lineage and keeps the non-zero
// rows of the statement's elements, in chart order.
func (s *service) lines(ctx context.Context, tx storage.Tx, st dictionary.Statement, figure row, iv ledger.PeriodInterval, period string) ([]Line, error) {
    rank := elementRank(st)
    lineages, err := lineageIndex(ctx, tx)
    if err != nil { return nil, err }
    rows, err := tx.TrialBalances(ctx, storage.TrialBalanceFilter{Interval: iv, Period: period})
    if err != nil { return nil, err }
    out := make([]Line, 0, len(rows))
    for _, tb := range rows {
        l, ok := lineages[tb.Subaccount]
        if !ok { continue }
        if _, ok := rank[l.Element]; !ok { continue }
        amt := figure(tb)
        if ledger.Minor(amt) == 0 { continue }
        out = append(out, Line{Element: l.Element, Classification: l.Classification, Account: l.Account, Subaccount: l.Subaccount, Amount: amt})
    }
    sort.SliceStable(out, func(i, j int) bool {
        a, b := out[i], out[j]
        if a.Element != b.Element { return rank[a.Element] < rank[b.Element] }
        if a.Classification != b.Classification { return a.Classification < b.Classification }
        if a.Account != b.Account { return a.Account < b.Account }
        return a.Subaccount < b.Subaccount
    })
    return out, nil
}

func (s *service) IncomeStatementPeriods(ctx context.Context, iv ledger.PeriodInterval) ([]string, error) {
    return s.periods(ctx, dictionary.StatementIncome, netChanges, iv, incomePeriodLimit)
}

func (s *service) BalanceSheetPeriods(ctx context.Context, iv ledger.PeriodInterval) ([]string, error) {
    return s.periods(ctx, dictionary.StatementBalance, netBalance, iv, balancePeriodLimit)
}

func (s *service) periods(ctx context.Context, st dictionary.Statement, figure row, iv ledger.PeriodInterval, limit int) ([]string, error) {
    iv, err := resolveInterval(iv)
    if err != nil { return nil, err }
    var out []string
    err = s.store.View(ctx, func(tx storage.Tx) error {
        var err error
        out, err = s.statementPeriods(ctx, tx, st, figure, iv, limit)
        return err
    })
    return out, err
}

// statementPeriods returns, newest first, up to limit periods holding a non-zero row of st.
func (s *service) statementPeriods(ctx context.Context, tx storage.Tx, st dictionary.Statement, figure row, iv ledger.PeriodInterval, limit int) ([]string, error) {
    rank := elementRank(st)
    lineages, err := lineageIndex(ctx, tx)
    if err != nil { return nil, err }
    rows, err := tx.TrialBalances(ctx, storage.TrialBalanceFilter{Interval: iv})
    if err != nil { return nil, err }
    seen := make(map[string]struct{})
    for _, tb := range rows {
        if _, ok := rank[lineages[tb.Subaccount].Element]; !ok { continue }
        if ledger.Minor(figure(tb)) == 0 { continue }
        seen[tb.Period] = struct{}{}
    }
    out := make([]string, 0, len(seen))
    for p := range seen { out = append(out, p) }
    sort.Sort(sort.Reverse(sort.StringSlice(out)))
    if len(out) > limit { out = out[:limit] }
    return out, nil
}

func (s *service) JournalEntries(ctx context.Context, q EntryQuery) ([]ledger.EntryDetail, error) {
    f := storage.EntryFilter{Subaccount: q.Subaccount, Period: q.Period, Cumulative: q.Cumulative, Limit: q.Limit}
    if q.Interval != "" {
        iv, err := ledger.ParseInterval(string(q.Interval))
        if err != nil { return nil, err }
        f.Interval = iv
    }
    var out []ledger.EntryDetail
    err := s.store.View(ctx, func(tx storage.Tx) error {
        if f.Interval != "" && f.Period == "" {
            p, err := latestPeriod(ctx, tx, f.Interval)
            if err != nil { return err }
            if p == "" {
                out = []ledger.EntryDetail{}
                return nil
            }
            f.Period = p
        }
        var err error
        out, err = tx.Entries(ctx, f)
        return err
    })
    return out, err
}

func (s *service) TrialBalances(ctx context.Context, iv ledger.PeriodInterval, period string) ([]ledger.TrialBalance, error) {
    iv, err := resolveInterval(iv)
    if err != nil { return nil, err }
    var out []ledger.TrialBalance
    err = s.store.View(ctx, func(tx storage.Tx) error {
        if period == "" {
            p, err := latestPeriod(ctx, tx, iv)
            if err != nil || p == "" {
                out = []ledger.TrialBalance{}
                return err
            }
            period = p
        }
        var err error
        out, err = tx.TrialBalances(ctx, storage.TrialBalanceFilter{Interval: iv, Period: period})
        return err
    })
    return out, err
}

// latestPeriod is the label of the most recent journal entry, or "" for an empty journal.
func latestPeriod(ctx context.Context, tx storage.Tx, iv ledger.PeriodInterval) (string, error) {
    ps, err := tx.Periods(ctx, iv, "")
    if err != nil || len(ps) == 0 { return "", err }
    return ps[len(ps)-1], nil
}

func lineageIndex(ctx context.Context, tx storage.Tx) (map[string]ledger.Lineage, error) {
    ls, err := tx.Lineages(ctx)
    if err != nil { return nil, err }
    out := make(map[string]ledger.Lineage, len(ls))
    for _, l := range ls { out[l.Subaccount] = l }
    return out, nil
}

func elementRank(st dictionary.Statement) map[string]int {
    names := dictionary.ElementsFor(st)
    out := make(map[string]int, len(names))
    for i, n := range names { out[n] = i }
    return out
}
