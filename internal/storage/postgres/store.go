package postgres

// Package postgres provides the pgx-backed storage.Store.
//
// Every unit of work is a database transaction. Uniqueness, non-negative amounts
// and subaccount references are enforced by the schema in db/migrations; this
// package translates constraint violations into errs sentinels.

import (
    "context"
    "errors"
    "fmt"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgconn"
    "github.com/jackc/pgx/v5/pgxpool"

    "github.com/tinoosan/bookkeeper/db"
    "github.com/tinoosan/bookkeeper/internal/errs"
    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/storage"
    "github.com/tinoosan/bookkeeper/internal/tags"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
    pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
    cfg, err := pgxpool.ParseConfig(dsn)
    if err != nil { return nil, err }
    pool, err := pgxpool.NewWithConfig(ctx, cfg)
    if err != nil { return nil, err }
    // Verify connection
    if err := pool.Ping(ctx); err != nil { pool.Close(); return nil, err }
    return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { if s.pool != nil { s.pool.Close() } }

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
    sql, err := db.InitSQL()
    if err != nil { return err }
    _, err = s.pool.Exec(ctx, sql)
    return err
}

// View implements storage.Store with a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
    return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
    return s.run(ctx, pgx.TxOptions{}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(tx storage.Tx) error) error {
    tx, err := s.pool.BeginTx(ctx, opts)
    if err != nil { return err }
    if err := fn(&Tx{tx: tx}); err != nil { _ = tx.Rollback(ctx); return err }
    return tx.Commit(ctx)
}

// Tx wraps a pgx.Tx and implements storage.Tx.
type Tx struct{ tx pgx.Tx }

// --- Taxonomy ---

// inserted reports a row skipped by "on conflict do nothing" as ErrConflict.
// A raised unique violation would abort the enclosing transaction.
func inserted(what string, ct pgconn.CommandTag, err error) error {
    if err != nil { return mapErr(err) }
    if ct.RowsAffected() == 0 { return fmt.Errorf("%w: %s already exists", errs.ErrConflict, what) }
    return nil
}

func (t *Tx) CreateElement(ctx context.Context, e ledger.Element) error {
    ct, err := t.tx.Exec(ctx, `insert into elements (name) values ($1) on conflict (name) do nothing`, e.Name)
    return inserted("element "+e.Name, ct, err)
}

func (t *Tx) CreateClassification(ctx context.Context, c ledger.Classification) error {
    ct, err := t.tx.Exec(ctx, `
        insert into classifications (name, parent) values ($1,$2)
        on conflict (name) do nothing
    `, c.Name, c.Parent)
    return inserted("classification "+c.Name, ct, err)
}

func (t *Tx) CreateAccount(ctx context.Context, a ledger.Account) error {
    ct, err := t.tx.Exec(ctx, `
        insert into accounts (name, parent, cash_source) values ($1,$2,$3)
        on conflict (name) do nothing
    `, a.Name, a.Parent, a.CashSource)
    return inserted("account "+a.Name, ct, err)
}

func (t *Tx) CreateSubaccount(ctx context.Context, s ledger.Subaccount) error {
    tg, _ := s.Tags.MarshalJSON()
    ct, err := t.tx.Exec(ctx, `
        insert into subaccounts (name, parent, description, tags)
        values ($1,$2,$3,$4)
        on conflict (name) do nothing
    `, s.Name, s.Parent, s.Description, tg)
    return inserted("subaccount "+s.Name, ct, err)
}

func (t *Tx) Account(ctx context.Context, name string) (ledger.Account, error) {
    var a ledger.Account
    err := t.tx.QueryRow(ctx, `select name, parent, cash_source from accounts where name = $1`, name).Scan(&a.Name, &a.Parent, &a.CashSource)
    if errors.Is(err, pgx.ErrNoRows) { return ledger.Account{}, errs.ErrNotFound }
    return a, err
}

func (t *Tx) Subaccount(ctx context.Context, name string) (ledger.Subaccount, error) {
    var s ledger.Subaccount
    var tagBytes []byte
    err := t.tx.QueryRow(ctx, `select name, parent, description, tags from subaccounts where name = $1`, name).Scan(&s.Name, &s.Parent, &s.Description, &tagBytes)
    if errors.Is(err, pgx.ErrNoRows) { return ledger.Subaccount{}, errs.ErrNotFound }
    if err != nil { return ledger.Subaccount{}, err }
    var tg tags.Tags
    if err := tg.UnmarshalJSON(tagBytes); err == nil { s.Tags = tg }
    return s, nil
}

func (t *Tx) Lineages(ctx context.Context) ([]ledger.Lineage, error) {
    rows, err := t.tx.Query(ctx, `
        select s.name, a.name, c.name, c.parent
        from subaccounts s
        join accounts a on a.name = s.parent
        join classifications c on c.name = a.parent
        order by c.parent, c.name, a.name, s.name
    `)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.Lineage, 0)
    for rows.Next() {
        var l ledger.Lineage
        if err := rows.Scan(&l.Subaccount, &l.Account, &l.Classification, &l.Element); err != nil { return nil, err }
        out = append(out, l)
    }
    return out, rows.Err()
}

// --- Journal ---

const entryColumns = `e.id, e.transaction_id, e.transaction_source, e.mapping_id, e."timestamp",
    e.debit_subaccount, e.credit_subaccount, e.functional_amount_minor, e.functional_currency,
    e.source_amount_minor, e.source_currency`

func (t *Tx) InsertEntry(ctx context.Context, e ledger.JournalEntry) error {
    p := ledger.Labels(e.Timestamp)
    ct, err := t.tx.Exec(ctx, `
        insert into journal_entries (id, transaction_id, transaction_source, mapping_id, "timestamp",
            debit_subaccount, credit_subaccount, functional_amount_minor, functional_currency,
            source_amount_minor, source_currency,
            period_year, period_quarter, period_month, period_week, period_day)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        on conflict (transaction_id, transaction_source) do nothing
    `, e.ID, e.TransactionID, string(e.TransactionSource), e.MappingID, e.Timestamp.UTC(),
        e.DebitSubaccount, e.CreditSubaccount, ledger.Minor(e.FunctionalAmount), e.FunctionalAmount.Curr().Code(),
        ledger.Minor(e.SourceAmount), e.SourceAmount.Curr().Code(),
        p[ledger.IntervalYear], p[ledger.IntervalQuarter], p[ledger.IntervalMonth], p[ledger.IntervalWeek], p[ledger.IntervalDay])
    if err != nil { return mapErr(err) }
    if ct.RowsAffected() == 0 { return errs.ErrDuplicateTransaction }
    return nil
}

func (t *Tx) UpdateEntry(ctx context.Context, e ledger.JournalEntry) error {
    p := ledger.Labels(e.Timestamp)
    ct, err := t.tx.Exec(ctx, `
        update journal_entries
        set transaction_id=$2, transaction_source=$3, mapping_id=$4, "timestamp"=$5,
            debit_subaccount=$6, credit_subaccount=$7, functional_amount_minor=$8, functional_currency=$9,
            source_amount_minor=$10, source_currency=$11,
            period_year=$12, period_quarter=$13, period_month=$14, period_week=$15, period_day=$16
        where id=$1
    `, e.ID, e.TransactionID, string(e.TransactionSource), e.MappingID, e.Timestamp.UTC(),
        e.DebitSubaccount, e.CreditSubaccount, ledger.Minor(e.FunctionalAmount), e.FunctionalAmount.Curr().Code(),
        ledger.Minor(e.SourceAmount), e.SourceAmount.Curr().Code(),
        p[ledger.IntervalYear], p[ledger.IntervalQuarter], p[ledger.IntervalMonth], p[ledger.IntervalWeek], p[ledger.IntervalDay])
    if err != nil { return mapErr(err) }
    if ct.RowsAffected() == 0 { return errs.ErrNotFound }
    return nil
}

func (t *Tx) Entry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
    row := t.tx.QueryRow(ctx, `select `+entryColumns+`, '' from journal_entries e where e.id = $1`, id)
    d, err := scanEntry(row)
    if errors.Is(err, pgx.ErrNoRows) { return ledger.JournalEntry{}, errs.ErrNotFound }
    return d.JournalEntry, err
}

func (t *Tx) Entries(ctx context.Context, f storage.EntryFilter) ([]ledger.EntryDetail, error) {
    q := `select ` + entryColumns + `, coalesce(n.description, '')
        from journal_entries e
        left join new_transactions n on n.id = e.transaction_id and n.source = e.transaction_source
        where true`
    args := []any{}
    if f.Subaccount != "" {
        args = append(args, f.Subaccount)
        q += fmt.Sprintf(` and (e.debit_subaccount = $%d or e.credit_subaccount = $%d)`, len(args), len(args))
    }
    if f.Source != "" {
        args = append(args, string(f.Source))
        q += fmt.Sprintf(` and e.transaction_source = $%d`, len(args))
    }
    if f.Interval != "" && f.Period != "" {
        col, err := column(f.Interval)
        if err != nil { return nil, err }
        op := "="
        if f.Cumulative { op = "<=" }
        args = append(args, f.Period)
        q += fmt.Sprintf(` and e.%s %s $%d`, col, op, len(args))
    }
    q += ` order by e."timestamp" desc, e.id::text asc`
    if f.Limit > 0 {
        args = append(args, f.Limit)
        q += fmt.Sprintf(` limit $%d`, len(args))
    }
    rows, err := t.tx.Query(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.EntryDetail, 0)
    for rows.Next() {
        d, err := scanEntry(rows)
        if err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (t *Tx) SubaccountPairs(ctx context.Context) ([]ledger.SubaccountPair, error) {
    rows, err := t.tx.Query(ctx, `
        select distinct debit_subaccount, credit_subaccount
        from journal_entries
        order by debit_subaccount, credit_subaccount
    `)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.SubaccountPair, 0)
    for rows.Next() {
        var p ledger.SubaccountPair
        if err := rows.Scan(&p.Debit, &p.Credit); err != nil { return nil, err }
        out = append(out, p)
    }
    return out, rows.Err()
}

func (t *Tx) Periods(ctx context.Context, iv ledger.PeriodInterval, from string) ([]string, error) {
    col, err := column(iv)
    if err != nil { return nil, err }
    return t.strings(ctx, fmt.Sprintf(`select distinct %[1]s from journal_entries where %[1]s >= $1 order by 1`, col), from)
}

func (t *Tx) CountInPeriod(ctx context.Context, iv ledger.PeriodInterval, period string) (int, error) {
    col, err := column(iv)
    if err != nil { return 0, err }
    var n int
    err = t.tx.QueryRow(ctx, fmt.Sprintf(`select count(*) from journal_entries where %s = $1`, col), period).Scan(&n)
    return n, err
}

func (t *Tx) Sum(ctx context.Context, side ledger.Side, subaccount string, iv ledger.PeriodInterval, period string, cumulative bool) (int64, error) {
    col, err := column(iv)
    if err != nil { return 0, err }
    sideCol := "debit_subaccount"
    if side == ledger.SideCredit { sideCol = "credit_subaccount" }
    op := "="
    if cumulative { op = "<=" }
    var total int64
    err = t.tx.QueryRow(ctx, fmt.Sprintf(`
        select coalesce(sum(functional_amount_minor), 0)::bigint
        from journal_entries
        where %s = $1 and %s %s $2
    `, sideCol, col, op), subaccount, period).Scan(&total)
    return total, err
}

func (t *Tx) SubaccountsWithHistory(ctx context.Context, iv ledger.PeriodInterval, through string) ([]string, error) {
    col, err := column(iv)
    if err != nil { return nil, err }
    return t.strings(ctx, fmt.Sprintf(`
        select debit_subaccount from journal_entries where %[1]s <= $1
        union
        select credit_subaccount from journal_entries where %[1]s <= $1
        order by 1
    `, col), through)
}

// --- Trial balances ---

const tbColumns = `subaccount, period_interval, period, currency, debit_balance, credit_balance, net_balance,
    debit_changes, credit_changes, net_changes`

func (t *Tx) TrialBalance(ctx context.Context, key ledger.TrialBalanceKey) (ledger.TrialBalance, error) {
    row := t.tx.QueryRow(ctx, `select `+tbColumns+` from trial_balances where subaccount=$1 and period_interval=$2 and period=$3`,
        key.Subaccount, string(key.Interval), key.Period)
    tb, err := scanTrialBalance(row)
    if errors.Is(err, pgx.ErrNoRows) { return ledger.TrialBalance{}, errs.ErrNotFound }
    return tb, err
}

func (t *Tx) UpsertTrialBalance(ctx context.Context, tb ledger.TrialBalance) error {
    _, err := t.tx.Exec(ctx, `
        insert into trial_balances (`+tbColumns+`)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        on conflict (subaccount, period, period_interval) do update
        set currency=excluded.currency,
            debit_balance=excluded.debit_balance, credit_balance=excluded.credit_balance, net_balance=excluded.net_balance,
            debit_changes=excluded.debit_changes, credit_changes=excluded.credit_changes, net_changes=excluded.net_changes
    `, tb.Subaccount, string(tb.Interval), tb.Period, tb.NetBalance.Curr().Code(),
        ledger.Minor(tb.DebitBalance), ledger.Minor(tb.CreditBalance), ledger.Minor(tb.NetBalance),
        ledger.Minor(tb.DebitChanges), ledger.Minor(tb.CreditChanges), ledger.Minor(tb.NetChanges))
    return mapErr(err)
}

func (t *Tx) DeleteTrialBalance(ctx context.Context, key ledger.TrialBalanceKey) error {
    _, err := t.tx.Exec(ctx, `delete from trial_balances where subaccount=$1 and period_interval=$2 and period=$3`,
        key.Subaccount, string(key.Interval), key.Period)
    return err
}

func (t *Tx) DeletePeriod(ctx context.Context, iv ledger.PeriodInterval, period string) error {
    _, err := t.tx.Exec(ctx, `delete from trial_balances where period_interval=$1 and period=$2`, string(iv), period)
    return err
}

func (t *Tx) TrialBalances(ctx context.Context, f storage.TrialBalanceFilter) ([]ledger.TrialBalance, error) {
    rows, err := t.tx.Query(ctx, `
        select `+tbColumns+`
        from trial_balances
        where ($1 = '' or period_interval = $1) and ($2 = '' or period = $2) and ($3 = '' or subaccount = $3)
        order by period_interval, period, subaccount
    `, string(f.Interval), f.Period, f.Subaccount)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.TrialBalance, 0)
    for rows.Next() {
        tb, err := scanTrialBalance(rows)
        if err != nil { return nil, err }
        out = append(out, tb)
    }
    return out, rows.Err()
}

func (t *Tx) TruncateTrialBalances(ctx context.Context) error {
    _, err := t.tx.Exec(ctx, `truncate table trial_balances`)
    return err
}

// --- Mappings and new transactions ---

func (t *Tx) InsertMapping(ctx context.Context, m ledger.Mapping) error {
    ct, err := t.tx.Exec(ctx, `
        insert into mappings (id, source, keyword, positive_debit, positive_credit, negative_debit, negative_credit, created_at)
        values ($1,$2,$3,$4,$5,$6,$7,$8)
        on conflict (source, keyword) do nothing
    `, m.ID, string(m.Source), m.Keyword, m.PositiveDebit, m.PositiveCredit, m.NegativeDebit, m.NegativeCredit, m.CreatedAt.UTC())
    return inserted("mapping "+string(m.Source)+"/"+m.Keyword, ct, err)
}

const mappingColumns = `id, source, keyword, positive_debit, positive_credit, negative_debit, negative_credit, created_at`

func (t *Tx) MappingByKey(ctx context.Context, source ledger.Source, keyword string) (ledger.Mapping, error) {
    row := t.tx.QueryRow(ctx, `select `+mappingColumns+` from mappings where source=$1 and keyword=$2`, string(source), keyword)
    m, err := scanMapping(row)
    if errors.Is(err, pgx.ErrNoRows) { return ledger.Mapping{}, errs.ErrNotFound }
    return m, err
}

func (t *Tx) Mappings(ctx context.Context) ([]ledger.Mapping, error) {
    rows, err := t.tx.Query(ctx, `select `+mappingColumns+` from mappings order by created_at, id::text`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.Mapping, 0)
    for rows.Next() {
        m, err := scanMapping(rows)
        if err != nil { return nil, err }
        out = append(out, m)
    }
    return out, rows.Err()
}

func (t *Tx) InsertNewTransaction(ctx context.Context, nt ledger.NewTransaction) (bool, error) {
    ct, err := t.tx.Exec(ctx, `
        insert into new_transactions (id, source, "timestamp", amount_minor, currency, description, account)
        values ($1,$2,$3,$4,$5,$6,$7)
        on conflict (id, source) do nothing
    `, nt.ID, string(nt.Source), nt.Timestamp.UTC(), ledger.Minor(nt.Amount), nt.Amount.Curr().Code(), nt.Description, nt.Account)
    if err != nil { return false, mapErr(err) }
    return ct.RowsAffected() == 1, nil
}

func (t *Tx) NewTransactions(ctx context.Context, source ledger.Source, unmatchedOnly bool) ([]ledger.NewTransaction, error) {
    rows, err := t.tx.Query(ctx, `
        select n.id, n.source, n."timestamp", n.amount_minor, n.currency, n.description, n.account
        from new_transactions n
        where ($1 = '' or n.source = $1)
          and (not $2 or not exists (
              select 1 from journal_entries e
              where e.transaction_id = n.id and e.transaction_source = n.source))
        order by n."timestamp" desc, n.id
    `, string(source), unmatchedOnly)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]ledger.NewTransaction, 0)
    for rows.Next() {
        var nt ledger.NewTransaction
        var src, curr string
        var minor int64
        if err := rows.Scan(&nt.ID, &src, &nt.Timestamp, &minor, &curr, &nt.Description, &nt.Account); err != nil { return nil, err }
        nt.Source = ledger.Source(src)
        amt, err := ledger.NewAmount(curr, minor)
        if err != nil { return nil, err }
        nt.Amount = amt
        out = append(out, nt)
    }
    return out, rows.Err()
}

// --- helpers ---

func (t *Tx) strings(ctx context.Context, q string, args ...any) ([]string, error) {
    rows, err := t.tx.Query(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := make([]string, 0)
    for rows.Next() {
        var s string
        if err := rows.Scan(&s); err != nil { return nil, err }
        out = append(out, s)
    }
    return out, rows.Err()
}

func column(iv ledger.PeriodInterval) (string, error) {
    if !iv.Valid() { return "", errs.ErrUnknownInterval }
    return iv.Column(), nil
}

func scanEntry(row pgx.Row) (ledger.EntryDetail, error) {
    var d ledger.EntryDetail
    var src, fCurr, sCurr string
    var fMinor, sMinor int64
    if err := row.Scan(&d.ID, &d.TransactionID, &src, &d.MappingID, &d.Timestamp,
        &d.DebitSubaccount, &d.CreditSubaccount, &fMinor, &fCurr, &sMinor, &sCurr, &d.Description); err != nil {
        return ledger.EntryDetail{}, err
    }
    d.TransactionSource = ledger.Source(src)
    d.Timestamp = d.Timestamp.UTC()
    var err error
    if d.FunctionalAmount, err = ledger.NewAmount(fCurr, fMinor); err != nil { return ledger.EntryDetail{}, err }
    if d.SourceAmount, err = ledger.NewAmount(sCurr, sMinor); err != nil { return ledger.EntryDetail{}, err }
    return d, nil
}

func scanTrialBalance(row pgx.Row) (ledger.TrialBalance, error) {
    var tb ledger.TrialBalance
    var iv, curr string
    var dbal, cb, nb, dc, cc, nc int64
    if err := row.Scan(&tb.Subaccount, &iv, &tb.Period, &curr, &dbal, &cb, &nb, &dc, &cc, &nc); err != nil {
        return ledger.TrialBalance{}, err
    }
    tb.Interval = ledger.PeriodInterval(iv)
    return ledger.FillTrialBalance(tb, curr, dbal, cb, nb, dc, cc, nc)
}

func scanMapping(row pgx.Row) (ledger.Mapping, error) {
    var m ledger.Mapping
    var src string
    err := row.Scan(&m.ID, &src, &m.Keyword, &m.PositiveDebit, &m.PositiveCredit, &m.NegativeDebit, &m.NegativeCredit, &m.CreatedAt)
    m.Source = ledger.Source(src)
    m.CreatedAt = m.CreatedAt.UTC()
    return m, err
}

// mapErr translates constraint violations into errs sentinels.
func mapErr(err error) error {
    if err == nil { return nil }
    var pgErr *pgconn.PgError
    if !errors.As(err, &pgErr) { return err }
    switch pgErr.Code {
    case "23505":
        if pgErr.ConstraintName == "journal_entries_unique_constraint" { return errs.ErrDuplicateTransaction }
        return fmt.Errorf("%w: %s", errs.ErrConflict, pgErr.ConstraintName)
    case "23503":
        return fmt.Errorf("%w: %s", errs.ErrNotFound, pgErr.ConstraintName)
    case "23514":
        return fmt.Errorf("%w: %s", errs.ErrInvalid, pgErr.ConstraintName)
    case "25006":
        return errs.ErrReadOnly
    }
    return err
}
