// Package sqlite provides a single-file storage.Store on top of mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/storage"
	"github.com/tinoosan/bookkeeper/internal/tags"
)

// Store is a SQLite-backed storage.Store. A single connection serialises writers.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database file and applies Schema.
// WAL mode and foreign key enforcement are enabled on the connection.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Migrate applies Schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

// View implements storage.Store. Writes inside fn fail with errs.ErrReadOnly.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, true, fn)
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			sqlTx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&Tx{tx: sqlTx, readOnly: readOnly}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx implements storage.Tx over a *sql.Tx.
type Tx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.readOnly {
		return nil, errs.ErrReadOnly
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	return res, mapErr(err)
}

// --- Taxonomy ---

func (t *Tx) CreateElement(ctx context.Context, e ledger.Element) error {
	_, err := t.exec(ctx, `INSERT INTO elements (name) VALUES (?)`, e.Name)
	return err
}

func (t *Tx) CreateClassification(ctx context.Context, c ledger.Classification) error {
	_, err := t.exec(ctx, `INSERT INTO classifications (name, parent) VALUES (?, ?)`, c.Name, c.Parent)
	return err
}

func (t *Tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	_, err := t.exec(ctx, `INSERT INTO accounts (name, parent, cash_source) VALUES (?, ?, ?)`, a.Name, a.Parent, a.CashSource)
	return err
}

func (t *Tx) CreateSubaccount(ctx context.Context, s ledger.Subaccount) error {
	tg, _ := s.Tags.MarshalJSON()
	_, err := t.exec(ctx, `INSERT INTO subaccounts (name, parent, description, tags) VALUES (?, ?, ?, ?)`,
		s.Name, s.Parent, s.Description, string(tg))
	return err
}

func (t *Tx) Account(ctx context.Context, name string) (ledger.Account, error) {
	var a ledger.Account
	err := t.tx.QueryRowContext(ctx, `SELECT name, parent, cash_source FROM accounts WHERE name = ?`, name).
		Scan(&a.Name, &a.Parent, &a.CashSource)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (t *Tx) Subaccount(ctx context.Context, name string) (ledger.Subaccount, error) {
	var s ledger.Subaccount
	var raw string
	err := t.tx.QueryRowContext(ctx, `SELECT name, parent, description, tags FROM subaccounts WHERE name = ?`, name).
		Scan(&s.Name, &s.Parent, &s.Description, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Subaccount{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Subaccount{}, err
	}
	var tg tags.Tags
	if err := tg.UnmarshalJSON([]byte(raw)); err == nil {
		s.Tags = tg
	}
	return s, nil
}

func (t *Tx) Lineages(ctx context.Context) ([]ledger.Lineage, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT s.name, a.name, c.name, c.parent
		FROM subaccounts s
		JOIN accounts a ON a.name = s.parent
		JOIN classifications c ON c.name = a.parent
		ORDER BY c.parent, c.name, a.name, s.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Lineage
	for rows.Next() {
		var l ledger.Lineage
		if err := rows.Scan(&l.Subaccount, &l.Account, &l.Classification, &l.Element); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// --- Journal ---

const entryColumns = `e.id, e.transaction_id, e.transaction_source, e.mapping_id, e.timestamp_ns,
	e.debit_subaccount, e.credit_subaccount, e.functional_amount_minor, e.functional_currency,
	e.source_amount_minor, e.source_currency`

func entryArgs(e ledger.JournalEntry) []any {
	p := ledger.Labels(e.Timestamp)
	var mappingID any
	if e.MappingID != nil {
		mappingID = e.MappingID.String()
	}
	return []any{
		e.TransactionID, string(e.TransactionSource), mappingID, e.Timestamp.UTC().UnixNano(),
		e.DebitSubaccount, e.CreditSubaccount, ledger.Minor(e.FunctionalAmount), e.FunctionalAmount.Curr().Code(),
		ledger.Minor(e.SourceAmount), e.SourceAmount.Curr().Code(),
		p[ledger.IntervalYear], p[ledger.IntervalQuarter], p[ledger.IntervalMonth], p[ledger.IntervalWeek], p[ledger.IntervalDay],
		e.ID.String(),
	}
}

func (t *Tx) InsertEntry(ctx context.Context, e ledger.JournalEntry) error {
	_, err := t.exec(ctx, `
		INSERT INTO journal_entries (transaction_id, transaction_source, mapping_id, timestamp_ns,
			debit_subaccount, credit_subaccount, functional_amount_minor, functional_currency,
			source_amount_minor, source_currency,
			period_year, period_quarter, period_month, period_week, period_day, id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entryArgs(e)...)
	return err
}

func (t *Tx) UpdateEntry(ctx context.Context, e ledger.JournalEntry) error {
	res, err := t.exec(ctx, `
		UPDATE journal_entries
		SET transaction_id = ?, transaction_source = ?, mapping_id = ?, timestamp_ns = ?,
			debit_subaccount = ?, credit_subaccount = ?, functional_amount_minor = ?, functional_currency = ?,
			source_amount_minor = ?, source_currency = ?,
			period_year = ?, period_quarter = ?, period_month = ?, period_week = ?, period_day = ?
		WHERE id = ?
	`, entryArgs(e)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (t *Tx) Entry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+entryColumns+`, '' FROM journal_entries e WHERE e.id = ?`, id.String())
	d, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	return d.JournalEntry, err
}

func (t *Tx) Entries(ctx context.Context, f storage.EntryFilter) ([]ledger.EntryDetail, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + entryColumns + `, COALESCE(n.description, '')
		FROM journal_entries e
		LEFT JOIN new_transactions n ON n.id = e.transaction_id AND n.source = e.transaction_source
		WHERE 1 = 1`)
	var args []any
	if f.Subaccount != "" {
		b.WriteString(` AND (e.debit_subaccount = ? OR e.credit_subaccount = ?)`)
		args = append(args, f.Subaccount, f.Subaccount)
	}
	if f.Source != "" {
		b.WriteString(` AND e.transaction_source = ?`)
		args = append(args, string(f.Source))
	}
	if f.Interval != "" && f.Period != "" {
		col, err := column(f.Interval)
		if err != nil {
			return nil, err
		}
		op := "="
		if f.Cumulative {
			op = "<="
		}
		fmt.Fprintf(&b, ` AND e.%s %s ?`, col, op)
		args = append(args, f.Period)
	}
	b.WriteString(` ORDER BY e.timestamp_ns DESC, e.id ASC`)
	if f.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}
	rows, err := t.tx.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.EntryDetail, 0)
	for rows.Next() {
		d, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *Tx) SubaccountPairs(ctx context.Context) ([]ledger.SubaccountPair, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT DISTINCT debit_subaccount, credit_subaccount
		FROM journal_entries
		ORDER BY debit_subaccount, credit_subaccount
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.SubaccountPair
	for rows.Next() {
		var p ledger.SubaccountPair
		if err := rows.Scan(&p.Debit, &p.Credit); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *Tx) Periods(ctx context.Context, iv ledger.PeriodInterval, from string) ([]string, error) {
	col, err := column(iv)
	if err != nil {
		return nil, err
	}
	return t.strings(ctx, fmt.Sprintf(`SELECT DISTINCT %[1]s FROM journal_entries WHERE %[1]s >= ? ORDER BY 1`, col), from)
}

func (t *Tx) CountInPeriod(ctx context.Context, iv ledger.PeriodInterval, period string) (int, error) {
	col, err := column(iv)
	if err != nil {
		return 0, err
	}
	var n int
	err = t.tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM journal_entries WHERE %s = ?`, col), period).Scan(&n)
	return n, err
}

func (t *Tx) Sum(ctx context.Context, side ledger.Side, subaccount string, iv ledger.PeriodInterval, period string, cumulative bool) (int64, error) {
	col, err := column(iv)
	if err != nil {
		return 0, err
	}
	sideCol := "debit_subaccount"
	if side == ledger.SideCredit {
		sideCol = "credit_subaccount"
	}
	op := "="
	if cumulative {
		op = "<="
	}
	var total int64
	err = t.tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COALESCE(SUM(functional_amount_minor), 0) FROM journal_entries WHERE %s = ? AND %s %s ?`,
		sideCol, col, op), subaccount, period).Scan(&total)
	return total, err
}

func (t *Tx) SubaccountsWithHistory(ctx context.Context, iv ledger.PeriodInterval, through string) ([]string, error) {
	col, err := column(iv)
	if err != nil {
		return nil, err
	}
	return t.strings(ctx, fmt.Sprintf(`
		SELECT debit_subaccount FROM journal_entries WHERE %[1]s <= ?
		UNION
		SELECT credit_subaccount FROM journal_entries WHERE %[1]s <= ?
		ORDER BY 1
	`, col), through, through)
}

// --- Trial balances ---

const tbColumns = `subaccount, period_interval, period, currency, debit_balance, credit_balance, net_balance,
	debit_changes, credit_changes, net_changes`

func (t *Tx) TrialBalance(ctx context.Context, key ledger.TrialBalanceKey) (ledger.TrialBalance, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+tbColumns+` FROM trial_balances
		WHERE subaccount = ? AND period_interval = ? AND period = ?`,
		key.Subaccount, string(key.Interval), key.Period)
	tb, err := scanTrialBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.TrialBalance{}, errs.ErrNotFound
	}
	return tb, err
}

func (t *Tx) UpsertTrialBalance(ctx context.Context, tb ledger.TrialBalance) error {
	_, err := t.exec(ctx, `
		INSERT INTO trial_balances (`+tbColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(subaccount, period, period_interval) DO UPDATE SET
			currency = excluded.currency,
			debit_balance = excluded.debit_balance,
			credit_balance = excluded.credit_balance,
			net_balance = excluded.net_balance,
			debit_changes = excluded.debit_changes,
			credit_changes = excluded.credit_changes,
			net_changes = excluded.net_changes
	`, tb.Subaccount, string(tb.Interval), tb.Period, tb.NetBalance.Curr().Code(),
		ledger.Minor(tb.DebitBalance), ledger.Minor(tb.CreditBalance), ledger.Minor(tb.NetBalance),
		ledger.Minor(tb.DebitChanges), ledger.Minor(tb.CreditChanges), ledger.Minor(tb.NetChanges))
	return err
}

func (t *Tx) DeleteTrialBalance(ctx context.Context, key ledger.TrialBalanceKey) error {
	_, err := t.exec(ctx, `DELETE FROM trial_balances WHERE subaccount = ? AND period_interval = ? AND period = ?`,
		key.Subaccount, string(key.Interval), key.Period)
	return err
}

func (t *Tx) DeletePeriod(ctx context.Context, iv ledger.PeriodInterval, period string) error {
	_, err := t.exec(ctx, `DELETE FROM trial_balances WHERE period_interval = ? AND period = ?`, string(iv), period)
	return err
}

func (t *Tx) TrialBalances(ctx context.Context, f storage.TrialBalanceFilter) ([]ledger.TrialBalance, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+tbColumns+`
		FROM trial_balances
		WHERE (?1 = '' OR period_interval = ?1) AND (?2 = '' OR period = ?2) AND (?3 = '' OR subaccount = ?3)
		ORDER BY period_interval, period, subaccount
	`, string(f.Interval), f.Period, f.Subaccount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.TrialBalance, 0)
	for rows.Next() {
		tb, err := scanTrialBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tb)
	}
	return out, rows.Err()
}

func (t *Tx) TruncateTrialBalances(ctx context.Context) error {
	_, err := t.exec(ctx, `DELETE FROM trial_balances`)
	return err
}

// --- Mappings and new transactions ---

const mappingColumns = `id, source, keyword, positive_debit, positive_credit, negative_debit, negative_credit, created_at`

func (t *Tx) InsertMapping(ctx context.Context, m ledger.Mapping) error {
	_, err := t.exec(ctx, `INSERT INTO mappings (`+mappingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), string(m.Source), m.Keyword, m.PositiveDebit, m.PositiveCredit, m.NegativeDebit, m.NegativeCredit,
		m.CreatedAt.UTC().UnixNano())
	return err
}

func (t *Tx) MappingByKey(ctx context.Context, source ledger.Source, keyword string) (ledger.Mapping, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+mappingColumns+` FROM mappings WHERE source = ? AND keyword = ?`, string(source), keyword)
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Mapping{}, errs.ErrNotFound
	}
	return m, err
}

func (t *Tx) Mappings(ctx context.Context) ([]ledger.Mapping, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+mappingColumns+` FROM mappings ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Mapping, 0)
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *Tx) InsertNewTransaction(ctx context.Context, nt ledger.NewTransaction) (bool, error) {
	res, err := t.exec(ctx, `
		INSERT INTO new_transactions (id, source, timestamp_ns, amount_minor, currency, description, account)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, source) DO NOTHING
	`, nt.ID, string(nt.Source), nt.Timestamp.UTC().UnixNano(), ledger.Minor(nt.Amount), nt.Amount.Curr().Code(),
		nt.Description, nt.Account)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (t *Tx) NewTransactions(ctx context.Context, source ledger.Source, unmatchedOnly bool) ([]ledger.NewTransaction, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT n.id, n.source, n.timestamp_ns, n.amount_minor, n.currency, n.description, n.account
		FROM new_transactions n
		WHERE (?1 = '' OR n.source = ?1)
		  AND (?2 = 0 OR NOT EXISTS (
			SELECT 1 FROM journal_entries e
			WHERE e.transaction_id = n.id AND e.transaction_source = n.source))
		ORDER BY n.timestamp_ns DESC, n.id
	`, string(source), unmatchedOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.NewTransaction, 0)
	for rows.Next() {
		var nt ledger.NewTransaction
		var src, curr string
		var ns, minor int64
		if err := rows.Scan(&nt.ID, &src, &ns, &minor, &curr, &nt.Description, &nt.Account); err != nil {
			return nil, err
		}
		nt.Source = ledger.Source(src)
		nt.Timestamp = time.Unix(0, ns).UTC()
		if nt.Amount, err = ledger.NewAmount(curr, minor); err != nil {
			return nil, err
		}
		out = append(out, nt)
	}
	return out, rows.Err()
}

// --- helpers ---

func (t *Tx) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func column(iv ledger.PeriodInterval) (string, error) {
	if !iv.Valid() {
		return "", errs.ErrUnknownInterval
	}
	return iv.Column(), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (ledger.EntryDetail, error) {
	var d ledger.EntryDetail
	var id, src, fCurr, sCurr string
	var mappingID sql.NullString
	var ns, fMinor, sMinor int64
	if err := row.Scan(&id, &d.TransactionID, &src, &mappingID, &ns,
		&d.DebitSubaccount, &d.CreditSubaccount, &fMinor, &fCurr, &sMinor, &sCurr, &d.Description); err != nil {
		return ledger.EntryDetail{}, err
	}
	var err error
	if d.ID, err = uuid.Parse(id); err != nil {
		return ledger.EntryDetail{}, err
	}
	if mappingID.Valid {
		mid, err := uuid.Parse(mappingID.String)
		if err != nil {
			return ledger.EntryDetail{}, err
		}
		d.MappingID = &mid
	}
	d.TransactionSource = ledger.Source(src)
	d.Timestamp = time.Unix(0, ns).UTC()
	if d.FunctionalAmount, err = ledger.NewAmount(fCurr, fMinor); err != nil {
		return ledger.EntryDetail{}, err
	}
	if d.SourceAmount, err = ledger.NewAmount(sCurr, sMinor); err != nil {
		return ledger.EntryDetail{}, err
	}
	return d, nil
}

func scanTrialBalance(row scanner) (ledger.TrialBalance, error) {
	var tb ledger.TrialBalance
	var iv, curr string
	var debitBal, creditBal, netBal, debitChg, creditChg, netChg int64
	if err := row.Scan(&tb.Subaccount, &iv, &tb.Period, &curr, &debitBal, &creditBal, &netBal, &debitChg, &creditChg, &netChg); err != nil {
		return ledger.TrialBalance{}, err
	}
	tb.Interval = ledger.PeriodInterval(iv)
	return ledger.FillTrialBalance(tb, curr, debitBal, creditBal, netBal, debitChg, creditChg, netChg)
}

func scanMapping(row scanner) (ledger.Mapping, error) {
	var m ledger.Mapping
	var id, src string
	var created int64
	if err := row.Scan(&id, &src, &m.Keyword, &m.PositiveDebit, &m.PositiveCredit, &m.NegativeDebit, &m.NegativeCredit, &created); err != nil {
		return ledger.Mapping{}, err
	}
	var err error
	if m.ID, err = uuid.Parse(id); err != nil {
		return ledger.Mapping{}, err
	}
	m.Source = ledger.Source(src)
	m.CreatedAt = time.Unix(0, created).UTC()
	return m, nil
}

// mapErr translates SQLite constraint failures into errs sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return err
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		if strings.Contains(se.Error(), "journal_entries.transaction_id") {
			return errs.ErrDuplicateTransaction
		}
		return fmt.Errorf("%w: %v", errs.ErrConflict, se)
	case sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", errs.ErrNotFound, se)
	case sqlite3.ErrConstraintCheck:
		return fmt.Errorf("%w: %v", errs.ErrInvalid, se)
	}
	return err
}
