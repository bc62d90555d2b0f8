// Package importer reads the "new transaction" feed produced by statement downloaders.
//
// The feed is CSV with a header row. Recognised columns (case and spacing ignored):
// id, date, amount, description, account, and optionally source and currency.
// Amounts are signed decimals: positive money flowed into account, negative flowed out.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/govalues/money"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/slug"
)

// Options supply values for columns the feed leaves out.
type Options struct {
	Source   ledger.Source
	Currency string
	Account  string
}

// RowError reports a data row that could not be parsed. Row is 1-based and excludes the header.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }
func (e RowError) Unwrap() error { return e.Err }

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01/02/2006"}

// Read parses every row. Rows that fail are returned as RowErrors and skipped.
func Read(r io.Reader, opts Options) ([]ledger.NewTransaction, []RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[slug.Slugify(h)] = i
	}
	for _, c := range []string{"id", "date", "amount", "description"} {
		if _, ok := cols[c]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column %q", errs.ErrInvalid, c)
		}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []ledger.NewTransaction
	var rowErrs []RowError
	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", n, err)
		}
		nt := ledger.NewTransaction{
			ID:          field(rec, "id"),
			Source:      ledger.NormalizeSource(ledger.Source(field(rec, "source"))),
			Description: field(rec, "description"),
			Account:     field(rec, "account"),
		}
		if nt.Source == "" {
			nt.Source = ledger.NormalizeSource(opts.Source)
		}
		if nt.Account == "" {
			nt.Account = opts.Account
		}
		currency := strings.ToUpper(field(rec, "currency"))
		if currency == "" {
			currency = opts.Currency
		}
		if nt.ID == "" || nt.Source == "" || nt.Account == "" {
			rowErrs = append(rowErrs, RowError{Row: n, Err: fmt.Errorf("%w: id, source and account are required", errs.ErrInvalid)})
			continue
		}
		if nt.Timestamp, err = ParseDate(field(rec, "date")); err != nil {
			rowErrs = append(rowErrs, RowError{Row: n, Err: err})
			continue
		}
		if nt.Amount, err = ParseAmount(currency, field(rec, "amount")); err != nil {
			rowErrs = append(rowErrs, RowError{Row: n, Err: err})
			continue
		}
		out = append(out, nt)
	}
	return out, rowErrs, nil
}

// ParseDate accepts RFC 3339, "2006-01-02 15:04:05", "2006-01-02" and "01/02/2006", read as UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised date %q", errs.ErrInvalid, s)
}

// ParseAmount reads a signed decimal such as "-4.50", "1,200.00" or "(12.00)" exactly.
// More fractional digits than the currency allows is an error rather than a rounding.
func ParseAmount(currency, s string) (money.Amount, error) {
	curr, err := money.ParseCurr(currency)
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: currency %q", errs.ErrInvalid, currency)
	}
	raw := strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	negative := strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")")
	if negative {
		raw = raw[1 : len(raw)-1]
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return money.Amount{}, fmt.Errorf("%w: amount %q", errs.ErrInvalid, s)
	}
	if negative {
		d = d.Neg()
	}
	minor := d.Shift(int32(curr.Scale()))
	if !minor.IsInteger() {
		return money.Amount{}, fmt.Errorf("%w: amount %q has more than %d decimal places", errs.ErrInvalid, s, curr.Scale())
	}
	return ledger.NewAmount(curr.Code(), minor.IntPart())
}

// Recorder stores one parsed transaction, reporting false when it was already recorded.
type Recorder interface {
	PostNewTransaction(ctx context.Context, nt ledger.NewTransaction) (bool, error)
}

// Result counts the outcome of Import.
type Result struct {
	Read     int
	Inserted int
	Existing int
	Errors   []RowError
}

// Import reads the feed and records every parsed row. Rows already recorded are counted,
// not reported as errors, so overlapping downloads can be imported repeatedly.
func Import(ctx context.Context, rec Recorder, r io.Reader, opts Options, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	txs, rowErrs, err := Read(r, opts)
	if err != nil {
		return Result{}, err
	}
	res := Result{Read: len(txs) + len(rowErrs), Errors: rowErrs}
	for _, nt := range txs {
		inserted, err := rec.PostNewTransaction(ctx, nt)
		if err != nil {
			return res, fmt.Errorf("record %s/%s: %w", nt.Source, nt.ID, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Existing++
		}
	}
	for _, e := range rowErrs {
		logger.Warn("transaction row skipped", "row", e.Row, "error", e.Err)
	}
	logger.Info("transactions imported", "read", res.Read, "inserted", res.Inserted, "existing", res.Existing, "skipped", len(rowErrs))
	return res, nil
}
