// Package storagetest holds the behaviour every storage.Store backend must share.
// Backend packages call Run from their own tests with a constructor for an empty store.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/storage"
	"github.com/tinoosan/bookkeeper/internal/tags"
)

// Factory returns an empty store. Cleanup is registered on t by the factory.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"Taxonomy", testTaxonomy},
		{"DuplicateTransaction", testDuplicateTransaction},
		{"UnknownSubaccount", testUnknownSubaccount},
		{"PeriodScans", testPeriodScans},
		{"Entries", testEntries},
		{"UpdateEntry", testUpdateEntry},
		{"TrialBalances", testTrialBalances},
		{"Mappings", testMappings},
		{"ConflictKeepsUnitOfWork", testConflictKeepsUnitOfWork},
		{"NewTransactions", testNewTransactions},
		{"RollbackOnError", testRollback},
		{"ViewIsReadOnly", testViewReadOnly},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, newStore(t)) })
	}
}

// Chart is the small chart of accounts seeded by Seed.
var Chart = []ledger.Lineage{
	{Subaccount: "Chase Checking", Account: "Checking", Classification: "Cash", Element: "Assets"},
	{Subaccount: "Accounts Payable", Account: "Payables", Classification: "Current Liabilities", Element: "Liabilities"},
	{Subaccount: "Rent", Account: "Occupancy", Classification: "Operating Expenses", Element: "Expenses"},
	{Subaccount: "Coffee", Account: "Discretionary Costs", Classification: "Operating Expenses", Element: "Expenses"},
	{Subaccount: "Salary", Account: "Wages", Classification: "Operating Revenue", Element: "Revenues"},
}

// Seed writes Chart into s.
func Seed(t *testing.T, s storage.Store) {
	t.Helper()
	err := s.Update(context.Background(), func(tx storage.Tx) error {
		return SeedTx(context.Background(), tx)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

// SeedTx writes Chart inside an existing unit of work, skipping rows already present.
func SeedTx(ctx context.Context, tx storage.Tx) error {
	ignore := func(err error) error {
		if errors.Is(err, errs.ErrConflict) {
			return nil
		}
		return err
	}
	for _, l := range Chart {
		if err := ignore(tx.CreateElement(ctx, ledger.Element{Name: l.Element})); err != nil {
			return err
		}
		if err := ignore(tx.CreateClassification(ctx, ledger.Classification{Name: l.Classification, Parent: l.Element})); err != nil {
			return err
		}
		if err := ignore(tx.CreateAccount(ctx, ledger.Account{Name: l.Account, Parent: l.Classification})); err != nil {
			return err
		}
		if err := ignore(tx.CreateSubaccount(ctx, ledger.Subaccount{Name: l.Subaccount, Parent: l.Account})); err != nil {
			return err
		}
	}
	return nil
}

// Entry builds a USD journal entry.
func Entry(id string, at time.Time, debit, credit string, cents int64) ledger.JournalEntry {
	amt := ledger.FromMinor("USD", cents)
	return ledger.JournalEntry{
		ID:                uuid.New(),
		TransactionID:     id,
		TransactionSource: ledger.SourceManual,
		Timestamp:         at,
		DebitSubaccount:   debit,
		CreditSubaccount:  credit,
		FunctionalAmount:  amt,
		SourceAmount:      amt,
	}
}

func day(d int) time.Time { return time.Date(2024, time.January, d, 12, 0, 0, 0, time.UTC) }

func insert(t *testing.T, s storage.Store, es ...ledger.JournalEntry) {
	t.Helper()
	err := s.Update(context.Background(), func(tx storage.Tx) error {
		for _, e := range es {
			if err := tx.InsertEntry(context.Background(), e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func testTaxonomy(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	err := s.Update(ctx, func(tx storage.Tx) error {
		return tx.CreateSubaccount(ctx, ledger.Subaccount{Name: "Lunch", Parent: "Discretionary Costs", Tags: tags.Tags{"owner": "me"}})
	})
	if err != nil {
		t.Fatalf("create subaccount: %v", err)
	}
	err = s.Update(ctx, func(tx storage.Tx) error {
		return tx.CreateSubaccount(ctx, ledger.Subaccount{Name: "Lunch", Parent: "Discretionary Costs"})
	})
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want ErrConflict on duplicate subaccount, got %v", err)
	}
	err = s.Update(ctx, func(tx storage.Tx) error {
		return tx.CreateSubaccount(ctx, ledger.Subaccount{Name: "Orphan", Parent: "Nope"})
	})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound on missing parent, got %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		sub, err := tx.Subaccount(ctx, "Lunch")
		if err != nil {
			return err
		}
		if sub.Tags["owner"] != "me" {
			t.Fatalf("tags not stored: %+v", sub)
		}
		if _, err := tx.Account(ctx, "Missing"); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("want ErrNotFound for missing account, got %v", err)
		}
		ls, err := tx.Lineages(ctx)
		if err != nil {
			return err
		}
		if len(ls) != len(Chart)+1 {
			t.Fatalf("want %d lineages, got %d", len(Chart)+1, len(ls))
		}
		if ls[0].Element != "Assets" {
			t.Fatalf("lineages not ordered by element: %+v", ls[0])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testDuplicateTransaction(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	insert(t, s, Entry("tx-1", day(1), "Rent", "Chase Checking", 1000))
	err := s.Update(ctx, func(tx storage.Tx) error {
		return tx.InsertEntry(ctx, Entry("tx-1", day(2), "Coffee", "Chase Checking", 500))
	})
	if !errors.Is(err, errs.ErrDuplicateTransaction) {
		t.Fatalf("want ErrDuplicateTransaction, got %v", err)
	}
	// Same id from another source is a different transaction.
	other := Entry("tx-1", day(2), "Coffee", "Chase Checking", 500)
	other.TransactionSource = ledger.SourceOFX
	insert(t, s, other)
}

func testUnknownSubaccount(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	err := s.Update(ctx, func(tx storage.Tx) error {
		return tx.InsertEntry(ctx, Entry("tx-1", day(1), "Nope", "Chase Checking", 1000))
	})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func testPeriodScans(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	insert(t, s,
		Entry("a", day(1), "Rent", "Chase Checking", 1000),
		Entry("b", day(15), "Coffee", "Chase Checking", 250),
		Entry("c", time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC), "Chase Checking", "Salary", 5000),
	)
	err := s.View(ctx, func(tx storage.Tx) error {
		ps, err := tx.Periods(ctx, ledger.IntervalMonth, "2024-01")
		if err != nil {
			return err
		}
		if len(ps) != 2 || ps[0] != "2024-01" || ps[1] != "2024-02" {
			t.Fatalf("periods: %v", ps)
		}
		ps, err = tx.Periods(ctx, ledger.IntervalMonth, "2024-02")
		if err != nil {
			return err
		}
		if len(ps) != 1 {
			t.Fatalf("periods from 2024-02: %v", ps)
		}
		n, err := tx.CountInPeriod(ctx, ledger.IntervalMonth, "2024-01")
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("count: %d", n)
		}
		got, err := tx.Sum(ctx, ledger.SideCredit, "Chase Checking", ledger.IntervalMonth, "2024-01", false)
		if err != nil {
			return err
		}
		if got != 1250 {
			t.Fatalf("credit sum: %d", got)
		}
		got, err = tx.Sum(ctx, ledger.SideDebit, "Chase Checking", ledger.IntervalMonth, "2024-01", true)
		if err != nil {
			return err
		}
		if got != 0 {
			t.Fatalf("cumulative debit through January: %d", got)
		}
		got, err = tx.Sum(ctx, ledger.SideDebit, "Chase Checking", ledger.IntervalYear, "2024", true)
		if err != nil {
			return err
		}
		if got != 5000 {
			t.Fatalf("cumulative debit through 2024: %d", got)
		}
		subs, err := tx.SubaccountsWithHistory(ctx, ledger.IntervalMonth, "2024-01")
		if err != nil {
			return err
		}
		if len(subs) != 3 {
			t.Fatalf("history through January: %v", subs)
		}
		pairs, err := tx.SubaccountPairs(ctx)
		if err != nil {
			return err
		}
		if len(pairs) != 3 {
			t.Fatalf("pairs: %v", pairs)
		}
		if _, err := tx.Periods(ctx, "YYYY-HH", ""); !errors.Is(err, errs.ErrUnknownInterval) {
			t.Fatalf("want ErrUnknownInterval, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testEntries(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	feb := time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC)
	insert(t, s,
		Entry("a", day(1), "Rent", "Chase Checking", 1000),
		Entry("b", day(15), "Coffee", "Chase Checking", 250),
		Entry("c", feb, "Chase Checking", "Salary", 5000),
	)
	err := s.Update(ctx, func(tx storage.Tx) error {
		_, err := tx.InsertNewTransaction(ctx, ledger.NewTransaction{
			ID: "b", Source: ledger.SourceManual, Timestamp: day(15), Amount: ledger.FromMinor("USD", -250),
			Description: "STARBUCKS #123", Account: "Chase Checking",
		})
		return err
	})
	if err != nil {
		t.Fatalf("insert new transaction: %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		all, err := tx.Entries(ctx, storage.EntryFilter{})
		if err != nil {
			return err
		}
		if len(all) != 3 || all[0].TransactionID != "c" {
			t.Fatalf("entries not newest first: %+v", all)
		}
		jan, err := tx.Entries(ctx, storage.EntryFilter{Subaccount: "Chase Checking", Interval: ledger.IntervalMonth, Period: "2024-01"})
		if err != nil {
			return err
		}
		if len(jan) != 2 {
			t.Fatalf("january entries: %d", len(jan))
		}
		if jan[0].Description != "STARBUCKS #123" {
			t.Fatalf("description not joined: %+v", jan[0])
		}
		through, err := tx.Entries(ctx, storage.EntryFilter{Interval: ledger.IntervalMonth, Period: "2024-02", Cumulative: true, Limit: 2})
		if err != nil {
			return err
		}
		if len(through) != 2 {
			t.Fatalf("limit not applied: %d", len(through))
		}
		rent, err := tx.Entries(ctx, storage.EntryFilter{Subaccount: "Rent"})
		if err != nil {
			return err
		}
		if len(rent) != 1 || !rent[0].Timestamp.Equal(day(1)) || ledger.Minor(rent[0].FunctionalAmount) != 1000 {
			t.Fatalf("rent entry: %+v", rent)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testUpdateEntry(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	e := Entry("a", day(1), "Rent", "Chase Checking", 1000)
	insert(t, s, e)
	e.Timestamp = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	e.DebitSubaccount = "Coffee"
	err := s.Update(ctx, func(tx storage.Tx) error { return tx.UpdateEntry(ctx, e) })
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		got, err := tx.Entry(ctx, e.ID)
		if err != nil {
			return err
		}
		if got.DebitSubaccount != "Coffee" || !got.Timestamp.Equal(e.Timestamp) {
			t.Fatalf("entry not updated: %+v", got)
		}
		n, err := tx.CountInPeriod(ctx, ledger.IntervalMonth, "2024-01")
		if err != nil {
			return err
		}
		if n != 0 {
			t.Fatalf("period labels not recomputed on update")
		}
		if _, err := tx.Entry(ctx, uuid.New()); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	missing := Entry("z", day(1), "Rent", "Chase Checking", 1)
	err = s.Update(ctx, func(tx storage.Tx) error { return tx.UpdateEntry(ctx, missing) })
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound updating missing entry, got %v", err)
	}
}

func testTrialBalances(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	row, err := ledger.FillTrialBalance(ledger.TrialBalance{Subaccount: "Rent", Interval: ledger.IntervalMonth, Period: "2024-01"},
		"USD", 1000, 0, 1000, 1000, 0, 1000)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	other := row
	other.Period = "2024-02"
	err = s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.UpsertTrialBalance(ctx, row); err != nil {
			return err
		}
		if err := tx.UpsertTrialBalance(ctx, other); err != nil {
			return err
		}
		row.NetChanges = ledger.FromMinor("USD", 0)
		return tx.UpsertTrialBalance(ctx, row)
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		got, err := tx.TrialBalance(ctx, row.Key())
		if err != nil {
			return err
		}
		if !got.Equal(row) {
			t.Fatalf("upsert did not replace row: %+v", got)
		}
		rows, err := tx.TrialBalances(ctx, storage.TrialBalanceFilter{Interval: ledger.IntervalMonth})
		if err != nil {
			return err
		}
		if len(rows) != 2 || rows[0].Period != "2024-01" {
			t.Fatalf("rows: %+v", rows)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	err = s.Update(ctx, func(tx storage.Tx) error { return tx.DeletePeriod(ctx, ledger.IntervalMonth, "2024-02") })
	if err != nil {
		t.Fatalf("delete period: %v", err)
	}
	err = s.Update(ctx, func(tx storage.Tx) error { return tx.DeleteTrialBalance(ctx, row.Key()) })
	if err != nil {
		t.Fatalf("delete row: %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		rows, err := tx.TrialBalances(ctx, storage.TrialBalanceFilter{})
		if err != nil {
			return err
		}
		if len(rows) != 0 {
			t.Fatalf("rows left: %+v", rows)
		}
		if _, err := tx.TrialBalance(ctx, row.Key()); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testMappings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	m := ledger.Mapping{ID: uuid.New(), Source: ledger.SourceOFX, Keyword: "starbucks", NegativeDebit: "Coffee",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	err := s.Update(ctx, func(tx storage.Tx) error { return tx.InsertMapping(ctx, m) })
	if err != nil {
		t.Fatalf("insert mapping: %v", err)
	}
	dup := m
	dup.ID = uuid.New()
	err = s.Update(ctx, func(tx storage.Tx) error { return tx.InsertMapping(ctx, dup) })
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		got, err := tx.MappingByKey(ctx, ledger.SourceOFX, "starbucks")
		if err != nil {
			return err
		}
		if got.ID != m.ID || got.NegativeDebit != "Coffee" || !got.CreatedAt.Equal(m.CreatedAt) {
			t.Fatalf("mapping: %+v", got)
		}
		if _, err := tx.MappingByKey(ctx, ledger.SourceAmazon, "starbucks"); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
		all, err := tx.Mappings(ctx)
		if err != nil {
			return err
		}
		if len(all) != 1 {
			t.Fatalf("mappings: %d", len(all))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

// A skipped conflicting insert must leave the rest of the unit of work usable.
func testConflictKeepsUnitOfWork(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	insert(t, s, Entry("tx-1", day(1), "Rent", "Chase Checking", 1000))
	m := ledger.Mapping{ID: uuid.New(), Source: ledger.SourceOFX, Keyword: "starbucks", PositiveCredit: "Coffee", NegativeDebit: "Coffee",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	err := s.Update(ctx, func(tx storage.Tx) error { return tx.InsertMapping(ctx, m) })
	if err != nil {
		t.Fatalf("insert mapping: %v", err)
	}
	err = s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.CreateElement(ctx, ledger.Element{Name: "Expenses"}); !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("element: want ErrConflict, got %v", err)
		}
		if err := tx.CreateClassification(ctx, ledger.Classification{Name: "Operating Expenses", Parent: "Expenses"}); !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("classification: want ErrConflict, got %v", err)
		}
		if err := tx.CreateAccount(ctx, ledger.Account{Name: "Occupancy", Parent: "Operating Expenses"}); !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("account: want ErrConflict, got %v", err)
		}
		if err := tx.CreateSubaccount(ctx, ledger.Subaccount{Name: "Rent", Parent: "Occupancy"}); !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("subaccount: want ErrConflict, got %v", err)
		}
		dup := m
		dup.ID = uuid.New()
		if err := tx.InsertMapping(ctx, dup); !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("mapping: want ErrConflict, got %v", err)
		}
		if err := tx.InsertEntry(ctx, Entry("tx-1", day(2), "Coffee", "Chase Checking", 500)); !errors.Is(err, errs.ErrDuplicateTransaction) {
			t.Fatalf("entry: want ErrDuplicateTransaction, got %v", err)
		}
		if err := tx.CreateSubaccount(ctx, ledger.Subaccount{Name: "Lunch", Parent: "Discretionary Costs"}); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, Entry("tx-2", day(3), "Lunch", "Chase Checking", 700))
	})
	if err != nil {
		t.Fatalf("update after conflicts: %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		if _, err := tx.Subaccount(ctx, "Lunch"); err != nil {
			return err
		}
		es, err := tx.Entries(ctx, storage.EntryFilter{})
		if err != nil {
			return err
		}
		if len(es) != 2 {
			t.Fatalf("entries: %+v", es)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testNewTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	a := ledger.NewTransaction{ID: "1", Source: ledger.SourceOFX, Timestamp: day(1), Amount: ledger.FromMinor("USD", -450),
		Description: "STARBUCKS #123", Account: "Chase Checking"}
	b := ledger.NewTransaction{ID: "2", Source: ledger.SourceOFX, Timestamp: day(2), Amount: ledger.FromMinor("USD", 9000),
		Description: "PAYROLL", Account: "Chase Checking"}
	err := s.Update(ctx, func(tx storage.Tx) error {
		for _, nt := range []ledger.NewTransaction{a, b} {
			ok, err := tx.InsertNewTransaction(ctx, nt)
			if err != nil {
				return err
			}
			if !ok {
				t.Fatalf("first insert of %s reported duplicate", nt.ID)
			}
		}
		ok, err := tx.InsertNewTransaction(ctx, a)
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("second insert reported new")
		}
		e := Entry("2", day(2), "Chase Checking", "Salary", 9000)
		e.TransactionSource = ledger.SourceOFX
		return tx.InsertEntry(ctx, e)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		all, err := tx.NewTransactions(ctx, ledger.SourceOFX, false)
		if err != nil {
			return err
		}
		if len(all) != 2 || all[0].ID != "2" {
			t.Fatalf("all: %+v", all)
		}
		if ledger.Minor(all[1].Amount) != -450 {
			t.Fatalf("signed amount lost: %v", all[1].Amount)
		}
		open, err := tx.NewTransactions(ctx, ledger.SourceOFX, true)
		if err != nil {
			return err
		}
		if len(open) != 1 || open[0].ID != "1" {
			t.Fatalf("unmatched: %+v", open)
		}
		none, err := tx.NewTransactions(ctx, ledger.SourceAmazon, false)
		if err != nil {
			return err
		}
		if len(none) != 0 {
			t.Fatalf("source filter ignored: %+v", none)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s)
	boom := errors.New("boom")
	err := s.Update(ctx, func(tx storage.Tx) error {
		if err := tx.InsertEntry(ctx, Entry("a", day(1), "Rent", "Chase Checking", 1000)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	err = s.View(ctx, func(tx storage.Tx) error {
		es, err := tx.Entries(ctx, storage.EntryFilter{})
		if err != nil {
			return err
		}
		if len(es) != 0 {
			t.Fatalf("entry survived rollback")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func testViewReadOnly(t *testing.T, s storage.Store) {
	ctx := context.Background()
	err := s.View(ctx, func(tx storage.Tx) error {
		return tx.CreateElement(ctx, ledger.Element{Name: "Assets"})
	})
	if err == nil {
		t.Fatalf("write inside View succeeded")
	}
}
