package report_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/service/posting"
	"github.com/tinoosan/bookkeeper/internal/service/report"
	"github.com/tinoosan/bookkeeper/internal/service/trialbalance"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
	"github.com/tinoosan/bookkeeper/internal/storage/storagetest"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func setup(t *testing.T) report.Service {
	t.Helper()
	store := memory.New()
	storagetest.Seed(t, store)
	tb := trialbalance.New(store, "USD", testLogger())
	post := posting.New(store, tb, "USD", testLogger())
	for _, e := range []ledger.JournalEntry{
		storagetest.Entry("pay", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), "Chase Checking", "Salary", 500000),
		storagetest.Entry("rent", time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), "Rent", "Chase Checking", 100000),
		storagetest.Entry("coffee", time.Date(2024, 2, 7, 0, 0, 0, 0, time.UTC), "Coffee", "Chase Checking", 20000),
	} {
		if _, err := post.Post(context.Background(), e); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	return report.New(store, "USD")
}

func TestIncomeStatement(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	latest, err := svc.IncomeStatement(ctx, ledger.IntervalMonth, "")
	if err != nil {
		t.Fatalf("income statement: %v", err)
	}
	if latest.Period != "2024-02" || len(latest.Lines) != 1 || latest.Lines[0].Subaccount != "Coffee" {
		t.Fatalf("latest: %+v", latest)
	}
	if ledger.Minor(latest.Total) != -20000 {
		t.Fatalf("net income: %v", latest.Total)
	}

	jan, err := svc.IncomeStatement(ctx, ledger.IntervalMonth, "2024-01")
	if err != nil {
		t.Fatalf("income statement: %v", err)
	}
	if len(jan.Lines) != 2 || jan.Lines[0].Element != "Revenues" || jan.Lines[1].Element != "Expenses" {
		t.Fatalf("january lines: %+v", jan.Lines)
	}
	if ledger.Minor(jan.Total) != 400000 {
		t.Fatalf("january net income: %v", jan.Total)
	}

	year, err := svc.IncomeStatement(ctx, ledger.IntervalYear, "2024")
	if err != nil {
		t.Fatalf("income statement: %v", err)
	}
	if ledger.Minor(year.Total) != 380000 {
		t.Fatalf("annual net income: %v", year.Total)
	}
}

func TestBalanceSheet(t *testing.T) {
	svc := setup(t)
	bs, err := svc.BalanceSheet(context.Background(), "", "")
	if err != nil {
		t.Fatalf("balance sheet: %v", err)
	}
	if bs.Interval != ledger.IntervalMonth || bs.Period != "2024-02" {
		t.Fatalf("defaults: %s %s", bs.Interval, bs.Period)
	}
	if len(bs.Lines) != 1 || bs.Lines[0].Subaccount != "Chase Checking" || ledger.Minor(bs.Lines[0].Amount) != 380000 {
		t.Fatalf("lines: %+v", bs.Lines)
	}
	if ledger.Minor(bs.Total) != -380000 {
		t.Fatalf("net equity: %v", bs.Total)
	}
}

func TestPeriods(t *testing.T) {
	svc := setup(t)
	ps, err := svc.IncomeStatementPeriods(context.Background(), ledger.IntervalMonth)
	if err != nil {
		t.Fatalf("periods: %v", err)
	}
	if len(ps) != 2 || ps[0] != "2024-02" || ps[1] != "2024-01" {
		t.Fatalf("income periods: %v", ps)
	}
	ps, err = svc.BalanceSheetPeriods(context.Background(), ledger.IntervalDay)
	if err != nil {
		t.Fatalf("periods: %v", err)
	}
	if len(ps) != 3 || ps[0] != "2024-02-07" {
		t.Fatalf("balance periods: %v", ps)
	}
	if _, err := svc.IncomeStatementPeriods(context.Background(), "YYYY-HH"); !errors.Is(err, errs.ErrUnknownInterval) {
		t.Fatalf("want ErrUnknownInterval, got %v", err)
	}
}

func TestJournalEntries(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	latest, err := svc.JournalEntries(ctx, report.EntryQuery{Subaccount: "Chase Checking", Interval: ledger.IntervalMonth})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(latest) != 1 || latest[0].TransactionID != "coffee" {
		t.Fatalf("latest period entries: %+v", latest)
	}
	through, err := svc.JournalEntries(ctx, report.EntryQuery{Subaccount: "Chase Checking", Interval: ledger.IntervalMonth, Period: "2024-02", Cumulative: true})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(through) != 3 {
		t.Fatalf("cumulative entries: %d", len(through))
	}
	all, err := svc.JournalEntries(ctx, report.EntryQuery{Subaccount: "Rent"})
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("rent entries: %d", len(all))
	}
}

func TestTrialBalances(t *testing.T) {
	svc := setup(t)
	rows, err := svc.TrialBalances(context.Background(), ledger.IntervalMonth, "2024-02")
	if err != nil {
		t.Fatalf("trial balances: %v", err)
	}
	// Every subaccount with history carries a row into February.
	if len(rows) != 4 {
		t.Fatalf("rows: %+v", rows)
	}
	var sum int64
	for _, r := range rows {
		sum += ledger.Minor(r.NetBalance)
	}
	if sum != 0 {
		t.Fatalf("net balances sum to %d", sum)
	}
}

func TestEmptyLedger(t *testing.T) {
	svc := report.New(memory.New(), "USD")
	st, err := svc.IncomeStatement(context.Background(), ledger.IntervalMonth, "")
	if err != nil {
		t.Fatalf("income statement: %v", err)
	}
	if st.Period != "" || len(st.Lines) != 0 || ledger.Minor(st.Total) != 0 {
		t.Fatalf("empty statement: %+v", st)
	}
}
