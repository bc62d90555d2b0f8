package trialbalance_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/service/posting"
	"github.com/tinoosan/bookkeeper/internal/service/trialbalance"
	"github.com/tinoosan/bookkeeper/internal/storage"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
	"github.com/tinoosan/bookkeeper/internal/storage/sqlite"
	"github.com/tinoosan/bookkeeper/internal/storage/storagetest"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	store    storage.Store
	balances trialbalance.Service
	posting  posting.Service
}

func newFixture(t *testing.T, store storage.Store) fixture {
	t.Helper()
	storagetest.Seed(t, store)
	tb := trialbalance.New(store, "USD", testLogger())
	return fixture{store: store, balances: tb, posting: posting.New(store, tb, "USD", testLogger())}
}

// backends runs fn once per storage implementation that needs no external service.
func backends(t *testing.T, fn func(t *testing.T, f fixture)) {
	t.Run("memory", func(t *testing.T) { fn(t, newFixture(t, memory.New())) })
	t.Run("sqlite", func(t *testing.T) {
		s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "books.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		fn(t, newFixture(t, s))
	})
}

func (f fixture) post(t *testing.T, id string, at time.Time, debit, credit string, cents int64) ledger.JournalEntry {
	t.Helper()
	e, err := f.posting.Post(context.Background(), storagetest.Entry(id, at, debit, credit, cents))
	if err != nil {
		t.Fatalf("post %s: %v", id, err)
	}
	return e
}

func (f fixture) rows(t *testing.T) map[ledger.TrialBalanceKey]ledger.TrialBalance {
	t.Helper()
	out := make(map[ledger.TrialBalanceKey]ledger.TrialBalance)
	err := f.store.View(context.Background(), func(tx storage.Tx) error {
		rows, err := tx.TrialBalances(context.Background(), storage.TrialBalanceFilter{})
		if err != nil {
			return err
		}
		for _, r := range rows {
			out[r.Key()] = r
		}
		return nil
	})
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func (f fixture) row(t *testing.T, sub string, iv ledger.PeriodInterval, period string) ledger.TrialBalance {
	t.Helper()
	r, ok := f.rows(t)[ledger.TrialBalanceKey{Subaccount: sub, Interval: iv, Period: period}]
	if !ok {
		t.Fatalf("no row for %s %s %s", sub, iv, period)
	}
	return r
}

func sameRows(t *testing.T, want, got map[ledger.TrialBalanceKey]ledger.TrialBalance) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("row count: want %d got %d", len(want), len(got))
	}
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			t.Fatalf("missing row %+v", k)
		}
		if !g.Equal(w) {
			t.Fatalf("row %+v differs:\nwant %+v\ngot  %+v", k, w, g)
		}
	}
}

var subaccounts = []string{"Chase Checking", "Accounts Payable", "Rent", "Coffee", "Salary"}

func randomEntries(r *rand.Rand, n int) []ledger.JournalEntry {
	start := time.Date(2023, time.November, 1, 0, 0, 0, 0, time.UTC)
	out := make([]ledger.JournalEntry, 0, n)
	for i := 0; i < n; i++ {
		d := r.Intn(len(subaccounts))
		c := (d + 1 + r.Intn(len(subaccounts)-1)) % len(subaccounts)
		at := start.Add(time.Duration(r.Intn(400*24)) * time.Hour)
		out = append(out, storagetest.Entry(
			fmt.Sprintf("rand-%d", i), at,
			subaccounts[d], subaccounts[c], int64(1+r.Intn(50000)),
		))
	}
	return out
}

func TestPost_DuplicateIsSkipped(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		at := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
		f.post(t, "dup", at, "Rent", "Chase Checking", 1000)
		before := f.rows(t)
		_, err := f.posting.Post(ctx, storagetest.Entry("dup", at, "Rent", "Chase Checking", 1000))
		if !errors.Is(err, errs.ErrDuplicateTransaction) {
			t.Fatalf("want ErrDuplicateTransaction, got %v", err)
		}
		err = f.store.View(ctx, func(tx storage.Tx) error {
			es, err := tx.Entries(ctx, storage.EntryFilter{})
			if err != nil {
				return err
			}
			if len(es) != 1 {
				t.Fatalf("want 1 entry, got %d", len(es))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		sameRows(t, before, f.rows(t))
	})
}

func TestNetChangesSumToZero(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		for _, e := range randomEntries(rand.New(rand.NewSource(7)), 40) {
			if _, err := f.posting.Post(context.Background(), e); err != nil {
				t.Fatalf("post: %v", err)
			}
		}
		sums := make(map[[2]string]int64)
		for k, r := range f.rows(t) {
			sums[[2]string{string(k.Interval), k.Period}] += ledger.Minor(r.NetChanges)
		}
		if len(sums) == 0 {
			t.Fatalf("no rows")
		}
		for k, v := range sums {
			if v != 0 {
				t.Fatalf("net changes for %v sum to %d", k, v)
			}
		}
	})
}

func TestIncrementalMatchesRefresh(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		for _, e := range randomEntries(rand.New(rand.NewSource(42)), 60) {
			if _, err := f.posting.Post(ctx, e); err != nil {
				t.Fatalf("post: %v", err)
			}
		}
		if err := f.balances.Verify(ctx); err != nil {
			t.Fatalf("verify after incremental: %v", err)
		}
		incremental := f.rows(t)
		res, err := f.balances.Refresh(ctx)
		if err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if res.Rows == 0 || res.Steps == 0 {
			t.Fatalf("refresh did nothing: %+v", res)
		}
		sameRows(t, incremental, f.rows(t))
		if _, err := f.balances.Refresh(ctx); err != nil {
			t.Fatalf("second refresh: %v", err)
		}
		sameRows(t, incremental, f.rows(t))
	})
}

func TestBackdatedEntryPropagates(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		f.post(t, "jan", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "Rent", "Chase Checking", 1000)
		f.post(t, "mar", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), "Coffee", "Chase Checking", 300)
		f.post(t, "may", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), "Chase Checking", "Salary", 9000)
		before := f.rows(t)

		backdated := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
		f.post(t, "feb", backdated, "Rent", "Chase Checking", 500)
		after := f.rows(t)

		for _, iv := range ledger.Intervals() {
			cut := iv.Label(backdated)
			for k, r := range before {
				if k.Interval != iv {
					continue
				}
				if k.Period < cut {
					if !after[k].Equal(r) {
						t.Fatalf("%+v before the backdated entry changed", k)
					}
					continue
				}
				if k.Subaccount != "Rent" && k.Subaccount != "Chase Checking" {
					continue
				}
				got, ok := after[k]
				if !ok {
					t.Fatalf("%+v disappeared", k)
				}
				delta := ledger.Minor(got.NetBalance) - ledger.Minor(r.NetBalance)
				want := int64(500)
				if k.Subaccount == "Chase Checking" {
					want = -500
				}
				if delta != want {
					t.Fatalf("%+v net balance moved by %d, want %d", k, delta, want)
				}
			}
		}
		// February is a new monthly bucket: every subaccount with history gets a row.
		if _, ok := after[ledger.TrialBalanceKey{Subaccount: "Rent", Interval: ledger.IntervalMonth, Period: "2024-02"}]; !ok {
			t.Fatalf("no row for the opened February bucket")
		}
		if err := f.balances.Verify(context.Background()); err != nil {
			t.Fatalf("verify: %v", err)
		}
	})
}

func TestAccountsPayableScenario(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		f.post(t, "bill", time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), "Rent", "Accounts Payable", 10000)
		f.post(t, "pay", time.Date(2024, 2, 9, 9, 0, 0, 0, time.UTC), "Accounts Payable", "Chase Checking", 10000)

		jan := f.row(t, "Accounts Payable", ledger.IntervalMonth, "2024-01")
		if got := ledger.Minor(jan.NetBalance); got != -10000 {
			t.Fatalf("January net balance: %d", got)
		}
		feb := f.row(t, "Accounts Payable", ledger.IntervalMonth, "2024-02")
		if got := ledger.Minor(feb.NetBalance); got != 0 {
			t.Fatalf("February net balance: %d", got)
		}
		if got := ledger.Minor(feb.NetChanges); got != 10000 {
			t.Fatalf("February net changes: %d", got)
		}
		// Rent has no February activity but still carries its balance into the bucket.
		rent := f.row(t, "Rent", ledger.IntervalMonth, "2024-02")
		if ledger.Minor(rent.NetBalance) != 10000 || ledger.Minor(rent.NetChanges) != 0 {
			t.Fatalf("rent February row: %+v", rent)
		}
	})
}

func TestUpdateMovesEntryBetweenBuckets(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.post(t, "a", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "Rent", "Chase Checking", 1000)
		moved := f.post(t, "b", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), "Coffee", "Chase Checking", 200)

		moved.Timestamp = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
		moved.DebitSubaccount = "Rent"
		if _, err := f.posting.Update(ctx, moved); err != nil {
			t.Fatalf("update: %v", err)
		}
		rows := f.rows(t)
		for k := range rows {
			if k.Interval == ledger.IntervalMonth && k.Period == "2024-02" {
				t.Fatalf("emptied bucket still has row %+v", k)
			}
			if k.Subaccount == "Coffee" {
				t.Fatalf("subaccount without history still has row %+v", k)
			}
		}
		if err := f.balances.Verify(ctx); err != nil {
			t.Fatalf("verify: %v", err)
		}
		incremental := rows
		if _, err := f.balances.Refresh(ctx); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		sameRows(t, incremental, f.rows(t))
	})
}

func TestVerifyDetectsDrift(t *testing.T) {
	backends(t, func(t *testing.T, f fixture) {
		ctx := context.Background()
		f.post(t, "a", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "Rent", "Chase Checking", 1000)
		err := f.store.Update(ctx, func(tx storage.Tx) error {
			key := ledger.TrialBalanceKey{Subaccount: "Rent", Interval: ledger.IntervalYear, Period: "2024"}
			r, err := tx.TrialBalance(ctx, key)
			if err != nil {
				return err
			}
			r.NetBalance = ledger.FromMinor("USD", 1)
			return tx.UpsertTrialBalance(ctx, r)
		})
		if err != nil {
			t.Fatalf("tamper: %v", err)
		}
		if err := f.balances.Verify(ctx); !errors.Is(err, errs.ErrDrift) {
			t.Fatalf("want ErrDrift, got %v", err)
		}
		if _, err := f.balances.Refresh(ctx); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		if err := f.balances.Verify(ctx); err != nil {
			t.Fatalf("verify after refresh: %v", err)
		}
	})
}

func TestPost_RejectsInvalidEntries(t *testing.T) {
	f := newFixture(t, memory.New())
	at := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		entry ledger.JournalEntry
		want  error
	}{
		{"zero amount", storagetest.Entry("z", at, "Rent", "Chase Checking", 0), errs.ErrZeroAmount},
		{"same sides", storagetest.Entry("s", at, "Rent", "Rent", 100), errs.ErrInvalid},
		{"missing side", storagetest.Entry("m", at, "", "Rent", 100), errs.ErrInvalid},
		{"unknown subaccount", storagetest.Entry("u", at, "Nope", "Rent", 100), errs.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.posting.Post(context.Background(), tc.entry); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
	if len(f.rows(t)) != 0 {
		t.Fatalf("rejected entries left trial balance rows")
	}
}
