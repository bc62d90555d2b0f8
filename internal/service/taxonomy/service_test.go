package taxonomy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tinoosan/bookkeeper/internal/errs"
	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/storage"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

const chart = `Element,Classification,Account,Cash Source,Subaccount,Tags
Assets,Cash,Checking,Operating,Chase Checking,bank=chase;primary
Assets,Cash,Checking,Operating,Ally Savings,
Expenses,Operating Expenses,Discretionary Costs,,,
Expenses,Operating Expenses,Occupancy,,Rent,tax=schedule_e
Liabilities,Current Liabilities,Payables,,Accounts Payable,
`

func TestSeedCSV(t *testing.T) {
	store := memory.New()
	svc := New(store, "", testLogger())
	res, itemErrs, err := svc.SeedCSV(context.Background(), strings.NewReader(chart))
	if err != nil || len(itemErrs) > 0 {
		t.Fatalf("seed: %v %v", err, itemErrs)
	}
	if res.Elements != 3 || res.Classifications != 3 || res.Accounts != 4 || res.Subaccounts != 4 {
		t.Fatalf("result: %+v", res)
	}
	// Seeding twice only finds existing names.
	res, _, err = svc.SeedCSV(context.Background(), strings.NewReader(chart))
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if res != (SeedResult{}) {
		t.Fatalf("reseed created rows: %+v", res)
	}
	ls, err := svc.Lineages(context.Background())
	if err != nil {
		t.Fatalf("lineages: %v", err)
	}
	if len(ls) != 4 {
		t.Fatalf("lineages: %+v", ls)
	}
	err = store.View(context.Background(), func(tx storage.Tx) error {
		sub, err := tx.Subaccount(context.Background(), "Chase Checking")
		if err != nil {
			return err
		}
		if sub.Tags["bank"] != "chase" || !sub.Tags.Has("primary") {
			t.Fatalf("tags: %v", sub.Tags)
		}
		acc, err := tx.Account(context.Background(), "Checking")
		if err != nil {
			return err
		}
		if acc.CashSource != "Operating" {
			t.Fatalf("cash source: %+v", acc)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSeedCSV_InvalidRowsWriteNothing(t *testing.T) {
	store := memory.New()
	svc := New(store, "", testLogger())
	bad := "Element,Classification,Account\nAssets,Cash,Checking\nAsets,Cash,Checking\nExpenses,,Rent\n"
	_, itemErrs, err := svc.SeedCSV(context.Background(), strings.NewReader(bad))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(itemErrs) != 2 || itemErrs[0].Index != 1 || itemErrs[0].Code != "unknown_element" || itemErrs[1].Code != "validation_error" {
		t.Fatalf("item errors: %+v", itemErrs)
	}
	err = store.View(context.Background(), func(tx storage.Tx) error {
		if _, err := tx.Account(context.Background(), "Checking"); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("valid row written despite errors: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSeedCSV_MissingColumn(t *testing.T) {
	svc := New(memory.New(), "", testLogger())
	_, _, err := svc.SeedCSV(context.Background(), strings.NewReader("Element,Account\nAssets,Checking\n"))
	if !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}

func TestEnsureSubaccount(t *testing.T) {
	store := memory.New()
	svc := New(store, "", testLogger())
	if _, _, err := svc.SeedCSV(context.Background(), strings.NewReader(chart)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ctx := context.Background()
	err := store.Update(ctx, func(tx storage.Tx) error {
		created, err := svc.EnsureSubaccount(ctx, tx, "Lunch")
		if err != nil || !created {
			t.Fatalf("first ensure: %v %v", created, err)
		}
		created, err = svc.EnsureSubaccount(ctx, tx, "Lunch")
		if err != nil || created {
			t.Fatalf("second ensure: %v %v", created, err)
		}
		created, err = svc.EnsureSubaccount(ctx, tx, "Rent")
		if err != nil || created {
			t.Fatalf("existing subaccount: %v %v", created, err)
		}
		sub, err := tx.Subaccount(ctx, "Lunch")
		if err != nil {
			return err
		}
		if sub.Parent != "Discretionary Costs" {
			t.Fatalf("parent: %s", sub.Parent)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestCreateSubaccount(t *testing.T) {
	store := memory.New()
	svc := New(store, "", testLogger())
	if _, _, err := svc.SeedCSV(context.Background(), strings.NewReader(chart)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tests := []struct {
		name string
		sub  ledger.Subaccount
		want error
	}{
		{"ok", ledger.Subaccount{Name: "Water", Parent: "Occupancy"}, nil},
		{"duplicate", ledger.Subaccount{Name: "Rent", Parent: "Occupancy"}, errs.ErrConflict},
		{"missing parent", ledger.Subaccount{Name: "Gas", Parent: "Utilities"}, errs.ErrNotFound},
		{"no name", ledger.Subaccount{Parent: "Occupancy"}, errs.ErrInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.CreateSubaccount(context.Background(), tc.sub)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}
