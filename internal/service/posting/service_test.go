package posting_test

import (
    "context"
    "errors"
    "io"
    "log/slog"
    "testing"
    "time"

    "github.com/google/uuid"

    "github.com/tinoosan/bookkeeper/internal/errs"
    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/service/posting"
    "github.com/tinoosan/bookkeeper/internal/service/trialbalance"
    "github.com/tinoosan/bookkeeper/internal/storage"
    "github.com/tinoosan/bookkeeper/internal/storage/memory"
    "github.com/tinoosan/bookkeeper/internal/storage/storagetest"
)

func setup(t *testing.T) posting.Service {
    t.Helper()
    store := memory.New()
    storagetest.Seed(t, store)
    logger := slog.New(slog.NewTextHandler(io.Discard, nil))
    return posting.New(store, trialbalance.New(store, "USD", logger), "USD", logger)
}

var jan10 = time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

func TestPost_FillsDefaults(t *testing.T) {
    svc := setup(t)
    e := storagetest.Entry("", jan10, "Rent", "Chase Checking", 120000)
    e.ID = uuid.Nil
    e.TransactionSource = ""
    got, err := svc.Post(context.Background(), e)
    if err != nil {
        t.Fatalf("post: %v", err)
    }
    if got.ID == uuid.Nil || got.TransactionSource != ledger.SourceManual || got.TransactionID != got.ID.String() {
        t.Fatalf("defaults: %+v", got)
    }
    if ledger.Minor(got.SourceAmount) != 120000 {
        t.Fatalf("source amount: %v", got.SourceAmount)
    }
}

func TestPost_RejectsForeignCurrency(t *testing.T) {
    svc := setup(t)
    e := storagetest.Entry("eur", jan10, "Rent", "Chase Checking", 100)
    e.FunctionalAmount = ledger.FromMinor("EUR", 100)
    if _, err := svc.Post(context.Background(), e); !errors.Is(err, errs.ErrInvalid) {
        t.Fatalf("want ErrInvalid, got %v", err)
    }
}

func TestUpdate_KeepsTransactionKey(t *testing.T) {
    svc := setup(t)
    posted, err := svc.Post(context.Background(), storagetest.Entry("rent-jan", jan10, "Rent", "Chase Checking", 120000))
    if err != nil {
        t.Fatalf("post: %v", err)
    }
    change := ledger.JournalEntry{
        ID:               posted.ID,
        Timestamp:        jan10,
        DebitSubaccount:  "Rent",
        CreditSubaccount: "Accounts Payable",
        FunctionalAmount: ledger.FromMinor("USD", 120000),
    }
    got, err := svc.Update(context.Background(), change)
    if err != nil {
        t.Fatalf("update: %v", err)
    }
    if got.TransactionID != "rent-jan" || got.TransactionSource != ledger.SourceManual {
        t.Fatalf("transaction key lost: %+v", got)
    }

    change.ID = uuid.New()
    if _, err := svc.Update(context.Background(), change); !errors.Is(err, errs.ErrNotFound) {
        t.Fatalf("want ErrNotFound, got %v", err)
    }
    change.ID = uuid.Nil
    if _, err := svc.Update(context.Background(), change); !errors.Is(err, errs.ErrInvalid) {
        t.Fatalf("want ErrInvalid, got %v", err)
    }
}

func TestPostNewTransaction(t *testing.T) {
    svc := setup(t)
    nt := ledger.NewTransaction{
        ID:          " fitid-1 ",
        Source:      ledger.SourceOFX,
        Timestamp:   jan10,
        Amount:      ledger.FromMinor("USD", -450),
        Description: "STARBUCKS",
        Account:     "Chase Checking",
    }
    ok, err := svc.PostNewTransaction(context.Background(), nt)
    if err != nil || !ok {
        t.Fatalf("first insert: %v %v", ok, err)
    }
    nt.ID = "fitid-1"
    ok, err = svc.PostNewTransaction(context.Background(), nt)
    if err != nil || ok {
        t.Fatalf("second insert: %v %v", ok, err)
    }
    nt.Account = ""
    if _, err := svc.PostNewTransaction(context.Background(), nt); !errors.Is(err, errs.ErrInvalid) {
        t.Fatalf("want ErrInvalid, got %v", err)
    }
}

func TestPostNewTransaction_LowerCasesSource(t *testing.T) {
    ctx := context.Background()
    store := memory.New()
    storagetest.Seed(t, store)
    logger := slog.New(slog.NewTextHandler(io.Discard, nil))
    svc := posting.New(store, trialbalance.New(store, "USD", logger), "USD", logger)
    nt := ledger.NewTransaction{ID: "fitid-2", Source: " OFX", Timestamp: jan10, Amount: ledger.FromMinor("USD", -450),
        Description: "STARBUCKS", Account: "Chase Checking"}
    if _, err := svc.PostNewTransaction(ctx, nt); err != nil {
        t.Fatalf("insert: %v", err)
    }
    err := store.View(ctx, func(tx storage.Tx) error {
        got, err := tx.NewTransactions(ctx, ledger.SourceOFX, false)
        if err != nil { return err }
        if len(got) != 1 || got[0].Source != ledger.SourceOFX {
            t.Fatalf("stored: %+v", got)
        }
        return nil
    })
    if err != nil { t.Fatalf("view: %v", err) }
}
