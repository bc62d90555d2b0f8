package memory

import (
	"context"
	"testing"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/storage"
	"github.com/tinoosan/bookkeeper/internal/storage/storagetest"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

func TestStore_Reset(t *testing.T) {
	s := New()
	storagetest.Seed(t, s)
	s.Reset()
	err := s.View(context.Background(), func(tx storage.Tx) error {
		ls, err := tx.Lineages(context.Background())
		if err != nil {
			return err
		}
		if len(ls) != 0 {
			t.Fatalf("reset kept %d subaccounts", len(ls))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Update(ctx, func(tx storage.Tx) error {
		return tx.CreateElement(ctx, ledger.Element{Name: "Assets"})
	})
	if err == nil {
		t.Fatalf("expected context error")
	}
}
