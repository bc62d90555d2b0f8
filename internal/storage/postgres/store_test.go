package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/tinoosan/bookkeeper/internal/storage"
	"github.com/tinoosan/bookkeeper/internal/storage/storagetest"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func applyInitSQL(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Resolve init SQL path relative to this test file so CWD doesn't matter
	_, thisFile, _, _ := runtime.Caller(0)
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(thisFile), "../../../"))
	b, err := os.ReadFile(filepath.Join(repoRoot, "db", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("read init sql: %v", err)
	}
	if _, err := s.pool.Exec(ctx, string(b)); err != nil {
		t.Fatalf("apply init sql: %v", err)
	}
}

func truncateAll(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `truncate table trial_balances, journal_entries, new_transactions, mappings,
		subaccounts, accounts, classifications, elements cascade`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func TestStore_Conformance(t *testing.T) {
	dsn := getTestDSN(t)
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s := mustOpen(t, dsn)
		t.Cleanup(s.Close)
		applyInitSQL(t, s)
		truncateAll(t, s)
		return s
	})
}

func TestStore_MigrateAndReady(t *testing.T) {
	dsn := getTestDSN(t)
	s := mustOpen(t, dsn)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := s.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
}
