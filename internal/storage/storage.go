// Package storage declares the unit-of-work contract shared by every backend.
//
// Services never write outside a unit of work: a journal entry and the trial
// balance rows derived from it are committed together or not at all.
package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// Store opens units of work. Update commits when fn returns nil and rolls back otherwise.
// View runs fn read-only; writes inside it fail with errs.ErrReadOnly or a backend error.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// EntryFilter selects journal entries. Zero values mean "no constraint".
type EntryFilter struct {
	// Subaccount matches either the debit or the credit side.
	Subaccount string
	Source     ledger.Source
	Interval   ledger.PeriodInterval
	Period     string
	// Cumulative selects every period up to and including Period.
	Cumulative bool
	Limit      int
}

// TrialBalanceFilter selects trial balance rows of one interval.
type TrialBalanceFilter struct {
	Interval   ledger.PeriodInterval
	Period     string
	Subaccount string
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	TaxonomyTx
	JournalTx
	TrialBalanceTx
	MappingTx
}

// TaxonomyTx covers the chart of accounts. Create methods return errs.ErrConflict
// for an existing name and errs.ErrNotFound for a missing parent.
type TaxonomyTx interface {
	CreateElement(ctx context.Context, e ledger.Element) error
	CreateClassification(ctx context.Context, c ledger.Classification) error
	CreateAccount(ctx context.Context, a ledger.Account) error
	CreateSubaccount(ctx context.Context, s ledger.Subaccount) error
	Account(ctx context.Context, name string) (ledger.Account, error)
	Subaccount(ctx context.Context, name string) (ledger.Subaccount, error)
	// Lineages lists every subaccount with its parent chain, ordered by
	// element, classification, account and subaccount.
	Lineages(ctx context.Context) ([]ledger.Lineage, error)
}

// JournalTx covers journal entries and the aggregate scans the maintainer runs over them.
// Sums are in minor units of the functional currency.
type JournalTx interface {
	// InsertEntry returns errs.ErrDuplicateTransaction when (transaction_id, transaction_source)
	// is taken and errs.ErrNotFound when a subaccount does not exist.
	InsertEntry(ctx context.Context, e ledger.JournalEntry) error
	UpdateEntry(ctx context.Context, e ledger.JournalEntry) error
	Entry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	// Entries returns matching entries newest first, joined with their source description.
	Entries(ctx context.Context, f EntryFilter) ([]ledger.EntryDetail, error)
	SubaccountPairs(ctx context.Context) ([]ledger.SubaccountPair, error)
	// Periods returns the distinct labels >= from over all entries, ascending.
	Periods(ctx context.Context, iv ledger.PeriodInterval, from string) ([]string, error)
	CountInPeriod(ctx context.Context, iv ledger.PeriodInterval, period string) (int, error)
	Sum(ctx context.Context, side ledger.Side, subaccount string, iv ledger.PeriodInterval, period string, cumulative bool) (int64, error)
	// SubaccountsWithHistory returns subaccounts named by any entry labelled <= through.
	SubaccountsWithHistory(ctx context.Context, iv ledger.PeriodInterval, through string) ([]string, error)
}

// TrialBalanceTx covers the derived aggregate rows.
type TrialBalanceTx interface {
	TrialBalance(ctx context.Context, key ledger.TrialBalanceKey) (ledger.TrialBalance, error)
	UpsertTrialBalance(ctx context.Context, tb ledger.TrialBalance) error
	DeleteTrialBalance(ctx context.Context, key ledger.TrialBalanceKey) error
	DeletePeriod(ctx context.Context, iv ledger.PeriodInterval, period string) error
	// TrialBalances returns rows ordered by period then subaccount.
	TrialBalances(ctx context.Context, f TrialBalanceFilter) ([]ledger.TrialBalance, error)
	TruncateTrialBalances(ctx context.Context) error
}

// MappingTx covers keyword rules and the raw transactions they are applied to.
type MappingTx interface {
	// InsertMapping returns errs.ErrConflict when (source, keyword) is taken.
	InsertMapping(ctx context.Context, m ledger.Mapping) error
	MappingByKey(ctx context.Context, source ledger.Source, keyword string) (ledger.Mapping, error)
	Mappings(ctx context.Context) ([]ledger.Mapping, error)
	// InsertNewTransaction reports false when (id, source) was already recorded.
	InsertNewTransaction(ctx context.Context, t ledger.NewTransaction) (bool, error)
	// NewTransactions returns transactions of a source (all sources when empty), newest first.
	// unmatchedOnly drops those that already have a journal entry.
	NewTransactions(ctx context.Context, source ledger.Source, unmatchedOnly bool) ([]ledger.NewTransaction, error)
}
