package ledger

import (
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/govalues/money"
    "github.com/tinoosan/bookkeeper/internal/tags"
)

// Side represents the accounting position a subaccount takes in an entry.
type Side string

const (
	// SideDebit records a value on the debit side of a subaccount.
	SideDebit Side = "debit"
	// SideCredit records a value on the credit side of a subaccount.
	SideCredit Side = "credit"
)

// Source identifies the system that produced a transaction.
type Source string

const (
	SourceOFX    Source = "ofx"
	SourceAmazon Source = "amazon"
	SourceManual Source = "manual"
)

// NormalizeSource trims s and lower-cases it so "OFX" and "ofx" name the same source.
func NormalizeSource(s Source) Source {
    return Source(strings.ToLower(strings.TrimSpace(string(s))))
}

// Element is the top level of the chart of accounts (Assets, Expenses, ...).
type Element struct {
    Name string
}

// Classification groups accounts under an element.
type Classification struct {
    Name   string
    Parent string
}

// Account groups subaccounts under a classification.
type Account struct {
    Name   string
    Parent string
    // CashSource optionally names the cash-flow bucket the account feeds.
    CashSource string
}

// Subaccount is the leaf of the chart of accounts; journal entries post to subaccounts.
type Subaccount struct {
    Name        string
    Parent      string
    Description string
    Tags        tags.Tags `json:"tags,omitempty"`
}

// Lineage is a subaccount with its full parent chain resolved.
type Lineage struct {
    Subaccount     string
    Account        string
    Classification string
    Element        string
}

// JournalEntry is one double-entry posting: exactly one debit and one credit subaccount.
// Amounts are never negative; direction is carried by which side names which subaccount.
type JournalEntry struct {
    ID                uuid.UUID
    TransactionID     string
    TransactionSource Source
    // MappingID references the rule that generated the entry, nil for manual postings.
    MappingID        *uuid.UUID
    Timestamp        time.Time
    DebitSubaccount  string
    CreditSubaccount string
    FunctionalAmount money.Amount
    SourceAmount     money.Amount
}

// Subaccounts returns the debit and credit subaccounts.
func (e JournalEntry) Subaccounts() [2]string { return [2]string{e.DebitSubaccount, e.CreditSubaccount} }

// EntryDetail pairs a journal entry with the description of the transaction it came from.
type EntryDetail struct {
    JournalEntry
    Description string
}

// SubaccountPair is a distinct (debit, credit) combination appearing in the journal.
type SubaccountPair struct {
    Debit  string
    Credit string
}

// TrialBalance is the per-subaccount aggregate for one period bucket.
// Balances are cumulative through the end of the period; changes cover the period only.
type TrialBalance struct {
    Subaccount    string
    Interval      PeriodInterval
    Period        string
    DebitBalance  money.Amount
    CreditBalance money.Amount
    NetBalance    money.Amount
    DebitChanges  money.Amount
    CreditChanges money.Amount
    NetChanges    money.Amount
}

// Key returns the natural key of the row.
func (tb TrialBalance) Key() TrialBalanceKey {
    return TrialBalanceKey{Subaccount: tb.Subaccount, Interval: tb.Interval, Period: tb.Period}
}

// Equal reports whether both rows share a key and every amount.
func (tb TrialBalance) Equal(o TrialBalance) bool {
    if tb.Key() != o.Key() { return false }
    pairs := [][2]money.Amount{
        {tb.DebitBalance, o.DebitBalance}, {tb.CreditBalance, o.CreditBalance}, {tb.NetBalance, o.NetBalance},
        {tb.DebitChanges, o.DebitChanges}, {tb.CreditChanges, o.CreditChanges}, {tb.NetChanges, o.NetChanges},
    }
    for _, p := range pairs {
        if p[0].Curr() != p[1].Curr() || Minor(p[0]) != Minor(p[1]) { return false }
    }
    return true
}

// TrialBalanceKey is the unique key of a trial balance row.
type TrialBalanceKey struct {
    Subaccount string
    Interval   PeriodInterval
    Period     string
}

// Mapping is a keyword rule that turns new transactions into journal entries.
// One side of each sign's pair is usually left empty and filled by the transaction's own account.
type Mapping struct {
    ID             uuid.UUID
    Source         Source
    Keyword        string
    PositiveDebit  string
    PositiveCredit string
    NegativeDebit  string
    NegativeCredit string
    CreatedAt      time.Time
}

// NewTransaction is a raw transaction handed over by an importer.
// Amount is signed: positive money flowed into Account, negative flowed out.
type NewTransaction struct {
    ID          string
    Source      Source
    Timestamp   time.Time
    Amount      money.Amount
    Description string
    Account     string
}

// Minor returns the amount in minor units of its currency.
func Minor(a money.Amount) int64 {
    n, _ := a.MinorUnits()
    return n
}

// FromMinor builds an amount from minor units, panicking on an unknown currency.
// Currencies are validated at configuration load.
func FromMinor(currency string, n int64) money.Amount {
    a, err := money.NewAmountFromMinorUnits(currency, n)
    if err != nil { panic(err) }
    return a
}

// NewAmount builds an amount from minor units of a currency code.
func NewAmount(currency string, n int64) (money.Amount, error) {
    return money.NewAmountFromMinorUnits(currency, n)
}

// FillTrialBalance sets the six aggregate columns of tb from minor units.
func FillTrialBalance(tb TrialBalance, currency string, debitBal, creditBal, netBal, debitChg, creditChg, netChg int64) (TrialBalance, error) {
    targets := []*money.Amount{&tb.DebitBalance, &tb.CreditBalance, &tb.NetBalance, &tb.DebitChanges, &tb.CreditChanges, &tb.NetChanges}
    for i, n := range []int64{debitBal, creditBal, netBal, debitChg, creditChg, netChg} {
        a, err := money.NewAmountFromMinorUnits(currency, n)
        if err != nil { return TrialBalance{}, err }
        *targets[i] = a
    }
    return tb, nil
}
