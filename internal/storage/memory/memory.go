package memory

// Package memory provides an in-memory backend used for development and tests.
// A unit of work runs under the store mutex against a snapshot that is discarded on error.
import (
    "context"
    "sort"
    "sync"

    "github.com/google/uuid"
    "github.com/tinoosan/bookkeeper/internal/errs"
    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/storage"
)

type naturalKey struct {
    ID     string
    Source ledger.Source
}

type mappingKey struct {
    Source  ledger.Source
    Keyword string
}

// state holds every table. Its methods assume the caller holds the store mutex.
type state struct {
    elements        map[string]ledger.Element
    classifications map[string]ledger.Classification
    accounts        map[string]ledger.Account
    subaccounts     map[string]ledger.Subaccount
    entries         map[uuid.UUID]ledger.JournalEntry
    entryKeys       map[naturalKey]uuid.UUID
    balances        map[ledger.TrialBalanceKey]ledger.TrialBalance
    mappings        map[uuid.UUID]ledger.Mapping
    mappingKeys     map[mappingKey]uuid.UUID
    transactions    map[naturalKey]ledger.NewTransaction
}

func newState() *state {
    return &state{
        elements:        make(map[string]ledger.Element),
        classifications: make(map[string]ledger.Classification),
        accounts:        make(map[string]ledger.Account),
        subaccounts:     make(map[string]ledger.Subaccount),
        entries:         make(map[uuid.UUID]ledger.JournalEntry),
        entryKeys:       make(map[naturalKey]uuid.UUID),
        balances:        make(map[ledger.TrialBalanceKey]ledger.TrialBalance),
        mappings:        make(map[uuid.UUID]ledger.Mapping),
        mappingKeys:     make(map[mappingKey]uuid.UUID),
        transactions:    make(map[naturalKey]ledger.NewTransaction),
    }
}

func (st *state) clone() *state {
    c := newState()
    for k, v := range st.elements { c.elements[k] = v }
    for k, v := range st.classifications { c.classifications[k] = v }
    for k, v := range st.accounts { c.accounts[k] = v }
    for k, v := range st.subaccounts { v.Tags = v.Tags.Clone(); c.subaccounts[k] = v }
    for k, v := range st.entries { c.entries[k] = v }
    for k, v := range st.entryKeys { c.entryKeys[k] = v }
    for k, v := range st.balances { c.balances[k] = v }
    for k, v := range st.mappings { c.mappings[k] = v }
    for k, v := range st.mappingKeys { c.mappingKeys[k] = v }
    for k, v := range st.transactions { c.transactions[k] = v }
    return c
}

// Store is the in-memory implementation of storage.Store.
// It is guarded by an RWMutex: View takes the read lock, Update the write lock.
type Store struct {
    mu sync.RWMutex
    st *state
}

// New constructs an empty in-memory store.
func New() *Store { return &Store{st: newState()} }

// Reset drops all data.
func (s *Store) Reset() { s.mu.Lock(); s.st = newState(); s.mu.Unlock() }

// Ready always succeeds; it mirrors the postgres store for health checks.
func (s *Store) Ready(context.Context) error { return nil }

// View implements storage.Store.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
    if err := ctx.Err(); err != nil { return err }
    s.mu.RLock()
    defer s.mu.RUnlock()
    return fn(&tx{st: s.st, readOnly: true})
}

// Update implements storage.Store. fn works on a snapshot that replaces the live
// state only when fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
    if err := ctx.Err(); err != nil { return err }
    s.mu.Lock()
    defer s.mu.Unlock()
    work := s.st.clone()
    if err := fn(&tx{st: work}); err != nil { return err }
    s.st = work
    return nil
}

type tx struct {
    st       *state
    readOnly bool
}

func (t *tx) writable() error {
    if t.readOnly { return errs.ErrReadOnly }
    return nil
}

// --- Taxonomy ---

func (t *tx) CreateElement(_ context.Context, e ledger.Element) error {
    if err := t.writable(); err != nil { return err }
    if _, ok := t.st.elements[e.Name]; ok { return errs.ErrConflict }
    t.st.elements[e.Name] = e
    return nil
}

func (t *tx) CreateClassification(_ context.Context, c ledger.Classification) error {
    if err := t.writable(); err != nil { return err }
    if _, ok := t.st.classifications[c.Name]; ok { return errs.ErrConflict }
    if _, ok := t.st.elements[c.Parent]; !ok { return errs.ErrNotFound }
    t.st.classifications[c.Name] = c
    return nil
}

func (t *tx) CreateAccount(_ context.Context, a ledger.Account) error {
    if err := t.writable(); err != nil { return err }
    if _, ok := t.st.accounts[a.Name]; ok { return errs.ErrConflict }
    if _, ok := t.st.classifications[a.Parent]; !ok { return errs.ErrNotFound }
    t.st.accounts[a.Name] = a
    return nil
}

func (t *tx) CreateSubaccount(_ context.Context, s ledger.Subaccount) error {
    if err := t.writable(); err != nil { return err }
    if _, ok := t.st.subaccounts[s.Name]; ok { return errs.ErrConflict }
    if _, ok := t.st.accounts[s.Parent]; !ok { return errs.ErrNotFound }
    s.Tags = s.Tags.Clone()
    t.st.subaccounts[s.Name] = s
    return nil
}

func (t *tx) Account(_ context.Context, name string) (ledger.Account, error) {
    a, ok := t.st.accounts[name]
    if !ok { return ledger.Account{}, errs.ErrNotFound }
    return a, nil
}

func (t *tx) Subaccount(_ context.Context, name string) (ledger.Subaccount, error) {
    s, ok := t.st.subaccounts[name]
    if !ok { return ledger.Subaccount{}, errs.ErrNotFound }
    s.Tags = s.Tags.Clone()
    return s, nil
}

func (t *tx) Lineages(_ context.Context) ([]ledger.Lineage, error) {
    out := make([]ledger.Lineage, 0, len(t.st.subaccounts))
    for _, s := range t.st.subaccounts {
        l := ledger.Lineage{Subaccount: s.Name, Account: s.Parent}
        if a, ok := t.st.accounts[s.Parent]; ok {
            l.Classification = a.Parent
            if c, ok := t.st.classifications[a.Parent]; ok { l.Element = c.Parent }
        }
        out = append(out, l)
    }
    sort.Slice(out, func(i, j int) bool {
        a, b := out[i], out[j]
        if a.Element != b.Element { return a.Element < b.Element }
        if a.Classification != b.Classification { return a.Classification < b.Classification }
        if a.Account != b.Account { return a.Account < b.Account }
        return a.Subaccount < b.Subaccount
    })
    return out, nil
}

// --- Journal ---

func (t *tx) checkEntry(e ledger.JournalEntry) error {
    if ledger.Minor(e.FunctionalAmount) < 0 || ledger.Minor(e.SourceAmount) < 0 { return errs.ErrInvalid }
    for _, name := range e.Subaccounts() {
        if _, ok := t.st.subaccounts[name]; !ok { return errs.ErrNotFound }
    }
    return nil
}

func (t *tx) InsertEntry(_ context.Context, e ledger.JournalEntry) error {
    if err := t.writable(); err != nil { return err }
    if err := t.checkEntry(e); err != nil { return err }
    nk := naturalKey{ID: e.TransactionID, Source: e.TransactionSource}
    if _, ok := t.st.entryKeys[nk]; ok { return errs.ErrDuplicateTransaction }
    if _, ok := t.st.entries[e.ID]; ok { return errs.ErrConflict }
    t.st.entries[e.ID] = e
    t.st.entryKeys[nk] = e.ID
    return nil
}

func (t *tx) UpdateEntry(_ context.Context, e ledger.JournalEntry) error {
    if err := t.writable(); err != nil { return err }
    old, ok := t.st.entries[e.ID]
    if !ok { return errs.ErrNotFound }
    if err := t.checkEntry(e); err != nil { return err }
    nk := naturalKey{ID: e.TransactionID, Source: e.TransactionSource}
    if id, ok := t.st.entryKeys[nk]; ok && id != e.ID { return errs.ErrDuplicateTransaction }
    delete(t.st.entryKeys, naturalKey{ID: old.TransactionID, Source: old.TransactionSource})
    t.st.entries[e.ID] = e
    t.st.entryKeys[nk] = e.ID
    return nil
}

func (t *tx) Entry(_ context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
    e, ok := t.st.entries[id]
    if !ok { return ledger.JournalEntry{}, errs.ErrNotFound }
    return e, nil
}

func (t *tx) Entries(_ context.Context, f storage.EntryFilter) ([]ledger.EntryDetail, error) {
    out := make([]ledger.EntryDetail, 0)
    for _, e := range t.st.entries {
        if f.Subaccount != "" && e.DebitSubaccount != f.Subaccount && e.CreditSubaccount != f.Subaccount { continue }
        if f.Source != "" && e.TransactionSource != f.Source { continue }
        if f.Interval != "" && f.Period != "" {
            label := f.Interval.Label(e.Timestamp)
            if f.Cumulative && label > f.Period { continue }
            if !f.Cumulative && label != f.Period { continue }
        }
        d := ledger.EntryDetail{JournalEntry: e}
        if nt, ok := t.st.transactions[naturalKey{ID: e.TransactionID, Source: e.TransactionSource}]; ok {
            d.Description = nt.Description
        }
        out = append(out, d)
    }
    sort.Slice(out, func(i, j int) bool {
        if !out[i].Timestamp.Equal(out[j].Timestamp) { return out[i].Timestamp.After(out[j].Timestamp) }
        return out[i].ID.String() < out[j].ID.String()
    })
    if f.Limit > 0 && len(out) > f.Limit { out = out[:f.Limit] }
    return out, nil
}

func (t *tx) SubaccountPairs(_ context.Context) ([]ledger.SubaccountPair, error) {
    seen := make(map[ledger.SubaccountPair]struct{})
    for _, e := range t.st.entries {
        seen[ledger.SubaccountPair{Debit: e.DebitSubaccount, Credit: e.CreditSubaccount}] = struct{}{}
    }
    out := make([]ledger.SubaccountPair, 0, len(seen))
    for p := range seen { out = append(out, p) }
    sort.Slice(out, func(i, j int) bool {
        if out[i].Debit != out[j].Debit { return out[i].Debit < out[j].Debit }
        return out[i].Credit < out[j].Credit
    })
    return out, nil
}

func (t *tx) Periods(_ context.Context, iv ledger.PeriodInterval, from string) ([]string, error) {
    if !iv.Valid() { return nil, errs.ErrUnknownInterval }
    seen := make(map[string]struct{})
    for _, e := range t.st.entries {
        if label := iv.Label(e.Timestamp); label >= from { seen[label] = struct{}{} }
    }
    return sortedKeys(seen), nil
}

func (t *tx) CountInPeriod(_ context.Context, iv ledger.PeriodInterval, period string) (int, error) {
    if !iv.Valid() { return 0, errs.ErrUnknownInterval }
    n := 0
    for _, e := range t.st.entries {
        if iv.Label(e.Timestamp) == period { n++ }
    }
    return n, nil
}

func (t *tx) Sum(_ context.Context, side ledger.Side, subaccount string, iv ledger.PeriodInterval, period string, cumulative bool) (int64, error) {
    if !iv.Valid() { return 0, errs.ErrUnknownInterval }
    var total int64
    for _, e := range t.st.entries {
        name := e.DebitSubaccount
        if side == ledger.SideCredit { name = e.CreditSubaccount }
        if name != subaccount { continue }
        label := iv.Label(e.Timestamp)
        if (cumulative && label <= period) || label == period { total += ledger.Minor(e.FunctionalAmount) }
    }
    return total, nil
}

func (t *tx) SubaccountsWithHistory(_ context.Context, iv ledger.PeriodInterval, through string) ([]string, error) {
    if !iv.Valid() { return nil, errs.ErrUnknownInterval }
    seen := make(map[string]struct{})
    for _, e := range t.st.entries {
        if iv.Label(e.Timestamp) > through { continue }
        seen[e.DebitSubaccount] = struct{}{}
        seen[e.CreditSubaccount] = struct{}{}
    }
    return sortedKeys(seen), nil
}

// --- Trial balances ---

func (t *tx) TrialBalance(_ context.Context, key ledger.TrialBalanceKey) (ledger.TrialBalance, error) {
    tb, ok := t.st.balances[key]
    if !ok { return ledger.TrialBalance{}, errs.ErrNotFound }
    return tb, nil
}

func (t *tx) UpsertTrialBalance(_ context.Context, tb ledger.TrialBalance) error {
    if err := t.writable(); err != nil { return err }
    if _, ok := t.st.subaccounts[tb.Subaccount]; !ok { return errs.ErrNotFound }
    t.st.balances[tb.Key()] = tb
    return nil
}

func (t *tx) DeleteTrialBalance(_ context.Context, key ledger.TrialBalanceKey) error {
    if err := t.writable(); err != nil { return err }
    delete(t.st.balances, key)
    return nil
}

func (t *tx) DeletePeriod(_ context.Context, iv ledger.PeriodInterval, period string) error {
    if err := t.writable(); err != nil { return err }
    for k := range t.st.balances {
        if k.Interval == iv && k.Period == period { delete(t.st.balances, k) }
    }
    return nil
}

func (t *tx) TrialBalances(_ context.Context, f storage.TrialBalanceFilter) ([]ledger.TrialBalance, error) {
    out := make([]ledger.TrialBalance, 0)
    for k, tb := range t.st.balances {
        if f.Interval != "" && k.Interval != f.Interval { continue }
        if f.Period != "" && k.Period != f.Period { continue }
        if f.Subaccount != "" && k.Subaccount != f.Subaccount { continue }
        out = append(out, tb)
    }
    sort.Slice(out, func(i, j int) bool {
        a, b := out[i].Key(), out[j].Key()
        if a.Interval != b.Interval { return a.Interval < b.Interval }
        if a.Period != b.Period { return a.Period < b.Period }
        return a.Subaccount < b.Subaccount
    })
    return out, nil
}

func (t *tx) TruncateTrialBalances(_ context.Context) error {
    if err := t.writable(); err != nil { return err }
    t.st.balances = make(map[ledger.TrialBalanceKey]ledger.TrialBalance)
    return nil
}

// --- Mappings and new transactions ---

func (t *tx) InsertMapping(_ context.Context, m ledger.Mapping) error {
    if err := t.writable(); err != nil { return err }
    mk := mappingKey{Source: m.Source, Keyword: m.Keyword}
    if _, ok := t.st.mappingKeys[mk]; ok { return errs.ErrConflict }
    t.st.mappings[m.ID] = m
    t.st.mappingKeys[mk] = m.ID
    return nil
}

func (t *tx) MappingByKey(_ context.Context, source ledger.Source, keyword string) (ledger.Mapping, error) {
    id, ok := t.st.mappingKeys[mappingKey{Source: source, Keyword: keyword}]
    if !ok { return ledger.Mapping{}, errs.ErrNotFound }
    return t.st.mappings[id], nil
}

func (t *tx) Mappings(_ context.Context) ([]ledger.Mapping, error) {
    out := make([]ledger.Mapping, 0, len(t.st.mappings))
    for _, m := range t.st.mappings { out = append(out, m) }
    sort.Slice(out, func(i, j int) bool {
        if !out[i].CreatedAt.Equal(out[j].CreatedAt) { return out[i].CreatedAt.Before(out[j].CreatedAt) }
        return out[i].ID.String() < out[j].ID.String()
    })
    return out, nil
}

func (t *tx) InsertNewTransaction(_ context.Context, nt ledger.NewTransaction) (bool, error) {
    if err := t.writable(); err != nil { return false, err }
    nk := naturalKey{ID: nt.ID, Source: nt.Source}
    if _, ok := t.st.transactions[nk]; ok { return false, nil }
    t.st.transactions[nk] = nt
    return true, nil
}

func (t *tx) NewTransactions(_ context.Context, source ledger.Source, unmatchedOnly bool) ([]ledger.NewTransaction, error) {
    out := make([]ledger.NewTransaction, 0)
    for nk, nt := range t.st.transactions {
        if source != "" && nt.Source != source { continue }
        if unmatchedOnly {
            if _, ok := t.st.entryKeys[nk]; ok { continue }
        }
        out = append(out, nt)
    }
    sort.Slice(out, func(i, j int) bool {
        if !out[i].Timestamp.Equal(out[j].Timestamp) { return out[i].Timestamp.After(out[j].Timestamp) }
        return out[i].ID < out[j].ID
    })
    return out, nil
}

func sortedKeys(m map[string]struct{}) []string {
    out := make([]string, 0, len(m))
    for k := range m { out = append(out, k) }
    sort.Strings(out)
    return out
}
