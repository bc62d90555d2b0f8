// Package mapping turns imported transactions into journal entries with keyword rules.
//
// A rule matches a transaction of its source when every token of its keyword appears in
// the description. When several rules match, Precedence picks one winner per transaction,
// so the outcome of Apply and ApplyAll does not depend on the order rules run in.
// Each posting commits in its own unit of work; rerunning only sees transactions that
// are still unmatched.
package mapping

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"

    "github.com/tinoosan/bookkeeper/internal/errs"
    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/metrics"
    "github.com/tinoosan/bookkeeper/internal/service/posting"
    "github.com/tinoosan/bookkeeper/internal/service/taxonomy"
    "github.com/tinoosan/bookkeeper/internal/storage"
)

type Service interface {
    Validate(m ledger.Mapping) error
    // Create stores m, reusing an existing rule with the same source and keyword, and applies it.
    Create(ctx context.Context, m ledger.Mapping) (ledger.Mapping, ApplyResult, error)
    Mappings(ctx context.Context) ([]ledger.Mapping, error)
    // Apply posts every unmatched transaction that m wins.
    Apply(ctx context.Context, m ledger.Mapping) (ApplyResult, error)
    // ApplyAll posts every unmatched transaction that any rule wins.
    ApplyAll(ctx context.Context) (ApplyResult, error)
    // Overlaps lists pairs of rules whose keywords both match a recorded description.
    // An empty source covers every source.
    Overlaps(ctx context.Context, source ledger.Source) ([]Overlap, error)
    // Load stores rules, typically read with ReadFile, without applying them.
    Load(ctx context.Context, rules []ledger.Mapping) (LoadResult, error)
}

// ApplyResult counts what happened to the transactions a run looked at.
type ApplyResult struct {
    Matched            int `json:"matched"`
    Posted             int `json:"posted"`
    Duplicates         int `json:"duplicates"`
    ZeroAmount         int `json:"zero_amount"`
    Rejected           int `json:"rejected"`
    SubaccountsCreated int `json:"subaccounts_created"`
}

func (r *ApplyResult) add(o ApplyResult) {
    r.Matched += o.Matched
    r.Posted += o.Posted
    r.Duplicates += o.Duplicates
    r.ZeroAmount += o.ZeroAmount
    r.Rejected += o.Rejected
    r.SubaccountsCreated += o.SubaccountsCreated
}

// Overlap is one description matched by two rules with different keywords.
// Keyword1 sorts before Keyword2.
type Overlap struct {
    Description string        `json:"description"`
    Source      ledger.Source `json:"source"`
    MappingID1  uuid.UUID     `json:"mapping_id_1"`
    Keyword1    string        `json:"mapping_keyword_1"`
    MappingID2  uuid.UUID     `json:"mapping_id_2"`
    Keyword2    string        `json:"mapping_keyword_2"`
}

// LoadResult counts rules created and rules that already existed.
type LoadResult struct {
    Created  int
    Existing int
}

type service struct {
    store      storage.Store
    posting    posting.Service
    taxonomy   taxonomy.Service
    precedence Precedence
    now        func() time.Time
    log        *slog.Logger
}

// Option customises the service.
type Option func(*service)

// WithPrecedence sets the rule precedence. The default is PrecedenceLongest.
func WithPrecedence(p Precedence) Option { return func(s *service) { s.precedence = p } }

// WithClock replaces time.Now for rule creation timestamps.
func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

func New(store storage.Store, post posting.Service, tax taxonomy.Service, logger *slog.Logger, opts ...Option) Service {
    if logger == nil { logger = slog.Default() }
    s := &service{
        store:      store,
        posting:    post,
        taxonomy:   tax,
        precedence: PrecedenceLongest,
        now:        time.Now,
        log:        logger.With("component", "mapping"),
    }
    for _, o := range opts { o(s) }
    return s
}

func (s *service) Validate(m ledger.Mapping) error {
    m = normalize(m)
    if m.Source == "" {
        return fmt.Errorf("%w: source is required", errs.ErrInvalid)
    }
    if m.Keyword == "" {
        return fmt.Errorf("%w: keyword is required", errs.ErrInvalid)
    }
    if m.Source == ledger.SourceAmazon {
        if m.PositiveDebit == "" || m.PositiveCredit == "" {
            return fmt.Errorf("%w: amazon rule %q needs positive_debit and positive_credit", errs.ErrInvalid, m.Keyword)
        }
        if (m.NegativeDebit == "") != (m.NegativeCredit == "") {
            return fmt.Errorf("%w: amazon rule %q needs both negative targets or neither", errs.ErrInvalid, m.Keyword)
        }
        return nil
    }
    if m.PositiveDebit != "" || m.NegativeCredit != "" {
        return fmt.Errorf("%w: rule %q: the transaction's own account is the positive debit and negative credit", errs.ErrInvalid, m.Keyword)
    }
    if m.PositiveCredit == "" {
        return fmt.Errorf("%w: rule %q has no target subaccount", errs.ErrInvalid, m.Keyword)
    }
    return nil
}

// normalize trims m and lower-cases its source. Outside amazon a rule may name a single
// target, which then serves both signs.
func normalize(m ledger.Mapping) ledger.Mapping {
    m.Source = ledger.NormalizeSource(m.Source)
    m.Keyword = strings.Join(strings.Fields(m.Keyword), " ")
    m.PositiveDebit = strings.TrimSpace(m.PositiveDebit)
    m.PositiveCredit = strings.TrimSpace(m.PositiveCredit)
    m.NegativeDebit = strings.TrimSpace(m.NegativeDebit)
    m.NegativeCredit = strings.TrimSpace(m.NegativeCredit)
    if m.Source != ledger.SourceAmazon {
        if m.PositiveCredit == "" { m.PositiveCredit = m.NegativeDebit }
        if m.NegativeDebit == "" { m.NegativeDebit = m.PositiveCredit }
    }
    return m
}

// insert stores m unless a rule with its key exists, returning the stored rule.
func (s *service) insert(ctx context.Context, m ledger.Mapping) (ledger.Mapping, bool, error) {
    m = normalize(m)
    if err := s.Validate(m); err != nil { return ledger.Mapping{}, false, err }
    if m.ID == uuid.Nil { m.ID = uuid.New() }
    if m.CreatedAt.IsZero() { m.CreatedAt = s.now() }
    m.CreatedAt = m.CreatedAt.UTC()
    created := true
    err := s.store.Update(ctx, func(tx storage.Tx) error {
        err := tx.InsertMapping(ctx, m)
        if !errors.Is(err, errs.ErrConflict) { return err }
        created = false
        m, err = tx.MappingByKey(ctx, m.Source, m.Keyword)
        return err
    })
    if err != nil { return ledger.Mapping{}, false, err }
    return m, created, nil
}

func (s *service) Create(ctx context.Context, m ledger.Mapping) (ledger.Mapping, ApplyResult, error) {
    stored, created, err := s.insert(ctx, m)
    if err != nil { return ledger.Mapping{}, ApplyResult{}, err }
    if created {
        s.log.Info("mapping created", "id", stored.ID, "source", stored.Source, "keyword", stored.Keyword)
    }
    res, err := s.Apply(ctx, stored)
    return stored, res, err
}

func (s *service) Load(ctx context.Context, rules []ledger.Mapping) (LoadResult, error) {
    var res LoadResult
    for i, m := range rules {
        _, created, err := s.insert(ctx, m)
        if err != nil { return res, fmt.Errorf("rule %d: %w", i, err) }
        if created { res.Created++ } else { res.Existing++ }
    }
    s.log.Info("mappings loaded", "created", res.Created, "existing", res.Existing)
    return res, nil
}

func (s *service) Mappings(ctx context.Context) ([]ledger.Mapping, error) {
    var out []ledger.Mapping
    err := s.store.View(ctx, func(tx storage.Tx) error {
        var err error
        out, err = tx.Mappings(ctx)
        return err
    })
    return out, err
}

// candidates loads every rule ranked by precedence and the unmatched transactions of source.
func (s *service) candidates(ctx context.Context, source ledger.Source) ([]ledger.Mapping, []ledger.NewTransaction, error) {
    var ranked []ledger.Mapping
    var pending []ledger.NewTransaction
    err := s.store.View(ctx, func(tx storage.Tx) error {
        var err error
        if ranked, err = tx.Mappings(ctx); err != nil { return err }
        pending, err = tx.NewTransactions(ctx, source, true)
        return err
    })
    if err != nil { return nil, nil, err }
    s.precedence.Sort(ranked)
    return ranked, pending, nil
}

func (s *service) Apply(ctx context.Context, m ledger.Mapping) (ApplyResult, error) {
    m = normalize(m)
    ranked, pending, err := s.candidates(ctx, m.Source)
    if err != nil { return ApplyResult{}, err }
    var res ApplyResult
    for _, nt := range pending {
        if !Match(m.Keyword, nt.Description) { continue }
        if ledger.Minor(nt.Amount) == 0 {
            s.rejectZero(nt, &res)
            continue
        }
        w, ok := winner(ranked, nt)
        if !ok || w.ID != m.ID { continue }
        r, err := s.post(ctx, w, nt)
        res.add(r)
        if err != nil { return res, err }
    }
    s.log.Info("mapping applied", "keyword", m.Keyword, "source", m.Source, "matched", res.Matched,
        "posted", res.Posted, "duplicates", res.Duplicates, "zero_amount", res.ZeroAmount)
    return res, nil
}

func (s *service) ApplyAll(ctx context.Context) (ApplyResult, error) {
    ranked, pending, err := s.candidates(ctx, "")
    if err != nil { return ApplyResult{}, err }
    var res ApplyResult
    for _, nt := range pending {
        if ledger.Minor(nt.Amount) == 0 {
            if anyMatch(ranked, nt) { s.rejectZero(nt, &res) }
            continue
        }
        w, ok := winner(ranked, nt)
        if !ok { continue }
        r, err := s.post(ctx, w, nt)
        res.add(r)
        if err != nil { return res, err }
    }
    s.log.Info("all mappings applied", "rules", len(ranked), "pending", len(pending), "matched", res.Matched,
        "posted", res.Posted, "duplicates", res.Duplicates, "zero_amount", res.ZeroAmount, "rejected", res.Rejected)
    return res, nil
}

func anyMatch(ranked []ledger.Mapping, nt ledger.NewTransaction) bool {
    for _, m := range ranked {
        if m.Source == nt.Source && Match(m.Keyword, nt.Description) { return true }
    }
    return false
}

func (s *service) rejectZero(nt ledger.NewTransaction, res *ApplyResult) {
    res.Matched++
    res.ZeroAmount++
    metrics.ZeroAmountRejected.WithLabelValues(string(nt.Source)).Inc()
    s.log.Warn("zero amount transaction left unmatched", "transaction_id", nt.ID, "source", nt.Source,
        "description", nt.Description, "error", errs.ErrZeroAmount)
}

// post creates any missing target subaccount and posts the entry in one unit of work.
// Duplicates and entries the posting rules reject are counted, not returned.
func (s *service) post(ctx context.Context, m ledger.Mapping, nt ledger.NewTransaction) (ApplyResult, error) {
    res := ApplyResult{Matched: 1}
    debit, credit, _ := targets(m, nt)
    amount := nt.Amount.Abs()
    mappingID := m.ID
    entry := ledger.JournalEntry{
        TransactionID:     nt.ID,
        TransactionSource: nt.Source,
        MappingID:         &mappingID,
        Timestamp:         nt.Timestamp,
        DebitSubaccount:   debit,
        CreditSubaccount:  credit,
        FunctionalAmount:  amount,
        SourceAmount:      amount,
    }
    created := 0
    err := s.store.Update(ctx, func(tx storage.Tx) error {
        created = 0
        for _, name := range entry.Subaccounts() {
            if name == nt.Account { continue }
            ok, err := s.taxonomy.EnsureSubaccount(ctx, tx, name)
            if err != nil { return err }
            if ok { created++ }
        }
        _, err := s.posting.PostTx(ctx, tx, entry)
        return err
    })
    switch {
    case err == nil:
        res.Posted++
        res.SubaccountsCreated += created
        return res, nil
    case errors.Is(err, errs.ErrDuplicateTransaction):
        res.Duplicates++
        return res, nil
    case errors.Is(err, errs.ErrInvalid), errors.Is(err, errs.ErrZeroAmount), errors.Is(err, errs.ErrUnprocessable):
        res.Rejected++
        s.log.Warn("transaction rejected", "transaction_id", nt.ID, "source", nt.Source, "keyword", m.Keyword, "error", err)
        return res, nil
    }
    return res, fmt.Errorf("post transaction %s/%s: %w", nt.Source, nt.ID, err)
}

func (s *service) Overlaps(ctx context.Context, source ledger.Source) ([]Overlap, error) {
    source = ledger.NormalizeSource(source)
    var rules []ledger.Mapping
    var txs []ledger.NewTransaction
    err := s.store.View(ctx, func(tx storage.Tx) error {
        var err error
        if rules, err = tx.Mappings(ctx); err != nil { return err }
        txs, err = tx.NewTransactions(ctx, source, false)
        return err
    })
    if err != nil { return nil, err }

    type key struct {
        description string
        id1, id2    uuid.UUID
    }
    seen := make(map[key]struct{})
    out := make([]Overlap, 0)
    for _, nt := range txs {
        var hits []ledger.Mapping
        for _, m := range rules {
            if m.Source == nt.Source && Match(m.Keyword, nt.Description) { hits = append(hits, m) }
        }
        for i := range hits {
            for j := range hits {
                a, b := hits[i], hits[j]
                if a.Keyword >= b.Keyword { continue }
                k := key{nt.Description, a.ID, b.ID}
                if _, ok := seen[k]; ok { continue }
                seen[k] = struct{}{}
                out = append(out, Overlap{
                    Description: nt.Description, Source: nt.Source,
                    MappingID1: a.ID, Keyword1: a.Keyword,
                    MappingID2: b.ID, Keyword2: b.Keyword,
                })
            }
        }
    }
    sort.Slice(out, func(i, j int) bool {
        a, b := out[i], out[j]
        if a.Description != b.Description { return a.Description < b.Description }
        if a.Keyword1 != b.Keyword1 { return a.Keyword1 < b.Keyword1 }
        return a.Keyword2 < b.Keyword2
    })
    return out, nil
}
