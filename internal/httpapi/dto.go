package httpapi

import (
    "time"

    "github.com/google/uuid"

    "github.com/tinoosan/bookkeeper/internal/ledger"
    "github.com/tinoosan/bookkeeper/internal/service/mapping"
    "github.com/tinoosan/bookkeeper/internal/service/report"
)

// Amounts cross the wire as integer minor units alongside their currency.

type lineResponse struct {
    Element        string `json:"element"`
    Classification string `json:"classification"`
    Account        string `json:"account"`
    Subaccount     string `json:"subaccount"`
    AmountMinor    int64  `json:"amount_minor"`
}

type statementResponse struct {
    Interval   ledger.PeriodInterval `json:"interval"`
    Period     string                `json:"period"`
    Currency   string                `json:"currency"`
    Lines      []lineResponse        `json:"lines"`
    TotalMinor int64                 `json:"total_minor"`
}

type periodsResponse struct {
    Interval ledger.PeriodInterval `json:"interval"`
    Periods  []string              `json:"periods"`
}

type trialBalanceResponse struct {
    Subaccount         string                `json:"subaccount"`
    Interval           ledger.PeriodInterval `json:"interval"`
    Period             string                `json:"period"`
    Currency           string                `json:"currency"`
    DebitBalanceMinor  int64                 `json:"debit_balance_minor"`
    CreditBalanceMinor int64                 `json:"credit_balance_minor"`
    NetBalanceMinor    int64                 `json:"net_balance_minor"`
    DebitChangesMinor  int64                 `json:"debit_changes_minor"`
    CreditChangesMinor int64                 `json:"credit_changes_minor"`
    NetChangesMinor    int64                 `json:"net_changes_minor"`
}

type entryResponse struct {
    ID                uuid.UUID     `json:"id"`
    TransactionID     string        `json:"transaction_id"`
    TransactionSource ledger.Source `json:"transaction_source"`
    MappingID         *uuid.UUID    `json:"mapping_id,omitempty"`
    Timestamp         time.Time     `json:"timestamp"`
    DebitSubaccount   string        `json:"debit_subaccount"`
    CreditSubaccount  string        `json:"credit_subaccount"`
    Currency          string        `json:"currency"`
    AmountMinor       int64         `json:"amount_minor"`
    SourceCurrency    string        `json:"source_currency"`
    SourceAmountMinor int64         `json:"source_amount_minor"`
    Description       string        `json:"description,omitempty"`
}

type mappingRequest struct {
    Source         ledger.Source `json:"source"`
    Keyword        string        `json:"keyword"`
    PositiveDebit  string        `json:"positive_debit"`
    PositiveCredit string        `json:"positive_credit"`
    NegativeDebit  string        `json:"negative_debit"`
    NegativeCredit string        `json:"negative_credit"`
}

type mappingResponse struct {
    ID             uuid.UUID     `json:"id"`
    Source         ledger.Source `json:"source"`
    Keyword        string        `json:"keyword"`
    PositiveDebit  string        `json:"positive_debit,omitempty"`
    PositiveCredit string        `json:"positive_credit,omitempty"`
    NegativeDebit  string        `json:"negative_debit,omitempty"`
    NegativeCredit string        `json:"negative_credit,omitempty"`
    CreatedAt      time.Time     `json:"created_at"`
}

type createMappingResponse struct {
    Mapping mappingResponse     `json:"mapping"`
    Result  mapping.ApplyResult `json:"result"`
}

func toStatementResponse(st report.Statement, currency string) statementResponse {
    out := statementResponse{Interval: st.Interval, Period: st.Period, Currency: currency,
        Lines: make([]lineResponse, 0, len(st.Lines)), TotalMinor: ledger.Minor(st.Total)}
    for _, l := range st.Lines {
        out.Lines = append(out.Lines, lineResponse{
            Element:        l.Element,
            Classification: l.Classification,
            Account:        l.Account,
            Subaccount:     l.Subaccount,
            AmountMinor:    ledger.Minor(l.Amount),
        })
    }
    return out
}

func toTrialBalanceResponse(tb ledger.TrialBalance) trialBalanceResponse {
    return trialBalanceResponse{
        Subaccount:         tb.Subaccount,
        Interval:           tb.Interval,
        Period:             tb.Period,
        Currency:           tb.NetBalance.Curr().Code(),
        DebitBalanceMinor:  ledger.Minor(tb.DebitBalance),
        CreditBalanceMinor: ledger.Minor(tb.CreditBalance),
        NetBalanceMinor:    ledger.Minor(tb.NetBalance),
        DebitChangesMinor:  ledger.Minor(tb.DebitChanges),
        CreditChangesMinor: ledger.Minor(tb.CreditChanges),
        NetChangesMinor:    ledger.Minor(tb.NetChanges),
    }
}

func toEntryResponse(e ledger.EntryDetail) entryResponse {
    return entryResponse{
        ID:                e.ID,
        TransactionID:     e.TransactionID,
        TransactionSource: e.TransactionSource,
        MappingID:         e.MappingID,
        Timestamp:         e.Timestamp,
        DebitSubaccount:   e.DebitSubaccount,
        CreditSubaccount:  e.CreditSubaccount,
        Currency:          e.FunctionalAmount.Curr().Code(),
        AmountMinor:       ledger.Minor(e.FunctionalAmount),
        SourceCurrency:    e.SourceAmount.Curr().Code(),
        SourceAmountMinor: ledger.Minor(e.SourceAmount),
        Description:       e.Description,
    }
}

func toMappingResponse(m ledger.Mapping) mappingResponse {
    return mappingResponse{
        ID:             m.ID,
        Source:         m.Source,
        Keyword:        m.Keyword,
        PositiveDebit:  m.PositiveDebit,
        PositiveCredit: m.PositiveCredit,
        NegativeDebit:  m.NegativeDebit,
        NegativeCredit: m.NegativeCredit,
        CreatedAt:      m.CreatedAt,
    }
}

func toMappingDomain(req mappingRequest) ledger.Mapping {
    return ledger.Mapping{
        Source:         req.Source,
        Keyword:        req.Keyword,
        PositiveDebit:  req.PositiveDebit,
        PositiveCredit: req.PositiveCredit,
        NegativeDebit:  req.NegativeDebit,
        NegativeCredit: req.NegativeCredit,
    }
}
