// Package metrics registers the prometheus collectors for ledger operations.
// HTTP request metrics live with the router in internal/httpapi.
package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bookkeeper"

var (
    // EntriesPosted counts journal entries committed, by transaction source.
    EntriesPosted = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "journal_entries_posted_total",
            Help:      "Journal entries committed",
        },
        []string{"source"},
    )
    // DuplicatesSkipped counts postings rejected by the (transaction_id, transaction_source) key.
    DuplicatesSkipped = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "duplicate_transactions_skipped_total",
            Help:      "Postings skipped because the transaction was already journaled",
        },
        []string{"source"},
    )
    // ZeroAmountRejected counts source transactions left unmatched because their amount is zero.
    ZeroAmountRejected = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "zero_amount_transactions_total",
            Help:      "Source transactions rejected for a zero amount",
        },
        []string{"source"},
    )
    TrialBalanceRowsWritten = promauto.NewCounter(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "trial_balance_rows_written_total",
            Help:      "Trial balance rows upserted by incremental maintenance or refresh",
        },
    )
    RefreshDuration = promauto.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: namespace,
            Name:      "trial_balance_refresh_duration_seconds",
            Help:      "Duration of full trial balance rebuilds",
            Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
        },
    )
    DriftDetected = promauto.NewCounter(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "trial_balance_drift_total",
            Help:      "Verification runs that found stored trial balances disagreeing with the journal",
        },
    )
)
