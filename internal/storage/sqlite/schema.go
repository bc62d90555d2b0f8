package sqlite

// Schema mirrors db/migrations/0001_init.sql for SQLite.
// Timestamps are stored as UTC unix nanoseconds so they sort numerically.
const Schema = `
CREATE TABLE IF NOT EXISTS elements (
    name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS classifications (
    name   TEXT PRIMARY KEY,
    parent TEXT NOT NULL REFERENCES elements(name)
);

CREATE TABLE IF NOT EXISTS accounts (
    name        TEXT PRIMARY KEY,
    parent      TEXT NOT NULL REFERENCES classifications(name),
    cash_source TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS subaccounts (
    name        TEXT PRIMARY KEY,
    parent      TEXT NOT NULL REFERENCES accounts(name),
    description TEXT NOT NULL DEFAULT '',
    tags        TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS mappings (
    id              TEXT PRIMARY KEY,
    source          TEXT NOT NULL,
    keyword         TEXT NOT NULL,
    positive_debit  TEXT NOT NULL DEFAULT '',
    positive_credit TEXT NOT NULL DEFAULT '',
    negative_debit  TEXT NOT NULL DEFAULT '',
    negative_credit TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    UNIQUE(source, keyword)
);

CREATE TABLE IF NOT EXISTS new_transactions (
    id           TEXT NOT NULL,
    source       TEXT NOT NULL,
    timestamp_ns INTEGER NOT NULL,
    amount_minor INTEGER NOT NULL,
    currency     TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    account      TEXT NOT NULL,
    PRIMARY KEY (id, source)
);

CREATE TABLE IF NOT EXISTS journal_entries (
    id                      TEXT PRIMARY KEY,
    transaction_id          TEXT NOT NULL,
    transaction_source      TEXT NOT NULL,
    mapping_id              TEXT REFERENCES mappings(id),
    timestamp_ns            INTEGER NOT NULL,
    debit_subaccount        TEXT NOT NULL REFERENCES subaccounts(name),
    credit_subaccount       TEXT NOT NULL REFERENCES subaccounts(name),
    functional_amount_minor INTEGER NOT NULL CHECK (functional_amount_minor >= 0),
    functional_currency     TEXT NOT NULL,
    source_amount_minor     INTEGER NOT NULL CHECK (source_amount_minor >= 0),
    source_currency         TEXT NOT NULL,
    period_year             TEXT NOT NULL,
    period_quarter          TEXT NOT NULL,
    period_month            TEXT NOT NULL,
    period_week             TEXT NOT NULL,
    period_day              TEXT NOT NULL,
    UNIQUE(transaction_id, transaction_source)
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_debit ON journal_entries(debit_subaccount, period_day);
CREATE INDEX IF NOT EXISTS idx_journal_entries_credit ON journal_entries(credit_subaccount, period_day);

CREATE TABLE IF NOT EXISTS trial_balances (
    subaccount      TEXT NOT NULL REFERENCES subaccounts(name),
    period          TEXT NOT NULL,
    period_interval TEXT NOT NULL CHECK (period_interval IN ('YYYY', 'YYYY-Q', 'YYYY-MM', 'YYYY-WW', 'YYYY-MM-DD')),
    currency        TEXT NOT NULL,
    debit_balance   INTEGER NOT NULL DEFAULT 0,
    credit_balance  INTEGER NOT NULL DEFAULT 0,
    net_balance     INTEGER NOT NULL DEFAULT 0,
    debit_changes   INTEGER NOT NULL DEFAULT 0,
    credit_changes  INTEGER NOT NULL DEFAULT 0,
    net_changes     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (subaccount, period, period_interval)
);
`
