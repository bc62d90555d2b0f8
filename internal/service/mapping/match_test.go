package mapping

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		keyword, description string
		want                 bool
	}{
		{"starbucks", "STARBUCKS #123", true},
		{"mktplace amazon", "AMAZON MKTPLACE PMTS", true},
		{"amazon  mktplace", "AMAZON MKTPLACE PMTS", true},
		{"amazon prime", "AMAZON MKTPLACE PMTS", false},
		{"", "anything", false},
		{"   ", "anything", false},
		{"café", "CAFÉ DU MONDE", true},
	}
	for _, tc := range tests {
		if got := Match(tc.keyword, tc.description); got != tc.want {
			t.Fatalf("Match(%q, %q) = %v, want %v", tc.keyword, tc.description, got, tc.want)
		}
	}
}

func TestPrecedence(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	short := ledger.Mapping{ID: uuid.New(), Keyword: "amazon", CreatedAt: t0.Add(time.Hour)}
	long := ledger.Mapping{ID: uuid.New(), Keyword: "amazon mktplace", CreatedAt: t0}
	sameLenNewer := ledger.Mapping{ID: uuid.New(), Keyword: "mktplace amazon", CreatedAt: t0.Add(2 * time.Hour)}

	ms := []ledger.Mapping{short, long, sameLenNewer}
	PrecedenceLongest.Sort(ms)
	if ms[0].ID != sameLenNewer.ID || ms[1].ID != long.ID || ms[2].ID != short.ID {
		t.Fatalf("longest order: %v %v %v", ms[0].Keyword, ms[1].Keyword, ms[2].Keyword)
	}

	ms = []ledger.Mapping{long, short, sameLenNewer}
	PrecedenceNewest.Sort(ms)
	if ms[0].ID != sameLenNewer.ID || ms[1].ID != short.ID || ms[2].ID != long.ID {
		t.Fatalf("newest order: %v %v %v", ms[0].Keyword, ms[1].Keyword, ms[2].Keyword)
	}

	tieA := ledger.Mapping{Keyword: "bbb", CreatedAt: t0}
	tieB := ledger.Mapping{Keyword: "aaa", CreatedAt: t0}
	ms = []ledger.Mapping{tieA, tieB}
	PrecedenceLongest.Sort(ms)
	if ms[0].Keyword != "aaa" {
		t.Fatalf("full tie not broken by keyword: %v", ms[0].Keyword)
	}
}

func TestParsePrecedence(t *testing.T) {
	for in, want := range map[string]Precedence{"": PrecedenceLongest, "Longest": PrecedenceLongest, "newest": PrecedenceNewest} {
		got, err := ParsePrecedence(in)
		if err != nil || got != want {
			t.Fatalf("ParsePrecedence(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePrecedence("oldest"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTargets(t *testing.T) {
	m := ledger.Mapping{PositiveCredit: "Salary", NegativeDebit: "Coffee"}
	in := ledger.NewTransaction{Account: "Chase Checking", Amount: ledger.FromMinor("USD", 500)}
	d, c, ok := targets(m, in)
	if !ok || d != "Chase Checking" || c != "Salary" {
		t.Fatalf("positive: %s %s %v", d, c, ok)
	}
	out := ledger.NewTransaction{Account: "Chase Checking", Amount: ledger.FromMinor("USD", -500)}
	d, c, ok = targets(m, out)
	if !ok || d != "Coffee" || c != "Chase Checking" {
		t.Fatalf("negative: %s %s %v", d, c, ok)
	}
	if _, _, ok := targets(ledger.Mapping{NegativeDebit: "Coffee"}, in); ok {
		t.Fatalf("rule without a positive target claimed a deposit")
	}
	// Stray sides never displace the transaction's own account.
	stray := ledger.Mapping{PositiveDebit: "Salary", PositiveCredit: "Salary", NegativeDebit: "Coffee", NegativeCredit: "Coffee"}
	if d, c, _ := targets(stray, in); d != "Chase Checking" || c != "Salary" {
		t.Fatalf("positive with stray debit: %s %s", d, c)
	}
	if d, c, _ := targets(stray, out); d != "Coffee" || c != "Chase Checking" {
		t.Fatalf("negative with stray credit: %s %s", d, c)
	}
	zero := ledger.NewTransaction{Account: "Chase Checking", Amount: ledger.FromMinor("USD", 0)}
	if _, _, ok := targets(m, zero); ok {
		t.Fatalf("zero amount has no direction")
	}
}

func TestTargets_Amazon(t *testing.T) {
	m := ledger.Mapping{Source: ledger.SourceAmazon, PositiveDebit: "Books", PositiveCredit: "Amazon Suspense Account"}
	item := ledger.NewTransaction{Source: ledger.SourceAmazon, Account: "Amazon Card", Amount: ledger.FromMinor("USD", 1999)}
	d, c, ok := targets(m, item)
	if !ok || d != "Books" || c != "Amazon Suspense Account" {
		t.Fatalf("amazon item: %s %s %v", d, c, ok)
	}
	refund := ledger.NewTransaction{Source: ledger.SourceAmazon, Account: "Amazon Card", Amount: ledger.FromMinor("USD", -1999)}
	if _, _, ok := targets(m, refund); ok {
		t.Fatalf("amazon rule without negative targets claimed a refund")
	}
	m.NegativeDebit, m.NegativeCredit = "Amazon Suspense Account", "Books"
	if d, c, ok := targets(m, refund); !ok || d != "Amazon Suspense Account" || c != "Books" {
		t.Fatalf("amazon refund: %s %s %v", d, c, ok)
	}
}
