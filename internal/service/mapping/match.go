package mapping

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// Match reports whether every whitespace-separated token of keyword occurs in description,
// case-insensitively and in any order. "mktplace amazon" matches "AMAZON MKTPLACE PMTS".
func Match(keyword, description string) bool {
	tokens := strings.Fields(strings.ToLower(keyword))
	if len(tokens) == 0 {
		return false
	}
	d := strings.ToLower(description)
	for _, t := range tokens {
		if !strings.Contains(d, t) {
			return false
		}
	}
	return true
}

// Precedence orders competing rules when several match one transaction.
type Precedence string

const (
	// PrecedenceLongest prefers the longest keyword, then the newest rule.
	PrecedenceLongest Precedence = "longest"
	// PrecedenceNewest prefers the newest rule, then the longest keyword.
	PrecedenceNewest Precedence = "newest"
)

// ParsePrecedence accepts "longest" or "newest"; empty means longest.
func ParsePrecedence(s string) (Precedence, error) {
	switch Precedence(strings.ToLower(strings.TrimSpace(s))) {
	case "", PrecedenceLongest:
		return PrecedenceLongest, nil
	case PrecedenceNewest:
		return PrecedenceNewest, nil
	}
	return "", fmt.Errorf("unknown mapping precedence %q", s)
}

// before reports whether a outranks b. The final keyword comparison makes the order total.
func (p Precedence) before(a, b ledger.Mapping) bool {
	la, lb := utf8.RuneCountInString(a.Keyword), utf8.RuneCountInString(b.Keyword)
	if p == PrecedenceNewest {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if la != lb {
			return la > lb
		}
	} else {
		if la != lb {
			return la > lb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
	}
	return a.Keyword < b.Keyword
}

// Sort orders rules from highest to lowest precedence.
func (p Precedence) Sort(ms []ledger.Mapping) {
	sort.SliceStable(ms, func(i, j int) bool { return p.before(ms[i], ms[j]) })
}

// targets returns the debit and credit subaccounts a rule assigns to nt. A deposit debits
// the transaction's own account and credits PositiveCredit; a withdrawal debits NegativeDebit
// and credits the own account. Amazon rules store both sides of each pair. ok is false when
// the rule has no target for the sign of the amount, or the amount is zero.
func targets(m ledger.Mapping, nt ledger.NewTransaction) (debit, credit string, ok bool) {
	n := ledger.Minor(nt.Amount)
	switch {
	case n > 0 && m.Source == ledger.SourceAmazon:
		debit, credit = m.PositiveDebit, m.PositiveCredit
	case n < 0 && m.Source == ledger.SourceAmazon:
		debit, credit = m.NegativeDebit, m.NegativeCredit
	case n > 0:
		debit, credit = nt.Account, m.PositiveCredit
	case n < 0:
		debit, credit = m.NegativeDebit, nt.Account
	}
	if debit == "" || credit == "" {
		return "", "", false
	}
	return debit, credit, true
}

// winner picks the rule that claims nt among ranked, which must already be sorted by precedence.
func winner(ranked []ledger.Mapping, nt ledger.NewTransaction) (ledger.Mapping, bool) {
	for _, m := range ranked {
		if m.Source != nt.Source || !Match(m.Keyword, nt.Description) {
			continue
		}
		if _, _, ok := targets(m, nt); ok {
			return m, true
		}
	}
	return ledger.Mapping{}, false
}
