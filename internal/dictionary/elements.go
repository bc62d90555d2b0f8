package dictionary

import "github.com/tinoosan/bookkeeper/internal/ledger"

// Statement names the financial statement an element reports on.
type Statement string

const (
	StatementIncome  Statement = "income_statement"
	StatementBalance Statement = "balance_sheet"
)

type ElementDef struct {
	Name      string      `json:"name"`
	Statement Statement   `json:"statement"`
	Normal    ledger.Side `json:"normal_side"`
}

const (
	Assets               = "Assets"
	Liabilities          = "Liabilities"
	CapitalContributions = "Capital Contributions"
	CapitalDistributions = "Capital Distributions"
	Revenues             = "Revenues"
	Expenses             = "Expenses"
	Gains                = "Gains"
	Losses               = "Losses"
)

// DefaultParentAccount receives subaccounts created on the fly by mapping rules.
const DefaultParentAccount = "Discretionary Costs"

var elements = []ElementDef{
	{Name: Assets, Statement: StatementBalance, Normal: ledger.SideDebit},
	{Name: Liabilities, Statement: StatementBalance, Normal: ledger.SideCredit},
	{Name: CapitalContributions, Statement: StatementBalance, Normal: ledger.SideCredit},
	{Name: CapitalDistributions, Statement: StatementBalance, Normal: ledger.SideDebit},
	{Name: Revenues, Statement: StatementIncome, Normal: ledger.SideCredit},
	{Name: Expenses, Statement: StatementIncome, Normal: ledger.SideDebit},
	{Name: Gains, Statement: StatementIncome, Normal: ledger.SideCredit},
	{Name: Losses, Statement: StatementIncome, Normal: ledger.SideDebit},
}

// Elements returns the fixed element enumeration in chart order.
func Elements() []ElementDef {
	out := make([]ElementDef, len(elements))
	copy(out, elements)
	return out
}

// Lookup returns the definition of a named element.
func Lookup(name string) (ElementDef, bool) {
	for _, e := range elements {
		if e.Name == name {
			return e, true
		}
	}
	return ElementDef{}, false
}

// ElementsFor returns the element names reported on a statement.
func ElementsFor(st Statement) []string {
	out := make([]string, 0, 4)
	for _, e := range elements {
		if e.Statement == st {
			out = append(out, e.Name)
		}
	}
	return out
}
