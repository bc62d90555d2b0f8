package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tinoosan/bookkeeper/internal/ledger"
	"github.com/tinoosan/bookkeeper/internal/service/report"
)

func TestPrintStatement(t *testing.T) {
	st := report.Statement{
		Interval: ledger.IntervalMonth,
		Period:   "2024-01",
		Lines: []report.Line{
			{Element: "Revenues", Classification: "Operating Revenue", Account: "Wages", Subaccount: "Salary", Amount: ledger.FromMinor("USD", -500000)},
			{Element: "Expenses", Classification: "Operating Expenses", Account: "Occupancy", Subaccount: "Rent", Amount: ledger.FromMinor("USD", 100000)},
		},
		Total: ledger.FromMinor("USD", 400000),
	}
	var buf bytes.Buffer
	if err := printStatement(&buf, st, "Net income"); err != nil {
		t.Fatalf("print: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Period 2024-01 (YYYY-MM)", "Revenues", "Operating Revenue / Wages / Salary", "Expenses", "Net income", "4000.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStatement_NoActivity(t *testing.T) {
	var buf bytes.Buffer
	if err := printStatement(&buf, report.Statement{}, "Net equity"); err != nil {
		t.Fatalf("print: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "no activity" {
		t.Fatalf("output: %q", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	if parseLogLevel("DEBUG").Level().String() != "DEBUG" || parseLogLevel("bogus").Level().String() != "INFO" {
		t.Fatalf("unexpected levels")
	}
}
