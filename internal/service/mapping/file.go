package mapping

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinoosan/bookkeeper/internal/ledger"
)

// ruleFile is the YAML layout of a rule file:
//
//	mappings:
//	  - source: ofx
//	    keyword: starbucks
//	    negative_debit: Coffee
type ruleFile struct {
	Mappings []rawRule `yaml:"mappings"`
}

type rawRule struct {
	Source         string `yaml:"source"`
	Keyword        string `yaml:"keyword"`
	PositiveDebit  string `yaml:"positive_debit"`
	PositiveCredit string `yaml:"positive_credit"`
	NegativeDebit  string `yaml:"negative_debit"`
	NegativeCredit string `yaml:"negative_credit"`
}

// Decode reads rules from YAML. Validation happens when they are stored.
func Decode(r io.Reader) ([]ledger.Mapping, error) {
	var f ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}
	out := make([]ledger.Mapping, 0, len(f.Mappings))
	for _, raw := range f.Mappings {
		out = append(out, ledger.Mapping{
			Source:         ledger.Source(raw.Source),
			Keyword:        raw.Keyword,
			PositiveDebit:  raw.PositiveDebit,
			PositiveCredit: raw.PositiveCredit,
			NegativeDebit:  raw.NegativeDebit,
			NegativeCredit: raw.NegativeCredit,
		})
	}
	return out, nil
}

// ReadFile decodes the rule file at path.
func ReadFile(path string) ([]ledger.Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
