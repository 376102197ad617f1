package dataset

import "strings"

// defaultNullTokens are free-text stand-ins for absent data observed in EMS
// crash exports. Matching is case-insensitive on trimmed values.
var defaultNullTokens = []string{
	"",
	"unknown",
	"not recorded",
	"not applicable",
	"n/a",
	"na",
	"missing",
	"refused",
	"blank",
	"unk",
}

// DefaultNullTokens returns the built-in semantic-null token set.
func DefaultNullTokens() []string {
	return append([]string(nil), defaultNullTokens...)
}

// Normalize canonicalizes text columns: every present value is trimmed and
// lower-cased, and values matching a semantic-null token are marked missing.
// Integer columns and ordered-domain level sets are untouched. The input
// table is never mutated, so callers can keep the pre-normalization table
// around for missingness comparisons. A nil token slice means the default
// set.
func Normalize(t *Table, tokens []string) *Table {
	if tokens == nil {
		tokens = defaultNullTokens
	}
	null := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		null[strings.ToLower(strings.TrimSpace(tok))] = true
	}

	out := t.clone()
	for _, c := range out.cols {
		if c.kind != KindText {
			continue
		}
		for r := range c.text {
			if c.missing[r] {
				continue
			}
			v := strings.ToLower(strings.TrimSpace(c.text[r]))
			if null[v] {
				c.text[r] = ""
				c.missing[r] = true
				continue
			}
			c.text[r] = v
		}
	}
	return out
}
