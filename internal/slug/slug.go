package slug

import (
	"regexp"
	"strings"
	"unicode"
)

var reSlug = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsSlug returns true if s matches ^[a-z0-9_]{2,40}$.
// Transaction sources must be slugs so they can be used as metric labels.
func IsSlug(s string) bool {
	return reSlug.MatchString(s)
}

// Slugify lowercases s, turns every run of other characters into a single '_',
// trims underscores at both ends and truncates to 40 characters.
// "Cash Source" and "cash-source" both become "cash_source".
func Slugify(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		} else {
			pending = true
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.TrimRight(b.String(), "_")
}
