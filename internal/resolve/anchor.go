package resolve

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeAnchor maps an id or fragment to the form used for tolerant
// matching: percent-decoded, diacritics stripped, case-folded, and every run
// of characters that are neither letters nor digits collapsed to one "-",
// with no leading or trailing "-". "Getting Started!" and "getting-started"
// normalize to the same value.
func NormalizeAnchor(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		s = u
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingDash := false
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingDash = true
			continue
		}
		if pendingDash && b.Len() > 0 {
			b.WriteByte('-')
		}
		pendingDash = false
		b.WriteRune(r)
	}
	return b.String()
}
