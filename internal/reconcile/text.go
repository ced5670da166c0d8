package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// headerKey lower-cases, trims and collapses whitespace in a header.
func headerKey(h string) string {
	return strings.ToLower(CleanLabel(h))
}

// foldAccents strips combining marks so "Móvil" compares equal to "movil".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CleanLabel trims surrounding whitespace and collapses internal runs of
// whitespace to a single space. Vehicle and product values pass through it
// verbatim otherwise.
func CleanLabel(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var nameReplacer = strings.NewReplacer(
	".", " ",
	"-", " ",
	`"`, " ",
	"'", " ",
	"[", " ",
	"]", " ",
	"(", " ",
	")", " ",
)

// cleanName prepares a header or catalog name for product matching: the
// punctuation set . - " ' [ ] ( ) becomes spaces, accents are folded, case is
// lowered and whitespace collapsed.
func cleanName(s string) string {
	s = nameReplacer.Replace(strings.ToLower(s))
	return CleanLabel(foldAccents(s))
}
