// Package identity canonicalizes source-site product identifiers into the key used to
// join the source catalog with the storefront catalog.
package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Normalizer canonicalizes identifiers for one merchant. Prefix is the merchant's
// brand-code scheme prefix (e.g. "KW"); leave it empty for sites without one.
type Normalizer struct {
	Prefix string
}

// Normalize applies the zero-value Normalizer (no scheme prefix).
func Normalize(raw string) string {
	return Normalizer{}.Normalize(raw)
}

// Normalize returns the canonical key for raw. It never fails and returns "" only for
// blank input. The result is idempotent: Normalize(Normalize(x)) == Normalize(x).
//
//	Normalizer{Prefix: "KW"}.Normalize("kw_007") == "KW-7"
//	Normalizer{Prefix: "KW"}.Normalize("ＫＷ－７") == "KW-7"
func (n Normalizer) Normalize(raw string) string {
	s := strings.TrimSpace(width.Fold.String(raw))
	if s == "" {
		return ""
	}

	prefix := strings.TrimSpace(width.Fold.String(n.Prefix))
	if prefix != "" {
		lower := strings.ToLower(s)
		lp := strings.ToLower(prefix)
		if strings.HasPrefix(lower, lp) {
			body := strings.TrimLeft(s[len(lp):], "-_ ")
			if body != "" {
				return strings.ToUpper(prefix) + "-" + normalizeBody(body)
			}
		}
	}
	return normalizeBody(s)
}

// FromSKU extracts the key from a SKU stored on a storefront listing. Listings created
// by this tool carry the key itself as their SKU, so this is the same normalization.
func (n Normalizer) FromSKU(sku string) string {
	return n.Normalize(sku)
}

// normalizeBody lower-cases, collapses internal whitespace to a single dash and strips
// leading zeros from purely numeric bodies.
func normalizeBody(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), "-"))
	if isDigits(s) {
		s = strings.TrimLeft(s, "0")
		if s == "" {
			s = "0"
		}
	}
	return s
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
