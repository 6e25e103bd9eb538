package http

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"cagnotte/internal/core"
)

// formatEuros renders an amount the way the page shows it, e.g. "70.00 €".
func formatEuros(m core.Money) string {
	return m.String() + " €"
}

// sanitizeInput trims whitespace, drops control characters and normalizes
// to NFC so composed and decomposed accents compare equal.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		if r == 0x7f {
			return -1
		}
		return r
	}, s)
	return norm.NFC.String(s)
}
