package core

import "strings"

// FormatPhone groups a 10-digit phone number as "06 12 34 56 78".
// Input with any other digit count is returned verbatim so partial numbers
// survive while the user is typing.
func FormatPhone(raw string) string {
	digits := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] >= '0' && raw[i] <= '9' {
			digits = append(digits, raw[i])
		}
	}
	if len(digits) != 10 {
		return raw
	}
	var b strings.Builder
	b.Grow(14)
	for i := 0; i < 10; i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.Write(digits[i : i+2])
	}
	return b.String()
}
