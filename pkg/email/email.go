// Package email normalizes addresses used as identity keys.
package email

import (
	"strings"
	"unicode"
)

// Normalize trims and lowercases addr. Stores and token issuers key users
// by the normalized form.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// DisplayName derives a readable name from the local part of addr, e.g.
// "night.nurse@home.example" becomes "Night Nurse".
func DisplayName(addr string) string {
	local := Normalize(addr)
	if at := strings.IndexByte(local, '@'); at > 0 {
		local = local[:at]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "User"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
