package stringutils

import "unicode/utf8"

// Truncate shortens s to at most n runes, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

// Mask shows the first n bytes of a secret, or a placeholder when it is empty.
func Mask(secret string, n int) string {
	if secret == "" {
		return "(not configured)"
	}
	if len(secret) > n {
		return secret[:n] + "..."
	}
	return secret
}
