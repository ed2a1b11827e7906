package core

import "strings"

// CountWords returns the number of whitespace-separated tokens in text.
// The split rule is locale-independent (Unicode whitespace only), so counting
// the same content always yields the same number and re-ingestion stays
// idempotent.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
