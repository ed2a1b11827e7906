package search

import "strings"

// Stop words to filter out when scoring lexical matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		// Lowercase and trim punctuation
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))

		// Skip stop words and empty strings
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// lexicalScore rates how well a document matches the query terms, in [0,1].
// The score is coverage-dominated: a document containing every query term
// scores at least 0.5, and repeated occurrences of the query terms push it
// towards 1. A document sharing no terms with the query scores 0.
func lexicalScore(document string, queryTokens []string) float32 {
	if len(queryTokens) == 0 {
		return 0
	}

	docTokens := tokenizeAndFilter(document)
	if len(docTokens) == 0 {
		return 0
	}

	querySet := make(map[string]bool, len(queryTokens))
	for _, token := range queryTokens {
		querySet[token] = true
	}

	matchedTerms := make(map[string]bool, len(querySet))
	occurrences := 0
	for _, token := range docTokens {
		if querySet[token] {
			matchedTerms[token] = true
			occurrences++
		}
	}
	if occurrences == 0 {
		return 0
	}

	coverage := float32(len(matchedTerms)) / float32(len(querySet))
	frequency := float32(occurrences) / float32(len(docTokens))
	if frequency > 1 {
		frequency = 1
	}
	return coverage * (0.5 + 0.5*frequency)
}
