// Package lexical holds the keyword heuristics shared by the hybrid reranker and
// the answer extractor: whitespace tokenization, substring counting and a
// punctuation based sentence splitter.
//
// Counts are raw substring occurrences, so a token such as "or" also matches
// inside "for".
package lexical

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceBoundary = regexp.MustCompile(`[.!?][\s\p{Z}]+`)

// Tokenize splits query on whitespace and returns the lower-cased tokens that are
// longer than one character. Duplicates are kept.
func Tokenize(query string) []string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 1 {
			tokens = append(tokens, strings.ToLower(f))
		}
	}
	return tokens
}

// CountOccurrences sums the non-overlapping, case-insensitive occurrences of every
// token inside text. Tokens must already be lower-cased.
func CountOccurrences(text string, tokens []string) int {
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	total := 0
	for _, t := range tokens {
		if t == "" {
			continue
		}
		total += strings.Count(lower, t)
	}
	return total
}

// SplitSentences cuts text after every '.', '!' or '?' that is followed by
// whitespace. The whitespace run is dropped and the punctuation stays with the
// preceding sentence. Text without a boundary comes back as a single element.
func SplitSentences(text string) []string {
	bounds := sentenceBoundary.FindAllStringIndex(text, -1)
	sentences := make([]string, 0, len(bounds)+1)
	start := 0
	for _, b := range bounds {
		sentences = append(sentences, text[start:b[0]+1])
		start = b[1]
	}
	return append(sentences, text[start:])
}

// Truncate returns at most n runes of text.
func Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
