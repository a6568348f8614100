package answer

import (
	"strings"

	"safetyqa/internal/lexical"
)

// BestSentence splits text into sentences and returns them with the index of the
// one containing the most query-token occurrences and that count. On ties the
// earliest sentence wins.
func BestSentence(text, query string) (sentences []string, best int, score int) {
	sentences = lexical.SplitSentences(text)
	tokens := lexical.Tokenize(query)
	score = -1
	for i, s := range sentences {
		if n := lexical.CountOccurrences(s, tokens); n > score {
			best, score = i, n
		}
	}
	return sentences, best, score
}

// ExtractSentence returns the best matching sentence of text, trimmed. When no
// sentence contains a query token it falls back to the first maxChars runes of text.
func ExtractSentence(text, query string, maxChars int) string {
	sentences, best, score := BestSentence(text, query)
	if score > 0 {
		return strings.TrimSpace(sentences[best])
	}
	return strings.TrimSpace(lexical.Truncate(text, maxChars))
}
