package tokens

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/convoscope/internal/conversation"
)

const (
	charsPerToken = 4.0
	tokensPerWord = 0.75
)

// Estimate approximates the model token cost of text without calling the
// model. It takes the larger of a character-based and a word-based guess so
// that batches err on the small side.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	byChars := math.Ceil(float64(utf8.RuneCountInString(text)) / charsPerToken)
	byWords := math.Ceil(float64(len(strings.Fields(text))) * tokensPerWord)
	return int(math.Max(byChars, byWords))
}

// ForDocument estimates a conversation rendered as "role: content" pairs.
func ForDocument(doc conversation.Document) int {
	return Estimate(doc.Flatten())
}

// Total sums the per-document estimates.
func Total(docs []conversation.Document) int {
	total := 0
	for _, d := range docs {
		total += ForDocument(d)
	}
	return total
}
