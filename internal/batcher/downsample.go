package batcher

import (
	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/tokens"
)

// Downsample thins docs until their estimated cost fits ceiling. The first
// keep documents are never removed; the remainder is halved by keeping its
// even-indexed elements until the total fits or the remainder is gone. When
// even the prefix alone is over the ceiling the prefix is returned as is.
func Downsample(docs []conversation.Document, keep, ceiling int) []conversation.Document {
	if keep > len(docs) {
		keep = len(docs)
	}
	if keep < 0 {
		keep = 0
	}

	prefix := docs[:keep]
	prefixCost := tokens.Total(prefix)
	rest := docs[keep:]
	restCost := tokens.Total(rest)

	for prefixCost+restCost > ceiling && len(rest) > 0 {
		// A single survivor sits at index 0 and would never be thinned.
		if len(rest) == 1 {
			rest = nil
			break
		}
		rest = evenIndexed(rest)
		restCost = tokens.Total(rest)
	}

	out := make([]conversation.Document, 0, len(prefix)+len(rest))
	out = append(out, prefix...)
	out = append(out, rest...)
	return out
}

func evenIndexed(docs []conversation.Document) []conversation.Document {
	out := make([]conversation.Document, 0, (len(docs)+1)/2)
	for i := 0; i < len(docs); i += 2 {
		out = append(out, docs[i])
	}
	return out
}
