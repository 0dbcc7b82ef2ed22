package batcher

import (
	"github.com/dgallion1/convoscope/internal/conversation"
	"github.com/dgallion1/convoscope/internal/tokens"
)

// Batch is a contiguous run of documents with its estimated token cost.
type Batch struct {
	Docs   []conversation.Document
	Tokens int
}

// Partition splits docs into contiguous batches whose estimated cost stays
// at or under ceiling. A document that alone exceeds the ceiling becomes its
// own batch; documents are never split. Concatenating the result in order
// reproduces docs exactly.
func Partition(docs []conversation.Document, ceiling int) []Batch {
	var batches []Batch
	var current Batch

	for _, doc := range docs {
		cost := tokens.ForDocument(doc)
		if len(current.Docs) > 0 && current.Tokens+cost > ceiling {
			batches = append(batches, current)
			current = Batch{}
		}
		current.Docs = append(current.Docs, doc)
		current.Tokens += cost
	}
	if len(current.Docs) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// Flatten concatenates batch documents back into one sequence.
func Flatten(batches []Batch) []conversation.Document {
	var docs []conversation.Document
	for _, b := range batches {
		docs = append(docs, b.Docs...)
	}
	return docs
}
