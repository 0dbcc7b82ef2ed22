package relevance

import (
	"fmt"
	"strings"

	"github.com/dgallion1/convoscope/internal/conversation"
)

// DefaultFilterQuestion is used when the model cannot produce one.
const DefaultFilterQuestion = "Is this conversation relevant to the original question?"

func buildFilterQuestionPrompt(question string) string {
	var sb strings.Builder
	sb.WriteString("Given the following question, write a yes/no filter question that decides whether a batch of conversations holds anything useful for answering it.\n\n")
	fmt.Fprintf(&sb, "Original question: %q\n\n", question)
	sb.WriteString("The filter question will be asked of every batch of conversations. ")
	sb.WriteString("Inside it, give a few creative examples of things that MAY be relevant to the original question.\n\n")
	sb.WriteString(`Respond with a JSON object with a single "filterQuestion" property holding the filter question.`)
	return sb.String()
}

func buildBatchPrompt(question, filterQuestion string, docs []conversation.Document) string {
	var sb strings.Builder
	sb.WriteString(filterQuestion)
	fmt.Fprintf(&sb, "\n\nOriginal question: %q\n\n", question)
	sb.WriteString("Batch of conversations:\n")
	sb.WriteString(conversation.JoinTranscripts(docs))
	sb.WriteString("\n\nDecide whether any conversation in this batch is relevant to the filter question. ")
	sb.WriteString(`Respond with a JSON object with a single "isRelevant" property: true if at least one conversation is relevant, false otherwise.`)
	return sb.String()
}

func buildDocumentPrompt(question, filterQuestion string, doc conversation.Document) string {
	var sb strings.Builder
	sb.WriteString(filterQuestion)
	fmt.Fprintf(&sb, "\n\nOriginal question: %q\n\n", question)
	sb.WriteString("Conversation:\n")
	sb.WriteString(doc.Transcript())
	sb.WriteString("\n\nDecide whether this conversation is relevant to the filter question. ")
	sb.WriteString(`Respond with a JSON object with a single "isRelevant" property set to true or false.`)
	return sb.String()
}
