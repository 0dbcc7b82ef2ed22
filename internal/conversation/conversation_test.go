package conversation

import "testing"

func sampleDoc() Document {
	return Document{
		ID: "c1",
		Messages: []Message{
			{Role: "user", Content: "hello there"},
			{Role: "assistant", Content: "hi, how can I help?"},
		},
	}
}

func TestDocument_Flatten(t *testing.T) {
	got := sampleDoc().Flatten()
	want := "user: hello there assistant: hi, how can I help?"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestDocument_Transcript(t *testing.T) {
	got := sampleDoc().Transcript()
	want := "user: hello there\nassistant: hi, how can I help?"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestDocument_EmptyMessages(t *testing.T) {
	d := Document{ID: "empty"}
	if d.Flatten() != "" {
		t.Errorf("expected empty flatten, got %q", d.Flatten())
	}
}

func TestJoinTranscripts(t *testing.T) {
	a := Document{ID: "a", Messages: []Message{{Role: "user", Content: "one"}}}
	b := Document{ID: "b", Messages: []Message{{Role: "user", Content: "two"}}}

	got := JoinTranscripts([]Document{a, b})
	want := "user: one" + NextSeparator + "user: two"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if JoinTranscripts(nil) != "" {
		t.Error("expected empty string for no documents")
	}
}

func TestIDsAndIDSet(t *testing.T) {
	docs := []Document{{ID: "x"}, {ID: "y"}, {ID: "z"}}
	ids := IDs(docs)
	if len(ids) != 3 || ids[0] != "x" || ids[2] != "z" {
		t.Errorf("unexpected ids %v", ids)
	}
	set := IDSet(docs)
	if !set["y"] || set["missing"] {
		t.Errorf("unexpected set %v", set)
	}
}
