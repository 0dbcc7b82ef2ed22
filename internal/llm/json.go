package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

// DecodeJSON parses a model reply into v, tolerating a fenced code block.
// Any failure wraps ErrMalformedResponse.
func DecodeJSON(text string, v any) error {
	raw := stripCodeBlock(text)
	if raw == "" {
		return fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %v (raw: %s)", ErrMalformedResponse, err, truncate(raw, 200))
	}
	return nil
}
