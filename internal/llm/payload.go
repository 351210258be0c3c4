package llm

import (
	"errors"
	"strings"
)

// ErrNoPayload is returned when no JSON document remains after unwrapping.
var ErrNoPayload = errors.New("no JSON payload in model output")

// ExtractJSONPayload returns the JSON document embedded in free-form model
// output. Contract: strip a leading markdown code fence ("```json" or a bare
// "```") and anything after the closing fence, trim whitespace, and require
// the remainder to start with '{' or '['. Anything else is an error; callers
// must never treat unwrappable output as an empty result.
func ExtractJSONPayload(text string) ([]byte, error) {
	s := text
	if _, after, found := strings.Cut(s, "```json"); found {
		s = after
	} else if _, after, found := strings.Cut(s, "```"); found {
		s = after
	}
	if before, _, found := strings.Cut(s, "```"); found {
		s = before
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNoPayload
	}
	if s[0] != '{' && s[0] != '[' {
		return nil, ErrNoPayload
	}
	return []byte(s), nil
}
