// Package queries derives search phrases for a sector/location through a
// ranked chain of text-completion providers with a static fallback.
package queries

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validation failures treated as provider failures by the generator.
var (
	ErrEmptyResponse = errors.New("provider returned empty text")
	ErrNotArray      = errors.New("payload is not a JSON array of strings")
	ErrEmptyArray    = errors.New("payload array contains no usable queries")
)

// ParseQueryArray validates a raw completion payload into an ordered,
// non-empty list of query strings. Markdown code fences and surrounding
// whitespace are stripped before parsing. Blank entries are dropped.
func ParseQueryArray(raw string) ([]string, error) {
	text := stripFences(raw)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var parsed []string
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotArray, err)
	}
	if len(parsed) == 0 {
		return nil, ErrEmptyArray
	}

	out := make([]string, 0, len(parsed))
	for _, q := range parsed {
		if s := strings.TrimSpace(q); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptyArray
	}
	return out, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag, and trims whitespace.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 && !strings.HasPrefix(text, "[") {
		// Drop a language tag such as "json" on the opening fence line.
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
