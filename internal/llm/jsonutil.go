package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ashureev/studyplan/internal/domain"
)

var (
	errNoJSON        = errors.New("no JSON object found in model output")
	errMalformedJSON = errors.New("JSON object in model output is malformed")
)

// ExtractJSON returns the first brace-balanced object in content: from the
// first '{' to the '}' that closes it. Braces inside JSON strings are not
// counted. ok is false when there is no '{' or it is never closed.
func ExtractJSON(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeJSON recovers one JSON value from model output into v.
//
// The balanced region found by ExtractJSON is used when it is valid JSON;
// otherwise the whole text is tried. Nothing is repaired or partially
// accepted. On failure the returned *domain.ParseError carries the original text.
func DecodeJSON(content string, v any) error {
	source, err := selectJSON(content)
	if err != nil {
		return &domain.ParseError{Text: content, Err: err}
	}
	if err := json.Unmarshal([]byte(source), v); err != nil {
		return &domain.ParseError{Text: content, Err: err}
	}
	return nil
}

func selectJSON(content string) (string, error) {
	candidate, ok := ExtractJSON(content)
	if ok && json.Valid([]byte(candidate)) {
		return candidate, nil
	}
	whole := strings.TrimSpace(content)
	if whole != "" && json.Valid([]byte(whole)) {
		return whole, nil
	}
	if ok {
		return "", errMalformedJSON
	}
	return "", errNoJSON
}
