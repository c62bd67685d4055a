// Package turn classifies finished assistant replies as structured turns or prose.
package turn

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dentalink/consult/domain/entities"
)

var (
	ErrNoObject = errors.New("no JSON object found")

	validate = validator.New()

	fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n?(.*?)```")
)

// Classify resolves a finished reply into an AssistantOutput. Text that looks
// like a structured turn but fails to parse is returned as prose; Classify
// never fails.
func Classify(text string) entities.AssistantOutput {
	if HasMarkers(text) {
		if t, err := Parse(text); err == nil {
			return entities.AssistantOutput{Kind: entities.OutputKindStructured, Turn: t, Text: text}
		}
	}
	return entities.AssistantOutput{Kind: entities.OutputKindProse, Text: text}
}

// HasMarkers reports whether text carries a "mode" key next to a "question"
// or "conclusion" key, fenced or not.
func HasMarkers(text string) bool {
	if !strings.Contains(text, `"mode"`) {
		return false
	}
	return strings.Contains(text, `"question"`) || strings.Contains(text, `"conclusion"`)
}

// Parse strictly decodes a structured turn out of text. Code fences are
// stripped and the outermost JSON object is used.
func Parse(text string) (*entities.Turn, error) {
	raw, err := extractObject(stripFences(text))
	if err != nil {
		return nil, err
	}

	normalized, err := normalizeLegacy(raw)
	if err != nil {
		return nil, err
	}

	var t entities.Turn
	if err := json.Unmarshal(normalized, &t); err != nil {
		return nil, fmt.Errorf("failed to decode turn: %w", err)
	}
	if err := validate.Struct(&t); err != nil {
		return nil, fmt.Errorf("invalid turn: %w", err)
	}
	return &t, nil
}

func stripFences(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// extractObject returns the first balanced top-level JSON object in text.
func extractObject(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, ErrNoObject
}
