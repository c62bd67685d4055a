package turn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dentalink/consult/domain/entities"
)

// wrapperKeys are envelopes older prompts asked the model to nest the turn in.
var wrapperKeys = []string{"turn", "data"}

// normalizeLegacy rewrites older reply shapes into the current Turn layout:
// {"turn": {...}} and {"data": {...}} envelopes, "questionText", a question
// object carrying its own options, and a plain-string conclusion.
func normalizeLegacy(raw []byte) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode turn: %w", err)
	}

	if _, ok := doc["mode"]; !ok {
		for _, key := range wrapperKeys {
			inner, ok := doc[key]
			if !ok || !isKind(inner, '{') {
				continue
			}
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(inner, &nested); err != nil {
				continue
			}
			if _, ok := nested["mode"]; ok {
				doc = nested
				break
			}
		}
	}

	if mode, ok := doc["mode"]; ok && isKind(mode, '"') {
		var m string
		if err := json.Unmarshal(mode, &m); err == nil {
			doc["mode"], _ = json.Marshal(strings.ToLower(strings.TrimSpace(m)))
		}
	}

	if q, ok := doc["questionText"]; ok {
		if _, has := doc["question"]; !has {
			doc["question"] = q
		}
		delete(doc, "questionText")
	}

	if q, ok := doc["question"]; ok && isKind(q, '{') {
		var nested struct {
			Text          string          `json:"text"`
			Options       json.RawMessage `json:"options"`
			AllowFreeText json.RawMessage `json:"allowFreeText"`
		}
		if err := json.Unmarshal(q, &nested); err != nil {
			return nil, fmt.Errorf("failed to decode question: %w", err)
		}
		doc["question"], _ = json.Marshal(nested.Text)
		if _, has := doc["options"]; !has && len(nested.Options) > 0 {
			doc["options"] = nested.Options
		}
		if _, has := doc["allowFreeText"]; !has && len(nested.AllowFreeText) > 0 {
			doc["allowFreeText"] = nested.AllowFreeText
		}
	}

	if c, ok := doc["conclusion"]; ok && isKind(c, '"') {
		var summary string
		if err := json.Unmarshal(c, &summary); err != nil {
			return nil, fmt.Errorf("failed to decode conclusion: %w", err)
		}
		doc["conclusion"], _ = json.Marshal(entities.Conclusion{Summary: summary})
	}

	return json.Marshal(doc)
}

// isKind reports whether a raw JSON value starts with the given delimiter
func isKind(raw json.RawMessage, delim byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == delim
}
