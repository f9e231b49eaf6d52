package chat

import (
	"encoding/json"
	"strings"
)

// ParseContent flattens a stored content value into display text.
// The store may keep a plain string, a list of typed parts, or a nested
// object; anything unrecognized is returned as compact JSON.
func ParseContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil && len(parts) > 0 {
		var builder strings.Builder
		for _, part := range parts {
			if part.Text == "" || !isTextKind(part.Type) {
				continue
			}
			builder.WriteString(part.Text)
		}
		if builder.Len() > 0 {
			return builder.String()
		}
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return strings.TrimSpace(string(raw))
	}
	if extracted := extractText(generic); extracted != "" {
		return extracted
	}
	compact, err := json.Marshal(generic)
	if err != nil {
		return strings.TrimSpace(string(raw))
	}
	return string(compact)
}

// TextContent encodes plain text as a stored content value.
func TextContent(text string) json.RawMessage {
	data, _ := json.Marshal(text)
	return data
}

func isTextKind(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "text", "output_text":
		return true
	default:
		return false
	}
}

func extractText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		var builder strings.Builder
		for _, item := range val {
			builder.WriteString(extractText(item))
		}
		return builder.String()
	case map[string]any:
		if kind, ok := val["type"].(string); ok && !isTextKind(kind) {
			return ""
		}
		if text, ok := val["text"].(string); ok && text != "" {
			return text
		}
		if content, ok := val["content"]; ok {
			return extractText(content)
		}
	}
	return ""
}
