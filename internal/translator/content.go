package translator

import (
	"encoding/json"
	"strings"
)

// ExtractText normalizes Anthropic's polymorphic content representation to
// plain text. It is total: every shape produces a string, empty input
// produces the empty string, and unrecognized shapes degrade to their
// canonical JSON serialization instead of erroring.
func ExtractText(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, block := range v {
			parts = append(parts, blockText(block))
		}

		return strings.Join(parts, "\n")
	case map[string]any:
		return blockText(v)
	default:
		return serialize(v)
	}
}

// blockText renders one content block. Preference order: text, tool-use
// input, tool-result output, then the whole block serialized.
func blockText(block any) string {
	blockMap, ok := block.(map[string]any)
	if !ok {
		if s, ok := block.(string); ok {
			return s
		}

		return serialize(block)
	}

	if text, ok := blockMap["text"].(string); ok {
		return text
	}

	if input, ok := blockMap["input"]; ok {
		return stringify(input)
	}

	if output, ok := blockMap["output"]; ok {
		return stringify(output)
	}

	return serialize(blockMap)
}

// stringify renders a value as-is when it is already a string, otherwise as
// canonical JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}

	return serialize(v)
}

func serialize(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}

	return string(data)
}
