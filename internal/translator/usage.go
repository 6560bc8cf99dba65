package translator

import (
	"strings"

	"github.com/anthropic-openrouter-proxy/proxy/internal/config"
)

// Usage is the Anthropic-shaped token accounting block. It is either fully
// supplied by upstream or fully synthesized by estimation, never mixed.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// MapUpstreamUsage converts an upstream usage object to Anthropic fields.
// Upstream reports cache reads under prompt_tokens_details but never cache
// writes, so cache_creation_input_tokens stays zero.
func MapUpstreamUsage(raw map[string]any) Usage {
	var u Usage

	if v, ok := numberField(raw, "prompt_tokens"); ok {
		u.InputTokens = v
	} else if v, ok := numberField(raw, "input_tokens"); ok {
		u.InputTokens = v
	}

	if v, ok := numberField(raw, "completion_tokens"); ok {
		u.OutputTokens = v
	} else if v, ok := numberField(raw, "output_tokens"); ok {
		u.OutputTokens = v
	}

	if details, ok := raw["prompt_tokens_details"].(map[string]any); ok {
		if v, ok := numberField(details, "cached_tokens"); ok {
			u.CacheReadInputTokens = v
		}
	}

	return u
}

// EstimateTokens approximates the token count of a text by character count.
// Fallback only; it must never replace real upstream-supplied numbers.
func EstimateTokens(text string, tokensPerChar float64) int {
	if tokensPerChar <= 0 {
		tokensPerChar = config.DefaultTokensPerChar
	}

	n := int(float64(len(text)) * tokensPerChar)
	if n < 0 {
		return 0
	}

	return n
}

// PromptText collects the estimable prompt text of a request: system text,
// every message's text blocks, and tool-result output for user-authored
// tool_result blocks, joined by newlines.
func PromptText(req *AnthropicRequest) string {
	var parts []string

	if req.System != nil {
		if text := ExtractText(req.System); text != "" {
			parts = append(parts, text)
		}
	}

	for _, msg := range req.Messages {
		switch content := msg.Content.(type) {
		case string:
			if content != "" {
				parts = append(parts, content)
			}
		case []any:
			for _, block := range content {
				blockMap, ok := block.(map[string]any)
				if !ok {
					continue
				}

				if text, ok := blockMap["text"].(string); ok {
					parts = append(parts, text)
					continue
				}

				if msg.Role == "user" && blockMap["type"] == "tool_result" {
					if out := toolResultContent(blockMap); out != "" {
						parts = append(parts, out)
					}
				}
			}
		}
	}

	return strings.Join(parts, "\n")
}

// EstimatePromptTokens applies the character-based estimate to the prompt
// text of a request.
func EstimatePromptTokens(req *AnthropicRequest, tokensPerChar float64) int {
	return EstimateTokens(PromptText(req), tokensPerChar)
}

// CostUSD computes the estimated cost of a usage under a pricing entry,
// priced per 1000 tokens.
func CostUSD(u Usage, p config.Pricing) float64 {
	return float64(u.InputTokens)/1000*p.In + float64(u.OutputTokens)/1000*p.Out
}

// toolResultContent renders a tool_result block's payload as text, reading
// output first and falling back to content.
func toolResultContent(block map[string]any) string {
	if out, ok := block["output"]; ok {
		return stringify(out)
	}

	if c, ok := block["content"]; ok {
		return ExtractText(c)
	}

	return ""
}

func numberField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
