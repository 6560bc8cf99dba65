package translator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anthropic-openrouter-proxy/proxy/internal/config"
)

// BuildClientResponse converts a completed upstream response body into an
// Anthropic-shaped message plus diagnostic headers. Every missing or
// malformed field degrades to a safe default; the function never fails.
func BuildClientResponse(upstreamBody []byte, p *Payload, elapsed time.Duration, cfg *config.Config) (map[string]any, map[string]string) {
	var upstream map[string]any
	if err := json.Unmarshal(upstreamBody, &upstream); err != nil {
		upstream = map[string]any{}
	}

	message := firstChoiceMessage(upstream)

	text := messageText(message)

	var blocks []map[string]any
	if strings.TrimSpace(text) != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": text})
	}

	hasToolUse := false

	if toolCalls, ok := message["tool_calls"].([]any); ok {
		for _, call := range toolCalls {
			callMap, ok := call.(map[string]any)
			if !ok {
				continue
			}

			blocks = append(blocks, convertUpstreamToolCall(callMap))
			hasToolUse = true
		}
	}

	stopReason := "end_turn"
	if hasToolUse {
		stopReason = "tool_use"
	}

	// A message must never have zero content blocks.
	if len(blocks) == 0 {
		blocks = append(blocks, map[string]any{"type": "text", "text": ""})
	}

	usage, upstreamCost := responseUsage(upstream, p, text, cfg)

	id, _ := upstream["id"].(string)
	if id == "" {
		id = "msg_" + uuid.NewString()
	}

	response := map[string]any{
		"id":            id,
		"type":          "message",
		"role":          "assistant",
		"model":         p.Model,
		"content":       blocks,
		"stop_reason":   stopReason,
		"stop_sequence": nil,
		"usage":         usage,
	}

	return response, diagnosticHeaders(p.Model, usage, elapsed, upstreamCost, cfg)
}

// firstChoiceMessage digs out choices[0].message, tolerating any missing
// layer.
func firstChoiceMessage(upstream map[string]any) map[string]any {
	choices, ok := upstream["choices"].([]any)
	if !ok || len(choices) == 0 {
		return map[string]any{}
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return map[string]any{}
	}

	message, ok := choice["message"].(map[string]any)
	if !ok {
		return map[string]any{}
	}

	return message
}

// messageText normalizes the upstream message content, which may be a
// string, an array of mixed strings and objects, or absent.
func messageText(message map[string]any) string {
	content, ok := message["content"]
	if !ok || content == nil {
		return ""
	}

	return ExtractText(content)
}

// convertUpstreamToolCall maps one upstream tool call to a tool_use block.
// Unparseable argument JSON is preserved under _raw rather than thrown away.
func convertUpstreamToolCall(call map[string]any) map[string]any {
	id, _ := call["id"].(string)
	if id == "" {
		id = "toolu_" + uuid.NewString()
	}

	name := "tool"
	arguments := ""

	if function, ok := call["function"].(map[string]any); ok {
		if n, ok := function["name"].(string); ok && n != "" {
			name = n
		}

		arguments, _ = function["arguments"].(string)
	}

	var input map[string]any
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &input); err != nil {
			input = map[string]any{"_raw": arguments}
		}
	}

	if input == nil {
		input = map[string]any{}
	}

	return map[string]any{
		"type":  "tool_use",
		"id":    id,
		"name":  name,
		"input": input,
	}
}

// responseUsage maps upstream usage to Anthropic fields, substituting
// synthesized values only when upstream reported both counts as zero and
// estimation is enabled. It also surfaces upstream's credit-unit cost when
// reported.
func responseUsage(upstream map[string]any, p *Payload, text string, cfg *config.Config) (Usage, *float64) {
	var (
		usage        Usage
		upstreamCost *float64
	)

	if raw, ok := upstream["usage"].(map[string]any); ok {
		usage = MapUpstreamUsage(raw)

		if cost, ok := raw["cost"].(float64); ok {
			upstreamCost = &cost
		}
	}

	if usage.InputTokens == 0 && usage.OutputTokens == 0 && cfg.EstimateUsage {
		usage.InputTokens = p.PromptEstimate
		usage.OutputTokens = EstimateTokens(text, cfg.TokensPerChar)
	}

	return usage, upstreamCost
}

// diagnosticHeaders builds the X-OR-* response headers: resolved model,
// token counts, duration, throughput, and cost in upstream credits and
// estimated USD when available.
func diagnosticHeaders(model string, usage Usage, elapsed time.Duration, upstreamCost *float64, cfg *config.Config) map[string]string {
	headers := map[string]string{
		"X-OR-Model":         model,
		"X-OR-Input-Tokens":  fmt.Sprintf("%d", usage.InputTokens),
		"X-OR-Output-Tokens": fmt.Sprintf("%d", usage.OutputTokens),
		"X-OR-Duration-Ms":   fmt.Sprintf("%d", elapsed.Milliseconds()),
	}

	total := usage.InputTokens + usage.OutputTokens
	if total > 0 && elapsed > 0 {
		headers["X-OR-Tokens-Per-Second"] = fmt.Sprintf("%.2f", float64(total)/elapsed.Seconds())
	}

	if upstreamCost != nil {
		headers["X-OR-Cost-Credits"] = fmt.Sprintf("%.6f", *upstreamCost)
	}

	if price, ok := cfg.PriceFor(model); ok {
		headers["X-OR-Cost-USD"] = fmt.Sprintf("%.6f", CostUSD(usage, price))
	}

	return headers
}
