package translator

import (
	"strings"

	"github.com/google/uuid"

	"github.com/anthropic-openrouter-proxy/proxy/internal/config"
	"github.com/anthropic-openrouter-proxy/proxy/internal/resolver"
)

// passthroughFields copy through from the original request unchanged. They
// are applied after the model/reasoning logic so an explicit caller value
// wins over anything synthesized here.
var passthroughFields = []string{
	"plugins",
	"transforms",
	"web_search_options",
	"models",
	"provider",
	"reasoning",
	"usage",
	"top_p",
	"top_k",
	"frequency_penalty",
	"presence_penalty",
	"repetition_penalty",
	"seed",
	"logit_bias",
	"response_format",
	"user",
}

const (
	defaultTemperature = 0.2
	defaultMaxTokens   = 1024
)

// toolAnchor tracks the last assistant message carrying tool calls while the
// conversation is translated in order, replacing repeated backward scans.
// While an anchor is active, everything after its position in the output is
// its tool-result cluster; emitting any non-tool message deactivates it.
type toolAnchor struct {
	pos     int
	order   []string
	names   map[string]string
	results map[string]ORMessage
}

// BuildUpstreamPayload converts an Anthropic-shaped request into the
// upstream chat-completion payload. It is total: malformed blocks degrade to
// serialized text, never errors.
func BuildUpstreamPayload(req *AnthropicRequest, headerModel string, stream bool, cfg *config.Config, res *resolver.Resolver) *Payload {
	var out []ORMessage

	if req.System != nil {
		if text := ExtractText(req.System); text != "" {
			out = append(out, ORMessage{Role: "system", Content: text})
		}
	}

	var anchor *toolAnchor

	for _, msg := range req.Messages {
		switch msg.Role {
		case "assistant":
			out, anchor = appendAssistantTurn(out, msg)
		case "user":
			out, anchor = appendUserTurn(out, msg, anchor)
		default:
			out = append(out, ORMessage{Role: msg.Role, Content: ExtractText(msg.Content)})
			anchor = nil
		}
	}

	out = removeSpuriousUserMessages(out)

	requested := req.Model
	if requested == "" {
		requested = resolver.DefaultModel
	}

	model := res.ResolveRequest(requested, headerModel, cfg)

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	fields := map[string]any{
		"model":       model,
		"messages":    out,
		"temperature": temperature,
		"max_tokens":  maxTokens,
		"usage":       map[string]any{"include": true},
	}

	if tools := convertTools(req.Tools); len(tools) > 0 {
		fields["tools"] = tools
	}

	if strings.Contains(model, ":thinking") {
		fields["reasoning"] = map[string]any{"effort": cfg.ReasoningEffort}
	}

	if stream {
		fields["stream"] = true
	}

	for _, name := range passthroughFields {
		if raw, ok := req.Field(name); ok {
			fields[name] = raw
		}
	}

	return &Payload{
		Model:          model,
		Stream:         stream,
		PromptEstimate: EstimatePromptTokens(req, cfg.TokensPerChar),
		Fields:         fields,
	}
}

// appendAssistantTurn partitions an assistant turn into concatenated text
// and tool calls. The message is emitted only when it carries either.
func appendAssistantTurn(out []ORMessage, msg AnthropicMessage) ([]ORMessage, *toolAnchor) {
	var (
		text      strings.Builder
		toolCalls []ORToolCall
	)

	switch content := msg.Content.(type) {
	case string:
		text.WriteString(content)
	case []any:
		for _, block := range content {
			blockMap, ok := block.(map[string]any)
			if !ok {
				if s, ok := block.(string); ok {
					text.WriteString(s)
				}

				continue
			}

			switch blockMap["type"] {
			case "text":
				if t, ok := blockMap["text"].(string); ok {
					text.WriteString(t)
				}
			case "tool_use":
				toolCalls = append(toolCalls, convertToolUse(blockMap))
			}
		}
	default:
		text.WriteString(ExtractText(msg.Content))
	}

	trimmed := strings.TrimRight(text.String(), " \t\r\n")
	if trimmed == "" && len(toolCalls) == 0 {
		return out, nil
	}

	out = append(out, ORMessage{Role: "assistant", Content: trimmed, ToolCalls: toolCalls})

	if len(toolCalls) == 0 {
		return out, nil
	}

	anchor := &toolAnchor{
		pos:     len(out) - 1,
		names:   make(map[string]string, len(toolCalls)),
		results: make(map[string]ORMessage, len(toolCalls)),
	}

	for _, call := range toolCalls {
		anchor.order = append(anchor.order, call.ID)
		anchor.names[call.ID] = call.Function.Name
	}

	return out, anchor
}

// appendUserTurn splits a user turn into text and tool results. Results
// matching the anchor become tool-role messages placed directly after the
// anchor in its tool-call order; orphaned results are folded into the user
// text as labeled blocks instead of being dropped.
func appendUserTurn(out []ORMessage, msg AnthropicMessage, anchor *toolAnchor) ([]ORMessage, *toolAnchor) {
	var (
		textParts []string
		matched   bool
	)

	switch content := msg.Content.(type) {
	case string:
		if content != "" {
			textParts = append(textParts, content)
		}
	case []any:
		for _, block := range content {
			blockMap, ok := block.(map[string]any)
			if !ok {
				if s, ok := block.(string); ok && s != "" {
					textParts = append(textParts, s)
				}

				continue
			}

			if blockMap["type"] != "tool_result" {
				if t := blockText(blockMap); t != "" {
					textParts = append(textParts, t)
				}

				continue
			}

			id, _ := blockMap["tool_use_id"].(string)
			result := toolResultContent(blockMap)

			if anchor != nil {
				if name, ok := anchor.names[id]; ok {
					anchor.results[id] = ORMessage{
						Role:       "tool",
						Content:    result,
						Name:       name,
						ToolCallID: id,
					}
					matched = true

					continue
				}
			}

			// No anchor claims this result; keep its content visible to the
			// model rather than sending an unanchored tool message upstream.
			textParts = append(textParts, "id="+id+" content="+result)
		}
	default:
		if msg.Content != nil {
			if t := ExtractText(msg.Content); t != "" {
				textParts = append(textParts, t)
			}
		}
	}

	if matched {
		// Rebuild the anchor's cluster so tool messages follow the order of
		// its tool-call list, not the order results were submitted in.
		out = out[:anchor.pos+1]
		for _, id := range anchor.order {
			if toolMsg, ok := anchor.results[id]; ok {
				out = append(out, toolMsg)
			}
		}
	}

	text := strings.TrimSpace(strings.Join(textParts, "\n"))
	if text != "" {
		out = append(out, ORMessage{Role: "user", Content: text})
		return out, nil
	}

	return out, anchor
}

// convertToolUse maps a tool_use block to an upstream tool call. A missing
// id gets a fresh random one; arguments are serialized when not already a
// string.
func convertToolUse(block map[string]any) ORToolCall {
	id, _ := block["id"].(string)
	if id == "" {
		id = "call_" + uuid.NewString()
	}

	name, _ := block["name"].(string)

	arguments := "{}"
	if input, ok := block["input"]; ok && input != nil {
		arguments = stringify(input)
	}

	return ORToolCall{
		ID:   id,
		Type: "function",
		Function: ORFunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

// convertTools maps tool declarations to the OpenAI function shape. A
// missing input schema becomes an empty open-object schema.
func convertTools(tools []AnthropicTool) []ORTool {
	if len(tools) == 0 {
		return nil
	}

	converted := make([]ORTool, 0, len(tools))

	for _, tool := range tools {
		schema := tool.InputSchema
		if schema == nil {
			schema = map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": true,
			}
		}

		converted = append(converted, ORTool{
			Type: "function",
			Function: ORFunctionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}

	return converted
}

// removeSpuriousUserMessages drops user messages wedged between an
// assistant message with tool calls and its tool-result messages, an
// artifact of the insertion order. The forward scan over each such
// assistant stops at the first message that is neither a matching tool
// message nor a leading spurious user message.
func removeSpuriousUserMessages(msgs []ORMessage) []ORMessage {
	removed := map[int]bool{}

	for i, msg := range msgs {
		if msg.Role != "assistant" || len(msg.ToolCalls) == 0 {
			continue
		}

		ids := make(map[string]bool, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			ids[call.ID] = true
		}

		var (
			seenTool     bool
			pendingUsers []int
		)

	scan:
		for j := i + 1; j < len(msgs); j++ {
			switch {
			case msgs[j].Role == "tool" && ids[msgs[j].ToolCallID]:
				seenTool = true
			case msgs[j].Role == "user" && !seenTool:
				pendingUsers = append(pendingUsers, j)
			default:
				break scan
			}
		}

		// Only messages that actually sit in front of inserted tool results
		// are artifacts; with no tool results the user text is legitimate.
		if seenTool {
			for _, j := range pendingUsers {
				removed[j] = true
			}
		}
	}

	if len(removed) == 0 {
		return msgs
	}

	kept := make([]ORMessage, 0, len(msgs)-len(removed))
	for i, msg := range msgs {
		if !removed[i] {
			kept = append(kept, msg)
		}
	}

	return kept
}
