// Package translator implements the bidirectional mapping between
// Anthropic-shaped Messages API traffic and OpenRouter's OpenAI-compatible
// chat-completion wire format, for both buffered and streaming responses.
package translator

import (
	"encoding/json"
	"fmt"
)

// AnthropicRequest is the inbound Messages API request body. Content fields
// are polymorphic (string, block object, or array of blocks) and stay as
// `any` until normalized.
type AnthropicRequest struct {
	Model       string             `json:"model,omitempty"`
	System      any                `json:"system,omitempty"`
	Messages    []AnthropicMessage `json:"messages"`
	Tools       []AnthropicTool    `json:"tools,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream,omitempty"`

	// raw keeps every top-level field of the original body so the fixed
	// allow-list of passthrough fields can be copied upstream verbatim.
	raw map[string]json.RawMessage
}

type AnthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type AnthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema,omitempty"`
}

// ParseAnthropicRequest decodes a request body. A JSON parse failure is the
// only error; it maps to a client error in the dispatcher.
func ParseAnthropicRequest(body []byte) (*AnthropicRequest, error) {
	var req AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal request fields: %w", err)
	}

	req.raw = raw

	return &req, nil
}

// Field returns the verbatim JSON of a top-level request field.
func (r *AnthropicRequest) Field(name string) (json.RawMessage, bool) {
	v, ok := r.raw[name]
	return v, ok
}

// ORMessage is one message of the upstream chat-completion payload.
type ORMessage struct {
	Role       string       `json:"role"`
	Content    any          `json:"content"`
	Name       string       `json:"name,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	ToolCalls  []ORToolCall `json:"tool_calls,omitempty"`
}

type ORToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function ORFunctionCall `json:"function"`
}

type ORFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ORTool is the OpenAI function-tool declaration shape.
type ORTool struct {
	Type     string        `json:"type"`
	Function ORFunctionDef `json:"function"`
}

type ORFunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"`
}

// Payload is the translated upstream request plus the request-scoped values
// the response side needs: the resolved model for pricing and headers, and
// the prompt-token estimate precomputed for the usage fallback.
type Payload struct {
	Model          string
	Stream         bool
	PromptEstimate int

	// Fields is the complete JSON body sent upstream.
	Fields map[string]any
}

// MarshalJSON serializes the payload as the upstream request body.
func (p *Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Fields)
}

// SetModel swaps the payload to another model, used for the single
// fallback-model retry.
func (p *Payload) SetModel(model string) {
	p.Model = model
	p.Fields["model"] = model
}

// Messages returns the translated upstream message sequence.
func (p *Payload) Messages() []ORMessage {
	msgs, _ := p.Fields["messages"].([]ORMessage)
	return msgs
}
