package translator

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropic-openrouter-proxy/proxy/internal/config"
)

func testPayload(model string) *Payload {
	return &Payload{Model: model, PromptEstimate: 10, Fields: map[string]any{}}
}

func contentBlocks(t *testing.T, response map[string]any) []map[string]any {
	t.Helper()

	blocks, ok := response["content"].([]map[string]any)
	require.True(t, ok, "content should be a block list")

	return blocks
}

func TestBuildClientResponse_TextMessage(t *testing.T) {
	body := []byte(`{
		"id": "gen-123",
		"choices": [{"message": {"role": "assistant", "content": "Hello there"}}],
		"usage": {"prompt_tokens": 37, "completion_tokens": 5}
	}`)

	response, headers := BuildClientResponse(body, testPayload("anthropic/claude-sonnet-4"), 2*time.Second, testConfig())

	assert.Equal(t, "gen-123", response["id"])
	assert.Equal(t, "message", response["type"])
	assert.Equal(t, "assistant", response["role"])
	assert.Equal(t, "anthropic/claude-sonnet-4", response["model"])
	assert.Equal(t, "end_turn", response["stop_reason"])
	assert.Nil(t, response["stop_sequence"])

	blocks := contentBlocks(t, response)
	require.Len(t, blocks, 1)
	assert.Equal(t, "text", blocks[0]["type"])
	assert.Equal(t, "Hello there", blocks[0]["text"])

	usage, ok := response["usage"].(Usage)
	require.True(t, ok)
	assert.Equal(t, 37, usage.InputTokens)
	assert.Equal(t, 5, usage.OutputTokens)

	assert.Equal(t, "anthropic/claude-sonnet-4", headers["X-OR-Model"])
	assert.Equal(t, "37", headers["X-OR-Input-Tokens"])
	assert.Equal(t, "5", headers["X-OR-Output-Tokens"])
	assert.Equal(t, "2000", headers["X-OR-Duration-Ms"])
	assert.Equal(t, "21.00", headers["X-OR-Tokens-Per-Second"])
}

func TestBuildClientResponse_RealUsageNeverOverwritten(t *testing.T) {
	cfg := testConfig()
	cfg.EstimateUsage = true

	body := []byte(`{
		"choices": [{"message": {"content": "x"}}],
		"usage": {"prompt_tokens": 37, "completion_tokens": 5}
	}`)

	response, _ := BuildClientResponse(body, testPayload("m"), time.Second, cfg)

	usage := response["usage"].(Usage)
	assert.Equal(t, 37, usage.InputTokens, "reported usage must survive estimation")
	assert.Equal(t, 5, usage.OutputTokens)
}

func TestBuildClientResponse_EstimationWhenUsageMissing(t *testing.T) {
	cfg := testConfig()
	cfg.EstimateUsage = true

	body := []byte(`{"choices": [{"message": {"content": "` + strings.Repeat("a", 40) + `"}}]}`)

	p := testPayload("m")
	p.PromptEstimate = 12

	response, _ := BuildClientResponse(body, p, time.Second, cfg)

	usage := response["usage"].(Usage)
	assert.Equal(t, 12, usage.InputTokens, "prompt estimate fills missing input")
	assert.Equal(t, 10, usage.OutputTokens, "floor(40 chars * 0.25)")
}

func TestBuildClientResponse_NoEstimationWhenDisabled(t *testing.T) {
	body := []byte(`{"choices": [{"message": {"content": "some text"}}]}`)

	response, _ := BuildClientResponse(body, testPayload("m"), time.Second, testConfig())

	usage := response["usage"].(Usage)
	assert.Zero(t, usage.InputTokens)
	assert.Zero(t, usage.OutputTokens)
}

func TestBuildClientResponse_ToolCalls(t *testing.T) {
	body := []byte(`{
		"choices": [{"message": {
			"content": "Let me check.",
			"tool_calls": [
				{"id": "call_9", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Oslo\"}"}},
				{"type": "function", "function": {"arguments": "not json"}}
			]
		}}]
	}`)

	response, _ := BuildClientResponse(body, testPayload("m"), time.Second, testConfig())

	assert.Equal(t, "tool_use", response["stop_reason"])

	blocks := contentBlocks(t, response)
	require.Len(t, blocks, 3, "text block plus two tool_use blocks")

	assert.Equal(t, "text", blocks[0]["type"])

	assert.Equal(t, "tool_use", blocks[1]["type"])
	assert.Equal(t, "call_9", blocks[1]["id"])
	assert.Equal(t, "get_weather", blocks[1]["name"])
	assert.Equal(t, map[string]any{"city": "Oslo"}, blocks[1]["input"])

	// Missing id and name degrade to generated / placeholder values, and
	// unparseable arguments are preserved verbatim.
	assert.True(t, strings.HasPrefix(blocks[2]["id"].(string), "toolu_"))
	assert.Equal(t, "tool", blocks[2]["name"])
	assert.Equal(t, map[string]any{"_raw": "not json"}, blocks[2]["input"])
}

func TestBuildClientResponse_EmptyContentGetsOneBlock(t *testing.T) {
	response, _ := BuildClientResponse([]byte(`{"choices":[{"message":{"content":"   "}}]}`), testPayload("m"), time.Second, testConfig())

	blocks := contentBlocks(t, response)
	require.Len(t, blocks, 1, "a message never has zero content blocks")
	assert.Equal(t, "text", blocks[0]["type"])
	assert.Equal(t, "", blocks[0]["text"])
	assert.Equal(t, "end_turn", response["stop_reason"])
}

func TestBuildClientResponse_MalformedBodyDegrades(t *testing.T) {
	response, headers := BuildClientResponse([]byte("not json at all"), testPayload("m"), time.Second, testConfig())

	id, ok := response["id"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(id, "msg_"), "generated id when upstream has none")

	blocks := contentBlocks(t, response)
	require.Len(t, blocks, 1)

	assert.Equal(t, "0", headers["X-OR-Input-Tokens"])
	assert.NotContains(t, headers, "X-OR-Tokens-Per-Second")
}

func TestBuildClientResponse_CostHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Pricing = map[string]config.Pricing{
		"anthropic/claude-sonnet-4": {In: 0.003, Out: 0.015},
	}

	body := []byte(`{
		"choices": [{"message": {"content": "hi"}}],
		"usage": {"prompt_tokens": 1000, "completion_tokens": 2000, "cost": 0.0425}
	}`)

	_, headers := BuildClientResponse(body, testPayload("anthropic/claude-sonnet-4"), time.Second, cfg)

	assert.Equal(t, "0.042500", headers["X-OR-Cost-Credits"])
	// 1000/1000*0.003 + 2000/1000*0.015
	assert.Equal(t, "0.033000", headers["X-OR-Cost-USD"])
}

func TestBuildClientResponse_CachedTokens(t *testing.T) {
	body := []byte(`{
		"choices": [{"message": {"content": "hi"}}],
		"usage": {"prompt_tokens": 100, "completion_tokens": 10, "prompt_tokens_details": {"cached_tokens": 60}}
	}`)

	response, _ := BuildClientResponse(body, testPayload("m"), time.Second, testConfig())

	usage := response["usage"].(Usage)
	assert.Equal(t, 60, usage.CacheReadInputTokens)
	assert.Zero(t, usage.CacheCreationInputTokens)
}
